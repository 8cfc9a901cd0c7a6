package vl53l5cx

import (
	"log/slog"
	"time"

	"github.com/mklimuk/tof"
)

type Options struct {
	Address   byte
	SkipInit  bool
	ChunkSize int
	Sleep     func(time.Duration)
	Logger    *slog.Logger
	LPn       tof.Pin
	// Layout is the results layout GetData decodes. Only DefaultLayout can be
	// decoded into a Frame; other layouts are accepted to report the mismatch
	// early.
	Layout Layout
}

type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Address: DefaultAddress,
		Logger:  slog.Default(),
		Layout:  DefaultLayout,
	}
}

// WithAddress sets the 7-bit address the sensor currently answers at.
func WithAddress(address byte) Option {
	return func(o *Options) {
		o.Address = address
	}
}

// WithSkipInit leaves the session bound without running the init sequence,
// for sensors already initialized by an earlier process.
func WithSkipInit() Option {
	return func(o *Options) {
		o.SkipInit = true
	}
}

// WithChunkSize limits single bus writes to size bytes.
func WithChunkSize(size int) Option {
	return func(o *Options) {
		o.ChunkSize = size
	}
}

func WithSleep(sleep func(time.Duration)) Option {
	return func(o *Options) {
		o.Sleep = sleep
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithLPn drives the given pin high before the sensor is probed.
func WithLPn(pin tof.Pin) Option {
	return func(o *Options) {
		o.LPn = pin
	}
}

func WithLayout(layout Layout) Option {
	return func(o *Options) {
		o.Layout = layout
	}
}
