package vl53l5cx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/tof"
	"github.com/mklimuk/tof/i2c"
)

type State int

const (
	StateUninitialized State = iota
	StateBound
	StateInitialized
	StateConfigured
	StateRanging
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBound:
		return "bound"
	case StateInitialized:
		return "initialized"
	case StateConfigured:
		return "configured"
	case StateRanging:
		return "ranging"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const (
	minIntegrationMs = 2
	maxIntegrationMs = 1000
	maxSharpener     = 99
	minMotionMM      = 400
	maxMotionSpanMM  = 1500
)

// Sensor is a session with one sensor. It is not safe for concurrent use and
// must own its bus for its whole lifetime.
type Sensor struct {
	engine   Engine
	platform *Platform
	config   *configuration
	layout   Layout
	buf      []byte
	base     *slog.Logger
	logger   *slog.Logger

	address       byte
	state         State
	resolution    Resolution
	frequencyHz   uint8
	motionEnabled bool
}

// New binds a sensor on bus, checks it answers and runs the init sequence
// unless WithSkipInit is given. Nothing stays allocated on failure.
func New(ctx context.Context, engine Engine, bus tof.RegisterBus, opts ...Option) (_ *Sensor, err error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Address == 0 || o.Address > 0x7f {
		return nil, fmt.Errorf("%w: address %#02x is not a 7-bit address", ErrInvalidParameter, o.Address)
	}
	if size := engine.ResultsSize(); size != 0 && size != o.Layout.Size() {
		return nil, fmt.Errorf("%w: engine results are %d bytes, expected %d for %d targets per zone",
			ErrInitialization, size, o.Layout.Size(), o.Layout.TargetsPerZone())
	}

	platform := NewPlatform(i2c.NewChunkedBus(bus, o.ChunkSize), o.Sleep, o.Logger)
	if o.LPn != nil {
		err = o.LPn.Set(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("%w: could not enable sensor: %w", ErrTransport, err)
		}
		platform.Sleep(10)
	}

	config, err := newConfiguration(engine, o.Address, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	defer func() {
		if err != nil {
			config.release()
		}
	}()

	s := &Sensor{
		engine:   engine,
		platform: platform,
		config:   config,
		layout:   o.Layout,
		buf:      o.Layout.NewBuffer(),
		base:     o.Logger,
		logger:   o.Logger.With("address", fmt.Sprintf("%#02x", o.Address)),
		address:  o.Address,
		state:    StateUninitialized,
	}

	err = s.checkAlive(ctx, "is alive")
	if err != nil {
		return nil, err
	}
	s.setState(StateBound)
	if o.SkipInit {
		return s, nil
	}
	err = s.Init(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sensor) setState(state State) {
	if s.state == state {
		return
	}
	s.logger.Debug("sensor state changed", "from", s.state.String(), "to", state.String())
	s.state = state
}

// State returns the current session state.
func (s *Sensor) State() State {
	return s.state
}

// Address returns the 7-bit address the session talks to.
func (s *Sensor) Address() byte {
	return s.address
}

// status maps the outcome of an engine call to an error. A transport failure
// seen by the bridge takes precedence over the engine status.
func (s *Sensor) status(op string, st Status) error {
	terr := s.platform.takeErr()
	if terr != nil {
		return fmt.Errorf("%w: %s: %w", ErrTransport, op, terr)
	}
	if st != StatusOK {
		return &StatusError{Op: op, Status: st}
	}
	return nil
}

func (s *Sensor) call(ctx context.Context, op string, fn func(h Handle) Status) error {
	restore := s.platform.bind(ctx)
	st := fn(s.config.handle)
	restore()
	return s.status(op, st)
}

func (s *Sensor) usable() error {
	if s.state == StateReleased {
		return fmt.Errorf("%w: session is closed", ErrPrecondition)
	}
	return nil
}

// configurable reports whether setters are allowed in the current state.
func (s *Sensor) configurable(op string) error {
	switch s.state {
	case StateBound, StateInitialized, StateConfigured, StateStopped:
		return nil
	default:
		return fmt.Errorf("%w: %s not allowed while %s", ErrPrecondition, op, s.state)
	}
}

func (s *Sensor) checkAlive(ctx context.Context, op string) error {
	var alive bool
	err := s.call(ctx, op, func(h Handle) Status {
		var st Status
		alive, st = s.engine.IsAlive(h)
		return st
	})
	if err != nil {
		return fmt.Errorf("%w at %#02x: %w", ErrDeviceNotFound, s.address, err)
	}
	if !alive {
		return fmt.Errorf("%w at %#02x: unexpected device id", ErrDeviceNotFound, s.address)
	}
	return nil
}

// IsAlive reads the device id registers.
func (s *Sensor) IsAlive(ctx context.Context) (bool, error) {
	if err := s.usable(); err != nil {
		return false, err
	}
	var alive bool
	err := s.call(ctx, "is alive", func(h Handle) Status {
		var st Status
		alive, st = s.engine.IsAlive(h)
		return st
	})
	return alive, err
}

// Init uploads firmware and default configuration. It can be run again from
// any configurable state to reset the sensor.
func (s *Sensor) Init(ctx context.Context) error {
	if err := s.configurable("init"); err != nil {
		return err
	}
	s.logger.Debug("initializing sensor")
	err := s.call(ctx, "init", func(h Handle) Status {
		return s.engine.Init(h)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	s.resolution = 0
	s.frequencyHz = 0
	s.motionEnabled = false
	s.setState(StateInitialized)
	return nil
}

// SetI2CAddress moves the sensor to a new 7-bit address and checks it answers
// there.
func (s *Sensor) SetI2CAddress(ctx context.Context, address byte) error {
	if err := s.configurable("address change"); err != nil {
		return err
	}
	if address == 0 || address > 0x7f {
		return fmt.Errorf("%w: address %#02x is not a 7-bit address", ErrInvalidParameter, address)
	}
	err := s.call(ctx, "set i2c address", func(h Handle) Status {
		return s.engine.SetI2CAddress(h, uint16(address)<<1)
	})
	if err != nil {
		return err
	}
	s.logger.Info("sensor address changed", "new", fmt.Sprintf("%#02x", address))
	s.address = address
	s.logger = s.base.With("address", fmt.Sprintf("%#02x", address))
	return s.checkAlive(ctx, "is alive after address change")
}

func (s *Sensor) configured() {
	s.setState(StateConfigured)
}

// SetResolution switches between 4x4 and 8x8 zones.
func (s *Sensor) SetResolution(ctx context.Context, r Resolution) error {
	if err := s.configurable("set resolution"); err != nil {
		return err
	}
	if !r.valid() {
		return fmt.Errorf("%w: resolution %d must be 16 or 64 zones", ErrInvalidParameter, uint8(r))
	}
	err := s.call(ctx, "set resolution", func(h Handle) Status {
		return s.engine.SetResolution(h, r)
	})
	if err != nil {
		return err
	}
	s.resolution = r
	// frequency limits depend on the resolution, read it back on next use
	s.frequencyHz = 0
	s.configured()
	return nil
}

// Resolution returns the zone layout, read from the engine once and cached.
func (s *Sensor) Resolution(ctx context.Context) (Resolution, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	if s.resolution != 0 {
		return s.resolution, nil
	}
	var r Resolution
	err := s.call(ctx, "get resolution", func(h Handle) Status {
		var st Status
		r, st = s.engine.GetResolution(h)
		return st
	})
	if err != nil {
		return 0, err
	}
	s.resolution = r
	return r, nil
}

// SetRangingFrequencyHz accepts 1..60 Hz at 4x4 and 1..15 Hz at 8x8.
func (s *Sensor) SetRangingFrequencyHz(ctx context.Context, hz uint8) error {
	if err := s.configurable("set ranging frequency"); err != nil {
		return err
	}
	r, err := s.Resolution(ctx)
	if err != nil {
		return err
	}
	if hz < 1 || hz > r.MaxFrequencyHz() {
		return fmt.Errorf("%w: ranging frequency %d Hz out of range 1..%d for %s", ErrInvalidParameter, hz, r.MaxFrequencyHz(), r)
	}
	err = s.call(ctx, "set ranging frequency", func(h Handle) Status {
		return s.engine.SetRangingFrequencyHz(h, hz)
	})
	if err != nil {
		return err
	}
	s.frequencyHz = hz
	s.configured()
	return nil
}

// RangingFrequencyHz returns the ranging frequency, cached after the first read.
func (s *Sensor) RangingFrequencyHz(ctx context.Context) (uint8, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	if s.frequencyHz != 0 {
		return s.frequencyHz, nil
	}
	var hz uint8
	err := s.call(ctx, "get ranging frequency", func(h Handle) Status {
		var st Status
		hz, st = s.engine.GetRangingFrequencyHz(h)
		return st
	})
	if err != nil {
		return 0, err
	}
	s.frequencyHz = hz
	return hz, nil
}

// SetIntegrationTimeMs accepts 2..1000 ms, strictly shorter than the ranging
// period.
func (s *Sensor) SetIntegrationTimeMs(ctx context.Context, ms uint32) error {
	if err := s.configurable("set integration time"); err != nil {
		return err
	}
	if ms < minIntegrationMs || ms > maxIntegrationMs {
		return fmt.Errorf("%w: integration time %d ms out of range %d..%d", ErrInvalidParameter, ms, minIntegrationMs, maxIntegrationMs)
	}
	hz, err := s.RangingFrequencyHz(ctx)
	if err != nil {
		return err
	}
	if hz > 0 && ms*uint32(hz) >= 1000 {
		return fmt.Errorf("%w: integration time %d ms does not fit a %d Hz ranging period", ErrInvalidParameter, ms, hz)
	}
	err = s.call(ctx, "set integration time", func(h Handle) Status {
		return s.engine.SetIntegrationTimeMs(h, ms)
	})
	if err != nil {
		return err
	}
	s.configured()
	return nil
}

// IntegrationTimeMs returns the integration time used in autonomous mode.
func (s *Sensor) IntegrationTimeMs(ctx context.Context) (uint32, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var ms uint32
	err := s.call(ctx, "get integration time", func(h Handle) Status {
		var st Status
		ms, st = s.engine.GetIntegrationTimeMs(h)
		return st
	})
	return ms, err
}

// SetSharpenerPercent sets how much signal from neighbouring zones is removed, 0..99.
func (s *Sensor) SetSharpenerPercent(ctx context.Context, percent uint8) error {
	if err := s.configurable("set sharpener"); err != nil {
		return err
	}
	if percent > maxSharpener {
		return fmt.Errorf("%w: sharpener %d%% out of range 0..%d", ErrInvalidParameter, percent, maxSharpener)
	}
	err := s.call(ctx, "set sharpener", func(h Handle) Status {
		return s.engine.SetSharpenerPercent(h, percent)
	})
	if err != nil {
		return err
	}
	s.configured()
	return nil
}

// SharpenerPercent returns the current sharpener setting.
func (s *Sensor) SharpenerPercent(ctx context.Context) (uint8, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var percent uint8
	err := s.call(ctx, "get sharpener", func(h Handle) Status {
		var st Status
		percent, st = s.engine.GetSharpenerPercent(h)
		return st
	})
	return percent, err
}

// SetTargetOrder selects whether the closest or the strongest target comes first.
func (s *Sensor) SetTargetOrder(ctx context.Context, order TargetOrder) error {
	if err := s.configurable("set target order"); err != nil {
		return err
	}
	if order != TargetOrderClosest && order != TargetOrderStrongest {
		return fmt.Errorf("%w: unknown target order %d", ErrInvalidParameter, uint8(order))
	}
	err := s.call(ctx, "set target order", func(h Handle) Status {
		return s.engine.SetTargetOrder(h, order)
	})
	if err != nil {
		return err
	}
	s.configured()
	return nil
}

// TargetOrder returns the current target order.
func (s *Sensor) TargetOrder(ctx context.Context) (TargetOrder, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var order TargetOrder
	err := s.call(ctx, "get target order", func(h Handle) Status {
		var st Status
		order, st = s.engine.GetTargetOrder(h)
		return st
	})
	return order, err
}

// SetPowerMode puts the sensor to sleep or wakes it up.
func (s *Sensor) SetPowerMode(ctx context.Context, mode PowerMode) error {
	if err := s.configurable("set power mode"); err != nil {
		return err
	}
	if mode != PowerModeSleep && mode != PowerModeWakeup {
		return fmt.Errorf("%w: unknown power mode %d", ErrInvalidParameter, uint8(mode))
	}
	err := s.call(ctx, "set power mode", func(h Handle) Status {
		return s.engine.SetPowerMode(h, mode)
	})
	if err != nil {
		return err
	}
	s.configured()
	return nil
}

// PowerMode returns the current power mode.
func (s *Sensor) PowerMode(ctx context.Context) (PowerMode, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var mode PowerMode
	err := s.call(ctx, "get power mode", func(h Handle) Status {
		var st Status
		mode, st = s.engine.GetPowerMode(h)
		return st
	})
	return mode, err
}

// SetRangingMode selects continuous or autonomous ranging.
func (s *Sensor) SetRangingMode(ctx context.Context, mode RangingMode) error {
	if err := s.configurable("set ranging mode"); err != nil {
		return err
	}
	if mode != RangingModeContinuous && mode != RangingModeAutonomous {
		return fmt.Errorf("%w: unknown ranging mode %d", ErrInvalidParameter, uint8(mode))
	}
	err := s.call(ctx, "set ranging mode", func(h Handle) Status {
		return s.engine.SetRangingMode(h, mode)
	})
	if err != nil {
		return err
	}
	s.configured()
	return nil
}

// RangingMode returns the current ranging mode.
func (s *Sensor) RangingMode(ctx context.Context) (RangingMode, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	var mode RangingMode
	err := s.call(ctx, "get ranging mode", func(h Handle) Status {
		var st Status
		mode, st = s.engine.GetRangingMode(h)
		return st
	})
	return mode, err
}

// EnableMotionIndicator sets up motion indication at the given resolution.
// Calling it again reuses the motion configuration.
func (s *Sensor) EnableMotionIndicator(ctx context.Context, r Resolution) error {
	if err := s.configurable("enable motion indicator"); err != nil {
		return err
	}
	if !r.valid() {
		return fmt.Errorf("%w: motion resolution %d must be 16 or 64 zones", ErrInvalidParameter, uint8(r))
	}
	m, err := s.config.motionHandle()
	if err != nil {
		return err
	}
	err = s.call(ctx, "motion indicator init", func(h Handle) Status {
		return s.engine.MotionIndicatorInit(h, m, r)
	})
	if err != nil {
		return err
	}
	s.motionEnabled = true
	s.configured()
	return nil
}

// SetMotionDistance sets the motion detection window. It requires motion
// indication to be enabled, minMM >= 400 and maxMM-minMM < 1500.
func (s *Sensor) SetMotionDistance(ctx context.Context, minMM, maxMM uint16) error {
	if err := s.configurable("set motion distance"); err != nil {
		return err
	}
	if !s.motionEnabled {
		return fmt.Errorf("%w: motion indicator is not enabled", ErrPrecondition)
	}
	if minMM < minMotionMM || int(maxMM)-int(minMM) >= maxMotionSpanMM {
		return fmt.Errorf("%w: motion window %d..%d mm needs min >= %d and a span below %d", ErrInvalidParameter, minMM, maxMM, minMotionMM, maxMotionSpanMM)
	}
	err := s.call(ctx, "set motion distance", func(h Handle) Status {
		return s.engine.MotionIndicatorSetDistance(h, s.config.motion, minMM, maxMM)
	})
	if err != nil {
		return err
	}
	s.configured()
	return nil
}

// StartRanging starts acquisition. Poll DataReady before each GetData.
func (s *Sensor) StartRanging(ctx context.Context) error {
	if err := s.configurable("start ranging"); err != nil {
		return err
	}
	// frames carry the resolution, resolve it before the engine is busy
	if _, err := s.Resolution(ctx); err != nil {
		return err
	}
	err := s.call(ctx, "start ranging", func(h Handle) Status {
		return s.engine.StartRanging(h)
	})
	if err != nil {
		return err
	}
	s.setState(StateRanging)
	return nil
}

// DataReady reports whether a new frame can be read. It returns false outside
// of ranging.
func (s *Sensor) DataReady(ctx context.Context) (bool, error) {
	if s.state != StateRanging {
		return false, nil
	}
	var ready bool
	err := s.call(ctx, "check data ready", func(h Handle) Status {
		var st Status
		ready, st = s.engine.CheckDataReady(h)
		return st
	})
	return ready, err
}

// GetData reads and decodes one frame.
func (s *Sensor) GetData(ctx context.Context) (*Frame, error) {
	f := new(Frame)
	err := s.ReadFrame(ctx, f)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ReadFrame reads one frame into f. On failure f is left untouched and the
// session keeps ranging.
func (s *Sensor) ReadFrame(ctx context.Context, f *Frame) error {
	if s.state != StateRanging {
		return fmt.Errorf("%w: get data not allowed while %s", ErrPrecondition, s.state)
	}
	err := s.call(ctx, "get ranging data", func(h Handle) Status {
		return s.engine.GetRangingData(h, s.buf)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	results, err := s.layout.View(s.buf)
	if err != nil {
		return err
	}
	err = results.Decode(f)
	if err != nil {
		return err
	}
	f.Resolution = s.resolution
	f.MotionEnabled = s.motionEnabled
	return nil
}

// StopRanging stops acquisition. The session can be configured again afterwards.
func (s *Sensor) StopRanging(ctx context.Context) error {
	if s.state != StateRanging {
		return fmt.Errorf("%w: stop ranging not allowed while %s", ErrPrecondition, s.state)
	}
	err := s.call(ctx, "stop ranging", func(h Handle) Status {
		return s.engine.StopRanging(h)
	})
	if err != nil {
		return err
	}
	s.setState(StateStopped)
	return nil
}

// Close releases the engine configurations. It does not stop ranging on the
// device. Calling it again is a no-op.
func (s *Sensor) Close() error {
	if s.state == StateReleased {
		return nil
	}
	s.config.release()
	s.motionEnabled = false
	s.setState(StateReleased)
	return nil
}
