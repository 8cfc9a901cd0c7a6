package vl53l5cx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/tof"
)

// Platform is the bridge between the engine callbacks and the bus. The engine
// calls Read, Write and Sleep synchronously from within an entry point, on the
// goroutine that invoked it, so Platform does not lock.
//
// The engine keeps the 8-bit address in its configuration and hands the
// callbacks the 7-bit form, which goes to the bus unchanged.
type Platform struct {
	bus    tof.RegisterBus
	sleep  func(time.Duration)
	logger *slog.Logger

	ctx context.Context
	err error
}

// NewPlatform returns a bridge over bus. A nil sleep uses time.Sleep.
func NewPlatform(bus tof.RegisterBus, sleep func(time.Duration), logger *slog.Logger) *Platform {
	if sleep == nil {
		sleep = time.Sleep
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		bus:    bus,
		sleep:  sleep,
		logger: logger,
		ctx:    context.Background(),
	}
}

// bind sets the context used by callbacks for the duration of an engine call
// and clears any retained error. The returned func restores the previous
// context.
func (p *Platform) bind(ctx context.Context) func() {
	prev := p.ctx
	p.ctx = ctx
	p.err = nil
	return func() {
		p.ctx = prev
	}
}

// takeErr returns and clears the first transport error seen since bind.
func (p *Platform) takeErr() error {
	err := p.err
	p.err = nil
	return err
}

func (p *Platform) fail(op string, address uint8, register uint16, err error) Status {
	if p.err == nil {
		p.err = fmt.Errorf("%s register %#04x at %#02x: %w", op, register, address, err)
	}
	p.logger.Debug("bus transfer failed", "op", op, "address", fmt.Sprintf("%#02x", address), "register", fmt.Sprintf("%#04x", register), "error", err)
	return StatusGenericError
}

// Read fills out with len(out) bytes starting at register.
func (p *Platform) Read(address uint8, register uint16, out []byte) Status {
	err := p.bus.ReadRegister(p.ctx, address, register, out)
	if err != nil {
		return p.fail("read", address, register, err)
	}
	return StatusOK
}

// Write sends data starting at register.
func (p *Platform) Write(address uint8, register uint16, data []byte) Status {
	err := p.bus.WriteRegister(p.ctx, address, register, data)
	if err != nil {
		return p.fail("write", address, register, err)
	}
	return StatusOK
}

// Sleep blocks for ms milliseconds. It cannot fail.
func (p *Platform) Sleep(ms uint32) Status {
	p.sleep(time.Duration(ms) * time.Millisecond)
	return StatusOK
}
