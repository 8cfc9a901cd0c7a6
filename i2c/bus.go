package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/tof"
	"github.com/mklimuk/tof/snsctx"
)

var _ tof.I2CBus = &GenericBus{}
var _ tof.RegisterBus = &GenericBus{}

// GenericBus is a host I2C bus (e.g. /dev/i2c-1) opened through periph.
type GenericBus struct {
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus: bus,
	}, nil
}

// SetSpeed sets the bus clock in Hz.
func (b *GenericBus) SetSpeed(hz int64) error {
	err := b.bus.SetSpeed(physic.Frequency(hz) * physic.Hertz)
	if err != nil {
		return fmt.Errorf("could not set i2c bus speed to %d Hz: %w", hz, err)
	}
	return nil
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// ReadRegister writes the register pointer and reads the data back with a
// repeated start.
func (b *GenericBus) ReadRegister(ctx context.Context, address byte, register uint16, buffer []byte) error {
	ptr := [2]byte{byte(register >> 8), byte(register)}
	err := b.bus.Tx(uint16(address), ptr[:], buffer)
	if err != nil {
		return fmt.Errorf("could not read register %#04x from %#x: %w", register, address, err)
	}
	snsctx.Trace(ctx, "read", address, register, buffer)
	return nil
}

func (b *GenericBus) WriteRegister(ctx context.Context, address byte, register uint16, data []byte) error {
	snsctx.Trace(ctx, "write", address, register, data)
	err := b.bus.Tx(uint16(address), tof.RegisterFrame(register, data), nil)
	if err != nil {
		return fmt.Errorf("could not write register %#04x on %#x: %w", register, address, err)
	}
	return nil
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
