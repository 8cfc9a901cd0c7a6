package gpio

import (
	"context"
	"fmt"

	"gobot.io/x/gobot/v2"
	gobotgpio "gobot.io/x/gobot/v2/drivers/gpio"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/tof"
)

var _ tof.Pin = &GobotPin{}

// GobotPin drives a board header pin through a gobot adaptor.
type GobotPin struct {
	driver  *gobotgpio.DirectPinDriver
	adaptor gobot.Connection
	owned   bool
}

// NewGobotPin starts a direct pin driver on an already connected adaptor.
func NewGobotPin(adaptor gobot.Connection, pin string) (*GobotPin, error) {
	driver := gobotgpio.NewDirectPinDriver(adaptor, pin)
	err := driver.Start()
	if err != nil {
		return nil, fmt.Errorf("could not start pin %s driver: %w", pin, err)
	}
	return &GobotPin{driver: driver, adaptor: adaptor}, nil
}

// NewNanoPiPin opens a NanoPi NEO header pin (e.g. "7").
func NewNanoPiPin(pin string) (*GobotPin, error) {
	adaptor := nanopi.NewNeoAdaptor()
	err := adaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	p, err := NewGobotPin(adaptor, pin)
	if err != nil {
		_ = adaptor.Finalize()
		return nil, err
	}
	p.owned = true
	return p, nil
}

func (p *GobotPin) Set(ctx context.Context, high bool) error {
	var level byte
	if high {
		level = 1
	}
	err := p.driver.DigitalWrite(level)
	if err != nil {
		return fmt.Errorf("could not write pin %s: %w", p.driver.Pin(), err)
	}
	return nil
}

// Close halts the driver and finalizes the adaptor if the pin opened it.
func (p *GobotPin) Close() error {
	err := p.driver.Halt()
	if p.owned {
		if ferr := p.adaptor.Finalize(); err == nil {
			err = ferr
		}
	}
	return err
}
