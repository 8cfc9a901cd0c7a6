package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/tof"
)

type registry int

const DefaultMCP23017Address = 0x21

const (
	IODIRA registry = iota
	IOPOLA
	GPINTENA
	DEFVALA
	INTCONA
	IOCONA
	GPPUA
	INTFA
	INTCAPA
	GPIOA
	OLATA
	IODIRB
	IOPOLB
	GPINTENB
	DEFVALB
	INTCONB
	IOCONB
	GPPUB
	INTFB
	INTCAPB
	GPIOB
	OLATB
)

// BankAddr maps registers to addresses for IOCON.BANK = 0 and 1.
var BankAddr = []map[registry]byte{
	{
		IODIRA:   0x00,
		IOPOLA:   0x02,
		GPINTENA: 0x04,
		DEFVALA:  0x06,
		INTCONA:  0x08,
		IOCONA:   0x0A,
		GPPUA:    0x0C,
		INTFA:    0x0E,
		INTCAPA:  0x10,
		GPIOA:    0x12,
		OLATA:    0x14,
		IODIRB:   0x01,
		IOPOLB:   0x03,
		GPINTENB: 0x05,
		DEFVALB:  0x07,
		INTCONB:  0x09,
		IOCONB:   0x0B,
		GPPUB:    0x0D,
		INTFB:    0x0F,
		INTCAPB:  0x11,
		GPIOB:    0x13,
		OLATB:    0x15,
	},
	{
		IODIRA:   0x00,
		IOPOLA:   0x01,
		GPINTENA: 0x02,
		DEFVALA:  0x03,
		INTCONA:  0x04,
		IOCONA:   0x05,
		GPPUA:    0x06,
		INTFA:    0x07,
		INTCAPA:  0x08,
		GPIOA:    0x09,
		OLATA:    0x0A,
		IODIRB:   0x10,
		IOPOLB:   0x11,
		GPINTENB: 0x12,
		DEFVALB:  0x13,
		INTCONB:  0x14,
		IOCONB:   0x15,
		GPPUB:    0x16,
		INTFB:    0x17,
		INTCAPB:  0x18,
		GPIOB:    0x19,
		OLATB:    0x1A,
	},
}

// Port selects one of the two 8-bit I/O ports.
type Port int

const (
	PortA Port = iota
	PortB
)

func (p Port) String() string {
	if p == PortB {
		return "B"
	}
	return "A"
}

func (p Port) registers() (iodir, olat registry) {
	if p == PortB {
		return IODIRB, OLATB
	}
	return IODIRA, OLATA
}

/*
	Steps to read GPIO:

1. Set 0xFF to IODIR registry (all inputs) - 0x00(A)/0x01(B)
2. Configure pull-up? 0x06
3. Read port register 0x09

Driving an output (e.g. a sensor LPn line) clears the IODIR bit and sets
the OLAT bit.
*/
type MCP23017 struct {
	mx         sync.Mutex
	transport  tof.I2CBus
	bank       int
	address    byte
	retryLimit int
}

type MCP23017Opt func(*MCP23017)

// WithBank selects the register layout matching IOCON.BANK.
func WithBank(bank int) MCP23017Opt {
	return func(m *MCP23017) {
		if bank == 1 {
			m.bank = 1
		}
	}
}

// WithRetryLimit sets how many times a busy bus is released and retried.
func WithRetryLimit(limit int) MCP23017Opt {
	return func(m *MCP23017) {
		if limit > 0 {
			m.retryLimit = limit
		}
	}
}

func NewMCP23017(bus tof.I2CBus, address byte, opts ...MCP23017Opt) *MCP23017 {
	m := &MCP23017{retryLimit: 1, transport: bus, address: address}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitA sets IODIR registry to inout on I/O pool A
func (m *MCP23017) InitA(ctx context.Context, inout byte) error {
	return m.writeRegistry(ctx, IODIRA, inout, "initialize gpio A set")
}

// InitB sets IODIR registry to inout on I/O pool B
func (m *MCP23017) InitB(ctx context.Context, inout byte) error {
	return m.writeRegistry(ctx, IODIRB, inout, "initialize gpio B set")
}

// PullUpA sets up pull up resistors on set A
func (m *MCP23017) PullUpA(ctx context.Context, settings byte) error {
	return m.writeRegistry(ctx, GPPUA, settings, "set pull-up on gpio A set")
}

// PullUpB sets up pull up resistors on set B
func (m *MCP23017) PullUpB(ctx context.Context, settings byte) error {
	return m.writeRegistry(ctx, GPPUB, settings, "set pull-up on gpio B set")
}

func (m *MCP23017) Read(ctx context.Context) ([]byte, error) {
	res := make([]byte, 2)
	var err error
	res[0], err = m.ReadA(ctx)
	if err != nil {
		return nil, err
	}
	res[1], err = m.ReadB(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReadA reads gpio A set values
func (m *MCP23017) ReadA(ctx context.Context) (byte, error) {
	return m.readRegistry(ctx, GPIOA, "read gpio A set")
}

// ReadB reads gpio B set values
func (m *MCP23017) ReadB(ctx context.Context) (byte, error) {
	return m.readRegistry(ctx, GPIOB, "read gpio B set")
}

// ReadSettings reads contents of IOCON registry
func (m *MCP23017) ReadSettings(ctx context.Context) (byte, error) {
	return m.readRegistry(ctx, IOCONA, "read settings")
}

// WriteSettings writes IOCON; both ports share the register.
func (m *MCP23017) WriteSettings(ctx context.Context, settings byte) error {
	err := m.writeRegistry(ctx, IOCONA, settings, "write settings")
	if err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	m.bank = 0
	if settings&0x80 != 0 {
		m.bank = 1
	}
	return nil
}

// SetOutput configures a pin as output and drives it.
func (m *MCP23017) SetOutput(ctx context.Context, port Port, pin int, high bool) error {
	if pin < 0 || pin > 7 {
		return fmt.Errorf("invalid pin %s%d", port, pin)
	}
	iodir, olat := port.registers()
	bit := byte(1) << pin
	latch, err := m.readRegistry(ctx, olat, "read output latch")
	if err != nil {
		return err
	}
	if high {
		latch |= bit
	} else {
		latch &^= bit
	}
	// latch before direction
	err = m.writeRegistry(ctx, olat, latch, "write output latch")
	if err != nil {
		return err
	}
	dir, err := m.readRegistry(ctx, iodir, "read direction")
	if err != nil {
		return err
	}
	if dir&bit == 0 {
		return nil
	}
	return m.writeRegistry(ctx, iodir, dir&^bit, "write direction")
}

// Pin returns an output line of the expander.
func (m *MCP23017) Pin(port Port, pin int) *ExpanderPin {
	return &ExpanderPin{expander: m, port: port, pin: pin}
}

var _ tof.Pin = &ExpanderPin{}

type ExpanderPin struct {
	expander *MCP23017
	port     Port
	pin      int
}

func (p *ExpanderPin) Set(ctx context.Context, high bool) error {
	return p.expander.SetOutput(ctx, p.port, p.pin, high)
}

func (m *MCP23017) writeRegistry(ctx context.Context, reg registry, value byte, what string) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = m.write(ctx, reg, value)
		if err == nil {
			return nil
		}
		if !errors.Is(err, tof.ErrBusBusy) {
			return fmt.Errorf("could not %s: %w", what, err)
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("could not %s (retry limit reached): %w", what, err)
}

func (m *MCP23017) readRegistry(ctx context.Context, reg registry, what string) (byte, error) {
	var err error
	var res byte
	for i := m.retryLimit; i > 0; i-- {
		res, err = m.read(ctx, reg)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, tof.ErrBusBusy) {
			return res, fmt.Errorf("could not %s: %w", what, err)
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return res, fmt.Errorf("could not %s (retry limit reached): %w", what, err)
}

func (m *MCP23017) write(ctx context.Context, reg registry, value byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg], value})
}

func (m *MCP23017) read(ctx context.Context, reg registry) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	err := m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg]})
	if err != nil {
		return 0x00, fmt.Errorf("could not set I/O registry address: %w", err)
	}
	buf := make([]byte, 1)
	err = m.transport.ReadFromAddr(ctx, m.address, buf)
	if err != nil {
		return 0x00, fmt.Errorf("could not read gpio data: %w", err)
	}
	return buf[0], nil
}
