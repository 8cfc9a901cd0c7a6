package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/tof"
	"github.com/mklimuk/tof/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// reportPayload is the number of I2C data bytes one HID report carries.
const reportPayload = 60

const (
	cmdStatus       = 0x10
	cmdGetI2CData   = 0x40
	cmdSetGPIO      = 0x50
	cmdGetGPIO      = 0x51
	cmdI2CWrite     = 0x90
	cmdI2CRead      = 0x91
	cmdI2CRestart   = 0x93
	cmdI2CNoStop    = 0x94
	cmdGetGPIOParam = 0xB0
	cmdSetGPIOParam = 0xB1
)

const (
	stateReadError   = 0x41
	stateNotReady    = 0x7F
	statusBusy       = 0x01
	statusSpeedError = 0x21
	cancelTransfer   = 0x10
	setSpeed         = 0x20
	adapterClockHz   = 12_000_000
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var _ tof.I2CBus = &MCP2221{}
var _ tof.RegisterBus = &MCP2221{}

// hidDevice is the part of *hid.Device the bridge talks to.
type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type MCP2221 struct {
	mx           sync.Mutex
	dev          hidDevice
	open         func(index int) (hidDevice, error)
	index        int
	request      []byte
	response     []byte
	responseWait time.Duration
	pollLimit    int
}

type MCP2221Opt func(*MCP2221)

// WithResponseWait sets the pause between a request and reading its response.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

// WithDeviceIndex selects one of several attached adapters.
func WithDeviceIndex(index int) MCP2221Opt {
	return func(d *MCP2221) {
		d.index = index
	}
}

// WithPollLimit bounds how many times a pending read is polled for data.
func WithPollLimit(limit int) MCP2221Opt {
	return func(d *MCP2221) {
		d.pollLimit = limit
	}
}

func withDevice(open func(index int) (hidDevice, error)) MCP2221Opt {
	return func(d *MCP2221) {
		d.open = open
	}
}

type MCP2221Status struct {
	I2CDataBufferCounter   int
	I2CSpeedDivider        int
	I2CTimeout             int
	CurrentAddress         string
	LastWriteRequestedSize uint16
	LastWriteSentSize      uint16
	ReadPending            int
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// alternate function of GP0
	GPIO0LedUartRx GPIODesignation = 0b00000001
	GPIO0SSPND     GPIODesignation = 0b00000010
	// dedicated function of GP1
	GPIO1ClockOutput        GPIODesignation = 0b00000001
	GPIO1ADC1               GPIODesignation = 0b00000010
	GPIO1LedUartTx          GPIODesignation = 0b00000011
	GPIO1InterruptDetection GPIODesignation = 0b00000100
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

// GPIOCount is the number of general purpose pins on the adapter.
const GPIOCount = 4

type MCP2221GPIOValues struct {
	GPIO0Mode  GPIOMode `yaml:"GP0_mode"`
	GPIO0Value byte     `yaml:"GPIO0"`
	GPIO1Mode  GPIOMode `yaml:"GP1_mode"`
	GPIO1Value byte     `yaml:"GPIO1"`
	GPIO2Mode  GPIOMode `yaml:"GP2_mode"`
	GPIO2Value byte     `yaml:"GPIO2"`
	GPIO3Mode  GPIOMode `yaml:"GP3_mode"`
	GPIO3Value byte     `yaml:"GPIO3"`
}

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		open:         openHID,
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: time.Millisecond,
		pollLimit:    50,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Devices lists attached MCP2221 adapters in the order WithDeviceIndex uses.
func Devices() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

func openHID(index int) (hidDevice, error) {
	devs := Devices()
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d (%d attached)", index, len(devs))
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// Open keeps the HID device open until Close. Without it every command opens
// and closes the device.
func (d *MCP2221) Open() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev != nil {
		return nil
	}
	dev, err := d.open(d.index)
	if err != nil {
		return err
	}
	d.dev = dev
	return nil
}

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.write(ctx, cmdI2CWrite, address, buffer)
	if err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.read(ctx, cmdI2CRead, address, buffer)
	if err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	return nil
}

// ReadRegister sends the register pointer without a stop condition and reads
// the data back with a repeated start.
func (d *MCP2221) ReadRegister(ctx context.Context, address byte, register uint16, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	ptr := []byte{byte(register >> 8), byte(register)}
	err := d.write(ctx, cmdI2CNoStop, address, ptr)
	if err != nil {
		return fmt.Errorf("could not set register pointer %#04x on %#x: %w", register, address, err)
	}
	err = d.read(ctx, cmdI2CRestart, address, buffer)
	if err != nil {
		return fmt.Errorf("could not read register %#04x from %#x: %w", register, address, err)
	}
	snsctx.Trace(ctx, "read", address, register, buffer)
	return nil
}

// WriteRegister writes a register frame as one I2C transfer spread over as
// many HID reports as needed.
func (d *MCP2221) WriteRegister(ctx context.Context, address byte, register uint16, data []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	snsctx.Trace(ctx, "write", address, register, data)
	err := d.write(ctx, cmdI2CWrite, address, tof.RegisterFrame(register, data))
	if err != nil {
		return fmt.Errorf("could not write register %#04x on %#x: %w", register, address, err)
	}
	return nil
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, frame []byte) error {
	if len(frame) > 0xFFFF {
		return fmt.Errorf("transfer of %d bytes exceeds adapter limit", len(frame))
	}
	pos := 0
	for {
		end := min(pos+reportPayload, len(frame))
		d.resetBuffers()
		d.request[0] = cmd
		binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(frame)))
		d.request[3] = address << 1
		copy(d.request[4:], frame[pos:end])
		err := d.send(ctx, true)
		if err != nil {
			return err
		}
		if d.response[1] == statusBusy {
			slog.DebugContext(ctx, "adapter busy", "address", address, "offset", pos)
			return tof.ErrBusBusy
		}
		pos = end
		if pos >= len(frame) {
			return nil
		}
	}
}

func (d *MCP2221) read(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	if len(buffer) > 0xFFFF {
		return fmt.Errorf("transfer of %d bytes exceeds adapter limit", len(buffer))
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx, true)
	if err != nil {
		return err
	}
	if d.response[1] == statusBusy {
		slog.DebugContext(ctx, "adapter busy", "address", address)
		return tof.ErrBusBusy
	}
	pos := 0
	polls := 0
	for pos < len(buffer) {
		d.resetBuffers()
		d.request[0] = cmdGetI2CData
		err = d.send(ctx, true)
		if err != nil {
			return fmt.Errorf("error getting read data from adapter: %w", err)
		}
		if d.response[1] == stateReadError {
			return fmt.Errorf("error reading the I2C slave data from the I2C engine")
		}
		n := int(d.response[3])
		if n == stateNotReady || n == 0 {
			polls++
			if polls > d.pollLimit {
				return fmt.Errorf("read data not ready after %d polls (%d of %d bytes)", polls-1, pos, len(buffer))
			}
			continue
		}
		if n > reportPayload || pos+n > len(buffer) {
			return fmt.Errorf("invalid data size byte; expected at most %d, got %d", len(buffer)-pos, n)
		}
		copy(buffer[pos:], d.response[4:4+n])
		pos += n
		polls = 0
	}
	return nil
}

// SetSpeed sets the I2C clock in Hz.
func (d *MCP2221) SetSpeed(ctx context.Context, hz int64) error {
	if hz <= 0 || adapterClockHz/hz < 4 || adapterClockHz/hz-3 > 0xFF {
		return fmt.Errorf("unsupported i2c speed %d Hz", hz)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = setSpeed
	d.request[4] = byte(adapterClockHz/hz - 3)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set speed command failed: %w", err)
	}
	if d.response[3] == statusSpeedError {
		return fmt.Errorf("adapter refused speed %d Hz: %w", hz, tof.ErrBusBusy)
	}
	return nil
}

// WriteGPIO drives a general purpose pin as an output.
func (d *MCP2221) WriteGPIO(ctx context.Context, pin int, high bool) error {
	if pin < 0 || pin >= GPIOCount {
		return fmt.Errorf("invalid GPIO pin %d", pin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetGPIO
	i := 2 + 4*pin
	d.request[i] = 1
	if high {
		d.request[i+1] = 1
	}
	d.request[i+2] = 1
	d.request[i+3] = byte(GPIOModeOut)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GPIO %d command failed: %w", pin, err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

// Pin returns one of the adapter GP lines as an output pin.
func (d *MCP2221) Pin(pin int) *MCP2221Pin {
	return &MCP2221Pin{dev: d, pin: pin}
}

var _ tof.Pin = &MCP2221Pin{}

type MCP2221Pin struct {
	dev *MCP2221
	pin int
}

func (p *MCP2221Pin) Set(ctx context.Context, high bool) error {
	return p.dev.WriteGPIO(ctx, p.pin, high)
}

func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetGPIOParam
	d.request[1] = 0x01
	d.request[2] = byte(params.GPIO0Designation) | byte(params.GPIO0Mode)
	d.request[3] = byte(params.GPIO1Designation) | byte(params.GPIO1Mode)
	d.request[4] = byte(params.GPIO2Designation) | byte(params.GPIO2Mode)
	d.request[5] = byte(params.GPIO3Designation) | byte(params.GPIO3Mode)
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIO
	err := d.send(ctx, true)
	var res MCP2221GPIOValues
	if err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return res, ErrCommandFailed
	}
	modes := [GPIOCount]*GPIOMode{&res.GPIO0Mode, &res.GPIO1Mode, &res.GPIO2Mode, &res.GPIO3Mode}
	values := [GPIOCount]*byte{&res.GPIO0Value, &res.GPIO1Value, &res.GPIO2Value, &res.GPIO3Value}
	for pin := range GPIOCount {
		*values[pin] = d.response[2+2*pin]
		*modes[pin] = GPIOModeNoOperation
		if mode := d.response[3+2*pin]; mode != byte(GPIOModeNoOperation) {
			*modes[pin] = GPIOMode(mode << 3)
		}
	}
	return res, nil
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIOParam
	d.request[1] = 0x01
	err := d.send(ctx, true)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(d.response[4] & gpioModeMask),
		GPIO0Designation: GPIODesignation(d.response[4] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(d.response[5] & gpioModeMask),
		GPIO1Designation: GPIODesignation(d.response[5] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(d.response[6] & gpioModeMask),
		GPIO2Designation: GPIODesignation(d.response[6] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(d.response[7] & gpioModeMask),
		GPIO3Designation: GPIODesignation(d.response[7] & gpioOperationMask),
	}, nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9-10: requested I2C transfer length (LE)
		11-12: already transferred number of bytes (LE)
		13: internal I2C data buffer counter
		14: current I2C communication speed divider value
		15: current I2C timeout value
		16-17: I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = cancelTransfer
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	dev := d.dev
	if dev == nil {
		var err error
		dev, err = d.open(d.index)
		if err != nil {
			return err
		}
		defer func() {
			err := dev.Close()
			if err != nil {
				slog.WarnContext(ctx, "could not close adapter", "error", err)
			}
		}()
	}
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		slog.DebugContext(ctx, "sending message to adapter", "dump", hex.EncodeToString(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	if d.responseWait > 0 {
		time.Sleep(d.responseWait)
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("response to %#x answers command %#x", d.request[0], d.response[0])
	}
	if verbose {
		slog.DebugContext(ctx, "read message from adapter", "dump", hex.EncodeToString(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
