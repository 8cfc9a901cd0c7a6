package vl53l5cx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/tof"
)

// Register map of the emulated device. Page 0 holds identification and the
// bus address, pages 9 to 11 receive the firmware and page 2 holds the
// runtime configuration and the results window.
const (
	regPageSelect uint16 = 0x7fff
	regDeviceID   uint16 = 0x0000
	regRevisionID uint16 = 0x0001
	regI2CAddress uint16 = 0x0004

	regControl     uint16 = 0x2000
	regResolution  uint16 = 0x2010
	regFrequency   uint16 = 0x2011
	regSharpener   uint16 = 0x2012
	regTargetOrder uint16 = 0x2013
	regRangingMode uint16 = 0x2014
	regPowerMode   uint16 = 0x2015
	regMotion      uint16 = 0x2016
	regIntegration uint16 = 0x2018
	regMotionRange uint16 = 0x201c
	regStream      uint16 = 0x2c00
	regResults     uint16 = 0x2c04

	pageBoot     byte = 0x00
	pageMain     byte = 0x02
	pageFirmware byte = 0x09

	firmwarePages    = 3
	firmwarePageSize = 0x8000

	deviceID   byte = 0xf0
	revisionID byte = 0x02

	controlStop  byte = 0x00
	controlStart byte = 0x01

	streamStatusOK byte = 0x05
)

// ErrNoAcknowledge is returned by EmulatedDevice for transfers to an address
// nothing answers at.
var ErrNoAcknowledge = errors.New("no acknowledge from device")

// FrameFunc fills f with the scene seen on frame number seq. Resolution and
// motion flag of f are already set.
type FrameFunc func(seq int, f *Frame)

var _ tof.RegisterBus = &EmulatedDevice{}
var _ tof.I2CBus = &EmulatedDevice{}

// EmulatedDevice is a bus with a single emulated sensor on it. It keeps a
// register file, accepts the firmware upload and serves generated frames from
// its results window while ranging. It is used with SimEngine to run the
// whole stack without hardware.
//
// Example usage:
//
//	dev := NewEmulatedDevice(DefaultAddress, nil)
//	sensor, err := New(ctx, NewSimEngine(), dev)
type EmulatedDevice struct {
	mu       sync.Mutex
	address  byte
	page     byte
	regs     map[uint32]byte
	firmware int
	ranging  bool
	stream   byte
	seq      int
	frame    Frame
	results  []byte
	scene    FrameFunc
	writes   int
	reads    int
}

// NewEmulatedDevice returns a device answering at the 7-bit address. A nil
// scene uses DefaultScene.
func NewEmulatedDevice(address byte, scene FrameFunc) *EmulatedDevice {
	if scene == nil {
		scene = DefaultScene
	}
	return &EmulatedDevice{
		address: address,
		regs:    map[uint32]byte{},
		results: DefaultLayout.NewBuffer(),
		scene:   scene,
		stream:  0xff,
	}
}

// Address returns the address the device currently answers at.
func (d *EmulatedDevice) Address() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.address
}

// Booted reports whether a complete firmware image was received.
func (d *EmulatedDevice) Booted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.booted()
}

func (d *EmulatedDevice) booted() bool {
	return d.firmware >= firmwarePages*firmwarePageSize
}

// Transfers returns the number of register reads and writes served.
func (d *EmulatedDevice) Transfers() (reads, writes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads, d.writes
}

func key(page byte, register uint16) uint32 {
	return uint32(page)<<16 | uint32(register)
}

func (d *EmulatedDevice) ack(address byte) error {
	if address != d.address {
		return fmt.Errorf("%w %#02x", ErrNoAcknowledge, address)
	}
	return nil
}

func (d *EmulatedDevice) ReadRegister(ctx context.Context, address byte, register uint16, buffer []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ack(address); err != nil {
		return err
	}
	d.reads++
	switch {
	case d.page == pageBoot && register == regDeviceID:
		d.fill(register, buffer, map[uint16]byte{regDeviceID: deviceID, regRevisionID: revisionID})
	case d.page == pageMain && register == regStream:
		d.poll(buffer)
	case d.page == pageMain && register >= regResults:
		offset := int(register - regResults)
		for i := range buffer {
			if offset+i < len(d.results) {
				buffer[i] = d.results[offset+i]
			} else {
				buffer[i] = 0
			}
		}
	default:
		for i := range buffer {
			buffer[i] = d.regs[key(d.page, register+uint16(i))]
		}
	}
	return nil
}

func (d *EmulatedDevice) fill(register uint16, buffer []byte, fixed map[uint16]byte) {
	for i := range buffer {
		r := register + uint16(i)
		if v, ok := fixed[r]; ok {
			buffer[i] = v
			continue
		}
		buffer[i] = d.regs[key(d.page, r)]
	}
}

// poll serves the stream status block. Every poll while ranging produces a
// new frame.
func (d *EmulatedDevice) poll(buffer []byte) {
	if d.ranging {
		d.next()
	}
	status := []byte{d.stream, streamStatusOK, 0, 0}
	copy(buffer, status)
}

func (d *EmulatedDevice) next() {
	d.seq++
	d.stream++
	if d.stream == 0xff {
		d.stream = 0
	}
	d.frame = Frame{
		Resolution:    Resolution(d.regs[key(pageMain, regResolution)]),
		MotionEnabled: d.regs[key(pageMain, regMotion)] != 0,
	}
	if !d.frame.Resolution.valid() {
		d.frame.Resolution = Resolution4x4
	}
	d.scene(d.seq, &d.frame)
	w, _ := DefaultLayout.writer(d.results)
	w.encode(&d.frame)
}

func (d *EmulatedDevice) WriteRegister(ctx context.Context, address byte, register uint16, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ack(address); err != nil {
		return err
	}
	d.writes++
	if register == regPageSelect {
		if len(data) != 1 {
			return fmt.Errorf("page select takes 1 byte, got %d", len(data))
		}
		d.page = data[0]
		return nil
	}
	if d.page >= pageFirmware && d.page < pageFirmware+firmwarePages {
		d.firmware += len(data)
		return nil
	}
	switch {
	case d.page == pageBoot && register == regI2CAddress && len(data) == 1:
		d.address = data[0]
		return nil
	case d.page == pageMain && register == regControl && len(data) == 1:
		return d.control(data[0])
	}
	for i, b := range data {
		d.regs[key(d.page, register+uint16(i))] = b
	}
	return nil
}

func (d *EmulatedDevice) control(cmd byte) error {
	switch cmd {
	case controlStart:
		if !d.booted() {
			return errors.New("firmware not loaded")
		}
		d.ranging = true
	case controlStop:
		d.ranging = false
	default:
		return fmt.Errorf("unknown control command %#02x", cmd)
	}
	return nil
}

// ReadFromAddr acknowledges probes at the device address.
func (d *EmulatedDevice) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ack(address)
}

func (d *EmulatedDevice) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ack(address)
}

func (d *EmulatedDevice) Release(ctx context.Context) error {
	return nil
}

// DefaultScene is a wall at 1200 mm with a box at 450 mm drifting across
// the field of view one zone every ten frames.
func DefaultScene(seq int, f *Frame) {
	width := f.Resolution.Width()
	col := (seq / 10) % (width - 1)
	f.SiliconTempC = 32
	for zone := 0; zone < f.Zones(); zone++ {
		x, y := zone%width, zone/width
		near := (x == col || x == col+1) && y >= width/2-1 && y <= width/2
		f.AmbientPerSPAD[zone] = 3
		f.SPADsEnabled[zone] = 1024
		f.TargetsDetected[zone] = 1
		for t := 0; t < TargetsPerZone; t++ {
			f.TargetStatus[zone][t] = RangeValid
			f.RangeSigmaMM[zone][t] = 4
			if near {
				f.DistanceMM[zone][t] = int16(450 + 10*t)
				f.Reflectance[zone][t] = 70
				f.SignalPerSPAD[zone][t] = 1800
			} else {
				f.DistanceMM[zone][t] = int16(1200 + 10*t + (x+y)%3)
				f.Reflectance[zone][t] = 20
				f.SignalPerSPAD[zone][t] = 300
			}
			if t > 0 && !near {
				f.TargetStatus[zone][t] = RangeNoTarget
				f.DistanceMM[zone][t] = 0
			}
		}
	}
	// corner zones see nothing
	f.TargetsDetected[0] = 0
	f.TargetStatus[0][0] = RangeNoTarget
	f.DistanceMM[0][0] = 0
	f.Reflectance[0][0] = 0
	if f.MotionEnabled {
		f.Motion.Status = 0
		f.Motion.Aggregates = 16
		for i := 0; i < 16; i++ {
			if i%4 == col%4 {
				f.Motion.Motion[i] = 120
				f.Motion.DetectedAggregates++
			}
		}
		f.Motion.GlobalIndicator1 = uint32(f.Motion.DetectedAggregates) * 120
		f.Motion.GlobalIndicator2 = uint32(seq)
	}
}
