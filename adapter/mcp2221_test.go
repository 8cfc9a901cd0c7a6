package adapter

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/tof"
)

// fakeBridge answers HID reports like an MCP2221 with a single 16-bit
// register device behind it.
type fakeBridge struct {
	requests  [][]byte
	response  []byte
	memory    map[uint16]byte
	pointer   uint16
	pending   []byte
	expected  int
	readQueue []byte
	notReady  int
	busy      bool
	gpio      [GPIOCount]int
	closed    int
}

func newFakeBridge() *fakeBridge {
	f := &fakeBridge{memory: map[uint16]byte{}, response: make([]byte, 64)}
	for i := range f.gpio {
		f.gpio[i] = -1
	}
	return f
}

func (f *fakeBridge) Write(b []byte) (int, error) {
	req := append([]byte(nil), b...)
	f.requests = append(f.requests, req)
	clear(f.response)
	f.response[0] = req[0]
	if f.busy {
		f.response[1] = statusBusy
		return len(b), nil
	}
	switch req[0] {
	case cmdI2CWrite, cmdI2CNoStop:
		total := int(binary.LittleEndian.Uint16(req[1:3]))
		if len(f.pending) == 0 {
			f.expected = total
		}
		f.pending = append(f.pending, req[4:4+min(reportPayload, f.expected-len(f.pending))]...)
		if len(f.pending) == f.expected {
			f.pointer = uint16(f.pending[0])<<8 | uint16(f.pending[1])
			for i, v := range f.pending[2:] {
				f.memory[f.pointer+uint16(i)] = v
			}
			f.pending = nil
		}
	case cmdI2CRestart, cmdI2CRead:
		n := int(binary.LittleEndian.Uint16(req[1:3]))
		f.readQueue = f.readQueue[:0]
		for i := range n {
			f.readQueue = append(f.readQueue, f.memory[f.pointer+uint16(i)])
		}
	case cmdGetI2CData:
		if f.notReady > 0 {
			f.notReady--
			f.response[3] = stateNotReady
			break
		}
		n := min(reportPayload, len(f.readQueue))
		f.response[3] = byte(n)
		copy(f.response[4:], f.readQueue[:n])
		f.readQueue = f.readQueue[n:]
	case cmdSetGPIO:
		for pin := range GPIOCount {
			i := 2 + 4*pin
			if req[i] == 1 {
				f.gpio[pin] = int(req[i+1])
			}
		}
	case cmdStatus:
		f.response[14] = req[4]
		f.response[3] = req[3]
	}
	return len(b), nil
}

func (f *fakeBridge) Read(b []byte) (int, error) {
	return copy(b, f.response), nil
}

func (f *fakeBridge) Close() error {
	f.closed++
	return nil
}

func newTestAdapter(f *fakeBridge) *MCP2221 {
	return NewMCP2221(WithResponseWait(0), withDevice(func(int) (hidDevice, error) {
		return f, nil
	}))
}

func TestMCP2221_WriteRegisterSpansReports(t *testing.T) {
	f := newFakeBridge()
	d := newTestAdapter(f)
	require.NoError(t, d.Open())

	data := make([]byte, 150)
	for i := range data {
		data[i] = byte(i)
	}
	err := d.WriteRegister(context.Background(), 0x29, 0x2c04, data)
	require.NoError(t, err)

	// 152 frame bytes in reports of 60
	require.Len(t, f.requests, 3)
	for _, req := range f.requests {
		assert.Equal(t, byte(cmdI2CWrite), req[0])
		assert.Equal(t, uint16(152), binary.LittleEndian.Uint16(req[1:3]))
		assert.Equal(t, byte(0x52), req[3])
	}
	assert.Equal(t, []byte{0x2c, 0x04}, f.requests[0][4:6])
	for i, v := range data {
		assert.Equal(t, v, f.memory[0x2c04+uint16(i)])
	}
	require.NoError(t, d.Close())
	assert.Equal(t, 1, f.closed)
}

func TestMCP2221_ReadRegister(t *testing.T) {
	f := newFakeBridge()
	for i := range 130 {
		f.memory[0x0100+uint16(i)] = byte(i * 3)
	}
	f.notReady = 2
	d := newTestAdapter(f)
	require.NoError(t, d.Open())

	buf := make([]byte, 130)
	err := d.ReadRegister(context.Background(), 0x29, 0x0100, buf)
	require.NoError(t, err)
	for i, v := range buf {
		assert.Equal(t, byte(i*3), v)
	}
	assert.Equal(t, byte(cmdI2CNoStop), f.requests[0][0])
	assert.Equal(t, byte(cmdI2CRestart), f.requests[1][0])
	assert.Equal(t, byte(0x53), f.requests[1][3])
	// two not-ready polls then 60 + 60 + 10
	assert.Len(t, f.requests, 2+2+3)
}

func TestMCP2221_ReadRegisterNeverReady(t *testing.T) {
	f := newFakeBridge()
	f.notReady = 100
	d := NewMCP2221(WithResponseWait(0), WithPollLimit(3), withDevice(func(int) (hidDevice, error) {
		return f, nil
	}))
	err := d.ReadRegister(context.Background(), 0x29, 0x0000, make([]byte, 4))
	assert.ErrorContains(t, err, "not ready after 3 polls")
	// opened and closed around every command when not kept open
	assert.Equal(t, len(f.requests), f.closed)
}

func TestMCP2221_Busy(t *testing.T) {
	f := newFakeBridge()
	f.busy = true
	d := newTestAdapter(f)
	err := d.WriteRegister(context.Background(), 0x29, 0x7fff, []byte{0x00})
	assert.True(t, errors.Is(err, tof.ErrBusBusy))
	err = d.ReadRegister(context.Background(), 0x29, 0x0000, make([]byte, 1))
	assert.True(t, errors.Is(err, tof.ErrBusBusy))
}

func TestMCP2221_Pin(t *testing.T) {
	f := newFakeBridge()
	d := newTestAdapter(f)
	var pin tof.Pin = d.Pin(2)
	require.NoError(t, pin.Set(context.Background(), true))
	assert.Equal(t, [GPIOCount]int{-1, -1, 1, -1}, f.gpio)
	require.NoError(t, pin.Set(context.Background(), false))
	assert.Equal(t, [GPIOCount]int{-1, -1, 0, -1}, f.gpio)
	req := f.requests[0]
	assert.Equal(t, byte(1), req[2+4*2+2], "direction altered")
	assert.Equal(t, byte(GPIOModeOut), req[2+4*2+3])

	assert.Error(t, d.WriteGPIO(context.Background(), 4, true))
}

func TestMCP2221_SetSpeed(t *testing.T) {
	f := newFakeBridge()
	d := newTestAdapter(f)
	require.NoError(t, d.SetSpeed(context.Background(), 400_000))
	assert.Equal(t, byte(27), f.requests[0][4])
	assert.Error(t, d.SetSpeed(context.Background(), 0))
	assert.Error(t, d.SetSpeed(context.Background(), 10_000))
}

func TestMCP2221_OpenFailure(t *testing.T) {
	d := NewMCP2221(withDevice(func(int) (hidDevice, error) {
		return nil, ErrDeviceNotFound
	}))
	assert.ErrorIs(t, d.Open(), ErrDeviceNotFound)
	_, err := d.Status(context.Background())
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestBufferToStatus(t *testing.T) {
	buf := make([]byte, 64)
	binary.LittleEndian.PutUint16(buf[9:11], 2050)
	binary.LittleEndian.PutUint16(buf[11:13], 60)
	buf[14] = 27
	buf[16] = 0x52
	s := bufferToStatus(buf)
	assert.Equal(t, uint16(2050), s.LastWriteRequestedSize)
	assert.Equal(t, uint16(60), s.LastWriteSentSize)
	assert.Equal(t, 27, s.I2CSpeedDivider)
	assert.Equal(t, "5200", s.CurrentAddress)
}
