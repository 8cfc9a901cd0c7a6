package tof

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

type I2CDevice interface {
	BusReader
	BusWriter
}

// RegisterReader reads len(buffer) bytes starting at a 16-bit register. The
// big-endian register address is written and the data read back in a single
// transaction, without a stop condition in between.
type RegisterReader interface {
	ReadRegister(ctx context.Context, address byte, register uint16, buffer []byte) error
}

// RegisterWriter writes data starting at a 16-bit register in one
// address-prefixed transaction.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, address byte, register uint16, data []byte) error
}

// RegisterBus is a bus of devices exposing a flat, 16-bit addressed register
// space. Addresses are 7-bit.
type RegisterBus interface {
	RegisterReader
	RegisterWriter
}

// Pin is a single digital output line, e.g. a sensor enable input.
type Pin interface {
	Set(ctx context.Context, high bool) error
}

// RegisterFrame returns the bytes sent on the wire for a register write: the
// big-endian register address followed by data.
func RegisterFrame(register uint16, data []byte) []byte {
	frame := make([]byte, 2+len(data))
	frame[0] = byte(register >> 8)
	frame[1] = byte(register)
	copy(frame[2:], data)
	return frame
}
