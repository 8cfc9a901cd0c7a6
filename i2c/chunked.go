package i2c

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/tof"
)

// DefaultChunkSize keeps single transfers below common host adapter buffer
// limits (Linux i2c-dev, USB bridges).
const DefaultChunkSize = 2048

var _ tof.RegisterBus = &ChunkedBus{}

// ErrRegisterOverflow is returned for writes running past register 0xFFFF.
var ErrRegisterOverflow = errors.New("write crosses the end of the register space")

// ChunkedBus splits register writes longer than the chunk size into
// sequential writes at increasing register offsets. The device auto-increments
// its register pointer, so chunks are always sent in order and one at a time.
// Reads pass through untouched.
type ChunkedBus struct {
	bus   tof.RegisterBus
	chunk int
}

// NewChunkedBus wraps bus. A chunk size of zero or less selects
// DefaultChunkSize.
func NewChunkedBus(bus tof.RegisterBus, chunk int) *ChunkedBus {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &ChunkedBus{bus: bus, chunk: chunk}
}

// ChunkSize returns the maximum payload of a single write.
func (c *ChunkedBus) ChunkSize() int {
	return c.chunk
}

func (c *ChunkedBus) ReadRegister(ctx context.Context, address byte, register uint16, buffer []byte) error {
	return c.bus.ReadRegister(ctx, address, register, buffer)
}

// WriteRegister issues ceil(len(data)/chunk) writes. The first failing chunk
// aborts the remaining ones.
func (c *ChunkedBus) WriteRegister(ctx context.Context, address byte, register uint16, data []byte) error {
	if int(register)+len(data) > 0x10000 {
		return fmt.Errorf("%w: %d bytes at %#04x", ErrRegisterOverflow, len(data), register)
	}
	if len(data) <= c.chunk {
		return c.bus.WriteRegister(ctx, address, register, data)
	}
	chunks := (len(data) + c.chunk - 1) / c.chunk
	for i := 0; i < chunks; i++ {
		offset := i * c.chunk
		end := min(offset+c.chunk, len(data))
		err := c.bus.WriteRegister(ctx, address, register+uint16(offset), data[offset:end])
		if err != nil {
			return fmt.Errorf("chunk %d of %d (offset %d) failed: %w", i+1, chunks, offset, err)
		}
	}
	return nil
}
