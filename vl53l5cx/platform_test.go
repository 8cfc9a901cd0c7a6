package vl53l5cx

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRegisterBus is a testify mock of tof.RegisterBus.
type MockRegisterBus struct {
	mock.Mock
}

func (m *MockRegisterBus) ReadRegister(ctx context.Context, address byte, register uint16, buffer []byte) error {
	args := m.Called(ctx, address, register, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockRegisterBus) WriteRegister(ctx context.Context, address byte, register uint16, data []byte) error {
	args := m.Called(ctx, address, register, bytes.Clone(data))
	return args.Error(0)
}

func TestPlatform_PassesAddressUnchanged(t *testing.T) {
	bus := new(MockRegisterBus)
	bus.On("ReadRegister", mock.Anything, byte(0x29), uint16(0x0001), mock.Anything).Return([]byte{0x02}, nil).Once()
	bus.On("WriteRegister", mock.Anything, byte(0x29), uint16(0x7fff), []byte{0x02}).Return(nil).Once()
	p := NewPlatform(bus, nil, nil)

	out := make([]byte, 1)
	assert.Equal(t, StatusOK, p.Read(0x29, 0x0001, out))
	assert.Equal(t, []byte{0x02}, out)
	assert.Equal(t, StatusOK, p.Write(0x29, 0x7fff, []byte{0x02}))
	assert.NoError(t, p.takeErr())
	bus.AssertExpectations(t)
}

func TestPlatform_RetainsFirstTransportError(t *testing.T) {
	bus := new(MockRegisterBus)
	first := errors.New("arbitration lost")
	second := errors.New("nack")
	bus.On("ReadRegister", mock.Anything, byte(0x29), uint16(0x10), mock.Anything).Return(nil, first).Once()
	bus.On("WriteRegister", mock.Anything, byte(0x29), uint16(0x20), mock.Anything).Return(second).Once()
	p := NewPlatform(bus, nil, nil)

	restore := p.bind(context.Background())
	assert.Equal(t, StatusGenericError, p.Read(0x29, 0x10, make([]byte, 2)))
	assert.Equal(t, StatusGenericError, p.Write(0x29, 0x20, []byte{1}))
	restore()

	err := p.takeErr()
	require.Error(t, err)
	assert.ErrorIs(t, err, first)
	assert.NotErrorIs(t, err, second)
	assert.Contains(t, err.Error(), "0x0010")
	assert.NoError(t, p.takeErr())
}

func TestPlatform_BindPassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "poll")
	bus := new(MockRegisterBus)
	bus.On("ReadRegister", ctx, byte(0x29), uint16(0), mock.Anything).Return(nil, nil).Once()
	bus.On("ReadRegister", context.Background(), byte(0x29), uint16(1), mock.Anything).Return(nil, nil).Once()
	p := NewPlatform(bus, nil, nil)

	restore := p.bind(ctx)
	p.Read(0x29, 0, make([]byte, 1))
	restore()
	p.Read(0x29, 1, make([]byte, 1))
	bus.AssertExpectations(t)
}

func TestPlatform_Sleep(t *testing.T) {
	var slept []time.Duration
	p := NewPlatform(new(MockRegisterBus), func(d time.Duration) { slept = append(slept, d) }, nil)
	assert.Equal(t, StatusOK, p.Sleep(10))
	assert.Equal(t, StatusOK, p.Sleep(0))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 0}, slept)
}
