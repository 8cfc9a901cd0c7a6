package vl53l5cx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const mockHandle = Handle(1)

func newMockEngine() *MockEngine {
	engine := new(MockEngine)
	engine.On("ResultsSize").Return(0)
	engine.On("NewConfiguration", uint8(0x52), mock.Anything).Return(mockHandle, nil).Once()
	engine.On("FreeConfiguration", mockHandle).Return().Maybe()
	return engine
}

// newMockedSensor binds and initializes a session over a mocked engine.
func newMockedSensor(t *testing.T, opts ...Option) (*Sensor, *MockEngine) {
	t.Helper()
	engine := newMockEngine()
	engine.On("IsAlive", mockHandle).Return(true, StatusOK).Once()
	engine.On("Init", mockHandle).Return(StatusOK).Maybe()
	s, err := New(context.Background(), engine, NewEmulatedDevice(DefaultAddress, nil), opts...)
	require.NoError(t, err)
	return s, engine
}

func TestNew_DeviceNotFound(t *testing.T) {
	engine := newMockEngine()
	engine.On("IsAlive", mockHandle).Return(false, StatusOK).Once()

	s, err := New(context.Background(), engine, NewEmulatedDevice(DefaultAddress, nil))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	engine.AssertCalled(t, "FreeConfiguration", mockHandle)
	engine.AssertNotCalled(t, "Init", mock.Anything)
}

func TestNew_DeviceNotFoundReleasesEverything(t *testing.T) {
	engine := NewSimEngine()
	dev := NewEmulatedDevice(0x30, nil)

	s, err := New(context.Background(), engine, dev)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, ErrNoAcknowledge)
	configs, motions := engine.Allocated()
	assert.Zero(t, configs)
	assert.Zero(t, motions)
}

func TestNew_InitFailure(t *testing.T) {
	engine := newMockEngine()
	engine.On("IsAlive", mockHandle).Return(true, StatusOK).Once()
	engine.On("Init", mockHandle).Return(StatusMCUError).Once()

	_, err := New(context.Background(), engine, NewEmulatedDevice(DefaultAddress, nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StatusMCUError, serr.Status)
	engine.AssertCalled(t, "FreeConfiguration", mockHandle)
}

func TestNew_InitTransportFailure(t *testing.T) {
	engine := NewSimEngine()
	bus := &failingBus{EmulatedDevice: NewEmulatedDevice(DefaultAddress, nil), failPage: pageFirmware + 1}

	_, err := New(context.Background(), engine, bus)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "chunk 1 of 16")
	configs, _ := engine.Allocated()
	assert.Zero(t, configs)
}

func TestNew_ResultsSizeMismatch(t *testing.T) {
	engine := new(MockEngine)
	engine.On("ResultsSize").Return(42)

	_, err := New(context.Background(), engine, NewEmulatedDevice(DefaultAddress, nil))
	assert.ErrorIs(t, err, ErrInitialization)
	engine.AssertNotCalled(t, "NewConfiguration", mock.Anything, mock.Anything)
}

func TestNew_InvalidAddress(t *testing.T) {
	_, err := New(context.Background(), new(MockEngine), NewEmulatedDevice(DefaultAddress, nil), WithAddress(0x80))
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestNew_SkipInit(t *testing.T) {
	s, engine := newMockedSensor(t, WithSkipInit())
	assert.Equal(t, StateBound, s.State())
	engine.AssertNotCalled(t, "Init", mock.Anything)

	engine.On("SetSharpenerPercent", mockHandle, uint8(20)).Return(StatusOK).Once()
	require.NoError(t, s.SetSharpenerPercent(context.Background(), 20))
	assert.Equal(t, StateConfigured, s.State())
}

func TestNew_CallbacksReachSensorAddress(t *testing.T) {
	bus := new(MockRegisterBus)
	bus.On("ReadRegister", mock.Anything, byte(0x29), uint16(0x0000), mock.Anything).Return([]byte{0xf0}, nil).Once()

	var platform *Platform
	engine := new(MockEngine)
	engine.On("ResultsSize").Return(0)
	engine.On("NewConfiguration", uint8(0x52), mock.Anything).Run(func(args mock.Arguments) {
		platform = args.Get(1).(*Platform)
	}).Return(mockHandle, nil).Once()
	engine.On("IsAlive", mockHandle).Run(func(mock.Arguments) {
		platform.Read(0x29, 0x0000, make([]byte, 1))
	}).Return(true, StatusOK).Once()
	engine.On("FreeConfiguration", mockHandle).Return().Maybe()

	s, err := New(context.Background(), engine, bus, WithSkipInit())
	require.NoError(t, err)
	assert.Equal(t, StateBound, s.State())
	bus.AssertExpectations(t)
}

func TestNew_DrivesLPnHigh(t *testing.T) {
	pin := &recordingPin{}
	s, _ := newMockedSensor(t, WithLPn(pin), WithSleep(func(time.Duration) {}))
	assert.Equal(t, []bool{true}, pin.levels)
	assert.Equal(t, StateInitialized, s.State())
}

func TestSensor_SetMotionDistance(t *testing.T) {
	ctx := context.Background()
	mins := []uint16{0, 399, 400, 401, 1000, 2500, 65535}
	maxs := []uint16{0, 400, 1000, 1899, 1900, 1901, 2600, 65535}

	s, engine := newMockedSensor(t)
	engine.On("NewMotionConfiguration").Return(MotionHandle(7), nil).Once()
	engine.On("MotionIndicatorInit", mockHandle, MotionHandle(7), Resolution4x4).Return(StatusOK)
	engine.On("MotionIndicatorSetDistance", mockHandle, MotionHandle(7), mock.Anything, mock.Anything).Return(StatusOK)

	for _, lo := range mins {
		for _, hi := range maxs {
			err := s.SetMotionDistance(ctx, lo, hi)
			assert.ErrorIs(t, err, ErrPrecondition, "min=%d max=%d before enabling", lo, hi)
		}
	}
	engine.AssertNotCalled(t, "MotionIndicatorSetDistance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, s.EnableMotionIndicator(ctx, Resolution4x4))
	for _, lo := range mins {
		for _, hi := range maxs {
			t.Run(fmt.Sprintf("%d_%d", lo, hi), func(t *testing.T) {
				err := s.SetMotionDistance(ctx, lo, hi)
				if lo >= 400 && int(hi)-int(lo) < 1500 {
					assert.NoError(t, err)
					engine.AssertCalled(t, "MotionIndicatorSetDistance", mockHandle, MotionHandle(7), lo, hi)
				} else {
					assert.ErrorIs(t, err, ErrInvalidParameter)
				}
			})
		}
	}
}

func TestSensor_EnableMotionIndicatorReusesHandle(t *testing.T) {
	ctx := context.Background()
	s, engine := newMockedSensor(t)
	engine.On("NewMotionConfiguration").Return(MotionHandle(7), nil).Once()
	engine.On("MotionIndicatorInit", mockHandle, MotionHandle(7), mock.Anything).Return(StatusOK).Twice()

	require.NoError(t, s.EnableMotionIndicator(ctx, Resolution4x4))
	require.NoError(t, s.EnableMotionIndicator(ctx, Resolution8x8))
	engine.AssertNumberOfCalls(t, "NewMotionConfiguration", 1)

	assert.ErrorIs(t, s.EnableMotionIndicator(ctx, Resolution(32)), ErrInvalidParameter)
}

func TestSensor_CloseReleasesMotionFirst(t *testing.T) {
	ctx := context.Background()
	s, engine := newMockedSensor(t)
	engine.On("NewMotionConfiguration").Return(MotionHandle(7), nil).Once()
	engine.On("MotionIndicatorInit", mockHandle, MotionHandle(7), Resolution4x4).Return(StatusOK).Once()
	engine.On("FreeMotionConfiguration", MotionHandle(7)).Return().Once()
	require.NoError(t, s.EnableMotionIndicator(ctx, Resolution4x4))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, StateReleased, s.State())

	engine.AssertNumberOfCalls(t, "FreeMotionConfiguration", 1)
	engine.AssertNumberOfCalls(t, "FreeConfiguration", 1)
	motion := slices.Index(engine.calls, "FreeMotionConfiguration")
	config := slices.Index(engine.calls, "FreeConfiguration")
	assert.True(t, motion >= 0 && motion < config, "calls: %v", engine.calls)

	assert.ErrorIs(t, s.SetSharpenerPercent(ctx, 1), ErrPrecondition)
	_, err := s.IsAlive(ctx)
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestSensor_DataReadyBeforeStart(t *testing.T) {
	s, engine := newMockedSensor(t)
	ready, err := s.DataReady(context.Background())
	assert.NoError(t, err)
	assert.False(t, ready)
	engine.AssertNotCalled(t, "CheckDataReady", mock.Anything)

	_, err = s.GetData(context.Background())
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.ErrorIs(t, s.StopRanging(context.Background()), ErrPrecondition)
}

func TestSensor_SetterValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(s *Sensor) error
	}{
		{"resolution", func(s *Sensor) error { return s.SetResolution(ctx, Resolution(32)) }},
		{"frequency zero", func(s *Sensor) error { return s.SetRangingFrequencyHz(ctx, 0) }},
		{"frequency above 4x4 limit", func(s *Sensor) error { return s.SetRangingFrequencyHz(ctx, 61) }},
		{"integration too short", func(s *Sensor) error { return s.SetIntegrationTimeMs(ctx, 1) }},
		{"integration too long", func(s *Sensor) error { return s.SetIntegrationTimeMs(ctx, 1001) }},
		{"integration above period", func(s *Sensor) error { return s.SetIntegrationTimeMs(ctx, 1000) }},
		{"sharpener", func(s *Sensor) error { return s.SetSharpenerPercent(ctx, 100) }},
		{"target order", func(s *Sensor) error { return s.SetTargetOrder(ctx, TargetOrder(3)) }},
		{"power mode", func(s *Sensor) error { return s.SetPowerMode(ctx, PowerMode(2)) }},
		{"ranging mode", func(s *Sensor) error { return s.SetRangingMode(ctx, RangingMode(2)) }},
		{"motion resolution", func(s *Sensor) error { return s.EnableMotionIndicator(ctx, Resolution(0)) }},
		{"address", func(s *Sensor) error { return s.SetI2CAddress(ctx, 0) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, engine := newMockedSensor(t)
			engine.On("GetResolution", mockHandle).Return(Resolution4x4, StatusOK).Maybe()
			engine.On("GetRangingFrequencyHz", mockHandle).Return(uint8(1), StatusOK).Maybe()

			err := tt.call(s)
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.Equal(t, StateInitialized, s.State())
			for _, call := range engine.calls {
				assert.NotContains(t, []string{"SetResolution", "SetRangingFrequencyHz", "SetIntegrationTimeMs",
					"SetSharpenerPercent", "SetTargetOrder", "SetPowerMode", "SetRangingMode",
					"NewMotionConfiguration", "SetI2CAddress"}, call)
			}
		})
	}
}

func TestSensor_FrequencyLimitFollowsResolution(t *testing.T) {
	ctx := context.Background()
	s, engine := newMockedSensor(t)
	engine.On("SetResolution", mockHandle, Resolution8x8).Return(StatusOK).Once()
	engine.On("SetRangingFrequencyHz", mockHandle, uint8(15)).Return(StatusOK).Once()

	require.NoError(t, s.SetResolution(ctx, Resolution8x8))
	assert.ErrorIs(t, s.SetRangingFrequencyHz(ctx, 16), ErrInvalidParameter)
	require.NoError(t, s.SetRangingFrequencyHz(ctx, 15))

	// 1000/15 ms period
	engine.On("SetIntegrationTimeMs", mockHandle, uint32(66)).Return(StatusOK).Once()
	assert.ErrorIs(t, s.SetIntegrationTimeMs(ctx, 67), ErrInvalidParameter)
	require.NoError(t, s.SetIntegrationTimeMs(ctx, 66))
	engine.AssertExpectations(t)
}

func TestSensor_SettersRejectedWhileRanging(t *testing.T) {
	ctx := context.Background()
	s, engine := newMockedSensor(t)
	engine.On("GetResolution", mockHandle).Return(Resolution4x4, StatusOK).Once()
	engine.On("StartRanging", mockHandle).Return(StatusOK).Once()
	engine.On("StopRanging", mockHandle).Return(StatusOK).Once()
	engine.On("SetResolution", mockHandle, Resolution8x8).Return(StatusOK).Once()

	require.NoError(t, s.StartRanging(ctx))
	assert.Equal(t, StateRanging, s.State())
	assert.ErrorIs(t, s.SetResolution(ctx, Resolution8x8), ErrPrecondition)
	assert.ErrorIs(t, s.StartRanging(ctx), ErrPrecondition)

	require.NoError(t, s.StopRanging(ctx))
	assert.Equal(t, StateStopped, s.State())
	require.NoError(t, s.SetResolution(ctx, Resolution8x8))
	assert.Equal(t, StateConfigured, s.State())
	engine.AssertExpectations(t)
}

func TestSensor_EngineStatusIsReturned(t *testing.T) {
	s, engine := newMockedSensor(t)
	engine.On("SetTargetOrder", mockHandle, TargetOrderClosest).Return(StatusInvalidParam).Once()

	err := s.SetTargetOrder(context.Background(), TargetOrderClosest)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "set target order", serr.Op)
	assert.Equal(t, StatusInvalidParam, serr.Status)
	assert.Equal(t, StateInitialized, s.State())
}

func TestSensor_GetDataFailureKeepsRanging(t *testing.T) {
	ctx := context.Background()
	s, engine := newMockedSensor(t)
	engine.On("GetResolution", mockHandle).Return(Resolution4x4, StatusOK).Once()
	engine.On("StartRanging", mockHandle).Return(StatusOK).Once()
	engine.On("GetRangingData", mockHandle, mock.Anything).Return(StatusCorruptedFrame).Once()
	engine.On("GetRangingData", mockHandle, mock.Anything).Return(StatusOK).Once()
	require.NoError(t, s.StartRanging(ctx))

	f, err := s.GetData(ctx)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrDecode)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StatusCorruptedFrame, serr.Status)
	assert.Equal(t, StateRanging, s.State())

	f, err = s.GetData(ctx)
	require.NoError(t, err)
	assert.NotNil(t, f)
}

func TestSensor_GetDataDecodesEngineBuffer(t *testing.T) {
	ctx := context.Background()
	s, engine := newMockedSensor(t)

	want := Frame{Resolution: Resolution8x8, SiliconTempC: 27}
	for zone := 0; zone < MaxZones; zone++ {
		want.TargetsDetected[zone] = 1
		want.DistanceMM[zone][0] = int16(500 + zone)
		want.TargetStatus[zone][0] = RangeValid
	}
	engine.On("GetResolution", mockHandle).Return(Resolution8x8, StatusOK).Once()
	engine.On("StartRanging", mockHandle).Return(StatusOK).Once()
	engine.On("CheckDataReady", mockHandle).Return(true, StatusOK).Once()
	engine.On("GetRangingData", mockHandle, mock.Anything).Run(func(args mock.Arguments) {
		w, err := DefaultLayout.writer(args.Get(1).([]byte))
		require.NoError(t, err)
		w.encode(&want)
	}).Return(StatusOK).Once()

	require.NoError(t, s.StartRanging(ctx))
	ready, err := s.DataReady(ctx)
	require.NoError(t, err)
	require.True(t, ready)
	f, err := s.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, *f)
}

func TestSensor_SetI2CAddressRechecksLiveness(t *testing.T) {
	ctx := context.Background()
	s, engine := newMockedSensor(t)
	engine.On("SetI2CAddress", mockHandle, uint16(0x60)).Return(StatusOK).Once()
	engine.On("IsAlive", mockHandle).Return(false, StatusOK).Once()

	err := s.SetI2CAddress(ctx, 0x30)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.Equal(t, byte(0x30), s.Address())
}

func TestSensor_SetI2CAddress(t *testing.T) {
	ctx := context.Background()
	dev := NewEmulatedDevice(DefaultAddress, nil)
	s, err := New(ctx, NewSimEngine(), dev)
	require.NoError(t, err)

	require.NoError(t, s.SetI2CAddress(ctx, 0x30))
	assert.Equal(t, byte(0x30), dev.Address())
	assert.Equal(t, byte(0x30), s.Address())
	alive, err := s.IsAlive(ctx)
	require.NoError(t, err)
	assert.True(t, alive)

	// a second session at the old address finds nothing
	_, err = New(ctx, NewSimEngine(), dev, WithSkipInit())
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSensor_RangingAt8x8(t *testing.T) {
	ctx := context.Background()
	engine := NewSimEngine()
	dev := NewEmulatedDevice(DefaultAddress, nil)
	s, err := New(ctx, engine, dev, WithSleep(func(time.Duration) {}))
	require.NoError(t, err)
	assert.True(t, dev.Booted())

	require.NoError(t, s.SetResolution(ctx, Resolution8x8))
	require.NoError(t, s.SetIntegrationTimeMs(ctx, 20))
	require.NoError(t, s.SetRangingFrequencyHz(ctx, 15))
	require.NoError(t, s.StartRanging(ctx))

	for poll := 0; poll < 3; poll++ {
		ready := false
		for attempt := 0; attempt < 10 && !ready; attempt++ {
			ready, err = s.DataReady(ctx)
			require.NoError(t, err)
		}
		require.True(t, ready, "poll %d", poll)

		f, err := s.GetData(ctx)
		require.NoError(t, err)
		assert.Equal(t, Resolution8x8, f.Resolution)
		for zone := 0; zone < f.Zones(); zone++ {
			status := f.TargetStatus[zone][0]
			assert.True(t, status.Known(), "zone %d status %d", zone, status)
			assert.True(t, f.DistanceMM[zone][0] >= 0 || status == RangeNoTarget, "zone %d distance %d", zone, f.DistanceMM[zone][0])
		}
	}

	require.NoError(t, s.StopRanging(ctx))
	require.NoError(t, s.Close())
	configs, motions := engine.Allocated()
	assert.Zero(t, configs)
	assert.Zero(t, motions)
}

func TestSensor_Getters(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, NewSimEngine(), NewEmulatedDevice(DefaultAddress, nil))
	require.NoError(t, err)

	require.NoError(t, s.SetSharpenerPercent(ctx, 30))
	require.NoError(t, s.SetTargetOrder(ctx, TargetOrderClosest))
	require.NoError(t, s.SetRangingMode(ctx, RangingModeContinuous))
	require.NoError(t, s.SetPowerMode(ctx, PowerModeWakeup))

	resolution, err := s.Resolution(ctx)
	require.NoError(t, err)
	assert.Equal(t, Resolution4x4, resolution)
	hz, err := s.RangingFrequencyHz(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), hz)
	ms, err := s.IntegrationTimeMs(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), ms)
	sharpener, err := s.SharpenerPercent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(30), sharpener)
	order, err := s.TargetOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, TargetOrderClosest, order)
	mode, err := s.RangingMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, RangingModeContinuous, mode)
	power, err := s.PowerMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, PowerModeWakeup, power)
}

func TestSensor_MotionFrames(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, NewSimEngine(), NewEmulatedDevice(DefaultAddress, nil))
	require.NoError(t, err)
	require.NoError(t, s.EnableMotionIndicator(ctx, Resolution4x4))
	require.NoError(t, s.SetMotionDistance(ctx, 400, 1200))
	require.NoError(t, s.StartRanging(ctx))

	ready, err := s.DataReady(ctx)
	require.NoError(t, err)
	require.True(t, ready)
	f, err := s.GetData(ctx)
	require.NoError(t, err)
	assert.True(t, f.MotionEnabled)
	assert.Equal(t, uint8(16), f.Motion.Aggregates)
	assert.NotZero(t, f.Motion.DetectedAggregates)
	require.NoError(t, s.Close())
}

type recordingPin struct {
	levels []bool
}

func (p *recordingPin) Set(ctx context.Context, high bool) error {
	p.levels = append(p.levels, high)
	return nil
}

// failingBus fails every write issued while the device has failPage selected.
type failingBus struct {
	*EmulatedDevice
	failPage byte
	page     byte
}

func (b *failingBus) WriteRegister(ctx context.Context, address byte, register uint16, data []byte) error {
	if register == regPageSelect && len(data) == 1 {
		b.page = data[0]
	} else if b.page == b.failPage {
		return errors.New("bus timeout")
	}
	return b.EmulatedDevice.WriteRegister(ctx, address, register, data)
}
