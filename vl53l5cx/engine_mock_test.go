package vl53l5cx

import (
	"github.com/stretchr/testify/mock"
)

// MockEngine is a testify mock of Engine. Calls are recorded in order in
// calls so teardown ordering can be asserted.
type MockEngine struct {
	mock.Mock
	calls []string
}

func (m *MockEngine) record(name string) {
	m.calls = append(m.calls, name)
}

func (m *MockEngine) NewConfiguration(address uint8, platform *Platform) (Handle, error) {
	m.record("NewConfiguration")
	args := m.Called(address, platform)
	return args.Get(0).(Handle), args.Error(1)
}

func (m *MockEngine) FreeConfiguration(h Handle) {
	m.record("FreeConfiguration")
	m.Called(h)
}

func (m *MockEngine) NewMotionConfiguration() (MotionHandle, error) {
	m.record("NewMotionConfiguration")
	args := m.Called()
	return args.Get(0).(MotionHandle), args.Error(1)
}

func (m *MockEngine) FreeMotionConfiguration(h MotionHandle) {
	m.record("FreeMotionConfiguration")
	m.Called(h)
}

func (m *MockEngine) ResultsSize() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockEngine) IsAlive(h Handle) (bool, Status) {
	m.record("IsAlive")
	args := m.Called(h)
	return args.Bool(0), args.Get(1).(Status)
}

func (m *MockEngine) Init(h Handle) Status {
	m.record("Init")
	return m.Called(h).Get(0).(Status)
}

func (m *MockEngine) SetI2CAddress(h Handle, address uint16) Status {
	m.record("SetI2CAddress")
	return m.Called(h, address).Get(0).(Status)
}

func (m *MockEngine) GetPowerMode(h Handle) (PowerMode, Status) {
	args := m.Called(h)
	return args.Get(0).(PowerMode), args.Get(1).(Status)
}

func (m *MockEngine) SetPowerMode(h Handle, mode PowerMode) Status {
	m.record("SetPowerMode")
	return m.Called(h, mode).Get(0).(Status)
}

func (m *MockEngine) StartRanging(h Handle) Status {
	m.record("StartRanging")
	return m.Called(h).Get(0).(Status)
}

func (m *MockEngine) StopRanging(h Handle) Status {
	m.record("StopRanging")
	return m.Called(h).Get(0).(Status)
}

func (m *MockEngine) CheckDataReady(h Handle) (bool, Status) {
	args := m.Called(h)
	return args.Bool(0), args.Get(1).(Status)
}

func (m *MockEngine) GetRangingData(h Handle, results []byte) Status {
	return m.Called(h, results).Get(0).(Status)
}

func (m *MockEngine) GetResolution(h Handle) (Resolution, Status) {
	args := m.Called(h)
	return args.Get(0).(Resolution), args.Get(1).(Status)
}

func (m *MockEngine) SetResolution(h Handle, r Resolution) Status {
	m.record("SetResolution")
	return m.Called(h, r).Get(0).(Status)
}

func (m *MockEngine) GetRangingFrequencyHz(h Handle) (uint8, Status) {
	args := m.Called(h)
	return args.Get(0).(uint8), args.Get(1).(Status)
}

func (m *MockEngine) SetRangingFrequencyHz(h Handle, hz uint8) Status {
	m.record("SetRangingFrequencyHz")
	return m.Called(h, hz).Get(0).(Status)
}

func (m *MockEngine) GetIntegrationTimeMs(h Handle) (uint32, Status) {
	args := m.Called(h)
	return args.Get(0).(uint32), args.Get(1).(Status)
}

func (m *MockEngine) SetIntegrationTimeMs(h Handle, ms uint32) Status {
	m.record("SetIntegrationTimeMs")
	return m.Called(h, ms).Get(0).(Status)
}

func (m *MockEngine) GetSharpenerPercent(h Handle) (uint8, Status) {
	args := m.Called(h)
	return args.Get(0).(uint8), args.Get(1).(Status)
}

func (m *MockEngine) SetSharpenerPercent(h Handle, percent uint8) Status {
	m.record("SetSharpenerPercent")
	return m.Called(h, percent).Get(0).(Status)
}

func (m *MockEngine) GetTargetOrder(h Handle) (TargetOrder, Status) {
	args := m.Called(h)
	return args.Get(0).(TargetOrder), args.Get(1).(Status)
}

func (m *MockEngine) SetTargetOrder(h Handle, order TargetOrder) Status {
	m.record("SetTargetOrder")
	return m.Called(h, order).Get(0).(Status)
}

func (m *MockEngine) GetRangingMode(h Handle) (RangingMode, Status) {
	args := m.Called(h)
	return args.Get(0).(RangingMode), args.Get(1).(Status)
}

func (m *MockEngine) SetRangingMode(h Handle, mode RangingMode) Status {
	m.record("SetRangingMode")
	return m.Called(h, mode).Get(0).(Status)
}

func (m *MockEngine) MotionIndicatorInit(h Handle, mh MotionHandle, r Resolution) Status {
	m.record("MotionIndicatorInit")
	return m.Called(h, mh, r).Get(0).(Status)
}

func (m *MockEngine) MotionIndicatorSetDistance(h Handle, mh MotionHandle, minMM, maxMM uint16) Status {
	m.record("MotionIndicatorSetDistance")
	return m.Called(h, mh, minMM, maxMM).Get(0).(Status)
}
