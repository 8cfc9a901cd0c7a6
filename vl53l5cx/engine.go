package vl53l5cx

// Handle identifies an engine-side configuration.
type Handle uintptr

// MotionHandle identifies an engine-side motion indicator configuration.
type MotionHandle uintptr

// Engine is the vendor ranging engine. It reaches the hardware only through
// the Platform it was given in NewConfiguration. Every entry point returns a
// Status; the session turns non-zero statuses into errors.
//
// Addresses passed to SetI2CAddress are 8-bit (7-bit address << 1).
type Engine interface {
	NewConfiguration(address uint8, platform *Platform) (Handle, error)
	FreeConfiguration(h Handle)
	NewMotionConfiguration() (MotionHandle, error)
	FreeMotionConfiguration(m MotionHandle)
	// ResultsSize returns the size of the results struct the engine was built
	// with, or 0 when it cannot tell.
	ResultsSize() int

	IsAlive(h Handle) (bool, Status)
	Init(h Handle) Status
	SetI2CAddress(h Handle, address uint16) Status

	GetPowerMode(h Handle) (PowerMode, Status)
	SetPowerMode(h Handle, mode PowerMode) Status
	StartRanging(h Handle) Status
	StopRanging(h Handle) Status
	CheckDataReady(h Handle) (bool, Status)
	GetRangingData(h Handle, results []byte) Status

	GetResolution(h Handle) (Resolution, Status)
	SetResolution(h Handle, r Resolution) Status
	GetRangingFrequencyHz(h Handle) (uint8, Status)
	SetRangingFrequencyHz(h Handle, hz uint8) Status
	GetIntegrationTimeMs(h Handle) (uint32, Status)
	SetIntegrationTimeMs(h Handle, ms uint32) Status
	GetSharpenerPercent(h Handle) (uint8, Status)
	SetSharpenerPercent(h Handle, percent uint8) Status
	GetTargetOrder(h Handle) (TargetOrder, Status)
	SetTargetOrder(h Handle, order TargetOrder) Status
	GetRangingMode(h Handle) (RangingMode, Status)
	SetRangingMode(h Handle, mode RangingMode) Status

	MotionIndicatorInit(h Handle, m MotionHandle, r Resolution) Status
	MotionIndicatorSetDistance(h Handle, m MotionHandle, minMM, maxMM uint16) Status
}
