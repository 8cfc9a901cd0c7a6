package vl53l5cx

import "fmt"

// DefaultAddress is the 7-bit bus address of a sensor after power up.
const DefaultAddress byte = 0x29

// Resolution is the number of zones in the field of view.
type Resolution uint8

const (
	Resolution4x4 Resolution = 16
	Resolution8x8 Resolution = 64
)

// Width returns the number of zones in a row.
func (r Resolution) Width() int {
	switch r {
	case Resolution4x4:
		return 4
	case Resolution8x8:
		return 8
	default:
		return 0
	}
}

// MaxFrequencyHz is the highest ranging frequency the resolution supports.
func (r Resolution) MaxFrequencyHz() uint8 {
	if r == Resolution8x8 {
		return 15
	}
	return 60
}

func (r Resolution) valid() bool {
	return r == Resolution4x4 || r == Resolution8x8
}

func (r Resolution) String() string {
	switch r {
	case Resolution4x4:
		return "4x4"
	case Resolution8x8:
		return "8x8"
	default:
		return fmt.Sprintf("Resolution(%d)", uint8(r))
	}
}

// TargetOrder selects which target is reported first when a zone sees more
// than one.
type TargetOrder uint8

const (
	TargetOrderClosest   TargetOrder = 1
	TargetOrderStrongest TargetOrder = 2
)

func (o TargetOrder) String() string {
	switch o {
	case TargetOrderClosest:
		return "closest"
	case TargetOrderStrongest:
		return "strongest"
	default:
		return fmt.Sprintf("TargetOrder(%d)", uint8(o))
	}
}

type RangingMode uint8

const (
	RangingModeContinuous RangingMode = 1
	RangingModeAutonomous RangingMode = 3
)

func (m RangingMode) String() string {
	switch m {
	case RangingModeContinuous:
		return "continuous"
	case RangingModeAutonomous:
		return "autonomous"
	default:
		return fmt.Sprintf("RangingMode(%d)", uint8(m))
	}
}

type PowerMode uint8

const (
	PowerModeSleep  PowerMode = 0
	PowerModeWakeup PowerMode = 1
)

func (m PowerMode) String() string {
	switch m {
	case PowerModeSleep:
		return "sleep"
	case PowerModeWakeup:
		return "wakeup"
	default:
		return fmt.Sprintf("PowerMode(%d)", uint8(m))
	}
}

// Status is the integer result of an engine entry point or a platform
// callback. Zero is success.
type Status uint8

const (
	StatusOK             Status = 0
	StatusTimeout        Status = 1
	StatusCorruptedFrame Status = 2
	StatusMCUError       Status = 66
	StatusInvalidParam   Status = 127
	StatusGenericError   Status = 255
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusCorruptedFrame:
		return "corrupted frame"
	case StatusMCUError:
		return "mcu error"
	case StatusInvalidParam:
		return "invalid parameter"
	case StatusGenericError:
		return "error"
	default:
		return fmt.Sprintf("status %d", uint8(s))
	}
}

// TargetStatus is the per-target validity code reported by the firmware.
type TargetStatus uint8

const (
	RangeNotUpdated         TargetStatus = 0
	RangeLowSignal          TargetStatus = 1
	RangeTargetPhase        TargetStatus = 2
	RangeSigmaHigh          TargetStatus = 3
	RangeTargetFailed       TargetStatus = 4
	RangeValid              TargetStatus = 5
	RangeNoWrap             TargetStatus = 6
	RangeRateFailed         TargetStatus = 7
	RangeSignalRateLow      TargetStatus = 8
	RangeValidLargePulse    TargetStatus = 9
	RangeValidNoTarget      TargetStatus = 10
	RangeMeasurementFailed  TargetStatus = 11
	RangeTargetBlurred      TargetStatus = 12
	RangeTargetInconsistent TargetStatus = 13
	RangeNoTarget           TargetStatus = 255
)

// Valid reports whether distance and reflectance of the target can be
// trusted.
func (s TargetStatus) Valid() bool {
	return s == RangeValid || s == RangeValidLargePulse
}

// Known reports whether s is one of the defined status codes.
func (s TargetStatus) Known() bool {
	return s <= RangeTargetInconsistent || s == RangeNoTarget
}

func (s TargetStatus) String() string {
	switch s {
	case RangeNotUpdated:
		return "not updated"
	case RangeLowSignal:
		return "low signal"
	case RangeTargetPhase:
		return "target phase"
	case RangeSigmaHigh:
		return "sigma high"
	case RangeTargetFailed:
		return "target failed"
	case RangeValid:
		return "valid"
	case RangeNoWrap:
		return "no wrap around check"
	case RangeRateFailed:
		return "rate failed"
	case RangeSignalRateLow:
		return "signal rate low"
	case RangeValidLargePulse:
		return "valid, large pulse"
	case RangeValidNoTarget:
		return "valid, no previous target"
	case RangeMeasurementFailed:
		return "measurement failed"
	case RangeTargetBlurred:
		return "target blurred"
	case RangeTargetInconsistent:
		return "target inconsistent"
	case RangeNoTarget:
		return "no target"
	default:
		return "unknown status"
	}
}
