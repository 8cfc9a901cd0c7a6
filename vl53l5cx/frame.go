package vl53l5cx

// Frame is one decoded ranging measurement. Arrays are sized for 8x8; at 4x4
// only the first 16 zones carry data.
type Frame struct {
	Resolution   Resolution
	SiliconTempC int8

	AmbientPerSPAD  [MaxZones]uint32
	TargetsDetected [MaxZones]uint8
	SPADsEnabled    [MaxZones]uint32

	SignalPerSPAD [MaxZones][TargetsPerZone]uint32
	RangeSigmaMM  [MaxZones][TargetsPerZone]uint16
	DistanceMM    [MaxZones][TargetsPerZone]int16
	Reflectance   [MaxZones][TargetsPerZone]uint8
	TargetStatus  [MaxZones][TargetsPerZone]TargetStatus

	Motion MotionData
	// MotionEnabled is set when the session had motion indication enabled,
	// otherwise Motion is zero or stale.
	MotionEnabled bool
}

// MotionData is the motion indicator block of a frame.
type MotionData struct {
	GlobalIndicator1   uint32
	GlobalIndicator2   uint32
	Status             uint8
	DetectedAggregates uint8
	Aggregates         uint8
	Spare              uint8
	Motion             [MotionEntries]uint32
}

// Zones returns the number of zones carrying data.
func (f *Frame) Zones() int {
	return int(f.Resolution)
}

// Flip reorders values from device row order into a top-to-bottom image of
// width x width. Extra values are ignored.
func Flip[T any](values []T, width int) [][]T {
	if width <= 0 {
		return nil
	}
	rows := len(values) / width
	if rows > width {
		rows = width
	}
	grid := make([][]T, rows)
	for r := 0; r < rows; r++ {
		row := make([]T, width)
		copy(row, values[(rows-1-r)*width:(rows-r)*width])
		grid[r] = row
	}
	return grid
}

// DistanceGrid returns the distance of the given target per zone, flipped to
// image order.
func (f *Frame) DistanceGrid(target int) [][]int16 {
	values := make([]int16, f.Zones())
	for zone := range values {
		values[zone] = f.DistanceMM[zone][target]
	}
	return Flip(values, f.Resolution.Width())
}

func (f *Frame) ReflectanceGrid(target int) [][]uint8 {
	values := make([]uint8, f.Zones())
	for zone := range values {
		values[zone] = f.Reflectance[zone][target]
	}
	return Flip(values, f.Resolution.Width())
}

func (f *Frame) StatusGrid(target int) [][]TargetStatus {
	values := make([]TargetStatus, f.Zones())
	for zone := range values {
		values[zone] = f.TargetStatus[zone][target]
	}
	return Flip(values, f.Resolution.Width())
}

// Grid returns the 16 motion magnitudes as a flipped 4x4 image. Motion is
// aggregated on 4x4 regardless of ranging resolution.
func (m MotionData) Grid() [][]uint32 {
	return Flip(m.Motion[:16], 4)
}
