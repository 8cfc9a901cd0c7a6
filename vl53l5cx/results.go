package vl53l5cx

import (
	"encoding/binary"
	"fmt"
)

const (
	// MaxZones is the zone count at the highest resolution. Result arrays are
	// always sized for it.
	MaxZones = 64
	// MaxTargetsPerZone is the largest target count the engine can be built
	// with.
	MaxTargetsPerZone = 4
	// MotionEntries is the length of the motion magnitude array.
	MotionEntries = 32

	motionSize = 4 + 4 + 4 + MotionEntries*4
)

// Fixed part of the results buffer. The engine struct starts with the int8
// silicon temperature padded to the 32-bit alignment of the ambient array.
const (
	offTemperature = 0
	offAmbient     = 4
	offDetected    = offAmbient + MaxZones*4
	offSPADs       = offDetected + MaxZones
	offSignal      = offSPADs + MaxZones*4
)

// byteOrder is the host order; the buffer is a C struct filled in place by
// the engine.
var byteOrder = binary.NativeEndian

// Layout describes the byte layout of the results buffer for a given number
// of targets per zone. Signal rate, range sigma, distance, reflectance and
// target status repeat per target, zone-major.
type Layout struct {
	targets     int
	sigma       int
	distance    int
	reflectance int
	status      int
	motion      int
	size        int
}

// DefaultLayout matches the TargetsPerZone build constant.
var DefaultLayout = NewLayout(TargetsPerZone)

// NewLayout computes the layout for targets per zone. It panics when targets
// is outside 1..MaxTargetsPerZone since the value is a build-time choice.
func NewLayout(targets int) Layout {
	if targets < 1 || targets > MaxTargetsPerZone {
		panic(fmt.Sprintf("vl53l5cx: unsupported targets per zone %d", targets))
	}
	n := MaxZones * targets
	l := Layout{targets: targets}
	l.sigma = offSignal + n*4
	l.distance = l.sigma + n*2
	l.reflectance = l.distance + n*2
	l.status = l.reflectance + n
	l.motion = l.status + n
	l.size = l.motion + motionSize
	return l
}

// TargetsPerZone returns the per-zone target multiplier.
func (l Layout) TargetsPerZone() int {
	return l.targets
}

// Size is the number of bytes the engine writes per frame.
func (l Layout) Size() int {
	return l.size
}

// NewBuffer allocates a zeroed results buffer.
func (l Layout) NewBuffer() []byte {
	return make([]byte, l.size)
}

// View wraps buf without copying. The buffer must hold at least Size bytes.
func (l Layout) View(buf []byte) (Results, error) {
	if len(buf) < l.size {
		return Results{}, fmt.Errorf("%w: results buffer has %d bytes, layout needs %d", ErrDecode, len(buf), l.size)
	}
	return Results{layout: l, buf: buf[:l.size]}, nil
}

// Results is a read-only view over one raw results buffer. Zone indexes are
// 0..MaxZones-1 and target indexes 0..TargetsPerZone-1; out of range indexes
// panic like slice indexing does.
type Results struct {
	layout Layout
	buf    []byte
}

// Layout returns the layout the view was created with.
func (r Results) Layout() Layout {
	return r.layout
}

func (r Results) index(zone, target int) int {
	if target < 0 || target >= r.layout.targets {
		panic(fmt.Sprintf("vl53l5cx: target index %d out of range [0,%d)", target, r.layout.targets))
	}
	if zone < 0 || zone >= MaxZones {
		panic(fmt.Sprintf("vl53l5cx: zone index %d out of range [0,%d)", zone, MaxZones))
	}
	return zone*r.layout.targets + target
}

func (r Results) SiliconTempC() int8 {
	return int8(r.buf[offTemperature])
}

// Ambient returns the ambient rate per SPAD (kcps/SPAD) of the zone.
func (r Results) Ambient(zone int) uint32 {
	return byteOrder.Uint32(r.buf[offAmbient+zone*4:])
}

func (r Results) DetectedTargets(zone int) uint8 {
	return r.buf[offDetected+zone]
}

func (r Results) EnabledSPADs(zone int) uint32 {
	return byteOrder.Uint32(r.buf[offSPADs+zone*4:])
}

// SignalRate returns the signal rate per SPAD (kcps/SPAD) of the target.
func (r Results) SignalRate(zone, target int) uint32 {
	return byteOrder.Uint32(r.buf[offSignal+r.index(zone, target)*4:])
}

func (r Results) RangeSigmaMM(zone, target int) uint16 {
	return byteOrder.Uint16(r.buf[r.layout.sigma+r.index(zone, target)*2:])
}

func (r Results) DistanceMM(zone, target int) int16 {
	return int16(byteOrder.Uint16(r.buf[r.layout.distance+r.index(zone, target)*2:]))
}

func (r Results) ReflectancePercent(zone, target int) uint8 {
	return r.buf[r.layout.reflectance+r.index(zone, target)]
}

func (r Results) TargetStatus(zone, target int) TargetStatus {
	return TargetStatus(r.buf[r.layout.status+r.index(zone, target)])
}

// Motion returns the motion indicator block. It only holds data when motion
// indication was enabled before ranging started.
func (r Results) Motion() MotionData {
	b := r.buf[r.layout.motion:]
	m := MotionData{
		GlobalIndicator1:   byteOrder.Uint32(b[0:]),
		GlobalIndicator2:   byteOrder.Uint32(b[4:]),
		Status:             b[8],
		DetectedAggregates: b[9],
		Aggregates:         b[10],
		Spare:              b[11],
	}
	for i := range m.Motion {
		m.Motion[i] = byteOrder.Uint32(b[12+i*4:])
	}
	return m
}

// Decode copies the view into f. The view must use the build-time layout.
func (r Results) Decode(f *Frame) error {
	if r.layout.targets != TargetsPerZone {
		return fmt.Errorf("%w: frame holds %d targets per zone, buffer has %d", ErrDecode, TargetsPerZone, r.layout.targets)
	}
	f.SiliconTempC = r.SiliconTempC()
	for zone := 0; zone < MaxZones; zone++ {
		f.AmbientPerSPAD[zone] = r.Ambient(zone)
		f.TargetsDetected[zone] = r.DetectedTargets(zone)
		f.SPADsEnabled[zone] = r.EnabledSPADs(zone)
		for t := 0; t < TargetsPerZone; t++ {
			f.SignalPerSPAD[zone][t] = r.SignalRate(zone, t)
			f.RangeSigmaMM[zone][t] = r.RangeSigmaMM(zone, t)
			f.DistanceMM[zone][t] = r.DistanceMM(zone, t)
			f.Reflectance[zone][t] = r.ReflectancePercent(zone, t)
			f.TargetStatus[zone][t] = r.TargetStatus(zone, t)
		}
	}
	f.Motion = r.Motion()
	return nil
}

// resultsWriter fills a results buffer. Only the emulator and tests write
// frames; the engine does it on real hardware.
type resultsWriter struct {
	Results
}

func (l Layout) writer(buf []byte) (resultsWriter, error) {
	r, err := l.View(buf)
	if err != nil {
		return resultsWriter{}, err
	}
	return resultsWriter{Results: r}, nil
}

func (w resultsWriter) setSiliconTempC(v int8) {
	w.buf[offTemperature] = byte(v)
}

func (w resultsWriter) setAmbient(zone int, v uint32) {
	byteOrder.PutUint32(w.buf[offAmbient+zone*4:], v)
}

func (w resultsWriter) setDetectedTargets(zone int, v uint8) {
	w.buf[offDetected+zone] = v
}

func (w resultsWriter) setEnabledSPADs(zone int, v uint32) {
	byteOrder.PutUint32(w.buf[offSPADs+zone*4:], v)
}

func (w resultsWriter) setSignalRate(zone, target int, v uint32) {
	byteOrder.PutUint32(w.buf[offSignal+w.index(zone, target)*4:], v)
}

func (w resultsWriter) setRangeSigmaMM(zone, target int, v uint16) {
	byteOrder.PutUint16(w.buf[w.layout.sigma+w.index(zone, target)*2:], v)
}

func (w resultsWriter) setDistanceMM(zone, target int, v int16) {
	byteOrder.PutUint16(w.buf[w.layout.distance+w.index(zone, target)*2:], uint16(v))
}

func (w resultsWriter) setReflectancePercent(zone, target int, v uint8) {
	w.buf[w.layout.reflectance+w.index(zone, target)] = v
}

func (w resultsWriter) setTargetStatus(zone, target int, v TargetStatus) {
	w.buf[w.layout.status+w.index(zone, target)] = byte(v)
}

func (w resultsWriter) setMotion(m MotionData) {
	b := w.buf[w.layout.motion:]
	byteOrder.PutUint32(b[0:], m.GlobalIndicator1)
	byteOrder.PutUint32(b[4:], m.GlobalIndicator2)
	b[8] = m.Status
	b[9] = m.DetectedAggregates
	b[10] = m.Aggregates
	b[11] = m.Spare
	for i, v := range m.Motion {
		byteOrder.PutUint32(b[12+i*4:], v)
	}
}

// encode writes f into the buffer; the inverse of Decode.
func (w resultsWriter) encode(f *Frame) {
	w.setSiliconTempC(f.SiliconTempC)
	for zone := 0; zone < MaxZones; zone++ {
		w.setAmbient(zone, f.AmbientPerSPAD[zone])
		w.setDetectedTargets(zone, f.TargetsDetected[zone])
		w.setEnabledSPADs(zone, f.SPADsEnabled[zone])
		for t := 0; t < TargetsPerZone && t < w.layout.targets; t++ {
			w.setSignalRate(zone, t, f.SignalPerSPAD[zone][t])
			w.setRangeSigmaMM(zone, t, f.RangeSigmaMM[zone][t])
			w.setDistanceMM(zone, t, f.DistanceMM[zone][t])
			w.setReflectancePercent(zone, t, f.Reflectance[zone][t])
			w.setTargetStatus(zone, t, f.TargetStatus[zone][t])
		}
	}
	w.setMotion(f.Motion)
}
