package vl53l5cx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Sizes(t *testing.T) {
	tests := []struct {
		targets  int
		size     int
		distance int
		motion   int
	}{
		{targets: 1, size: 1360, distance: 964, motion: 1220},
		{targets: 2, size: 2000, distance: 1348, motion: 1860},
		{targets: 4, size: 3280, distance: 2116, motion: 3140},
	}
	for _, tt := range tests {
		l := NewLayout(tt.targets)
		assert.Equal(t, tt.targets, l.TargetsPerZone())
		assert.Equal(t, tt.size, l.Size(), "targets=%d", tt.targets)
		assert.Equal(t, tt.distance, l.distance, "targets=%d", tt.targets)
		assert.Equal(t, tt.motion, l.motion, "targets=%d", tt.targets)
	}
	assert.Equal(t, NewLayout(TargetsPerZone), DefaultLayout)
}

func TestLayout_RejectsUnsupportedTargetCount(t *testing.T) {
	assert.Panics(t, func() { NewLayout(0) })
	assert.Panics(t, func() { NewLayout(MaxTargetsPerZone + 1) })
}

func TestLayout_ViewShortBuffer(t *testing.T) {
	_, err := DefaultLayout.View(make([]byte, DefaultLayout.Size()-1))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestResults_TwoTargetsPerZone(t *testing.T) {
	l := NewLayout(2)
	buf := l.NewBuffer()
	w, err := l.writer(buf)
	require.NoError(t, err)

	w.setSiliconTempC(-5)
	for zone := 0; zone < MaxZones; zone++ {
		w.setAmbient(zone, uint32(zone*100))
		w.setDetectedTargets(zone, uint8(zone%3))
		w.setEnabledSPADs(zone, uint32(zone+1000))
		for target := 0; target < 2; target++ {
			w.setSignalRate(zone, target, uint32(zone*10+target))
			w.setRangeSigmaMM(zone, target, uint16(zone+target))
			w.setDistanceMM(zone, target, int16(zone*20-target*700))
			w.setReflectancePercent(zone, target, uint8(zone+target))
			w.setTargetStatus(zone, target, TargetStatus(target*4+5))
		}
	}

	r, err := l.View(buf)
	require.NoError(t, err)
	assert.Equal(t, int8(-5), r.SiliconTempC())
	for zone := 0; zone < MaxZones; zone++ {
		assert.Equal(t, uint32(zone*100), r.Ambient(zone))
		assert.Equal(t, uint8(zone%3), r.DetectedTargets(zone))
		assert.Equal(t, uint32(zone+1000), r.EnabledSPADs(zone))
		for target := 0; target < 2; target++ {
			assert.Equal(t, uint32(zone*10+target), r.SignalRate(zone, target))
			assert.Equal(t, uint16(zone+target), r.RangeSigmaMM(zone, target))
			assert.Equal(t, int16(zone*20-target*700), r.DistanceMM(zone, target))
			assert.Equal(t, uint8(zone+target), r.ReflectancePercent(zone, target))
			assert.Equal(t, TargetStatus(target*4+5), r.TargetStatus(zone, target))
		}
	}

	// zone-major: zone 3 target 1 is the 8th distance entry
	raw := int16(byteOrder.Uint16(buf[580+384*2+(3*2+1)*2:]))
	assert.Equal(t, int16(3*20-700), raw)
	assert.Equal(t, uint8(5+1), buf[580+512*2+(5*2+1)])

	assert.Panics(t, func() { r.DistanceMM(0, 2) })
	assert.Panics(t, func() { r.DistanceMM(MaxZones, 0) })
}

func TestResults_Motion(t *testing.T) {
	buf := DefaultLayout.NewBuffer()
	w, err := DefaultLayout.writer(buf)
	require.NoError(t, err)
	m := MotionData{GlobalIndicator1: 7, GlobalIndicator2: 9, Status: 1, DetectedAggregates: 3, Aggregates: 16, Spare: 0}
	for i := range m.Motion {
		m.Motion[i] = uint32(i * i)
	}
	w.setMotion(m)

	r, err := DefaultLayout.View(buf)
	require.NoError(t, err)
	assert.Equal(t, m, r.Motion())
	assert.Equal(t, uint32(7), byteOrder.Uint32(buf[DefaultLayout.Size()-motionSize:]))
}

func TestResults_DecodeRoundTrip(t *testing.T) {
	var want Frame
	want.SiliconTempC = 40
	for zone := 0; zone < MaxZones; zone++ {
		want.AmbientPerSPAD[zone] = uint32(zone)
		want.TargetsDetected[zone] = 1
		want.SPADsEnabled[zone] = 512
		for target := 0; target < TargetsPerZone; target++ {
			want.DistanceMM[zone][target] = int16(100 * (zone + target))
			want.TargetStatus[zone][target] = RangeValid
			want.Reflectance[zone][target] = uint8(zone)
		}
	}
	want.Motion.Motion[3] = 44

	buf := DefaultLayout.NewBuffer()
	w, err := DefaultLayout.writer(buf)
	require.NoError(t, err)
	w.encode(&want)

	r, err := DefaultLayout.View(buf)
	require.NoError(t, err)
	var got Frame
	require.NoError(t, r.Decode(&got))
	assert.Equal(t, want, got)
}

func TestResults_DecodeRejectsForeignLayout(t *testing.T) {
	other := NewLayout(1 + TargetsPerZone%MaxTargetsPerZone)
	r, err := other.View(other.NewBuffer())
	require.NoError(t, err)
	var f Frame
	assert.ErrorIs(t, r.Decode(&f), ErrDecode)
}

func TestTargetStatus(t *testing.T) {
	assert.True(t, RangeValid.Valid())
	assert.True(t, RangeValidLargePulse.Valid())
	assert.False(t, RangeValidNoTarget.Valid())
	assert.False(t, RangeNoTarget.Valid())
	assert.True(t, RangeNoTarget.Known())
	assert.True(t, RangeTargetInconsistent.Known())
	assert.False(t, TargetStatus(14).Known())
	assert.Equal(t, "unknown status", TargetStatus(200).String())
}
