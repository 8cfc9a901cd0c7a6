// Package tracking locates a single near, reflective object in a ranging
// frame. Valid zones closer than a distance threshold and brighter than a
// reflectance threshold are weighted by reflectance; the weighted centre gives
// the object position in the field of view.
package tracking

import (
	"github.com/mklimuk/tof/vl53l5cx"
)

const (
	DefaultReflectanceThreshold = 150
	DefaultDistanceThresholdMM  = 400
)

type Options struct {
	ReflectanceThreshold float64
	DistanceThresholdMM  int16
	Target               int
}

type Option func(*Options)

// WithReflectanceThreshold sets the minimum weight of a zone, on the 0-255
// scale reflectance percentages are mapped to.
func WithReflectanceThreshold(threshold float64) Option {
	return func(o *Options) {
		o.ReflectanceThreshold = threshold
	}
}

// WithDistanceThreshold ignores zones at or beyond mm.
func WithDistanceThreshold(mm int16) Option {
	return func(o *Options) {
		o.DistanceThresholdMM = mm
	}
}

// WithTarget selects which target of each zone is considered.
func WithTarget(target int) Option {
	return func(o *Options) {
		if target >= 0 && target < vl53l5cx.TargetsPerZone {
			o.Target = target
		}
	}
}

// Object is a located object. X and Y run from -1 (left, top) to 1 (right,
// bottom) with 0 at the centre of the field of view.
type Object struct {
	X          float64
	Y          float64
	DistanceMM float64
	Zones      int
	// Weights is the filtered reflectance image the position is computed
	// from, top row first.
	Weights [][]uint8
}

// Locate returns the object seen in frame, or false when no zone passes the
// filters.
func Locate(frame *vl53l5cx.Frame, opts ...Option) (Object, bool) {
	o := Options{
		ReflectanceThreshold: DefaultReflectanceThreshold,
		DistanceThresholdMM:  DefaultDistanceThresholdMM,
	}
	for _, opt := range opts {
		opt(&o)
	}
	width := frame.Resolution.Width()
	if width < 2 {
		return Object{}, false
	}
	distance := frame.DistanceGrid(o.Target)
	reflectance := frame.ReflectanceGrid(o.Target)
	status := frame.StatusGrid(o.Target)

	obj := Object{Weights: make([][]uint8, len(distance))}
	var sum, sx, sy, dist float64
	for row := range distance {
		obj.Weights[row] = make([]uint8, width)
		for col := range distance[row] {
			if !status[row][col].Valid() || distance[row][col] >= o.DistanceThresholdMM {
				continue
			}
			w := min(float64(reflectance[row][col])*255/100, 255)
			if w <= o.ReflectanceThreshold {
				continue
			}
			obj.Weights[row][col] = uint8(w)
			sum += w
			sx += w * float64(col)
			sy += w * float64(row)
			dist += float64(distance[row][col])
			obj.Zones++
		}
	}
	if obj.Zones == 0 {
		return obj, false
	}
	span := float64(width - 1)
	obj.X = sx/sum/span*2 - 1
	obj.Y = sy/sum/span*2 - 1
	obj.DistanceMM = dist / float64(obj.Zones)
	return obj, true
}
