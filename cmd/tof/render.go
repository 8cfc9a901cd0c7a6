package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tof/cmd/tof/console"
	"github.com/mklimuk/tof/vl53l5cx"
)

// frameDump is the YAML form of a frame, grids in image order.
type frameDump struct {
	Seq          int        `yaml:"seq"`
	Resolution   string     `yaml:"resolution"`
	SiliconTempC int8       `yaml:"silicon_temp_c"`
	Targets      [][]uint8  `yaml:"targets_detected,flow"`
	Distance     [][]int16  `yaml:"distance_mm,flow"`
	Reflectance  [][]uint8  `yaml:"reflectance_percent,flow"`
	Status       [][]uint8  `yaml:"target_status,flow"`
	Motion       [][]uint32 `yaml:"motion,flow,omitempty"`
}

func dumpFrame(seq int, f *vl53l5cx.Frame) frameDump {
	d := frameDump{
		Seq:          seq,
		Resolution:   f.Resolution.String(),
		SiliconTempC: f.SiliconTempC,
		Targets:      vl53l5cx.Flip(f.TargetsDetected[:f.Zones()], f.Resolution.Width()),
		Distance:     f.DistanceGrid(0),
		Reflectance:  f.ReflectanceGrid(0),
	}
	for _, row := range f.StatusGrid(0) {
		codes := make([]uint8, len(row))
		for i, st := range row {
			codes[i] = uint8(st)
		}
		d.Status = append(d.Status, codes)
	}
	if f.MotionEnabled {
		d.Motion = f.Motion.Grid()
	}
	return d
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(v)
	if err != nil {
		return fmt.Errorf("encoding error: %w", err)
	}
	return enc.Close()
}

// writeGrid prints the first target distance per zone, coloured by range and
// faint where the status is not valid.
func writeGrid(w io.Writer, seq int, f *vl53l5cx.Frame) {
	distance := f.DistanceGrid(0)
	status := f.StatusGrid(0)
	var b strings.Builder
	fmt.Fprintf(&b, "%s frame %d  %s  %d°C\n", console.PictoRuler, seq, f.Resolution, f.SiliconTempC)
	for row := range distance {
		for col := range distance[row] {
			b.WriteString(console.Distance(distance[row][col], status[row][col].Valid()))
		}
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}

func writeMotion(w io.Writer, seq int, m vl53l5cx.MotionData) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s frame %d  global %d/%d  aggregates %d/%d\n", console.PictoGhost, seq,
		m.GlobalIndicator1, m.GlobalIndicator2, m.DetectedAggregates, m.Aggregates)
	for _, row := range m.Grid() {
		for _, v := range row {
			cell := console.Cell(int(v))
			if v > 0 {
				cell = console.Yellow(cell)
			}
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}
