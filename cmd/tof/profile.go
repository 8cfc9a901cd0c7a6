package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tof/vl53l5cx"
)

// Profile is a sensor configuration loaded from YAML. Zero values leave the
// sensor setting untouched.
type Profile struct {
	PowerMode        string         `yaml:"power_mode,omitempty"`
	Resolution       string         `yaml:"resolution,omitempty"`
	FrequencyHz      uint8          `yaml:"frequency_hz,omitempty"`
	IntegrationMs    uint32         `yaml:"integration_ms,omitempty"`
	SharpenerPercent *uint8         `yaml:"sharpener_percent,omitempty"`
	TargetOrder      string         `yaml:"target_order,omitempty"`
	RangingMode      string         `yaml:"ranging_mode,omitempty"`
	Motion           *MotionProfile `yaml:"motion,omitempty"`
}

type MotionProfile struct {
	MinMM uint16 `yaml:"min_mm"`
	MaxMM uint16 `yaml:"max_mm"`
}

func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open profile: %w", err)
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var p Profile
	err = dec.Decode(&p)
	if err != nil {
		return nil, fmt.Errorf("could not decode profile %s: %w", path, err)
	}
	return &p, nil
}

var rangingFlags = []cli.Flag{
	&cli.StringFlag{Name: "resolution", Usage: "4x4 or 8x8"},
	&cli.UintFlag{Name: "frequency", Usage: "ranging frequency in Hz"},
	&cli.UintFlag{Name: "integration", Usage: "integration time in ms (autonomous mode)"},
	&cli.IntFlag{Name: "sharpener", Usage: "sharpener percent", Value: -1},
	&cli.StringFlag{Name: "order", Usage: "target order: closest or strongest"},
	&cli.StringFlag{Name: "mode", Usage: "ranging mode: continuous or autonomous"},
}

// profileFromFlags returns the ranging flags set on the command line, with
// defaults for those left unset.
func profileFromFlags(c *cli.Context, defaults Profile) Profile {
	p := defaults
	if c.IsSet("resolution") {
		p.Resolution = c.String("resolution")
	}
	if c.IsSet("frequency") {
		p.FrequencyHz = uint8(c.Uint("frequency"))
	}
	if c.IsSet("integration") {
		p.IntegrationMs = uint32(c.Uint("integration"))
	}
	if v := c.Int("sharpener"); c.IsSet("sharpener") && v >= 0 {
		sharpener := uint8(v)
		p.SharpenerPercent = &sharpener
	}
	if c.IsSet("order") {
		p.TargetOrder = c.String("order")
	}
	if c.IsSet("mode") {
		p.RangingMode = c.String("mode")
	}
	return p
}

// Apply configures the sensor. Resolution goes before frequency and
// frequency before integration time since each bounds the next.
func (p *Profile) Apply(ctx context.Context, s *vl53l5cx.Sensor) error {
	if p.PowerMode != "" {
		mode, err := parsePowerMode(p.PowerMode)
		if err != nil {
			return err
		}
		err = s.SetPowerMode(ctx, mode)
		if err != nil {
			return err
		}
	}
	if p.Resolution != "" {
		r, err := parseResolution(p.Resolution)
		if err != nil {
			return err
		}
		err = s.SetResolution(ctx, r)
		if err != nil {
			return err
		}
	}
	if p.FrequencyHz != 0 {
		err := s.SetRangingFrequencyHz(ctx, p.FrequencyHz)
		if err != nil {
			return err
		}
	}
	if p.IntegrationMs != 0 {
		err := s.SetIntegrationTimeMs(ctx, p.IntegrationMs)
		if err != nil {
			return err
		}
	}
	if p.SharpenerPercent != nil {
		err := s.SetSharpenerPercent(ctx, *p.SharpenerPercent)
		if err != nil {
			return err
		}
	}
	if p.TargetOrder != "" {
		order, err := parseTargetOrder(p.TargetOrder)
		if err != nil {
			return err
		}
		err = s.SetTargetOrder(ctx, order)
		if err != nil {
			return err
		}
	}
	if p.RangingMode != "" {
		mode, err := parseRangingMode(p.RangingMode)
		if err != nil {
			return err
		}
		err = s.SetRangingMode(ctx, mode)
		if err != nil {
			return err
		}
	}
	if p.Motion != nil {
		r, err := s.Resolution(ctx)
		if err != nil {
			return err
		}
		err = s.EnableMotionIndicator(ctx, r)
		if err != nil {
			return err
		}
		err = s.SetMotionDistance(ctx, p.Motion.MinMM, p.Motion.MaxMM)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseResolution(s string) (vl53l5cx.Resolution, error) {
	switch s {
	case "4x4", "16":
		return vl53l5cx.Resolution4x4, nil
	case "8x8", "64":
		return vl53l5cx.Resolution8x8, nil
	}
	return 0, fmt.Errorf("unknown resolution %q", s)
}

func parseTargetOrder(s string) (vl53l5cx.TargetOrder, error) {
	switch s {
	case "closest":
		return vl53l5cx.TargetOrderClosest, nil
	case "strongest":
		return vl53l5cx.TargetOrderStrongest, nil
	}
	return 0, fmt.Errorf("unknown target order %q", s)
}

func parseRangingMode(s string) (vl53l5cx.RangingMode, error) {
	switch s {
	case "continuous":
		return vl53l5cx.RangingModeContinuous, nil
	case "autonomous":
		return vl53l5cx.RangingModeAutonomous, nil
	}
	return 0, fmt.Errorf("unknown ranging mode %q", s)
}

func parsePowerMode(s string) (vl53l5cx.PowerMode, error) {
	switch s {
	case "sleep":
		return vl53l5cx.PowerModeSleep, nil
	case "wakeup":
		return vl53l5cx.PowerModeWakeup, nil
	}
	return 0, fmt.Errorf("unknown power mode %q", s)
}
