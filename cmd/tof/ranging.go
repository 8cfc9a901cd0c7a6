package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/tof/cmd/tof/console"
	"github.com/mklimuk/tof/tracking"
	"github.com/mklimuk/tof/vl53l5cx"
)

const pollInterval = 10 * time.Millisecond

// stream starts ranging and hands frames to fn until n frames were delivered
// or, with n == 0, until ctx is done. Ranging is stopped on return.
func stream(ctx context.Context, s *vl53l5cx.Sensor, n int, fn func(seq int, f *vl53l5cx.Frame) error) error {
	err := s.StartRanging(ctx)
	if err != nil {
		return fmt.Errorf("could not start ranging: %w", err)
	}
	defer func() {
		err := s.StopRanging(context.WithoutCancel(ctx))
		if err != nil {
			slog.WarnContext(ctx, "could not stop ranging", "error", err)
		}
	}()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	f := &vl53l5cx.Frame{}
	for seq := 0; n == 0 || seq < n; {
		select {
		case <-ctx.Done():
			if n == 0 {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}
		ready, err := s.DataReady(ctx)
		if err != nil {
			return err
		}
		if !ready {
			continue
		}
		err = s.ReadFrame(ctx, f)
		if errors.Is(err, vl53l5cx.ErrDecode) {
			slog.WarnContext(ctx, "frame dropped", "seq", seq, "error", err)
			continue
		}
		if err != nil {
			return err
		}
		err = fn(seq, f)
		if err != nil {
			return err
		}
		seq++
	}
	return nil
}

// withSensor runs fn against a configured sensor session.
func withSensor(c *cli.Context, defaults Profile, fn func(ctx context.Context, s *vl53l5cx.Sensor) error) error {
	ctx, stop := signal.NotifyContext(commandContext(c), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	r, err := openSensor(ctx, c)
	if err != nil {
		return console.Exit(1, "could not open sensor: %s", console.Red(err))
	}
	defer func() {
		err := r.Close()
		if err != nil {
			slog.WarnContext(ctx, "could not release sensor", "error", err)
		}
	}()
	p := profileFromFlags(c, defaults)
	err = p.Apply(ctx, r.sensor)
	if err != nil {
		return console.Exit(1, "could not configure sensor: %s", console.Red(err))
	}
	err = fn(ctx, r.sensor)
	if err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	return nil
}

var readCmd = cli.Command{
	Name:  "read",
	Usage: "read ranging frames",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "frames", Aliases: []string{"n"}, Usage: "number of frames", Value: 1},
		&cli.StringFlag{Name: "format", Usage: "table or yaml", Value: "table"},
		&cli.DurationFlag{Name: "timeout", Usage: "give up after", Value: 30 * time.Second},
	}, rangingFlags...),
	Action: func(c *cli.Context) error {
		format := c.String("format")
		if format != "table" && format != "yaml" {
			return console.Exit(1, "unknown format %q", format)
		}
		return withSensor(c, Profile{}, func(ctx context.Context, s *vl53l5cx.Sensor) error {
			ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
			defer cancel()
			var enc *yaml.Encoder
			if format == "yaml" {
				enc = yaml.NewEncoder(console.Output())
				enc.SetIndent(2)
				defer func() { _ = enc.Close() }()
			}
			return stream(ctx, s, c.Int("frames"), func(seq int, f *vl53l5cx.Frame) error {
				if enc != nil {
					return enc.Encode(dumpFrame(seq, f))
				}
				writeGrid(console.Output(), seq, f)
				return nil
			})
		})
	},
}

var watchCmd = cli.Command{
	Name:  "watch",
	Usage: "continuously display the distance grid",
	Flags: rangingFlags,
	Action: func(c *cli.Context) error {
		return withSensor(c, Profile{}, func(ctx context.Context, s *vl53l5cx.Sensor) error {
			return stream(ctx, s, 0, func(seq int, f *vl53l5cx.Frame) error {
				console.ClearScreen()
				writeGrid(console.Output(), seq, f)
				return nil
			})
		})
	},
}

var motionCmd = cli.Command{
	Name:  "motion",
	Usage: "display the motion indicator",
	Flags: append([]cli.Flag{
		&cli.UintFlag{Name: "min", Usage: "motion window start in mm", Value: 400},
		&cli.UintFlag{Name: "max", Usage: "motion window end in mm", Value: 1400},
	}, rangingFlags...),
	Action: func(c *cli.Context) error {
		return withSensor(c, Profile{}, func(ctx context.Context, s *vl53l5cx.Sensor) error {
			r, err := s.Resolution(ctx)
			if err != nil {
				return err
			}
			err = s.EnableMotionIndicator(ctx, r)
			if err != nil {
				return err
			}
			err = s.SetMotionDistance(ctx, uint16(c.Uint("min")), uint16(c.Uint("max")))
			if err != nil {
				return err
			}
			return stream(ctx, s, 0, func(seq int, f *vl53l5cx.Frame) error {
				console.ClearScreen()
				writeMotion(console.Output(), seq, f.Motion)
				return nil
			})
		})
	},
}

var trackSharpener uint8 = 60

var trackCmd = cli.Command{
	Name:  "track",
	Usage: "follow the nearest reflective object",
	Flags: append([]cli.Flag{
		&cli.Float64Flag{Name: "reflectance-threshold", Value: tracking.DefaultReflectanceThreshold},
		&cli.IntFlag{Name: "distance-threshold", Usage: "mm", Value: tracking.DefaultDistanceThresholdMM},
	}, rangingFlags...),
	Action: func(c *cli.Context) error {
		defaults := Profile{
			Resolution:       "8x8",
			FrequencyHz:      15,
			IntegrationMs:    20,
			SharpenerPercent: &trackSharpener,
		}
		opts := []tracking.Option{
			tracking.WithReflectanceThreshold(c.Float64("reflectance-threshold")),
			tracking.WithDistanceThreshold(int16(c.Int("distance-threshold"))),
		}
		return withSensor(c, defaults, func(ctx context.Context, s *vl53l5cx.Sensor) error {
			return stream(ctx, s, 0, func(seq int, f *vl53l5cx.Frame) error {
				obj, ok := tracking.Locate(f, opts...)
				if !ok {
					return nil
				}
				console.Printf("%.02f, %.02f, %.02f\n", obj.X, obj.Y, obj.DistanceMM)
				return nil
			})
		})
	},
}
