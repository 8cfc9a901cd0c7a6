package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tof"
	"github.com/mklimuk/tof/adapter"
	"github.com/mklimuk/tof/gpio"
	"github.com/mklimuk/tof/i2c"
	"github.com/mklimuk/tof/snsctx"
	"github.com/mklimuk/tof/uld"
	"github.com/mklimuk/tof/vl53l5cx"
)

const (
	adapterGeneric = "generic"
	adapterMCP2221 = "mcp2221"
	adapterSim     = "sim"
)

var rigFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "adapter",
		Usage:   "bus adapter: generic (host i2c), mcp2221 (USB bridge) or sim (emulated sensor)",
		Value:   adapterGeneric,
		EnvVars: []string{"TOF_ADAPTER"},
	},
	&cli.StringFlag{
		Name:  "device",
		Usage: "host i2c bus for the generic adapter",
		Value: "/dev/i2c-1",
	},
	&cli.IntFlag{
		Name:  "usb-index",
		Usage: "MCP2221 index when several are attached",
	},
	&cli.StringFlag{
		Name:  "addr",
		Usage: "7-bit sensor address",
		Value: "0x29",
	},
	&cli.Int64Flag{
		Name:  "speed",
		Usage: "bus clock in Hz (0 keeps the adapter default)",
	},
	&cli.BoolFlag{
		Name:  "skip-init",
		Usage: "bind to an already initialized sensor without uploading firmware",
	},
	&cli.StringFlag{
		Name:  "profile",
		Usage: "YAML sensor profile applied after init",
	},
	&cli.StringFlag{
		Name:    "engine",
		Usage:   "path of the driver shared library",
		EnvVars: []string{uld.LibraryEnv},
	},
	&cli.StringFlag{
		Name:  "lpn",
		Usage: "LPn pin driven high before binding: mcp2221:<0-3>, nanopi:<header pin> or mcp23017:<addr>:<A|B><0-7>",
	},
}

// bus is what every adapter provides.
type bus interface {
	tof.RegisterBus
	tof.I2CBus
}

// rig holds the hardware a command runs against, released in reverse order.
type rig struct {
	bus     bus
	mcp     *adapter.MCP2221
	sensor  *vl53l5cx.Sensor
	closers []func() error
}

func (r *rig) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *rig) Close() error {
	var errs []error
	for _, fn := range slices.Backward(r.closers) {
		errs = append(errs, fn())
	}
	r.closers = nil
	return errors.Join(errs...)
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

func parseAddress(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v == 0 || v > 0x7f {
		return 0, fmt.Errorf("invalid 7-bit address %q", s)
	}
	return byte(v), nil
}

// openBus opens the selected adapter.
func openBus(ctx context.Context, c *cli.Context) (*rig, error) {
	r := &rig{}
	speed := c.Int64("speed")
	switch c.String("adapter") {
	case adapterGeneric:
		b, err := i2c.NewGenericBus(c.String("device"))
		if err != nil {
			return nil, err
		}
		r.onClose(b.Close)
		if speed > 0 {
			err = b.SetSpeed(speed)
			if err != nil {
				_ = r.Close()
				return nil, err
			}
		}
		r.bus = b
	case adapterMCP2221:
		m := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("usb-index")))
		err := m.Open()
		if err != nil {
			return nil, err
		}
		r.onClose(m.Close)
		if speed > 0 {
			err = m.SetSpeed(ctx, speed)
			if err != nil {
				_ = r.Close()
				return nil, err
			}
		}
		r.bus = m
		r.mcp = m
	case adapterSim:
		address, err := parseAddress(c.String("addr"))
		if err != nil {
			return nil, err
		}
		r.bus = vl53l5cx.NewEmulatedDevice(address, vl53l5cx.DefaultScene)
	default:
		return nil, fmt.Errorf("unknown adapter %q", c.String("adapter"))
	}
	return r, nil
}

// openSensor opens the bus, the engine and binds a sensor session.
func openSensor(ctx context.Context, c *cli.Context) (*rig, error) {
	address, err := parseAddress(c.String("addr"))
	if err != nil {
		return nil, err
	}
	r, err := openBus(ctx, c)
	if err != nil {
		return nil, err
	}
	engine, err := openEngine(c, r)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	opts := []vl53l5cx.Option{
		vl53l5cx.WithAddress(address),
		vl53l5cx.WithLogger(slog.Default()),
	}
	if c.Bool("skip-init") {
		opts = append(opts, vl53l5cx.WithSkipInit())
	}
	if desc := c.String("lpn"); desc != "" {
		pin, err := openPin(r, desc)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		opts = append(opts, vl53l5cx.WithLPn(pin))
	}
	if !c.Bool("skip-init") {
		slog.InfoContext(ctx, "uploading firmware, please wait...")
	}
	s, err := vl53l5cx.New(ctx, engine, r.bus, opts...)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	r.sensor = s
	r.onClose(s.Close)
	if path := c.String("profile"); path != "" {
		p, err := LoadProfile(path)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		err = p.Apply(ctx, s)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
	}
	return r, nil
}

func openEngine(c *cli.Context, r *rig) (vl53l5cx.Engine, error) {
	if c.String("adapter") == adapterSim {
		return vl53l5cx.NewSimEngine(), nil
	}
	e, err := uld.Open(uld.LibraryPath(c.String("engine")))
	if err != nil {
		return nil, err
	}
	r.onClose(e.Close)
	return e, nil
}

func openPin(r *rig, desc string) (tof.Pin, error) {
	kind, arg, _ := strings.Cut(desc, ":")
	switch kind {
	case "mcp2221":
		if r.mcp == nil {
			return nil, fmt.Errorf("lpn %q requires the mcp2221 adapter", desc)
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || n >= adapter.GPIOCount {
			return nil, fmt.Errorf("invalid MCP2221 pin %q", arg)
		}
		return r.mcp.Pin(n), nil
	case "nanopi":
		p, err := gpio.NewNanoPiPin(arg)
		if err != nil {
			return nil, err
		}
		r.onClose(p.Close)
		return p, nil
	case "mcp23017":
		addr, line, ok := strings.Cut(arg, ":")
		if !ok || len(line) != 2 {
			return nil, fmt.Errorf("invalid expander pin %q", arg)
		}
		address, err := parseAddress(addr)
		if err != nil {
			return nil, err
		}
		port := gpio.PortA
		switch strings.ToUpper(line[:1]) {
		case "A":
		case "B":
			port = gpio.PortB
		default:
			return nil, fmt.Errorf("invalid expander port %q", line[:1])
		}
		n := int(line[1] - '0')
		if n < 0 || n > 7 {
			return nil, fmt.Errorf("invalid expander pin %q", line)
		}
		return gpio.NewMCP23017(r.bus, address, gpio.WithRetryLimit(3)).Pin(port, n), nil
	default:
		return nil, fmt.Errorf("unknown lpn pin %q", desc)
	}
}
