package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/karalabe/hid"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tof/adapter"
	"github.com/mklimuk/tof/cmd/tof/console"
	"github.com/mklimuk/tof/gpio"
)

var gpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "MCP23017 expander driving sensor LPn lines",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "expander", Usage: "expander address", Value: fmt.Sprintf("%#02x", gpio.DefaultMCP23017Address)},
	},
	Subcommands: cli.Commands{
		&gpioReadCmd,
		&gpioStatusCmd,
		&gpioConfigureCmd,
		&gpioPullCmd,
		&gpioSetCmd,
	},
}

func withExpander(c *cli.Context, fn func(ctx context.Context, exp *gpio.MCP23017) error) error {
	address, err := parseAddress(c.String("expander"))
	if err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	ctx, cancel := context.WithTimeout(commandContext(c), 5*time.Second)
	defer cancel()
	r, err := openBus(ctx, c)
	if err != nil {
		return console.Exit(1, "could not open bus: %s", console.Red(err))
	}
	defer func() { _ = r.Close() }()
	err = fn(ctx, gpio.NewMCP23017(r.bus, address, gpio.WithRetryLimit(3)))
	if err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	return nil
}

func hexArg(c *cli.Context, i int) (byte, error) {
	if c.NArg() <= i {
		return 0, fmt.Errorf("expected %d arguments, got %d", i+1, c.NArg())
	}
	bytes, err := hex.DecodeString(c.Args().Get(i))
	if err != nil || len(bytes) != 1 {
		return 0, fmt.Errorf("could not decode byte %q", c.Args().Get(i))
	}
	return bytes[0], nil
}

var gpioReadCmd = cli.Command{
	Name: "read",
	Action: func(c *cli.Context) error {
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			values, err := exp.Read(ctx)
			if err != nil {
				return err
			}
			console.Printf("I/O A: %#X\nI/O B: %#X\n", values[0], values[1])
			return nil
		})
	},
}

var gpioStatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			data, err := exp.ReadSettings(ctx)
			if err != nil {
				return err
			}
			console.Printf("IOCON content: %#X\n", data)
			return nil
		})
	},
}

var gpioConfigureCmd = cli.Command{
	Name:      "configure",
	ArgsUsage: "<IOCON hex>",
	Action: func(c *cli.Context) error {
		data, err := hexArg(c, 0)
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			err := exp.WriteSettings(ctx, data)
			if err != nil {
				return err
			}
			console.Printf("Wrote IOCON content: %#X\n", data)
			return nil
		})
	},
}

var gpioPullCmd = cli.Command{
	Name:      "pull",
	ArgsUsage: "<GPPUA hex> [GPPUB hex]",
	Action: func(c *cli.Context) error {
		a, err := hexArg(c, 0)
		if err != nil {
			return console.Exit(1, "%s", err)
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			err := exp.PullUpA(ctx, a)
			if err != nil {
				return err
			}
			if c.NArg() > 1 {
				b, err := hexArg(c, 1)
				if err != nil {
					return err
				}
				err = exp.PullUpB(ctx, b)
				if err != nil {
					return err
				}
			}
			console.Printf("Wrote GPPU content: %#X\n", a)
			return nil
		})
	},
}

var gpioSetCmd = cli.Command{
	Name:      "set",
	Usage:     "drive an expander pin, e.g. set A3 high",
	ArgsUsage: "<A|B><0-7> <high|low>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		line, level := c.Args().Get(0), c.Args().Get(1)
		if len(line) != 2 || line[1] < '0' || line[1] > '7' {
			return console.Exit(1, "invalid pin %q", line)
		}
		port := gpio.PortA
		switch line[0] {
		case 'A', 'a':
		case 'B', 'b':
			port = gpio.PortB
		default:
			return console.Exit(1, "invalid port %q", line[:1])
		}
		if level != "high" && level != "low" {
			return console.Exit(1, "invalid level %q", level)
		}
		return withExpander(c, func(ctx context.Context, exp *gpio.MCP23017) error {
			return exp.SetOutput(ctx, port, int(line[1]-'0'), level == "high")
		})
	},
}

var usbCmd = cli.Command{
	Name: "usb",
	Subcommands: cli.Commands{
		&usbLsCmd,
		&usbDetectCmd,
	},
}

var usbLsCmd = cli.Command{
	Name: "ls",
	Action: func(c *cli.Context) error {
		devices := hid.Enumerate(0, 0)

		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "PATH\tSERIAL\tVENDOR\tPRODUCT ID\tMANUFACTURER\tPRODUCT\n")
		for _, dev := range devices {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%#x\t%#x\t%s\t%s\n",
				dev.Path, dev.Serial, dev.VendorID, dev.ProductID, dev.Manufacturer, dev.Product)
		}
		_ = w.Flush()
		return nil
	},
}

var usbDetectCmd = cli.Command{
	Name: "detect",
	Action: func(c *cli.Context) error {
		w := tabwriter.NewWriter(os.Stdout, 24, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "INDEX\tVENDOR\tPRODUCT\tDEVICE\tPATH\n")
		for i, dev := range adapter.Devices() {
			_, _ = fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\t%s\n", i, dev.VendorID, dev.ProductID, "MCP2221", dev.Path)
		}
		_ = w.Flush()
		return nil
	},
}

var mcp2221Cmd = cli.Command{
	Name: "mcp2221",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "index", Usage: "adapter index from usb detect"},
	},
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GPIOCmd,
		&mcp2221OutputsCmd,
	},
}

func withMCP2221(c *cli.Context, fn func(ctx context.Context, a *adapter.MCP2221) (any, error)) error {
	a := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
	ctx := commandContext(c)
	res, err := fn(ctx, a)
	if err != nil {
		return console.Exit(1, "adapter communication error: %s", console.Red(err))
	}
	err = writeYAML(os.Stdout, res)
	if err != nil {
		return console.Exit(1, "%s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (any, error) {
			return a.Status(ctx)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel a stuck I2C transfer",
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (any, error) {
			return a.ReleaseBus(ctx)
		})
	},
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "show GP pin designations and values",
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (any, error) {
			params, err := a.GetGPIOParameters(ctx)
			if err != nil {
				return nil, err
			}
			values, err := a.ReadGPIO(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"parameters": params, "values": values}, nil
		})
	},
}

var mcp2221OutputsCmd = cli.Command{
	Name:  "outputs",
	Usage: "switch all GP pins to GPIO outputs so they can drive LPn lines",
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (any, error) {
			params := adapter.MCP2221GPIOParameters{
				GPIO0Mode:        adapter.GPIOModeOut,
				GPIO0Designation: adapter.GPIOOperation,
				GPIO1Mode:        adapter.GPIOModeOut,
				GPIO1Designation: adapter.GPIOOperation,
				GPIO2Mode:        adapter.GPIOModeOut,
				GPIO2Designation: adapter.GPIOOperation,
				GPIO3Mode:        adapter.GPIOModeOut,
				GPIO3Designation: adapter.GPIOOperation,
			}
			err := a.SetGPIOParameters(ctx, params)
			if err != nil {
				return nil, err
			}
			return a.GetGPIOParameters(ctx)
		})
	},
}
