package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/tof"
	"github.com/mklimuk/tof/cmd/tof/console"
)

var addressCmd = cli.Command{
	Name:  "address",
	Usage: "move the sensor to another bus address (lost on power cycle)",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "desired", Usage: "new 7-bit address", Required: true},
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		desired, err := parseAddress(c.String("desired"))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		ctx := commandContext(c)
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
		current := r.sensor.Address()
		if !c.Bool("yes") {
			ok, err := console.NoOrYes(fmt.Sprintf("move sensor %#02x to %#02x?", current, desired))
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if !ok {
				console.PInfof(console.PictoStop, "address left at %#02x", current)
				return nil
			}
		}
		err = r.sensor.SetI2CAddress(ctx, desired)
		if err != nil {
			return console.Exit(1, "could not change address: %s", console.Red(err))
		}
		console.PInfof(console.PictoPin, "sensor moved from %s to %s", console.White(fmt.Sprintf("%#02x", current)), console.Green(fmt.Sprintf("%#02x", r.sensor.Address())))
		return nil
	},
}

var scanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe all 7-bit addresses on the bus",
	Action: func(c *cli.Context) error {
		ctx := commandContext(c)
		r, err := openBus(ctx, c)
		if err != nil {
			return console.Exit(1, "could not open bus: %s", console.Red(err))
		}
		defer func() { _ = r.Close() }()
		found := scan(ctx, r.bus)
		console.Print(scanTable(found))
		return nil
	},
}

// scan returns the addresses acknowledging a one byte read.
func scan(ctx context.Context, b tof.I2CBus) map[byte]bool {
	found := map[byte]bool{}
	buf := make([]byte, 1)
	for addr := byte(0x08); addr < 0x78; addr++ {
		err := b.ReadFromAddr(ctx, addr, buf)
		if err != nil {
			slog.DebugContext(ctx, "no answer", "address", addr, "error", err)
			_ = b.Release(ctx)
			continue
		}
		found[addr] = true
	}
	return found
}

func scanTable(found map[byte]bool) string {
	var b strings.Builder
	b.WriteString("   ")
	for i := 0; i < 16; i++ {
		fmt.Fprintf(&b, "%02X ", i)
	}
	for i := 0; i < 0x80; i++ {
		if i&15 == 0 {
			fmt.Fprintf(&b, "\n%02x ", i)
		}
		switch {
		case found[byte(i)]:
			b.WriteString(console.Green(fmt.Sprintf("%02x", i)))
			b.WriteByte(' ')
		case i < 0x08 || i >= 0x78:
			b.WriteString("   ")
		default:
			b.WriteString("-- ")
		}
	}
	return b.String()
}
