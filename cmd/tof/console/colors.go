package console

import "github.com/fatih/color"

// Available ANSI colors
var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	Blue   = color.New(color.FgBlue).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	Faint  = color.New(color.Faint).SprintFunc()
	Bold   = color.New(color.Bold).SprintFunc()
)

// Distance colours a distance in mm by proximity.
func Distance(mm int16, valid bool) string {
	cell := Cell(int(mm))
	switch {
	case !valid:
		return Faint(cell)
	case mm < 300:
		return Red(cell)
	case mm < 800:
		return Yellow(cell)
	case mm < 2000:
		return Green(cell)
	default:
		return Blue(cell)
	}
}
