package console

import (
	"strconv"

	"github.com/fatih/color"
)

var (
	Yellow = color.New(color.FgYellow).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	White  = color.New(color.FgHiWhite).SprintFunc()
	blue   = color.New(color.FgHiBlue).SprintFunc()
)

// Celsius formats a reading, blue below freezing and red above 40°C.
func Celsius(value float64) string {
	s := strconv.FormatFloat(value, 'f', -1, 64) + "°C"
	switch {
	case value < 0:
		return blue(s)
	case value > 40:
		return Red(s)
	default:
		return White(s)
	}
}
