package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/advisorhub/internal/portfolio"
)

// ANSI escapes. colorize drops them under --no-color or NO_COLOR.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// msgOut receives progress and status messages; stdout is reserved for
// tables and exported data so it can be piped.
var msgOut io.Writer = os.Stderr

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printMark(color, mark, format string, args []any) {
	fmt.Fprintln(msgOut, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { printMark(colorGreen, "✓", format, args) }

func printError(format string, args ...any) { printMark(colorRed, "✗", format, args) }

func printWarning(format string, args ...any) { printMark(colorYellow, "!", format, args) }

// printStatus prints one "Label: value" line of `advisorhub status`.
func printStatus(label, format string, args ...any) {
	fmt.Fprintf(msgOut, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// statusColor maps a merchant health status to its display color.
func statusColor(s portfolio.Status) string {
	switch s {
	case portfolio.StatusAtRisk:
		return colorRed
	case portfolio.StatusPotential:
		return colorCyan
	case portfolio.StatusStable:
		return colorGreen
	}
	return colorYellow
}
