// Package report renders run results as a terminal table.
package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"golang.org/x/term"

	"github.com/agent462/drove/internal/executor"
)

// UnknownCommand marks placeholder rows that are never shown.
const UnknownCommand = "Unknown Command"

// Color palette.
var (
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4672")
	colorYellow = lipgloss.Color("#FDFF90")
	colorCyan   = lipgloss.Color("#00E5FF")
	colorSubtle = lipgloss.Color("#626262")
)

const (
	colHost = iota
	colCommand
	colStdout
	colStderr
)

// Reporter formats results for terminal display.
type Reporter struct {
	Color bool
	Width int // 0 lets the table size itself
}

// New creates a Reporter.
func New(color bool, width int) *Reporter {
	return &Reporter{Color: color, Width: width}
}

// ColorEnabled reports whether f is a terminal that should get colors.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// ForWriter returns a Reporter suited to w: colors and width follow the
// terminal when w is one, plain text otherwise.
func ForWriter(w io.Writer) *Reporter {
	f, ok := w.(*os.File)
	if !ok {
		return New(false, 0)
	}
	return New(ColorEnabled(f), TerminalWidth(f))
}

// TerminalWidth returns the width of f, or 0 when it is not a terminal.
func TerminalWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

// Render builds the results table followed by a summary line. The slice is
// only read.
func (r *Reporter) Render(results []*executor.Result) string {
	shown := make([]*executor.Result, 0, len(results))
	for _, res := range results {
		if res.Command == UnknownCommand {
			continue
		}
		shown = append(shown, res)
	}

	var b strings.Builder
	if len(shown) > 0 {
		b.WriteString(r.table(shown))
		b.WriteString("\n")
	}
	b.WriteString(r.summaryLine(shown))
	b.WriteString("\n")
	return b.String()
}

func (r *Reporter) table(results []*executor.Result) string {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		// Successes show only stdout, failures only the error text.
		var outText, errText string
		if res.Succeeded() {
			outText = strings.TrimRight(string(res.Stdout), "\n")
		} else {
			errText = strings.TrimRight(res.ErrorText(), "\n")
		}
		rows = append(rows, []string{res.Host, res.Command, outText, errText})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Host", "Command", "Standard Output", "Standard Error").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if !r.Color {
				return s
			}
			switch {
			case row == table.HeaderRow:
				return s.Bold(true)
			case col == colHost:
				return s.Foreground(colorCyan)
			case col == colStderr && row < len(results) && !results[row].Succeeded():
				return s.Foreground(colorRed)
			case col == colStderr:
				return s.Foreground(colorYellow)
			}
			return s
		})
	if r.Color {
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(colorSubtle))
	}
	if r.Width > 0 {
		t = t.Width(r.Width)
	}
	return t.String()
}

func (r *Reporter) summaryLine(results []*executor.Result) string {
	var succeeded, nonZero, failed, timedOut int
	for _, res := range results {
		switch res.Kind() {
		case executor.KindNone:
			succeeded++
		case executor.KindRemoteCommand:
			nonZero++
		case executor.KindTimeout:
			timedOut++
		default:
			failed++
		}
	}

	parts := []string{
		r.colorize(fmt.Sprintf("%d succeeded", succeeded), colorGreen),
	}
	if nonZero > 0 {
		parts = append(parts, r.colorize(fmt.Sprintf("%d non-zero exit", nonZero), colorRed))
	}
	if failed > 0 {
		parts = append(parts, r.colorize(fmt.Sprintf("%d failed", failed), colorRed))
	}
	if timedOut > 0 {
		parts = append(parts, r.colorize(fmt.Sprintf("%d timeout", timedOut), colorYellow))
	}
	return strings.Join(parts, ", ")
}

func (r *Reporter) colorize(text string, c color.Color) string {
	if !r.Color {
		return text
	}
	return lipgloss.NewStyle().Foreground(c).Render(text)
}
