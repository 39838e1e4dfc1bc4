package display

import (
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
)

// Table renders rows under headers as an aligned pterm table
func Table(w io.Writer, headers []string, rows [][]string) error {
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, headers)
	data = append(data, rows...)

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// Success writes a success line to w
func Success(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, pterm.Success.Sprintf(format, args...))
}

// Info writes an informational line to w
func Info(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, pterm.Info.Sprintf(format, args...))
}

// Warning writes a warning line to w
func Warning(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, pterm.Warning.Sprintf(format, args...))
}

// Error writes an error line to w
func Error(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintln(w, pterm.Error.Sprintf(format, args...))
}

// Truncate shortens s to max runes, marking the cut with an ellipsis
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

// Timestamp renders a stored RFC3339 value in local time; nil or
// unparsable values render as "-" or verbatim
func Timestamp(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return *s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// Relative renders the distance from now to a stored RFC3339 instant,
// e.g. "in 4m" or "2h ago"
func Relative(s *string, now time.Time) string {
	if s == nil || *s == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return *s
	}
	d := t.Sub(now).Round(time.Second)
	switch {
	case d > 0:
		return "in " + shortDuration(d)
	case d < 0:
		return shortDuration(-d) + " ago"
	default:
		return "now"
	}
}

func shortDuration(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
}
