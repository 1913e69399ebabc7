package junit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

const (
	red    = "\033[0;31m"
	green  = "\033[0;32m"
	yellow = "\033[1;33m"
	reset  = "\033[0m"
)

func paint(color bool, code, s string) string {
	if !color {
		return s
	}
	return code + s + reset
}

// FormatText renders the report as a human-readable summary.
func FormatText(r ReportRoot, color bool) string {
	var b strings.Builder

	header := fmt.Sprintf("Benchmark: %s", r.Name)
	fmt.Fprintln(&b, header)
	fmt.Fprintln(&b, strings.Repeat("═", len(header)))

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Target", "Scenario", "Tests", "Pass", "Fail", "Error", "Skip", "Time (s)", "Result"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, s := range r.Suites {
		passed := s.Tests - s.Failures - s.Errors - s.Skipped
		table.Append([]string{
			s.Package,
			s.ID + " " + s.Name,
			strconv.Itoa(s.Tests),
			strconv.Itoa(passed),
			strconv.Itoa(s.Failures),
			strconv.Itoa(s.Errors),
			strconv.Itoa(s.Skipped),
			FormatSeconds(s.Time),
			suiteResult(s, color),
		})
	}
	table.Render()

	for _, s := range r.Suites {
		for _, c := range s.Cases {
			switch c.Status {
			case Failed:
				for _, f := range c.Failures {
					fmt.Fprintf(&b, "  %s  %s/%s %s: %s\n", paint(color, red, "FAIL "), s.Package, c.Classname, c.Name, f.Message)
				}
			case Errored:
				for _, e := range c.Errors {
					fmt.Fprintf(&b, "  %s  %s/%s %s: [%s] %s\n", paint(color, red, "ERROR"), s.Package, c.Classname, c.Name, e.Type, e.Message)
				}
			case Skipped:
				msg := ""
				if c.Skipped != nil {
					msg = c.Skipped.Message
				}
				fmt.Fprintf(&b, "  %s  %s/%s %s: %s\n", paint(color, yellow, "SKIP "), s.Package, c.Classname, c.Name, msg)
			}
		}
	}

	fmt.Fprintln(&b, strings.Repeat("─", len(header)))
	status := paint(color, green, "PASS")
	if r.ExitCode() != 0 {
		status = paint(color, red, "FAIL")
	}
	fmt.Fprintf(&b, "Result: %s (%d passed, %d failed, %d errored, %d skipped of %d in %ss)\n",
		status, r.Passed(), r.Failures, r.Errors, r.Skipped, r.Tests, FormatSeconds(r.Time))

	return b.String()
}

func suiteResult(s Suite, color bool) string {
	switch {
	case s.Errors > 0:
		return paint(color, red, "ERROR")
	case s.Failures > 0:
		return paint(color, red, "FAIL")
	case s.Tests == 0 || s.Skipped == s.Tests:
		return paint(color, yellow, "SKIP")
	default:
		return paint(color, green, "PASS")
	}
}

// FormatJSON renders the report as JSON.
func FormatJSON(r ReportRoot) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}
