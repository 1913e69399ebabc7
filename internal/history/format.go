package history

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/ppiankov/cdabench/internal/junit"
)

// FormatList renders runs as a table, newest first as given.
func FormatList(runs []Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Run", "Started", "Targets", "LF", "Tests", "Fail", "Error", "Skip", "Time (s)"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, r := range runs {
		table.Append([]string{
			shortID(r.ID),
			r.StartedAt.Format(time.DateTime),
			strings.Join(r.Targets, ","),
			strconv.Itoa(r.LoadFactor),
			strconv.Itoa(r.Tests),
			strconv.Itoa(r.Failures),
			strconv.Itoa(r.Errors),
			strconv.Itoa(r.Skipped),
			junit.FormatSeconds(r.Duration),
		})
	}
	table.Render()
	return b.String()
}

// FormatRun renders one run with its per-suite rollup.
func FormatRun(r Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:      %s\n", r.ID)
	fmt.Fprintf(&b, "Name:     %s\n", r.Name)
	fmt.Fprintf(&b, "Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %ss\n", junit.FormatSeconds(r.Duration))
	fmt.Fprintf(&b, "Load:     %d\n", r.LoadFactor)
	if r.Report != "" {
		fmt.Fprintf(&b, "Report:   %s\n", r.Report)
	}
	fmt.Fprintln(&b)

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Target", "Scenario", "Tests", "Fail", "Error", "Skip", "Time (s)"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, s := range r.Suites {
		table.Append([]string{
			s.Target,
			s.Scenario + " " + s.Title,
			strconv.Itoa(s.Tests),
			strconv.Itoa(s.Failures),
			strconv.Itoa(s.Errors),
			strconv.Itoa(s.Skipped),
			junit.FormatSeconds(s.Duration),
		})
	}
	table.Render()
	return b.String()
}

// FormatJSON renders v (a Run or []Run) as indented JSON.
func FormatJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("history: marshal: %w", err)
	}
	return string(data) + "\n", nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
