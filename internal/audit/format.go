package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Run: %s | No entries found.\n", result.RunID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s | %s–%s UTC\n", result.RunID,
		formatTime(result.Summary.FirstTimestamp, "2006-01-02 15:04:05"),
		formatTime(result.Summary.LastTimestamp, "15:04:05"))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s %-8s %-12s %-6s %-40s %8dms",
			formatTime(e.Timestamp, "15:04:05"), strings.ToUpper(e.Status),
			truncate(e.Target, 12), e.Suite, truncate(e.Case, 40), e.DurationMS)
		if e.Reason != "" {
			fmt.Fprintf(&b, "  %s", truncate(e.Reason, 60))
		}
		b.WriteString("\n")
	}

	b.WriteString(separator + "\n")
	s := result.Summary
	fmt.Fprintf(&b, "Summary: %d cases | %d passed, %d failed, %d errored, %d skipped\n",
		s.Total, s.Passed, s.Failed, s.Errored, s.Skipped)
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatTime(ts, layout string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format(layout)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
