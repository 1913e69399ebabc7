package scenario

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/cdabench/internal/target"
)

// Selection lists the scenarios that would run against one target.
type Selection struct {
	Target    string         `json:"target"`
	Type      target.Type    `json:"type"`
	URL       string         `json:"url"`
	Scenarios []SelectedItem `json:"scenarios"`
}

// SelectedItem is one scenario in a Selection.
type SelectedItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Plan computes the selection for every target without executing anything.
func Plan(reg *Registry, targets []*target.Target) []Selection {
	out := make([]Selection, 0, len(targets))
	for _, t := range targets {
		sel := Selection{Target: t.Name, Type: t.Type, URL: t.URL.String(), Scenarios: []SelectedItem{}}
		for _, d := range reg.Select(t) {
			sel.Scenarios = append(sel.Scenarios, SelectedItem{ID: d.ID, Title: d.Title})
		}
		out = append(out, sel)
	}
	return out
}

// FormatText renders a plan as human-readable text.
func FormatText(plan []Selection) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Planning %d target", len(plan))
	if len(plan) != 1 {
		b.WriteString("s")
	}
	b.WriteString("...\n\n")

	total := 0
	for _, s := range plan {
		fmt.Fprintf(&b, "  %s (%s) %s\n", s.Target, s.Type, s.URL)
		if len(s.Scenarios) == 0 {
			b.WriteString("    no compatible scenarios\n")
			continue
		}
		for _, sc := range s.Scenarios {
			fmt.Fprintf(&b, "    %-6s %s\n", sc.ID, sc.Title)
		}
		total += len(s.Scenarios)
	}

	fmt.Fprintf(&b, "\n%d scenario instances selected.\n", total)
	return b.String()
}

// FormatJSON renders a plan as JSON.
func FormatJSON(plan []Selection) (string, error) {
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal plan: %w", err)
	}
	return string(data), nil
}
