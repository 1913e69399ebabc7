package alert

import (
	"time"

	"github.com/ppiankov/cdabench/internal/junit"
)

// Event kinds a webhook can subscribe to.
const (
	EventFailure  = "failure"
	EventError    = "error"
	EventComplete = "complete"
)

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["failure", "error", "complete"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the run summary sent to webhook endpoints.
type Event struct {
	Timestamp   string   `json:"timestamp"`
	RunID       string   `json:"run_id"`
	Name        string   `json:"name"`
	Tests       int      `json:"tests"`
	Passed      int      `json:"passed"`
	Failures    int      `json:"failures"`
	Errors      int      `json:"errors"`
	Skipped     int      `json:"skipped"`
	Seconds     string   `json:"seconds"`
	ReportURL   string   `json:"report_url,omitempty"`
	FailedCases []string `json:"failed_cases,omitempty"`
}

// NewEvent summarises a finalized report.
func NewEvent(runID string, r junit.ReportRoot, reportURL string) Event {
	e := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RunID:     runID,
		Name:      r.Name,
		Tests:     r.Tests,
		Passed:    r.Passed(),
		Failures:  r.Failures,
		Errors:    r.Errors,
		Skipped:   r.Skipped,
		Seconds:   junit.FormatSeconds(r.Time),
		ReportURL: reportURL,
	}
	for _, s := range r.Suites {
		for _, c := range s.Cases {
			if c.Status == junit.Failed || c.Status == junit.Errored {
				e.FailedCases = append(e.FailedCases, s.Package+"/"+s.ID+" "+c.Name)
			}
		}
	}
	return e
}

// Kinds returns the event kinds e qualifies for.
func (e Event) Kinds() []string {
	kinds := []string{EventComplete}
	if e.Failures > 0 {
		kinds = append(kinds, EventFailure)
	}
	if e.Errors > 0 {
		kinds = append(kinds, EventError)
	}
	return kinds
}
