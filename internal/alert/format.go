package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxListedCases = 10

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return json.Marshal(event)
	}
}

func verdict(e Event) string {
	if e.Failures > 0 || e.Errors > 0 {
		return "FAIL"
	}
	return "PASS"
}

func formatSlack(event Event) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Run:* %s", event.RunID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Cases:* %d (%d passed)", event.Tests, event.Passed)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Failed:* %d  *Errored:* %d  *Skipped:* %d", event.Failures, event.Errors, event.Skipped)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Time:* %ss", event.Seconds)},
	}
	blocks := []any{
		map[string]any{
			"type": "header",
			"text": map[string]any{
				"type": "plain_text",
				"text": fmt.Sprintf("cdabench %s: %s", event.Name, verdict(event)),
			},
		},
		map[string]any{"type": "section", "fields": fields},
	}
	if len(event.FailedCases) > 0 {
		listed := event.FailedCases
		if len(listed) > maxListedCases {
			listed = listed[:maxListedCases]
		}
		blocks = append(blocks, map[string]any{
			"type": "section",
			"text": map[string]any{"type": "mrkdwn", "text": "• " + strings.Join(listed, "\n• ")},
		})
	}
	if event.ReportURL != "" {
		blocks = append(blocks, map[string]any{
			"type": "context",
			"elements": []any{
				map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("<%s|JUnit report>", event.ReportURL)},
			},
		})
	}
	return json.Marshal(map[string]any{"blocks": blocks})
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch {
	case event.Errors > 0:
		severity = "error"
	case event.Failures > 0:
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("cdabench %s: %s (%d failed, %d errored of %d)", event.Name, verdict(event), event.Failures, event.Errors, event.Tests),
			"severity": severity,
			"source":   "cdabench",
			"custom_details": map[string]any{
				"run_id":       event.RunID,
				"failed_cases": event.FailedCases,
				"report_url":   event.ReportURL,
			},
		},
	}
	return json.Marshal(payload)
}
