package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/cdabench/internal/junit"
)

// ReplayFilter selects entries of one run, optionally one target and a
// time range.
type ReplayFilter struct {
	RunID  string
	Target string
	From   time.Time // zero value = no lower bound
	To     time.Time // zero value = no upper bound
}

// ReplaySummary holds status counts for replayed entries.
type ReplaySummary struct {
	Total          int    `json:"total"`
	Passed         int    `json:"passed"`
	Failed         int    `json:"failed"`
	Errored        int    `json:"errored"`
	Skipped        int    `json:"skipped"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
}

// ReplayResult holds the filtered entries of a run and their summary.
type ReplayResult struct {
	RunID   string        `json:"run_id"`
	Entries []Entry       `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns the entries matching filter in
// log order. Malformed lines are skipped.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{RunID: filter.RunID}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.matches(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		result.Summary.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}
	return result, nil
}

func (f ReplayFilter) matches(e Entry) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.Target != "" && e.Target != f.Target {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

func (s *ReplaySummary) add(e Entry) {
	s.Total++
	switch junit.Status(e.Status) {
	case junit.Passed:
		s.Passed++
	case junit.Failed:
		s.Failed++
	case junit.Errored:
		s.Errored++
	case junit.Skipped:
		s.Skipped++
	}
	if s.FirstTimestamp == "" || e.Timestamp < s.FirstTimestamp {
		s.FirstTimestamp = e.Timestamp
	}
	if e.Timestamp > s.LastTimestamp {
		s.LastTimestamp = e.Timestamp
	}
}
