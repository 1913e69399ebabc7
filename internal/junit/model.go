// Package junit holds the benchmark report tree (testsuites → testsuite →
// testcase), the aggregator that builds it from case outcomes, and its
// JUnit XML, text and JSON renderings.
package junit

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the terminal status of an executed case.
type Status string

const (
	Passed  Status = "passed"
	Failed  Status = "failed"
	Errored Status = "errored"
	Skipped Status = "skipped"
)

// Valid reports whether s is one of the four terminal statuses.
func (s Status) Valid() bool {
	switch s {
	case Passed, Failed, Errored, Skipped:
		return true
	}
	return false
}

// Record is an error or failure entry of a case. Errors are infrastructure
// faults, failures are unmet expectations; they live in separate lists.
type Record struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Text    string `json:"text,omitempty"`
}

// Skip marks a case as skipped.
type Skip struct {
	Message string `json:"message"`
}

// Property is a suite-level key/value pair.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Case is one reported test case.
type Case struct {
	Name      string        `json:"name"`
	Classname string        `json:"classname"`
	Time      time.Duration `json:"time"`
	Status    Status        `json:"status"`
	Errors    []Record      `json:"errors,omitempty"`
	Failures  []Record      `json:"failures,omitempty"`
	SystemOut string        `json:"system_out,omitempty"`
	SystemErr string        `json:"system_err,omitempty"`
	Skipped   *Skip         `json:"skipped,omitempty"`
}

// Suite groups the cases of one executed scenario instance.
type Suite struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Package    string        `json:"package"`
	Hostname   string        `json:"hostname"`
	Timestamp  time.Time     `json:"timestamp"`
	Time       time.Duration `json:"time"`
	Tests      int           `json:"tests"`
	Failures   int           `json:"failures"`
	Errors     int           `json:"errors"`
	Disabled   int           `json:"disabled"`
	Skipped    int           `json:"skipped"`
	Properties []Property    `json:"properties,omitempty"`
	Cases      []Case        `json:"cases"`
	SystemOut  string        `json:"system_out,omitempty"`
	SystemErr  string        `json:"system_err,omitempty"`
}

// ReportRoot is the finalized report.
type ReportRoot struct {
	Name     string        `json:"name"`
	Time     time.Duration `json:"time"`
	Tests    int           `json:"tests"`
	Failures int           `json:"failures"`
	Errors   int           `json:"errors"`
	Disabled int           `json:"disabled"`
	Skipped  int           `json:"skipped"`
	Suites   []Suite       `json:"suites"`
}

// counts tallies a case list.
type counts struct {
	tests, failures, errors, skipped int
	time                             time.Duration
}

func (c *counts) add(cs Case) {
	c.tests++
	switch cs.Status {
	case Failed:
		c.failures++
	case Errored:
		c.errors++
	case Skipped:
		c.skipped++
	}
	c.time += cs.Time
}

func (s *Suite) recount() {
	var c counts
	for _, cs := range s.Cases {
		c.add(cs)
	}
	s.Tests, s.Failures, s.Errors, s.Skipped, s.Time = c.tests, c.failures, c.errors, c.skipped, c.time
}

// Validate checks that every counter equals the true count of its children.
func (r *ReportRoot) Validate() error {
	var tests, failures, errs, disabled, skipped int
	for i := range r.Suites {
		s := &r.Suites[i]
		var c counts
		for j, cs := range s.Cases {
			if !cs.Status.Valid() {
				return fmt.Errorf("suite %q case %d: invalid status %q", s.Name, j, cs.Status)
			}
			c.add(cs)
		}
		if s.Tests != c.tests || s.Failures != c.failures || s.Errors != c.errors || s.Skipped != c.skipped {
			return fmt.Errorf("suite %q: counters tests=%d failures=%d errors=%d skipped=%d disagree with cases (%d/%d/%d/%d)",
				s.Name, s.Tests, s.Failures, s.Errors, s.Skipped, c.tests, c.failures, c.errors, c.skipped)
		}
		tests += s.Tests
		failures += s.Failures
		errs += s.Errors
		disabled += s.Disabled
		skipped += s.Skipped
	}
	if r.Tests != tests || r.Failures != failures || r.Errors != errs || r.Disabled != disabled || r.Skipped != skipped {
		return fmt.Errorf("report: root counters tests=%d failures=%d errors=%d disabled=%d skipped=%d disagree with suites (%d/%d/%d/%d/%d)",
			r.Tests, r.Failures, r.Errors, r.Disabled, r.Skipped, tests, failures, errs, disabled, skipped)
	}
	return nil
}

// ExitCode maps the report to a process exit status.
func (r *ReportRoot) ExitCode() int {
	if r.Failures > 0 || r.Errors > 0 {
		return 1
	}
	return 0
}

// Passed returns the number of passed cases.
func (r *ReportRoot) Passed() int {
	return r.Tests - r.Failures - r.Errors - r.Skipped
}

// FormatSeconds renders d as fixed-point seconds with three decimals,
// independent of locale.
func FormatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
