package scenario

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/ppiankov/cdabench/internal/junit"
	"github.com/ppiankov/cdabench/internal/opensearch"
)

// Error record types.
const (
	KindTimeout     = "timeout"
	KindCancelled   = "cancelled"
	KindHTTPStatus  = "http_status"
	KindMalformed   = "malformed_response"
	KindConnection  = "connection"
	KindPanic       = "panic"
	KindGeneration  = "generation"
	KindExpectation = "expectation"

	KindInvalidStatus = "invalid_status"
	KindUnspecified   = "unspecified"
)

func knownKind(k string) bool {
	switch k {
	case KindTimeout, KindCancelled, KindHTTPStatus, KindMalformed, KindConnection, KindPanic:
		return true
	}
	return false
}

// Outcome is the result of executing one test case.
type Outcome struct {
	Status     junit.Status
	Duration   time.Duration
	Failures   []junit.Record
	Errors     []junit.Record
	SkipReason string
	Stdout     string
	Stderr     string
}

// Pass is a case whose expectations were met.
func Pass(d time.Duration, stdout string) Outcome {
	return Outcome{Status: junit.Passed, Duration: d, Stdout: stdout}
}

// Fail is a case that ran but did not meet an expectation.
func Fail(d time.Duration, message, detail string) Outcome {
	return Outcome{
		Status:   junit.Failed,
		Duration: d,
		Failures: []junit.Record{{Type: KindExpectation, Message: message, Text: detail}},
	}
}

// Error is a case that could not be evaluated because of err.
func Error(d time.Duration, err error) Outcome {
	return Outcome{
		Status:   junit.Errored,
		Duration: d,
		Errors:   []junit.Record{{Type: Classify(err), Message: err.Error()}},
	}
}

// Skip is a case whose precondition was not met.
func Skip(reason string) Outcome {
	return Outcome{Status: junit.Skipped, SkipReason: reason}
}

// Cancelled is a case interrupted by run cancellation or timeout.
func Cancelled(d time.Duration, cause error) Outcome {
	msg := "cancelled"
	if cause != nil {
		msg = "cancelled: " + cause.Error()
	}
	return Outcome{
		Status:   junit.Errored,
		Duration: d,
		Errors:   []junit.Record{{Type: KindCancelled, Message: msg}},
	}
}

// WithStdout returns o with diagnostic output attached.
func (o Outcome) WithStdout(s string) Outcome {
	o.Stdout = s
	return o
}

// Classify maps err to the type recorded on an error entry.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return KindPanic
	}
	var se *opensearch.StatusError
	if errors.As(err, &se) {
		return KindHTTPStatus
	}
	if errors.Is(err, opensearch.ErrMalformed) {
		return KindMalformed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	var ue *url.Error
	var oe *net.OpError
	if errors.As(err, &ue) || errors.As(err, &oe) {
		return KindConnection
	}
	return fmt.Sprintf("%T", err)
}

func (o Outcome) toCase(name, classname string) junit.Case {
	c := junit.Case{
		Name:      name,
		Classname: classname,
		Time:      o.Duration,
		Status:    o.Status,
		Errors:    o.Errors,
		Failures:  o.Failures,
		SystemOut: o.Stdout,
		SystemErr: o.Stderr,
	}
	if o.Status == junit.Skipped {
		c.Skipped = &junit.Skip{Message: o.SkipReason}
	}
	return c
}
