package audit

import (
	"go.uber.org/zap"

	"github.com/ppiankov/cdabench/internal/junit"
	"github.com/ppiankov/cdabench/internal/target"
)

// Recorder appends every observed case outcome of one run to a Log.
// Write failures are logged and do not interrupt the run.
type Recorder struct {
	Log    *Log
	RunID  string
	Logger *zap.Logger
	// Scrub, when set, is applied to the recorded reason.
	Scrub func(string) string
}

// ObserveCase records c.
func (r *Recorder) ObserveCase(t *target.Target, suite junit.SuiteRef, c junit.Case) {
	e := Entry{
		RunID:      r.RunID,
		Target:     t.Name,
		Suite:      suite.ID,
		Case:       c.Name,
		Status:     string(c.Status),
		DurationMS: c.Time.Milliseconds(),
		Reason:     reason(c),
	}
	if r.Scrub != nil {
		e.Reason = r.Scrub(e.Reason)
	}
	if err := r.Log.Record(e); err != nil && r.Logger != nil {
		r.Logger.Warn("audit record failed", zap.String("case", c.Name), zap.Error(err))
	}
}

func reason(c junit.Case) string {
	switch {
	case len(c.Failures) > 0:
		return c.Failures[0].Message
	case len(c.Errors) > 0:
		return c.Errors[0].Type + ": " + c.Errors[0].Message
	case c.Skipped != nil:
		return c.Skipped.Message
	}
	return ""
}
