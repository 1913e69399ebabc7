package scenario

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/cdabench/internal/opensearch"
	"github.com/ppiankov/cdabench/internal/target"
)

// TestCase is one executable probe. Execute is called exactly once and must
// return an outcome with a terminal status.
type TestCase interface {
	ID() string
	Title() string
	Execute(ctx context.Context) Outcome
}

// Scenario generates the ordered test cases for one target. The returned
// order is the execution and report order. Generation may query the target.
type Scenario interface {
	ID() string
	Title() string
	CreateTestCases(ctx context.Context) ([]TestCase, error)
}

// Thresholds are the expectations test cases measure against.
type Thresholds struct {
	ResponseTime        time.Duration `yaml:"response_time"`
	OperationalLatency  time.Duration `yaml:"operational_latency"`
	AvailabilityLatency time.Duration `yaml:"availability_latency"`
	DownloadTTFB        time.Duration `yaml:"download_ttfb"`
	DownloadProbeBytes  int64         `yaml:"download_probe_bytes"`
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ResponseTime:        10 * time.Second,
		OperationalLatency:  24 * time.Hour,
		AvailabilityLatency: 3 * time.Hour,
		DownloadTTFB:        30 * time.Second,
		DownloadProbeBytes:  1 << 20,
	}
}

// WithDefaults fills zero fields from DefaultThresholds.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.ResponseTime <= 0 {
		t.ResponseTime = d.ResponseTime
	}
	if t.OperationalLatency <= 0 {
		t.OperationalLatency = d.OperationalLatency
	}
	if t.AvailabilityLatency <= 0 {
		t.AvailabilityLatency = d.AvailabilityLatency
	}
	if t.DownloadTTFB <= 0 {
		t.DownloadTTFB = d.DownloadTTFB
	}
	if t.DownloadProbeBytes <= 0 {
		t.DownloadProbeBytes = d.DownloadProbeBytes
	}
	return t
}

// Env is everything a scenario factory receives. A scenario is bound to
// Env.Target for its lifetime and never modifies it.
type Env struct {
	Target     *target.Target
	LoadFactor int
	Client     opensearch.Service
	// Reference is an optional second catalogue used for comparisons.
	Reference  opensearch.Searcher
	Logger     *zap.Logger
	Thresholds Thresholds
	Now        func() time.Time
}

// Descriptor is one entry of the scenario catalog.
type Descriptor struct {
	ID         string
	Title      string
	Compatible func(target.Type) bool
	New        func(Env) Scenario
}

// CompatibleWith returns a predicate accepting exactly the given classes.
func CompatibleWith(types ...target.Type) func(target.Type) bool {
	set := make(map[target.Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return func(t target.Type) bool { return set[t] }
}
