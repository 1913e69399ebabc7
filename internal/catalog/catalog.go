// Package catalog declares the benchmark scenarios and their test cases.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/cdabench/internal/scenario"
	"github.com/ppiankov/cdabench/internal/target"
)

// Descriptors returns the scenario table in declaration order.
func Descriptors() []scenario.Descriptor {
	return []scenario.Descriptor{
		{
			ID:         SimpleSearchID,
			Title:      "Simple Data Search",
			Compatible: scenario.CompatibleWith(target.Types()...),
			New:        func(env scenario.Env) scenario.Scenario { return NewSimpleSearch(env) },
		},
		{
			ID:         OnlineDownloadID,
			Title:      "Single Remote Online Download",
			Compatible: scenario.CompatibleWith(target.DataHub, target.DIAS),
			New:        func(env scenario.Env) scenario.Scenario { return NewOnlineDownload(env) },
		},
		{
			ID:         LatencyAnalysisID,
			Title:      "Data Latency Analysis",
			Compatible: scenario.CompatibleWith(target.DataHub, target.DIAS),
			New:        func(env scenario.Env) scenario.Scenario { return NewLatencyAnalysis(env) },
		},
	}
}

// Default returns a registry holding every declared scenario.
func Default() *scenario.Registry {
	reg, err := scenario.NewRegistry(Descriptors()...)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return reg
}

// prepare fills the optional parts of env.
func prepare(env scenario.Env) scenario.Env {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.LoadFactor < 1 {
		env.LoadFactor = 1
	}
	env.Thresholds = env.Thresholds.WithDefaults()
	return env
}

// probe is a test case backed by a function.
type probe struct {
	id    string
	title string
	run   func(ctx context.Context) scenario.Outcome
}

func (p probe) ID() string                                   { return p.id }
func (p probe) Title() string                                { return p.title }
func (p probe) Execute(ctx context.Context) scenario.Outcome { return p.run(ctx) }

// stats summarises a set of durations.
type stats struct {
	n              int
	min, max, mean time.Duration
}

func summarize(ds []time.Duration) stats {
	if len(ds) == 0 {
		return stats{}
	}
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return stats{
		n:    len(sorted),
		min:  sorted[0],
		max:  sorted[len(sorted)-1],
		mean: total / time.Duration(len(sorted)),
	}
}

func (s stats) String() string {
	return fmt.Sprintf("n=%d min=%s mean=%s max=%s", s.n, s.min, s.mean, s.max)
}
