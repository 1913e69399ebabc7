package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/cdabench/internal/opensearch"
	"github.com/ppiankov/cdabench/internal/scenario"
)

// LatencyAnalysisID identifies the data latency analysis scenario.
const LatencyAnalysisID = "TS06"

// LatencyAnalysis measures how long products take to appear on the target,
// both from acquisition (601) and relative to a reference catalogue (602).
type LatencyAnalysis struct {
	env scenario.Env
}

// NewLatencyAnalysis binds the scenario to env.
func NewLatencyAnalysis(env scenario.Env) *LatencyAnalysis {
	return &LatencyAnalysis{env: prepare(env)}
}

func (s *LatencyAnalysis) ID() string    { return LatencyAnalysisID }
func (s *LatencyAnalysis) Title() string { return "Data Latency Analysis" }

// CreateTestCases discovers recent items and builds the two latency cases
// over them.
func (s *LatencyAnalysis) CreateTestCases(ctx context.Context) ([]scenario.TestCase, error) {
	items, err := s.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return s.BuildCases(items), nil
}

// Discover issues one query for the most recent items.
func (s *LatencyAnalysis) Discover(ctx context.Context) ([]opensearch.Item, error) {
	q := opensearch.Query{Count: min(s.env.LoadFactor*10, maxDiscovery)}
	res, err := s.env.Client.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	s.env.Logger.Info("latency sample discovered",
		zap.Int("requested", q.Count), zap.Int("returned", len(res.Items)), zap.Int("total", res.TotalResults))
	return res.Items, nil
}

// BuildCases returns exactly the operational (601) and availability (602)
// latency cases, sharing items.
func (s *LatencyAnalysis) BuildCases(items []opensearch.Item) []scenario.TestCase {
	return []scenario.TestCase{
		probe{
			id:    "601",
			title: "Data Operational Latency",
			run:   func(context.Context) scenario.Outcome { return s.operationalLatency(items) },
		},
		probe{
			id:    "602",
			title: "Data Availability Latency",
			run:   func(ctx context.Context) scenario.Outcome { return s.availabilityLatency(ctx, items) },
		},
	}
}

// operationalLatency is publication time minus sensing end, per item.
func (s *LatencyAnalysis) operationalLatency(items []opensearch.Item) scenario.Outcome {
	if len(items) == 0 {
		return scenario.Skip("no items discovered")
	}

	var latencies []time.Duration
	for _, it := range items {
		if it.Published.IsZero() || it.SensingEnd.IsZero() {
			continue
		}
		latencies = append(latencies, it.Published.Sub(it.SensingEnd))
	}
	if len(latencies) == 0 {
		return scenario.Fail(0, fmt.Sprintf("none of %d items carries publication and sensing times", len(items)), "")
	}

	st := summarize(latencies)
	out := fmt.Sprintf("operational latency over %d of %d items: %s\n", st.n, len(items), st)
	if limit := s.env.Thresholds.OperationalLatency; st.mean > limit {
		return scenario.Fail(0, fmt.Sprintf("mean operational latency %s exceeds %s", st.mean, limit), out)
	}
	return scenario.Pass(0, out)
}

// availabilityLatency is the target's publication time minus the reference
// catalogue's publication time for the same product.
func (s *LatencyAnalysis) availabilityLatency(ctx context.Context, items []opensearch.Item) scenario.Outcome {
	if s.env.Reference == nil {
		return scenario.Skip("no reference target configured")
	}
	if len(items) == 0 {
		return scenario.Skip("no items discovered")
	}

	start := time.Now()
	var (
		latencies []time.Duration
		missing   []string
	)
	for _, it := range items {
		if it.Published.IsZero() {
			continue
		}
		ref, err := s.lookup(ctx, it.ID)
		if err != nil {
			return scenario.Error(time.Since(start), fmt.Errorf("reference lookup %s: %w", it.ID, err))
		}
		if ref == nil || ref.Published.IsZero() {
			missing = append(missing, it.ID)
			continue
		}
		latencies = append(latencies, it.Published.Sub(ref.Published))
	}
	elapsed := time.Since(start)

	var out strings.Builder
	if len(missing) > 0 {
		fmt.Fprintf(&out, "not found on reference: %s\n", strings.Join(missing, ", "))
	}
	if len(latencies) == 0 {
		return scenario.Skip("no discovered item matched on the reference target").WithStdout(out.String())
	}

	st := summarize(latencies)
	fmt.Fprintf(&out, "availability latency over %d of %d items: %s\n", st.n, len(items), st)
	if limit := s.env.Thresholds.AvailabilityLatency; st.mean > limit {
		return scenario.Fail(elapsed, fmt.Sprintf("mean availability latency %s exceeds %s", st.mean, limit), out.String())
	}
	return scenario.Pass(elapsed, out.String())
}

func (s *LatencyAnalysis) lookup(ctx context.Context, uid string) (*opensearch.Item, error) {
	res, err := s.env.Reference.Search(ctx, opensearch.Query{Count: 1, UID: uid})
	if err != nil {
		return nil, err
	}
	for i := range res.Items {
		if res.Items[i].ID == uid {
			return &res.Items[i], nil
		}
	}
	return nil, nil
}
