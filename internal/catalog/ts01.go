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

// SimpleSearchID identifies the simple data search scenario.
const SimpleSearchID = "TS01"

const (
	searchPageSize = 10
	temporalWindow = 24 * time.Hour
)

// SimpleSearch checks that the catalogue answers basic and time-bounded
// queries within the response time threshold.
type SimpleSearch struct {
	env scenario.Env
}

// NewSimpleSearch binds the scenario to env.
func NewSimpleSearch(env scenario.Env) *SimpleSearch {
	return &SimpleSearch{env: prepare(env)}
}

func (s *SimpleSearch) ID() string    { return SimpleSearchID }
func (s *SimpleSearch) Title() string { return "Simple Data Search" }

// CreateTestCases returns 101, 102 and 103. It does not query the target.
func (s *SimpleSearch) CreateTestCases(context.Context) ([]scenario.TestCase, error) {
	return []scenario.TestCase{
		probe{id: "101", title: "Service Reachability", run: s.reachability},
		probe{id: "102", title: "Basic Query", run: s.basicQuery},
		probe{id: "103", title: "Temporal Filter Query", run: s.temporalQuery},
	}, nil
}

func (s *SimpleSearch) reachability(ctx context.Context) scenario.Outcome {
	res, err := s.env.Client.Search(ctx, opensearch.Query{Count: 0})
	if err != nil {
		return scenario.Error(0, err)
	}
	out := fmt.Sprintf("totalResults=%d elapsed=%s\n", res.TotalResults, res.Elapsed)
	if limit := s.env.Thresholds.ResponseTime; res.Elapsed > limit {
		return scenario.Fail(res.Elapsed, fmt.Sprintf("response time %s exceeds %s", res.Elapsed, limit), out)
	}
	return scenario.Pass(res.Elapsed, out)
}

func (s *SimpleSearch) basicQuery(ctx context.Context) scenario.Outcome {
	var (
		elapsed []time.Duration
		total   time.Duration
		out     strings.Builder
	)
	for page := 0; page < s.env.LoadFactor; page++ {
		q := opensearch.Query{Count: searchPageSize, StartIndex: page*searchPageSize + 1}
		res, err := s.env.Client.Search(ctx, q)
		if err != nil {
			return scenario.Error(total, fmt.Errorf("page %d: %w", page+1, err))
		}
		total += res.Elapsed
		elapsed = append(elapsed, res.Elapsed)
		fmt.Fprintf(&out, "page %d: %d items in %s\n", page+1, len(res.Items), res.Elapsed)
		if len(res.Items) == 0 {
			return scenario.Fail(total, fmt.Sprintf("page %d returned no items", page+1), out.String())
		}
	}

	st := summarize(elapsed)
	fmt.Fprintf(&out, "response time %s\n", st)
	s.env.Logger.Debug("basic query done", zap.Int("pages", st.n), zap.Duration("mean", st.mean))
	if limit := s.env.Thresholds.ResponseTime; st.mean > limit {
		return scenario.Fail(total, fmt.Sprintf("mean response time %s exceeds %s", st.mean, limit), out.String())
	}
	return scenario.Pass(total, out.String())
}

func (s *SimpleSearch) temporalQuery(ctx context.Context) scenario.Outcome {
	end := s.env.Now().UTC().Truncate(time.Second)
	start := end.Add(-temporalWindow)

	res, err := s.env.Client.Search(ctx, opensearch.Query{
		Count: searchPageSize * s.env.LoadFactor,
		Start: start,
		End:   end,
	})
	if err != nil {
		return scenario.Error(0, err)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "window %s/%s: %d of %d items in %s\n",
		start.Format(time.RFC3339), end.Format(time.RFC3339), len(res.Items), res.TotalResults, res.Elapsed)

	var outside []string
	for _, it := range res.Items {
		if !inWindow(it, start, end) {
			outside = append(outside, it.ID)
		}
	}
	if len(outside) > 0 {
		fmt.Fprintf(&out, "outside window: %s\n", strings.Join(outside, ", "))
		return scenario.Fail(res.Elapsed,
			fmt.Sprintf("%d of %d items outside the requested window", len(outside), len(res.Items)), out.String())
	}
	if limit := s.env.Thresholds.ResponseTime; res.Elapsed > limit {
		return scenario.Fail(res.Elapsed, fmt.Sprintf("response time %s exceeds %s", res.Elapsed, limit), out.String())
	}
	return scenario.Pass(res.Elapsed, out.String())
}

// inWindow reports whether the item's sensing period overlaps [start, end].
// Items without sensing times are judged by their publication time.
func inWindow(it opensearch.Item, start, end time.Time) bool {
	from, to := it.SensingStart, it.SensingEnd
	if from.IsZero() && to.IsZero() {
		from, to = it.Published, it.Published
	}
	if from.IsZero() {
		from = to
	}
	if to.IsZero() {
		to = from
	}
	if from.IsZero() {
		return false
	}
	return !to.Before(start) && !from.After(end)
}
