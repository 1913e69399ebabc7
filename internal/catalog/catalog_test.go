package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/cdabench/internal/junit"
	"github.com/ppiankov/cdabench/internal/opensearch"
	"github.com/ppiankov/cdabench/internal/scenario"
	"github.com/ppiankov/cdabench/internal/target"
)

var refTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeService answers searches from a function and records every query.
type fakeService struct {
	mu      sync.Mutex
	queries []opensearch.Query
	search  func(q opensearch.Query) (*opensearch.Result, error)
	fetch   func(url string, limit int64) (*opensearch.Download, error)
}

func (f *fakeService) Search(_ context.Context, q opensearch.Query) (*opensearch.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.search(q)
}

func (f *fakeService) Fetch(_ context.Context, url string, limit int64) (*opensearch.Download, error) {
	return f.fetch(url, limit)
}

func (f *fakeService) Queries() []opensearch.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]opensearch.Query(nil), f.queries...)
}

func returning(items ...opensearch.Item) func(opensearch.Query) (*opensearch.Result, error) {
	return func(opensearch.Query) (*opensearch.Result, error) {
		return &opensearch.Result{TotalResults: len(items), Items: items, Elapsed: 100 * time.Millisecond}, nil
	}
}

// latencyItem is sensed at refTime and published after delay.
func latencyItem(id string, delay time.Duration) opensearch.Item {
	return opensearch.Item{
		ID:           id,
		SensingStart: refTime.Add(-time.Minute),
		SensingEnd:   refTime,
		Published:    refTime.Add(delay),
	}
}

func env(lf int, svc opensearch.Service) scenario.Env {
	return scenario.Env{
		Target:     &target.Target{Name: "hub", Type: target.DataHub},
		LoadFactor: lf,
		Client:     svc,
		Thresholds: scenario.DefaultThresholds(),
		Now:        func() time.Time { return refTime },
	}
}

func ids(cases []scenario.TestCase) []string {
	out := make([]string, len(cases))
	for i, c := range cases {
		out[i] = c.ID()
	}
	return out
}

func TestDefaultDeclarationOrder(t *testing.T) {
	var got []string
	for _, d := range Default().All() {
		got = append(got, d.ID)
	}
	assert.Equal(t, []string{"TS01", "TS02", "TS06"}, got)
}

func TestCompatibilityByClass(t *testing.T) {
	reg := Default()
	tests := []struct {
		typ  target.Type
		want []string
	}{
		{target.DataHub, []string{"TS01", "TS02", "TS06"}},
		{target.DIAS, []string{"TS01", "TS02", "TS06"}},
		{target.ILS, []string{"TS01"}},
		{target.ThirdParty, []string{"TS01"}},
		{target.Type("UNKNOWN"), nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			var got []string
			for _, d := range reg.Select(&target.Target{Name: "x", Type: tt.typ}) {
				got = append(got, d.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLatencyDiscoverIssuesOneQuery(t *testing.T) {
	for _, tt := range []struct{ lf, count int }{{1, 10}, {5, 50}, {20, 200}, {50, 200}} {
		svc := &fakeService{search: returning(latencyItem("a", time.Hour))}
		s := NewLatencyAnalysis(env(tt.lf, svc))

		items, err := s.Discover(context.Background())
		require.NoError(t, err)
		assert.Len(t, items, 1)
		q := svc.Queries()
		require.Len(t, q, 1, "load factor %d", tt.lf)
		assert.Equal(t, tt.count, q[0].Count, "load factor %d", tt.lf)
	}
}

func TestLatencyBuildCasesExactlyTwo(t *testing.T) {
	s := NewLatencyAnalysis(env(5, &fakeService{}))
	for _, items := range [][]opensearch.Item{nil, {latencyItem("a", time.Hour)}} {
		cases := s.BuildCases(items)
		assert.Equal(t, []string{"601", "602"}, ids(cases))
		assert.Equal(t, "Data Operational Latency", cases[0].Title())
		assert.Equal(t, "Data Availability Latency", cases[1].Title())
	}
}

func TestLatencyGenerationPropagatesDiscoveryError(t *testing.T) {
	svc := &fakeService{search: func(opensearch.Query) (*opensearch.Result, error) {
		return nil, &opensearch.StatusError{Code: 502, URL: "https://hub"}
	}}
	_, err := NewLatencyAnalysis(env(1, svc)).CreateTestCases(context.Background())
	var se *opensearch.StatusError
	assert.ErrorAs(t, err, &se)
}

func TestOperationalLatency(t *testing.T) {
	tests := []struct {
		name   string
		items  []opensearch.Item
		status junit.Status
	}{
		{"no items", nil, junit.Skipped},
		{"within threshold", []opensearch.Item{latencyItem("a", 2*time.Hour), latencyItem("b", 4*time.Hour)}, junit.Passed},
		{"mean over threshold", []opensearch.Item{latencyItem("a", 20*time.Hour), latencyItem("b", 30*time.Hour)}, junit.Failed},
		{"no timing metadata", []opensearch.Item{{ID: "a"}, {ID: "b", Published: refTime}}, junit.Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewLatencyAnalysis(env(1, &fakeService{}))
			o := s.BuildCases(tt.items)[0].Execute(context.Background())
			assert.Equal(t, tt.status, o.Status)
			if tt.status == junit.Failed {
				require.Len(t, o.Failures, 1)
				assert.Empty(t, o.Errors)
			}
		})
	}
}

func TestOperationalLatencyReportsStats(t *testing.T) {
	s := NewLatencyAnalysis(env(1, &fakeService{}))
	o := s.BuildCases([]opensearch.Item{latencyItem("a", time.Hour), latencyItem("b", 3*time.Hour)})[0].Execute(context.Background())
	assert.Equal(t, junit.Passed, o.Status)
	assert.Contains(t, o.Stdout, "n=2 min=1h0m0s mean=2h0m0s max=3h0m0s")
}

func TestAvailabilityLatencyWithoutReference(t *testing.T) {
	s := NewLatencyAnalysis(env(1, &fakeService{}))
	o := s.BuildCases([]opensearch.Item{latencyItem("a", time.Hour)})[1].Execute(context.Background())
	assert.Equal(t, junit.Skipped, o.Status)
	assert.Equal(t, "no reference target configured", o.SkipReason)
}

func TestAvailabilityLatency(t *testing.T) {
	items := []opensearch.Item{latencyItem("a", 2*time.Hour), latencyItem("b", 5*time.Hour), latencyItem("c", time.Hour)}
	refPublished := map[string]time.Time{
		"a": refTime.Add(time.Hour),
		"b": refTime.Add(2 * time.Hour),
	}
	reference := &fakeService{search: func(q opensearch.Query) (*opensearch.Result, error) {
		p, ok := refPublished[q.UID]
		if !ok {
			return &opensearch.Result{}, nil
		}
		return &opensearch.Result{TotalResults: 1, Items: []opensearch.Item{{ID: q.UID, Published: p}}}, nil
	}}

	e := env(1, &fakeService{})
	e.Reference = reference
	o := NewLatencyAnalysis(e).BuildCases(items)[1].Execute(context.Background())

	// latencies 1h and 3h, mean 2h within the 3h default
	assert.Equal(t, junit.Passed, o.Status)
	assert.Contains(t, o.Stdout, "not found on reference: c")
	assert.Contains(t, o.Stdout, "mean=2h0m0s")

	var uids []string
	for _, q := range reference.Queries() {
		uids = append(uids, q.UID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, uids)

	e.Thresholds.AvailabilityLatency = 90 * time.Minute
	o = NewLatencyAnalysis(e).BuildCases(items)[1].Execute(context.Background())
	assert.Equal(t, junit.Failed, o.Status)
}

func TestAvailabilityLatencyNoMatches(t *testing.T) {
	e := env(1, &fakeService{})
	e.Reference = &fakeService{search: returning()}
	o := NewLatencyAnalysis(e).BuildCases([]opensearch.Item{latencyItem("a", time.Hour)})[1].Execute(context.Background())
	assert.Equal(t, junit.Skipped, o.Status)
}

func TestAvailabilityLatencyReferenceError(t *testing.T) {
	e := env(1, &fakeService{})
	e.Reference = &fakeService{search: func(opensearch.Query) (*opensearch.Result, error) {
		return nil, fmt.Errorf("decode: %w", opensearch.ErrMalformed)
	}}
	o := NewLatencyAnalysis(e).BuildCases([]opensearch.Item{latencyItem("a", time.Hour)})[1].Execute(context.Background())
	assert.Equal(t, junit.Errored, o.Status)
	assert.Equal(t, scenario.KindMalformed, o.Errors[0].Type)
}

func TestOnlineDownloadCases(t *testing.T) {
	items := []opensearch.Item{
		{ID: "a", Enclosure: "https://hub/a/$value"},
		{ID: "no-link"},
		{ID: "b", Enclosure: "https://hub/b/$value"},
		{ID: "c", Enclosure: "https://hub/c/$value"},
	}
	var fetched []string
	var mu sync.Mutex
	svc := &fakeService{
		search: returning(items...),
		fetch: func(url string, limit int64) (*opensearch.Download, error) {
			mu.Lock()
			fetched = append(fetched, url)
			mu.Unlock()
			assert.Equal(t, int64(1<<20), limit)
			return &opensearch.Download{Status: 200, TTFB: 50 * time.Millisecond, Elapsed: time.Second, Bytes: limit}, nil
		},
	}

	cases, err := NewOnlineDownload(env(2, svc)).CreateTestCases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"201.1", "201.2"}, ids(cases))
	assert.Equal(t, 4, svc.Queries()[0].Count)

	for _, c := range cases {
		assert.Equal(t, junit.Passed, c.Execute(context.Background()).Status)
	}
	assert.Equal(t, []string{"https://hub/a/$value", "https://hub/b/$value"}, fetched)
}

func TestOnlineDownloadSkipsWithoutEnclosures(t *testing.T) {
	svc := &fakeService{search: returning(opensearch.Item{ID: "a"})}
	cases, err := NewOnlineDownload(env(3, svc)).CreateTestCases(context.Background())
	require.NoError(t, err)
	require.Len(t, cases, 1)
	o := cases[0].Execute(context.Background())
	assert.Equal(t, junit.Skipped, o.Status)
}

func TestOnlineDownloadOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		dl     *opensearch.Download
		err    error
		status junit.Status
	}{
		{"slow first byte", &opensearch.Download{Status: 200, TTFB: time.Minute, Bytes: 10}, nil, junit.Failed},
		{"empty body", &opensearch.Download{Status: 200, TTFB: time.Millisecond}, nil, junit.Failed},
		{"http error", &opensearch.Download{Status: 404}, &opensearch.StatusError{Code: 404}, junit.Errored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				search: returning(opensearch.Item{ID: "a", Enclosure: "https://hub/a"}),
				fetch:  func(string, int64) (*opensearch.Download, error) { return tt.dl, tt.err },
			}
			cases, err := NewOnlineDownload(env(1, svc)).CreateTestCases(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.status, cases[0].Execute(context.Background()).Status)
		})
	}
}

func TestSimpleSearchCases(t *testing.T) {
	inWin := opensearch.Item{ID: "in", SensingStart: refTime.Add(-2 * time.Hour), SensingEnd: refTime.Add(-time.Hour)}
	svc := &fakeService{search: returning(inWin)}

	cases, err := NewSimpleSearch(env(3, svc)).CreateTestCases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "102", "103"}, ids(cases))
	for _, c := range cases {
		assert.Equal(t, junit.Passed, c.Execute(context.Background()).Status, c.ID())
	}

	q := svc.Queries()
	require.Len(t, q, 1+3+1)
	assert.Equal(t, 0, q[0].Count)
	assert.Equal(t, []int{1, 11, 21}, []int{q[1].StartIndex, q[2].StartIndex, q[3].StartIndex})
	assert.Equal(t, refTime.Add(-24*time.Hour), q[4].Start)
	assert.Equal(t, refTime, q[4].End)
}

func TestBasicQueryFailsOnEmptyPage(t *testing.T) {
	svc := &fakeService{search: func(q opensearch.Query) (*opensearch.Result, error) {
		if q.StartIndex > 1 {
			return &opensearch.Result{}, nil
		}
		return &opensearch.Result{Items: []opensearch.Item{{ID: "a"}}}, nil
	}}
	cases, _ := NewSimpleSearch(env(2, svc)).CreateTestCases(context.Background())
	o := cases[1].Execute(context.Background())
	assert.Equal(t, junit.Failed, o.Status)
	assert.Contains(t, o.Failures[0].Message, "page 2")
}

func TestTemporalQueryFailsOnItemOutsideWindow(t *testing.T) {
	old := opensearch.Item{ID: "old", Published: refTime.Add(-72 * time.Hour)}
	svc := &fakeService{search: returning(old)}
	cases, _ := NewSimpleSearch(env(1, svc)).CreateTestCases(context.Background())
	o := cases[2].Execute(context.Background())
	assert.Equal(t, junit.Failed, o.Status)
	assert.Contains(t, o.Stdout, "outside window: old")
}

func TestReachabilityError(t *testing.T) {
	svc := &fakeService{search: func(opensearch.Query) (*opensearch.Result, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	cases, _ := NewSimpleSearch(env(1, svc)).CreateTestCases(context.Background())
	o := cases[0].Execute(context.Background())
	assert.Equal(t, junit.Errored, o.Status)
}

func TestScenarioLogsThroughInjectedLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := env(1, &fakeService{search: returning(latencyItem("a", time.Hour))})
	e.Logger = zap.New(core)

	_, err := NewLatencyAnalysis(e).CreateTestCases(context.Background())
	require.NoError(t, err)
	entries := logs.FilterMessage("latency sample discovered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(10), entries[0].ContextMap()["requested"])
}

func TestInWindow(t *testing.T) {
	start, end := refTime.Add(-24*time.Hour), refTime
	assert.True(t, inWindow(opensearch.Item{SensingStart: start.Add(-time.Hour), SensingEnd: start.Add(time.Hour)}, start, end), "overlap")
	assert.False(t, inWindow(opensearch.Item{SensingStart: end.Add(time.Minute), SensingEnd: end.Add(time.Hour)}, start, end))
	assert.True(t, inWindow(opensearch.Item{Published: end.Add(-time.Hour)}, start, end), "published fallback")
	assert.False(t, inWindow(opensearch.Item{}, start, end), "no times")
}

func TestSummarize(t *testing.T) {
	st := summarize([]time.Duration{3 * time.Second, time.Second, 2 * time.Second})
	assert.Equal(t, 3, st.n)
	assert.Equal(t, time.Second, st.min)
	assert.Equal(t, 3*time.Second, st.max)
	assert.Equal(t, 2*time.Second, st.mean)
	assert.True(t, strings.HasPrefix(summarize(nil).String(), "n=0"))
}
