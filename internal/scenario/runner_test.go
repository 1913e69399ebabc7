package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/cdabench/internal/junit"
	"github.com/ppiankov/cdabench/internal/opensearch"
	"github.com/ppiankov/cdabench/internal/target"
)

type fakeCase struct {
	id, title string
	fn        func(ctx context.Context) Outcome
}

func (c fakeCase) ID() string                          { return c.id }
func (c fakeCase) Title() string                       { return c.title }
func (c fakeCase) Execute(ctx context.Context) Outcome { return c.fn(ctx) }

type fakeScenario struct {
	id, title string
	create    func(ctx context.Context) ([]TestCase, error)
}

func (s fakeScenario) ID() string    { return s.id }
func (s fakeScenario) Title() string { return s.title }
func (s fakeScenario) CreateTestCases(ctx context.Context) ([]TestCase, error) {
	return s.create(ctx)
}

type nopService struct{}

func (nopService) Search(context.Context, opensearch.Query) (*opensearch.Result, error) {
	return &opensearch.Result{}, nil
}

func (nopService) Fetch(context.Context, string, int64) (*opensearch.Download, error) {
	return &opensearch.Download{}, nil
}

func mkTarget(t *testing.T, name string, typ target.Type) *target.Target {
	t.Helper()
	u, err := url.Parse("https://" + name + ".example.org/search")
	if err != nil {
		t.Fatal(err)
	}
	return &target.Target{Name: name, URL: u, Type: typ}
}

func descriptor(id string, compat func(target.Type) bool, create func(env Env) func(ctx context.Context) ([]TestCase, error)) Descriptor {
	return Descriptor{
		ID:         id,
		Title:      "Scenario " + id,
		Compatible: compat,
		New: func(env Env) Scenario {
			return fakeScenario{id: id, title: "Scenario " + id, create: create(env)}
		},
	}
}

func staticCases(cases ...TestCase) func(Env) func(context.Context) ([]TestCase, error) {
	return func(Env) func(context.Context) ([]TestCase, error) {
		return func(context.Context) ([]TestCase, error) { return cases, nil }
	}
}

func newRunner(t *testing.T, ds ...Descriptor) *Runner {
	t.Helper()
	reg, err := NewRegistry(ds...)
	if err != nil {
		t.Fatal(err)
	}
	return &Runner{
		Name:      "test",
		Registry:  reg,
		Workers:   4,
		NewClient: func(*target.Target) opensearch.Service { return nopService{} },
	}
}

func all(target.Type) bool { return true }

func TestRunRecordsCasesInDeclaredOrder(t *testing.T) {
	var cases []TestCase
	for i := 0; i < 12; i++ {
		delay := time.Duration(12-i) * time.Millisecond
		cases = append(cases, fakeCase{id: fmt.Sprintf("1%02d", i), fn: func(context.Context) Outcome {
			time.Sleep(delay)
			return Pass(delay, "")
		}})
	}
	r := newRunner(t, descriptor("TS01", all, staticCases(cases...)))
	r.Workers = 8

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Suites) != 1 {
		t.Fatalf("expected 1 suite, got %d", len(report.Suites))
	}
	for i, c := range report.Suites[0].Cases {
		want := fmt.Sprintf("TC1%02d", i)
		if c.Name != want {
			t.Errorf("case %d: expected %s, got %s", i, want, c.Name)
		}
	}
	if report.Tests != 12 || report.ExitCode() != 0 {
		t.Errorf("unexpected totals: tests=%d exit=%d", report.Tests, report.ExitCode())
	}
}

func TestRunOnlyCompatibleScenarios(t *testing.T) {
	pass := fakeCase{id: "1", fn: func(context.Context) Outcome { return Pass(time.Millisecond, "") }}
	r := newRunner(t,
		descriptor("TS01", all, staticCases(pass)),
		descriptor("TS06", CompatibleWith(target.DataHub, target.DIAS), staticCases(pass)),
		descriptor("TS99", nil, staticCases(pass)),
	)

	targets := []*target.Target{mkTarget(t, "archive", target.ILS), mkTarget(t, "hub", target.DataHub)}
	report, err := r.Run(context.Background(), targets, 1)
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	for _, s := range report.Suites {
		keys = append(keys, s.Package+"/"+s.ID)
	}
	got := strings.Join(keys, ",")
	for _, want := range []string{"archive/TS01", "hub/TS01", "hub/TS06"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing suite %s in %s", want, got)
		}
	}
	if strings.Contains(got, "archive/TS06") || strings.Contains(got, "TS99") {
		t.Errorf("incompatible suite executed: %s", got)
	}
}

func TestRunSuiteMetadata(t *testing.T) {
	pass := fakeCase{id: "101", title: "Reachability", fn: func(context.Context) Outcome { return Pass(0, "") }}
	r := newRunner(t, descriptor("TS01", all, staticCases(pass)))
	r.Properties = []junit.Property{{Name: "run_id", Value: "abc"}}

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 3)
	if err != nil {
		t.Fatal(err)
	}
	s := report.Suites[0]
	if s.Hostname != "hub.example.org" || s.Package != "hub" || s.Name != "Scenario TS01" {
		t.Errorf("unexpected suite identity: %+v", s)
	}
	if s.Cases[0].Name != "TC101 Reachability" || s.Cases[0].Classname != "TS01" {
		t.Errorf("unexpected case identity: %+v", s.Cases[0])
	}
	props := map[string]string{}
	for _, p := range s.Properties {
		props[p.Name] = p.Value
	}
	if props["load_factor"] != "3" || props["target_type"] != "DATAHUB" || props["run_id"] != "abc" {
		t.Errorf("unexpected properties: %v", props)
	}
}

func TestRunGenerationFailureBecomesErroredCase(t *testing.T) {
	failing := func(Env) func(context.Context) ([]TestCase, error) {
		return func(context.Context) ([]TestCase, error) { return nil, errors.New("catalogue unreachable") }
	}
	r := newRunner(t, descriptor("TS02", all, failing))

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if err != nil {
		t.Fatal(err)
	}
	s := report.Suites[0]
	if s.Tests != 1 || s.Errors != 1 {
		t.Fatalf("expected one errored case, got tests=%d errors=%d", s.Tests, s.Errors)
	}
	c := s.Cases[0]
	if c.Name != "TS02 case generation" {
		t.Errorf("unexpected name %q", c.Name)
	}
	if c.Errors[0].Type != KindGeneration || !strings.Contains(c.Errors[0].Message, "catalogue unreachable") {
		t.Errorf("unexpected error record %+v", c.Errors[0])
	}
}

func TestRunGenerationHTTPErrorKeepsClassification(t *testing.T) {
	failing := func(Env) func(context.Context) ([]TestCase, error) {
		return func(context.Context) ([]TestCase, error) {
			return nil, fmt.Errorf("discover: %w", &opensearch.StatusError{Code: 503, URL: "https://hub"})
		}
	}
	r := newRunner(t, descriptor("TS06", all, failing))
	report, _ := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if got := report.Suites[0].Cases[0].Errors[0].Type; got != KindHTTPStatus {
		t.Errorf("expected %s, got %s", KindHTTPStatus, got)
	}
}

func TestRunCancellationMarksCasesCancelled(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	stuck := fakeCase{id: "1", fn: func(context.Context) Outcome {
		<-release
		return Pass(0, "")
	}}
	fast := fakeCase{id: "2", fn: func(context.Context) Outcome { return Pass(time.Millisecond, "") }}
	r := newRunner(t, descriptor("TS01", all, staticCases(fast, stuck)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	targets := []*target.Target{mkTarget(t, "hub", target.DataHub)}
	done := make(chan junit.ReportRoot, 1)
	go func() {
		report, _ := r.Run(ctx, targets, 1)
		done <- report
	}()

	select {
	case report := <-done:
		cases := report.Suites[0].Cases
		if cases[0].Status != junit.Passed {
			t.Errorf("fast case: expected passed, got %s", cases[0].Status)
		}
		if cases[1].Status != junit.Errored || cases[1].Errors[0].Type != KindCancelled {
			t.Errorf("stuck case: expected cancelled error, got %+v", cases[1])
		}
		if err := report.Validate(); err != nil {
			t.Error(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	var active, peak int32
	track := func(context.Context) Outcome {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return Pass(5*time.Millisecond, "")
	}
	var cases []TestCase
	for i := 0; i < 10; i++ {
		cases = append(cases, fakeCase{id: fmt.Sprint(i), fn: track})
	}
	r := newRunner(t,
		descriptor("TS01", all, staticCases(cases...)),
		descriptor("TS02", all, staticCases(cases...)),
	)
	r.Workers = 2

	if _, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1); err != nil {
		t.Fatal(err)
	}
	if peak > 2 {
		t.Errorf("expected at most 2 concurrent cases, saw %d", peak)
	}
}

func TestRunRecoversPanickingCase(t *testing.T) {
	boom := fakeCase{id: "1", fn: func(context.Context) Outcome { panic("nil item") }}
	r := newRunner(t, descriptor("TS01", all, staticCases(boom)))

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if err != nil {
		t.Fatal(err)
	}
	c := report.Suites[0].Cases[0]
	if c.Status != junit.Errored || c.Errors[0].Type != KindPanic {
		t.Errorf("expected panic error, got %+v", c)
	}
}

func TestRunInvalidStatusBecomesError(t *testing.T) {
	bad := fakeCase{id: "1", fn: func(context.Context) Outcome { return Outcome{} }}
	r := newRunner(t, descriptor("TS01", all, staticCases(bad)))

	report, _ := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if c := report.Suites[0].Cases[0]; c.Status != junit.Errored {
		t.Errorf("expected errored, got %s", c.Status)
	}
}

func TestRunCapturesScenarioLogs(t *testing.T) {
	logging := func(env Env) func(context.Context) ([]TestCase, error) {
		return func(context.Context) ([]TestCase, error) {
			env.Logger.Info("discovered items")
			return []TestCase{fakeCase{id: "1", fn: func(context.Context) Outcome { return Skip("no items") }}}, nil
		}
	}
	r := newRunner(t, descriptor("TS02", all, logging))

	report, _ := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	s := report.Suites[0]
	if !strings.Contains(s.SystemOut, "discovered items") {
		t.Errorf("expected captured log in system-out, got %q", s.SystemOut)
	}
	if s.Skipped != 1 || s.Cases[0].Skipped == nil || s.Cases[0].Skipped.Message != "no items" {
		t.Errorf("expected skipped case, got %+v", s.Cases[0])
	}
}

func TestRunNotifiesObservers(t *testing.T) {
	pass := fakeCase{id: "1", fn: func(context.Context) Outcome { return Pass(0, "") }}
	fail := fakeCase{id: "2", fn: func(context.Context) Outcome { return Fail(0, "too slow", "") }}
	r := newRunner(t, descriptor("TS01", all, staticCases(pass, fail)))

	var mu sync.Mutex
	seen := map[junit.Status]int{}
	r.Observers = []Observer{ObserverFunc(func(_ *target.Target, _ junit.SuiteRef, c junit.Case) {
		mu.Lock()
		seen[c.Status]++
		mu.Unlock()
	})}

	if _, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1); err != nil {
		t.Fatal(err)
	}
	if seen[junit.Passed] != 1 || seen[junit.Failed] != 1 {
		t.Errorf("unexpected observations: %v", seen)
	}
}

func TestRunRejectsInvalidLoadFactor(t *testing.T) {
	r := newRunner(t)
	if _, err := r.Run(context.Background(), nil, 0); err == nil {
		t.Error("expected error for load factor 0")
	}
}

func TestRunNoTargets(t *testing.T) {
	r := newRunner(t, descriptor("TS01", all, staticCases()))
	report, err := r.Run(context.Background(), nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if report.Tests != 0 || len(report.Suites) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}

func TestRunRecoversPanickingFactory(t *testing.T) {
	pass := fakeCase{id: "101", fn: func(context.Context) Outcome { return Pass(time.Millisecond, "") }}
	broken := Descriptor{
		ID:         "TS02",
		Title:      "Broken",
		Compatible: all,
		New:        func(Env) Scenario { panic("factory boom") },
	}
	r := newRunner(t, descriptor("TS01", all, staticCases(pass)), broken)

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Suites) != 2 {
		t.Fatalf("expected 2 suites, got %d", len(report.Suites))
	}
	for _, s := range report.Suites {
		switch s.ID {
		case "TS01":
			if s.Tests != 1 || s.Cases[0].Status != junit.Passed {
				t.Errorf("healthy scenario affected: %+v", s.Cases)
			}
		case "TS02":
			c := s.Cases[0]
			if c.Name != "TS02 case generation" || c.Status != junit.Errored {
				t.Fatalf("unexpected case %+v", c)
			}
			if c.Errors[0].Type != KindPanic || !strings.Contains(c.Errors[0].Message, "factory boom") {
				t.Errorf("unexpected error record %+v", c.Errors[0])
			}
		}
	}
	if err := report.Validate(); err != nil {
		t.Error(err)
	}
}

func TestRunFactoryReturningNilScenario(t *testing.T) {
	r := newRunner(t, Descriptor{ID: "TS03", Compatible: all, New: func(Env) Scenario { return nil }})

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if err != nil {
		t.Fatal(err)
	}
	c := report.Suites[0].Cases[0]
	if c.Status != junit.Errored || c.Errors[0].Type != KindGeneration {
		t.Errorf("expected generation error, got %+v", c)
	}
}

func TestRunNilCaseBecomesErroredCase(t *testing.T) {
	pass := fakeCase{id: "1", fn: func(context.Context) Outcome { return Pass(time.Millisecond, "") }}
	r := newRunner(t, descriptor("TS01", all, staticCases(pass, nil)))

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if err != nil {
		t.Fatal(err)
	}
	s := report.Suites[0]
	if s.Tests != 2 || s.Errors != 1 {
		t.Fatalf("expected 2 tests with 1 error, got tests=%d errors=%d", s.Tests, s.Errors)
	}
	if s.Cases[0].Status != junit.Passed {
		t.Errorf("first case: expected passed, got %s", s.Cases[0].Status)
	}
	if c := s.Cases[1]; c.Name != "case 2" || c.Errors[0].Type != KindGeneration {
		t.Errorf("unexpected nil case record %+v", c)
	}
}

func TestRunBareErroredAndFailedOutcomesCarryRecords(t *testing.T) {
	errored := fakeCase{id: "1", fn: func(context.Context) Outcome { return Outcome{Status: junit.Errored} }}
	failed := fakeCase{id: "2", fn: func(context.Context) Outcome { return Outcome{Status: junit.Failed} }}
	r := newRunner(t, descriptor("TS01", all, staticCases(errored, failed)))

	report, err := r.Run(context.Background(), []*target.Target{mkTarget(t, "hub", target.DataHub)}, 1)
	if err != nil {
		t.Fatal(err)
	}
	cases := report.Suites[0].Cases
	if len(cases[0].Errors) != 1 || cases[0].Errors[0].Type != KindUnspecified {
		t.Errorf("errored case: expected one unspecified error, got %+v", cases[0].Errors)
	}
	if len(cases[1].Failures) != 1 || cases[1].Failures[0].Type != KindExpectation {
		t.Errorf("failed case: expected one expectation failure, got %+v", cases[1].Failures)
	}

	data, err := junit.Marshal(report)
	if err != nil {
		t.Fatal(err)
	}
	xml := string(data)
	if strings.Count(xml, "<error ") != report.Errors || strings.Count(xml, "<failure ") != report.Failures {
		t.Errorf("child elements disagree with counters errors=%d failures=%d:\n%s", report.Errors, report.Failures, xml)
	}
}

func TestSettleKeepsTargetFaultsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()

	httpFault := Error(time.Second, &opensearch.StatusError{Code: 502, URL: "https://hub"})
	if o := settle(ctx, httpFault, start); o.Errors[0].Type != KindHTTPStatus {
		t.Errorf("expected %s preserved, got %+v", KindHTTPStatus, o.Errors[0])
	}

	deadline := Error(time.Second, context.DeadlineExceeded)
	if o := settle(ctx, deadline, start); o.Errors[0].Type != KindCancelled {
		t.Errorf("expected %s, got %+v", KindCancelled, o.Errors[0])
	}

	if o := settle(context.Background(), deadline, start); o.Errors[0].Type != KindTimeout {
		t.Errorf("expected %s while run is live, got %+v", KindTimeout, o.Errors[0])
	}
}
