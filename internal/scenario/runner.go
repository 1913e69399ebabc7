package scenario

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ppiankov/cdabench/internal/junit"
	"github.com/ppiankov/cdabench/internal/opensearch"
	"github.com/ppiankov/cdabench/internal/target"
)

// DefaultWorkers bounds concurrent case execution when Runner.Workers is unset.
const DefaultWorkers = 4

// Observer is notified of every recorded case. Calls may come from several
// goroutines.
type Observer interface {
	ObserveCase(t *target.Target, suite junit.SuiteRef, c junit.Case)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t *target.Target, suite junit.SuiteRef, c junit.Case)

// ObserveCase calls f.
func (f ObserverFunc) ObserveCase(t *target.Target, suite junit.SuiteRef, c junit.Case) {
	f(t, suite, c)
}

// Runner executes the compatible scenarios of every target and aggregates
// the outcomes into one report.
type Runner struct {
	Name       string
	Registry   *Registry
	Workers    int
	Logger     *zap.Logger
	Thresholds Thresholds
	// NewClient builds the catalogue client for a target.
	NewClient func(*target.Target) opensearch.Service
	// Reference is passed to scenarios that compare against another catalogue.
	Reference  opensearch.Searcher
	Properties []junit.Property
	Observers  []Observer
	Now        func() time.Time
}

// Run executes the run and returns the finalized report. Scenarios run in
// parallel; at most Workers cases execute at any moment across the run.
// Cancelling ctx turns unfinished cases into errored cases.
func (r *Runner) Run(ctx context.Context, targets []*target.Target, loadFactor int) (junit.ReportRoot, error) {
	if loadFactor < 1 {
		return junit.ReportRoot{}, fmt.Errorf("scenario: load factor must be >= 1, got %d", loadFactor)
	}
	if r.Registry == nil {
		return junit.ReportRoot{}, errors.New("scenario: runner has no registry")
	}
	if r.NewClient == nil {
		return junit.ReportRoot{}, errors.New("scenario: runner has no client factory")
	}

	name := r.Name
	if name == "" {
		name = "cdabench"
	}
	workers := r.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	agg := junit.NewAggregator(name)
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)

	for _, t := range targets {
		client := r.NewClient(t)
		selected := r.Registry.Select(t)
		logger.Info("target resolved",
			zap.String("target", t.Name),
			zap.String("type", string(t.Type)),
			zap.Int("scenarios", len(selected)))
		for _, d := range selected {
			g.Go(func() error {
				r.runScenario(gctx, agg, sem, logger, t, client, d, loadFactor)
				return nil
			})
		}
	}
	_ = g.Wait()

	report := agg.Finalize()
	logger.Info("run complete",
		zap.Int("tests", report.Tests),
		zap.Int("failures", report.Failures),
		zap.Int("errors", report.Errors),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (r *Runner) runScenario(ctx context.Context, agg *junit.Aggregator, sem *semaphore.Weighted,
	base *zap.Logger, t *target.Target, client opensearch.Service, d Descriptor, loadFactor int) {
	ref := junit.SuiteRef{
		ID:       d.ID,
		Name:     d.Title,
		Package:  t.Name,
		Hostname: t.Host(),
		Properties: append([]junit.Property{
			{Name: "target_type", Value: string(t.Type)},
			{Name: "target_url", Value: t.URL.String()},
			{Name: "load_factor", Value: strconv.Itoa(loadFactor)},
		}, r.Properties...),
	}
	agg.Open(ref)

	var out syncBuffer
	logger := captureLogger(base, &out).With(zap.String("target", t.Name), zap.String("scenario", d.ID))
	defer func() { agg.SetOutput(ref, out.String(), "") }()

	now := r.Now
	if now == nil {
		now = time.Now
	}
	start := time.Now()
	sc, err := instantiate(d, Env{
		Target:     t,
		LoadFactor: loadFactor,
		Client:     client,
		Reference:  r.Reference,
		Logger:     logger,
		Thresholds: r.Thresholds.WithDefaults(),
		Now:        now,
	})
	var cases []TestCase
	if err == nil {
		cases, err = generate(ctx, sc)
	}
	if err != nil {
		logger.Error("case generation failed", zap.Error(err))
		o := Error(time.Since(start), err)
		switch {
		case ctx.Err() != nil:
			o = Cancelled(time.Since(start), ctx.Err())
		case !knownKind(o.Errors[0].Type):
			o.Errors[0].Type = KindGeneration
		}
		r.record(agg, t, ref, o, d.ID+" case generation", d.ID)
		return
	}
	logger.Debug("cases generated", zap.Int("count", len(cases)))

	outcomes := make([]Outcome, len(cases))
	var wg sync.WaitGroup
	for i, tc := range cases {
		if tc == nil {
			outcomes[i] = Outcome{
				Status: junit.Errored,
				Errors: []junit.Record{{Type: KindGeneration, Message: fmt.Sprintf("case %d is nil", i+1)}},
			}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = Cancelled(0, err)
				return
			}
			defer sem.Release(1)
			outcomes[i] = execute(ctx, tc)
		}()
	}
	wg.Wait()

	for i, tc := range cases {
		r.record(agg, t, ref, outcomes[i], caseName(tc, i), d.ID)
	}
}

func (r *Runner) record(agg *junit.Aggregator, t *target.Target, ref junit.SuiteRef, o Outcome, name, classname string) {
	c := o.toCase(name, classname)
	if err := agg.RecordCase(ref, c); err != nil {
		c = Error(o.Duration, err).toCase(name, classname)
		_ = agg.RecordCase(ref, c)
	}
	for _, obs := range r.Observers {
		obs.ObserveCase(t, ref, c)
	}
}

func caseName(tc TestCase, i int) string {
	if tc == nil {
		return fmt.Sprintf("case %d", i+1)
	}
	if tc.Title() == "" {
		return "TC" + tc.ID()
	}
	return "TC" + tc.ID() + " " + tc.Title()
}

// panicError carries a value recovered from scenario code.
type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// instantiate builds the scenario for d, turning a panic into an error.
func instantiate(d Descriptor, env Env) (sc Scenario, err error) {
	defer func() {
		if p := recover(); p != nil {
			sc, err = nil, &panicError{value: p}
		}
	}()
	if sc = d.New(env); sc == nil {
		return nil, fmt.Errorf("%s: factory returned no scenario", d.ID)
	}
	return sc, nil
}

// generate calls CreateTestCases, turning a panic into an error.
func generate(ctx context.Context, sc Scenario) (cases []TestCase, err error) {
	defer func() {
		if p := recover(); p != nil {
			cases, err = nil, &panicError{value: p}
		}
	}()
	cases, err = sc.CreateTestCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", sc.ID(), err)
	}
	return cases, nil
}

// execute runs tc, abandoning it when ctx is done. A panic is recorded as
// an errored outcome.
func execute(ctx context.Context, tc TestCase) Outcome {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Cancelled(0, err)
	}

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- Outcome{
					Status:   junit.Errored,
					Duration: time.Since(start),
					Errors:   []junit.Record{{Type: KindPanic, Message: fmt.Sprint(p)}},
				}
			}
		}()
		done <- tc.Execute(ctx)
	}()

	select {
	case o := <-done:
		return settle(ctx, o, start)
	case <-ctx.Done():
		return Cancelled(time.Since(start), ctx.Err())
	}
}

// settle completes an outcome returned by a case that started at start.
// Errors caused by the run ending are recorded as cancelled; faults reported
// by the target keep their type.
func settle(ctx context.Context, o Outcome, start time.Time) Outcome {
	o = normalize(o)
	if o.Duration == 0 && o.Status != junit.Skipped {
		o.Duration = time.Since(start)
	}
	if o.Status == junit.Errored && ctx.Err() != nil && interrupted(o.Errors[0].Type) {
		return Cancelled(o.Duration, ctx.Err())
	}
	return o
}

// normalize gives every errored or failed outcome at least one record and
// turns an unknown status into an error.
func normalize(o Outcome) Outcome {
	switch {
	case !o.Status.Valid():
		return Outcome{
			Status:   junit.Errored,
			Duration: o.Duration,
			Errors:   []junit.Record{{Type: KindInvalidStatus, Message: fmt.Sprintf("case returned status %q", o.Status)}},
		}
	case o.Status == junit.Errored && len(o.Errors) == 0:
		o.Errors = []junit.Record{{Type: KindUnspecified, Message: "case reported errored without detail"}}
	case o.Status == junit.Failed && len(o.Failures) == 0:
		o.Failures = []junit.Record{{Type: KindExpectation, Message: "case reported failed without detail"}}
	}
	return o
}

// interrupted reports whether an error record of kind k stems from the run
// ending rather than from the target.
func interrupted(k string) bool {
	return k == KindCancelled || k == KindTimeout
}
