package junit

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	refA = SuiteRef{ID: "TS01", Name: "Simple Data Search", Package: "hub", Hostname: "hub.example.org"}
	refB = SuiteRef{ID: "TS06", Name: "Data Latency Analysis", Package: "hub", Hostname: "hub.example.org"}
)

func fixedClock(a *Aggregator) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return ts }
}

func caseWith(name string, st Status, d time.Duration) Case {
	c := Case{Name: name, Classname: "TS01", Status: st, Time: d}
	switch st {
	case Failed:
		c.Failures = []Record{{Type: "expectation", Message: "too slow"}}
	case Errored:
		c.Errors = []Record{{Type: "timeout", Message: "deadline exceeded"}}
	case Skipped:
		c.Skipped = &Skip{Message: "no items"}
	}
	return c
}

func assertSuiteInvariant(t *testing.T, s Suite) {
	t.Helper()
	var failed, errored, skipped int
	for _, c := range s.Cases {
		switch c.Status {
		case Failed:
			failed++
		case Errored:
			errored++
		case Skipped:
			skipped++
		}
	}
	assert.Equal(t, len(s.Cases), s.Tests, "tests == len(cases)")
	assert.Equal(t, failed, s.Failures, "failures")
	assert.Equal(t, errored, s.Errors, "errors")
	assert.Equal(t, skipped, s.Skipped, "skipped")
}

func TestRecordCaseKeepsCountersInStep(t *testing.T) {
	a := NewAggregator("run")
	statuses := []Status{Passed, Failed, Errored, Skipped, Passed, Failed}
	for i, st := range statuses {
		require.NoError(t, a.RecordCase(refA, caseWith(fmt.Sprintf("c%d", i), st, time.Second)))
		s, ok := a.Snapshot(refA.Key())
		require.True(t, ok)
		assertSuiteInvariant(t, s)
	}

	s, _ := a.Snapshot(refA.Key())
	assert.Equal(t, 6, s.Tests)
	assert.Equal(t, 2, s.Failures)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 6*time.Second, s.Time)
}

func TestRecordCaseRejectsInvalidStatus(t *testing.T) {
	a := NewAggregator("run")
	err := a.RecordCase(refA, Case{Name: "pending"})
	require.Error(t, err)
	_, ok := a.Snapshot(refA.Key())
	assert.False(t, ok, "a rejected case must not create a suite")
}

func TestSuitesInFirstSeenOrder(t *testing.T) {
	a := NewAggregator("run")
	require.NoError(t, a.RecordCase(refB, caseWith("b1", Passed, 0)))
	require.NoError(t, a.RecordCase(refA, caseWith("a1", Passed, 0)))
	require.NoError(t, a.RecordCase(refB, caseWith("b2", Passed, 0)))

	root := a.Finalize()
	require.Len(t, root.Suites, 2)
	assert.Equal(t, "TS06", root.Suites[0].ID)
	assert.Equal(t, "TS01", root.Suites[1].ID)
	assert.Equal(t, []string{"b1", "b2"}, []string{root.Suites[0].Cases[0].Name, root.Suites[0].Cases[1].Name})
}

func TestSameIDDifferentTargetsAreSeparateSuites(t *testing.T) {
	a := NewAggregator("run")
	other := refA
	other.Package = "dias"
	require.NoError(t, a.RecordCase(refA, caseWith("x", Passed, 0)))
	require.NoError(t, a.RecordCase(other, caseWith("y", Passed, 0)))
	assert.Len(t, a.Finalize().Suites, 2)
}

func TestSkipAccounting(t *testing.T) {
	a := NewAggregator("run")
	require.NoError(t, a.RecordCase(refA, caseWith("s1", Skipped, 0)))
	require.NoError(t, a.RecordCase(refA, caseWith("s2", Skipped, 0)))

	root := a.Finalize()
	assert.Equal(t, 2, root.Tests)
	assert.Equal(t, 2, root.Skipped)
	assert.Zero(t, root.Failures)
	assert.Zero(t, root.Errors)
	assert.Equal(t, 0, root.ExitCode())
}

func TestSkippedMarkerNormalised(t *testing.T) {
	a := NewAggregator("run")
	require.NoError(t, a.RecordCase(refA, Case{Name: "s", Status: Skipped}))
	require.NoError(t, a.RecordCase(refA, Case{Name: "p", Status: Passed, Skipped: &Skip{Message: "stale"}}))

	s, _ := a.Snapshot(refA.Key())
	assert.NotNil(t, s.Cases[0].Skipped)
	assert.Nil(t, s.Cases[1].Skipped)
}

func TestFinalizeRollsUpAndIsIdempotent(t *testing.T) {
	a := NewAggregator("run")
	fixedClock(a)
	require.NoError(t, a.RecordCase(refA, caseWith("a1", Passed, 1500*time.Millisecond)))
	require.NoError(t, a.RecordCase(refA, caseWith("a2", Failed, 500*time.Millisecond)))
	require.NoError(t, a.RecordCase(refB, caseWith("b1", Errored, time.Second)))
	require.NoError(t, a.RecordCase(refB, caseWith("b2", Skipped, 0)))
	a.Open(SuiteRef{ID: "TS02", Name: "Download", Package: "hub"})

	first := a.Finalize()
	require.NoError(t, first.Validate())
	assert.Equal(t, 4, first.Tests)
	assert.Equal(t, 1, first.Failures)
	assert.Equal(t, 1, first.Errors)
	assert.Equal(t, 1, first.Skipped)
	assert.Equal(t, 3*time.Second, first.Time)
	require.Len(t, first.Suites, 3)
	assert.Zero(t, first.Suites[2].Tests, "opened suite has no cases")

	second := a.Finalize()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Finalize not idempotent (-first +second):\n%s", diff)
	}
}

func TestFinalizeReturnsIndependentCopy(t *testing.T) {
	a := NewAggregator("run")
	require.NoError(t, a.RecordCase(refA, caseWith("a1", Failed, 0)))

	root := a.Finalize()
	root.Suites[0].Cases[0].Failures[0].Message = "mutated"
	root.Suites[0].Tests = 99

	again := a.Finalize()
	assert.Equal(t, "too slow", again.Suites[0].Cases[0].Failures[0].Message)
	assert.Equal(t, 1, again.Suites[0].Tests)
}

func TestConcurrentRecordAndSnapshot(t *testing.T) {
	a := NewAggregator("run")
	statuses := []Status{Passed, Failed, Errored, Skipped}
	refs := []SuiteRef{refA, refB}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				ref := refs[rnd.Intn(len(refs))]
				st := statuses[rnd.Intn(len(statuses))]
				_ = a.RecordCase(ref, caseWith("c", st, time.Millisecond))
			}
		}(int64(w))
	}

	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, ref := range refs {
				if s, ok := a.Snapshot(ref.Key()); ok {
					assertSuiteInvariant(t, s)
				}
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone

	root := a.Finalize()
	require.NoError(t, root.Validate())
	assert.Equal(t, 8*200, root.Tests)
}

func TestValidateDetectsBrokenRollups(t *testing.T) {
	a := NewAggregator("run")
	require.NoError(t, a.RecordCase(refA, caseWith("a1", Failed, 0)))
	root := a.Finalize()

	broken := root
	broken.Suites = []Suite{root.Suites[0]}
	broken.Suites[0].Failures = 0
	assert.Error(t, broken.Validate())

	broken = root
	broken.Errors = 3
	assert.Error(t, broken.Validate())
}
