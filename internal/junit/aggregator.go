package junit

import (
	"fmt"
	"sync"
	"time"
)

// SuiteRef identifies a suite and carries the attributes set when the suite
// is first seen. Two refs with the same Key address the same suite.
type SuiteRef struct {
	ID         string
	Name       string
	Package    string
	Hostname   string
	Properties []Property
}

// Key returns the suite identity.
func (r SuiteRef) Key() string {
	return r.Package + "/" + r.ID
}

type suiteState struct {
	mu    sync.Mutex
	suite Suite
}

// Aggregator folds case outcomes into a report tree. Suites are kept in
// first-seen order. Each suite has its own lock, so writers to different
// suites do not contend, and a suite's counters are never observable out of
// step with its case list.
type Aggregator struct {
	name string
	now  func() time.Time

	mu    sync.Mutex
	order []*suiteState
	byKey map[string]*suiteState
}

// NewAggregator returns an empty aggregator for a report with the given name.
func NewAggregator(name string) *Aggregator {
	return &Aggregator{
		name:  name,
		now:   time.Now,
		byKey: make(map[string]*suiteState),
	}
}

func (a *Aggregator) state(ref SuiteRef) *suiteState {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := ref.Key()
	if st, ok := a.byKey[key]; ok {
		return st
	}
	st := &suiteState{suite: Suite{
		ID:         ref.ID,
		Name:       ref.Name,
		Package:    ref.Package,
		Hostname:   ref.Hostname,
		Timestamp:  a.now().UTC(),
		Properties: append([]Property(nil), ref.Properties...),
		Cases:      []Case{},
	}}
	a.byKey[key] = st
	a.order = append(a.order, st)
	return st
}

// Open makes sure the suite exists, even if it never receives a case.
func (a *Aggregator) Open(ref SuiteRef) {
	a.state(ref)
}

// RecordCase appends c to the suite addressed by ref, creating the suite on
// first use, and updates the suite counters in the same critical section.
func (a *Aggregator) RecordCase(ref SuiteRef, c Case) error {
	if !c.Status.Valid() {
		return fmt.Errorf("record case %q: invalid status %q", c.Name, c.Status)
	}
	if c.Status == Skipped {
		if c.Skipped == nil {
			c.Skipped = &Skip{}
		}
	} else {
		c.Skipped = nil
	}
	c = cloneCase(c)

	st := a.state(ref)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.suite.Cases = append(st.suite.Cases, c)
	st.suite.Tests++
	switch c.Status {
	case Failed:
		st.suite.Failures++
	case Errored:
		st.suite.Errors++
	case Skipped:
		st.suite.Skipped++
	}
	st.suite.Time += c.Time
	return nil
}

// SetOutput attaches captured output streams to a suite.
func (a *Aggregator) SetOutput(ref SuiteRef, stdout, stderr string) {
	st := a.state(ref)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.suite.SystemOut = stdout
	st.suite.SystemErr = stderr
}

// Snapshot returns a consistent copy of the suite with the given key.
func (a *Aggregator) Snapshot(key string) (Suite, bool) {
	a.mu.Lock()
	st, ok := a.byKey[key]
	a.mu.Unlock()
	if !ok {
		return Suite{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return cloneSuite(st.suite), true
}

// Finalize returns the report tree. Suite counters are recomputed from their
// cases and root counters summed from the suites. The aggregator is not
// modified, so repeated calls without new records return equal trees.
func (a *Aggregator) Finalize() ReportRoot {
	a.mu.Lock()
	states := append([]*suiteState(nil), a.order...)
	a.mu.Unlock()

	root := ReportRoot{Name: a.name, Suites: make([]Suite, 0, len(states))}
	for _, st := range states {
		st.mu.Lock()
		s := cloneSuite(st.suite)
		st.mu.Unlock()

		s.recount()
		root.Tests += s.Tests
		root.Failures += s.Failures
		root.Errors += s.Errors
		root.Disabled += s.Disabled
		root.Skipped += s.Skipped
		root.Time += s.Time
		root.Suites = append(root.Suites, s)
	}
	return root
}

func cloneSuite(s Suite) Suite {
	out := s
	out.Properties = append([]Property(nil), s.Properties...)
	out.Cases = make([]Case, len(s.Cases))
	for i, c := range s.Cases {
		out.Cases[i] = cloneCase(c)
	}
	return out
}

func cloneCase(c Case) Case {
	out := c
	out.Errors = append([]Record(nil), c.Errors...)
	out.Failures = append([]Record(nil), c.Failures...)
	if c.Skipped != nil {
		sk := *c.Skipped
		out.Skipped = &sk
	}
	return out
}
