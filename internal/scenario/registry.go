package scenario

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ppiankov/cdabench/internal/target"
)

// ErrDuplicate is returned when a scenario ID is registered twice.
var ErrDuplicate = errors.New("duplicate scenario id")

// Registry holds scenario descriptors in registration order.
type Registry struct {
	descs []Descriptor
	ids   map[string]bool
}

// NewRegistry returns a registry holding ds.
func NewRegistry(ds ...Descriptor) (*Registry, error) {
	r := &Registry{ids: make(map[string]bool)}
	for _, d := range ds {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d. IDs are unique within a registry.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" {
		return fmt.Errorf("scenario: register: empty id")
	}
	if d.New == nil {
		return fmt.Errorf("scenario: register %s: no factory", d.ID)
	}
	if r.ids == nil {
		r.ids = make(map[string]bool)
	}
	if r.ids[d.ID] {
		return fmt.Errorf("scenario: register %s: %w", d.ID, ErrDuplicate)
	}
	r.ids[d.ID] = true
	r.descs = append(r.descs, d)
	return nil
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.descs))
	copy(out, r.descs)
	return out
}

// Select returns the descriptors compatible with t's class, in registration
// order. Descriptors without a predicate never match.
func (r *Registry) Select(t *target.Target) []Descriptor {
	var out []Descriptor
	for _, d := range r.descs {
		if d.Compatible != nil && d.Compatible(t.Type) {
			out = append(out, d)
		}
	}
	return out
}

// Filter returns a registry restricted to IDs matching any of the glob
// patterns. No patterns returns r unchanged.
func (r *Registry) Filter(patterns ...string) (*Registry, error) {
	if len(patterns) == 0 {
		return r, nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("scenario: invalid pattern %q", p)
		}
	}
	out := &Registry{ids: make(map[string]bool)}
	for _, d := range r.descs {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, d.ID); ok {
				out.ids[d.ID] = true
				out.descs = append(out.descs, d)
				break
			}
		}
	}
	return out, nil
}
