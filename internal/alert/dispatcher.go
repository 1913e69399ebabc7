package alert

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Dispatcher fans out run events to matching webhook configurations.
type Dispatcher struct {
	configs []Config
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []Config) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs}
}

// Dispatch sends event to every webhook subscribed to one of its kinds and
// waits for all deliveries. Delivery errors are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	kinds := event.Kinds()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, cfg := range d.configs {
		if !matches(cfg.Events, kinds) {
			continue
		}
		g.Go(func() error {
			if err := Send(ctx, cfg, event); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("alert %s: %w", cfg.URL, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func matches(subscribed, kinds []string) bool {
	for _, k := range kinds {
		if slices.Contains(subscribed, k) {
			return true
		}
	}
	return false
}
