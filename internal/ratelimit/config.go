package ratelimit

import "time"

// Limit defines the request budget for one target.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// HasLimit returns true if the limit is configured.
func (l Limit) HasLimit() bool {
	return l.MaxRequests > 0 && l.Window > 0
}
