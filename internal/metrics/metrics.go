// Package metrics exposes benchmark outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ppiankov/cdabench/internal/junit"
	"github.com/ppiankov/cdabench/internal/target"
)

// Collector records case outcomes. It owns its registry so several runs in
// one process do not collide.
type Collector struct {
	registry     *prometheus.Registry
	caseDuration *prometheus.HistogramVec
	casesTotal   *prometheus.CounterVec
	runsTotal    *prometheus.CounterVec
	lastRun      prometheus.Gauge
}

// NewCollector creates and registers the benchmark metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		caseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cdabench",
				Name:      "case_duration_seconds",
				Help:      "Duration of executed test cases",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"target", "scenario", "status"},
		),
		casesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cdabench",
				Name:      "cases_total",
				Help:      "Executed test cases by outcome",
			},
			[]string{"target", "scenario", "status"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cdabench",
				Name:      "runs_total",
				Help:      "Completed benchmark runs by verdict",
			},
			[]string{"result"},
		),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cdabench",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
	c.registry.MustRegister(c.caseDuration, c.casesTotal, c.runsTotal, c.lastRun)
	return c
}

// ObserveCase records one case outcome.
func (c *Collector) ObserveCase(t *target.Target, suite junit.SuiteRef, cs junit.Case) {
	status := string(cs.Status)
	c.casesTotal.WithLabelValues(t.Name, suite.ID, status).Inc()
	if cs.Status != junit.Skipped {
		c.caseDuration.WithLabelValues(t.Name, suite.ID, status).Observe(cs.Time.Seconds())
	}
}

// ObserveRun records the verdict of a finalized report.
func (c *Collector) ObserveRun(r junit.ReportRoot) {
	result := "pass"
	if r.ExitCode() != 0 {
		result = "fail"
	}
	c.runsTotal.WithLabelValues(result).Inc()
	c.lastRun.SetToCurrentTime()
}

// Handler serves the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve: %w", err)
	}
	return nil
}

// Push sends the current metrics to a Pushgateway under job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(c.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push to %s: %w", url, err)
	}
	return nil
}
