package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/ppiankov/cdabench/internal/alert"
	"github.com/ppiankov/cdabench/internal/audit"
	"github.com/ppiankov/cdabench/internal/catalog"
	"github.com/ppiankov/cdabench/internal/config"
	"github.com/ppiankov/cdabench/internal/history"
	"github.com/ppiankov/cdabench/internal/junit"
	"github.com/ppiankov/cdabench/internal/metrics"
	"github.com/ppiankov/cdabench/internal/opensearch"
	"github.com/ppiankov/cdabench/internal/publish"
	"github.com/ppiankov/cdabench/internal/redact"
	"github.com/ppiankov/cdabench/internal/scenario"
	"github.com/ppiankov/cdabench/internal/target"
	"github.com/ppiankov/cdabench/internal/watch"
)

// postRunTimeout bounds publishing, alerting and history after a run, which
// proceed even when the run itself was interrupted.
const postRunTimeout = 2 * time.Minute

var (
	runLoadFactor int
	runWorkers    int
	runTimeout    time.Duration
	runScenarios  []string
	runTargets    []string
	runFormat     string
	runOutput     string
	runWatch      bool
	runNoColor    bool
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVarP(&runLoadFactor, "load-factor", "l", 0, "Load factor (overrides config)")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Maximum concurrently executing test cases (overrides config)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Overall run timeout (overrides config)")
	runCmd.Flags().StringSliceVarP(&runScenarios, "scenario", "s", nil, "Scenario ID glob, repeatable (e.g. TS0[12])")
	runCmd.Flags().StringSliceVarP(&runTargets, "target", "t", nil, "Only run the named target, repeatable")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "", "Report file format (junit|json|text)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "Report file path")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-run whenever the config file changes")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable coloured summary output")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark against the configured targets",
	Long: "Resolves every target, runs each compatible scenario and writes the\n" +
		"report. Exit code 0 if no case failed or errored, 1 otherwise.\n" +
		"With --watch the run repeats after every change to the config file.",
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	b := &bench{
		out:       out,
		color:     !runNoColor && isTerminal(out),
		logger:    logger,
		collector: metrics.NewCollector(),
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := b.collector.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	if runWatch {
		return b.watchConfig(ctx, cfg)
	}
	report, err := b.run(ctx, cfg)
	if err != nil {
		return err
	}
	if code := report.ExitCode(); code != 0 {
		return exitError{code: code}
	}
	return nil
}

// loadRunConfig loads --config and applies the run flags on top.
func loadRunConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if runLoadFactor > 0 {
		cfg.LoadFactor = runLoadFactor
	}
	if runWorkers > 0 {
		cfg.Workers = runWorkers
	}
	if runTimeout > 0 {
		cfg.Timeout = runTimeout
	}
	if len(runScenarios) > 0 {
		cfg.Scenarios = runScenarios
	}
	if runFormat != "" {
		cfg.Report.Format = runFormat
	}
	if runOutput != "" {
		cfg.Report.Path = runOutput
	}
	if err := selectTargets(cfg, runTargets); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// selectTargets narrows cfg to the named targets, keeping the given order.
func selectTargets(cfg *config.Config, names []string) error {
	if len(names) == 0 {
		return nil
	}
	selected := make([]target.Config, 0, len(names))
	for _, n := range names {
		t, ok := cfg.Target(n)
		if !ok {
			return fmt.Errorf("unknown target %q", n)
		}
		selected = append(selected, t)
	}
	cfg.Targets = selected
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// bench runs benchmarks and fans their results out to the configured sinks.
type bench struct {
	out       io.Writer
	color     bool
	logger    *zap.Logger
	collector *metrics.Collector
}

// run executes one benchmark run end to end.
func (b *bench) run(ctx context.Context, cfg *config.Config) (junit.ReportRoot, error) {
	runID := uuid.NewString()
	started := time.Now()
	logger := b.logger.With(zap.String("run_id", runID))

	targets, err := target.ResolveAll(ctx, nil, cfg.Targets)
	if err != nil {
		return junit.ReportRoot{}, err
	}
	reg := catalog.Default()
	if len(cfg.Scenarios) > 0 {
		if reg, err = reg.Filter(cfg.Scenarios...); err != nil {
			return junit.ReportRoot{}, err
		}
	}

	var ref opensearch.Searcher
	if cfg.Reference != nil {
		rt, err := target.HostResolver{}.Resolve(ctx, *cfg.Reference)
		if err != nil {
			return junit.ReportRoot{}, fmt.Errorf("reference: %w", err)
		}
		ref = opensearch.NewClient(rt)
	}

	scrub := redact.New(secrets(cfg)...)
	observers := []scenario.Observer{b.collector}
	if cfg.AuditLog != "" {
		al, err := audit.Open(config.ExpandPath(cfg.AuditLog))
		if err != nil {
			return junit.ReportRoot{}, err
		}
		defer al.Close()
		observers = append(observers, &audit.Recorder{Log: al, RunID: runID, Logger: logger, Scrub: scrub.Text})
	}

	runner := &scenario.Runner{
		Name:       cfg.Name,
		Registry:   reg,
		Workers:    cfg.Workers,
		Logger:     logger,
		Thresholds: cfg.Thresholds,
		NewClient:  func(t *target.Target) opensearch.Service { return opensearch.NewClient(t) },
		Reference:  ref,
		Properties: []junit.Property{
			{Name: "run_id", Value: runID},
			{Name: "config_hash", Value: cfg.Hash},
		},
		Observers: observers,
	}

	runCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	report, err := runner.Run(runCtx, targets, cfg.LoadFactor)
	if err != nil {
		return junit.ReportRoot{}, err
	}
	b.collector.ObserveRun(report)
	report = scrub.Report(report)

	data, contentType, err := encodeReport(report, cfg.Report.Format)
	if err != nil {
		return report, err
	}
	path := config.ExpandPath(cfg.Report.Path)
	if err := writeReport(path, data); err != nil {
		return report, err
	}
	fmt.Fprint(b.out, junit.FormatText(report, b.color))
	fmt.Fprintf(b.out, "Report: %s\n", path)

	postCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postRunTimeout)
	defer cancel()

	reportURL := b.publish(postCtx, cfg, runID, filepath.Base(path), contentType, data, logger)
	if err := alert.NewDispatcher(cfg.Alerts).Dispatch(postCtx, alert.NewEvent(runID, report, reportURL)); err != nil {
		logger.Warn("alert delivery failed", zap.Error(err))
	}
	if cfg.HistoryDB != "" {
		if err := recordHistory(postCtx, config.ExpandPath(cfg.HistoryDB),
			history.FromReport(runID, started, cfg.LoadFactor, path, report)); err != nil {
			logger.Warn("history record failed", zap.Error(err))
		}
	}
	if cfg.PushGateway != "" {
		if err := b.collector.Push(postCtx, cfg.PushGateway, "cdabench"); err != nil {
			logger.Warn("metrics push failed", zap.Error(err))
		}
	}
	return report, nil
}

// secrets lists the configured credentials that must not appear in reports.
func secrets(cfg *config.Config) []string {
	var out []string
	for _, t := range cfg.Targets {
		out = append(out, t.Password)
	}
	if cfg.Reference != nil {
		out = append(out, cfg.Reference.Password)
	}
	return out
}

func (b *bench) publish(ctx context.Context, cfg *config.Config, runID, name, contentType string, data []byte, logger *zap.Logger) string {
	if !cfg.Publish.Enabled() {
		return ""
	}
	p, err := publish.New(ctx, cfg.Publish, logger)
	if err != nil {
		logger.Warn("publisher unavailable", zap.Error(err))
		return ""
	}
	loc, err := p.Upload(ctx, runID, name, contentType, data)
	if err != nil {
		logger.Warn("report upload failed", zap.Error(err))
		return ""
	}
	fmt.Fprintf(b.out, "Published: %s\n", loc)
	return loc
}

// watchConfig runs once, then again after every change to --config.
// A config that fails to load or validate is logged and skipped.
func (b *bench) watchConfig(ctx context.Context, cfg *config.Config) error {
	if _, err := b.run(ctx, cfg); err != nil {
		b.logger.Error("run failed", zap.Error(err))
	}
	w, err := watch.New([]string{configPath}, b.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(b.out, "Watching %s for changes (Ctrl-C to stop)\n", configPath)
	return w.Run(ctx, func(ctx context.Context) {
		next, err := loadRunConfig()
		if err != nil {
			b.logger.Error("config reload failed", zap.Error(err))
			return
		}
		if _, err := b.run(ctx, next); err != nil {
			b.logger.Error("run failed", zap.Error(err))
		}
	})
}

func encodeReport(r junit.ReportRoot, format string) ([]byte, string, error) {
	switch format {
	case "json":
		s, err := junit.FormatJSON(r)
		return []byte(s), "application/json", err
	case "text":
		return []byte(junit.FormatText(r, false)), "text/plain; charset=utf-8", nil
	default:
		data, err := junit.Marshal(r)
		return data, "application/xml", err
	}
}

func writeReport(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func recordHistory(ctx context.Context, path string, run history.Run) error {
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, run)
}
