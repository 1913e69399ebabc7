// Package config loads the cdabench run configuration.
package config

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/cdabench/internal/alert"
	"github.com/ppiankov/cdabench/internal/logging"
	"github.com/ppiankov/cdabench/internal/publish"
	"github.com/ppiankov/cdabench/internal/scenario"
	"github.com/ppiankov/cdabench/internal/target"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// DefaultPath is used when no --config flag is given.
const DefaultPath = "cdabench.yaml"

//go:embed sample.yaml
var sample []byte

// Sample returns the annotated configuration written by `cdabench init`.
func Sample() []byte {
	return append([]byte(nil), sample...)
}

// Report controls where the finalized report is written.
type Report struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "junit", "json" or "text"
}

// Config is the full run configuration.
type Config struct {
	Name        string              `yaml:"name"`
	Targets     []target.Config     `yaml:"targets"`
	Reference   *target.Config      `yaml:"reference,omitempty"`
	LoadFactor  int                 `yaml:"load_factor"`
	Workers     int                 `yaml:"workers"`
	Timeout     time.Duration       `yaml:"timeout"`
	Scenarios   []string            `yaml:"scenarios,omitempty"`
	Thresholds  scenario.Thresholds `yaml:"thresholds"`
	Report      Report              `yaml:"report"`
	AuditLog    string              `yaml:"audit_log,omitempty"`
	HistoryDB   string              `yaml:"history_db,omitempty"`
	Alerts      []alert.Config      `yaml:"alerts,omitempty"`
	Publish     publish.Config      `yaml:"publish,omitempty"`
	MetricsAddr string              `yaml:"metrics_addr,omitempty"`
	PushGateway string              `yaml:"push_gateway,omitempty"`
	Log         logging.Options     `yaml:"log"`

	// Hash is the sha256 of the file the config was loaded from.
	Hash string `yaml:"-"`
}

// Default returns a configuration with every default applied and no targets.
func Default() *Config {
	return &Config{
		Name:       "cdabench",
		LoadFactor: 1,
		Workers:    scenario.DefaultWorkers,
		Timeout:    10 * time.Minute,
		Thresholds: scenario.DefaultThresholds(),
		Report:     Report{Path: "cdabench-report.xml", Format: "junit"},
		Log:        logging.Options{Level: "info", Format: "console"},
	}
}

// Load reads and validates the YAML file at path. Fields absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	cfg.Thresholds = cfg.Thresholds.WithDefaults()
	h := sha256.Sum256(data)
	cfg.Hash = "sha256:" + hex.EncodeToString(h[:])

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", ErrInvalid)
	}
	seen := map[string]bool{}
	for _, t := range c.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("%w: duplicate target name %q", ErrInvalid, t.Name)
		}
		seen[t.Name] = true
	}
	if c.Reference != nil {
		if err := c.Reference.Validate(); err != nil {
			return fmt.Errorf("%w: reference: %v", ErrInvalid, err)
		}
	}
	if c.LoadFactor < 1 {
		return fmt.Errorf("%w: load_factor must be at least 1, got %d", ErrInvalid, c.LoadFactor)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalid)
	}
	switch c.Report.Format {
	case "junit", "json", "text":
	default:
		return fmt.Errorf("%w: report.format must be junit, json or text, got %q", ErrInvalid, c.Report.Format)
	}
	for i, a := range c.Alerts {
		if strings.TrimSpace(a.URL) == "" {
			return fmt.Errorf("%w: alerts[%d]: url is required", ErrInvalid, i)
		}
		for _, ev := range a.Events {
			switch ev {
			case alert.EventFailure, alert.EventError, alert.EventComplete:
			default:
				return fmt.Errorf("%w: alerts[%d]: unknown event %q", ErrInvalid, i, ev)
			}
		}
	}
	return nil
}

// Target returns the configured target named name.
func (c *Config) Target(name string) (target.Config, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}
	return target.Config{}, false
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
