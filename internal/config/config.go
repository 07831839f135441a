// Package config loads and validates the pipeline run descriptor: the raw
// tables of each domain with their cleaning rules, metric options, benchmark
// overrides and output settings.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/cleaning"
	"github.com/jonathan/workforce-capacity/internal/metrics"
	"github.com/jonathan/workforce-capacity/internal/schemas"
	"github.com/jonathan/workforce-capacity/internal/types"
	schemafiles "github.com/jonathan/workforce-capacity/schemas"
)

// Default values applied by MergeWithDefaults
const (
	DefaultConcurrency = 4
	DefaultMinYear     = 1990
	DefaultMaxYear     = 2100
	DefaultLogLevel    = "info"
	DefaultOutputDir   = "output"
)

// TableConfig is one raw extract and the rules that clean it
type TableConfig struct {
	Name  string         `json:"name" yaml:"name" validate:"required"`
	Path  string         `json:"path,omitempty" yaml:"path,omitempty"`
	Rules cleaning.Rules `json:"rules" yaml:"rules"`
}

// DomainConfig groups the raw tables unified into one cleaned table
type DomainConfig struct {
	Tables   []TableConfig `json:"tables" yaml:"tables" validate:"required,min=1,dive"`
	Optional []string      `json:"optional_columns,omitempty" yaml:"optional_columns,omitempty"`
}

// UnmappedConfig decides what happens to sector values no rule maps
type UnmappedConfig struct {
	Policy   string `json:"policy,omitempty" yaml:"policy,omitempty" validate:"omitempty,oneof=fail fallback exclude"`
	Fallback string `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// MetricsConfig configures the metrics engine
type MetricsConfig struct {
	metrics.Options  `yaml:",inline"`
	Overlap          metrics.YearRange `json:"overlap" yaml:"overlap"`
	CompositionYears metrics.YearRange `json:"composition_years" yaml:"composition_years"`
}

// BenchmarkConfig replaces or adds registry entries
type BenchmarkConfig struct {
	Version   string            `json:"version,omitempty" yaml:"version,omitempty"`
	Overrides []types.Benchmark `json:"overrides,omitempty" yaml:"overrides,omitempty" validate:"dive"`
}

// ValidationConfig bounds the year range accepted by the post-cleaning gate
type ValidationConfig struct {
	MinYear int `json:"min_year,omitempty" yaml:"min_year,omitempty" validate:"gte=0"`
	MaxYear int `json:"max_year,omitempty" yaml:"max_year,omitempty" validate:"gte=0"`
}

// S3Config points publication at an S3-compatible bucket
type S3Config struct {
	Bucket    string `json:"bucket" yaml:"bucket" validate:"required"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" validate:"omitempty,url"`
	PathStyle bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`
}

// OutputConfig says where artifacts go
type OutputConfig struct {
	Dir             string    `json:"dir,omitempty" yaml:"dir,omitempty"`
	S3              *S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
	MetricsTextfile string    `json:"metrics_textfile,omitempty" yaml:"metrics_textfile,omitempty"`
}

// LedgerConfig selects the optional run ledger
type LedgerConfig struct {
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" validate:"omitempty,oneof=postgres sqlite"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	JSON  bool   `json:"json,omitempty" yaml:"json,omitempty"`
}

// Config is the run descriptor
type Config struct {
	Workforce   DomainConfig     `json:"workforce" yaml:"workforce"`
	Capacity    DomainConfig     `json:"capacity" yaml:"capacity"`
	Unmapped    UnmappedConfig   `json:"unmapped" yaml:"unmapped"`
	Metrics     MetricsConfig    `json:"metrics" yaml:"metrics"`
	Benchmarks  BenchmarkConfig  `json:"benchmarks" yaml:"benchmarks"`
	Validation  ValidationConfig `json:"validation" yaml:"validation"`
	Output      OutputConfig     `json:"output" yaml:"output"`
	Ledger      LedgerConfig     `json:"ledger" yaml:"ledger"`
	Log         LogConfig        `json:"log" yaml:"log"`
	Concurrency int              `json:"concurrency,omitempty" yaml:"concurrency,omitempty" validate:"gte=0,lte=64"`
}

// LoadConfig loads a run descriptor from a YAML (.yaml, .yml) or JSON file.
// The document is checked against the descriptor schema before decoding.
// Relative table paths are resolved against the descriptor's directory.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".json":
		cfg, err = ParseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config extension %q (want .yaml, .yml or .json)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	for _, d := range []*DomainConfig{&cfg.Workforce, &cfg.Capacity} {
		for i := range d.Tables {
			if p := d.Tables[i].Path; p != "" && !filepath.IsAbs(p) {
				d.Tables[i].Path = filepath.Join(base, p)
			}
		}
	}
	return cfg, nil
}

// ParseYAML decodes a YAML descriptor. Unknown fields are rejected.
func ParseYAML(data []byte) (*Config, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := schemas.ValidateGo("cleaning_rules.schema.json", schemafiles.CleaningRules, doc); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// ParseJSON decodes a JSON descriptor. Unknown fields are rejected.
func ParseJSON(data []byte) (*Config, error) {
	if !json.Valid(data) {
		return nil, fmt.Errorf("failed to parse config JSON: invalid JSON")
	}
	if err := schemas.ValidateDocument("cleaning_rules.schema.json", schemafiles.CleaningRules, data); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct constraints and the cross-field rules the tags cannot
// express. Call it on a merged config; unset thresholds fail the tag checks.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// 1. Table names are unique across both domains
	seen := map[string]string{}
	for domain, d := range map[string]DomainConfig{"workforce": c.Workforce, "capacity": c.Capacity} {
		for _, t := range d.Tables {
			if other, dup := seen[t.Name]; dup {
				return fmt.Errorf("config error: table %q is declared in %s and %s", t.Name, other, domain)
			}
			seen[t.Name] = domain
			if err := t.Rules.Validate(); err != nil {
				return fmt.Errorf("config error: table %s: %w", t.Name, err)
			}
		}
	}

	// 2. Year windows
	if c.Validation.MaxYear != 0 && c.Validation.MinYear > c.Validation.MaxYear {
		return fmt.Errorf("config error: 'validation.min_year' exceeds 'validation.max_year'")
	}
	for name, r := range map[string]metrics.YearRange{"overlap": c.Metrics.Overlap, "composition_years": c.Metrics.CompositionYears} {
		if !r.IsZero() && r.Empty() {
			return fmt.Errorf("config error: 'metrics.%s' start %d is after end %d", name, r.Start, r.End)
		}
	}

	// 3. Unmapped fallback must be canonical
	if c.Unmapped.Policy == cleaning.UnmappedFallback {
		if _, ok := types.ParseSector(c.Unmapped.Fallback); !ok {
			return fmt.Errorf("config error: 'unmapped.fallback' %q is not a canonical sector", c.Unmapped.Fallback)
		}
	}

	// 4. Table sources exist
	for _, d := range []DomainConfig{c.Workforce, c.Capacity} {
		for _, t := range d.Tables {
			if t.Path == "" {
				continue
			}
			if _, err := os.Stat(t.Path); os.IsNotExist(err) {
				return fmt.Errorf("config error: table %s: file not found: %s", t.Name, t.Path)
			}
		}
	}

	if c.Ledger.Driver == "sqlite" && c.Ledger.DSN == "" {
		return fmt.Errorf("config error: 'ledger.dsn' is required for the sqlite ledger")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// CLI flags are passed as defaults so that the descriptor wins where it is set.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if len(result.Workforce.Tables) == 0 {
		result.Workforce = defaults.Workforce
	}
	if len(result.Capacity.Tables) == 0 {
		result.Capacity = defaults.Capacity
	}
	if result.Unmapped.Policy == "" {
		result.Unmapped = defaults.Unmapped
	}
	if result.Benchmarks.Version == "" {
		result.Benchmarks.Version = defaults.Benchmarks.Version
	}
	if result.Output.Dir == "" {
		result.Output.Dir = defaults.Output.Dir
	}
	if result.Output.S3 == nil {
		result.Output.S3 = defaults.Output.S3
	}
	if result.Output.MetricsTextfile == "" {
		result.Output.MetricsTextfile = defaults.Output.MetricsTextfile
	}
	if result.Ledger.Driver == "" {
		result.Ledger = defaults.Ledger
	}
	if result.Log.Level == "" {
		result.Log.Level = defaults.Log.Level
	}

	// Int fields: use default if zero, then the package default
	if result.Concurrency == 0 {
		result.Concurrency = defaults.Concurrency
	}
	if result.Concurrency == 0 {
		result.Concurrency = DefaultConcurrency
	}
	if result.Validation.MinYear == 0 {
		result.Validation.MinYear = defaults.Validation.MinYear
	}
	if result.Validation.MinYear == 0 {
		result.Validation.MinYear = DefaultMinYear
	}
	if result.Validation.MaxYear == 0 {
		result.Validation.MaxYear = defaults.Validation.MaxYear
	}
	if result.Validation.MaxYear == 0 {
		result.Validation.MaxYear = DefaultMaxYear
	}
	if result.Log.Level == "" {
		result.Log.Level = DefaultLogLevel
	}
	th := benchmarks.DefaultThresholds()
	if result.Metrics.Thresholds.SignificantDivergence == 0 {
		result.Metrics.Thresholds.SignificantDivergence = th.SignificantDivergence
	}
	if result.Metrics.Thresholds.SevereDivergence == 0 {
		result.Metrics.Thresholds.SevereDivergence = th.SevereDivergence
	}
	if result.Metrics.Thresholds.MinYearsSustained == 0 {
		result.Metrics.Thresholds.MinYearsSustained = th.MinYearsSustained
	}
	if result.Output.Dir == "" && result.Output.S3 == nil {
		result.Output.Dir = DefaultOutputDir
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	return result
}

// Registry returns the built-in benchmark registry with the configured overrides applied
func (c *Config) Registry() (*benchmarks.Registry, error) {
	base := benchmarks.Default()
	if len(c.Benchmarks.Overrides) == 0 && c.Benchmarks.Version == "" {
		return base, nil
	}
	version := c.Benchmarks.Version
	if version == "" {
		version = base.Version() + "+local"
	}
	return base.Override(version, c.Benchmarks.Overrides...)
}

// Tables returns every configured table name in declaration order
func (c *Config) Tables() []string {
	var out []string
	for _, d := range []DomainConfig{c.Workforce, c.Capacity} {
		for _, t := range d.Tables {
			out = append(out, t.Name)
		}
	}
	return out
}
