// Package benchmarks provides the versioned, read-only registry of external
// reference ranges that computed metrics are compared against.
package benchmarks

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/jonathan/workforce-capacity/internal/types"
)

// Well-known benchmark names
const (
	WorkforceToBed     = "workforce_to_bed"
	DoctorToNurse      = "doctor_to_nurse"
	WorkforceDensity   = "workforce_density"
	OutOfPocketShare   = "out_of_pocket_share"
	DefaultVersion     = "2025.1"
	planningLiterature = "Healthcare Workforce Planning Literature"
)

// Thresholds are the mismatch detection parameters
type Thresholds struct {
	SignificantDivergence float64 `json:"significant_divergence" yaml:"significant_divergence" validate:"gt=0"`
	SevereDivergence      float64 `json:"severe_divergence" yaml:"severe_divergence" validate:"gtefield=SignificantDivergence"`
	MinYearsSustained     int     `json:"min_years_sustained" yaml:"min_years_sustained" validate:"gte=1"`
}

// DefaultThresholds returns the mismatch thresholds used when none are configured
func DefaultThresholds() Thresholds {
	return Thresholds{
		SignificantDivergence: 1.0,
		SevereDivergence:      3.0,
		MinYearsSustained:     3,
	}
}

// Registry is an immutable set of benchmarks. All methods are safe for
// concurrent use because nothing mutates a Registry after New returns.
type Registry struct {
	version string
	entries map[string]types.Benchmark
	names   []string
}

// New builds a registry from entries. Names must be unique and bounds ordered.
func New(version string, entries ...types.Benchmark) (*Registry, error) {
	if version == "" {
		return nil, fmt.Errorf("benchmark registry version is required")
	}
	r := &Registry{
		version: version,
		entries: make(map[string]types.Benchmark, len(entries)),
	}
	for _, b := range entries {
		if err := check(b); err != nil {
			return nil, err
		}
		if _, dup := r.entries[b.Name]; dup {
			return nil, &InvalidBenchmarkError{Name: b.Name, Message: "registered twice"}
		}
		r.entries[b.Name] = b
		r.names = append(r.names, b.Name)
	}
	slices.Sort(r.names)
	return r, nil
}

func check(b types.Benchmark) error {
	switch {
	case b.Name == "":
		return &InvalidBenchmarkError{Name: b.Name, Message: "name is required"}
	case math.IsNaN(b.LowerBound) || math.IsNaN(b.UpperBound):
		return &InvalidBenchmarkError{Name: b.Name, Message: "bounds must be numbers"}
	case b.LowerBound > b.UpperBound:
		return &InvalidBenchmarkError{Name: b.Name, Message: fmt.Sprintf("lower bound %g exceeds upper bound %g", b.LowerBound, b.UpperBound)}
	case b.Source.Organization == "":
		return &InvalidBenchmarkError{Name: b.Name, Message: "source organization is required"}
	}
	return nil
}

// Default returns the built-in registry
func Default() *Registry {
	r, err := New(DefaultVersion, DefaultEntries()...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultEntries returns the built-in benchmark entries
func DefaultEntries() []types.Benchmark {
	return []types.Benchmark{
		{
			Name:       WorkforceToBed,
			LowerBound: 1.5,
			UpperBound: 2.5,
			Unit:       "FTE per bed",
			Source: types.BenchmarkSource{
				Organization: planningLiterature,
				Year:         2025,
				URL:          "docs/domain_knowledge/healthcare-workforce-planning.md",
				Notes:        "Ranges vary by healthcare system model (acute care vs. integrated care)",
			},
		},
		{
			Name:       DoctorToNurse,
			LowerBound: 0.25,
			UpperBound: 0.50,
			Unit:       "doctors per nurse",
			Source: types.BenchmarkSource{
				Organization: planningLiterature,
				Year:         2025,
				URL:          "docs/domain_knowledge/healthcare-workforce-planning.md",
				Notes:        "Varies by care model; nursing-intensive models have lower ratios",
			},
		},
		{
			Name:       WorkforceDensity,
			LowerBound: 4.45,
			UpperBound: 12.0,
			Unit:       "health workers per 1,000 population",
			Source: types.BenchmarkSource{
				Organization: "WHO / OECD",
				Year:         2024,
				URL:          "https://www.who.int/docs/default-source/documents/workforcedensity.pdf",
				Notes:        "WHO minimum for adequate healthcare delivery; OECD averages for comparison",
			},
		},
		{
			Name:       OutOfPocketShare,
			LowerBound: 0,
			UpperBound: 30.0,
			Unit:       "% of total health expenditure",
			Source: types.BenchmarkSource{
				Organization: "WHO / OECD",
				Year:         2024,
				URL:          "https://www.oecd.org/health/health-data.htm",
				Notes:        "Financial sustainability benchmarks",
			},
		},
	}
}

// Version returns the registry version
func (r *Registry) Version() string { return r.version }

// Names returns the registered benchmark names, sorted
func (r *Registry) Names() []string { return slices.Clone(r.names) }

// Get returns the named benchmark
func (r *Registry) Get(name string) (types.Benchmark, error) {
	b, ok := r.entries[name]
	if !ok {
		return types.Benchmark{}, &UnknownBenchmarkError{Name: name, Available: r.Names()}
	}
	return b, nil
}

// All returns every benchmark in name order
func (r *Registry) All() []types.Benchmark {
	out := make([]types.Benchmark, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.entries[n])
	}
	return out
}

// Describe returns a human-readable description of a benchmark and its provenance
func (r *Registry) Describe(name string) (string, error) {
	b, err := r.Get(name)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", titleOf(b.Name))
	fmt.Fprintf(&sb, "Typical Range: %g - %g", b.LowerBound, b.UpperBound)
	if b.Unit != "" {
		fmt.Fprintf(&sb, " %s", b.Unit)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Source: %s (%d)\n", b.Source.Organization, b.Source.Year)
	if b.Source.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", b.Source.URL)
	}
	if b.Source.Notes != "" {
		fmt.Fprintf(&sb, "Notes: %s\n", b.Source.Notes)
	}
	return sb.String(), nil
}

func titleOf(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Override returns a new registry with entries replaced or added by name and
// the given version. The receiver is unchanged.
func (r *Registry) Override(version string, entries ...types.Benchmark) (*Registry, error) {
	merged := make(map[string]types.Benchmark, len(r.entries)+len(entries))
	for k, v := range r.entries {
		merged[k] = v
	}
	for _, b := range entries {
		merged[b.Name] = b
	}
	names := make([]string, 0, len(merged))
	for n := range merged {
		names = append(names, n)
	}
	slices.Sort(names)
	all := make([]types.Benchmark, 0, len(names))
	for _, n := range names {
		all = append(all, merged[n])
	}
	return New(version, all...)
}
