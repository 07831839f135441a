package metrics

import (
	"fmt"

	"github.com/jonathan/workforce-capacity/internal/benchmarks"
	"github.com/jonathan/workforce-capacity/internal/types"
)

// Capacity measures
const (
	MeasureBeds       = "beds"
	MeasureFacilities = "facilities"
)

// Inactive-sector policies
const (
	InactiveExclude              = "exclude"
	InactiveExcludeFromBenchmark = "exclude_from_benchmark"
	InactiveInclude              = "include"
)

// YearRange is an inclusive span of years. The zero value means "derive it".
type YearRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// IsZero reports whether the range is unset
func (r YearRange) IsZero() bool { return r.Start == 0 && r.End == 0 }

// Contains reports whether year lies in the range
func (r YearRange) Contains(year int) bool { return year >= r.Start && year <= r.End }

// Empty reports whether the range holds no years
func (r YearRange) Empty() bool { return r.Start > r.End }

func (r YearRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// Options configures the engine
type Options struct {
	InstitutionTypes     []string              `json:"institution_types" yaml:"institution_types"`
	CapacityMeasure      string                `json:"capacity_measure" yaml:"capacity_measure" validate:"omitempty,oneof=beds facilities"`
	Benchmark            string                `json:"benchmark" yaml:"benchmark"`
	CompositionBenchmark string                `json:"composition_benchmark" yaml:"composition_benchmark"`
	Numerator            types.Profession      `json:"numerator" yaml:"numerator"`
	Denominator          types.Profession      `json:"denominator" yaml:"denominator"`
	InactivePolicy       string                `json:"inactive_policy" yaml:"inactive_policy" validate:"omitempty,oneof=exclude exclude_from_benchmark include"`
	Thresholds           benchmarks.Thresholds `json:"thresholds" yaml:"thresholds"`
	// BaseYear indexes growth to this year; zero means the first metric year
	BaseYear int `json:"base_year,omitempty" yaml:"base_year,omitempty" validate:"gte=0"`
	// Significance is the alpha of the hypothesis tests
	Significance float64 `json:"significance,omitempty" yaml:"significance,omitempty" validate:"gte=0,lt=1"`
}

// DefaultSignificance is the alpha used when none is configured
const DefaultSignificance = 0.05

// DefaultOptions returns hospital-bed ratios compared against workforce_to_bed
func DefaultOptions() Options {
	return Options{
		InstitutionTypes:     []string{"Hospital"},
		CapacityMeasure:      MeasureBeds,
		Benchmark:            benchmarks.WorkforceToBed,
		CompositionBenchmark: benchmarks.DoctorToNurse,
		Numerator:            types.ProfessionDoctor,
		Denominator:          types.ProfessionNurse,
		InactivePolicy:       InactiveExclude,
		Thresholds:           benchmarks.DefaultThresholds(),
		Significance:         DefaultSignificance,
	}
}

// withDefaults fills zero fields from DefaultOptions
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if len(o.InstitutionTypes) == 0 {
		o.InstitutionTypes = d.InstitutionTypes
	}
	if o.CapacityMeasure == "" {
		o.CapacityMeasure = d.CapacityMeasure
	}
	if o.Benchmark == "" {
		o.Benchmark = d.Benchmark
	}
	if o.CompositionBenchmark == "" {
		o.CompositionBenchmark = d.CompositionBenchmark
	}
	if o.Numerator == "" {
		o.Numerator = d.Numerator
	}
	if o.Denominator == "" {
		o.Denominator = d.Denominator
	}
	if o.InactivePolicy == "" {
		o.InactivePolicy = d.InactivePolicy
	}
	if o.Thresholds.SignificantDivergence == 0 {
		o.Thresholds.SignificantDivergence = d.Thresholds.SignificantDivergence
	}
	if o.Thresholds.SevereDivergence == 0 {
		o.Thresholds.SevereDivergence = d.Thresholds.SevereDivergence
	}
	if o.Thresholds.MinYearsSustained == 0 {
		o.Thresholds.MinYearsSustained = d.Thresholds.MinYearsSustained
	}
	if o.Significance == 0 {
		o.Significance = d.Significance
	}
	return o
}

func (o Options) validate() error {
	switch o.CapacityMeasure {
	case MeasureBeds, MeasureFacilities:
	default:
		return &Error{Message: fmt.Sprintf("unknown capacity measure %q", o.CapacityMeasure)}
	}
	switch o.InactivePolicy {
	case InactiveExclude, InactiveExcludeFromBenchmark, InactiveInclude:
	default:
		return &Error{Message: fmt.Sprintf("unknown inactive policy %q", o.InactivePolicy)}
	}
	if o.Thresholds.SevereDivergence < o.Thresholds.SignificantDivergence {
		return &Error{Message: "severe divergence threshold is below the significant threshold"}
	}
	if o.Significance <= 0 || o.Significance >= 1 {
		return &Error{Message: fmt.Sprintf("significance %g is outside (0, 1)", o.Significance)}
	}
	if o.BaseYear < 0 {
		return &Error{Message: fmt.Sprintf("base year %d is negative", o.BaseYear)}
	}
	if o.Numerator == o.Denominator {
		return &Error{Message: "composition numerator and denominator must differ"}
	}
	return nil
}
