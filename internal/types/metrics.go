package types

// BenchmarkSource is the provenance of a reference value
type BenchmarkSource struct {
	Organization string `json:"organization" yaml:"organization" validate:"required"`
	Year         int    `json:"year" yaml:"year" validate:"gte=1900"`
	URL          string `json:"url,omitempty" yaml:"url,omitempty"`
	Notes        string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Benchmark is an externally sourced reference range. It is never mutated by the pipeline.
type Benchmark struct {
	Name       string          `json:"name" yaml:"name" validate:"required"`
	LowerBound float64         `json:"lower_bound" yaml:"lower_bound"`
	UpperBound float64         `json:"upper_bound" yaml:"upper_bound" validate:"gtefield=LowerBound"`
	Unit       string          `json:"unit,omitempty" yaml:"unit,omitempty"`
	Source     BenchmarkSource `json:"source" yaml:"source"`
}

// Benchmark status labels
const (
	StatusBelowRange  = "Below Range"
	StatusWithinRange = "Within Range"
	StatusAboveRange  = "Above Range"
	StatusNotCompared = "Not Compared"
)

// Contains reports whether v lies within the inclusive bounds
func (b Benchmark) Contains(v float64) bool {
	return v >= b.LowerBound && v <= b.UpperBound
}

// Midpoint returns the centre of the benchmark range
func (b Benchmark) Midpoint() float64 {
	return (b.LowerBound + b.UpperBound) / 2
}

// Deviation returns the distance of v from the midpoint
func (b Benchmark) Deviation(v float64) float64 {
	return v - b.Midpoint()
}

// Status classifies v against the range
func (b Benchmark) Status(v float64) string {
	switch {
	case v < b.LowerBound:
		return StatusBelowRange
	case v > b.UpperBound:
		return StatusAboveRange
	default:
		return StatusWithinRange
	}
}

// MetricRecord is one (year, sector) row of the workforce-capacity metrics artifact.
// Records are values; each run produces a fresh slice.
type MetricRecord struct {
	Year                int      `json:"year"`
	Sector              Sector   `json:"sector"`
	TotalWorkforce      int64    `json:"total_workforce"`
	TotalCapacity       int64    `json:"total_capacity"`
	Ratio               float64  `json:"ratio"`
	PriorYearRatio      *float64 `json:"prior_year_ratio"`
	WorkforceGrowthRate *float64 `json:"workforce_growth_rate"`
	CapacityGrowthRate  *float64 `json:"capacity_growth_rate"`
	MismatchIndex       *float64 `json:"mismatch_index"`
	WorkforceIndex      *float64 `json:"workforce_index"`
	CapacityIndex       *float64 `json:"capacity_index"`
	WithinBenchmark     bool     `json:"within_benchmark"`
	MismatchFlag        bool     `json:"mismatch_flag"`
}

// BenchmarkComparison annotates a metric row with its position relative to a benchmark
type BenchmarkComparison struct {
	Year      int      `json:"year"`
	Sector    Sector   `json:"sector"`
	Benchmark string   `json:"benchmark"`
	Ratio     float64  `json:"ratio"`
	Deviation *float64 `json:"deviation"`
	Status    string   `json:"status"`
}

// CompositionRecord is a profession-to-profession ratio for a (year, sector)
type CompositionRecord struct {
	Year              int                    `json:"year"`
	Sector            Sector                 `json:"sector"`
	Numerator         Profession             `json:"numerator"`
	Denominator       Profession             `json:"denominator"`
	NumeratorCount    int64                  `json:"numerator_count"`
	DenominatorCount  int64                  `json:"denominator_count"`
	Ratio             float64                `json:"ratio"`
	WithinNormalRange bool                   `json:"within_normal_range"`
	Shares            map[Profession]float64 `json:"shares"`
}

// Severity grades an aggregated mismatch
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// MismatchResult aggregates the mismatch of one sector over its year range
type MismatchResult struct {
	Sector             Sector   `json:"sector"`
	StartYear          int      `json:"start_year"`
	EndYear            int      `json:"end_year"`
	YearsAnalyzed      int      `json:"years_analyzed"`
	YearsAffected      []int    `json:"years_affected"`
	AverageMismatch    float64  `json:"average_mismatch"`
	MaxMismatch        float64  `json:"max_mismatch"`
	CumulativeMismatch float64  `json:"cumulative_mismatch"`
	Severity           Severity `json:"severity"`
	Significant        bool     `json:"significant"`
}

// CumulativeMismatch is the summed divergence of a sector over an explicit window
type CumulativeMismatch struct {
	Sector        Sector  `json:"sector"`
	StartYear     int     `json:"start_year"`
	EndYear       int     `json:"end_year"`
	Cumulative    float64 `json:"cumulative_mismatch"`
	YearsAnalyzed int     `json:"years_analyzed"`
	AverageAnnual float64 `json:"average_annual_mismatch"`
}

// IndexedRecord expresses a (year, sector) total against the sector's base
// year total, which indexes to 100. An index is nil when either total is missing.
type IndexedRecord struct {
	Year           int      `json:"year"`
	Sector         Sector   `json:"sector"`
	BaseYear       int      `json:"base_year"`
	WorkforceIndex *float64 `json:"workforce_index"`
	CapacityIndex  *float64 `json:"capacity_index"`
}

// CorrelationTest is the outcome of a workforce/capacity correlation test
type CorrelationTest struct {
	Method      string  `json:"method"`
	Correlation float64 `json:"correlation"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	Strength    string  `json:"strength"`
	Direction   string  `json:"direction"`
	Conclusion  string  `json:"conclusion"`
	SampleSize  int     `json:"sample_size"`
}

// GrowthDifferenceTest is the outcome of testing whether workforce growth
// rates differ across sectors
type GrowthDifferenceTest struct {
	TestUsed        string   `json:"test_used"`
	Statistic       float64  `json:"statistic"`
	PValue          float64  `json:"p_value"`
	Significant     bool     `json:"significant"`
	Conclusion      string   `json:"conclusion"`
	SectorsCompared []Sector `json:"sectors_compared"`
	SampleSizes     []int    `json:"sample_sizes"`
}
