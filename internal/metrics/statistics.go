package metrics

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/jonathan/workforce-capacity/internal/types"
)

// Correlation methods
const (
	MethodPearson  = "pearson"
	MethodSpearman = "spearman"
)

// Tests used for sector growth differences
const (
	TestANOVA         = "ANOVA"
	TestKruskalWallis = "Kruskal-Wallis"
)

// Names under which statistical tests are reported
const (
	StatCorrelationPearson  = "correlation_pearson"
	StatCorrelationSpearman = "correlation_spearman"
	StatSectorGrowth        = "sector_growth_differences"
)

// SkippedTest names a statistical test that could not be computed
type SkippedTest struct {
	Test   string `json:"test"`
	Reason string `json:"reason"`
}

// Statistics holds the hypothesis tests run over a set of metric records
type Statistics struct {
	Significance float64                     `json:"significance"`
	Correlations []types.CorrelationTest     `json:"correlations"`
	SectorGrowth *types.GrowthDifferenceTest `json:"sector_growth,omitempty"`
	Skipped      []SkippedTest               `json:"skipped"`
}

// RunStatistics runs both correlation tests and the sector growth test over
// records. Tests without enough data are listed as skipped.
func (e *Engine) RunStatistics(records []types.MetricRecord) *Statistics {
	out := &Statistics{Significance: e.opts.Significance, Correlations: []types.CorrelationTest{}, Skipped: []SkippedTest{}}
	skip := func(name string, err error) {
		reason := err.Error()
		var ide *InsufficientDataError
		if errors.As(err, &ide) {
			reason = ide.Reason
		}
		out.Skipped = append(out.Skipped, SkippedTest{Test: name, Reason: reason})
		e.logger.Warn("statistical test skipped", zap.String("test", name), zap.String("reason", reason))
	}

	for _, m := range []struct{ name, method string }{
		{StatCorrelationPearson, MethodPearson},
		{StatCorrelationSpearman, MethodSpearman},
	} {
		c, err := e.Correlation(records, m.method)
		if err != nil {
			skip(m.name, err)
			continue
		}
		out.Correlations = append(out.Correlations, *c)
	}

	g, err := e.SectorGrowthDifferences(records)
	if err != nil {
		skip(StatSectorGrowth, err)
	} else {
		out.SectorGrowth = g
	}
	return out
}

// Correlation tests the association between total workforce and total
// capacity across records with method (pearson or spearman).
func (e *Engine) Correlation(records []types.MetricRecord, method string) (*types.CorrelationTest, error) {
	name := "correlation_" + method
	x := make([]float64, len(records))
	y := make([]float64, len(records))
	for i, r := range records {
		x[i] = float64(r.TotalWorkforce)
		y[i] = float64(r.TotalCapacity)
	}

	switch method {
	case MethodPearson:
	case MethodSpearman:
		x, y = ranks(x), ranks(y)
	default:
		return nil, &Error{Message: fmt.Sprintf("unknown correlation method %q", method)}
	}
	n := len(x)
	if n < 3 {
		return nil, &InsufficientDataError{Test: name, Reason: fmt.Sprintf("%d records, need at least 3", n)}
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return nil, &InsufficientDataError{Test: name, Reason: "a series is constant"}
	}
	r = math.Max(-1, math.Min(1, r))

	// Two-sided test of r = 0 against Student's t with n-2 degrees of freedom
	p := 0.0
	if math.Abs(r) < 1 {
		t := r * math.Sqrt(float64(n-2)/(1-r*r))
		p = 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}.Survival(math.Abs(t))
	}

	alpha := e.opts.Significance
	res := &types.CorrelationTest{
		Method:      method,
		Correlation: r,
		PValue:      p,
		Significant: p < alpha,
		Strength:    correlationStrength(r),
		Direction:   "negative",
		SampleSize:  n,
	}
	if r > 0 {
		res.Direction = "positive"
	}
	res.Conclusion = fmt.Sprintf("%s %s correlation (r=%.3f, p=%.4f)", capitalize(res.Strength), res.Direction, r, p)
	if res.Significant {
		res.Conclusion += fmt.Sprintf(" - statistically significant at alpha=%g", alpha)
	} else {
		res.Conclusion += fmt.Sprintf(" - not statistically significant at alpha=%g", alpha)
	}
	return res, nil
}

func correlationStrength(r float64) string {
	switch a := math.Abs(r); {
	case a >= 0.7:
		return "strong"
	case a >= 0.4:
		return "moderate"
	default:
		return "weak"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// SectorGrowthDifferences tests whether workforce growth rates differ across
// sectors. One-way ANOVA is used when every sector with more than three
// growth rates passes a Shapiro-Wilk normality check, Kruskal-Wallis otherwise.
func (e *Engine) SectorGrowthDifferences(records []types.MetricRecord) (*types.GrowthDifferenceTest, error) {
	bySector := map[types.Sector][]float64{}
	for _, r := range records {
		if r.WorkforceGrowthRate != nil {
			bySector[r.Sector] = append(bySector[r.Sector], *r.WorkforceGrowthRate)
		}
	}
	sectors := make([]types.Sector, 0, len(bySector))
	for s := range bySector {
		sectors = append(sectors, s)
	}
	slices.SortFunc(sectors, func(a, b types.Sector) int { return sectorRank(a) - sectorRank(b) })
	if len(sectors) < 2 {
		return nil, &InsufficientDataError{Test: StatSectorGrowth, Reason: fmt.Sprintf("%d sectors with growth rates, need at least 2", len(sectors))}
	}

	groups := make([][]float64, len(sectors))
	sizes := make([]int, len(sectors))
	for i, s := range sectors {
		groups[i] = bySector[s]
		sizes[i] = len(groups[i])
	}
	return e.growthDifferences(sectors, groups, sizes)
}

func (e *Engine) growthDifferences(sectors []types.Sector, groups [][]float64, sizes []int) (*types.GrowthDifferenceTest, error) {
	alpha := e.opts.Significance
	normal := true
	for _, g := range groups {
		if len(g) <= 3 {
			continue
		}
		if _, p := shapiroWilk(g); p <= alpha {
			normal = false
			break
		}
	}

	res := &types.GrowthDifferenceTest{SectorsCompared: sectors, SampleSizes: sizes}
	var err error
	if normal {
		res.TestUsed = TestANOVA
		res.Statistic, res.PValue, err = oneWayANOVA(groups)
	} else {
		res.TestUsed = TestKruskalWallis
		res.Statistic, res.PValue, err = kruskalWallis(groups)
	}
	if err != nil {
		return nil, &InsufficientDataError{Test: StatSectorGrowth, Reason: err.Error()}
	}

	res.Significant = res.PValue < alpha
	if res.Significant {
		res.Conclusion = fmt.Sprintf("Growth rates differ significantly across sectors (p=%.4f < %g)", res.PValue, alpha)
	} else {
		res.Conclusion = fmt.Sprintf("No significant difference in growth rates across sectors (p=%.4f >= %g)", res.PValue, alpha)
	}
	return res, nil
}

// oneWayANOVA returns the F statistic and its upper-tail p-value
func oneWayANOVA(groups [][]float64) (float64, float64, error) {
	var all []float64
	for _, g := range groups {
		all = append(all, g...)
	}
	k, n := len(groups), len(all)
	if n-k < 1 {
		return 0, 0, fmt.Errorf("%d observations in %d groups leave no within-group degrees of freedom", n, k)
	}
	grand := stat.Mean(all, nil)
	var ssb, ssw float64
	for _, g := range groups {
		m := stat.Mean(g, nil)
		ssb += float64(len(g)) * (m - grand) * (m - grand)
		for _, v := range g {
			ssw += (v - m) * (v - m)
		}
	}
	if ssw == 0 {
		return 0, 0, fmt.Errorf("no variance within groups")
	}
	df1, df2 := float64(k-1), float64(n-k)
	f := (ssb / df1) / (ssw / df2)
	return f, distuv.F{D1: df1, D2: df2}.Survival(f), nil
}

// kruskalWallis returns the tie-corrected H statistic and its chi-squared p-value
func kruskalWallis(groups [][]float64) (float64, float64, error) {
	var all []float64
	for _, g := range groups {
		all = append(all, g...)
	}
	n := float64(len(all))
	r := ranks(all)

	h, offset := 0.0, 0
	for _, g := range groups {
		sum := 0.0
		for i := range g {
			sum += r[offset+i]
		}
		offset += len(g)
		h += sum * sum / float64(len(g))
	}
	h = 12/(n*(n+1))*h - 3*(n+1)

	correction := 1 - tieSum(all)/(n*n*n-n)
	if correction == 0 {
		return 0, 0, fmt.Errorf("all growth rates are identical")
	}
	h /= correction
	return h, distuv.ChiSquared{K: float64(len(groups) - 1)}.Survival(h), nil
}

// ranks returns 1-based ranks of xs, averaging ties
func ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	out := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for m := i; m <= j; m++ {
			out[idx[m]] = avg
		}
		i = j + 1
	}
	return out
}

// tieSum returns the sum of t^3 - t over groups of t tied values
func tieSum(xs []float64) float64 {
	counts := map[float64]int{}
	for _, x := range xs {
		counts[x]++
	}
	s := 0.0
	for _, t := range counts {
		ft := float64(t)
		s += ft*ft*ft - ft
	}
	return s
}

// Royston (1995) polynomial coefficients for the Shapiro-Wilk test
var (
	swC1 = []float64{0, 0.221157, -0.147981, -2.07119, 4.434685, -2.706056}
	swC2 = []float64{0, 0.042981, -0.293762, -1.752461, 5.682633, -3.582633}
	swC3 = []float64{0.544, -0.39978, 0.025054, -6.714e-4}
	swC4 = []float64{1.3822, -0.77857, 0.062767, -0.0020322}
	swC5 = []float64{-1.5861, -0.31082, -0.083751, 0.0038915}
	swC6 = []float64{-0.4803, -0.082676, 0.0030302}
	swG  = []float64{-2.273, 0.459}
)

func poly(c []float64, x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

// shapiroWilk returns the W statistic and p-value for 4 <= len(xs) <= 5000
// using Royston's approximation. A sample without spread returns W = 1, p = 1.
func shapiroWilk(xs []float64) (w, p float64) {
	n := len(xs)
	x := slices.Clone(xs)
	slices.Sort(x)
	if x[0] == x[n-1] {
		return 1, 1
	}

	// 1. Coefficients from expected normal order statistics
	half := n / 2
	m := make([]float64, half)
	summ2 := 0.0
	for i := range m {
		m[i] = distuv.UnitNormal.Quantile((float64(i+1) - 0.375) / (float64(n) + 0.25))
		summ2 += m[i] * m[i]
	}
	summ2 *= 2
	ssumm2 := math.Sqrt(summ2)
	rsn := 1 / math.Sqrt(float64(n))

	a := make([]float64, half)
	a[0] = poly(swC1, rsn) - m[0]/ssumm2
	first := 1
	var fac float64
	if n > 5 {
		a[1] = -m[1]/ssumm2 + poly(swC2, rsn)
		fac = math.Sqrt((summ2 - 2*m[0]*m[0] - 2*m[1]*m[1]) / (1 - 2*a[0]*a[0] - 2*a[1]*a[1]))
		first = 2
	} else {
		fac = math.Sqrt((summ2 - 2*m[0]*m[0]) / (1 - 2*a[0]*a[0]))
	}
	for i := first; i < half; i++ {
		a[i] = -m[i] / fac
	}

	// 2. W is the squared correlation of the ordered sample with the weights
	weights := make([]float64, n)
	for i := 0; i < half; i++ {
		weights[i] = -a[i]
		weights[n-1-i] = a[i]
	}
	r := stat.Correlation(weights, x, nil)
	w = math.Min(r*r, 1)

	// 3. Normalizing transformation of 1 - W
	if w >= 1 {
		return 1, 1
	}
	w1 := math.Log(1 - w)
	var mu, sigma float64
	if n <= 11 {
		gamma := poly(swG, float64(n))
		if w1 >= gamma {
			return w, 1e-99
		}
		w1 = -math.Log(gamma - w1)
		mu = poly(swC3, float64(n))
		sigma = math.Exp(poly(swC4, float64(n)))
	} else {
		ln := math.Log(float64(n))
		mu = poly(swC5, ln)
		sigma = math.Exp(poly(swC6, ln))
	}
	return w, distuv.Normal{Mu: mu, Sigma: sigma}.Survival(w1)
}
