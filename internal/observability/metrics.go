package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics collects the counters of one pipeline run. Each run owns its
// registry so concurrent runs never share series.
type RunMetrics struct {
	registry *prometheus.Registry

	rows               *prometheus.GaugeVec
	outliers           *prometheus.GaugeVec
	conversionFailures *prometheus.GaugeVec
	duplicates         *prometheus.GaugeVec
	metricRecords      prometheus.Gauge
	mismatchFlags      *prometheus.GaugeVec
	stageDuration      *prometheus.GaugeVec
	lastSuccess        prometheus.Gauge
}

// NewRunMetrics registers the pipeline series on a fresh registry
func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "table_rows",
			Help: "Rows per table after each stage.",
		}, []string{"table", "stage"}),
		outliers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "outlier_rows",
			Help: "Rows flagged as outliers per table.",
		}, []string{"table"}),
		conversionFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "conversion_failures",
			Help: "Values nulled by failed type coercion.",
		}, []string{"table", "column"}),
		duplicates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "duplicates_removed",
			Help: "Exact duplicate rows removed per table.",
		}, []string{"table"}),
		metricRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "metric_records",
			Help: "Workforce-capacity metric records produced.",
		}),
		mismatchFlags: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "mismatch_flags",
			Help: "Flagged mismatch years per sector.",
		}, []string{"sector"}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "stage_duration_seconds",
			Help: "Wall time of each pipeline stage.",
		}, []string{"stage"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wfcap", Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
	m.registry.MustRegister(
		m.rows, m.outliers, m.conversionFailures, m.duplicates,
		m.metricRecords, m.mismatchFlags, m.stageDuration, m.lastSuccess,
	)
	return m
}

// Registry exposes the underlying registry
func (m *RunMetrics) Registry() *prometheus.Registry { return m.registry }

// SetRows records the row count of table after stage
func (m *RunMetrics) SetRows(table, stage string, rows int) {
	m.rows.WithLabelValues(table, stage).Set(float64(rows))
}

// SetOutliers records flagged outlier rows
func (m *RunMetrics) SetOutliers(table string, rows int) {
	m.outliers.WithLabelValues(table).Set(float64(rows))
}

// SetConversionFailures records per-column coercion failures
func (m *RunMetrics) SetConversionFailures(table string, byColumn map[string]int) {
	for col, n := range byColumn {
		m.conversionFailures.WithLabelValues(table, col).Set(float64(n))
	}
}

// SetDuplicates records removed duplicates
func (m *RunMetrics) SetDuplicates(table string, n int) {
	m.duplicates.WithLabelValues(table).Set(float64(n))
}

// SetMetricRecords records the size of the metrics artifact
func (m *RunMetrics) SetMetricRecords(n int) {
	m.metricRecords.Set(float64(n))
}

// SetMismatchFlags records flagged years for a sector
func (m *RunMetrics) SetMismatchFlags(sector string, n int) {
	m.mismatchFlags.WithLabelValues(sector).Set(float64(n))
}

// ObserveStage records a stage duration
func (m *RunMetrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// MarkSuccess stamps the run as successful at t
func (m *RunMetrics) MarkSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// WriteTextfile writes all series in the node_exporter textfile format
func (m *RunMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
