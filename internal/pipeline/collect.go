package pipeline

import "github.com/jonathan/workforce-capacity/internal/observability"

// collect copies the run's counters into the metrics collector
func collect(c *observability.RunMetrics, res *Result) {
	for _, l := range res.Cleaning {
		c.SetRows(l.Table, "raw", l.RowsIn)
		c.SetRows(l.Table, "clean", l.RowsOut)
		c.SetOutliers(l.Table, l.Outliers.RowsFlagged)
		c.SetDuplicates(l.Table, l.DuplicatesRemoved)
		c.SetConversionFailures(l.Table, l.ConversionFailures)
	}
	for _, u := range res.Unify {
		c.SetRows(u.Name, "unify", u.RowsOut)
	}
	c.SetMetricRecords(len(res.Metrics.Records))
	flags := map[string]int{}
	for _, rec := range res.Metrics.Records {
		if rec.MismatchFlag {
			flags[string(rec.Sector)]++
		}
	}
	for sector, n := range flags {
		c.SetMismatchFlags(sector, n)
	}
}
