package cleaning

// StepLog records table shape before and after one cleaning step
type StepLog struct {
	Step          string `json:"step"`
	RowsBefore    int    `json:"rows_before"`
	RowsAfter     int    `json:"rows_after"`
	NullsBefore   int    `json:"nulls_before"`
	NullsAfter    int    `json:"nulls_after"`
	ColumnsBefore int    `json:"columns_before"`
	ColumnsAfter  int    `json:"columns_after"`
}

// CategoryLog records the outcome of standardizing one categorical column
type CategoryLog struct {
	Column   string            `json:"column"`
	Mapped   map[string]string `json:"mapped"`
	Unmapped []string          `json:"unmapped"`
	Changed  int               `json:"changed"`
}

// NearDuplicate is a set of rows sharing a duplicate key but differing elsewhere
type NearDuplicate struct {
	Key  map[string]any `json:"key"`
	Rows []int          `json:"rows"`
}

// MissingLog records missing-value handling
type MissingLog struct {
	Policy         string         `json:"policy"`
	NullsByColumn  map[string]int `json:"nulls_by_column"`
	RowsFlagged    int            `json:"rows_flagged"`
	RowsDropped    int            `json:"rows_dropped"`
	ColumnsDropped []string       `json:"columns_dropped,omitempty"`
}

// OutlierLog records outlier flagging
type OutlierLog struct {
	Method      string         `json:"method"`
	Threshold   float64        `json:"threshold"`
	ByColumn    map[string]int `json:"by_column"`
	RowsFlagged int            `json:"rows_flagged"`
	Skipped     []string       `json:"skipped,omitempty"`
}

// Log is the audit trail of one Clean call
type Log struct {
	Table              string            `json:"table"`
	RowsIn             int               `json:"rows_in"`
	RowsOut            int               `json:"rows_out"`
	NullsIn            int               `json:"nulls_in"`
	NullsOut           int               `json:"nulls_out"`
	Steps              []StepLog         `json:"steps"`
	Renamed            map[string]string `json:"renamed"`
	Categories         []CategoryLog     `json:"categories"`
	ConversionFailures map[string]int    `json:"conversion_failures"`
	DuplicatesRemoved  int               `json:"duplicates_removed"`
	NearDuplicates     []NearDuplicate   `json:"near_duplicates"`
	Missing            MissingLog        `json:"missing"`
	Outliers           OutlierLog        `json:"outliers"`
}

// TotalConversionFailures sums conversion failures across columns
func (l *Log) TotalConversionFailures() int {
	n := 0
	for _, c := range l.ConversionFailures {
		n += c
	}
	return n
}

// UnmappedValues returns the unmapped raw values per column
func (l *Log) UnmappedValues() map[string][]string {
	out := map[string][]string{}
	for _, c := range l.Categories {
		if len(c.Unmapped) > 0 {
			out[c.Column] = c.Unmapped
		}
	}
	return out
}
