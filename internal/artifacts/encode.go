package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/jonathan/workforce-capacity/internal/tabular"
	"github.com/jonathan/workforce-capacity/internal/types"
)

const parallelism = 4

// MetricRow is the Parquet layout of workforce_capacity_metrics
type MetricRow struct {
	Year                int32    `parquet:"name=year, type=INT32"`
	Sector              string   `parquet:"name=sector, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	TotalWorkforce      int64    `parquet:"name=total_workforce, type=INT64"`
	TotalCapacity       int64    `parquet:"name=total_capacity, type=INT64"`
	Ratio               float64  `parquet:"name=ratio, type=DOUBLE"`
	PriorYearRatio      *float64 `parquet:"name=prior_year_ratio, type=DOUBLE, repetitiontype=OPTIONAL"`
	WorkforceGrowthRate *float64 `parquet:"name=workforce_growth_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	CapacityGrowthRate  *float64 `parquet:"name=capacity_growth_rate, type=DOUBLE, repetitiontype=OPTIONAL"`
	MismatchIndex       *float64 `parquet:"name=mismatch_index, type=DOUBLE, repetitiontype=OPTIONAL"`
	WorkforceIndex      *float64 `parquet:"name=workforce_index, type=DOUBLE, repetitiontype=OPTIONAL"`
	CapacityIndex       *float64 `parquet:"name=capacity_index, type=DOUBLE, repetitiontype=OPTIONAL"`
	WithinBenchmark     bool     `parquet:"name=within_benchmark, type=BOOLEAN"`
	MismatchFlag        bool     `parquet:"name=mismatch_flag, type=BOOLEAN"`
}

// CompositionRow is the Parquet layout of workforce_composition
type CompositionRow struct {
	Year              int32   `parquet:"name=year, type=INT32"`
	Sector            string  `parquet:"name=sector, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Numerator         string  `parquet:"name=numerator, type=BYTE_ARRAY, convertedtype=UTF8"`
	Denominator       string  `parquet:"name=denominator, type=BYTE_ARRAY, convertedtype=UTF8"`
	NumeratorCount    int64   `parquet:"name=numerator_count, type=INT64"`
	DenominatorCount  int64   `parquet:"name=denominator_count, type=INT64"`
	Ratio             float64 `parquet:"name=ratio, type=DOUBLE"`
	WithinNormalRange bool    `parquet:"name=within_normal_range, type=BOOLEAN"`
}

// EncodeMetrics writes metric records, one row per (year, sector)
func EncodeMetrics(records []types.MetricRecord) (Artifact, error) {
	rows := make([]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, &MetricRow{
			Year:                int32(r.Year),
			Sector:              string(r.Sector),
			TotalWorkforce:      r.TotalWorkforce,
			TotalCapacity:       r.TotalCapacity,
			Ratio:               r.Ratio,
			PriorYearRatio:      r.PriorYearRatio,
			WorkforceGrowthRate: r.WorkforceGrowthRate,
			CapacityGrowthRate:  r.CapacityGrowthRate,
			MismatchIndex:       r.MismatchIndex,
			WorkforceIndex:      r.WorkforceIndex,
			CapacityIndex:       r.CapacityIndex,
			WithinBenchmark:     r.WithinBenchmark,
			MismatchFlag:        r.MismatchFlag,
		})
	}
	data, err := writeStructs(new(MetricRow), rows)
	if err != nil {
		return Artifact{}, &Error{Artifact: MetricsFile, Message: "encode failed", Cause: err}
	}
	return Artifact{Name: MetricsFile, ContentType: ContentTypeParquet, Data: data, Rows: len(rows)}, nil
}

// EncodeComposition writes profession composition records
func EncodeComposition(records []types.CompositionRecord) (Artifact, error) {
	rows := make([]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, &CompositionRow{
			Year:              int32(r.Year),
			Sector:            string(r.Sector),
			Numerator:         string(r.Numerator),
			Denominator:       string(r.Denominator),
			NumeratorCount:    r.NumeratorCount,
			DenominatorCount:  r.DenominatorCount,
			Ratio:             r.Ratio,
			WithinNormalRange: r.WithinNormalRange,
		})
	}
	data, err := writeStructs(new(CompositionRow), rows)
	if err != nil {
		return Artifact{}, &Error{Artifact: CompositionFile, Message: "encode failed", Cause: err}
	}
	return Artifact{Name: CompositionFile, ContentType: ContentTypeParquet, Data: data, Rows: len(rows)}, nil
}

// EncodeTable writes a cleaned table under name. Every column is OPTIONAL
// so nulls survive the round trip.
func EncodeTable(name string, t *tabular.Table) (Artifact, error) {
	schema, err := tableSchema(t)
	if err != nil {
		return Artifact{}, &Error{Artifact: name, Message: "schema", Cause: err}
	}

	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(schema, pfw, parallelism)
	if err != nil {
		return Artifact{}, &Error{Artifact: name, Message: "writer", Cause: err}
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range t.Records() {
		line, err := json.Marshal(rec)
		if err != nil {
			_ = pw.WriteStop()
			return Artifact{}, &Error{Artifact: name, Message: "row", Cause: err}
		}
		if err := pw.Write(string(line)); err != nil {
			_ = pw.WriteStop()
			return Artifact{}, &Error{Artifact: name, Message: "write", Cause: err}
		}
	}
	if err := pw.WriteStop(); err != nil {
		return Artifact{}, &Error{Artifact: name, Message: "flush", Cause: err}
	}
	if err := pfw.Close(); err != nil {
		return Artifact{}, &Error{Artifact: name, Message: "close", Cause: err}
	}
	return Artifact{Name: name, ContentType: ContentTypeParquet, Data: buf.Bytes(), Rows: t.Len()}, nil
}

// EncodeReport wraps an already encoded quality report
func EncodeReport(data []byte) Artifact {
	return Artifact{Name: ReportFile, ContentType: ContentTypeJSON, Data: data}
}

func writeStructs(obj any, rows []any) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewParquetWriter(pfw, obj, parallelism)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := pfw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableSchema(t *tabular.Table) (string, error) {
	fields := make([]map[string]string, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		physical, err := physicalType(c.Kind)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", c.Name, err)
		}
		fields = append(fields, map[string]string{
			"Tag": fmt.Sprintf("name=%s, %s, repetitiontype=OPTIONAL", c.Name, physical),
		})
	}
	out := map[string]any{
		"Tag":    "name=parquet_go_root, repetitiontype=REQUIRED",
		"Fields": fields,
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func physicalType(k tabular.Kind) (string, error) {
	switch k {
	case tabular.KindInt:
		return "type=INT64", nil
	case tabular.KindFloat:
		return "type=DOUBLE", nil
	case tabular.KindBool:
		return "type=BOOLEAN", nil
	case tabular.KindString:
		return "type=BYTE_ARRAY, convertedtype=UTF8", nil
	default:
		return "", fmt.Errorf("unsupported kind %q", k)
	}
}
