package types

import (
	"fmt"

	"github.com/jonathan/workforce-capacity/internal/tabular"
)

// WorkforceRecord is one cleaned headcount row
type WorkforceRecord struct {
	Year               int        `json:"year"`
	Sector             Sector     `json:"sector"`
	Profession         Profession `json:"profession"`
	Count              *int64     `json:"count"`
	SpecialistCategory *string    `json:"specialist_category,omitempty"`
	NurseType          *string    `json:"nurse_type,omitempty"`
	SourceTable        string     `json:"source_table"`
	HasMissingValues   bool       `json:"has_missing_values"`
	OutlierFlag        bool       `json:"outlier_flag"`
}

// CapacityRecord is one cleaned facility capacity row
type CapacityRecord struct {
	Year             int    `json:"year"`
	Sector           Sector `json:"sector"`
	InstitutionType  string `json:"institution_type"`
	NumBeds          *int64 `json:"num_beds"`
	NumFacilities    *int64 `json:"num_facilities"`
	SourceTable      string `json:"source_table"`
	HasMissingValues bool   `json:"has_missing_values"`
	OutlierFlag      bool   `json:"outlier_flag"`
}

// ProjectionError reports a cleaned row that cannot be represented as a typed record
type ProjectionError struct {
	Table   string
	Row     int
	Column  string
	Message string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projection error: table %s row %d column %s: %s", e.Table, e.Row, e.Column, e.Message)
}

// WorkforceFromTable converts a validated, unified workforce table into typed records
func WorkforceFromTable(t *tabular.Table) ([]WorkforceRecord, error) {
	out := make([]WorkforceRecord, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		p := projector{table: t, row: i}
		rec := WorkforceRecord{
			Year:               p.year(),
			Sector:             p.sector(),
			Count:              p.count(ColCount),
			SpecialistCategory: p.optString(ColSpecialistCategory),
			NurseType:          p.optString(ColNurseType),
			SourceTable:        p.str(ColSourceTable),
			HasMissingValues:   p.flag(ColHasMissingValues),
			OutlierFlag:        p.flag(ColOutlierFlag),
		}
		raw := p.str(ColProfession)
		prof, ok := ParseProfession(raw)
		if !ok && p.err == nil {
			p.fail(ColProfession, fmt.Sprintf("unknown profession %q", raw))
		}
		rec.Profession = prof
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, rec)
	}
	return out, nil
}

// CapacityFromTable converts a validated, unified capacity table into typed records
func CapacityFromTable(t *tabular.Table) ([]CapacityRecord, error) {
	out := make([]CapacityRecord, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		p := projector{table: t, row: i}
		rec := CapacityRecord{
			Year:             p.year(),
			Sector:           p.sector(),
			InstitutionType:  p.str(ColInstitutionType),
			NumBeds:          p.count(ColNumBeds),
			NumFacilities:    p.count(ColNumFacilities),
			SourceTable:      p.str(ColSourceTable),
			HasMissingValues: p.flag(ColHasMissingValues),
			OutlierFlag:      p.flag(ColOutlierFlag),
		}
		if p.err != nil {
			return nil, p.err
		}
		out = append(out, rec)
	}
	return out, nil
}

// projector reads one row and keeps the first failure
type projector struct {
	table *tabular.Table
	row   int
	err   error
}

func (p *projector) fail(column, msg string) {
	if p.err == nil {
		p.err = &ProjectionError{Table: p.table.Name(), Row: p.row, Column: column, Message: msg}
	}
}

func (p *projector) year() int {
	v, ok := p.table.Value(p.row, ColYear).(int64)
	if !ok {
		p.fail(ColYear, "year is null or not an integer")
		return 0
	}
	return int(v)
}

func (p *projector) sector() Sector {
	raw, _ := p.table.Value(p.row, ColSector).(string)
	s, ok := ParseSector(raw)
	if !ok {
		p.fail(ColSector, fmt.Sprintf("non-canonical sector %q", raw))
	}
	return s
}

func (p *projector) count(column string) *int64 {
	switch v := p.table.Value(p.row, column).(type) {
	case nil:
		return nil
	case int64:
		if v < 0 {
			p.fail(column, fmt.Sprintf("negative value %d", v))
			return nil
		}
		return &v
	default:
		p.fail(column, fmt.Sprintf("unexpected %T", v))
		return nil
	}
}

func (p *projector) str(column string) string {
	s, _ := p.table.Value(p.row, column).(string)
	return s
}

func (p *projector) optString(column string) *string {
	s, ok := p.table.Value(p.row, column).(string)
	if !ok {
		return nil
	}
	return &s
}

func (p *projector) flag(column string) bool {
	b, _ := p.table.Value(p.row, column).(bool)
	return b
}
