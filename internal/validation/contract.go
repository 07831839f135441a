package validation

import (
	"fmt"

	"github.com/jonathan/workforce-capacity/internal/tabular"
	"github.com/jonathan/workforce-capacity/internal/types"
)

// ColumnContract declares the expectations for one column
type ColumnContract struct {
	Name     string       `json:"name" yaml:"name" validate:"required"`
	Kind     tabular.Kind `json:"kind" yaml:"kind" validate:"required,oneof=string int float bool"`
	Critical bool         `json:"critical,omitempty" yaml:"critical,omitempty"`
	Nullable bool         `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Enum     []string     `json:"enum,omitempty" yaml:"enum,omitempty"`
	Min      *float64     `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64     `json:"max,omitempty" yaml:"max,omitempty"`
}

// Contract is the full set of expectations for a table
type Contract struct {
	Name                  string           `json:"name" yaml:"name" validate:"required"`
	Columns               []ColumnContract `json:"columns" yaml:"columns" validate:"required,dive"`
	DuplicateKey          []string         `json:"duplicate_key,omitempty" yaml:"duplicate_key,omitempty"`
	MaxOutOfRangeFraction float64          `json:"max_out_of_range_fraction" yaml:"max_out_of_range_fraction" validate:"gte=0,lte=1"`
	FailOnDuplicates      bool             `json:"fail_on_duplicates,omitempty" yaml:"fail_on_duplicates,omitempty"`
}

// Column returns the contract for a column, if declared
func (c Contract) Column(name string) (ColumnContract, bool) {
	for _, col := range c.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnContract{}, false
}

func (c Contract) check() error {
	if c.Name == "" {
		return &Error{Message: "contract name is required"}
	}
	seen := make(map[string]bool, len(c.Columns))
	for _, col := range c.Columns {
		if seen[col.Name] {
			return &Error{Message: fmt.Sprintf("contract %s declares column %s twice", c.Name, col.Name)}
		}
		seen[col.Name] = true
		if !col.Kind.Valid() {
			return &Error{Message: fmt.Sprintf("contract %s column %s has unknown kind %q", c.Name, col.Name, col.Kind)}
		}
		if col.Min != nil && col.Max != nil && *col.Min > *col.Max {
			return &Error{Message: fmt.Sprintf("contract %s column %s has min > max", c.Name, col.Name)}
		}
	}
	if c.MaxOutOfRangeFraction < 0 || c.MaxOutOfRangeFraction > 1 {
		return &Error{Message: fmt.Sprintf("contract %s: max out-of-range fraction must be within [0, 1]", c.Name)}
	}
	return nil
}

func ptr(v float64) *float64 { return &v }

// WorkforceContract is the post-cleaning gate for the unified workforce table
func WorkforceContract(minYear, maxYear int) Contract {
	return Contract{
		Name: "workforce_clean",
		Columns: []ColumnContract{
			{Name: types.ColYear, Kind: tabular.KindInt, Critical: true, Min: ptr(float64(minYear)), Max: ptr(float64(maxYear))},
			{Name: types.ColSector, Kind: tabular.KindString, Critical: true, Enum: types.SectorNames()},
			{Name: types.ColProfession, Kind: tabular.KindString, Critical: true, Enum: types.ProfessionNames()},
			{Name: types.ColCount, Kind: tabular.KindInt, Critical: true, Nullable: true, Min: ptr(0)},
			{Name: types.ColSpecialistCategory, Kind: tabular.KindString, Nullable: true},
			{Name: types.ColNurseType, Kind: tabular.KindString, Nullable: true},
			{Name: types.ColSourceTable, Kind: tabular.KindString},
			{Name: types.ColHasMissingValues, Kind: tabular.KindBool},
			{Name: types.ColOutlierFlag, Kind: tabular.KindBool},
		},
		DuplicateKey: []string{
			types.ColYear, types.ColSector, types.ColProfession,
			types.ColSpecialistCategory, types.ColNurseType, types.ColSourceTable,
		},
	}
}

// CapacityContract is the post-cleaning gate for the unified capacity table
func CapacityContract(minYear, maxYear int) Contract {
	return Contract{
		Name: "capacity_clean",
		Columns: []ColumnContract{
			{Name: types.ColYear, Kind: tabular.KindInt, Critical: true, Min: ptr(float64(minYear)), Max: ptr(float64(maxYear))},
			{Name: types.ColSector, Kind: tabular.KindString, Critical: true, Enum: types.SectorNames()},
			{Name: types.ColInstitutionType, Kind: tabular.KindString},
			{Name: types.ColNumBeds, Kind: tabular.KindInt, Critical: true, Nullable: true, Min: ptr(0)},
			{Name: types.ColNumFacilities, Kind: tabular.KindInt, Critical: true, Nullable: true, Min: ptr(0)},
			{Name: types.ColSourceTable, Kind: tabular.KindString},
			{Name: types.ColHasMissingValues, Kind: tabular.KindBool},
			{Name: types.ColOutlierFlag, Kind: tabular.KindBool},
		},
		DuplicateKey: []string{types.ColYear, types.ColSector, types.ColInstitutionType, types.ColSourceTable},
	}
}
