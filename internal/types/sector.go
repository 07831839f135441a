// Package types provides type definitions for structured data used throughout the workforce-capacity pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "strings"

// Sector is the healthcare provider ownership category of a record
type Sector string

const (
	SectorPublic       Sector = "Public"
	SectorPrivate      Sector = "Private"
	SectorNotForProfit Sector = "Not-for-Profit"
	SectorInactive     Sector = "Inactive"
)

// Sectors returns the canonical sector enumeration in display order
func Sectors() []Sector {
	return []Sector{SectorPublic, SectorPrivate, SectorNotForProfit, SectorInactive}
}

// SectorNames returns the canonical sector values as strings
func SectorNames() []string {
	out := make([]string, 0, 4)
	for _, s := range Sectors() {
		out = append(out, string(s))
	}
	return out
}

// ParseSector returns the canonical sector for an exact canonical value
func ParseSector(s string) (Sector, bool) {
	for _, c := range Sectors() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Profession is the workforce profession a headcount belongs to
type Profession string

const (
	ProfessionDoctor     Profession = "Doctor"
	ProfessionNurse      Profession = "Nurse"
	ProfessionPharmacist Profession = "Pharmacist"
)

// Professions returns the canonical profession enumeration
func Professions() []Profession {
	return []Profession{ProfessionDoctor, ProfessionNurse, ProfessionPharmacist}
}

// ProfessionNames returns the canonical profession values as strings
func ProfessionNames() []string {
	out := make([]string, 0, 3)
	for _, p := range Professions() {
		out = append(out, string(p))
	}
	return out
}

// ParseProfession returns the canonical profession for a value, ignoring case
func ParseProfession(s string) (Profession, bool) {
	for _, p := range Professions() {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

// Canonical column names of the cleaned tables
const (
	ColYear               = "year"
	ColSector             = "sector"
	ColProfession         = "profession"
	ColCount              = "count"
	ColSpecialistCategory = "specialist_category"
	ColNurseType          = "nurse_type"
	ColInstitutionType    = "institution_type"
	ColNumBeds            = "num_beds"
	ColNumFacilities      = "num_facilities"
	ColSourceTable        = "source_table"
	ColHasMissingValues   = "has_missing_values"
	ColOutlierFlag        = "outlier_flag"
)
