// Package schemas embeds the JSON Schemas of the run descriptor and the
// quality report so binaries validate without a checkout.
package schemas

import _ "embed"

// CleaningRules is the schema of the run descriptor (tables, cleaning rules,
// metric options, outputs).
//
//go:embed cleaning_rules.schema.json
var CleaningRules []byte

// QualityReport is the schema of quality_report.json
//
//go:embed quality_report.schema.json
var QualityReport []byte

// Files maps schema file names to their contents
var Files = map[string][]byte{
	"cleaning_rules.schema.json": CleaningRules,
	"quality_report.schema.json": QualityReport,
}
