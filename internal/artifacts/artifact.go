package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// Well-known artifact names
const (
	WorkforceClean  = "workforce_clean.parquet"
	CapacityClean   = "capacity_clean.parquet"
	MetricsFile     = "workforce_capacity_metrics.parquet"
	CompositionFile = "workforce_composition.parquet"
	ReportFile      = "quality_report.json"
)

// Content types
const (
	ContentTypeParquet = "application/vnd.apache.parquet"
	ContentTypeJSON    = "application/json"
)

// Artifact is a fully encoded output, ready to publish
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
	Rows        int
}

// SHA256 returns the hex digest of the artifact bytes
func (a Artifact) SHA256() string {
	sum := sha256.Sum256(a.Data)
	return hex.EncodeToString(sum[:])
}

// Size returns the encoded size in bytes
func (a Artifact) Size() int64 { return int64(len(a.Data)) }

// Location is where a published artifact ended up
type Location struct {
	Name   string `json:"name"`
	URI    string `json:"uri"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	Rows   int    `json:"rows"`
}

func checkNames(arts []Artifact) error {
	seen := map[string]bool{}
	for _, a := range arts {
		if a.Name == "" || strings.ContainsAny(a.Name, `/\`) || a.Name != path.Clean(a.Name) || strings.HasPrefix(a.Name, ".") {
			return &Error{Artifact: a.Name, Message: "invalid artifact name"}
		}
		if seen[a.Name] {
			return &Error{Artifact: a.Name, Message: "duplicate artifact name"}
		}
		seen[a.Name] = true
	}
	return nil
}

func locationOf(a Artifact, uri string) Location {
	return Location{Name: a.Name, URI: uri, Size: a.Size(), SHA256: a.SHA256(), Rows: a.Rows}
}

func joinKey(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}
