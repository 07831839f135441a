// Package steps provides stage definitions and dependency checks for the
// workforce-capacity pipeline.
package steps

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	dbpkg "github.com/jonathan/workforce-capacity/internal/db"
)

// Stage categories
const (
	CategoryIngestion   = "ingestion"
	CategoryCleaning    = "cleaning"
	CategoryUnify       = "unify"
	CategoryValidation  = "validation"
	CategoryMetrics     = "metrics"
	CategoryReport      = "report"
	CategoryPublication = "publication"
)

// Stage names
const (
	StageIngest             = "ingest"
	StageValidateRaw        = "validate_raw"
	StageClean              = "clean"
	StageResolveUnmapped    = "resolve_unmapped"
	StageUnify              = "unify"
	StageValidate           = "validate"
	StageProject            = "project"
	StageComputeMetrics     = "compute_metrics"
	StageComputeComposition = "compute_composition"
	StageSummarize          = "summarize"
	StageBuildReport        = "build_report"
	StageEncode             = "encode_artifacts"
	StagePublish            = "publish"
)

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Name         string
	Category     string
	Description  string
	Dependencies []string
	Optional     []string
}

// StageRegistry holds all stage definitions
var StageRegistry = map[string]StageDefinition{
	StageIngest: {
		Name:        StageIngest,
		Category:    CategoryIngestion,
		Description: "read raw CSV extracts",
	},
	StageValidateRaw: {
		Name:         StageValidateRaw,
		Category:     CategoryValidation,
		Description:  "check mapped source columns are present",
		Dependencies: []string{StageIngest},
	},
	StageClean: {
		Name:         StageClean,
		Category:     CategoryCleaning,
		Description:  "clean each raw table concurrently",
		Dependencies: []string{StageValidateRaw},
	},
	StageResolveUnmapped: {
		Name:         StageResolveUnmapped,
		Category:     CategoryCleaning,
		Description:  "apply the unmapped-sector policy",
		Dependencies: []string{StageClean},
	},
	StageUnify: {
		Name:         StageUnify,
		Category:     CategoryUnify,
		Description:  "concatenate tables per domain with provenance",
		Dependencies: []string{StageResolveUnmapped},
	},
	StageValidate: {
		Name:         StageValidate,
		Category:     CategoryValidation,
		Description:  "post-cleaning quality gate",
		Dependencies: []string{StageUnify},
	},
	StageProject: {
		Name:         StageProject,
		Category:     CategoryMetrics,
		Description:  "convert cleaned tables to typed records",
		Dependencies: []string{StageValidate},
	},
	StageComputeMetrics: {
		Name:         StageComputeMetrics,
		Category:     CategoryMetrics,
		Description:  "ratios, growth, mismatch and benchmark status",
		Dependencies: []string{StageProject},
	},
	StageComputeComposition: {
		Name:         StageComputeComposition,
		Category:     CategoryMetrics,
		Description:  "profession-to-profession ratios and shares",
		Dependencies: []string{StageProject},
	},
	StageSummarize: {
		Name:         StageSummarize,
		Category:     CategoryMetrics,
		Description:  "per-sector severity and cumulative mismatch",
		Dependencies: []string{StageComputeMetrics},
	},
	StageBuildReport: {
		Name:         StageBuildReport,
		Category:     CategoryReport,
		Description:  "assemble the data quality report",
		Dependencies: []string{StageComputeMetrics, StageSummarize},
		Optional:     []string{StageComputeComposition},
	},
	StageEncode: {
		Name:         StageEncode,
		Category:     CategoryPublication,
		Description:  "encode every artifact in memory",
		Dependencies: []string{StageBuildReport},
	},
	StagePublish: {
		Name:         StagePublish,
		Category:     CategoryPublication,
		Description:  "write artifacts to the sink",
		Dependencies: []string{StageEncode},
	},
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Stage               string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s: missing dependencies: %v", e.Stage, e.MissingDependencies)
}

// Get returns the definition of a stage
func Get(name string) (StageDefinition, error) {
	def, ok := StageRegistry[name]
	if !ok {
		return StageDefinition{}, fmt.Errorf("unknown stage: %s", name)
	}
	return def, nil
}

// Order returns every stage in dependency order. Ties are broken by name so
// the order is stable.
func Order() []string {
	indegree := make(map[string]int, len(StageRegistry))
	dependents := map[string][]string{}
	for name, def := range StageRegistry {
		indegree[name] += 0
		for _, dep := range append(slices.Clone(def.Dependencies), def.Optional...) {
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	slices.Sort(ready)

	out := make([]string, 0, len(StageRegistry))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		out = append(out, name)
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				slices.Sort(ready)
			}
		}
	}
	return out
}

// Missing returns the required dependencies of stage not in completed
func Missing(stage string, completed map[string]bool) ([]string, error) {
	def, err := Get(stage)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, dep := range def.Dependencies {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}
	return missing, nil
}

// Check returns a DependencyError when stage cannot run after completed
func Check(stage string, completed map[string]bool) error {
	missing, err := Missing(stage, completed)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &DependencyError{Stage: stage, MissingDependencies: missing}
	}
	return nil
}

// ValidateDependencies checks the ledger for the completed dependencies of stage
func ValidateDependencies(ctx context.Context, ledger dbpkg.RunLedger, runID uuid.UUID, stageName string) error {
	if _, err := Get(stageName); err != nil {
		return err
	}
	completed, err := Completed(ctx, ledger, runID)
	if err != nil {
		return err
	}
	return Check(stageName, completed)
}

// Completed returns the stages the ledger records as completed for runID
func Completed(ctx context.Context, ledger dbpkg.RunLedger, runID uuid.UUID) (map[string]bool, error) {
	recorded, err := ledger.ListStages(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	completed := make(map[string]bool, len(recorded))
	for _, s := range recorded {
		if s.Status == dbpkg.StageStatusCompleted {
			completed[s.Stage] = true
		}
	}
	return completed, nil
}

// GetBlockedStages returns the stages of a run that cannot run yet, in
// dependency order
func GetBlockedStages(ctx context.Context, ledger dbpkg.RunLedger, runID uuid.UUID) ([]string, error) {
	completed, err := Completed(ctx, ledger, runID)
	if err != nil {
		return nil, err
	}
	var blocked []string
	for _, name := range Order() {
		if completed[name] {
			continue
		}
		if err := Check(name, completed); err != nil {
			blocked = append(blocked, name)
		}
	}
	return blocked, nil
}
