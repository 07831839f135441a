// Package pipeline orchestrates a workforce-capacity run: raw extracts are
// cleaned concurrently, unified per domain, gated by schema validation, turned
// into metrics and a quality report, and published only when every stage succeeded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/workforce-capacity/internal/artifacts"
	"github.com/jonathan/workforce-capacity/internal/cleaning"
	"github.com/jonathan/workforce-capacity/internal/db"
	"github.com/jonathan/workforce-capacity/internal/ingestion"
	"github.com/jonathan/workforce-capacity/internal/metrics"
	"github.com/jonathan/workforce-capacity/internal/pipeline/steps"
	"github.com/jonathan/workforce-capacity/internal/report"
	"github.com/jonathan/workforce-capacity/internal/tabular"
	"github.com/jonathan/workforce-capacity/internal/types"
	"github.com/jonathan/workforce-capacity/internal/unify"
	"github.com/jonathan/workforce-capacity/internal/validation"
)

// Result holds every output of a successful run
type Result struct {
	RunID       uuid.UUID
	Workforce   *tabular.Table
	Capacity    *tabular.Table
	Cleaning    []*cleaning.Log
	Unify       []*unify.Log
	Validation  []*validation.Report
	Metrics     *metrics.Result
	Composition *metrics.CompositionResult
	Mismatch    []types.MismatchResult
	Cumulative  []types.CumulativeMismatch
	Statistics  *metrics.Statistics
	Report      *report.QualityReport
	Artifacts   []artifacts.Artifact
	Locations   []artifacts.Location
}

// tableState follows one raw extract through ingestion and cleaning. Each
// concurrent task writes only its own tableState.
type tableState struct {
	domain  string
	input   TableInput
	raw     *tabular.Table
	cleaned *tabular.Table
	log     *cleaning.Log
}

type domainState struct {
	name     string
	tables   []*tableState
	optional []string
	unified  *unify.Result
}

type runner struct {
	opts      RunOptions
	runID     uuid.UUID
	log       *zap.Logger
	ledger    db.RunLedger
	cleaner   *cleaning.Cleaner
	validator *validation.Validator
	engine    *metrics.Engine
	completed map[string]bool
}

// Run executes the pipeline. On error nothing is published and the returned
// error is a *StageError naming the stage that aborted.
func Run(ctx context.Context, opts RunOptions) (*Result, error) {
	opts = opts.withDefaults()
	if len(opts.Workforce.Tables) == 0 || len(opts.Capacity.Tables) == 0 {
		return nil, fmt.Errorf("both workforce and capacity tables are required")
	}

	engine, err := metrics.NewEngine(opts.Registry, opts.Metrics, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics options: %w", err)
	}

	r := &runner{
		opts:      opts,
		runID:     opts.RunID,
		log:       opts.Logger.With(zap.String("run_id", opts.RunID.String())),
		ledger:    opts.Ledger,
		cleaner:   cleaning.NewCleaner(opts.Logger),
		validator: validation.NewValidator(opts.Logger),
		engine:    engine,
		completed: map[string]bool{},
	}
	r.start(ctx)

	res, err := r.execute(ctx)
	r.finish(ctx, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// emitProgress calls the progress callback if configured
func (r *runner) emitProgress(stage, category, message string, content any) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(ProgressEvent{
			Stage:    stage,
			Category: category,
			Message:  message,
			RunID:    r.runID.String(),
			Content:  content,
		})
	}
}

func (r *runner) start(ctx context.Context) {
	if r.ledger == nil {
		return
	}
	params := map[string]any{
		"concurrency":      r.opts.Concurrency,
		"capacity_measure": r.engine.Options().CapacityMeasure,
		"inactive_policy":  r.engine.Options().InactivePolicy,
		"unmapped_policy":  r.opts.UnmappedPolicy,
	}
	if r.opts.Sink != nil {
		params["sink"] = r.opts.Sink.Describe()
	}
	if err := r.ledger.StartRun(context.WithoutCancel(ctx), r.runID, r.opts.Registry.Version(), params); err != nil {
		r.log.Warn("failed to record run, continuing without ledger", zap.Error(err))
		r.ledger = nil
	}
}

func (r *runner) finish(ctx context.Context, res *Result, runErr error) {
	ctx = context.WithoutCancel(ctx)
	status := db.RunStatusCompleted
	var msg *string
	if runErr != nil {
		status = db.RunStatusFailed
		m := runErr.Error()
		msg = &m
	}
	if r.ledger != nil {
		if err := r.ledger.CompleteRun(ctx, r.runID, status, msg); err != nil {
			r.log.Warn("failed to complete run in ledger", zap.Error(err))
		}
	}

	if c := r.opts.Collector; c != nil {
		if res != nil {
			collect(c, res)
			c.MarkSuccess(r.opts.Clock())
		}
		if r.opts.MetricsTextfile != "" {
			if err := c.WriteTextfile(r.opts.MetricsTextfile); err != nil {
				r.log.Warn("failed to write metrics textfile", zap.Error(err))
			}
		}
	}

	if runErr != nil {
		r.log.Error("pipeline run failed", zap.Error(runErr))
		return
	}
	r.log.Info("pipeline run completed",
		zap.Int("metric_records", len(res.Metrics.Records)),
		zap.Int("artifacts", len(res.Artifacts)),
		zap.Int("published", len(res.Locations)))
}

// stage runs fn as the named stage: dependencies are checked, the outcome is
// recorded in the ledger and the collector, and errors are wrapped in StageError.
func (r *runner) stage(ctx context.Context, name string, fn func(ctx context.Context) (int, error)) error {
	def, err := steps.Get(name)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: name, Err: err}
	}
	if err := steps.Check(name, r.completed); err != nil {
		return &StageError{Stage: name, Err: err}
	}

	r.emitProgress(name, def.Category, "started", nil)
	started := time.Now()
	rows, err := fn(ctx)
	elapsed := time.Since(started)

	if r.opts.Collector != nil {
		r.opts.Collector.ObserveStage(name, elapsed)
	}
	rec := db.StageRecord{
		Stage:      name,
		Category:   def.Category,
		Status:     db.StageStatusCompleted,
		DurationMs: elapsed.Milliseconds(),
		Rows:       rows,
	}
	if err != nil {
		var se *StageError
		if !errors.As(err, &se) || se.Stage != name {
			err = &StageError{Stage: name, Err: err}
		}
		msg := err.Error()
		rec.Status = db.StageStatusFailed
		rec.ErrorMessage = &msg
		r.record(ctx, rec)
		r.emitProgress(name, def.Category, "failed", msg)
		return err
	}

	r.completed[name] = true
	r.record(ctx, rec)
	r.log.Info("stage completed", zap.String("stage", name), zap.Int("rows", rows), zap.Duration("elapsed", elapsed))
	r.emitProgress(name, def.Category, "completed", rows)
	return nil
}

func (r *runner) skip(ctx context.Context, name, reason string) {
	def, _ := steps.Get(name)
	r.record(ctx, db.StageRecord{Stage: name, Category: def.Category, Status: db.StageStatusSkipped})
	r.log.Info("stage skipped", zap.String("stage", name), zap.String("reason", reason))
	r.emitProgress(name, def.Category, "skipped: "+reason, nil)
}

func (r *runner) record(ctx context.Context, rec db.StageRecord) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordStage(context.WithoutCancel(ctx), r.runID, rec); err != nil {
		r.log.Warn("failed to record stage", zap.String("stage", rec.Stage), zap.Error(err))
	}
}

func (r *runner) execute(ctx context.Context) (*Result, error) {
	opts := r.opts
	domains := []*domainState{
		newDomain("workforce", opts.Workforce),
		newDomain("capacity", opts.Capacity),
	}
	var tables []*tableState
	for _, d := range domains {
		tables = append(tables, d.tables...)
	}
	res := &Result{RunID: r.runID}

	// 1. Read raw extracts
	err := r.stage(ctx, steps.StageIngest, func(ctx context.Context) (int, error) {
		if err := r.forEachTable(ctx, steps.StageIngest, tables, func(ts *tableState) error {
			t, err := load(ts.input)
			if err != nil {
				return err
			}
			ts.raw = t
			return nil
		}); err != nil {
			return 0, err
		}
		return countRows(tables, func(ts *tableState) *tabular.Table { return ts.raw }), nil
	})
	if err != nil {
		return nil, err
	}

	// 2. Raw contracts: every mapped source column must be present
	err = r.stage(ctx, steps.StageValidateRaw, func(ctx context.Context) (int, error) {
		for _, ts := range tables {
			rep, err := r.validator.Validate(ts.raw, rawContract(ts.raw, ts.input.Rules))
			if err != nil {
				return 0, &StageError{Stage: steps.StageValidateRaw, Table: ts.input.Name, Err: err}
			}
			if err := rep.Err(); err != nil {
				return 0, &StageError{Stage: steps.StageValidateRaw, Table: ts.input.Name, Err: err}
			}
			res.Validation = append(res.Validation, rep)
		}
		return len(tables), nil
	})
	if err != nil {
		return nil, err
	}

	// 3. Clean every table concurrently; Wait is the barrier before unification
	err = r.stage(ctx, steps.StageClean, func(ctx context.Context) (int, error) {
		if err := r.forEachTable(ctx, steps.StageClean, tables, func(ts *tableState) error {
			out, err := r.cleaner.Clean(ts.raw, ts.input.Rules)
			if err != nil {
				return err
			}
			ts.cleaned, ts.log = out.Table, out.Log
			return nil
		}); err != nil {
			return 0, err
		}
		for _, ts := range tables {
			res.Cleaning = append(res.Cleaning, ts.log)
		}
		return countRows(tables, func(ts *tableState) *tabular.Table { return ts.cleaned }), nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Printer != nil {
		opts.Printer.PrintCleaning(res.Cleaning)
	}

	// 4. Unmapped sectors
	resolutions := map[string][]cleaning.Resolution{}
	err = r.stage(ctx, steps.StageResolveUnmapped, func(ctx context.Context) (int, error) {
		affected := 0
		for _, ts := range tables {
			if !ts.cleaned.HasColumn(types.ColSector) {
				continue
			}
			out, resolution, err := r.cleaner.ResolveUnmapped(ts.cleaned, types.ColSector, types.SectorNames(), opts.UnmappedPolicy, opts.UnmappedFallback)
			if err != nil {
				return 0, &StageError{Stage: steps.StageResolveUnmapped, Table: ts.input.Name, Err: err}
			}
			ts.cleaned = out
			if resolution.RowsAffected > 0 {
				resolutions[ts.cleaned.Name()] = append(resolutions[ts.cleaned.Name()], *resolution)
				affected += resolution.RowsAffected
			}
		}
		return affected, nil
	})
	if err != nil {
		return nil, err
	}

	// 5. Unify per domain
	err = r.stage(ctx, steps.StageUnify, func(ctx context.Context) (int, error) {
		rows := 0
		for _, d := range domains {
			in := make([]*tabular.Table, len(d.tables))
			for i, ts := range d.tables {
				in[i] = ts.cleaned
			}
			u, err := unify.Unify(in, types.ColSourceTable, unify.Options{Name: d.name, Optional: d.optional})
			if err != nil {
				return 0, &StageError{Stage: steps.StageUnify, Table: d.name, Err: err}
			}
			d.unified = u
			res.Unify = append(res.Unify, u.Log)
			rows += u.Table.Len()
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	res.Workforce, res.Capacity = domains[0].unified.Table, domains[1].unified.Table

	// 6. Post-cleaning quality gate
	err = r.stage(ctx, steps.StageValidate, func(ctx context.Context) (int, error) {
		gates := []struct {
			table    *tabular.Table
			contract validation.Contract
		}{
			{res.Workforce, validation.WorkforceContract(opts.MinYear, opts.MaxYear)},
			{res.Capacity, validation.CapacityContract(opts.MinYear, opts.MaxYear)},
		}
		for _, g := range gates {
			rep, err := r.validator.Validate(g.table, g.contract)
			if err != nil {
				return 0, &StageError{Stage: steps.StageValidate, Table: g.table.Name(), Err: err}
			}
			res.Validation = append(res.Validation, rep)
			if err := rep.Err(); err != nil {
				return 0, &StageError{Stage: steps.StageValidate, Table: g.table.Name(), Err: err}
			}
		}
		return res.Workforce.Len() + res.Capacity.Len(), nil
	})
	if opts.Printer != nil {
		opts.Printer.PrintValidation(res.Validation)
	}
	if err != nil {
		return nil, err
	}

	// 7. Typed records
	var workforce []types.WorkforceRecord
	var capacity []types.CapacityRecord
	err = r.stage(ctx, steps.StageProject, func(ctx context.Context) (int, error) {
		var err error
		if workforce, err = types.WorkforceFromTable(res.Workforce); err != nil {
			return 0, err
		}
		if capacity, err = types.CapacityFromTable(res.Capacity); err != nil {
			return 0, err
		}
		return len(workforce) + len(capacity), nil
	})
	if err != nil {
		return nil, err
	}

	// 8. Metrics
	err = r.stage(ctx, steps.StageComputeMetrics, func(ctx context.Context) (int, error) {
		m, err := r.engine.ComputeMetrics(workforce, capacity, opts.Overlap)
		if err != nil {
			return 0, err
		}
		res.Metrics = m
		return len(m.Records), nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Printer != nil {
		opts.Printer.PrintMetrics(res.Metrics)
	}

	err = r.stage(ctx, steps.StageComputeComposition, func(ctx context.Context) (int, error) {
		c, err := r.engine.ComputeComposition(workforce, opts.CompositionYears)
		if err != nil {
			return 0, err
		}
		res.Composition = c
		return len(c.Records), nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, steps.StageSummarize, func(ctx context.Context) (int, error) {
		res.Mismatch = metrics.Summarize(res.Metrics.Records, r.engine.Options().Thresholds)
		var err error
		if len(res.Metrics.Records) > 0 {
			if res.Cumulative, err = metrics.CumulativeAll(res.Metrics.Records, res.Metrics.Overlap); err != nil {
				return 0, err
			}
		}
		res.Statistics = r.engine.RunStatistics(res.Metrics.Records)
		return len(res.Mismatch), nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Printer != nil {
		opts.Printer.PrintMismatch(res.Mismatch)
	}

	// 9. Report
	err = r.stage(ctx, steps.StageBuildReport, func(ctx context.Context) (int, error) {
		rep, err := report.NewGenerator(opts.Registry, opts.Clock).Build(report.Input{
			RunID:       r.runID.String(),
			Cleaning:    res.Cleaning,
			Resolutions: resolutions,
			Unify:       res.Unify,
			Validation:  res.Validation,
			Metrics:     res.Metrics,
			Composition: res.Composition,
			Mismatch:    res.Mismatch,
			Cumulative:  res.Cumulative,
			Statistics:  res.Statistics,
		})
		if err != nil {
			return 0, err
		}
		res.Report = rep
		return len(rep.Tables), nil
	})
	if err != nil {
		return nil, err
	}

	// 10. Encode everything before the first byte is written
	err = r.stage(ctx, steps.StageEncode, func(ctx context.Context) (int, error) {
		arts, err := encodeAll(res)
		if err != nil {
			return 0, err
		}
		res.Artifacts = arts
		return len(arts), nil
	})
	if err != nil {
		return nil, err
	}

	// 11. Publish
	if opts.Sink == nil {
		r.skip(ctx, steps.StagePublish, "no sink configured")
		return res, nil
	}
	err = r.stage(ctx, steps.StagePublish, func(ctx context.Context) (int, error) {
		locs, err := opts.Sink.Publish(ctx, r.runID.String(), res.Artifacts)
		if err != nil {
			return 0, err
		}
		res.Locations = locs
		r.recordArtifacts(ctx, locs)
		return len(locs), nil
	})
	if err != nil {
		return nil, err
	}
	if opts.Printer != nil {
		opts.Printer.PrintArtifacts(res.Locations)
	}
	return res, nil
}

// forEachTable runs fn over tables with at most Concurrency tasks in flight.
// The first failure cancels the remaining tasks.
func (r *runner) forEachTable(ctx context.Context, stage string, tables []*tableState, fn func(ts *tableState) error) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	var mu sync.Mutex
	done := 0
	for _, ts := range tables {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return &StageError{Stage: stage, Table: ts.input.Name, Err: err}
			}
			if err := fn(ts); err != nil {
				return &StageError{Stage: stage, Table: ts.input.Name, Err: err}
			}
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			r.emitProgress(stage, ts.domain, fmt.Sprintf("%s (%d/%d)", ts.input.Name, n, len(tables)), nil)
			return nil
		})
	}
	return g.Wait()
}

func (r *runner) recordArtifacts(ctx context.Context, locs []artifacts.Location) {
	if r.ledger == nil {
		return
	}
	recs := make([]db.ArtifactRecord, len(locs))
	for i, l := range locs {
		recs[i] = db.ArtifactRecord{Name: l.Name, URI: l.URI, SHA256: l.SHA256, Size: l.Size, Rows: l.Rows}
	}
	if err := r.ledger.RecordArtifacts(context.WithoutCancel(ctx), r.runID, recs); err != nil {
		r.log.Warn("failed to record artifacts", zap.Error(err))
	}
}

func newDomain(name string, in DomainInput) *domainState {
	d := &domainState{name: name, optional: in.Optional}
	for _, t := range in.Tables {
		d.tables = append(d.tables, &tableState{domain: name, input: t})
	}
	return d
}

// load returns the raw table of an input, named after the input
func load(in TableInput) (*tabular.Table, error) {
	switch {
	case in.Table != nil:
		if in.Name == "" {
			return in.Table, nil
		}
		return in.Table.WithName(in.Name), nil
	case in.Path != "":
		return ingestion.ReadSource(ingestion.Source{Name: in.Name, Path: in.Path})
	default:
		return nil, fmt.Errorf("table %s has neither data nor a path", in.Name)
	}
}

// rawContract drops mapped sources whose target is already present, so an
// already-cleaned extract passes the raw gate.
func rawContract(t *tabular.Table, rules cleaning.Rules) validation.Contract {
	c := rules.RawContract(t.Name())
	kept := c.Columns[:0:0]
	for _, col := range c.Columns {
		if !t.HasColumn(col.Name) && t.HasColumn(rules.ColumnMapping[col.Name]) {
			continue
		}
		kept = append(kept, col)
	}
	c.Columns = kept
	return c
}

func countRows(tables []*tableState, pick func(*tableState) *tabular.Table) int {
	n := 0
	for _, ts := range tables {
		n += pick(ts).Len()
	}
	return n
}

func encodeAll(res *Result) ([]artifacts.Artifact, error) {
	wf, err := artifacts.EncodeTable(artifacts.WorkforceClean, res.Workforce)
	if err != nil {
		return nil, err
	}
	cp, err := artifacts.EncodeTable(artifacts.CapacityClean, res.Capacity)
	if err != nil {
		return nil, err
	}
	mt, err := artifacts.EncodeMetrics(res.Metrics.Records)
	if err != nil {
		return nil, err
	}
	cm, err := artifacts.EncodeComposition(res.Composition.Records)
	if err != nil {
		return nil, err
	}
	data, err := report.Encode(res.Report)
	if err != nil {
		return nil, err
	}
	return []artifacts.Artifact{wf, cp, mt, cm, artifacts.EncodeReport(data)}, nil
}
