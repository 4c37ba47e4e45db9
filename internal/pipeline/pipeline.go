// Package pipeline orchestrates the staged processing of capture records:
// OCR, then summarization, then classification. Each stage decides per
// record whether work is needed, so an interrupted run resumes from the
// store's state instead of starting over.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/activity-lens/activity-lens/internal/record"
	"github.com/activity-lens/activity-lens/internal/store"
)

// ErrNotReady marks an action that found its prerequisites missing at run
// time. The runner counts the record as skipped rather than failed.
var ErrNotReady = errors.New("record prerequisites missing")

// Stage is one pipeline step over the record store.
type Stage struct {
	// Name identifies the stage in reports and logs.
	Name string

	// Complete reports whether the record already has this stage's
	// output. Complete records are never re-processed.
	Complete func(rec record.Record) bool

	// Ready reports whether the record's prerequisites are present.
	Ready func(rec record.Record) bool

	// Run performs the stage's work and returns a sparse update carrying
	// the record id and the produced fields. The runner merges the update
	// into the store.
	Run func(ctx context.Context, rec record.Record) (record.Record, error)
}

// StageStats counts one stage's outcomes for a run.
type StageStats struct {
	Stage     string
	Processed int
	Skipped   int
	Failed    int
}

// Failure records one per-record action failure.
type Failure struct {
	Stage    string
	RecordID string
	Err      error
}

// Report summarizes one runner invocation.
type Report struct {
	RunID    uuid.UUID
	Started  time.Time
	Finished time.Time
	Stages   []StageStats
	Failures []Failure
}

// TotalProcessed sums processed counts across stages.
func (r *Report) TotalProcessed() int {
	total := 0
	for _, stats := range r.Stages {
		total += stats.Processed
	}

	return total
}

// TotalFailed sums failure counts across stages.
func (r *Report) TotalFailed() int {
	total := 0
	for _, stats := range r.Stages {
		total += stats.Failed
	}

	return total
}

// Options tunes a runner.
type Options struct {
	// Workers bounds concurrent collaborator calls within a stage.
	// One worker processes records strictly in capture order.
	Workers int

	// SaveBatch is the number of applied results between store saves.
	// One saves after every record.
	SaveBatch int
}

// Runner executes stages in order against the record store. Collaborator
// calls may run in parallel; all store mutation happens on the runner's
// goroutine.
type Runner struct {
	store     *store.Store
	stages    []Stage
	workers   int
	saveBatch int
	log       *logger.Logger
}

// NewRunner creates a runner over the given stages, which execute in slice
// order.
func NewRunner(st *store.Store, stages []Stage, opts Options, log *logger.Logger) *Runner {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	saveBatch := opts.SaveBatch
	if saveBatch < 1 {
		saveBatch = 1
	}

	return &Runner{
		store:     st,
		stages:    stages,
		workers:   workers,
		saveBatch: saveBatch,
		log:       log,
	}
}

// Run executes every stage once over the store and returns the run report.
// Per-record failures are collected in the report; the returned error is
// reserved for fatal conditions such as cancellation or a failed save.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:   uuid.New(),
		Started: time.Now().UTC(),
	}

	r.log.Info("Run %s starting: %d stages, %d workers", report.RunID, len(r.stages), r.workers)

	for _, stage := range r.stages {
		stats, err := r.runStage(ctx, stage, report)
		report.Stages = append(report.Stages, stats)

		if err != nil {
			report.Finished = time.Now().UTC()

			return report, fmt.Errorf("stage %s: %w", stage.Name, err)
		}
	}

	report.Finished = time.Now().UTC()

	r.log.Success(
		"Run %s complete: %d processed, %d failed in %v",
		report.RunID,
		report.TotalProcessed(),
		report.TotalFailed(),
		report.Finished.Sub(report.Started),
	)

	return report, nil
}

type outcome struct {
	id     string
	update record.Record
	err    error
}

// runStage processes every record that needs the stage, in capture order.
func (r *Runner) runStage(ctx context.Context, stage Stage, report *Report) (StageStats, error) {
	stats := StageStats{Stage: stage.Name}

	queue := make([]record.Record, 0)
	for _, rec := range r.store.Records() {
		switch {
		case stage.Complete(rec):
			stats.Skipped++
		case !stage.Ready(rec):
			stats.Skipped++
		default:
			queue = append(queue, rec)
		}
	}

	r.log.Info(
		"Stage %s: %d to process, %d skipped",
		stage.Name,
		len(queue),
		stats.Skipped,
	)

	if len(queue) == 0 {
		return stats, nil
	}

	results := make(chan outcome, len(queue))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.workers)

	go func() {
		for _, rec := range queue {
			group.Go(func() error {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}

				update, err := stage.Run(groupCtx, rec)
				results <- outcome{id: rec.ID, update: update, err: err}

				return nil
			})
		}

		// Wait's error resurfaces in the second Wait below.
		_ = group.Wait()
		close(results)
	}()

	applied, err := r.applyResults(stage, results, report, &stats)
	if err != nil {
		return stats, err
	}

	if applied > 0 && applied%r.saveBatch != 0 {
		if saveErr := r.store.Save(); saveErr != nil {
			return stats, fmt.Errorf("save store: %w", saveErr)
		}
	}

	if waitErr := group.Wait(); waitErr != nil {
		return stats, fmt.Errorf("canceled: %w", waitErr)
	}

	return stats, nil
}

// applyResults is the single write-back loop for one stage. Updates merge
// into the store as they arrive; the store is saved every saveBatch applied
// results.
func (r *Runner) applyResults(
	stage Stage,
	results <-chan outcome,
	report *Report,
	stats *StageStats,
) (int, error) {
	applied := 0

	for out := range results {
		switch {
		case errors.Is(out.err, ErrNotReady):
			stats.Skipped++
		case out.err != nil:
			stats.Failed++
			report.Failures = append(report.Failures, Failure{
				Stage:    stage.Name,
				RecordID: out.id,
				Err:      out.err,
			})
			r.log.Error("Stage %s failed for %s: %v", stage.Name, out.id, out.err)
		default:
			err := r.store.Upsert(out.update)
			if err != nil {
				return applied, fmt.Errorf("apply update for %s: %w", out.id, err)
			}

			applied++
			stats.Processed++

			if applied%r.saveBatch == 0 {
				saveErr := r.store.Save()
				if saveErr != nil {
					return applied, fmt.Errorf("save store: %w", saveErr)
				}
			}
		}
	}

	return applied, nil
}
