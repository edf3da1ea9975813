// Package engine orchestrates a batch run: candidate generation, signal
// extraction and scoring, merge planning, merge execution, and the
// post-batch verification pass. One engine process runs at a time,
// guaranteed by a file lock; a halted prior batch blocks destructive runs
// until verification clears it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"coalesce/internal/config"
	"coalesce/internal/logging"
	"coalesce/internal/mergeexec"
	"coalesce/internal/services"
	"coalesce/internal/store"
	"coalesce/internal/verify"
)

// Options controls one batch run.
type Options struct {
	// Threshold overrides the configured auto-approve threshold when > 0.
	Threshold int
	// DryRun stops after planning; no destructive step runs. Scan decisions
	// are still persisted so a later real run can pick them up.
	DryRun bool
	// Resume names a prior batch whose scan checkpoints should be honored.
	Resume string
	// ScanOnly stops after the scan phase.
	ScanOnly bool
}

// Report summarizes a batch run for the CLI.
type Report struct {
	BatchID           string         `json:"batch_id"`
	DryRun            bool           `json:"dry_run"`
	Threshold         int            `json:"threshold"`
	BlocksScanned     int            `json:"blocks_scanned"`
	BlocksSkipped     int            `json:"blocks_skipped"`
	PairsScored       int            `json:"pairs_scored"`
	PairsSkipped      int            `json:"pairs_skipped"`
	Approved          int            `json:"approved"`
	PendingReview     int            `json:"pending_review"`
	Rejected          int            `json:"rejected"`
	Clusters          int            `json:"clusters"`
	AmbiguousClusters int            `json:"ambiguous_clusters"`
	MergesPlanned     int            `json:"merges_planned"`
	MergesExecuted    int64          `json:"merges_executed"`
	MergesSkipped     int64          `json:"merges_skipped"`
	ContactsRemoved   int64          `json:"contacts_removed"`
	Verification      *verify.Report `json:"verification,omitempty"`
	Duration          time.Duration  `json:"duration"`
}

// Engine wires the pipeline stages against one store.
type Engine struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

// New builds an engine. A nil logger logs nowhere.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  st,
		logger: logging.NewComponentLogger(logger, "engine"),
	}
}

// Run executes a full batch. Destructive phases refuse to start while the
// halt latch from a previously failed verification is set.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	release, err := e.acquireProcessLock()
	if err != nil {
		return nil, err
	}
	defer release()

	if !opts.DryRun && !opts.ScanOnly {
		if err := e.refuseWhenHalted(ctx); err != nil {
			return nil, err
		}
	}

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = e.cfg.Matching.Threshold
	}

	batchID := opts.Resume
	if batchID == "" {
		batchID = uuid.NewString()
	}
	ctx = services.WithBatchID(ctx, batchID)
	logger := logging.WithContext(ctx, e.logger)
	started := time.Now()

	preSum, err := e.store.LiveTransactionSum(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "batch", "pre-batch sum", "", err)
	}

	batch, err := e.ensureBatch(ctx, batchID, threshold, opts, preSum)
	if err != nil {
		return nil, err
	}

	report := &Report{BatchID: batchID, DryRun: opts.DryRun, Threshold: threshold}
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_started"),
		logging.Int("threshold", threshold),
		logging.Bool("dry_run", opts.DryRun),
	)

	if err := e.scan(ctx, batch, report); err != nil {
		_ = e.store.HaltBatch(ctx, batchID, err.Error())
		return report, err
	}
	if opts.ScanOnly {
		report.Duration = time.Since(started)
		return report, e.store.FinishBatch(ctx, e.tallied(batch, report))
	}

	plans, err := e.plan(ctx, batch, report)
	if err != nil {
		_ = e.store.HaltBatch(ctx, batchID, err.Error())
		return report, err
	}
	if opts.DryRun {
		report.Duration = time.Since(started)
		logger.Info("dry run finished before destructive phase",
			logging.String(logging.FieldEventType, "dry_run_finished"),
			logging.Int("merges_planned", report.MergesPlanned),
		)
		return report, e.store.FinishBatch(ctx, e.tallied(batch, report))
	}

	executor := mergeexec.New(e.store, e.logger)
	if err := e.executeMerges(ctx, batch, executor, plans, report); err != nil {
		_ = e.store.HaltBatch(ctx, batchID, err.Error())
		return report, err
	}

	checker := verify.New(e.store, e.logger)
	verification, verifyErr := checker.CheckBatch(ctx, e.tallied(batch, report))
	report.Verification = verification
	if verifyErr != nil {
		_ = e.store.HaltBatch(ctx, batchID, verifyErr.Error())
		return report, verifyErr
	}

	report.Duration = time.Since(started)
	if err := e.store.FinishBatch(ctx, e.tallied(batch, report)); err != nil {
		return report, err
	}
	logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_completed"),
		logging.Int("pairs_scored", report.PairsScored),
		logging.Int64("merges_executed", report.MergesExecuted),
		logging.Int64("contacts_removed", report.ContactsRemoved),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

// ClearHaltAfterVerify re-runs the store-wide checks and clears the halt
// latch when they pass.
func (e *Engine) ClearHaltAfterVerify(ctx context.Context) (*verify.Report, error) {
	checker := verify.New(e.store, e.logger)
	report, err := checker.CheckStore(ctx)
	if err != nil {
		return report, err
	}
	halted, err := e.store.LatestHaltedBatch(ctx)
	if err != nil {
		return report, err
	}
	if halted != nil {
		if err := e.store.ClearHalt(ctx, halted.ID); err != nil {
			return report, err
		}
		e.logger.Info("halt latch cleared",
			logging.String(logging.FieldEventType, "halt_cleared"),
			logging.String(logging.FieldBatchID, halted.ID),
		)
	}
	return report, nil
}

func (e *Engine) acquireProcessLock() (func(), error) {
	lock := flock.New(e.cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire process lock: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "batch", "lock",
			"another coalesce process is already running a batch", nil)
	}
	return func() { _ = lock.Unlock() }, nil
}

func (e *Engine) refuseWhenHalted(ctx context.Context) error {
	halted, err := e.store.LatestHaltedBatch(ctx)
	if err != nil {
		return err
	}
	if halted == nil {
		return nil
	}
	return services.Wrap(services.ErrDataIntegrity, "batch", "halt latch",
		fmt.Sprintf("batch %s halted (%s); run verify to clear", halted.ID, halted.HaltReason), nil)
}

func (e *Engine) ensureBatch(ctx context.Context, batchID string, threshold int, opts Options, preSum int64) (*store.Batch, error) {
	if opts.Resume != "" {
		existing, err := e.store.GetBatch(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return nil, services.Wrap(services.ErrNotFound, "batch", "resume",
			fmt.Sprintf("batch %s does not exist", batchID), nil)
	}
	batch := &store.Batch{ID: batchID, Threshold: threshold, DryRun: opts.DryRun, PreSumCents: preSum}
	if err := e.store.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (e *Engine) tallied(batch *store.Batch, report *Report) *store.Batch {
	batch.PairsScored = int64(report.PairsScored)
	batch.MergesExecuted = report.MergesExecuted
	batch.ContactsRemoved = report.ContactsRemoved
	batch.PostSumCents = batch.PreSumCents
	if report.Verification != nil {
		batch.PostSumCents = report.Verification.PostSumCents
	}
	return batch
}
