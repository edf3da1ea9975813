// Package verify runs the post-batch invariant checks. A violation is a
// DataIntegrityError: the batch is marked halted and all further automated
// merging refuses to run until a clean check clears the latch.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"coalesce/internal/logging"
	"coalesce/internal/services"
	"coalesce/internal/store"
)

// Report is the outcome of one verification pass.
type Report struct {
	BatchID         string   `json:"batch_id,omitempty"`
	OrphanedRecords int64    `json:"orphaned_records"`
	RemovedContacts int      `json:"removed_contacts"`
	BackedUp        int      `json:"backed_up"`
	PreSumCents     int64    `json:"pre_sum_cents"`
	PostSumCents    int64    `json:"post_sum_cents"`
	Verified        int      `json:"verified_decisions"`
	Violations      []string `json:"violations,omitempty"`
}

// OK reports whether every invariant held.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

// Checker runs invariant checks against a store.
type Checker struct {
	store  *store.Store
	logger *slog.Logger
}

// New builds a checker. A nil logger logs nowhere.
func New(st *store.Store, logger *slog.Logger) *Checker {
	return &Checker{store: st, logger: logging.NewComponentLogger(logger, "verify")}
}

// CheckBatch verifies one finished batch: no orphaned owned records, every
// removed contact covered by a snapshot from the same batch, and the live
// transaction sum unchanged. On success the batch's merged decisions get
// verified rows appended; on violation the returned error carries the
// DataIntegrityError marker and the caller must halt.
func (c *Checker) CheckBatch(ctx context.Context, batch *store.Batch) (*Report, error) {
	report := &Report{BatchID: batch.ID, PreSumCents: batch.PreSumCents}
	logger := logging.WithContext(services.WithBatchID(ctx, batch.ID), c.logger)

	orphans, err := c.store.CountOrphanedOwnedRecords(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "verify", "count orphans", "", err)
	}
	report.OrphanedRecords = orphans
	if orphans > 0 {
		report.Violations = append(report.Violations,
			fmt.Sprintf("%d owned records belong to a removed or missing contact", orphans))
	}

	removed, err := c.store.RemovedContactIDs(ctx, batch.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "verify", "list removed contacts", "", err)
	}
	covered, err := c.store.BackedUpDuplicates(ctx, batch.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "verify", "list backups", "", err)
	}
	report.RemovedContacts = len(removed)
	report.BackedUp = coveredRemoved(removed, covered)
	for _, id := range removed {
		if _, ok := covered[id]; !ok {
			report.Violations = append(report.Violations,
				fmt.Sprintf("contact %d was removed without a snapshot in this batch", id))
		}
	}

	postSum, err := c.store.LiveTransactionSum(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "verify", "sum transactions", "", err)
	}
	report.PostSumCents = postSum
	if postSum != batch.PreSumCents {
		report.Violations = append(report.Violations,
			fmt.Sprintf("live transaction sum changed from %d to %d cents", batch.PreSumCents, postSum))
	}

	if !report.OK() {
		logging.ErrorWithContext(logger, "verification failed", "verification_failed",
			logging.Alert("data_integrity"),
			logging.String("violations", strings.Join(report.Violations, "; ")),
		)
		return report, services.Wrap(services.ErrDataIntegrity, "verify", "batch "+batch.ID,
			strings.Join(report.Violations, "; "), nil)
	}

	verified, err := c.markVerified(ctx, batch.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "verify", "append verified rows", "", err)
	}
	report.Verified = verified

	logger.Info("verification passed",
		logging.String(logging.FieldEventType, "verification_passed"),
		logging.Int("removed_contacts", report.RemovedContacts),
		logging.Int64("post_sum_cents", report.PostSumCents),
	)
	return report, nil
}

// CheckStore verifies the global invariants outside any batch: database
// integrity and zero orphaned owned records. A clean pass is what clears
// the halt latch.
func (c *Checker) CheckStore(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := c.store.IntegrityCheck(ctx); err != nil {
		report.Violations = append(report.Violations, err.Error())
	}
	orphans, err := c.store.CountOrphanedOwnedRecords(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "verify", "count orphans", "", err)
	}
	report.OrphanedRecords = orphans
	if orphans > 0 {
		report.Violations = append(report.Violations,
			fmt.Sprintf("%d owned records belong to a removed or missing contact", orphans))
	}

	sum, err := c.store.LiveTransactionSum(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "verify", "sum transactions", "", err)
	}
	report.PostSumCents = sum

	if !report.OK() {
		return report, services.Wrap(services.ErrDataIntegrity, "verify", "store",
			strings.Join(report.Violations, "; "), nil)
	}
	return report, nil
}

// markVerified appends a verified row for every merged decision of the batch.
func (c *Checker) markVerified(ctx context.Context, batchID string) (int, error) {
	decisions, err := c.store.DecisionsForBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, d := range decisions {
		if d.Status != store.StatusMerged {
			continue
		}
		current, err := c.store.CurrentDecision(ctx, d.PairKey)
		if err != nil {
			return count, err
		}
		if current == nil || current.Status != store.StatusMerged {
			continue
		}
		if _, err := c.store.AppendDecision(ctx, &store.Decision{
			BatchID:     batchID,
			PairKey:     d.PairKey,
			ContactAID:  d.ContactAID,
			ContactBID:  d.ContactBID,
			BlockKeys:   d.BlockKeys,
			SignalsJSON: d.SignalsJSON,
			Score:       d.Score,
			Tier:        d.Tier,
			Status:      store.StatusVerified,
			Reason:      "batch verification passed",
			DecidedBy:   store.DecidedByScorer,
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func coveredRemoved(removed []int64, covered map[int64]struct{}) int {
	count := 0
	for _, id := range removed {
		if _, ok := covered[id]; ok {
			count++
		}
	}
	return count
}
