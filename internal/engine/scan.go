package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"coalesce/internal/candidates"
	"coalesce/internal/logging"
	"coalesce/internal/scoring"
	"coalesce/internal/services"
	"coalesce/internal/signals"
	"coalesce/internal/store"
)

// scan builds the blocking index over live contacts and scores every
// candidate pair, appending one routed decision row per new pair. Blocks
// run in parallel; pairs already carrying a decision are skipped, which is
// what makes a repeated run with no new data produce zero new merges.
func (e *Engine) scan(ctx context.Context, batch *store.Batch, report *Report) error {
	ctx = services.WithStage(ctx, "scan")
	logger := logging.WithContext(ctx, e.logger)

	contacts, err := e.store.LiveContacts(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "scan", "load contacts", "", err)
	}
	blocks := candidates.BuildIndex(contacts)

	done, err := e.store.CompletedBlocks(ctx, batch.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "scan", "load checkpoints", "", err)
	}

	facts, err := e.loadFacts(ctx, contacts)
	if err != nil {
		return err
	}

	tally := &scanTally{seen: make(map[string]struct{})}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Matching.ScanWorkers)

	for _, block := range blocks {
		if _, ok := done[block.Key]; ok {
			tally.skipBlock()
			continue
		}
		block := block
		group.Go(func() error {
			return e.scanBlock(groupCtx, batch, block, facts, tally)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	tally.fill(report)
	logger.Info("scan finished",
		logging.String(logging.FieldEventType, "scan_finished"),
		logging.Int("blocks_scanned", report.BlocksScanned),
		logging.Int("pairs_scored", report.PairsScored),
		logging.Int("pairs_skipped", report.PairsSkipped),
	)
	return nil
}

func (e *Engine) scanBlock(ctx context.Context, batch *store.Batch, block candidates.Block, facts map[int64]signals.Facts, tally *scanTally) error {
	ctx = services.WithBlock(ctx, block.Key)
	logger := logging.WithContext(ctx, e.logger)

	scored := 0
	for _, pair := range block.Pairs() {
		key := pair.Key()
		if !tally.claim(key) {
			continue
		}

		current, err := e.store.CurrentDecision(ctx, key)
		if err != nil {
			return services.Wrap(services.ErrTransient, "scan", "load decision", key, err)
		}
		if current != nil {
			tally.skipPair()
			continue
		}

		set := signals.Extract(pair.A, pair.B, facts[pair.A.ID], facts[pair.B.ID], int64(e.cfg.Matching.TxnCountDelta))
		score := scoring.Score(set, e.cfg.Matching.Weights)
		status := scoring.Route(score, batch.Threshold, e.cfg.Matching.RejectFloor)
		tier := scoring.TierFor(score)

		if _, err := e.store.AppendDecision(ctx, &store.Decision{
			BatchID:     batch.ID,
			PairKey:     key,
			ContactAID:  pair.A.ID,
			ContactBID:  pair.B.ID,
			BlockKeys:   candidates.SharedBlockKeys(pair.A, pair.B),
			SignalsJSON: set.JSON(),
			Score:       score,
			Tier:        string(tier),
			Status:      status,
			Reason:      scoring.Reason(score, batch.Threshold, e.cfg.Matching.RejectFloor, status),
			DecidedBy:   store.DecidedByScorer,
		}); err != nil {
			return services.Wrap(services.ErrTransient, "scan", "append decision", key, err)
		}
		tally.scored(status)
		scored++

		logger.Debug("pair scored",
			logging.String(logging.FieldPairKey, key),
			logging.Int(logging.FieldScore, score),
			logging.String(logging.FieldTier, string(tier)),
			logging.String(logging.FieldDecisionStatus, string(status)),
		)
	}

	if err := e.store.MarkBlockDone(ctx, batch.ID, block.Key, scored); err != nil {
		return services.Wrap(services.ErrTransient, "scan", "checkpoint block", block.Key, err)
	}
	tally.doneBlock()
	return nil
}

// loadFacts gathers per-contact counts, tags, and validation results once
// up front, so block workers share a read-only map.
func (e *Engine) loadFacts(ctx context.Context, contacts []*store.Contact) (map[int64]signals.Facts, error) {
	facts := make(map[int64]signals.Facts, len(contacts))
	for _, c := range contacts {
		txns, err := e.store.CountTransactions(ctx, c.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "scan", "count transactions", "", err)
		}
		subs, err := e.store.CountSubscriptions(ctx, c.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "scan", "count subscriptions", "", err)
		}
		tags, err := e.store.TagIDs(ctx, c.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "scan", "load tags", "", err)
		}
		validations, err := e.store.AddressValidations(ctx, c.ID)
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "scan", "load validations", "", err)
		}
		facts[c.ID] = signals.Facts{
			TxnCount:    txns,
			SubCount:    subs,
			TagIDs:      tags,
			Validations: validations,
		}
	}
	return facts, nil
}

// scanTally accumulates scan counters across block workers.
type scanTally struct {
	mu            sync.Mutex
	seen          map[string]struct{}
	blocksScanned int
	blocksSkipped int
	pairsScored   int
	pairsSkipped  int
	approved      int
	pending       int
	rejected      int
}

// claim reserves a pair key for this batch; the same two contacts can share
// several blocks but must be scored once.
func (t *scanTally) claim(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen[key]; ok {
		return false
	}
	t.seen[key] = struct{}{}
	return true
}

func (t *scanTally) scored(status store.DecisionStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pairsScored++
	switch status {
	case store.StatusApproved:
		t.approved++
	case store.StatusPendingReview:
		t.pending++
	case store.StatusRejected:
		t.rejected++
	}
}

func (t *scanTally) skipPair() {
	t.mu.Lock()
	t.pairsSkipped++
	t.mu.Unlock()
}

func (t *scanTally) skipBlock() {
	t.mu.Lock()
	t.blocksSkipped++
	t.mu.Unlock()
}

func (t *scanTally) doneBlock() {
	t.mu.Lock()
	t.blocksScanned++
	t.mu.Unlock()
}

func (t *scanTally) fill(report *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	report.BlocksScanned = t.blocksScanned
	report.BlocksSkipped = t.blocksSkipped
	report.PairsScored = t.pairsScored
	report.PairsSkipped = t.pairsSkipped
	report.Approved = t.approved
	report.PendingReview = t.pending
	report.Rejected = t.rejected
}
