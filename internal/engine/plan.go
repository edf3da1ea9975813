package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"coalesce/internal/logging"
	"coalesce/internal/mergeexec"
	"coalesce/internal/planner"
	"coalesce/internal/services"
	"coalesce/internal/store"
)

// plan clusters the current approved pairs and elects canonicals. Ambiguous
// clusters are demoted back to review here, so the destructive phase only
// ever sees unambiguous plans.
func (e *Engine) plan(ctx context.Context, batch *store.Batch, report *Report) ([]planner.ClusterPlan, error) {
	ctx = services.WithStage(ctx, "plan")
	logger := logging.WithContext(ctx, e.logger)

	plans, err := e.buildPlans(ctx)
	if err != nil {
		return nil, err
	}

	var executable []planner.ClusterPlan
	for _, plan := range plans {
		if plan.Ambiguous {
			report.AmbiguousClusters++
			if err := e.demoteAmbiguous(ctx, batch, plan); err != nil {
				return nil, err
			}
			continue
		}
		report.MergesPlanned += len(plan.Merges)
		executable = append(executable, plan)
	}
	report.Clusters = len(plans)

	logger.Info("plan built",
		logging.String(logging.FieldEventType, "plan_built"),
		logging.Int("clusters", report.Clusters),
		logging.Int("ambiguous_clusters", report.AmbiguousClusters),
		logging.Int("merges_planned", report.MergesPlanned),
	)
	return executable, nil
}

// BuildPlans exposes planning for the standalone plan report.
func (e *Engine) BuildPlans(ctx context.Context) ([]planner.ClusterPlan, error) {
	return e.buildPlans(ctx)
}

func (e *Engine) buildPlans(ctx context.Context) ([]planner.ClusterPlan, error) {
	approved, err := e.store.CurrentDecisionsByStatus(ctx, store.StatusApproved)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "plan", "load approved pairs", "", err)
	}
	if len(approved) == 0 {
		return nil, nil
	}

	members := make(map[int64]planner.Member)
	for _, d := range approved {
		for _, id := range []int64{d.ContactAID, d.ContactBID} {
			if _, ok := members[id]; ok {
				continue
			}
			contact, err := e.store.GetContact(ctx, id)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "plan", "load contact", "", err)
			}
			if contact == nil || contact.IsRemoved() {
				continue
			}
			txns, err := e.store.CountTransactions(ctx, id)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "plan", "count transactions", "", err)
			}
			subs, err := e.store.CountSubscriptions(ctx, id)
			if err != nil {
				return nil, services.Wrap(services.ErrTransient, "plan", "count subscriptions", "", err)
			}
			members[id] = planner.Member{Contact: contact, TxnCount: txns, SubCount: subs}
		}
	}
	return planner.Plan(approved, members), nil
}

// demoteAmbiguous appends pending_review rows for every approved pair of an
// ambiguous cluster, recording why the election tied out.
func (e *Engine) demoteAmbiguous(ctx context.Context, batch *store.Batch, plan planner.ClusterPlan) error {
	err := services.Wrap(services.ErrAmbiguousCluster, "plan", "canonical election", plan.Reason, nil)
	logging.ErrorWithContext(logging.WithContext(ctx, e.logger), "cluster routed to review", "ambiguous_cluster",
		logging.Alert("ambiguous_cluster"),
		logging.String("reason", plan.Reason),
		logging.Error(err),
	)
	for _, d := range plan.Decisions {
		if d.Status != store.StatusApproved {
			continue
		}
		if _, appendErr := e.store.AppendDecision(ctx, &store.Decision{
			BatchID:     batch.ID,
			PairKey:     d.PairKey,
			ContactAID:  d.ContactAID,
			ContactBID:  d.ContactBID,
			BlockKeys:   d.BlockKeys,
			SignalsJSON: d.SignalsJSON,
			Score:       d.Score,
			Tier:        d.Tier,
			Status:      store.StatusPendingReview,
			Reason:      "ambiguous cluster: " + plan.Reason,
			DecidedBy:   store.DecidedByScorer,
		}); appendErr != nil {
			return services.Wrap(services.ErrTransient, "plan", "demote pair", d.PairKey, appendErr)
		}
	}
	return nil
}

// executeMerges runs cluster plans on a bounded worker pool. Clusters are
// independent; within a cluster the executor's keyed lock serializes merges
// into the shared canonical. Stale pairs are skipped; anything fatal aborts
// the batch.
func (e *Engine) executeMerges(ctx context.Context, batch *store.Batch, executor *mergeexec.Executor, plans []planner.ClusterPlan, report *Report) error {
	ctx = services.WithStage(ctx, "merge")
	logger := logging.WithContext(ctx, e.logger)

	tally := &mergeTally{}
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Matching.MergeWorkers)

	for _, plan := range plans {
		plan := plan
		group.Go(func() error {
			for _, m := range plan.Merges {
				outcome, err := executor.Execute(groupCtx, batch.ID, m)
				if err != nil {
					if services.IsRecoverable(err) {
						logger.Warn("skipping stale merge",
							logging.String(logging.FieldPairKey, store.PairKey(m.CanonicalID, m.DuplicateID)),
							logging.Error(err),
						)
						tally.skipped()
						continue
					}
					return err
				}
				if outcome.Merged {
					tally.merged()
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	report.MergesExecuted, report.MergesSkipped = tally.counts()
	report.ContactsRemoved = report.MergesExecuted
	logger.Info("merge phase finished",
		logging.String(logging.FieldEventType, "merge_phase_finished"),
		logging.Int64("merges_executed", report.MergesExecuted),
		logging.Int64("merges_skipped", report.MergesSkipped),
	)
	return nil
}

type mergeTally struct {
	mu           sync.Mutex
	mergedCount  int64
	skippedCount int64
}

func (t *mergeTally) merged() {
	t.mu.Lock()
	t.mergedCount++
	t.mu.Unlock()
}

func (t *mergeTally) skipped() {
	t.mu.Lock()
	t.skippedCount++
	t.mu.Unlock()
}

func (t *mergeTally) counts() (int64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mergedCount, t.skippedCount
}
