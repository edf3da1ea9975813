package engine

import (
	"context"
	"errors"
	"testing"

	"coalesce/internal/config"
	"coalesce/internal/logging"
	"coalesce/internal/services"
	"coalesce/internal/store"
	"coalesce/internal/testsupport"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	s := testsupport.MustOpenStore(t, cfg)
	return New(cfg, s, logging.NewNop()), s, cfg
}

var mainStreet = store.Address{Line1: "123 Main St", City: "Springfield", Postal: "01101"}

// seedStrongPair inserts two contacts that corroborate on every signal
// except transaction pattern, landing exactly on the default unattended
// threshold of 90. Contact a owns three financial records; b owns none but
// carries consent.
func seedStrongPair(t *testing.T, s *store.Store) (a, b *store.Contact) {
	t.Helper()
	ctx := context.Background()

	first := &store.Contact{
		Email:     "pat.a@example.com",
		FirstName: "Pat",
		LastName:  "Doyle",
		NameKind:  store.NamePerson,
		Phone:     "555-010-2000",
	}
	first.Addresses[0] = mainStreet
	second := &store.Contact{
		Email:     "pat.b@example.com",
		FirstName: "Pat",
		LastName:  "Doyle",
		NameKind:  store.NamePerson,
		Phone:     "+1 (555) 010-2000",
		Consent:   true,
	}
	second.Addresses[0] = mainStreet

	a = testsupport.MustInsertContact(t, s, first)
	b = testsupport.MustInsertContact(t, s, second)

	for _, c := range []*store.Contact{a, b} {
		if err := s.UpsertAddressValidation(ctx, &store.AddressValidation{
			ContactID: c.ID,
			Slot:      0,
			MatchCode: store.MatchCodeConfirmed,
		}); err != nil {
			t.Fatalf("upsert validation: %v", err)
		}
		testsupport.MustAssignTag(t, s, c.ID, "member")
	}

	for i := 0; i < 3; i++ {
		testsupport.MustInsertTransaction(t, s, a.ID, 1000)
	}
	return a, b
}

func TestRunMergesStrongPairAndPreservesInvariants(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()
	a, b := seedStrongPair(t, s)

	report, err := eng.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.MergesExecuted != 1 {
		t.Fatalf("expected 1 merge, got %d (approved=%d pending=%d)", report.MergesExecuted, report.Approved, report.PendingReview)
	}
	if report.Verification == nil || !report.Verification.OK() {
		t.Fatalf("expected clean verification, got %+v", report.Verification)
	}

	// A owns 3 financial records against B's zero, so A is canonical.
	canonical, err := s.GetContact(ctx, a.ID)
	if err != nil {
		t.Fatalf("get canonical: %v", err)
	}
	if canonical.IsRemoved() {
		t.Fatal("canonical must survive")
	}
	if !canonical.Consent {
		t.Fatal("consent must not regress: duplicate consented")
	}
	found := false
	for _, email := range canonical.AltEmails {
		if email == "pat.b@example.com" {
			found = true
		}
	}
	if !found {
		t.Fatalf("duplicate's email must join alternates, got %v", canonical.AltEmails)
	}
	if count, _ := s.CountTransactions(ctx, a.ID); count != 3 {
		t.Fatalf("expected financial count to stay 3, got %d", count)
	}

	removed, err := s.GetContact(ctx, b.ID)
	if err != nil {
		t.Fatalf("get duplicate: %v", err)
	}
	if !removed.IsRemoved() || removed.MergedIntoID == nil || *removed.MergedIntoID != a.ID {
		t.Fatalf("duplicate not tombstoned into canonical: %+v", removed)
	}
	backups, err := s.BackupsForBatch(ctx, report.BatchID)
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 1 || backups[0].DuplicateID != b.ID {
		t.Fatalf("expected exactly one backup snapshotting the duplicate, got %+v", backups)
	}
}

func TestSecondRunProducesNoAdditionalMerges(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()
	seedStrongPair(t, s)

	first, err := eng.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.MergesExecuted != 1 {
		t.Fatalf("expected 1 merge on first run, got %d", first.MergesExecuted)
	}

	second, err := eng.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.MergesExecuted != 0 {
		t.Fatalf("expected 0 merges on re-run, got %d", second.MergesExecuted)
	}
	if second.PairsScored != 0 {
		t.Fatalf("re-run must not re-propose the merged pair, scored %d", second.PairsScored)
	}
}

func TestWeakPairRoutedToReviewNotMerged(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()

	// Same name and phone, addresses in different states, nothing else.
	x := testsupport.MustInsertContact(t, s, &store.Contact{
		FirstName: "Sam", LastName: "Reed", Phone: "555-222-3000",
	})
	y := testsupport.MustInsertContact(t, s, &store.Contact{
		FirstName: "Sam", LastName: "Reed", Phone: "555-222-3000",
	})

	report, err := eng.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.MergesExecuted != 0 {
		t.Fatalf("weak pair must never auto-merge, executed %d", report.MergesExecuted)
	}
	if report.PendingReview != 1 {
		t.Fatalf("expected 1 pair pending review, got %d", report.PendingReview)
	}

	current, err := s.CurrentDecision(ctx, store.PairKey(x.ID, y.ID))
	if err != nil {
		t.Fatalf("current decision: %v", err)
	}
	if current.Status != store.StatusPendingReview {
		t.Fatalf("expected pending_review, got %s", current.Status)
	}
	if current.Score >= 50 {
		t.Fatalf("name+phone alone scored %d, expected below medium", current.Score)
	}
}

func TestThreeMemberClusterMergesFlatIntoRichest(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()

	var ids []int64
	for _, txns := range []int{3, 1, 1} {
		c := &store.Contact{
			Email:    "org@example.com",
			OrgName:  "Acme Fund",
			NameKind: store.NameOrganization,
			Phone:    "555-444-5000",
		}
		c.Addresses[0] = mainStreet
		inserted := testsupport.MustInsertContact(t, s, c)
		testsupport.MustAssignTag(t, s, inserted.ID, "donor")
		for j := 0; j < txns; j++ {
			testsupport.MustInsertTransaction(t, s, inserted.ID, 500)
		}
		ids = append(ids, inserted.ID)
	}
	p := ids[0]

	report, err := eng.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.MergesExecuted != 2 {
		t.Fatalf("three-member cluster needs exactly 2 merges, got %d", report.MergesExecuted)
	}

	for _, id := range ids[1:] {
		c, err := s.GetContact(ctx, id)
		if err != nil {
			t.Fatalf("get contact: %v", err)
		}
		if !c.IsRemoved() || c.MergedIntoID == nil || *c.MergedIntoID != p {
			t.Fatalf("contact %d must merge directly into %d, got %+v", id, p, c)
		}
	}
	if count, _ := s.CountTransactions(ctx, p); count != 5 {
		t.Fatalf("canonical should own all 5 transactions, got %d", count)
	}
}

func TestDryRunPlansWithoutDestruction(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()
	_, b := seedStrongPair(t, s)

	report, err := eng.Run(ctx, Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if report.MergesPlanned != 1 {
		t.Fatalf("expected 1 planned merge, got %d", report.MergesPlanned)
	}
	if report.MergesExecuted != 0 {
		t.Fatalf("dry run must not execute merges, executed %d", report.MergesExecuted)
	}

	stillLive, err := s.GetContact(ctx, b.ID)
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if stillLive.IsRemoved() {
		t.Fatal("dry run must not remove contacts")
	}
	backups, err := s.BackupsForBatch(ctx, report.BatchID)
	if err != nil {
		t.Fatalf("backups: %v", err)
	}
	if len(backups) != 0 {
		t.Fatalf("dry run must not write backups, wrote %d", len(backups))
	}
}

func TestHaltLatchBlocksDestructiveRuns(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()

	if err := s.CreateBatch(ctx, &store.Batch{ID: "bad-batch", Threshold: 90}); err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := s.HaltBatch(ctx, "bad-batch", "sum drift"); err != nil {
		t.Fatalf("halt batch: %v", err)
	}

	_, err := eng.Run(ctx, Options{})
	if !errors.Is(err, services.ErrDataIntegrity) {
		t.Fatalf("expected halt latch to refuse the run, got %v", err)
	}

	// Dry runs stay allowed for investigation.
	if _, err := eng.Run(ctx, Options{DryRun: true}); err != nil {
		t.Fatalf("dry run should bypass the latch: %v", err)
	}

	// A clean verify clears the latch.
	if _, err := eng.ClearHaltAfterVerify(ctx); err != nil {
		t.Fatalf("clear halt: %v", err)
	}
	if _, err := eng.Run(ctx, Options{}); err != nil {
		t.Fatalf("run after clearing latch: %v", err)
	}
}

func TestFullTieClusterRoutedToReview(t *testing.T) {
	eng, s, _ := newTestEngine(t)
	ctx := context.Background()

	// Two contacts indistinguishable by every election rule.
	first := &store.Contact{
		Email:    "tie@example.com",
		OrgName:  "Tied Trust",
		NameKind: store.NameOrganization,
		Phone:    "555-777-8000",
	}
	first.Addresses[0] = mainStreet
	a := testsupport.MustInsertContact(t, s, first)

	second := &store.Contact{
		Email:     "tie@example.com",
		OrgName:   "Tied Trust",
		NameKind:  store.NameOrganization,
		Phone:     "555-777-8000",
		CreatedAt: a.CreatedAt,
	}
	second.Addresses[0] = mainStreet
	b := testsupport.MustInsertContact(t, s, second)

	testsupport.MustAssignTag(t, s, a.ID, "donor")
	testsupport.MustAssignTag(t, s, b.ID, "donor")

	report, err := eng.Run(ctx, Options{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.MergesExecuted != 0 {
		t.Fatalf("ambiguous cluster must not merge, executed %d", report.MergesExecuted)
	}
	if report.AmbiguousClusters != 1 {
		t.Fatalf("expected 1 ambiguous cluster, got %d", report.AmbiguousClusters)
	}

	current, err := s.CurrentDecision(ctx, store.PairKey(a.ID, b.ID))
	if err != nil {
		t.Fatalf("current decision: %v", err)
	}
	if current.Status != store.StatusPendingReview {
		t.Fatalf("ambiguous pair must land in review, got %s", current.Status)
	}
}
