package testsupport

import (
	"context"
	"testing"
	"time"

	"coalesce/internal/config"
	"coalesce/internal/store"
)

// MustOpenStore opens the store for a test config and closes it on cleanup.
func MustOpenStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// MustInsertContact seeds one contact and fails the test on error.
func MustInsertContact(t *testing.T, s *store.Store, contact *store.Contact) *store.Contact {
	t.Helper()
	inserted, err := s.InsertContact(context.Background(), contact)
	if err != nil {
		t.Fatalf("insert contact: %v", err)
	}
	return inserted
}

// MustInsertTransaction seeds one transaction owned by a contact.
func MustInsertTransaction(t *testing.T, s *store.Store, contactID, amountCents int64) {
	t.Helper()
	_, err := s.InsertTransaction(context.Background(), &store.Transaction{
		ContactID:   contactID,
		AmountCents: amountCents,
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert transaction: %v", err)
	}
}

// MustInsertSubscription seeds one subscription owned by a contact.
func MustInsertSubscription(t *testing.T, s *store.Store, contactID int64, plan string) {
	t.Helper()
	_, err := s.InsertSubscription(context.Background(), &store.Subscription{
		ContactID: contactID,
		PlanName:  plan,
	})
	if err != nil {
		t.Fatalf("insert subscription: %v", err)
	}
}

// MustAssignTag creates the tag when needed and links it to a contact.
func MustAssignTag(t *testing.T, s *store.Store, contactID int64, name string) {
	t.Helper()
	ctx := context.Background()
	tagID, err := s.EnsureTag(ctx, name)
	if err != nil {
		t.Fatalf("ensure tag: %v", err)
	}
	if err := s.AssignTag(ctx, contactID, tagID); err != nil {
		t.Fatalf("assign tag: %v", err)
	}
}
