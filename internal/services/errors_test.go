package services_test

import (
	"errors"
	"strings"
	"testing"

	"coalesce/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrStaleCandidate, "execute", "merge", "duplicate vanished", base)
	if !errors.Is(err, services.ErrStaleCandidate) {
		t.Fatalf("expected stale candidate marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "execute: merge: duplicate vanished") {
		t.Fatalf("unexpected detail: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestFatalAndRecoverableClassification(t *testing.T) {
	fatal := services.Wrap(services.ErrDataIntegrity, "verify", "ownership", "orphaned record", nil)
	if !services.IsFatal(fatal) {
		t.Fatal("data integrity errors must be fatal")
	}
	if services.IsRecoverable(fatal) {
		t.Fatal("data integrity errors are not recoverable")
	}

	stale := services.Wrap(services.ErrStaleCandidate, "execute", "merge", "", nil)
	if services.IsFatal(stale) {
		t.Fatal("stale candidates must not be fatal")
	}
	if !services.IsRecoverable(stale) {
		t.Fatal("stale candidates are recoverable")
	}
}
