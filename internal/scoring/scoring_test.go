package scoring

import (
	"testing"

	"coalesce/internal/config"
	"coalesce/internal/signals"
	"coalesce/internal/store"
)

func TestScoreFullHouseSumsToHundred(t *testing.T) {
	set := signals.Set{
		EmailDomainMatch:  true,
		PhoneMatch:        true,
		AddressMatch:      true,
		AddressValidated:  true,
		TagOverlap:        true,
		TxnBucket:         signals.TxnClose,
		CreatedBucket:     signals.CreatedWithin30d,
		NameKindAgreement: true,
	}
	if got := Score(set, config.DefaultWeights()); got != 100 {
		t.Fatalf("full signal vector scored %d, want 100", got)
	}
}

func TestScoreIsMonotonicInSignals(t *testing.T) {
	weights := config.DefaultWeights()
	base := signals.Set{TxnBucket: signals.TxnFar, CreatedBucket: signals.CreatedBeyond}
	prev := Score(base, weights)

	steps := []func(*signals.Set){
		func(s *signals.Set) { s.EmailDomainMatch = true },
		func(s *signals.Set) { s.PhoneMatch = true },
		func(s *signals.Set) { s.AddressMatch = true },
		func(s *signals.Set) { s.AddressValidated = true },
		func(s *signals.Set) { s.TagOverlap = true },
		func(s *signals.Set) { s.TxnBucket = signals.TxnClose },
		func(s *signals.Set) { s.CreatedBucket = signals.CreatedWithin30d },
		func(s *signals.Set) { s.NameKindAgreement = true },
	}
	for i, step := range steps {
		step(&base)
		next := Score(base, weights)
		if next <= prev {
			t.Fatalf("adding signal %d did not raise score: %d -> %d", i, prev, next)
		}
		prev = next
	}
}

func TestBucketedPartialCredit(t *testing.T) {
	weights := config.DefaultWeights()

	bothZero := Score(signals.Set{TxnBucket: signals.TxnBothZero, CreatedBucket: signals.CreatedBeyond}, weights)
	if bothZero != 4 {
		t.Errorf("both_zero bucket scored %d, want 4", bothZero)
	}
	within90 := Score(signals.Set{TxnBucket: signals.TxnFar, CreatedBucket: signals.CreatedWithin90d}, weights)
	if within90 != 5 {
		t.Errorf("within_90d bucket scored %d, want 5", within90)
	}
	far := Score(signals.Set{TxnBucket: signals.TxnFar, CreatedBucket: signals.CreatedBeyond}, weights)
	if far != 0 {
		t.Errorf("no signals scored %d, want 0", far)
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Tier
	}{
		{100, TierVeryHigh},
		{90, TierVeryHigh},
		{89, TierHigh},
		{70, TierHigh},
		{69, TierMedium},
		{50, TierMedium},
		{49, TierLow},
		{0, TierLow},
	}
	for _, tc := range cases {
		if got := TierFor(tc.score); got != tc.want {
			t.Errorf("TierFor(%d) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestRouting(t *testing.T) {
	cases := []struct {
		score int
		want  store.DecisionStatus
	}{
		{95, store.StatusApproved},
		{90, store.StatusApproved},
		{89, store.StatusPendingReview},
		{10, store.StatusPendingReview},
		{9, store.StatusRejected},
		{0, store.StatusRejected},
	}
	for _, tc := range cases {
		if got := Route(tc.score, 90, 10); got != tc.want {
			t.Errorf("Route(%d, 90, 10) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestNameAndPhoneAloneStayBelowMedium(t *testing.T) {
	// Shared name and phone with addresses in different states and nothing
	// else corroborating must not reach the medium tier.
	set := signals.Set{
		PhoneMatch:        true,
		TxnBucket:         signals.TxnFar,
		CreatedBucket:     signals.CreatedBeyond,
		NameKindAgreement: true,
	}
	score := Score(set, config.DefaultWeights())
	if score >= 50 {
		t.Fatalf("name+phone alone scored %d, expected below medium (50)", score)
	}
	if got := Route(score, 90, 10); got != store.StatusPendingReview {
		t.Fatalf("expected pending_review, got %s", got)
	}
}
