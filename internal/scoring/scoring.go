// Package scoring aggregates a pair's signal vector into a 0 to 100
// confidence score, a tier, and a routing decision. The score is a pure
// function of the signal set and the configured weights, so equal inputs
// always produce equal output and score(A,B) == score(B,A) follows from the
// extractor's symmetry.
package scoring

import (
	"fmt"

	"coalesce/internal/config"
	"coalesce/internal/signals"
	"coalesce/internal/store"
)

// Tier buckets are a fixed contract; only the weights are tunable.
type Tier string

const (
	TierVeryHigh Tier = "very_high"
	TierHigh     Tier = "high"
	TierMedium   Tier = "medium"
	TierLow      Tier = "low"
)

// Score sums the weighted signal contributions. Bucketed signals award a
// fraction of their weight: a close transaction pattern earns the full
// weight, both-zero earns 40 percent; creation within 30 days earns the
// full weight, within 90 days earns half.
func Score(set signals.Set, weights config.Weights) int {
	total := 0
	if set.EmailDomainMatch {
		total += weights.EmailDomain
	}
	if set.PhoneMatch {
		total += weights.Phone
	}
	if set.AddressMatch {
		total += weights.Address
	}
	if set.AddressValidated {
		total += weights.AddressValidated
	}
	if set.TagOverlap {
		total += weights.TagOverlap
	}
	switch set.TxnBucket {
	case signals.TxnClose:
		total += weights.TxnPattern
	case signals.TxnBothZero:
		total += weights.TxnPattern * 2 / 5
	}
	switch set.CreatedBucket {
	case signals.CreatedWithin30d:
		total += weights.CreatedProximity
	case signals.CreatedWithin90d:
		total += weights.CreatedProximity / 2
	}
	if set.NameKindAgreement {
		total += weights.NameKind
	}
	return total
}

// TierFor maps a score to its tier.
func TierFor(score int) Tier {
	switch {
	case score >= 90:
		return TierVeryHigh
	case score >= 70:
		return TierHigh
	case score >= 50:
		return TierMedium
	default:
		return TierLow
	}
}

// Route decides the status the scan appends for a scored pair. Scores at or
// above the batch threshold auto-approve; scores below the reject floor are
// rejected outright, since a shared blocking key with no corroborating
// signal is not a duplicate claim; everything between goes to review.
func Route(score, threshold, rejectFloor int) store.DecisionStatus {
	switch {
	case score >= threshold:
		return store.StatusApproved
	case score < rejectFloor:
		return store.StatusRejected
	default:
		return store.StatusPendingReview
	}
}

// Reason renders the routing explanation recorded on the decision row.
func Reason(score, threshold, rejectFloor int, status store.DecisionStatus) string {
	switch status {
	case store.StatusApproved:
		return fmt.Sprintf("score %d at or above threshold %d", score, threshold)
	case store.StatusRejected:
		return fmt.Sprintf("score %d below reject floor %d", score, rejectFloor)
	default:
		return fmt.Sprintf("score %d in review band [%d, %d)", score, rejectFloor, threshold)
	}
}
