// Package signals computes the pairwise corroborating signals the scorer
// aggregates. Every signal is symmetric and missing data is neutral: an
// absent field produces a false or zero-weight value, never a penalty.
package signals

import (
	"encoding/json"
	"time"

	"coalesce/internal/normalize"
	"coalesce/internal/store"
)

// TxnBucket classifies how similar two contacts' transaction counts are.
type TxnBucket string

const (
	TxnBothZero TxnBucket = "both_zero"
	TxnOneZero  TxnBucket = "one_zero"
	TxnClose    TxnBucket = "close"
	TxnFar      TxnBucket = "far"
)

// CreatedBucket classifies how close two contacts' creation dates are.
type CreatedBucket string

const (
	CreatedWithin30d CreatedBucket = "within_30d"
	CreatedWithin90d CreatedBucket = "within_90d"
	CreatedBeyond    CreatedBucket = "beyond"
)

// Facts carries the per-contact inputs that live outside the contact row
// itself: owned-record counts, tag sets, and address-validation results.
type Facts struct {
	TxnCount    int64
	SubCount    int64
	TagIDs      []int64
	Validations map[int]store.AddressValidation
}

// Set is the full signal vector for one candidate pair. Serialized onto the
// decision row so reviewers see exactly what the score was built from.
type Set struct {
	EmailDomainMatch  bool          `json:"email_domain_match"`
	PhoneMatch        bool          `json:"phone_match"`
	AddressMatch      bool          `json:"address_match"`
	AddressValidated  bool          `json:"address_validated"`
	TagOverlap        bool          `json:"tag_overlap"`
	TxnBucket         TxnBucket     `json:"txn_bucket"`
	CreatedBucket     CreatedBucket `json:"created_bucket"`
	NameKindAgreement bool          `json:"name_kind_agreement"`
}

// JSON renders the signal set for the decision log.
func (s Set) JSON() string {
	data, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ParseJSON decodes a signal set stored on a decision row.
func ParseJSON(value string) (Set, error) {
	var s Set
	if value == "" {
		return s, nil
	}
	err := json.Unmarshal([]byte(value), &s)
	return s, err
}

// Extract computes the signal vector for a pair. Symmetric by construction:
// every comparison treats the two sides identically.
func Extract(a, b *store.Contact, factsA, factsB Facts, txnCloseDelta int64) Set {
	matchSlot, addressMatch := matchingAddressSlots(a, b)
	return Set{
		EmailDomainMatch:  emailDomainMatch(a, b),
		PhoneMatch:        phoneMatch(a, b),
		AddressMatch:      addressMatch,
		AddressValidated:  addressMatch && bothSidesValidated(factsA, factsB, matchSlot),
		TagOverlap:        tagOverlap(factsA.TagIDs, factsB.TagIDs),
		TxnBucket:         txnBucket(factsA.TxnCount, factsB.TxnCount, txnCloseDelta),
		CreatedBucket:     createdBucket(a.CreatedAt, b.CreatedAt),
		NameKindAgreement: nameKindAgreement(a, b),
	}
}

func emailDomainMatch(a, b *store.Contact) bool {
	da := normalize.EmailDomain(a.Email)
	db := normalize.EmailDomain(b.Email)
	return da != "" && da == db
}

func phoneMatch(a, b *store.Contact) bool {
	pa := normalize.PhoneKey(a.Phone)
	pb := normalize.PhoneKey(b.Phone)
	return pa != "" && pa == pb
}

// matchingAddressSlots compares every slot of a against every slot of b and
// returns the matching slot pair when one exists. The returned slots feed
// the validation cross-check.
func matchingAddressSlots(a, b *store.Contact) ([2]int, bool) {
	for i, addrA := range a.Addresses {
		if addrA.IsZero() {
			continue
		}
		keyA := normalize.AddressKey(addrA.Line1, addrA.City, addrA.Postal)
		if keyA == "" {
			continue
		}
		for j, addrB := range b.Addresses {
			if addrB.IsZero() {
				continue
			}
			if keyA == normalize.AddressKey(addrB.Line1, addrB.City, addrB.Postal) {
				return [2]int{i, j}, true
			}
		}
	}
	return [2]int{}, false
}

// bothSidesValidated reports whether the matched address slot carries a
// deliverable validation result on both sides. A missing result on either
// side is neutral, so the signal simply stays false.
func bothSidesValidated(factsA, factsB Facts, slots [2]int) bool {
	va, okA := factsA.Validations[slots[0]]
	vb, okB := factsB.Validations[slots[1]]
	return okA && okB && va.Deliverable() && vb.Deliverable()
}

func tagOverlap(a, b []int64) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[int64]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func txnBucket(countA, countB, closeDelta int64) TxnBucket {
	switch {
	case countA == 0 && countB == 0:
		return TxnBothZero
	case countA == 0 || countB == 0:
		return TxnOneZero
	}
	delta := countA - countB
	if delta < 0 {
		delta = -delta
	}
	if delta <= closeDelta {
		return TxnClose
	}
	return TxnFar
}

func createdBucket(a, b time.Time) CreatedBucket {
	if a.IsZero() || b.IsZero() {
		return CreatedBeyond
	}
	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}
	switch {
	case gap <= 30*24*time.Hour:
		return CreatedWithin30d
	case gap <= 90*24*time.Hour:
		return CreatedWithin90d
	default:
		return CreatedBeyond
	}
}

func nameKindAgreement(a, b *store.Contact) bool {
	// Contacts built outside the scan path may carry raw kind strings.
	kindA := store.ParseNameKind(string(a.NameKind))
	kindB := store.ParseNameKind(string(b.NameKind))
	return kindA != store.NameUnknown && kindA == kindB
}
