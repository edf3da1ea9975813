package signals

import (
	"testing"
	"time"

	"coalesce/internal/store"
)

func baseTime() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func TestExtractIsSymmetric(t *testing.T) {
	a := &store.Contact{
		ID:        1,
		Email:     "pat@example.com",
		Phone:     "555-010-2000",
		NameKind:  store.NamePerson,
		CreatedAt: baseTime(),
	}
	a.Addresses[0] = store.Address{Line1: "123 Main St", City: "Springfield", Postal: "01101"}
	b := &store.Contact{
		ID:        2,
		Email:     "patricia@example.com",
		Phone:     "+1 555 010 2000",
		NameKind:  store.NamePerson,
		CreatedAt: baseTime().Add(20 * 24 * time.Hour),
	}
	b.Addresses[1] = store.Address{Line1: "123 MAIN ST.", City: "springfield", Postal: "01101"}

	factsA := Facts{TxnCount: 3, TagIDs: []int64{1, 2}}
	factsB := Facts{TxnCount: 4, TagIDs: []int64{2, 9}}

	ab := Extract(a, b, factsA, factsB, 3)
	ba := Extract(b, a, factsB, factsA, 3)
	if ab != ba {
		t.Fatalf("signal extraction not symmetric: %+v vs %+v", ab, ba)
	}

	if !ab.EmailDomainMatch {
		t.Error("expected email domain match")
	}
	if !ab.PhoneMatch {
		t.Error("expected phone match across formatting")
	}
	if !ab.AddressMatch {
		t.Error("expected cross-slot address match")
	}
	if !ab.TagOverlap {
		t.Error("expected tag overlap")
	}
	if ab.TxnBucket != TxnClose {
		t.Errorf("expected close txn bucket, got %s", ab.TxnBucket)
	}
	if ab.CreatedBucket != CreatedWithin30d {
		t.Errorf("expected within_30d, got %s", ab.CreatedBucket)
	}
	if !ab.NameKindAgreement {
		t.Error("expected name kind agreement")
	}
}

func TestMissingDataIsNeutral(t *testing.T) {
	a := &store.Contact{ID: 1, CreatedAt: baseTime()}
	b := &store.Contact{ID: 2, CreatedAt: baseTime()}

	set := Extract(a, b, Facts{}, Facts{}, 3)
	if set.EmailDomainMatch || set.PhoneMatch || set.AddressMatch || set.AddressValidated || set.TagOverlap {
		t.Fatalf("expected empty fields to yield no boolean signals: %+v", set)
	}
	if set.TxnBucket != TxnBothZero {
		t.Errorf("expected both_zero, got %s", set.TxnBucket)
	}
	if set.NameKindAgreement {
		t.Error("two unknown name kinds must not agree")
	}
}

func TestNameKindAgreementNormalizesRawKinds(t *testing.T) {
	cases := []struct {
		a, b store.NameKind
		want bool
	}{
		{"", "", false},
		{"", store.NamePerson, false},
		{store.NameUnknown, store.NameUnknown, false},
		{store.NamePerson, store.NamePerson, true},
		{"PERSON", store.NamePerson, true},
		{store.NamePerson, store.NameOrganization, false},
		{"donor", "donor", false},
	}
	for _, tc := range cases {
		a := &store.Contact{NameKind: tc.a}
		b := &store.Contact{NameKind: tc.b}
		if got := nameKindAgreement(a, b); got != tc.want {
			t.Errorf("nameKindAgreement(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestTxnBuckets(t *testing.T) {
	cases := []struct {
		a, b int64
		want TxnBucket
	}{
		{0, 0, TxnBothZero},
		{0, 5, TxnOneZero},
		{5, 0, TxnOneZero},
		{5, 7, TxnClose},
		{5, 8, TxnClose},
		{5, 9, TxnFar},
	}
	for _, tc := range cases {
		if got := txnBucket(tc.a, tc.b, 3); got != tc.want {
			t.Errorf("txnBucket(%d, %d) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestCreatedBuckets(t *testing.T) {
	base := baseTime()
	cases := []struct {
		gap  time.Duration
		want CreatedBucket
	}{
		{0, CreatedWithin30d},
		{29 * 24 * time.Hour, CreatedWithin30d},
		{60 * 24 * time.Hour, CreatedWithin90d},
		{200 * 24 * time.Hour, CreatedBeyond},
	}
	for _, tc := range cases {
		if got := createdBucket(base, base.Add(tc.gap)); got != tc.want {
			t.Errorf("createdBucket gap %v = %s, want %s", tc.gap, got, tc.want)
		}
		if got := createdBucket(base.Add(tc.gap), base); got != tc.want {
			t.Errorf("createdBucket reversed gap %v = %s, want %s", tc.gap, got, tc.want)
		}
	}
	if got := createdBucket(time.Time{}, base); got != CreatedBeyond {
		t.Errorf("zero timestamp should bucket beyond, got %s", got)
	}
}

func TestAddressValidatedRequiresBothSides(t *testing.T) {
	a := &store.Contact{ID: 1, CreatedAt: baseTime()}
	a.Addresses[0] = store.Address{Line1: "123 Main St", City: "Springfield", Postal: "01101"}
	b := &store.Contact{ID: 2, CreatedAt: baseTime()}
	b.Addresses[0] = store.Address{Line1: "123 Main St", City: "Springfield", Postal: "01101"}

	deliverable := store.AddressValidation{MatchCode: store.MatchCodeConfirmed}
	vacant := store.AddressValidation{MatchCode: store.MatchCodeConfirmed, Vacant: true}

	set := Extract(a, b, Facts{Validations: map[int]store.AddressValidation{0: deliverable}}, Facts{}, 3)
	if set.AddressValidated {
		t.Error("one-sided validation must stay neutral")
	}

	set = Extract(a, b,
		Facts{Validations: map[int]store.AddressValidation{0: deliverable}},
		Facts{Validations: map[int]store.AddressValidation{0: vacant}}, 3)
	if set.AddressValidated {
		t.Error("vacant validation must not corroborate")
	}

	set = Extract(a, b,
		Facts{Validations: map[int]store.AddressValidation{0: deliverable}},
		Facts{Validations: map[int]store.AddressValidation{0: deliverable}}, 3)
	if !set.AddressValidated {
		t.Error("expected validated signal when both sides are deliverable")
	}
	if !set.AddressMatch {
		t.Error("expected address match")
	}
}

func TestSignalJSONRoundTrip(t *testing.T) {
	set := Set{EmailDomainMatch: true, TxnBucket: TxnClose, CreatedBucket: CreatedWithin90d}
	parsed, err := ParseJSON(set.JSON())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != set {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, set)
	}
	empty, err := ParseJSON("")
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if empty != (Set{}) {
		t.Fatalf("expected zero set for empty json, got %+v", empty)
	}
}
