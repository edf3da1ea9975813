package candidates

import (
	"testing"

	"coalesce/internal/store"
)

func contact(id int64, first, last, phone, email string) *store.Contact {
	return &store.Contact{ID: id, FirstName: first, LastName: last, Phone: phone, Email: email}
}

func TestBlockKeysCoverAllThreeSpaces(t *testing.T) {
	c := contact(1, "Pat", "Doyle", "+1 (555) 010-2000", "pat+news@example.com")
	keys := BlockKeys(c)
	want := map[string]bool{
		"name:pat doyle":   false,
		"phone:5550102000": false,
		"email-local:pat":  false,
	}
	for _, key := range keys {
		if _, ok := want[key]; !ok {
			t.Errorf("unexpected block key %q", key)
			continue
		}
		want[key] = true
	}
	for key, found := range want {
		if !found {
			t.Errorf("missing block key %q", key)
		}
	}
}

func TestBlockKeysSkipMissingFields(t *testing.T) {
	c := contact(1, "", "", "", "pat@example.com")
	keys := BlockKeys(c)
	if len(keys) != 1 || keys[0] != "email-local:pat" {
		t.Fatalf("expected only email key, got %v", keys)
	}
}

func TestOrgNameWinsOverPersonName(t *testing.T) {
	c := &store.Contact{ID: 1, FirstName: "Pat", LastName: "Doyle", OrgName: "Acme Fund"}
	keys := BlockKeys(c)
	if len(keys) != 1 || keys[0] != "name:acme fund" {
		t.Fatalf("expected org name key, got %v", keys)
	}
}

func TestBuildIndexDropsSingletonsAndRemoved(t *testing.T) {
	removed := contact(4, "Pat", "Doyle", "", "")
	now := removed.CreatedAt
	removed.RemovedAt = &now

	blocks := BuildIndex([]*store.Contact{
		contact(1, "Pat", "Doyle", "", ""),
		contact(2, "pat", "doyle", "", ""),
		contact(3, "Sam", "Reed", "", ""),
		removed,
	})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	block := blocks[0]
	if block.Key != "name:pat doyle" {
		t.Fatalf("unexpected block key %q", block.Key)
	}
	if len(block.Contacts) != 2 {
		t.Fatalf("expected 2 members, got %d", len(block.Contacts))
	}
	if block.Contacts[0].ID != 1 || block.Contacts[1].ID != 2 {
		t.Fatal("expected members sorted by id with removed contact excluded")
	}
}

func TestPairsAreSmallerIDFirst(t *testing.T) {
	block := Block{
		Key: "name:pat doyle",
		Contacts: []*store.Contact{
			contact(1, "Pat", "Doyle", "", ""),
			contact(5, "Pat", "Doyle", "", ""),
			contact(9, "Pat", "Doyle", "", ""),
		},
	}
	pairs := block.Pairs()
	if len(pairs) != 3 {
		t.Fatalf("expected 3 pairs, got %d", len(pairs))
	}
	if block.PairCount() != 3 {
		t.Fatalf("PairCount = %d, want 3", block.PairCount())
	}
	for _, p := range pairs {
		if p.A.ID >= p.B.ID {
			t.Errorf("pair %s not ordered smaller id first", p.Key())
		}
	}
	if pairs[0].Key() != "1:5" {
		t.Fatalf("unexpected first pair %s", pairs[0].Key())
	}
}

func TestSharedBlockKeys(t *testing.T) {
	a := contact(1, "Pat", "Doyle", "555-010-2000", "pat@example.com")
	b := contact(2, "Pat", "Doyle", "555-999-9999", "pat@other.org")
	shared := SharedBlockKeys(a, b)
	want := map[string]bool{"name:pat doyle": false, "email-local:pat": false}
	if len(shared) != len(want) {
		t.Fatalf("expected %d shared keys, got %v", len(want), shared)
	}
	for _, key := range shared {
		want[key] = true
	}
	for key, found := range want {
		if !found {
			t.Errorf("missing shared key %q", key)
		}
	}
}
