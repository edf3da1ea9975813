// Package candidates builds the blocking index over live contacts and turns
// each block into candidate pairs. Blocking keeps the comparison count far
// below the full n squared cross product; two contacts are only ever
// compared when they share at least one blocking key.
package candidates

import (
	"sort"

	"coalesce/internal/normalize"
	"coalesce/internal/store"
)

// Block key prefixes keep the three key spaces disjoint, so a phone number
// that happens to equal a postal code can never collide.
const (
	PrefixName  = "name:"
	PrefixPhone = "phone:"
	PrefixEmail = "email-local:"
)

// Pair is one candidate comparison. A is always the smaller contact id.
type Pair struct {
	A        *store.Contact
	B        *store.Contact
	BlockKey string
}

// Key returns the pair's canonical unordered key.
func (p Pair) Key() string {
	return store.PairKey(p.A.ID, p.B.ID)
}

// Block is one bucket of the blocking index.
type Block struct {
	Key      string
	Contacts []*store.Contact
}

// PairCount returns the number of candidate pairs this block produces.
func (b Block) PairCount() int {
	n := len(b.Contacts)
	return n * (n - 1) / 2
}

// BlockKeys computes every blocking key a contact participates in:
// normalized name, phone digits, and email local part. Contacts missing a
// field simply produce no key for it.
func BlockKeys(c *store.Contact) []string {
	var keys []string
	if name := nameKeyFor(c); name != "" {
		keys = append(keys, PrefixName+name)
	}
	if phone := normalize.PhoneKey(c.Phone); phone != "" {
		keys = append(keys, PrefixPhone+phone)
	}
	if local := normalize.EmailLocalPart(c.Email); local != "" {
		keys = append(keys, PrefixEmail+local)
	}
	return keys
}

func nameKeyFor(c *store.Contact) string {
	if c.OrgName != "" {
		return normalize.NameKey(c.OrgName)
	}
	return normalize.NameKey(c.FirstName, c.LastName)
}

// BuildIndex groups contacts into blocks by shared blocking key. Blocks with
// a single member produce no pairs and are dropped. Keys come back sorted so
// a resumed scan walks them in the same order.
func BuildIndex(contacts []*store.Contact) []Block {
	buckets := make(map[string][]*store.Contact)
	for _, c := range contacts {
		if c.IsRemoved() {
			continue
		}
		for _, key := range BlockKeys(c) {
			buckets[key] = append(buckets[key], c)
		}
	}

	blocks := make([]Block, 0, len(buckets))
	for key, members := range buckets {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		blocks = append(blocks, Block{Key: key, Contacts: members})
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Key < blocks[j].Key })
	return blocks
}

// Pairs expands a block into candidate pairs, smaller id first. The same
// two contacts can appear in several blocks; deduplication by pair key is
// the scanner's job, since it spans blocks.
func (b Block) Pairs() []Pair {
	pairs := make([]Pair, 0, b.PairCount())
	for i := 0; i < len(b.Contacts); i++ {
		for j := i + 1; j < len(b.Contacts); j++ {
			pairs = append(pairs, Pair{A: b.Contacts[i], B: b.Contacts[j], BlockKey: b.Key})
		}
	}
	return pairs
}

// SharedBlockKeys returns the blocking keys two contacts have in common.
// Recorded on the decision row so reviewers can see why a pair surfaced.
func SharedBlockKeys(a, b *store.Contact) []string {
	keysB := make(map[string]struct{})
	for _, key := range BlockKeys(b) {
		keysB[key] = struct{}{}
	}
	var shared []string
	for _, key := range BlockKeys(a) {
		if _, ok := keysB[key]; ok {
			shared = append(shared, key)
		}
	}
	return shared
}
