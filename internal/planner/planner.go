// Package planner turns the current approved pairs into flat merge plans.
// Clusters are connected components over approved pairs whose both sides
// are still live; each cluster elects exactly one canonical contact and
// every other member merges directly into it, never through a chain.
package planner

import (
	"fmt"
	"sort"

	"coalesce/internal/store"
)

// Member is one live cluster participant with the owned-record counts the
// canonical election ranks by.
type Member struct {
	Contact  *store.Contact
	TxnCount int64
	SubCount int64
}

// Merge is one planned operation: fold Duplicate into Canonical, triggered
// by the approved decision identified by DecisionID.
type Merge struct {
	CanonicalID int64
	DuplicateID int64
	DecisionID  int64
}

// ClusterPlan is the resolution plan for one connected component. An
// ambiguous cluster carries no merges; its pairs go back to review instead.
type ClusterPlan struct {
	MemberIDs   []int64
	CanonicalID int64
	Merges      []Merge
	Decisions   []*store.Decision
	Ambiguous   bool
	Reason      string
}

// Plan builds cluster plans from the current approved decisions. Pairs whose
// either side is missing from members (already removed) are skipped; the
// executor would reject them as stale anyway.
func Plan(approved []*store.Decision, members map[int64]Member) []ClusterPlan {
	uf := newUnionFind()
	pairsByRoot := make(map[int64][]*store.Decision)

	var live []*store.Decision
	for _, d := range approved {
		if _, ok := members[d.ContactAID]; !ok {
			continue
		}
		if _, ok := members[d.ContactBID]; !ok {
			continue
		}
		uf.union(d.ContactAID, d.ContactBID)
		live = append(live, d)
	}
	for _, d := range live {
		root := uf.find(d.ContactAID)
		pairsByRoot[root] = append(pairsByRoot[root], d)
	}

	roots := make([]int64, 0, len(pairsByRoot))
	for root := range pairsByRoot {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	plans := make([]ClusterPlan, 0, len(roots))
	for _, root := range roots {
		plans = append(plans, planCluster(pairsByRoot[root], members))
	}
	return plans
}

func planCluster(decisions []*store.Decision, members map[int64]Member) ClusterPlan {
	idSet := make(map[int64]struct{})
	for _, d := range decisions {
		idSet[d.ContactAID] = struct{}{}
		idSet[d.ContactBID] = struct{}{}
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	plan := ClusterPlan{MemberIDs: ids, Decisions: decisions}

	ranked := make([]Member, 0, len(ids))
	for _, id := range ids {
		ranked = append(ranked, members[id])
	}
	sort.Slice(ranked, func(i, j int) bool { return electionLess(ranked[i], ranked[j]) })

	canonical := ranked[0]
	tied := len(ranked) > 1 && electionTied(ranked[0], ranked[1])
	if tied && !allOperatorApproved(decisions) {
		// The only remaining tie-break would be the arbitrary identifier.
		// Without an operator asserting identity that is not a decision
		// this engine is allowed to make on its own.
		plan.Ambiguous = true
		plan.Reason = fmt.Sprintf(
			"contacts %d and %d rank equally for canonical after all tie-breaks",
			ranked[0].Contact.ID, ranked[1].Contact.ID,
		)
		return plan
	}

	plan.CanonicalID = canonical.Contact.ID
	for _, id := range ids {
		if id == plan.CanonicalID {
			continue
		}
		plan.Merges = append(plan.Merges, Merge{
			CanonicalID: plan.CanonicalID,
			DuplicateID: id,
			DecisionID:  triggeringDecision(decisions, plan.CanonicalID, id),
		})
	}
	return plan
}

// electionLess orders canonical candidates: more transactions first, then
// more subscriptions, then earlier creation, then smaller id.
func electionLess(a, b Member) bool {
	if a.TxnCount != b.TxnCount {
		return a.TxnCount > b.TxnCount
	}
	if a.SubCount != b.SubCount {
		return a.SubCount > b.SubCount
	}
	if !a.Contact.CreatedAt.Equal(b.Contact.CreatedAt) {
		return a.Contact.CreatedAt.Before(b.Contact.CreatedAt)
	}
	return a.Contact.ID < b.Contact.ID
}

// electionTied reports whether two candidates are indistinguishable by
// every rule short of the identifier tie-break.
func electionTied(a, b Member) bool {
	return a.TxnCount == b.TxnCount &&
		a.SubCount == b.SubCount &&
		a.Contact.CreatedAt.Equal(b.Contact.CreatedAt)
}

func allOperatorApproved(decisions []*store.Decision) bool {
	for _, d := range decisions {
		if d.DecidedBy == "" || d.DecidedBy == store.DecidedByScorer {
			return false
		}
	}
	return true
}

// triggeringDecision picks the decision recorded on the merge. The direct
// (canonical, duplicate) pair wins when present; otherwise the strongest
// decision that pulled the duplicate into the cluster.
func triggeringDecision(decisions []*store.Decision, canonicalID, duplicateID int64) int64 {
	directKey := store.PairKey(canonicalID, duplicateID)
	var best *store.Decision
	for _, d := range decisions {
		if d.PairKey == directKey {
			return d.ID
		}
		if d.ContactAID != duplicateID && d.ContactBID != duplicateID {
			continue
		}
		if best == nil || d.Score > best.Score || (d.Score == best.Score && d.ID < best.ID) {
			best = d
		}
	}
	if best == nil {
		return 0
	}
	return best.ID
}

type unionFind struct {
	parent map[int64]int64
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int64]int64)}
}

func (u *unionFind) find(id int64) int64 {
	root, ok := u.parent[id]
	if !ok {
		u.parent[id] = id
		return id
	}
	if root == id {
		return id
	}
	resolved := u.find(root)
	u.parent[id] = resolved
	return resolved
}

func (u *unionFind) union(a, b int64) {
	rootA, rootB := u.find(a), u.find(b)
	if rootA == rootB {
		return
	}
	if rootB < rootA {
		rootA, rootB = rootB, rootA
	}
	u.parent[rootB] = rootA
}
