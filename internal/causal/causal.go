// Package causal implements the in-memory causal DAG over trace edges: a
// parent/children adjacency structure supporting ancestor/descendant walks,
// path queries, and an influence score used by the relevance scorer.
package causal

import (
	"math"
	"sync"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// Index is a mutable, concurrency-safe DAG keyed by edge id.
type Index struct {
	mu       sync.RWMutex
	parent   map[model.TraceID]model.TraceID
	children map[model.TraceID]map[model.TraceID]struct{}
}

// New returns an empty causal index.
func New() *Index {
	return &Index{
		parent:   make(map[model.TraceID]model.TraceID),
		children: make(map[model.TraceID]map[model.TraceID]struct{}),
	}
}

// Insert records id's parent. Root nodes use the zero TraceID as parent.
// Trace ids are time-ordered by construction, so a later id can never be an
// ancestor of an earlier one; Insert still runs a bounded ancestor walk on
// every insert with a non-zero parent and returns false, leaving the DAG
// unchanged, when id is already in the parent's ancestor chain, since a
// malformed or replayed payload could otherwise wedge the DAG into a cycle.
func (ix *Index) Insert(id, parent model.TraceID) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if !parent.IsZero() && ix.wouldCycleLocked(id, parent) {
		return false
	}

	ix.parent[id] = parent
	if !parent.IsZero() {
		set, ok := ix.children[parent]
		if !ok {
			set = make(map[model.TraceID]struct{})
			ix.children[parent] = set
		}
		set[id] = struct{}{}
	}
	if _, ok := ix.children[id]; !ok {
		ix.children[id] = make(map[model.TraceID]struct{})
	}
	return true
}

// wouldCycleLocked reports whether making parent the parent of id would
// create a cycle, i.e. id is already an ancestor of parent. Bounded by the
// DAG's current size so malformed data can't spin forever.
func (ix *Index) wouldCycleLocked(id, parent model.TraceID) bool {
	cur := parent
	for i := 0; i < len(ix.parent)+1; i++ {
		if cur == id {
			return true
		}
		next, ok := ix.parent[cur]
		if !ok || next.IsZero() {
			return false
		}
		cur = next
	}
	return true
}

// GetChildren returns id's direct children, in no particular order.
func (ix *Index) GetChildren(id model.TraceID) []model.TraceID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set := ix.children[id]
	out := make([]model.TraceID, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// GetParents returns the full ancestor chain from id's immediate parent to
// the root, in that order; its length equals id's depth.
func (ix *Index) GetParents(id model.TraceID) []model.TraceID {
	return ix.GetAncestors(id)
}

// GetAncestors returns id's ancestor chain ordered from immediate parent to
// root.
func (ix *Index) GetAncestors(id model.TraceID) []model.TraceID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []model.TraceID
	cur, ok := ix.parent[id]
	for ok && !cur.IsZero() {
		out = append(out, cur)
		cur, ok = ix.parent[cur]
	}
	return out
}

// DescendantDepth pairs a descendant id with its BFS depth from the query
// root (depth 0 = self).
type DescendantDepth struct {
	ID    model.TraceID
	Depth int
}

// GetDescendantsWithDepth runs a breadth-first walk from id, truncated by
// maxDepth and maxNodes (whichever is hit first). maxDepth <= 0 means
// unlimited depth; maxNodes <= 0 means unlimited node count.
func (ix *Index) GetDescendantsWithDepth(id model.TraceID, maxDepth, maxNodes int) []DescendantDepth {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type frame struct {
		id    model.TraceID
		depth int
	}
	out := []DescendantDepth{{ID: id, Depth: 0}}
	queue := []frame{{id: id, depth: 0}}
	for len(queue) > 0 {
		f := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && f.depth >= maxDepth {
			continue
		}
		for child := range ix.children[f.id] {
			if maxNodes > 0 && len(out) >= maxNodes {
				return out
			}
			out = append(out, DescendantDepth{ID: child, Depth: f.depth + 1})
			queue = append(queue, frame{id: child, depth: f.depth + 1})
		}
	}
	return out
}

// GetPath returns the walk from "to" up to "from" (inclusive, ordered from
// "from" to "to"), or ok=false if "to" is not a descendant of "from".
func (ix *Index) GetPath(from, to model.TraceID) (path []model.TraceID, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if from == to {
		return []model.TraceID{from}, true
	}
	var reversed []model.TraceID
	cur := to
	for i := 0; i < len(ix.parent)+1; i++ {
		reversed = append(reversed, cur)
		if cur == from {
			break
		}
		next, exists := ix.parent[cur]
		if !exists || next.IsZero() {
			return nil, false
		}
		cur = next
	}
	if len(reversed) == 0 || reversed[len(reversed)-1] != from {
		return nil, false
	}
	for i := len(reversed) - 1; i >= 0; i-- {
		path = append(path, reversed[i])
	}
	return path, true
}

// maxInfluenceNodes bounds the descendant count Influence will walk before
// scoring, mirroring GetDescendantsWithDepth's own truncation bound.
const maxInfluenceNodes = 10000

// Influence returns a monotone-in-descendants score: log1p(number of
// descendants, truncated at maxInfluenceNodes).
func (ix *Index) Influence(id model.TraceID) float64 {
	descendants := ix.GetDescendantsWithDepth(id, 0, maxInfluenceNodes)
	n := len(descendants) - 1 // exclude self
	if n < 0 {
		n = 0
	}
	return math.Log1p(float64(n))
}

// Stats reports the DAG's current size: nodes is every id ever inserted,
// edges is the number of non-root parent links among them.
func (ix *Index) Stats() (nodes, edges int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	nodes = len(ix.parent)
	for _, p := range ix.parent {
		if !p.IsZero() {
			edges++
		}
	}
	return nodes, edges
}
