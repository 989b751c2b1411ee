// Package vectorindex wraps github.com/coder/hnsw into the narrow contract
// the governor and trace store need: insert-by-id and k-nearest search over
// cosine distance, with ties broken by insertion order.
package vectorindex

import (
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/agentreplay/agentreplay-sub001/internal/agenterr"
)

// Neighbor is one search hit: an id and its cosine distance from the query,
// ascending-sorted by the caller's search routine.
type Neighbor struct {
	ID       string
	Distance float64
}

// Index is a single HNSW graph plus the bookkeeping needed for the stable,
// insertion-order tie-break spec.md §4.3 requires (the underlying library
// does not itself guarantee tie order on equal distances).
type Index struct {
	mu       sync.Mutex
	graph    *hnsw.Graph[string]
	order    map[string]int
	vectors  map[string][]float32
	nextSeq  int
	efSearch int
}

// Entry is one indexed id/vector pair, as returned by All.
type Entry struct {
	ID     string
	Vector []float32
}

// Params configures the HNSW graph. Zero values fall back to the library's
// own defaults except EfSearch, which we always set explicitly since the
// governor's recall/latency tradeoff is a tuning knob callers should control.
type Params struct {
	M              int
	EfConstruction int
	EfSearch       int
}

// New constructs an empty HNSW index over cosine distance, per spec.md §4.3.
// p.M and p.EfSearch are applied to the graph; p.EfConstruction is not.
func New(p Params) *Index {
	g := hnsw.NewGraph[string]()
	g.Distance = hnsw.CosineDistance
	if p.M > 0 {
		g.M = p.M
	}
	ef := p.EfSearch
	if ef <= 0 {
		ef = 64
	}
	g.EfSearch = ef
	return &Index{graph: g, order: make(map[string]int), vectors: make(map[string][]float32), efSearch: ef}
}

// Insert adds id/vector to the graph. Errors are returned rather than
// panicking so the governor can log-and-continue per spec.md §4.4's failure
// semantics (HNSW insert failure must not fail the Store decision).
func (ix *Index) Insert(id string, vector []float32) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = agenterr.New(agenterr.Internal, "hnsw insert panic: %v", r)
		}
	}()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, exists := ix.order[id]; exists {
		return nil
	}
	ix.graph.Add(hnsw.Node[string]{Key: id, Value: hnsw.Vector(vector)})
	ix.order[id] = ix.nextSeq
	ix.nextSeq++
	stored := make([]float32, len(vector))
	copy(stored, vector)
	ix.vectors[id] = stored
	return nil
}

// Vector returns the stored vector for id, if present.
func (ix *Index) Vector(id string) ([]float32, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	v, ok := ix.vectors[id]
	return v, ok
}

// All returns every indexed id/vector pair, in insertion order. Used for the
// brute-force exact scan the governor falls back to while a shard is too
// small for HNSW's approximate search to be reliable.
func (ix *Index) All() []Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]Entry, len(ix.order))
	for id, seq := range ix.order {
		out[seq] = Entry{ID: id, Vector: ix.vectors[id]}
	}
	return out
}

// Search returns up to k approximate nearest neighbors of query, sorted by
// ascending distance with ties broken by insertion order (stable).
func (ix *Index) Search(query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, agenterr.New(agenterr.InvalidInput, "k must be positive, got %d", k)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.graph.Len() == 0 {
		return nil, nil
	}
	hits := ix.graph.Search(hnsw.Vector(query), k)
	out := make([]Neighbor, 0, len(hits))
	for _, h := range hits {
		out = append(out, Neighbor{ID: h.Key, Distance: cosineDistanceOf(query, h.Value)})
	}
	stableSortByDistanceThenOrder(out, ix.order)
	return out, nil
}

// Len reports the number of vectors currently indexed.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.graph.Len()
}

func cosineDistanceOf(a, b []float32) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cos
}

func stableSortByDistanceThenOrder(n []Neighbor, order map[string]int) {
	// Simple insertion sort: result sets from a single shard's search are
	// small (k is a handful to a few hundred), so O(n^2) is fine and keeps
	// the stability guarantee explicit rather than relying on sort.SliceStable
	// semantics with a custom Less that approximates floating point equality.
	for i := 1; i < len(n); i++ {
		j := i
		for j > 0 && less(n[j], n[j-1], order) {
			n[j], n[j-1] = n[j-1], n[j]
			j--
		}
	}
}

func less(a, b Neighbor, order map[string]int) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return order[a.ID] < order[b.ID]
}
