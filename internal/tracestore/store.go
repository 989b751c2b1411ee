// Package tracestore implements the Trace Store Facade: a KV-backed edge
// and payload store fronted by an in-process HNSW index for two-phase
// semantic search, with an optional durable vector mirror for recall across
// restarts.
package tracestore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/agentreplay/agentreplay-sub001/internal/causal"
	"github.com/agentreplay/agentreplay-sub001/internal/model"
	"github.com/agentreplay/agentreplay-sub001/internal/vectorindex"
)

// candidateMultiplier is the "3k" of spec.md §4.8's two-phase search: pull
// 3x the requested k as approximate candidates before the exact re-rank.
const candidateMultiplier = 3

// Facade is the Trace Store described in spec.md §4.8.
type Facade struct {
	kv      KVStore
	index   *vectorindex.Index
	causal  *causal.Index
	durable DurableVectorMirror // optional
}

// Option configures a Facade during construction.
type Option func(*Facade)

// WithKVStore overrides the default in-memory KV backend.
func WithKVStore(kv KVStore) Option { return func(f *Facade) { f.kv = kv } }

// WithDurableMirror attaches an optional durable vector backend (e.g.
// QdrantMirror) that every IndexEmbedding call writes through to.
func WithDurableMirror(m DurableVectorMirror) Option { return func(f *Facade) { f.durable = m } }

// New constructs a Facade with an in-process HNSW index and causal DAG.
func New(hnsw vectorindex.Params, opts ...Option) *Facade {
	f := &Facade{
		kv:     NewMemoryKV(),
		index:  vectorindex.New(hnsw),
		causal: causal.New(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// PutEdge is idempotent by edge id and also threads the edge into the
// causal DAG via its CausalParent, so Stats and the causal-query surface
// stay consistent with what's been persisted.
func (f *Facade) PutEdge(ctx context.Context, edge model.Edge) error {
	if err := f.kv.PutEdge(ctx, edge); err != nil {
		return err
	}
	f.causal.Insert(edge.EdgeID, edge.CausalParent)
	return nil
}

// Get returns the edge for id, if present.
func (f *Facade) Get(ctx context.Context, id model.TraceID) (model.Edge, bool, error) {
	return f.kv.GetEdge(ctx, id)
}

// PutPayload stores id's raw payload bytes.
func (f *Facade) PutPayload(ctx context.Context, id model.TraceID, payload []byte) error {
	return f.kv.PutPayload(ctx, id, payload)
}

// GetPayload returns id's raw payload bytes, if present.
func (f *Facade) GetPayload(ctx context.Context, id model.TraceID) ([]byte, bool, error) {
	return f.kv.GetPayload(ctx, id)
}

// RangeScan returns tenantID's edges with TimestampUS in [startUS, endUS],
// time-ordered ascending.
func (f *Facade) RangeScan(ctx context.Context, tenantID uint64, startUS, endUS int64) ([]model.Edge, error) {
	return f.kv.RangeScan(ctx, tenantID, startUS, endUS)
}

// Causal exposes the underlying causal DAG for ancestor/descendant/influence
// queries (C5), since the Facade is what threads edges into it.
func (f *Facade) Causal() *causal.Index {
	return f.causal
}

// IndexEmbedding adds id's embedding to the in-process recall index, and to
// the durable mirror if one is configured. Mirror failures are logged, not
// returned: the in-process index remains authoritative for this process's
// semantic_search calls.
func (f *Facade) IndexEmbedding(ctx context.Context, id model.TraceID, vector []float32) error {
	if err := f.index.Insert(id.String(), vector); err != nil {
		return fmt.Errorf("index embedding: %w", err)
	}
	if f.durable != nil {
		if err := f.durable.Upsert(ctx, id.String(), vector); err != nil {
			log.Warn().Err(err).Stringer("trace_id", id).Msg("durable vector mirror upsert failed")
		}
	}
	return nil
}

// SemanticSearch runs the two-phase search from spec.md §4.8: an
// approximate HNSW pull of candidateMultiplier*k candidates, then an exact
// cosine re-rank over those candidates, returning the top k edges.
func (f *Facade) SemanticSearch(ctx context.Context, queryEmbedding []float32, k int) ([]model.Edge, error) {
	if k <= 0 {
		return nil, nil
	}
	hits, err := f.index.Search(queryEmbedding, k*candidateMultiplier)
	if err != nil {
		return nil, fmt.Errorf("candidate search: %w", err)
	}

	type scored struct {
		id   string
		dist float64
	}
	rescored := make([]scored, 0, len(hits))
	for _, h := range hits {
		vec, ok := f.index.Vector(h.ID)
		if !ok {
			continue
		}
		rescored = append(rescored, scored{id: h.ID, dist: exactCosineDistance(queryEmbedding, vec)})
	}
	sort.Slice(rescored, func(i, j int) bool { return rescored[i].dist < rescored[j].dist })
	if len(rescored) > k {
		rescored = rescored[:k]
	}

	out := make([]model.Edge, 0, len(rescored))
	for _, r := range rescored {
		id, ok := parseTraceID(r.id)
		if !ok {
			continue
		}
		edge, found, err := f.kv.GetEdge(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, edge)
		}
	}
	return out, nil
}

// Stats is the snapshot returned by Facade.Stats.
type Stats struct {
	CausalNodes int
	CausalEdges int
	VectorCount int
}

// Stats reports the DAG's and vector index's current size.
func (f *Facade) Stats() Stats {
	nodes, edges := f.causal.Stats()
	return Stats{
		CausalNodes: nodes,
		CausalEdges: edges,
		VectorCount: f.index.Len(),
	}
}

func exactCosineDistance(a, b []float32) float64 {
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
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// parseTraceID parses a vectorindex id (id.String() of a TraceID) back into
// its TraceID, for zipping semantic_search's HNSW hits back to edges.
func parseTraceID(s string) (model.TraceID, bool) {
	if len(s) != 32 {
		return model.TraceID{}, false
	}
	hi, err := strconv.ParseUint(s[:16], 16, 64)
	if err != nil {
		return model.TraceID{}, false
	}
	lo, err := strconv.ParseUint(s[16:], 16, 64)
	if err != nil {
		return model.TraceID{}, false
	}
	return model.TraceID{Hi: hi, Lo: lo}, true
}
