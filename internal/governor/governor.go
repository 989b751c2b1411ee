// Package governor implements the sharded semantic deduplication engine: N
// independent HNSW/binary-quantization shards plus a shared Count-Min Sketch
// for bounded-memory duplicate accounting.
package governor

import (
	"context"
	"math"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
	"github.com/agentreplay/agentreplay-sub001/internal/quantize"
	"github.com/agentreplay/agentreplay-sub001/internal/sketch"
	"github.com/agentreplay/agentreplay-sub001/internal/vectorindex"
)

// exactScanThreshold is the shard size below which a shard falls back to a
// brute-force linear scan instead of trusting HNSW's approximate search,
// which is unreliable on graphs with too few nodes to build real structure.
const exactScanThreshold = 100

// Action distinguishes the two Decision variants.
type Action int

const (
	Store Action = iota
	Drop
)

// Decision is the outcome of processing one trace through the governor.
type Decision struct {
	Action Action

	TraceID model.TraceID

	// Fields below are populated only when Action == Drop.
	SimilarTo      model.TraceID
	Similarity     float64
	DuplicateCount uint64
}

// Config parameterizes a Governor. Zero values of Epsilon, ShardCount,
// SketchDepth and SketchWidth fall back to spec.md §4.4's defaults.
// UseBinaryQuantization and Dimension have no fallback: a zero
// UseBinaryQuantization disables quantization.
type Config struct {
	Epsilon               float64
	ShardCount            int
	UseBinaryQuantization bool
	Dimension             int
	HNSW                  vectorindex.Params
	SketchDepth           int
	SketchWidth           int
}

func (c Config) withDefaults() Config {
	if c.Epsilon <= 0 {
		c.Epsilon = 0.05
	}
	if c.ShardCount <= 0 {
		c.ShardCount = 16
	}
	if c.SketchDepth <= 0 {
		c.SketchDepth = sketch.DefaultDepth
	}
	if c.SketchWidth <= 0 {
		c.SketchWidth = sketch.DefaultWidth
	}
	return c
}

// shard holds one partition's independent index state. mu guards both the
// HNSW graph (indirectly, via vectorindex.Index's own lock) and the binary
// scan list, since the governor's read-then-write protocol needs to hold a
// single lock across "check" and "commit" to close the race window.
type shard struct {
	mu     sync.RWMutex
	index  *vectorindex.Index
	binary []binaryEntry
	count  atomic.Int64
}

type binaryEntry struct {
	id model.TraceID
	bq quantize.BinaryEmbedding
}

// Governor is the sharded semantic deduplication engine described in
// spec.md §4.4.
type Governor struct {
	cfg    Config
	shards []*shard
	sketch *sketch.CountMinSketch
	mirror StatsMirror

	processed atomic.Uint64
	stored    atomic.Uint64
	dropped   atomic.Uint64
}

// New constructs a Governor with cfg.ShardCount independent shards.
func New(cfg Config) *Governor {
	cfg = cfg.withDefaults()
	g := &Governor{
		cfg:    cfg,
		shards: make([]*shard, cfg.ShardCount),
		sketch: sketch.New(cfg.SketchDepth, cfg.SketchWidth),
	}
	for i := range g.shards {
		g.shards[i] = &shard{index: vectorindex.New(cfg.HNSW)}
	}
	return g
}

// SetStatsMirror attaches an optional cross-process duplicate-count mirror.
// Publish failures are logged, never surfaced: the mirror is a warm-start
// optimization for other processes, not part of this process's dedup path.
func (g *Governor) SetStatsMirror(m StatsMirror) {
	g.mirror = m
}

func (g *Governor) publishMirror(traceID model.TraceID, count uint64) {
	if g.mirror == nil {
		return
	}
	if err := g.mirror.Publish(context.Background(), traceID, count); err != nil {
		log.Warn().Err(err).Stringer("trace_id", traceID).Msg("stats mirror publish failed")
	}
}

// shardIndex maps an embedding to a shard deterministically: same embedding
// always routes to the same shard, so equality detection stays local to one
// shard's lock.
func (g *Governor) shardIndex(embedding []float32) int {
	n := len(embedding)
	if n > 8 {
		n = 8
	}
	h := xxhash.New()
	var buf [4]byte
	for i := 0; i < n; i++ {
		bits := math.Float32bits(embedding[i])
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		h.Write(buf[:])
	}
	return int(h.Sum64() % uint64(len(g.shards)))
}

// Process decides whether embedding is a novel trace or a near-duplicate of
// one already stored, per the read-lock-then-write-lock protocol in
// spec.md §4.4.
func (g *Governor) Process(traceID model.TraceID, embedding []float32) Decision {
	g.processed.Add(1)
	idx := g.shardIndex(embedding)
	sh := g.shards[idx]

	var bq quantize.BinaryEmbedding
	if g.cfg.UseBinaryQuantization {
		bq = quantize.Quantize(embedding)
	}

	if id, dist, found := g.findNearest(sh, embedding, bq); found && dist < g.cfg.Epsilon {
		count := g.sketch.Increment(id.Bytes())
		g.dropped.Add(1)
		g.publishMirror(id, count)
		return Decision{
			Action:         Drop,
			TraceID:        traceID,
			SimilarTo:      id,
			Similarity:     1 - dist,
			DuplicateCount: count,
		}
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Re-check under the write lock: another goroutine may have inserted a
	// near-duplicate between our read-lock release and this acquire.
	if id, dist, found := g.findNearestLocked(sh, embedding, bq); found && dist < g.cfg.Epsilon {
		count := g.sketch.Increment(id.Bytes())
		g.dropped.Add(1)
		g.publishMirror(id, count)
		return Decision{
			Action:         Drop,
			TraceID:        traceID,
			SimilarTo:      id,
			Similarity:     1 - dist,
			DuplicateCount: count,
		}
	}

	if err := sh.index.Insert(traceID.String(), embedding); err != nil {
		log.Error().Err(err).Stringer("trace_id", traceID).Msg("hnsw insert failed, trace still recorded in scan list")
	}
	if g.cfg.UseBinaryQuantization {
		sh.binary = append(sh.binary, binaryEntry{id: traceID, bq: bq})
	}
	sh.count.Add(1)
	g.stored.Add(1)
	return Decision{Action: Store, TraceID: traceID}
}

// findNearest takes sh's read lock for the duration of the lookup.
func (g *Governor) findNearest(sh *shard, query []float32, bq quantize.BinaryEmbedding) (model.TraceID, float64, bool) {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return g.findNearestLocked(sh, query, bq)
}

// findNearestLocked assumes the caller already holds sh.mu (read or write).
func (g *Governor) findNearestLocked(sh *shard, query []float32, bq quantize.BinaryEmbedding) (model.TraceID, float64, bool) {
	if int(sh.count.Load()) < exactScanThreshold {
		if id, dist, ok := exactScan(sh.index, query); ok {
			return id, dist, true
		}
	}

	if sh.index.Len() > 0 {
		hits, err := sh.index.Search(query, 1)
		if err == nil && len(hits) > 0 {
			id, ok := parseTraceID(hits[0].ID)
			if ok {
				return id, hits[0].Distance, true
			}
		}
	}

	if g.cfg.UseBinaryQuantization && len(sh.binary) > 0 {
		return approxBinaryScan(sh.binary, bq)
	}

	return model.TraceID{}, 0, false
}

func exactScan(index *vectorindex.Index, query []float32) (model.TraceID, float64, bool) {
	entries := index.All()
	if len(entries) == 0 {
		return model.TraceID{}, 0, false
	}
	bestDist := 2.0
	var bestID string
	for _, e := range entries {
		d := cosineDistance(query, e.Vector)
		if d < bestDist {
			bestDist = d
			bestID = e.ID
		}
	}
	id, ok := parseTraceID(bestID)
	if !ok {
		return model.TraceID{}, 0, false
	}
	return id, bestDist, true
}

func approxBinaryScan(entries []binaryEntry, query quantize.BinaryEmbedding) (model.TraceID, float64, bool) {
	if len(entries) == 0 {
		return model.TraceID{}, 0, false
	}
	best := entries[0]
	bestDist := quantize.ApproxCosineDistance(query, best.bq)
	for _, e := range entries[1:] {
		d := quantize.ApproxCosineDistance(query, e.bq)
		if d < bestDist {
			bestDist = d
			best = e
		}
	}
	return best.id, bestDist, true
}

func cosineDistance(a, b []float32) float64 {
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

// Item is one (trace_id, embedding) pair submitted to ProcessBatch.
type Item struct {
	TraceID   model.TraceID
	Embedding []float32
}

// ProcessBatch groups items by shard and dispatches each group to its own
// goroutine, so no two groups contend for the same shard lock; results are
// reassembled into the caller's original order.
func (g *Governor) ProcessBatch(items []Item) []Decision {
	groups := make(map[int][]int, len(g.shards))
	for i, it := range items {
		idx := g.shardIndex(it.Embedding)
		groups[idx] = append(groups[idx], i)
	}

	out := make([]Decision, len(items))
	var wg sync.WaitGroup
	for _, positions := range groups {
		positions := positions
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, pos := range positions {
				out[pos] = g.Process(items[pos].TraceID, items[pos].Embedding)
			}
		}()
	}
	wg.Wait()
	return out
}

// Stats is the snapshot returned by Governor.Stats.
type Stats struct {
	Processed      uint64
	Stored         uint64
	Dropped        uint64
	PerShardCounts []int64
	MemoryBytes    int64
}

// Stats reports cumulative counters and a rough memory estimate.
func (g *Governor) Stats() Stats {
	perShard := make([]int64, len(g.shards))
	var mem int64
	for i, sh := range g.shards {
		n := sh.count.Load()
		perShard[i] = n
		if g.cfg.UseBinaryQuantization {
			mem += n * int64(quantize.MemoryBytes(g.cfg.Dimension))
		} else {
			mem += n * int64(4*g.cfg.Dimension)
		}
	}
	return Stats{
		Processed:      g.processed.Load(),
		Stored:         g.stored.Load(),
		Dropped:        g.dropped.Load(),
		PerShardCounts: perShard,
		MemoryBytes:    mem,
	}
}

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
