package tracestore

import (
	"context"
	"sort"
	"sync"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

// KVStore is the minimal persistence interface the Facade needs: edge
// records plus their raw payload bytes. Grounded on the teacher's
// persistence/databases split of narrow, swappable backend interfaces
// (FullTextSearch/VectorStore/GraphDB) — here the trace domain only ever
// needs edge/payload get-put plus a time-range scan.
type KVStore interface {
	PutEdge(ctx context.Context, edge model.Edge) error
	GetEdge(ctx context.Context, id model.TraceID) (model.Edge, bool, error)
	PutPayload(ctx context.Context, id model.TraceID, payload []byte) error
	GetPayload(ctx context.Context, id model.TraceID) ([]byte, bool, error)
	RangeScan(ctx context.Context, tenantID uint64, startUS, endUS int64) ([]model.Edge, error)
}

// MemoryKV is the in-process KVStore used when no durable backend is
// configured, and in tests.
type MemoryKV struct {
	mu       sync.RWMutex
	edges    map[model.TraceID]model.Edge
	payloads map[model.TraceID][]byte
}

// NewMemoryKV constructs an empty MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		edges:    make(map[model.TraceID]model.Edge),
		payloads: make(map[model.TraceID][]byte),
	}
}

// PutEdge is idempotent by edge id: a repeated write with the same id
// overwrites in place, and is visible to subsequent reads before returning
// (the lock is held for the whole write).
func (m *MemoryKV) PutEdge(_ context.Context, edge model.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edge.EdgeID] = edge
	return nil
}

func (m *MemoryKV) GetEdge(_ context.Context, id model.TraceID) (model.Edge, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.edges[id]
	return e, ok, nil
}

func (m *MemoryKV) PutPayload(_ context.Context, id model.TraceID, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.payloads[id] = stored
	return nil
}

func (m *MemoryKV) GetPayload(_ context.Context, id model.TraceID) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.payloads[id]
	return b, ok, nil
}

// RangeScan returns every edge for tenantID with TimestampUS in
// [startUS, endUS], ordered ascending by timestamp.
func (m *MemoryKV) RangeScan(_ context.Context, tenantID uint64, startUS, endUS int64) ([]model.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Edge, 0)
	for _, e := range m.edges {
		if e.TenantID != tenantID {
			continue
		}
		if e.TimestampUS < startUS || e.TimestampUS > endUS {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimestampUS < out[j].TimestampUS })
	return out, nil
}
