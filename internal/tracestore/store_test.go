package tracestore

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
	"github.com/agentreplay/agentreplay-sub001/internal/vectorindex"
)

func unitVector(seed int64, dim int) []float32 {
	r := rand.New(rand.NewSource(seed))
	v := make([]float32, dim)
	var sumSq float64
	for i := range v {
		x := r.Float32()*2 - 1
		v[i] = x
		sumSq += float64(x) * float64(x)
	}
	norm := float32(1)
	if sumSq > 0 {
		norm = float32(1 / math.Sqrt(sumSq))
	}
	for i := range v {
		v[i] *= norm
	}
	return v
}

func traceIDFor(i int) model.TraceID {
	return model.TraceID{Hi: uint64(i) + 1, Lo: uint64(i)*7 + 3}
}

func testFacade() *Facade {
	return New(vectorindex.Params{EfSearch: 64})
}

func TestPutEdgeThenGetRoundTrips(t *testing.T) {
	f := testFacade()
	edge := model.NewEdge(model.Edge{EdgeID: traceIDFor(0), TenantID: 1, TimestampUS: 100})
	require.NoError(t, f.PutEdge(context.Background(), edge))

	got, ok, err := f.Get(context.Background(), edge.EdgeID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, edge, got)
}

func TestGetMissingEdgeReportsNotFound(t *testing.T) {
	f := testFacade()
	_, ok, err := f.Get(context.Background(), traceIDFor(99))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPutEdgeIsIdempotentByID(t *testing.T) {
	f := testFacade()
	id := traceIDFor(0)
	first := model.NewEdge(model.Edge{EdgeID: id, TenantID: 1, TimestampUS: 100, AgentID: "a"})
	second := model.NewEdge(model.Edge{EdgeID: id, TenantID: 1, TimestampUS: 100, AgentID: "b"})
	require.NoError(t, f.PutEdge(context.Background(), first))
	require.NoError(t, f.PutEdge(context.Background(), second))

	got, ok, err := f.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", got.AgentID)
}

func TestPutEdgeThreadsIntoCausalDAG(t *testing.T) {
	f := testFacade()
	root := traceIDFor(0)
	child := traceIDFor(1)
	require.NoError(t, f.PutEdge(context.Background(), model.NewEdge(model.Edge{EdgeID: root, TenantID: 1})))
	require.NoError(t, f.PutEdge(context.Background(), model.NewEdge(model.Edge{EdgeID: child, TenantID: 1, CausalParent: root})))

	require.ElementsMatch(t, []model.TraceID{root}, f.Causal().GetAncestors(child))
	require.ElementsMatch(t, []model.TraceID{child}, f.Causal().GetChildren(root))
}

func TestPutPayloadThenGetRoundTrips(t *testing.T) {
	f := testFacade()
	id := traceIDFor(0)
	require.NoError(t, f.PutPayload(context.Background(), id, []byte("hello")))

	got, ok, err := f.GetPayload(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), got)
}

func TestRangeScanFiltersByTenantAndTime(t *testing.T) {
	f := testFacade()
	ctx := context.Background()
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: traceIDFor(0), TenantID: 1, TimestampUS: 50})))
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: traceIDFor(1), TenantID: 1, TimestampUS: 150})))
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: traceIDFor(2), TenantID: 2, TimestampUS: 100})))

	out, err := f.RangeScan(ctx, 1, 0, 100)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, traceIDFor(0), out[0].EdgeID)
}

func TestRangeScanOrdersByTimestampAscending(t *testing.T) {
	f := testFacade()
	ctx := context.Background()
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: traceIDFor(0), TenantID: 1, TimestampUS: 300})))
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: traceIDFor(1), TenantID: 1, TimestampUS: 100})))
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: traceIDFor(2), TenantID: 1, TimestampUS: 200})))

	out, err := f.RangeScan(ctx, 1, 0, 1000)
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.Equal(t, traceIDFor(1), out[0].EdgeID)
	require.Equal(t, traceIDFor(2), out[1].EdgeID)
	require.Equal(t, traceIDFor(0), out[2].EdgeID)
}

func TestSemanticSearchReturnsNearestEdgeFirst(t *testing.T) {
	f := testFacade()
	ctx := context.Background()
	dim := 16

	query := unitVector(1, dim)
	near := query
	far := unitVector(2, dim)

	idNear, idFar := traceIDFor(0), traceIDFor(1)
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: idNear, TenantID: 1})))
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: idFar, TenantID: 1})))
	require.NoError(t, f.IndexEmbedding(ctx, idNear, near))
	require.NoError(t, f.IndexEmbedding(ctx, idFar, far))

	hits, err := f.SemanticSearch(ctx, query, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, idNear, hits[0].EdgeID)
}

func TestSemanticSearchRespectsK(t *testing.T) {
	f := testFacade()
	ctx := context.Background()
	dim := 8
	for i := 0; i < 10; i++ {
		id := traceIDFor(i)
		require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: id, TenantID: 1})))
		require.NoError(t, f.IndexEmbedding(ctx, id, unitVector(int64(i), dim)))
	}
	hits, err := f.SemanticSearch(ctx, unitVector(0, dim), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
}

func TestSemanticSearchZeroKReturnsEmpty(t *testing.T) {
	f := testFacade()
	hits, err := f.SemanticSearch(context.Background(), unitVector(0, 8), 0)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestStatsReflectsEdgesAndVectors(t *testing.T) {
	f := testFacade()
	ctx := context.Background()
	root := traceIDFor(0)
	child := traceIDFor(1)
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: root, TenantID: 1})))
	require.NoError(t, f.PutEdge(ctx, model.NewEdge(model.Edge{EdgeID: child, TenantID: 1, CausalParent: root})))
	require.NoError(t, f.IndexEmbedding(ctx, root, unitVector(0, 8)))

	stats := f.Stats()
	require.Equal(t, 2, stats.CausalNodes)
	require.Equal(t, 1, stats.CausalEdges)
	require.Equal(t, 1, stats.VectorCount)
}
