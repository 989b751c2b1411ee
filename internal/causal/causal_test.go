package causal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentreplay/agentreplay-sub001/internal/model"
)

func id(n uint64) model.TraceID { return model.TraceID{Hi: 0, Lo: n} }

func TestInsertRootHasNoParent(t *testing.T) {
	ix := New()
	require.True(t, ix.Insert(id(1), model.Zero))
	require.Empty(t, ix.GetAncestors(id(1)))
}

func TestGetChildrenReturnsDirectChildrenOnly(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	ix.Insert(id(2), id(1))
	ix.Insert(id(3), id(1))
	ix.Insert(id(4), id(2))

	children := ix.GetChildren(id(1))
	require.Len(t, children, 2)
	require.ElementsMatch(t, []model.TraceID{id(2), id(3)}, children)
}

func TestGetAncestorsOrderedFromParentToRoot(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	ix.Insert(id(2), id(1))
	ix.Insert(id(3), id(2))

	ancestors := ix.GetAncestors(id(3))
	require.Equal(t, []model.TraceID{id(2), id(1)}, ancestors)
}

func TestGetDescendantsWithDepthRespectsMaxDepth(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	ix.Insert(id(2), id(1))
	ix.Insert(id(3), id(2))

	out := ix.GetDescendantsWithDepth(id(1), 1, 0)
	require.Len(t, out, 2) // self + depth-1 child only
}

func TestGetDescendantsWithDepthRespectsMaxNodes(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	for i := uint64(2); i <= 10; i++ {
		ix.Insert(id(i), id(1))
	}
	out := ix.GetDescendantsWithDepth(id(1), 0, 3)
	require.Len(t, out, 3)
}

func TestGetPathFindsAncestorWalk(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	ix.Insert(id(2), id(1))
	ix.Insert(id(3), id(2))

	path, ok := ix.GetPath(id(1), id(3))
	require.True(t, ok)
	require.Equal(t, []model.TraceID{id(1), id(2), id(3)}, path)
}

func TestGetPathReturnsFalseWhenNotDescendant(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	ix.Insert(id(2), model.Zero)

	_, ok := ix.GetPath(id(1), id(2))
	require.False(t, ok)
}

func TestInsertRejectsCycle(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	ix.Insert(id(2), id(1))
	ok := ix.Insert(id(1), id(2))
	require.False(t, ok)
}

func TestInfluenceMonotoneInDescendants(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	ix.Insert(id(2), model.Zero)
	ix.Insert(id(3), id(1))
	ix.Insert(id(4), id(1))
	ix.Insert(id(5), id(3))

	require.Greater(t, ix.Influence(id(1)), ix.Influence(id(2)))
}

func TestInfluenceOfLeafIsZero(t *testing.T) {
	ix := New()
	ix.Insert(id(1), model.Zero)
	require.Equal(t, 0.0, ix.Influence(id(1)))
}
