package vectorindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndSearchFindsSelf(t *testing.T) {
	ix := New(Params{M: 8, EfConstruction: 64, EfSearch: 32})
	v := []float32{1, 0, 0, 0}
	require.NoError(t, ix.Insert("a", v))
	require.NoError(t, ix.Insert("b", []float32{0, 1, 0, 0}))

	hits, err := ix.Search(v, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "a", hits[0].ID)
	require.InDelta(t, 0.0, hits[0].Distance, 1e-6)
}

func TestSearchOnEmptyIndexReturnsNoHits(t *testing.T) {
	ix := New(Params{})
	hits, err := ix.Search([]float32{1, 2, 3}, 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestSearchRejectsNonPositiveK(t *testing.T) {
	ix := New(Params{})
	_, err := ix.Search([]float32{1}, 0)
	require.Error(t, err)
}

func TestLenTracksInserts(t *testing.T) {
	ix := New(Params{})
	require.Equal(t, 0, ix.Len())
	require.NoError(t, ix.Insert("a", []float32{1, 0}))
	require.Equal(t, 1, ix.Len())
	// duplicate insert is a no-op
	require.NoError(t, ix.Insert("a", []float32{1, 0}))
	require.Equal(t, 1, ix.Len())
}
