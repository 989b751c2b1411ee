package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeterministicSameTextSameVector(t *testing.T) {
	d := NewDeterministic(32, true, 7)
	a, err := d.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	b, err := d.EmbedBatch(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDeterministicDifferentTextDifferentVector(t *testing.T) {
	d := NewDeterministic(32, false, 7)
	a, _ := d.EmbedBatch(context.Background(), []string{"alpha"})
	b, _ := d.EmbedBatch(context.Background(), []string{"beta"})
	require.NotEqual(t, a, b)
}

func TestDeterministicNormalizeProducesUnitNorm(t *testing.T) {
	d := NewDeterministic(32, true, 1)
	vecs, err := d.EmbedBatch(context.Background(), []string{"some longer piece of text here"})
	require.NoError(t, err)
	var sumSq float64
	for _, x := range vecs[0] {
		sumSq += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, sumSq, 1e-3)
}

func TestDeterministicPingAlwaysSucceeds(t *testing.T) {
	d := NewDeterministic(8, false, 0)
	require.NoError(t, d.Ping(context.Background()))
}

func TestHTTPProviderEmbedBatchParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"a", "b"}, req.Input)
		resp := embedResp{}
		resp.Data = make([]struct {
			Embedding []float32 `json:"embedding"`
		}, 2)
		resp.Data[0].Embedding = []float32{1, 2}
		resp.Data[1].Embedding = []float32{3, 4}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	p := NewHTTP(HTTPConfig{BaseURL: srv.URL, Path: "/embeddings", Model: "test-model"})
	out, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 2}, {3, 4}}, out)
}

func TestHTTPProviderMismatchedCountIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	p := NewHTTP(HTTPConfig{BaseURL: srv.URL, Path: "/embeddings"})
	_, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
}

func TestHTTPProviderEmptyInputReturnsNil(t *testing.T) {
	p := NewHTTP(HTTPConfig{})
	out, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, out)
}
