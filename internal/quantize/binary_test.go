package quantize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuantizeIdenticalVectorsZeroDistance(t *testing.T) {
	v := []float32{0.5, -0.2, 0.1, -0.9, 0.3}
	a := Quantize(v)
	b := Quantize(v)
	require.Equal(t, 0, HammingDistance(a, b))
	require.Equal(t, 0.0, ApproxCosineDistance(a, b))
}

func TestQuantizeOppositeVectorsMaxDistance(t *testing.T) {
	v := []float32{0.5, -0.2, 0.1, -0.9, 0.3}
	neg := make([]float32, len(v))
	for i, x := range v {
		neg[i] = -x
	}
	a := Quantize(v)
	b := Quantize(neg)
	require.Equal(t, len(v), HammingDistance(a, b))
	require.Equal(t, 1.0, ApproxCosineDistance(a, b))
}

func TestMemoryBytesBoundAtD1536(t *testing.T) {
	full := 4 * 1536
	quantized := MemoryBytes(1536)
	require.LessOrEqual(t, quantized, 24+(1536+7)/8)
	ratio := float64(full) / float64(quantized)
	require.GreaterOrEqual(t, ratio, 20.0)
}

func TestNormComputed(t *testing.T) {
	v := []float32{3, 4}
	e := Quantize(v)
	require.InDelta(t, 5.0, e.Norm, 1e-6)
}
