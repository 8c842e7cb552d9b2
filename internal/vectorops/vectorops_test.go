package vectorops

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosine_Identical(t *testing.T) {
	v := []float32{1, 2, 3}
	require.InDelta(t, 1.0, Cosine(v, v), 1e-9)
}

func TestCosine_ZeroNorm(t *testing.T) {
	require.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 2}))
	require.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{0, 0}))
}

func TestCosine_UnequalLength(t *testing.T) {
	require.Equal(t, 0.0, Cosine([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestCosine_Orthogonal(t *testing.T) {
	require.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestNormalize_UnitNorm(t *testing.T) {
	v := Normalize([]float32{3, 4})
	require.InDelta(t, 1.0, Norm(v), 1e-6)
}

func TestStoreThenCosine_AboveThreshold(t *testing.T) {
	v := Normalize([]float32{1, 2, 3, 4, 5})
	require.Greater(t, Cosine(v, v), 0.999)
}

func TestBatchTopKCosine_OrderAndTieBreak(t *testing.T) {
	q := []float32{1, 0}
	cands := map[string][]float32{
		"b": {1, 0},
		"a": {1, 0},
		"c": {0, 1},
	}
	got := BatchTopKCosine(q, cands, 2)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "b", got[1].ID)
}

func TestMaxCosineAcrossSectors(t *testing.T) {
	a := map[string][]float32{"episodic": {1, 0}, "semantic": {0, 1}}
	b := map[string][]float32{"semantic": {0, 1}}
	require.InDelta(t, 1.0, MaxCosineAcrossSectors(a, b), 1e-9)
}
