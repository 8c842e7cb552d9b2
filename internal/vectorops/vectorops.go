// Package vectorops implements the numeric primitives of spec §4.3:
// normalisation, cosine/Euclidean distance and batch top-k selection.
// These are pure functions with no I/O so the vector store and HSG engine
// can share them without caring which backend produced the vectors.
package vectorops

import (
	"math"
	"sort"
)

// Norm returns the Euclidean (L2) norm of v.
func Norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// Normalize returns a copy of v scaled to unit norm. A zero-norm input is
// returned unchanged (as a copy) rather than dividing by zero.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Cosine computes cosine similarity between a and b. Per spec §4.3 it MUST
// guard zero-norm vectors (returns 0) and unequal lengths (returns 0), and
// is deterministic/IEEE-754-stable for identical inputs.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// EuclideanDistance computes L2 distance between a and b. Unequal lengths
// return +Inf so callers sorting ascending naturally push them last.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return math.Sqrt(s)
}

// Scored is a generic (id, score) pair used by batch top-k search.
type Scored struct {
	ID    string
	Score float64
}

// BatchTopKCosine scores query against every candidate by cosine
// similarity and returns the top k, descending by score, ties broken by id
// ascending (spec §4.3).
func BatchTopKCosine(query []float32, candidates map[string][]float32, k int) []Scored {
	out := make([]Scored, 0, len(candidates))
	for id, v := range candidates {
		out = append(out, Scored{ID: id, Score: Cosine(query, v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// MaxCosineAcrossSectors returns the maximum cosine similarity between any
// vector in a and any vector in b sharing the same sector key, used by the
// HSG similarity feature (spec §4.8 step 5) where a candidate may hold
// multiple sector vectors.
func MaxCosineAcrossSectors(a, b map[string][]float32) float64 {
	best := 0.0
	for sector, av := range a {
		bv, ok := b[sector]
		if !ok {
			continue
		}
		if c := Cosine(av, bv); c > best {
			best = c
		}
	}
	return best
}
