package embedder

import (
	"context"
	"hash/fnv"

	"github.com/openmemory/core/internal/model"
)

// Fake is a deterministic, dependency-free Embedder used by tests and by
// the memory core's keyword-fallback tests. It derives a vector from a
// hash of the text so identical inputs always embed identically, without
// requiring a live model (spec §6.1 only requires determinism, not a
// particular model).
type Fake struct {
	Dim int
	// Fail, when set, causes every embed call to return this error,
	// exercising the memory core's "fall through to keyword-only
	// indexing" path (spec §4.4 Failures).
	Fail error
}

func NewFake(dim int) *Fake { return &Fake{Dim: dim} }

func (f *Fake) EmbedMultiSector(_ context.Context, text string, sectors []model.Sector) ([]SectorVector, error) {
	if f.Fail != nil {
		return nil, f.Fail
	}
	out := make([]SectorVector, 0, len(sectors))
	for _, s := range sectors {
		out = append(out, SectorVector{Sector: s, Values: f.vec(text, s), Dim: f.Dim})
	}
	return out, nil
}

func (f *Fake) EmbedQueryForAllSectors(_ context.Context, text string) (map[model.Sector][]float32, error) {
	if f.Fail != nil {
		return nil, f.Fail
	}
	out := make(map[model.Sector][]float32, len(model.AllSectors))
	for _, s := range model.AllSectors {
		out[s] = f.vec(text, s)
	}
	return out, nil
}

func (f *Fake) vec(text string, sector model.Sector) []float32 {
	dim := f.Dim
	if dim <= 0 {
		dim = 8
	}
	v := make([]float32, dim)
	seed := fnv.New64a()
	_, _ = seed.Write([]byte(string(sector)))
	_, _ = seed.Write([]byte(text))
	state := seed.Sum64()
	for i := 0; i < dim; i++ {
		state = state*6364136223846793005 + 1442695040888963407
		// map to [0, 1)
		v[i] = float32(int64(state>>40)%1000) / 1000.0
	}
	return v
}
