package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openmemory/core/internal/model"
)

func TestClassify_SectorRouting(t *testing.T) {
	c := New(0.6)

	res := c.Classify("", "I remember visiting Tokyo last spring")
	require.Equal(t, model.SectorEpisodic, res.Primary)

	res = c.Classify("", "The speed of light is constant")
	require.Equal(t, model.SectorSemantic, res.Primary)

	res = c.Classify("", "Step 1: npm install. Step 2: npm start")
	require.Equal(t, model.SectorProcedural, res.Primary)
}

func TestClassify_FallbackIsSemanticLowConfidence(t *testing.T) {
	c := New(0.6)
	res := c.Classify("", "asdkjasdalksjd qwoieqwoie")
	require.Equal(t, model.SectorSemantic, res.Primary)
	require.Equal(t, fallbackConfidence, res.Confidence)
}

func TestLogisticModel_TrainAndPredict(t *testing.T) {
	m := NewLogisticModel(model.AllSectors)
	examples := []TrainExample{
		{Vec: []float64{1, 0, 0}, Sector: model.SectorEpisodic},
		{Vec: []float64{1, 0.1, 0}, Sector: model.SectorEpisodic},
		{Vec: []float64{0, 1, 0}, Sector: model.SectorSemantic},
		{Vec: []float64{0, 0.9, 0.1}, Sector: model.SectorSemantic},
	}
	m.Train(examples, 0.5, 200)
	require.Equal(t, 1, m.Version())

	sector, conf := m.PredictVec([]float64{1, 0, 0})
	require.Equal(t, model.SectorEpisodic, sector)
	require.Greater(t, conf, 0.5)
}

func TestClassifier_LearnedOverride(t *testing.T) {
	c := New(0.3)
	lm := c.Model("u1")
	examples := []TrainExample{
		{Vec: []float64{5, -5}, Sector: model.SectorProcedural},
		{Vec: []float64{5, -4.5}, Sector: model.SectorProcedural},
	}
	lm.Train(examples, 0.5, 300)
	lm.PredictVec([]float64{5, -5})

	res := c.Classify("u1", "The speed of light is constant")
	require.Equal(t, model.SectorProcedural, res.Primary)
}
