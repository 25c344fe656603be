package ml

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBlobs returns a noisy but mostly separable binary problem.
func twoBlobs(n int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	features := make([][]float64, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		label := i % 2
		center := float64(label) * 4
		features[i] = []float64{center + rnd.NormFloat64(), rnd.Float64(), center + rnd.NormFloat64()}
		labels[i] = label
	}
	return features, labels
}

func TestRandomForestLearnsSeparableData(t *testing.T) {
	features, labels := twoBlobs(200, 7)
	trainX, trainY, testX, testY := TrainTestSplit(features, labels, 0.2, 42)

	forest := NewRandomForest(WithNEstimators(25), WithRandomState(3))
	require.NoError(t, forest.Train(trainX, trainY))
	assert.Equal(t, 2, forest.NumClasses())
	assert.Equal(t, 3, forest.NumFeatures())
	assert.Len(t, forest.Trees, 25)

	metrics, err := Evaluate(forest, testX, testY, 1)
	require.NoError(t, err)
	assert.Greater(t, metrics.Accuracy, 0.9)
	assert.Equal(t, len(testX), metrics.Samples)
}

func TestRandomForestProbabilityConsistency(t *testing.T) {
	features, labels := twoBlobs(120, 11)
	forest := NewRandomForest(WithNEstimators(15))
	require.NoError(t, forest.Train(features, labels))

	probe := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		x := []float64{probe.Float64()*8 - 2, probe.Float64(), probe.Float64()*8 - 2}
		proba, err := forest.PredictProba(x)
		require.NoError(t, err)
		require.Len(t, proba, 2)
		assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-9)
		assert.GreaterOrEqual(t, proba[1], 0.0)
		assert.LessOrEqual(t, proba[1], 1.0)

		label, err := forest.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, proba[1] >= 0.5, label == 1, "label %d with p=%f", label, proba[1])
	}
}

func TestRandomForestIsDeterministic(t *testing.T) {
	features, labels := twoBlobs(80, 2)
	a := NewRandomForest(WithNEstimators(10), WithRandomState(99))
	b := NewRandomForest(WithNEstimators(10), WithRandomState(99))
	require.NoError(t, a.Train(features, labels))
	require.NoError(t, b.Train(features, labels))

	for _, x := range features {
		pa, err := a.PredictProba(x)
		require.NoError(t, err)
		pb, err := b.PredictProba(x)
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
	}
}

func TestRandomForestSaveLoadRoundTrip(t *testing.T) {
	features, labels := twoBlobs(60, 4)
	forest := NewRandomForest(WithNEstimators(8))
	require.NoError(t, forest.Train(features, labels))

	path := filepath.Join(t.TempDir(), "forest.json")
	require.NoError(t, SaveModel(path, forest, ArtifactMeta{Version: "v1", FeatureNames: []string{"a", "b", "c"}}))

	loaded, meta, err := LoadModel(path)
	require.NoError(t, err)
	assert.Equal(t, ModelTypeRandomForest, meta.ModelType)
	assert.Equal(t, "v1", meta.Version)

	for _, x := range features {
		want, _ := forest.PredictProba(x)
		got, err := loaded.PredictProba(x)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestRandomForestRejectsEmptyInput(t *testing.T) {
	forest := NewRandomForest()
	assert.Error(t, forest.Train(nil, nil))
	_, err := forest.Predict([]float64{1})
	assert.Error(t, err)
}

func TestRandomForestWithNumClasses(t *testing.T) {
	features := [][]float64{{1}, {2}, {3}, {4}}
	labels := []int{0, 0, 0, 0}

	plain := NewRandomForest(WithNEstimators(3))
	require.NoError(t, plain.Train(features, labels))
	assert.Equal(t, 1, plain.NumClasses())

	forest := NewRandomForest(WithNEstimators(3), WithNumClasses(2))
	require.NoError(t, forest.Train(features, labels))
	assert.Equal(t, 2, forest.NumClasses())
	proba, err := forest.PredictProba([]float64{2})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, proba)
}
