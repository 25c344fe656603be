package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainTestSplit(t *testing.T) {
	features := make([][]float64, 10)
	labels := make([]int, 10)
	for i := range features {
		features[i] = []float64{float64(i)}
		labels[i] = i % 2
	}

	tests := []struct {
		name      string
		ratio     float64
		wantTest  int
		wantTrain int
	}{
		{"twenty percent", 0.2, 2, 8},
		{"rounds up", 0.25, 3, 7},
		{"invalid ratio falls back", 0, 2, 8},
		{"keeps one training row", 0.99, 9, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trainX, trainY, testX, testY := TrainTestSplit(features, labels, tt.ratio, 42)
			assert.Len(t, testX, tt.wantTest)
			assert.Len(t, testY, tt.wantTest)
			assert.Len(t, trainX, tt.wantTrain)
			assert.Len(t, trainY, tt.wantTrain)

			seen := map[float64]bool{}
			for _, row := range append(append([][]float64{}, trainX...), testX...) {
				assert.False(t, seen[row[0]], "row %v in both partitions", row[0])
				seen[row[0]] = true
			}
			assert.Len(t, seen, len(features))
		})
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	features := make([][]float64, 50)
	labels := make([]int, 50)
	for i := range features {
		features[i] = []float64{float64(i)}
	}
	_, _, a, _ := TrainTestSplit(features, labels, 0.2, 7)
	_, _, b, _ := TrainTestSplit(features, labels, 0.2, 7)
	assert.Equal(t, a, b)
}
