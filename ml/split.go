package ml

import (
	"math"
	"math/rand"
)

// TrainTestSplit shuffles rows with a fixed seed and holds out
// ceil(n*testRatio) of them. The same seed always yields the same partition.
func TrainTestSplit(features [][]float64, labels []int, testRatio float64, seed int64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}
	n := len(features)
	rnd := rand.New(rand.NewSource(seed))
	indices := rnd.Perm(n)

	testSize := int(math.Ceil(float64(n) * testRatio))
	if testSize >= n {
		testSize = n - 1
	}
	if testSize < 0 {
		testSize = 0
	}
	for i, idx := range indices {
		if i < testSize {
			testX = append(testX, features[idx])
			testY = append(testY, labels[idx])
		} else {
			trainX = append(trainX, features[idx])
			trainY = append(trainY, labels[idx])
		}
	}
	return trainX, trainY, testX, testY
}
