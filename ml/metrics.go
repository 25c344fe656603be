package ml

import (
	"errors"
	"fmt"
)

// Metrics summarizes held-out quality for one positive class.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Confusion [][]int `json:"confusion"` // [actual][predicted]
	Samples   int     `json:"samples"`
}

// Evaluate scores model on a held-out set. positive is the class code the
// precision/recall figures are reported for.
func Evaluate(model Classifier, features [][]float64, labels []int, positive int) (Metrics, error) {
	if len(features) != len(labels) {
		return Metrics{}, errors.New("features and labels size mismatch")
	}
	if len(features) == 0 {
		return Metrics{}, nil
	}
	nClasses := model.NumClasses()
	confusion := make([][]int, nClasses)
	for i := range confusion {
		confusion[i] = make([]int, nClasses)
	}

	var correct, truePositive, predictedPositive, actualPositive int
	for i, feature := range features {
		label, err := model.Predict(feature)
		if err != nil {
			return Metrics{}, fmt.Errorf("row %d: %w", i, err)
		}
		actual := labels[i]
		if actual >= 0 && actual < nClasses {
			confusion[actual][label]++
		}
		if label == actual {
			correct++
		}
		if label == positive {
			predictedPositive++
		}
		if actual == positive {
			actualPositive++
			if label == positive {
				truePositive++
			}
		}
	}

	m := Metrics{
		Accuracy:  float64(correct) / float64(len(features)),
		Confusion: confusion,
		Samples:   len(features),
	}
	if predictedPositive > 0 {
		m.Precision = float64(truePositive) / float64(predictedPositive)
	}
	if actualPositive > 0 {
		m.Recall = float64(truePositive) / float64(actualPositive)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, nil
}
