package ml

// Classifier is the inference surface of a fitted model. Implementations are
// immutable after Train or Load and safe for concurrent readers.
type Classifier interface {
	Predict(features []float64) (int, error)
	PredictProba(features []float64) ([]float64, error)
	NumClasses() int
	NumFeatures() int
}

type MLModel interface {
	Classifier
	Type() string
	Train(features [][]float64, labels []int) error
	Save(path string) error
	Load(path string) error
}

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeRandomForest = "random_forest"
)

// NewModel returns an untrained model of the given type.
func NewModel(modelType string) (MLModel, bool) {
	switch modelType {
	case ModelTypeDecisionTree:
		return NewDecisionTree(), true
	case ModelTypeRandomForest, "":
		return NewRandomForest(), true
	default:
		return nil, false
	}
}
