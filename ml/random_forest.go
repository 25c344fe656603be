package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// RandomForest is a bagged ensemble of decision trees. Class probabilities are
// the mean of the per-tree leaf distributions.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Bootstrap       bool
	RandomState     int64

	Trees      []*DecisionTree
	nClasses   int
	nFeatures  int
	minClasses int
}

// RandomForestOption functional config for RandomForest
type RandomForestOption func(*RandomForest)

func WithNEstimators(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.NEstimators = n }
}

func WithBootstrap(b bool) RandomForestOption {
	return func(rf *RandomForest) { rf.Bootstrap = b }
}

func WithForestMaxDepth(d int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxDepth = d }
}

func WithForestMinSplit(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.MinSamplesSplit = n }
}

func WithForestMaxFeatures(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.MaxFeatures = n }
}

func WithRandomState(seed int64) RandomForestOption {
	return func(rf *RandomForest) { rf.RandomState = seed }
}

// WithNumClasses fixes the class count to at least n, so a training sample
// missing the highest class still yields a model shaped for every class.
func WithNumClasses(n int) RandomForestOption {
	return func(rf *RandomForest) { rf.minClasses = n }
}

// NewRandomForest initializes the forest with sensible defaults: 100 unbounded
// trees, sqrt(n_features) candidates per split, bootstrap sampling.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MaxFeatures:     0,
		Bootstrap:       true,
		RandomState:     42,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

func (rf *RandomForest) Type() string { return ModelTypeRandomForest }

// Train fits every tree concurrently. Each tree owns its random source, seeded
// from RandomState and its position, so the fitted forest is reproducible.
func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := checkTrainingSet(features, labels); err != nil {
		return fmt.Errorf("randomforest: %w", err)
	}
	if rf.NEstimators <= 0 {
		return errors.New("randomforest: n_estimators must be positive")
	}
	n := len(features)
	nClasses := countClasses(labels)
	if rf.minClasses > nClasses {
		nClasses = rf.minClasses
	}

	trees := make([]*DecisionTree, rf.NEstimators)
	var wg sync.WaitGroup
	errCh := make(chan error, rf.NEstimators)

	for i := 0; i < rf.NEstimators; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			seed := rf.RandomState + int64(idx)
			treeRand := rand.New(rand.NewSource(seed))
			sampleIndices := make([]int, n)
			for j := 0; j < n; j++ {
				if rf.Bootstrap {
					sampleIndices[j] = treeRand.Intn(n)
				} else {
					sampleIndices[j] = j
				}
			}

			tree := NewDecisionTree(
				WithMaxDepth(rf.MaxDepth),
				WithMinSamplesSplit(rf.MinSamplesSplit),
				WithMaxFeatures(rf.MaxFeatures),
				WithTreeRandomState(seed),
			)
			if err := tree.fit(features, labels, sampleIndices, nClasses); err != nil {
				errCh <- fmt.Errorf("tree %d: %w", idx, err)
				return
			}
			trees[idx] = tree
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return fmt.Errorf("randomforest: %w", err)
		}
	}
	rf.Trees = trees
	rf.nClasses = nClasses
	rf.nFeatures = len(features[0])
	return nil
}

// PredictProba averages the class distributions of all trees.
func (rf *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if len(rf.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	proba := make([]float64, rf.nClasses)
	for i, tree := range rf.Trees {
		dist, err := tree.PredictProba(features)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		for c, p := range dist {
			proba[c] += p
		}
	}
	for c := range proba {
		proba[c] /= float64(len(rf.Trees))
	}
	return proba, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForest) Predict(features []float64) (int, error) {
	proba, err := rf.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

func (rf *RandomForest) NumClasses() int { return rf.nClasses }

func (rf *RandomForest) NumFeatures() int { return rf.nFeatures }

func (rf *RandomForest) Save(path string) error {
	return SaveModel(path, rf, ArtifactMeta{})
}

func (rf *RandomForest) Load(path string) error {
	loaded, _, err := LoadModel(path)
	if err != nil {
		return err
	}
	forest, ok := loaded.(*RandomForest)
	if !ok {
		return fmt.Errorf("%s holds a %T, not a random forest", path, loaded)
	}
	*rf = *forest
	return nil
}

type randomForestJSON struct {
	NEstimators     int             `json:"n_estimators"`
	MaxDepth        int             `json:"max_depth"`
	MinSamplesSplit int             `json:"min_samples_split"`
	MaxFeatures     int             `json:"max_features"`
	Bootstrap       bool            `json:"bootstrap"`
	RandomState     int64           `json:"random_state"`
	NumClasses      int             `json:"n_classes"`
	NumFeatures     int             `json:"n_features"`
	Trees           []*DecisionTree `json:"trees"`
}

func (rf *RandomForest) MarshalJSON() ([]byte, error) {
	if len(rf.Trees) == 0 {
		return nil, errors.New("model not trained")
	}
	return json.Marshal(randomForestJSON{
		NEstimators:     rf.NEstimators,
		MaxDepth:        rf.MaxDepth,
		MinSamplesSplit: rf.MinSamplesSplit,
		MaxFeatures:     rf.MaxFeatures,
		Bootstrap:       rf.Bootstrap,
		RandomState:     rf.RandomState,
		NumClasses:      rf.nClasses,
		NumFeatures:     rf.nFeatures,
		Trees:           rf.Trees,
	})
}

func (rf *RandomForest) UnmarshalJSON(data []byte) error {
	var raw randomForestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for i, tree := range raw.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d is null", i)
		}
		if tree.NumClasses() != raw.NumClasses || tree.NumFeatures() != raw.NumFeatures {
			return fmt.Errorf("tree %d: shape %dx%d does not match forest %dx%d",
				i, tree.NumClasses(), tree.NumFeatures(), raw.NumClasses, raw.NumFeatures)
		}
	}
	*rf = RandomForest{
		NEstimators:     raw.NEstimators,
		MaxDepth:        raw.MaxDepth,
		MinSamplesSplit: raw.MinSamplesSplit,
		MaxFeatures:     raw.MaxFeatures,
		Bootstrap:       raw.Bootstrap,
		RandomState:     raw.RandomState,
		Trees:           raw.Trees,
		nClasses:        raw.NumClasses,
		nFeatures:       raw.NumFeatures,
	}
	return nil
}
