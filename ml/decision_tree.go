package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// DecisionTree is a CART classifier with Gini impurity. Nodes are stored in a
// flat slice; children always come after their parent.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	RandomState     int64

	nodes     []TreeNode
	nClasses  int
	nFeatures int
	rnd       *rand.Rand
}

type TreeNode struct {
	FeatureIdx   int       `json:"feature_idx"`
	Threshold    float64   `json:"threshold"`
	LeftChild    int       `json:"left_child"`
	RightChild   int       `json:"right_child"`
	ClassLabel   int       `json:"class_label"`
	IsLeaf       bool      `json:"is_leaf"`
	Samples      int       `json:"samples"`
	Distribution []float64 `json:"distribution,omitempty"`
}

// TreeOption configures a DecisionTree.
type TreeOption func(*DecisionTree)

func WithMaxDepth(d int) TreeOption {
	return func(t *DecisionTree) { t.MaxDepth = d }
}

func WithMinSamplesSplit(n int) TreeOption {
	return func(t *DecisionTree) { t.MinSamplesSplit = n }
}

func WithMaxFeatures(n int) TreeOption {
	return func(t *DecisionTree) { t.MaxFeatures = n }
}

func WithTreeRandomState(seed int64) TreeOption {
	return func(t *DecisionTree) { t.RandomState = seed }
}

// NewDecisionTree returns an unbounded tree that considers every feature at
// each split.
func NewDecisionTree(opts ...TreeOption) *DecisionTree {
	dt := &DecisionTree{
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MaxFeatures:     -1,
	}
	for _, o := range opts {
		o(dt)
	}
	return dt
}

func (dt *DecisionTree) Type() string { return ModelTypeDecisionTree }

// Train fits the tree on every row.
func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if err := checkTrainingSet(features, labels); err != nil {
		return err
	}
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	return dt.fit(features, labels, indices, countClasses(labels))
}

// fit grows the tree on the given sample indices. Indices may repeat, which
// is how bootstrap samples are weighted.
func (dt *DecisionTree) fit(features [][]float64, labels []int, indices []int, nClasses int) error {
	if len(indices) == 0 {
		return errors.New("decision tree: no samples")
	}
	if dt.MinSamplesSplit < 2 {
		dt.MinSamplesSplit = 2
	}
	dt.nClasses = nClasses
	dt.nFeatures = len(features[0])
	dt.rnd = rand.New(rand.NewSource(dt.RandomState))
	dt.nodes = dt.nodes[:0]
	dt.build(features, labels, indices, 0)
	dt.rnd = nil
	return nil
}

func (dt *DecisionTree) Predict(features []float64) (int, error) {
	proba, err := dt.PredictProba(features)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

// PredictProba returns the class distribution of the leaf features falls in.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return append([]float64(nil), leaf.Distribution...), nil
}

func (dt *DecisionTree) NumClasses() int { return dt.nClasses }

func (dt *DecisionTree) NumFeatures() int { return dt.nFeatures }

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	if len(features) != dt.nFeatures {
		return nil, fmt.Errorf("expected %d features, got %d", dt.nFeatures, len(features))
	}
	idx := 0
	for {
		node := &dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.nodes) {
			return nil, errors.New("invalid tree state")
		}
	}
}

func (dt *DecisionTree) Save(path string) error {
	return SaveModel(path, dt, ArtifactMeta{})
}

func (dt *DecisionTree) Load(path string) error {
	loaded, _, err := LoadModel(path)
	if err != nil {
		return err
	}
	tree, ok := loaded.(*DecisionTree)
	if !ok {
		return fmt.Errorf("%s holds a %T, not a decision tree", path, loaded)
	}
	*dt = *tree
	return nil
}

type decisionTreeJSON struct {
	MaxDepth        int        `json:"max_depth"`
	MinSamplesSplit int        `json:"min_samples_split"`
	MaxFeatures     int        `json:"max_features"`
	RandomState     int64      `json:"random_state"`
	NumClasses      int        `json:"n_classes"`
	NumFeatures     int        `json:"n_features"`
	Nodes           []TreeNode `json:"nodes"`
}

func (dt *DecisionTree) MarshalJSON() ([]byte, error) {
	if len(dt.nodes) == 0 {
		return nil, errors.New("model not trained")
	}
	return json.Marshal(decisionTreeJSON{
		MaxDepth:        dt.MaxDepth,
		MinSamplesSplit: dt.MinSamplesSplit,
		MaxFeatures:     dt.MaxFeatures,
		RandomState:     dt.RandomState,
		NumClasses:      dt.nClasses,
		NumFeatures:     dt.nFeatures,
		Nodes:           dt.nodes,
	})
}

func (dt *DecisionTree) UnmarshalJSON(data []byte) error {
	var raw decisionTreeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := validateNodes(raw.Nodes, raw.NumClasses, raw.NumFeatures); err != nil {
		return err
	}
	*dt = DecisionTree{
		MaxDepth:        raw.MaxDepth,
		MinSamplesSplit: raw.MinSamplesSplit,
		MaxFeatures:     raw.MaxFeatures,
		RandomState:     raw.RandomState,
		nodes:           raw.Nodes,
		nClasses:        raw.NumClasses,
		nFeatures:       raw.NumFeatures,
	}
	return nil
}

func validateNodes(nodes []TreeNode, nClasses, nFeatures int) error {
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	if nClasses < 1 || nFeatures < 1 {
		return fmt.Errorf("invalid tree shape: %d classes, %d features", nClasses, nFeatures)
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if len(node.Distribution) != nClasses {
				return fmt.Errorf("node %d: distribution has %d classes, want %d", i, len(node.Distribution), nClasses)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= nFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(nodes) || node.RightChild <= i || node.RightChild >= len(nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

// build appends the subtree for indices and returns the index of its root.
func (dt *DecisionTree) build(features [][]float64, labels []int, indices []int, depth int) int {
	counts := make([]int, dt.nClasses)
	for _, i := range indices {
		counts[labels[i]]++
	}

	self := len(dt.nodes)
	dt.nodes = append(dt.nodes, leafNode(counts, len(indices)))

	if (dt.MaxDepth > 0 && depth >= dt.MaxDepth) || len(indices) < dt.MinSamplesSplit || isPure(counts) {
		return self
	}

	feature, threshold, ok := dt.findBestSplit(features, labels, indices, counts)
	if !ok {
		return self
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	leftIdx := dt.build(features, labels, left, depth+1)
	rightIdx := dt.build(features, labels, right, depth+1)

	node := &dt.nodes[self]
	node.IsLeaf = false
	node.FeatureIdx = feature
	node.Threshold = threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.Distribution = nil
	return self
}

// findBestSplit draws MaxFeatures candidate features and keeps drawing past
// that budget only while no valid split has been found.
func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, indices []int, total []int) (int, float64, bool) {
	budget := dt.featureBudget()
	order := dt.rnd.Perm(dt.nFeatures)

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64

	sorted := make([]int, len(indices))
	left := make([]int, dt.nClasses)
	right := make([]int, dt.nClasses)
	n := len(indices)

	for visited, f := range order {
		if visited >= budget && bestFeature >= 0 {
			break
		}
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return features[sorted[a]][f] < features[sorted[b]][f]
		})

		for c := range left {
			left[c] = 0
			right[c] = total[c]
		}
		for j := 0; j < n-1; j++ {
			label := labels[sorted[j]]
			left[label]++
			right[label]--

			cur := features[sorted[j]][f]
			next := features[sorted[j+1]][f]
			if cur == next {
				continue
			}
			nl := j + 1
			impurity := (float64(nl)*giniCounts(left, nl) + float64(n-nl)*giniCounts(right, n-nl)) / float64(n)
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
				if bestThreshold >= next {
					bestThreshold = cur
				}
			}
		}
	}
	if bestFeature < 0 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

func (dt *DecisionTree) featureBudget() int {
	k := dt.MaxFeatures
	switch {
	case k < 0 || k > dt.nFeatures:
		k = dt.nFeatures
	case k == 0:
		k = int(math.Sqrt(float64(dt.nFeatures)))
	}
	if k < 1 {
		k = 1
	}
	return k
}

func leafNode(counts []int, samples int) TreeNode {
	dist := make([]float64, len(counts))
	for c, count := range counts {
		dist[c] = float64(count) / float64(samples)
	}
	return TreeNode{
		FeatureIdx:   -1,
		LeftChild:    -1,
		RightChild:   -1,
		ClassLabel:   argmax(dist),
		IsLeaf:       true,
		Samples:      samples,
		Distribution: dist,
	}
}

func giniCounts(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		impurity -= p * p
	}
	return impurity
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// argmax breaks ties toward the higher class code, so for a binary model
// class 1 wins at exactly 0.5.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] >= values[best] {
			best = i
		}
	}
	return best
}

func countClasses(labels []int) int {
	highest := 0
	for _, l := range labels {
		if l > highest {
			highest = l
		}
	}
	return highest + 1
}

func checkTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature vectors are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d: expected %d features, got %d", i, width, len(row))
		}
	}
	for i, l := range labels {
		if l < 0 {
			return fmt.Errorf("row %d: negative label %d", i, l)
		}
	}
	return nil
}
