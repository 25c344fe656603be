package predictor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"loanapproval/ml"
)

// Paths locates the two artifacts written by the trainer.
type Paths struct {
	Model    string
	Encoders string
}

type Options struct {
	// StrictEncoders rejects a categorical field without an encoder instead of
	// encoding it as 0.
	StrictEncoders bool
	ApprovedLabel  string
	// CacheSize bounds the per-predictor result cache; 0 disables it.
	CacheSize  int
	Thresholds Thresholds
	Logger     *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		ApprovedLabel: ml.DefaultApprovedLabel,
		CacheSize:     1024,
		Thresholds:    DefaultThresholds(),
	}
}

// Bundle is the immutable pair of loaded artifacts.
type Bundle struct {
	Model    ml.Classifier
	Meta     ml.ArtifactMeta
	Encoders ml.EncoderSet
	Paths    Paths
	LoadedAt time.Time

	approvedCode int
	classLabels  []string
}

// Version identifies the artifacts, preferring the model's recorded version.
func (b *Bundle) Version() string {
	if b.Meta.Version != "" {
		return b.Meta.Version
	}
	return b.Meta.CreatedAt.UTC().Format(time.RFC3339)
}

func (b *Bundle) ClassLabels() []string { return append([]string(nil), b.classLabels...) }

// Scores returns the held-out evaluation recorded with the model, or nil when
// the artifact carries none.
func (b *Bundle) Scores() map[string]float64 {
	m := b.Meta.Metrics
	if m == nil {
		return nil
	}
	return map[string]float64{
		"accuracy":  m.Accuracy,
		"precision": m.Precision,
		"recall":    m.Recall,
		"f1":        m.F1,
	}
}

// LoadBundle reads and cross-checks both artifacts.
func LoadBundle(paths Paths, approvedLabel string) (*Bundle, error) {
	model, meta, err := ml.LoadModel(paths.Model)
	if err != nil {
		return nil, &ArtifactLoadError{Path: paths.Model, Err: err}
	}
	if err := ml.CheckSchema(meta, model); err != nil {
		return nil, &ArtifactLoadError{Path: paths.Model, Err: err}
	}
	encoders, _, err := ml.LoadEncoders(paths.Encoders)
	if err != nil {
		return nil, &ArtifactLoadError{Path: paths.Encoders, Err: err}
	}

	b := &Bundle{
		Model:    model,
		Meta:     *meta,
		Encoders: encoders,
		Paths:    paths,
		LoadedAt: time.Now(),
	}
	if err := b.resolveClasses(approvedLabel); err != nil {
		return nil, &ArtifactLoadError{Path: paths.Model, Err: err}
	}
	return b, nil
}

// resolveClasses finds the class labels and the code of the approved label:
// from the target encoder, else from the model metadata, else code 1.
func (b *Bundle) resolveClasses(approvedLabel string) error {
	n := b.Model.NumClasses()
	target := b.Meta.Target
	if target == "" {
		target = ml.DefaultTargetColumn
	}
	switch enc, ok := b.Encoders[target]; {
	case ok:
		b.classLabels = enc.Classes()
	case len(b.Meta.ClassLabels) > 0:
		b.classLabels = append([]string(nil), b.Meta.ClassLabels...)
	default:
		b.classLabels = make([]string, n)
		for i := range b.classLabels {
			b.classLabels[i] = strconv.Itoa(i)
		}
		b.approvedCode = 1
		if n < 2 {
			return fmt.Errorf("model has %d classes", n)
		}
		return nil
	}
	if len(b.classLabels) != n {
		return fmt.Errorf("model has %d classes, target encoder has %d", n, len(b.classLabels))
	}
	b.approvedCode = -1
	for i, label := range b.classLabels {
		if label == approvedLabel {
			b.approvedCode = i
		}
	}
	if b.approvedCode < 0 {
		return fmt.Errorf("approved label %q is not a class (%s)", approvedLabel, strings.Join(b.classLabels, ", "))
	}
	return nil
}

// FeatureValue echoes one submitted field and the number fed to the classifier.
type FeatureValue struct {
	Name    string  `json:"name"`
	Value   string  `json:"value"`
	Encoded float64 `json:"encoded"`
}

// Result of one submission.
type Result struct {
	ID           string         `json:"id"`
	Approved     bool           `json:"approved"`
	Label        string         `json:"label"`
	Probability  float64        `json:"probability"`
	Features     []FeatureValue `json:"features"`
	Flags        []Flag         `json:"flags"`
	Defaulted    []string       `json:"defaulted,omitempty"`
	ModelVersion string         `json:"model_version"`
	Cached       bool           `json:"cached"`
	Elapsed      time.Duration  `json:"-"`
}

type outcome struct {
	class int
	proba []float64
}

// Predictor serves predictions from one Bundle. It is safe for concurrent use.
type Predictor struct {
	bundle *Bundle
	opts   Options
	cache  *lru.Cache[string, outcome]
	logger *zap.Logger
}

// Load reads the artifacts and builds a Predictor. Load failures are returned
// as *ArtifactLoadError.
func Load(paths Paths, opts Options) (*Predictor, error) {
	if opts.ApprovedLabel == "" {
		opts.ApprovedLabel = ml.DefaultApprovedLabel
	}
	bundle, err := LoadBundle(paths, opts.ApprovedLabel)
	if err != nil {
		return nil, err
	}
	return New(bundle, opts)
}

// New wraps an already loaded bundle.
func New(bundle *Bundle, opts Options) (*Predictor, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	p := &Predictor{bundle: bundle, opts: opts, logger: opts.Logger}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, outcome](opts.CacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

func (p *Predictor) Bundle() *Bundle { return p.bundle }

// Predict validates, encodes and classifies one applicant.
func (p *Predictor) Predict(app ml.Applicant) (*Result, error) {
	start := time.Now()
	if err := app.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	policy := ml.MissingEncoderZero
	if p.opts.StrictEncoders {
		policy = ml.MissingEncoderFail
		for _, column := range ml.CategoricalFeatures() {
			if _, ok := p.bundle.Encoders[column]; !ok {
				value, _ := app.Categorical(column)
				return nil, &UnencodableInputError{Field: column, Value: value, Err: ml.ErrMissingEncoder}
			}
		}
	}

	vector, defaulted, err := p.bundle.Encoders.Vector(app, policy)
	if err != nil {
		var unseen *ml.UnseenLabelError
		if errors.As(err, &unseen) {
			return nil, &UnencodableInputError{Field: unseen.Column, Value: unseen.Label, Known: unseen.Known, Err: err}
		}
		return nil, &ValidationError{Err: err}
	}
	for _, column := range defaulted {
		value, _ := app.Categorical(column)
		p.logger.Warn("no encoder for categorical field, encoding as 0",
			zap.String("field", column),
			zap.String("value", value),
		)
	}

	out, cached, err := p.classify(vector)
	if err != nil {
		return nil, err
	}

	class := decide(out.proba, p.bundle.approvedCode)
	values := app.Values()
	features := make([]FeatureValue, len(vector))
	for i, name := range ml.FeatureNames() {
		features[i] = FeatureValue{Name: name, Value: values[i], Encoded: vector[i]}
	}
	return &Result{
		ID:           uuid.NewString(),
		Approved:     class == p.bundle.approvedCode,
		Label:        p.bundle.classLabels[class],
		Probability:  out.proba[p.bundle.approvedCode] * 100,
		Features:     features,
		Flags:        Flags(app, p.opts.Thresholds),
		Defaulted:    defaulted,
		ModelVersion: p.bundle.Version(),
		Cached:       cached,
		Elapsed:      time.Since(start),
	}, nil
}

// classify runs the classifier, converting errors and panics into
// *PredictionInvocationError.
func (p *Predictor) classify(vector []float64) (out outcome, cached bool, err error) {
	key := cacheKey(vector)
	if p.cache != nil {
		if hit, ok := p.cache.Get(key); ok {
			return hit, true, nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("classifier panic", zap.Any("panic", r))
			err = &PredictionInvocationError{Err: fmt.Errorf("classifier panic: %v", r)}
		}
	}()

	class, err := p.bundle.Model.Predict(vector)
	if err != nil {
		return outcome{}, false, &PredictionInvocationError{Err: err}
	}
	proba, err := p.bundle.Model.PredictProba(vector)
	if err != nil {
		return outcome{}, false, &PredictionInvocationError{Err: err}
	}
	if class < 0 || class >= len(p.bundle.classLabels) || len(proba) != len(p.bundle.classLabels) {
		return outcome{}, false, &PredictionInvocationError{
			Err: fmt.Errorf("classifier returned class %d with %d probabilities for %d classes", class, len(proba), len(p.bundle.classLabels)),
		}
	}

	out = outcome{class: class, proba: proba}
	if p.cache != nil {
		p.cache.Add(key, out)
	}
	return out, false, nil
}

// decide picks the most probable class. A tie with the approved class
// resolves to approval, so for two classes the decision is approved exactly
// when its probability is at least one half, whatever code it was given.
func decide(proba []float64, approved int) int {
	best := approved
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return best
}

func cacheKey(vector []float64) string {
	var sb strings.Builder
	for i, v := range vector {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}
