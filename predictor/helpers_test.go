package predictor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"loanapproval/ml"
)

// loanTable returns a cleaned synthetic dataset in which Credit_History alone
// decides the label.
func loanTable() ([]string, [][]string) {
	header := append(ml.FeatureNames(), ml.DefaultTargetColumn)
	rows := make([][]string, 0, 200)
	for i := 0; i < 200; i++ {
		credit := 1
		label := "Y"
		if i%5 == 0 {
			credit, label = 0, "N"
		}
		term := "360"
		if i%2 == 1 {
			term = "180"
		}
		rows = append(rows, []string{
			ml.GenderValues[i%2],
			ml.MarriedValues[(i/2)%2],
			strconv.Itoa(i % 4),
			ml.EducationValues[(i/3)%2],
			ml.SelfEmployedValues[(i/7)%2],
			strconv.Itoa(2000 + (i*137)%9000),
			strconv.Itoa((i * 53) % 3000),
			strconv.Itoa(50 + (i*29)%400),
			term,
			strconv.Itoa(credit),
			ml.PropertyAreaValues[i%3],
			label,
		})
	}
	return header, rows
}

type artifactOptions struct {
	version     string
	maxFeatures int
	drop        []string
}

// writeArtifacts trains a small forest on loanTable and saves both artifacts.
func writeArtifacts(t *testing.T, dir string, opt artifactOptions) Paths {
	t.Helper()
	header, rows := loanTable()
	columns := append(ml.CategoricalFeatures(), ml.DefaultTargetColumn)
	encoders, err := ml.FitEncoderSet(header, rows, columns)
	require.NoError(t, err)
	features, labels, err := ml.BuildTrainingSet(header, rows, encoders, ml.DefaultTargetColumn)
	require.NoError(t, err)

	forest := ml.NewRandomForest(
		ml.WithNEstimators(15),
		ml.WithForestMaxFeatures(opt.maxFeatures),
	)
	require.NoError(t, forest.Train(features, labels))

	for _, column := range opt.drop {
		delete(encoders, column)
	}
	paths := Paths{
		Model:    filepath.Join(dir, ml.DefaultModelFile),
		Encoders: filepath.Join(dir, ml.DefaultEncodersFile),
	}
	require.NoError(t, ml.SaveModel(paths.Model, forest, ml.ArtifactMeta{
		Version:      opt.version,
		FeatureNames: ml.FeatureNames(),
		Target:       ml.DefaultTargetColumn,
		ClassLabels:  []string{"N", "Y"},
		Metrics:      &ml.Metrics{Accuracy: 0.9, Precision: 0.875, Recall: 1, F1: 0.9},
	}))
	require.NoError(t, ml.SaveEncoders(paths.Encoders, encoders, opt.version))
	return paths
}

// loadTestPredictor builds a predictor whose trees all split on Credit_History.
func loadTestPredictor(t *testing.T, opts Options) *Predictor {
	t.Helper()
	paths := writeArtifacts(t, t.TempDir(), artifactOptions{version: "test", maxFeatures: len(ml.FeatureNames())})
	p, err := Load(paths, opts)
	require.NoError(t, err)
	return p
}

type fakeClassifier struct {
	class    int
	proba    []float64
	err      error
	panicMsg string
}

func (f *fakeClassifier) Predict([]float64) (int, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.class, f.err
}

func (f *fakeClassifier) PredictProba([]float64) ([]float64, error) {
	if f.err != nil {
		return nil, fmt.Errorf("proba: %w", f.err)
	}
	return f.proba, nil
}

func (f *fakeClassifier) NumClasses() int  { return 2 }
func (f *fakeClassifier) NumFeatures() int { return len(ml.FeatureNames()) }

func fakeBundle(t *testing.T, model ml.Classifier) *Bundle {
	t.Helper()
	header, rows := loanTable()
	encoders, err := ml.FitEncoderSet(header, rows, append(ml.CategoricalFeatures(), ml.DefaultTargetColumn))
	require.NoError(t, err)
	b := &Bundle{Model: model, Encoders: encoders, Meta: ml.ArtifactMeta{Version: "fake", Target: ml.DefaultTargetColumn}}
	require.NoError(t, b.resolveClasses("Y"))
	return b
}

func writeFile(path, body string) error {
	return os.WriteFile(path, []byte(body), 0o644)
}
