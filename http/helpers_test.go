package http

import (
	"net/http"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"loanapproval/db"
	"loanapproval/ml"
	"loanapproval/monitoring"
	"loanapproval/predictor"
)

// writeArtifacts trains a forest in which Credit_History alone decides
// approval; no other column lines up with the label.
func writeArtifacts(t *testing.T, dir string) predictor.Paths {
	t.Helper()
	header := append(ml.FeatureNames(), ml.DefaultTargetColumn)
	var rows [][]string
	for i := 0; i < 120; i++ {
		credit, label := "1", "Y"
		if i%3 == 0 {
			credit, label = "0", "N"
		}
		rows = append(rows, []string{
			ml.GenderValues[i%2], ml.MarriedValues[(i/2)%2], strconv.Itoa(i % 4),
			ml.EducationValues[(i/5)%2], ml.SelfEmployedValues[(i/7)%2],
			strconv.Itoa(1000 + (i*173)%9000), strconv.Itoa((i * 31) % 2000),
			strconv.Itoa(40 + (i*23)%400), strconv.Itoa(ml.LoanAmountTermValues[i%4]),
			credit, ml.PropertyAreaValues[(i/4)%3], label,
		})
	}
	encoders, err := ml.FitEncoderSet(header, rows, append(ml.CategoricalFeatures(), ml.DefaultTargetColumn))
	require.NoError(t, err)
	features, labels, err := ml.BuildTrainingSet(header, rows, encoders, ml.DefaultTargetColumn)
	require.NoError(t, err)
	forest := ml.NewRandomForest(ml.WithNEstimators(9), ml.WithForestMaxFeatures(len(ml.FeatureNames())))
	require.NoError(t, forest.Train(features, labels))

	paths := predictor.Paths{
		Model:    filepath.Join(dir, ml.DefaultModelFile),
		Encoders: filepath.Join(dir, ml.DefaultEncodersFile),
	}
	require.NoError(t, ml.SaveModel(paths.Model, forest, ml.ArtifactMeta{
		Version:      "http-test",
		FeatureNames: ml.FeatureNames(),
		Target:       ml.DefaultTargetColumn,
	}))
	require.NoError(t, ml.SaveEncoders(paths.Encoders, encoders, "http-test"))
	return paths
}

type testEnv struct {
	handler  http.Handler
	registry *predictor.Registry
	store    *db.Store
	metrics  *monitoring.Metrics
}

// newTestEnv builds the full handler chain. With loaded=false the artifact
// directory stays empty, as after a failed deployment.
func newTestEnv(t *testing.T, loaded bool) *testEnv {
	t.Helper()
	dir := t.TempDir()
	paths := predictor.Paths{
		Model:    filepath.Join(dir, ml.DefaultModelFile),
		Encoders: filepath.Join(dir, ml.DefaultEncodersFile),
	}
	if loaded {
		paths = writeArtifacts(t, dir)
	}
	metrics := monitoring.NewMetrics()
	registry := predictor.NewRegistry(paths, predictor.DefaultOptions(), metrics)
	if loaded {
		require.NoError(t, registry.Reload())
	} else {
		require.Error(t, registry.Reload())
	}
	store, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := NewHandler(DefaultServerConfig(), Deps{
		Registry: registry,
		Store:    store,
		Metrics:  metrics,
	})
	return &testEnv{handler: handler, registry: registry, store: store, metrics: metrics}
}
