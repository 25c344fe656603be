package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "data", "loans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPredictionHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.SavePrediction(ctx, PredictionRecord{
			ID:          id,
			Input:       json.RawMessage(`{"Gender":"Male"}`),
			Approved:    i%2 == 0,
			Label:       "Y",
			Probability: float64(i) * 10,
			Flags:       []string{"good_credit_history", "high_income"},
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	records, err := store.ListPredictions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "b", records[1].ID)
	assert.Equal(t, []string{"good_credit_history", "high_income"}, records[0].Flags)
	assert.JSONEq(t, `{"Gender":"Male"}`, string(records[0].Input))
	assert.True(t, records[0].Approved)
	assert.InDelta(t, 20.0, records[0].Probability, 1e-9)
}

func TestSavePredictionRequiresID(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.SavePrediction(context.Background(), PredictionRecord{}))
}

func TestTrainingLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.LatestTrainingLog(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	first := TrainingLog{ModelName: "random_forest", ModelVersion: "v1", Accuracy: 0.7, TrainedAt: time.Now().Add(-time.Hour)}
	second := TrainingLog{ModelName: "random_forest", ModelVersion: "v2", Accuracy: 0.8, TrainRows: 8, TestRows: 2}
	require.NoError(t, store.SaveTrainingLog(ctx, first))
	require.NoError(t, store.SaveTrainingLog(ctx, second))

	latest, err := store.LatestTrainingLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.ModelVersion)
	assert.Equal(t, 8, latest.TrainRows)

	logs, err := store.LoadTrainingLog(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
