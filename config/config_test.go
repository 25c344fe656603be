package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
http:
  port: 9000
  read_timeout: 3s
artifacts:
  dir: /srv/models
  watch: false
predictor:
  strict_encoders: true
training:
  bootstrap: false
  n_estimators: 10
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, "/srv/models/loan_model.json", cfg.Artifacts.ModelPath())
	assert.Equal(t, "/srv/models/label_encoders.json", cfg.Artifacts.EncodersPath())
	assert.False(t, cfg.Artifacts.Watch)
	assert.True(t, cfg.Predictor.StrictEncoders)
	assert.Equal(t, "Y", cfg.Predictor.ApprovedLabel)
	assert.False(t, cfg.Training.Bootstrap)
	assert.Equal(t, 10, cfg.Training.NEstimators)
	assert.Equal(t, int64(42), cfg.Training.Seed)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "htp:\n  port: 1\n"},
		{"bad port", "http:\n  port: 70000\n"},
		{"bad ratio", "training:\n  test_ratio: 1.5\n"},
		{"bad split", "training:\n  min_samples_split: 1\n"},
		{"approved labels disagree", "predictor:\n  approved_label: Approved\n"},
		{"not yaml", "http: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMatchingApprovedLabels(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
predictor:
  approved_label: Approved
training:
  approved_label: Approved
`))
	require.NoError(t, err)
	assert.Equal(t, "Approved", cfg.Predictor.ApprovedLabel)
	assert.Equal(t, "Approved", cfg.Training.ApprovedLabel)
}
