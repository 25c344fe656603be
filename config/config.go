// Package config loads the YAML configuration shared by the server and the CLIs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"loanapproval/logger"
	"loanapproval/ml"
)

type Config struct {
	Log       logger.Config   `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Database  DatabaseConfig  `yaml:"database"`
	Predictor PredictorConfig `yaml:"predictor"`
	Training  TrainingConfig  `yaml:"training"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type ArtifactsConfig struct {
	Dir          string `yaml:"dir"`
	ModelFile    string `yaml:"model_file"`
	EncodersFile string `yaml:"encoders_file"`
	// Watch reloads the predictor when either artifact changes on disk.
	Watch bool `yaml:"watch"`
}

func (a ArtifactsConfig) ModelPath() string    { return filepath.Join(a.Dir, a.ModelFile) }
func (a ArtifactsConfig) EncodersPath() string { return filepath.Join(a.Dir, a.EncodersFile) }

// DatabaseConfig: an empty Path disables prediction history and the training log.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PredictorConfig struct {
	// StrictEncoders rejects inputs whose categorical field has no encoder
	// instead of encoding it as 0.
	StrictEncoders      bool    `yaml:"strict_encoders"`
	ApprovedLabel       string  `yaml:"approved_label"`
	CacheSize           int     `yaml:"cache_size"`
	HighIncomeThreshold float64 `yaml:"high_income_threshold"`
	LargeLoanThreshold  float64 `yaml:"large_loan_threshold"`
}

type TrainingConfig struct {
	Dataset         string  `yaml:"dataset"`
	Charset         string  `yaml:"charset"`
	IDColumn        string  `yaml:"id_column"`
	TargetColumn    string  `yaml:"target_column"`
	ApprovedLabel   string  `yaml:"approved_label"`
	TestRatio       float64 `yaml:"test_ratio"`
	Seed            int64   `yaml:"seed"`
	NEstimators     int     `yaml:"n_estimators"`
	MaxDepth        int     `yaml:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	MaxFeatures     int     `yaml:"max_features"`
	Bootstrap       bool    `yaml:"bootstrap"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Log: logger.Config{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		HTTP: HTTPConfig{
			Port:            8501,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			AllowedOrigins:  []string{"*"},
		},
		Artifacts: ArtifactsConfig{
			Dir:          ".",
			ModelFile:    ml.DefaultModelFile,
			EncodersFile: ml.DefaultEncodersFile,
			Watch:        true,
		},
		Predictor: PredictorConfig{
			ApprovedLabel:       ml.DefaultApprovedLabel,
			CacheSize:           1024,
			HighIncomeThreshold: 8000,
			LargeLoanThreshold:  300,
		},
		Training: TrainingConfig{
			Dataset:         "loan_data.csv",
			Charset:         "utf-8",
			IDColumn:        ml.DefaultIDColumn,
			TargetColumn:    ml.DefaultTargetColumn,
			ApprovedLabel:   ml.DefaultApprovedLabel,
			TestRatio:       0.2,
			Seed:            42,
			NEstimators:     100,
			MinSamplesSplit: 2,
			Bootstrap:       true,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, cfg.Validate()
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("http.max_body_bytes must be positive"))
	}
	if c.Artifacts.ModelFile == "" || c.Artifacts.EncodersFile == "" {
		errs = append(errs, errors.New("artifacts.model_file and artifacts.encoders_file are required"))
	}
	if c.Predictor.ApprovedLabel == "" {
		errs = append(errs, errors.New("predictor.approved_label is required"))
	}
	if c.Training.ApprovedLabel != "" && c.Training.ApprovedLabel != c.Predictor.ApprovedLabel {
		errs = append(errs, fmt.Errorf("training.approved_label %q and predictor.approved_label %q must match",
			c.Training.ApprovedLabel, c.Predictor.ApprovedLabel))
	}
	if c.Predictor.CacheSize < 0 {
		errs = append(errs, errors.New("predictor.cache_size must not be negative"))
	}
	if c.Training.TargetColumn == "" {
		errs = append(errs, errors.New("training.target_column is required"))
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		errs = append(errs, fmt.Errorf("training.test_ratio %.2f must be in (0,1)", c.Training.TestRatio))
	}
	if c.Training.NEstimators <= 0 {
		errs = append(errs, errors.New("training.n_estimators must be positive"))
	}
	if c.Training.MaxDepth < 0 || c.Training.MaxFeatures < 0 {
		errs = append(errs, errors.New("training.max_depth and training.max_features must not be negative"))
	}
	if c.Training.MinSamplesSplit < 2 {
		errs = append(errs, errors.New("training.min_samples_split must be at least 2"))
	}
	return errors.Join(errs...)
}
