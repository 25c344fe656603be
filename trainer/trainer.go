// Package trainer fits the loan classifier and its encoders from a historical
// dataset and writes them as artifacts for the predictor.
package trainer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"loanapproval/config"
	"loanapproval/db"
	"loanapproval/ml"
	"loanapproval/pipeline"
)

// TrainingLogStore records finished runs; *db.Store implements it.
type TrainingLogStore interface {
	SaveTrainingLog(ctx context.Context, entry db.TrainingLog) error
}

type Options struct {
	Charset       string
	IDColumn      string
	TargetColumn  string
	ApprovedLabel string
	TestRatio     float64
	Seed          int64

	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MaxFeatures     int
	Bootstrap       bool

	ArtifactDir  string
	ModelFile    string
	EncodersFile string
	// Version tags both artifacts; empty means a UTC timestamp.
	Version string

	Logger *zap.Logger
	Store  TrainingLogStore
}

// OptionsFromConfig maps the training and artifact sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	tc := cfg.Training
	return Options{
		Charset:         tc.Charset,
		IDColumn:        tc.IDColumn,
		TargetColumn:    tc.TargetColumn,
		ApprovedLabel:   tc.ApprovedLabel,
		TestRatio:       tc.TestRatio,
		Seed:            tc.Seed,
		NEstimators:     tc.NEstimators,
		MaxDepth:        tc.MaxDepth,
		MinSamplesSplit: tc.MinSamplesSplit,
		MaxFeatures:     tc.MaxFeatures,
		Bootstrap:       tc.Bootstrap,
		ArtifactDir:     cfg.Artifacts.Dir,
		ModelFile:       cfg.Artifacts.ModelFile,
		EncodersFile:    cfg.Artifacts.EncodersFile,
	}
}

// Report summarizes one training run.
type Report struct {
	Dataset        string            `json:"dataset"`
	Version        string            `json:"version"`
	Rows           int               `json:"rows"`
	DroppedColumns []string          `json:"dropped_columns,omitempty"`
	Imputed        map[string]string `json:"imputed,omitempty"`
	Cleaning       map[string]int    `json:"cleaning"`
	TrainRows      int               `json:"train_rows"`
	TestRows       int               `json:"test_rows"`
	ClassLabels    []string          `json:"class_labels"`
	Metrics        ml.Metrics        `json:"metrics"`
	ModelPath      string            `json:"model_path"`
	EncodersPath   string            `json:"encoders_path"`
	Duration       time.Duration     `json:"duration"`
}

type Trainer struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) *Trainer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TargetColumn == "" {
		opts.TargetColumn = ml.DefaultTargetColumn
	}
	if opts.ApprovedLabel == "" {
		opts.ApprovedLabel = ml.DefaultApprovedLabel
	}
	if opts.ModelFile == "" {
		opts.ModelFile = ml.DefaultModelFile
	}
	if opts.EncodersFile == "" {
		opts.EncodersFile = ml.DefaultEncodersFile
	}
	if opts.ArtifactDir == "" {
		opts.ArtifactDir = "."
	}
	return &Trainer{opts: opts, logger: opts.Logger}
}

// Run trains on the CSV at datasetPath and writes both artifacts. Any error
// aborts the run before artifacts are replaced.
func (t *Trainer) Run(ctx context.Context, datasetPath string) (*Report, error) {
	start := time.Now()
	opts := t.opts
	version := opts.Version
	if version == "" {
		version = start.UTC().Format("20060102T150405Z")
	}
	report := &Report{Dataset: datasetPath, Version: version}

	// 1. load
	ds, err := pipeline.LoadCSV(datasetPath, pipeline.IngestionConfig{Charset: opts.Charset})
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	required := append(ml.FeatureNames(), opts.TargetColumn)
	if err := ds.RequireColumns(required...); err != nil {
		return nil, err
	}
	t.logger.Info("dataset loaded",
		zap.String("path", datasetPath),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("columns", len(ds.Header)),
	)

	// 2. clean
	selectRule := pipeline.NewSelectColumnsRule(required...)
	imputeRule := pipeline.NewModeImputationRule(pipeline.DefaultMissingMarkers)
	cleaner := pipeline.NewDataCleaner(t.logger,
		pipeline.NewDropColumnsRule(opts.IDColumn),
		selectRule,
		imputeRule,
		pipeline.NewSentinelReplaceRule(ml.DependentsSentinel, "3"),
	)
	if err := cleaner.Clean(ds); err != nil {
		return nil, fmt.Errorf("clean dataset: %w", err)
	}
	if len(selectRule.Dropped) > 0 {
		t.logger.Warn("ignoring columns outside the feature schema", zap.Strings("columns", selectRule.Dropped))
	}
	report.DroppedColumns = selectRule.Dropped
	report.Imputed = imputeRule.Modes
	report.Cleaning = cleaner.GetStats().Changes
	report.Rows = len(ds.Rows)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 3. encode
	encoders, err := ml.FitEncoderSet(ds.Header, ds.Rows, append(ml.CategoricalFeatures(), opts.TargetColumn))
	if err != nil {
		return nil, fmt.Errorf("fit encoders: %w", err)
	}
	features, labels, err := ml.BuildTrainingSet(ds.Header, ds.Rows, encoders, opts.TargetColumn)
	if err != nil {
		return nil, fmt.Errorf("build training set: %w", err)
	}
	target := encoders[opts.TargetColumn]
	positive, err := target.Transform(opts.ApprovedLabel)
	if err != nil {
		return nil, fmt.Errorf("approved label: %w", err)
	}
	report.ClassLabels = target.Classes()
	if len(report.ClassLabels) < 2 {
		return nil, fmt.Errorf("target column %s has a single class %q", opts.TargetColumn, report.ClassLabels[0])
	}

	// 4. split and fit
	trainX, trainY, testX, testY := ml.TrainTestSplit(features, labels, opts.TestRatio, opts.Seed)
	report.TrainRows, report.TestRows = len(trainX), len(testX)

	forest := ml.NewRandomForest(
		ml.WithNEstimators(opts.NEstimators),
		ml.WithForestMaxDepth(opts.MaxDepth),
		ml.WithForestMinSplit(opts.MinSamplesSplit),
		ml.WithForestMaxFeatures(opts.MaxFeatures),
		ml.WithBootstrap(opts.Bootstrap),
		ml.WithRandomState(opts.Seed),
		ml.WithNumClasses(target.Len()),
	)
	t.logger.Info("training random forest",
		zap.Int("train_rows", len(trainX)),
		zap.Int("test_rows", len(testX)),
		zap.Int("n_estimators", forest.NEstimators),
	)
	if err := forest.Train(trainX, trainY); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	if forest.NumClasses() != target.Len() {
		return nil, fmt.Errorf("train: model has %d classes, target encoder has %d", forest.NumClasses(), target.Len())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 5. evaluate
	metrics, err := ml.Evaluate(forest, testX, testY, positive)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	report.Metrics = metrics
	t.logger.Info("model evaluated",
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("recall", metrics.Recall),
		zap.Float64("f1", metrics.F1),
	)

	// 6. persist
	report.ModelPath = filepath.Join(opts.ArtifactDir, opts.ModelFile)
	report.EncodersPath = filepath.Join(opts.ArtifactDir, opts.EncodersFile)
	meta := ml.ArtifactMeta{
		Version:      version,
		CreatedAt:    start.UTC(),
		Dataset:      filepath.Base(datasetPath),
		FeatureNames: ml.FeatureNames(),
		Target:       opts.TargetColumn,
		ClassLabels:  report.ClassLabels,
		Metrics:      &metrics,
		Params: map[string]any{
			"n_estimators":      forest.NEstimators,
			"max_depth":         forest.MaxDepth,
			"min_samples_split": forest.MinSamplesSplit,
			"max_features":      forest.MaxFeatures,
			"bootstrap":         forest.Bootstrap,
			"random_state":      forest.RandomState,
			"test_ratio":        opts.TestRatio,
		},
	}
	// encoders first: a watcher reacting to the model write then sees both
	if err := ml.SaveEncoders(report.EncodersPath, encoders, version); err != nil {
		return nil, fmt.Errorf("save encoders: %w", err)
	}
	if err := ml.SaveModel(report.ModelPath, forest, meta); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	report.Duration = time.Since(start)
	t.logger.Info("artifacts written",
		zap.String("model", report.ModelPath),
		zap.String("encoders", report.EncodersPath),
		zap.String("version", version),
		zap.Duration("took", report.Duration),
	)

	// 7. training log
	if opts.Store != nil {
		entry := db.TrainingLog{
			ModelName:    forest.Type(),
			ModelVersion: version,
			Dataset:      datasetPath,
			Accuracy:     metrics.Accuracy,
			Precision:    metrics.Precision,
			Recall:       metrics.Recall,
			F1:           metrics.F1,
			TrainRows:    report.TrainRows,
			TestRows:     report.TestRows,
			TrainedAt:    start.UTC(),
		}
		if err := opts.Store.SaveTrainingLog(ctx, entry); err != nil {
			t.logger.Warn("failed to record training run", zap.Error(err))
		}
	}
	return report, nil
}
