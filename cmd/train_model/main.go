package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"loanapproval/config"
	"loanapproval/db"
	"loanapproval/logger"
	"loanapproval/trainer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file")
	dataPath := flag.String("data", "", "training CSV (overrides training.dataset)")
	outDir := flag.String("out", "", "artifact directory (overrides artifacts.dir)")
	nEstimators := flag.Int("n_estimators", 0, "number of trees (overrides training.n_estimators)")
	seed := flag.Int64("seed", -1, "random seed (overrides training.seed)")
	version := flag.String("version", "", "artifact version tag (default: UTC timestamp)")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *dataPath != "" {
		cfg.Training.Dataset = *dataPath
	}
	if *outDir != "" {
		cfg.Artifacts.Dir = *outDir
	}
	if *nEstimators > 0 {
		cfg.Training.NEstimators = *nEstimators
	}
	if *seed >= 0 {
		cfg.Training.Seed = *seed
	}

	opts := trainer.OptionsFromConfig(cfg)
	opts.Version = *version
	opts.Logger = log
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			log.Warn("training log disabled", zap.String("path", cfg.Database.Path), zap.Error(err))
		} else {
			defer store.Close()
			opts.Store = store
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := trainer.New(opts).Run(ctx, cfg.Training.Dataset)
	if err != nil {
		log.Fatal("training failed", zap.String("dataset", cfg.Training.Dataset), zap.Error(err))
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		return
	}
	m := report.Metrics
	fmt.Printf("rows=%d train=%d test=%d\n", report.Rows, report.TrainRows, report.TestRows)
	fmt.Printf("accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f\n", m.Accuracy, m.Precision, m.Recall, m.F1)
	fmt.Printf("model saved to %s\nencoders saved to %s\n", report.ModelPath, report.EncodersPath)
}
