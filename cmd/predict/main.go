package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"loanapproval/config"
	"loanapproval/logger"
	"loanapproval/ml"
	"loanapproval/predictor"
)

func main() {
	defaults := ml.DefaultApplicant()
	configPath := flag.String("config", "config.yaml", "config file")
	modelPath := flag.String("model", "", "model artifact (overrides artifacts)")
	encodersPath := flag.String("encoders", "", "encoder artifact (overrides artifacts)")
	asJSON := flag.Bool("json", false, "print the result as JSON")

	app := defaults
	flag.StringVar(&app.Gender, "gender", defaults.Gender, "Gender")
	flag.StringVar(&app.Married, "married", defaults.Married, "Married")
	flag.StringVar(&app.Dependents, "dependents", defaults.Dependents, "Dependents (0, 1, 2, 3+)")
	flag.StringVar(&app.Education, "education", defaults.Education, "Education")
	flag.StringVar(&app.SelfEmployed, "self_employed", defaults.SelfEmployed, "Self_Employed")
	flag.Float64Var(&app.ApplicantIncome, "income", defaults.ApplicantIncome, "ApplicantIncome")
	flag.Float64Var(&app.CoapplicantIncome, "coapplicant_income", defaults.CoapplicantIncome, "CoapplicantIncome")
	flag.Float64Var(&app.LoanAmount, "loan_amount", defaults.LoanAmount, "LoanAmount (in thousands)")
	flag.IntVar(&app.LoanAmountTerm, "term", defaults.LoanAmountTerm, "Loan_Amount_Term (360, 180, 120, 60)")
	flag.IntVar(&app.CreditHistory, "credit_history", defaults.CreditHistory, "Credit_History (1 or 0)")
	flag.StringVar(&app.PropertyArea, "property_area", defaults.PropertyArea, "Property_Area")
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

	paths := predictor.Paths{Model: cfg.Artifacts.ModelPath(), Encoders: cfg.Artifacts.EncodersPath()}
	if *modelPath != "" {
		paths.Model = *modelPath
	}
	if *encodersPath != "" {
		paths.Encoders = *encodersPath
	}

	registry := predictor.NewRegistry(paths, predictor.Options{
		StrictEncoders: cfg.Predictor.StrictEncoders,
		ApprovedLabel:  cfg.Predictor.ApprovedLabel,
		Thresholds: predictor.Thresholds{
			HighIncome: cfg.Predictor.HighIncomeThreshold,
			LargeLoan:  cfg.Predictor.LargeLoanThreshold,
		},
		Logger: log,
	}, nil)
	if err := registry.Reload(); err != nil {
		log.Fatal("Error loading model", zap.Error(err))
	}
	session, err := registry.NewSession()
	if err != nil {
		log.Fatal("failed to start session", zap.Error(err))
	}
	defer session.Close()

	res, err := session.Submit(app)
	if err != nil {
		var validationErr *predictor.ValidationError
		if errors.As(err, &validationErr) {
			fmt.Fprintf(os.Stderr, "invalid input: %v\n", validationErr.Err)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error during prediction: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(res)
		return
	}
	if res.Approved {
		fmt.Printf("Loan Approved with %.2f%% probability!\n", res.Probability)
	} else {
		fmt.Printf("Loan Not Approved (Approval Chance: %.2f%%)\n", res.Probability)
	}
	fmt.Println()
	for _, f := range res.Features {
		fmt.Printf("  %-18s %-10s %v\n", f.Name, f.Value, f.Encoded)
	}
	fmt.Println()
	for _, f := range res.Flags {
		fmt.Printf("  - %s\n", f.Message)
	}
}
