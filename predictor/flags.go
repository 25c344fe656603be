package predictor

import "loanapproval/ml"

// Flag codes.
const (
	FlagPoorCreditHistory = "poor_credit_history"
	FlagGoodCreditHistory = "good_credit_history"
	FlagHighIncome        = "high_income"
	FlagLargeLoan         = "large_loan"
)

// Flag is an advisory note shown next to a decision. It never changes the
// decision.
type Flag struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Positive bool   `json:"positive"`
}

// Thresholds for the income and loan flags.
type Thresholds struct {
	HighIncome float64
	LargeLoan  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{HighIncome: 8000, LargeLoan: 300}
}

// Flags derives the advisory flags from the submitted input alone.
func Flags(a ml.Applicant, t Thresholds) []Flag {
	flags := make([]Flag, 0, 3)
	switch a.CreditHistory {
	case 0:
		flags = append(flags, Flag{
			Code:    FlagPoorCreditHistory,
			Message: "Poor credit history might lower approval chances.",
		})
	case 1:
		flags = append(flags, Flag{
			Code:     FlagGoodCreditHistory,
			Message:  "Good credit history increases approval chances!",
			Positive: true,
		})
	}
	if a.ApplicantIncome > t.HighIncome {
		flags = append(flags, Flag{
			Code:     FlagHighIncome,
			Message:  "High applicant income is a positive factor!",
			Positive: true,
		})
	}
	if a.LoanAmount > t.LargeLoan {
		flags = append(flags, Flag{
			Code:    FlagLargeLoan,
			Message: "Large loan amounts may require additional scrutiny.",
		})
	}
	return flags
}
