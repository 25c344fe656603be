package ml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Column names as they appear in the training dataset header.
const (
	ColGender            = "Gender"
	ColMarried           = "Married"
	ColDependents        = "Dependents"
	ColEducation         = "Education"
	ColSelfEmployed      = "Self_Employed"
	ColApplicantIncome   = "ApplicantIncome"
	ColCoapplicantIncome = "CoapplicantIncome"
	ColLoanAmount        = "LoanAmount"
	ColLoanAmountTerm    = "Loan_Amount_Term"
	ColCreditHistory     = "Credit_History"
	ColPropertyArea      = "Property_Area"

	DefaultIDColumn      = "Loan_ID"
	DefaultTargetColumn  = "Loan_Status"
	DefaultApprovedLabel = "Y"

	// DependentsSentinel is the open-ended dependents category.
	DependentsSentinel = "3+"
)

// FeatureNames returns the feature schema in the order the classifier expects.
// The classifier has no column-name awareness, so every vector built for it
// must follow this order.
func FeatureNames() []string {
	return []string{
		ColGender,
		ColMarried,
		ColDependents,
		ColEducation,
		ColSelfEmployed,
		ColApplicantIncome,
		ColCoapplicantIncome,
		ColLoanAmount,
		ColLoanAmountTerm,
		ColCreditHistory,
		ColPropertyArea,
	}
}

// CategoricalFeatures returns the feature columns that go through an Encoder.
func CategoricalFeatures() []string {
	return []string{
		ColGender,
		ColMarried,
		ColEducation,
		ColSelfEmployed,
		ColPropertyArea,
	}
}

// IsCategorical reports whether name is an encoded feature column.
func IsCategorical(name string) bool {
	for _, c := range CategoricalFeatures() {
		if c == name {
			return true
		}
	}
	return false
}

// Closed value sets offered by the interactive form.
var (
	GenderValues         = []string{"Male", "Female"}
	MarriedValues        = []string{"No", "Yes"}
	DependentsValues     = []string{"0", "1", "2", DependentsSentinel}
	EducationValues      = []string{"Graduate", "Not Graduate"}
	SelfEmployedValues   = []string{"No", "Yes"}
	LoanAmountTermValues = []int{360, 180, 120, 60}
	CreditHistoryValues  = []int{1, 0}
	PropertyAreaValues   = []string{"Urban", "Semiurban", "Rural"}
)

// Applicant is one loan application as entered by a user.
type Applicant struct {
	Gender            string  `json:"Gender"`
	Married           string  `json:"Married"`
	Dependents        string  `json:"Dependents"`
	Education         string  `json:"Education"`
	SelfEmployed      string  `json:"Self_Employed"`
	ApplicantIncome   float64 `json:"ApplicantIncome"`
	CoapplicantIncome float64 `json:"CoapplicantIncome"`
	LoanAmount        float64 `json:"LoanAmount"`
	LoanAmountTerm    int     `json:"Loan_Amount_Term"`
	CreditHistory     int     `json:"Credit_History"`
	PropertyArea      string  `json:"Property_Area"`
}

// DefaultApplicant mirrors the form defaults.
func DefaultApplicant() Applicant {
	return Applicant{
		Gender:            GenderValues[0],
		Married:           MarriedValues[0],
		Dependents:        DependentsValues[0],
		Education:         EducationValues[0],
		SelfEmployed:      SelfEmployedValues[0],
		ApplicantIncome:   5000,
		CoapplicantIncome: 2000,
		LoanAmount:        100,
		LoanAmountTerm:    LoanAmountTermValues[0],
		CreditHistory:     CreditHistoryValues[0],
		PropertyArea:      PropertyAreaValues[0],
	}
}

// Categorical returns the raw label of a categorical feature.
func (a Applicant) Categorical(name string) (string, bool) {
	switch name {
	case ColGender:
		return a.Gender, true
	case ColMarried:
		return a.Married, true
	case ColEducation:
		return a.Education, true
	case ColSelfEmployed:
		return a.SelfEmployed, true
	case ColPropertyArea:
		return a.PropertyArea, true
	}
	return "", false
}

// Validate checks the numeric fields against their form domains. Categorical
// labels are checked by the encoders instead.
func (a Applicant) Validate() error {
	var errs []error
	if n, err := NormalizeDependents(a.Dependents); err != nil {
		errs = append(errs, err)
	} else if n > 3 {
		errs = append(errs, fmt.Errorf("%s must be one of %v", ColDependents, DependentsValues))
	}
	if a.ApplicantIncome < 0 {
		errs = append(errs, fmt.Errorf("%s must be non-negative", ColApplicantIncome))
	}
	if a.CoapplicantIncome < 0 {
		errs = append(errs, fmt.Errorf("%s must be non-negative", ColCoapplicantIncome))
	}
	if a.LoanAmount < 0 {
		errs = append(errs, fmt.Errorf("%s must be non-negative", ColLoanAmount))
	}
	if !containsInt(LoanAmountTermValues, a.LoanAmountTerm) {
		errs = append(errs, fmt.Errorf("%s must be one of %v", ColLoanAmountTerm, LoanAmountTermValues))
	}
	if !containsInt(CreditHistoryValues, a.CreditHistory) {
		errs = append(errs, fmt.Errorf("%s must be one of %v", ColCreditHistory, CreditHistoryValues))
	}
	return errors.Join(errs...)
}

// NormalizeDependents maps "3+" to 3 and parses everything else as an
// integer. Feeding the result back in yields the same value.
func NormalizeDependents(value string) (int, error) {
	v := strings.TrimSpace(value)
	if v == DependentsSentinel {
		return 3, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if f, ferr := strconv.ParseFloat(v, 64); ferr == nil && f == float64(int(f)) {
			n, err = int(f), nil
		}
	}
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: invalid value %q", ColDependents, value)
	}
	return n, nil
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// Values returns the submitted values as text, in FeatureNames order.
func (a Applicant) Values() []string {
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		a.Gender,
		a.Married,
		a.Dependents,
		a.Education,
		a.SelfEmployed,
		num(a.ApplicantIncome),
		num(a.CoapplicantIncome),
		num(a.LoanAmount),
		strconv.Itoa(a.LoanAmountTerm),
		strconv.Itoa(a.CreditHistory),
		a.PropertyArea,
	}
}
