package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnseenLabel is returned when a label was not part of the fitted label set.
var ErrUnseenLabel = errors.New("label not seen during fit")

// UnseenLabelError names the column and label that could not be encoded.
type UnseenLabelError struct {
	Column string
	Label  string
	Known  []string
}

func (e *UnseenLabelError) Error() string {
	return fmt.Sprintf("%s: label %q not seen during fit (known: %v)", e.Column, e.Label, e.Known)
}

func (e *UnseenLabelError) Unwrap() error { return ErrUnseenLabel }

// LabelEncoder is a fitted bijection between string labels and integer codes.
// Codes follow the sorted order of the distinct labels.
type LabelEncoder struct {
	column  string
	classes []string
	index   map[string]int
}

// FitLabelEncoder fits an encoder over the observed labels of one column.
func FitLabelEncoder(column string, labels []string) (*LabelEncoder, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%s: no labels to fit", column)
	}
	seen := make(map[string]struct{}, len(labels))
	classes := make([]string, 0)
	for _, label := range labels {
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		classes = append(classes, label)
	}
	sort.Strings(classes)
	return newLabelEncoder(column, classes)
}

func newLabelEncoder(column string, classes []string) (*LabelEncoder, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("%s: duplicate label %q", column, c)
		}
		index[c] = i
	}
	return &LabelEncoder{column: column, classes: classes, index: index}, nil
}

// Transform returns the code of label.
func (e *LabelEncoder) Transform(label string) (int, error) {
	code, ok := e.index[label]
	if !ok {
		return 0, &UnseenLabelError{Column: e.column, Label: label, Known: e.Classes()}
	}
	return code, nil
}

// Inverse returns the label for code.
func (e *LabelEncoder) Inverse(code int) (string, error) {
	if code < 0 || code >= len(e.classes) {
		return "", fmt.Errorf("%s: code %d out of range [0,%d)", e.column, code, len(e.classes))
	}
	return e.classes[code], nil
}

// Classes returns a copy of the fitted labels in code order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *LabelEncoder) Column() string { return e.column }

func (e *LabelEncoder) Len() int { return len(e.classes) }

type labelEncoderJSON struct {
	Column  string   `json:"column"`
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(labelEncoderJSON{Column: e.column, Classes: e.classes})
}

func (e *LabelEncoder) UnmarshalJSON(data []byte) error {
	var raw labelEncoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Classes) == 0 {
		return fmt.Errorf("%s: encoder has no classes", raw.Column)
	}
	decoded, err := newLabelEncoder(raw.Column, raw.Classes)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}

// EncoderSet maps a column name to its fitted encoder.
type EncoderSet map[string]*LabelEncoder

// MissingEncoderPolicy decides what happens when a categorical feature has no
// registered encoder.
type MissingEncoderPolicy int

const (
	// MissingEncoderZero encodes the feature as 0. This keeps artifacts from
	// older training runs usable but silently mis-encodes the field.
	MissingEncoderZero MissingEncoderPolicy = iota
	// MissingEncoderFail rejects the input.
	MissingEncoderFail
)

// ErrMissingEncoder is returned under MissingEncoderFail.
var ErrMissingEncoder = errors.New("no encoder registered")

// Vector encodes an applicant into a feature vector in FeatureNames order.
// The second return lists the fields that fell back to code 0.
func (s EncoderSet) Vector(a Applicant, policy MissingEncoderPolicy) ([]float64, []string, error) {
	dependents, err := NormalizeDependents(a.Dependents)
	if err != nil {
		return nil, nil, err
	}

	var defaulted []string
	encode := func(column string) (float64, error) {
		label, _ := a.Categorical(column)
		enc, ok := s[column]
		if !ok {
			if policy == MissingEncoderFail {
				return 0, fmt.Errorf("%s: %w", column, ErrMissingEncoder)
			}
			defaulted = append(defaulted, column)
			return 0, nil
		}
		code, err := enc.Transform(label)
		return float64(code), err
	}

	vector := make([]float64, 0, len(FeatureNames()))
	for _, name := range FeatureNames() {
		var value float64
		switch name {
		case ColDependents:
			value = float64(dependents)
		case ColApplicantIncome:
			value = a.ApplicantIncome
		case ColCoapplicantIncome:
			value = a.CoapplicantIncome
		case ColLoanAmount:
			value = a.LoanAmount
		case ColLoanAmountTerm:
			value = float64(a.LoanAmountTerm)
		case ColCreditHistory:
			value = float64(a.CreditHistory)
		default:
			value, err = encode(name)
			if err != nil {
				return nil, nil, err
			}
		}
		vector = append(vector, value)
	}
	return vector, defaulted, nil
}

// Columns returns the encoded column names in sorted order.
func (s EncoderSet) Columns() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FitEncoderSet fits one encoder per listed column of a string table.
func FitEncoderSet(header []string, rows [][]string, columns []string) (EncoderSet, error) {
	set := make(EncoderSet, len(columns))
	for _, column := range columns {
		idx := indexOf(header, column)
		if idx < 0 {
			return nil, fmt.Errorf("fit encoders: column %s not found", column)
		}
		values := make([]string, len(rows))
		for i, row := range rows {
			values[i] = row[idx]
		}
		enc, err := FitLabelEncoder(column, values)
		if err != nil {
			return nil, err
		}
		set[column] = enc
	}
	return set, nil
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
