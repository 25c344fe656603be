package ml

import "testing"

func TestNormalizeDependents(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"2", 2, false},
		{"3+", 3, false},
		{"3", 3, false},
		{" 1 ", 1, false},
		{"1.0", 1, false},
		{"", 0, true},
		{"many", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := NormalizeDependents(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("NormalizeDependents(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("NormalizeDependents(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDependentsIdempotent(t *testing.T) {
	first, err := NormalizeDependents("3+")
	if err != nil {
		t.Fatal(err)
	}
	second, err := NormalizeDependents("3")
	if err != nil {
		t.Fatal(err)
	}
	if first != 3 || second != 3 {
		t.Fatalf("expected 3 twice, got %d and %d", first, second)
	}
}

func TestApplicantValidate(t *testing.T) {
	if err := DefaultApplicant().Validate(); err != nil {
		t.Fatalf("default applicant should be valid: %v", err)
	}

	bad := DefaultApplicant()
	bad.ApplicantIncome = -1
	bad.LoanAmountTerm = 240
	bad.CreditHistory = 2
	bad.Dependents = "7"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestFeatureNamesOrder(t *testing.T) {
	names := FeatureNames()
	if len(names) != 11 {
		t.Fatalf("expected 11 features, got %d", len(names))
	}
	if names[0] != ColGender || names[2] != ColDependents || names[10] != ColPropertyArea {
		t.Fatalf("unexpected order: %v", names)
	}
}
