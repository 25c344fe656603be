package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanapproval/db"
	"loanapproval/ml"
	"loanapproval/pipeline"
	"loanapproval/predictor"
)

// writeDataset writes a raw loan CSV with an ID column, an extra column,
// missing cells and "3+" dependents. Credit_History decides the label.
func writeDataset(t *testing.T, rows int) string {
	t.Helper()
	var sb strings.Builder
	sb.WriteString("Loan_ID,Gender,Married,Dependents,Education,Self_Employed,ApplicantIncome," +
		"CoapplicantIncome,LoanAmount,Loan_Amount_Term,Credit_History,Property_Area,Notes,Loan_Status\n")
	deps := []string{"0", "1", "2", "3+"}
	for i := 0; i < rows; i++ {
		credit, label := "1", "Y"
		if i%4 == 0 {
			credit, label = "0", "N"
		}
		gender := ml.GenderValues[i%2]
		if i%11 == 0 {
			gender = ""
		}
		loan := fmt.Sprint(60 + (i*37)%350)
		if i%13 == 0 {
			loan = "NA"
		}
		fmt.Fprintf(&sb, "LP%04d,%s,%s,%s,%s,%s,%d,%d,%s,%d,%s,%s,note %d,%s\n",
			i, gender, ml.MarriedValues[(i/2)%2], deps[i%4], ml.EducationValues[(i/3)%2],
			ml.SelfEmployedValues[(i/5)%2], 1500+(i*211)%9000, (i*97)%2500, loan,
			ml.LoanAmountTermValues[i%4], credit, ml.PropertyAreaValues[i%3], i, label)
	}
	path := filepath.Join(t.TempDir(), "loan_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func testOptions(dir string) Options {
	return Options{
		IDColumn:        ml.DefaultIDColumn,
		TestRatio:       0.2,
		Seed:            42,
		NEstimators:     20,
		MinSamplesSplit: 2,
		Bootstrap:       true,
		ArtifactDir:     dir,
		Version:         "test",
	}
}

func TestRunEndToEnd(t *testing.T) {
	dataset := writeDataset(t, 120)
	dir := filepath.Join(t.TempDir(), "artifacts")
	store, err := db.Open(filepath.Join(t.TempDir(), "train.db"))
	require.NoError(t, err)
	defer store.Close()

	opts := testOptions(dir)
	opts.Store = store

	report, err := New(opts).Run(context.Background(), dataset)
	require.NoError(t, err)

	assert.Equal(t, 120, report.Rows)
	assert.Equal(t, 24, report.TestRows)
	assert.Equal(t, 96, report.TrainRows)
	assert.Equal(t, []string{"Notes"}, report.DroppedColumns)
	assert.Equal(t, []string{"N", "Y"}, report.ClassLabels)
	assert.Contains(t, report.Imputed, ml.ColGender)
	assert.Contains(t, report.Imputed, ml.ColLoanAmount)
	assert.Equal(t, 30, report.Cleaning["sentinel_replace"])
	assert.Greater(t, report.Metrics.Accuracy, 0.5)
	assert.FileExists(t, filepath.Join(dir, ml.DefaultModelFile))
	assert.FileExists(t, filepath.Join(dir, ml.DefaultEncodersFile))

	entry, err := store.LatestTrainingLog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", entry.ModelVersion)
	assert.Equal(t, ml.ModelTypeRandomForest, entry.ModelName)

	// the artifacts serve predictions
	p, err := predictor.Load(predictor.Paths{Model: report.ModelPath, Encoders: report.EncodersPath}, predictor.DefaultOptions())
	require.NoError(t, err)
	res, err := p.Predict(ml.DefaultApplicant())
	require.NoError(t, err)
	assert.Equal(t, "test", res.ModelVersion)
	assert.Equal(t, res.Probability >= 50, res.Approved)

	app := ml.DefaultApplicant()
	app.PropertyArea = "Downtown"
	_, err = p.Predict(app)
	var unencodable *predictor.UnencodableInputError
	assert.True(t, errors.As(err, &unencodable))
}

func TestRunIsDeterministic(t *testing.T) {
	dataset := writeDataset(t, 80)
	trees := func() string {
		dir := t.TempDir()
		report, err := New(testOptions(dir)).Run(context.Background(), dataset)
		require.NoError(t, err)
		model, _, err := ml.LoadModel(report.ModelPath)
		require.NoError(t, err)
		data, err := json.Marshal(model)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, trees(), trees())
}

func TestRunSchemaError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.csv")
	require.NoError(t, os.WriteFile(path, []byte("Loan_ID,Gender,Loan_Status\nLP1,Male,Y\n"), 0o644))

	_, err := New(testOptions(t.TempDir())).Run(context.Background(), path)

	var schemaErr *pipeline.SchemaError
	require.True(t, errors.As(err, &schemaErr), "got %v", err)
	assert.Contains(t, schemaErr.Missing, ml.ColCreditHistory)
	assert.NotContains(t, schemaErr.Missing, ml.ColGender)
}

func TestRunRejectsBadInput(t *testing.T) {
	header := "Gender,Married,Dependents,Education,Self_Employed,ApplicantIncome," +
		"CoapplicantIncome,LoanAmount,Loan_Amount_Term,Credit_History,Property_Area,Loan_Status\n"
	tests := []struct {
		name string
		body string
	}{
		{"non numeric income", "Male,No,0,Graduate,No,lots,0,100,360,1,Urban,Y\nFemale,No,0,Graduate,No,10,0,100,360,0,Urban,N\n"},
		{"all missing column", "Male,No,0,Graduate,No,1,0,,360,1,Urban,Y\nFemale,No,0,Graduate,No,10,0,NA,360,0,Urban,N\n"},
		{"single class", "Male,No,0,Graduate,No,1,0,100,360,1,Urban,Y\nFemale,No,0,Graduate,No,10,0,100,360,0,Urban,Y\n"},
		{"approved label absent", "Male,No,0,Graduate,No,1,0,100,360,1,Urban,A\nFemale,No,0,Graduate,No,10,0,100,360,0,Urban,B\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.csv")
			require.NoError(t, os.WriteFile(path, []byte(header+tt.body), 0o644))
			dir := t.TempDir()
			_, err := New(testOptions(dir)).Run(context.Background(), path)
			assert.Error(t, err)
			assert.NoFileExists(t, filepath.Join(dir, ml.DefaultModelFile))
		})
	}
}

func TestRunMissingFile(t *testing.T) {
	_, err := New(testOptions(t.TempDir())).Run(context.Background(), filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

// A single approved row may land in the held-out partition; the model must
// still cover both classes so the predictor accepts the artifacts.
func TestRunRareClassHeldOut(t *testing.T) {
	header := "Gender,Married,Dependents,Education,Self_Employed,ApplicantIncome," +
		"CoapplicantIncome,LoanAmount,Loan_Amount_Term,Credit_History,Property_Area,Loan_Status\n"
	for approvedRow := 0; approvedRow < 10; approvedRow++ {
		t.Run(fmt.Sprintf("row %d", approvedRow), func(t *testing.T) {
			var sb strings.Builder
			sb.WriteString(header)
			for i := 0; i < 10; i++ {
				credit, label := 0, "N"
				if i == approvedRow {
					credit, label = 1, "Y"
				}
				fmt.Fprintf(&sb, "%s,No,0,Graduate,No,%d,0,%d,360,%d,Urban,%s\n",
					ml.GenderValues[i%2], 3000+i*100, 100+i, credit, label)
			}
			path := filepath.Join(t.TempDir(), "rare.csv")
			require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))

			opts := testOptions(t.TempDir())
			opts.NEstimators = 5
			report, err := New(opts).Run(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, 2, report.TestRows)

			model, _, err := ml.LoadModel(report.ModelPath)
			require.NoError(t, err)
			assert.Equal(t, 2, model.NumClasses())

			p, err := predictor.Load(predictor.Paths{Model: report.ModelPath, Encoders: report.EncodersPath}, predictor.DefaultOptions())
			require.NoError(t, err)
			res, err := p.Predict(ml.DefaultApplicant())
			require.NoError(t, err)
			assert.Equal(t, res.Probability >= 50, res.Approved)
		})
	}
}
