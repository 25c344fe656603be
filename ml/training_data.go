package ml

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// BuildTrainingSet turns a cleaned string table into feature vectors and
// encoded labels. Vectors follow FeatureNames order; categorical columns go
// through their encoder, everything else must parse as a number.
func BuildTrainingSet(header []string, rows [][]string, encoders EncoderSet, target string) (features [][]float64, labels []int, err error) {
	if len(rows) == 0 {
		return nil, nil, errors.New("dataset is empty")
	}
	targetIdx := indexOf(header, target)
	if targetIdx < 0 {
		return nil, nil, fmt.Errorf("target column %s not found", target)
	}
	targetEncoder, ok := encoders[target]
	if !ok {
		return nil, nil, fmt.Errorf("no encoder for target column %s", target)
	}

	names := FeatureNames()
	columns := make([]int, len(names))
	for i, name := range names {
		columns[i] = indexOf(header, name)
		if columns[i] < 0 {
			return nil, nil, fmt.Errorf("feature column %s not found", name)
		}
	}

	features = make([][]float64, 0, len(rows))
	labels = make([]int, 0, len(rows))
	for r, row := range rows {
		vector := make([]float64, len(names))
		for i, name := range names {
			value, err := parseCell(name, row[columns[i]], encoders)
			if err != nil {
				// +2: header line plus one-based numbering
				return nil, nil, fmt.Errorf("line %d: %w", r+2, err)
			}
			vector[i] = value
		}
		label, err := targetEncoder.Transform(row[targetIdx])
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", r+2, err)
		}
		features = append(features, vector)
		labels = append(labels, label)
	}
	return features, labels, nil
}

func parseCell(column, raw string, encoders EncoderSet) (float64, error) {
	if enc, ok := encoders[column]; ok && IsCategorical(column) {
		code, err := enc.Transform(raw)
		return float64(code), err
	}
	if column == ColDependents {
		n, err := NormalizeDependents(raw)
		return float64(n), err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not numeric", column, raw)
	}
	return v, nil
}
