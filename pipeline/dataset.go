package pipeline

import (
	"fmt"
	"strings"
)

// Dataset 表格数据集: one header row plus string cells.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// SchemaError 数据集缺少必需的列
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("dataset is missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ColumnIndex returns the position of name in the header, or -1.
func (d *Dataset) ColumnIndex(name string) int {
	for i, h := range d.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of one column.
func (d *Dataset) Column(name string) ([]string, error) {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %s not found", name)
	}
	values := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		values[i] = row[idx]
	}
	return values, nil
}

// RequireColumns fails with a SchemaError listing every absent column.
func (d *Dataset) RequireColumns(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if d.ColumnIndex(c) < 0 {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// DropColumn removes a column and reports whether it was present.
func (d *Dataset) DropColumn(name string) bool {
	idx := d.ColumnIndex(name)
	if idx < 0 {
		return false
	}
	d.Header = append(d.Header[:idx:idx], d.Header[idx+1:]...)
	for i, row := range d.Rows {
		d.Rows[i] = append(row[:idx:idx], row[idx+1:]...)
	}
	return true
}

// Select keeps only columns, in the given order, and returns the names of the
// columns that were dropped.
func (d *Dataset) Select(columns []string) ([]string, error) {
	if err := d.RequireColumns(columns...); err != nil {
		return nil, err
	}
	positions := make([]int, len(columns))
	keep := make(map[string]bool, len(columns))
	for i, c := range columns {
		positions[i] = d.ColumnIndex(c)
		keep[c] = true
	}
	var dropped []string
	for _, h := range d.Header {
		if !keep[h] {
			dropped = append(dropped, h)
		}
	}
	for i, row := range d.Rows {
		selected := make([]string, len(positions))
		for j, p := range positions {
			selected[j] = row[p]
		}
		d.Rows[i] = selected
	}
	d.Header = append([]string(nil), columns...)
	return dropped, nil
}

// CountMissing returns the number of missing cells per column.
func (d *Dataset) CountMissing(markers []string) map[string]int {
	counts := make(map[string]int)
	for _, row := range d.Rows {
		for j, cell := range row {
			if IsMissing(cell, markers) {
				counts[d.Header[j]]++
			}
		}
	}
	return counts
}

// DefaultMissingMarkers are the cell values treated as absent, compared
// case-insensitively after trimming. The empty cell is always missing.
var DefaultMissingMarkers = []string{"NA", "N/A", "NaN", "null", "None"}

// IsMissing reports whether cell holds no value.
func IsMissing(cell string, markers []string) bool {
	v := strings.TrimSpace(cell)
	if v == "" {
		return true
	}
	for _, m := range markers {
		if strings.EqualFold(v, m) {
			return true
		}
	}
	return false
}
