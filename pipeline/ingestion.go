package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// IngestionConfig 数据导入配置
type IngestionConfig struct {
	// Charset is a WHATWG encoding label such as "utf-8", "windows-1252" or
	// "gbk". Empty means UTF-8.
	Charset string
	// Comma is the field delimiter; zero means ','.
	Comma rune
}

// LoadCSV reads a delimited file with a header row.
func LoadCSV(path string, cfg IngestionConfig) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV decodes r from cfg.Charset and parses it as CSV.
func ReadCSV(r io.Reader, cfg IngestionConfig) (*Dataset, error) {
	enc, err := lookupCharset(cfg.Charset)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		r = transform.NewReader(r, enc.NewDecoder())
	}

	reader := csv.NewReader(r)
	if cfg.Comma != 0 {
		reader.Comma = cfg.Comma
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("dataset is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("header column %d is blank", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate header column %s", h)
		}
		seen[h] = true
		header[i] = h
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, record)
	}
	return &Dataset{Header: header, Rows: rows}, nil
}

// lookupCharset resolves a charset label; nil means the input is already UTF-8.
func lookupCharset(label string) (encoding.Encoding, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc, nil
}
