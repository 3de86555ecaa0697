package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Writer serializes records in one file format.
type Writer interface {
	Extension() string
	Write(w io.Writer, records []Record) error
}

type CSVWriter struct{}

func (CSVWriter) Extension() string { return "csv" }

func (CSVWriter) Write(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return err
	}
	for i := range records {
		if err := cw.Write(records[i].Values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type ParquetWriter struct{}

func (ParquetWriter) Extension() string { return "parquet" }

func (ParquetWriter) Write(w io.Writer, records []Record) error {
	return parquet.Write(w, records)
}

type JSONWriter struct{}

func (JSONWriter) Extension() string { return "json" }

func (JSONWriter) Write(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// NewWriter returns the writer for format: csv, parquet or json.
func NewWriter(format string) (Writer, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return CSVWriter{}, nil
	case "parquet":
		return ParquetWriter{}, nil
	case "json":
		return JSONWriter{}, nil
	}
	return nil, fmt.Errorf("unknown export format %q (use csv, parquet or json)", format)
}

// WriteFile writes records to path, replacing the extension with the
// writer's own, and returns the path written.
func WriteFile(path string, w Writer, records []Record) (string, error) {
	path = strings.TrimSuffix(path, filepath.Ext(path)) + "." + w.Extension()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := w.Write(f, records); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
