package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-shop/models"
)

// DualWriter writes the same snapshot as JSON and CSV. A failure in one
// format does not prevent the other from being written.
type DualWriter struct {
	writers []namedWriter
}

type namedWriter struct {
	format string
	OutputWriter
}

// NewDualWriter creates both output files.
func NewDualWriter(jsonFilename, csvFilename string) (*DualWriter, error) {
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, err
	}
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		_ = jsonWriter.Close()
		return nil, err
	}
	return &DualWriter{writers: []namedWriter{
		{format: "json", OutputWriter: jsonWriter},
		{format: "csv", OutputWriter: csvWriter},
	}}, nil
}

// Write writes the snapshot in every format and joins the failures.
func (dw *DualWriter) Write(snapshot models.Snapshot) error {
	return dw.each("write", func(w OutputWriter) error { return w.Write(snapshot) })
}

// Close closes every file.
func (dw *DualWriter) Close() error {
	return dw.each("close", OutputWriter.Close)
}

// Validate checks that every file has content.
func (dw *DualWriter) Validate() error {
	return dw.each("validate", OutputWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, w := range dw.writers {
		if err := fn(w.OutputWriter); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", op, w.format, err))
		}
	}
	return errors.Join(errs...)
}

// NewWriter returns the writer for format: json, csv, or dual. In dual mode
// the CSV file sits next to filename with a .csv extension.
func NewWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "json":
		return NewJSONWriter(filename)
	case "csv":
		return NewCSVWriter(filename)
	case "dual":
		return NewDualWriter(filename, strings.TrimSuffix(filename, ".json")+".csv")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}
