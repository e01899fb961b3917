package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-shop/models"
)

// OutputWriter persists a catalog snapshot. Each Write replaces the previous content.
type OutputWriter interface {
	Write(snapshot models.Snapshot) error
	Close() error
	Validate() error
}

// JSONWriter writes the snapshot as a JSON object keyed by product name.
type JSONWriter struct {
	file *os.File
	mu   sync.Mutex
}

// NewJSONWriter creates (or truncates) filename.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}
	return &JSONWriter{file: f}, nil
}

// Write replaces the file content with the snapshot, indented by two spaces.
func (jw *JSONWriter) Write(snapshot models.Snapshot) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := rewind(jw.file); err != nil {
		return err
	}

	buffer := bufio.NewWriter(jw.file)
	encoder := json.NewEncoder(buffer)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if snapshot == nil {
		snapshot = models.Snapshot{}
	}
	if err := encoder.Encode(snapshot); err != nil {
		return fmt.Errorf("encode json snapshot: %w", err)
	}
	if err := buffer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateNonEmpty(jw.file, "json")
}

// CSVWriter writes one row per product, sorted by name.
type CSVWriter struct {
	file *os.File
	mu   sync.Mutex
}

// NewCSVWriter creates (or truncates) filename.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	f, err := createFile(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	return &CSVWriter{file: f}, nil
}

// Write replaces the file content with a header row and the snapshot rows.
func (cw *CSVWriter) Write(snapshot models.Snapshot) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if err := rewind(cw.file); err != nil {
		return err
	}

	writer := csv.NewWriter(cw.file)
	if err := writer.Write([]string{"name", "price", "sku", "url"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, name := range snapshot.Names() {
		p := snapshot[name]
		if err := writer.Write([]string{p.Name, p.Price, p.SKU, p.URL}); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	return validateNonEmpty(cw.file, "csv")
}

func createFile(filename string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return os.Create(filename)
}

func rewind(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", f.Name(), err)
	}
	return nil
}

func validateNonEmpty(f *os.File, kind string) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
