// Package catalog loads a scraped snapshot and computes price statistics over it.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-shop/models"
)

// ErrEmptyCatalog is returned when a statistic is requested over no priced products.
var ErrEmptyCatalog = errors.New("catalog: no products to aggregate")

// ParseError reports price text that is not a number once currency
// symbols and thousands separators are removed.
type ParseError struct {
	Name string
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("parse price %q: %v", e.Text, e.Err)
	}
	return fmt.Sprintf("parse price %q for %q: %v", e.Text, e.Name, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads a snapshot file. The file is normally a JSON object keyed by
// product name; a JSON array of products is also accepted and merged in
// order, later entries replacing earlier ones.
func Load(path string) (models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var products []models.Product
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, fmt.Errorf("decode snapshot array: %w", err)
		}
		snapshot := make(models.Snapshot, len(products))
		for _, p := range products {
			snapshot.Put(p)
		}
		return snapshot, nil
	}

	snapshot := make(models.Snapshot)
	if err := json.Unmarshal(trimmed, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, nil
}

// ParsePrice converts display text such as "$1,299.00", "AU$ 45" or
// "45.00 AUD" to a decimal. Failures are returned as *ParseError.
func ParsePrice(text string) (decimal.Decimal, error) {
	cleaned := strings.TrimFunc(text, isCurrencyNoise)
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" {
		return decimal.Decimal{}, &ParseError{Text: text, Err: errors.New("no digits")}
	}
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, &ParseError{Text: text, Err: err}
	}
	return price, nil
}

func isCurrencyNoise(r rune) bool {
	return unicode.Is(unicode.Sc, r) || unicode.IsLetter(r) || unicode.IsSpace(r)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
