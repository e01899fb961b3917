// Package parser extracts products, counters and links from listing markup.
package parser

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
)

// ExtractionError reports markup that lacks an expected element.
type ExtractionError struct {
	URL   string
	Field string
}

func (e *ExtractionError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("extraction: missing %s", e.Field)
	}
	return fmt.Sprintf("extraction: missing %s in %s", e.Field, e.URL)
}

// ExtractPage parses one category page. Product blocks lacking a required
// field are skipped with a warning and counted in PageResult.Malformed.
func ExtractPage(r io.Reader, pageURL string, sel config.Selectors) (*models.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	result := &models.PageResult{URL: pageURL}
	doc.Find(sel.ProductBlock).Each(func(i int, block *goquery.Selection) {
		product, err := ExtractProduct(block, base, sel)
		if err != nil {
			result.Malformed++
			slog.Warn("skipping malformed product block",
				slog.String("url", pageURL),
				slog.Int("index", i),
				slog.Any("error", err),
			)
			return
		}
		result.Products = append(result.Products, product)
	})
	result.HasNext = doc.Find(sel.NextPage).Length() > 0
	return result, nil
}

// ExtractProduct reads the four product fields from a product block.
// The detail URL is resolved against base.
func ExtractProduct(block *goquery.Selection, base *url.URL, sel config.Selectors) (models.Product, error) {
	product := models.Product{
		Name:  NormalizeText(block.Find(sel.Name).First().Text()),
		Price: NormalizeText(block.Find(sel.Price).First().Text()),
		SKU:   NormalizeText(block.Find(sel.SKU).First().Text()),
	}

	href, _ := block.Find(sel.Link).First().Attr("href")
	href = strings.TrimSpace(href)
	if href != "" {
		ref, err := url.Parse(href)
		if err != nil {
			return models.Product{}, &ExtractionError{URL: base.String(), Field: "url"}
		}
		product.URL = base.ResolveReference(ref).String()
	}

	if err := ValidateProduct(product); err != nil {
		err.URL = base.String()
		return models.Product{}, err
	}
	return product, nil
}

// ValidateProduct ensures the scraper captured every required field.
// The returned error names the first missing field.
func ValidateProduct(p models.Product) *ExtractionError {
	switch {
	case p.Name == "":
		return &ExtractionError{Field: "name"}
	case p.Price == "":
		return &ExtractionError{Field: "price"}
	case p.SKU == "":
		return &ExtractionError{Field: "sku"}
	case p.URL == "":
		return &ExtractionError{Field: "url"}
	}
	return nil
}

// ExtractTotalCount reads the total item count from the last element
// matching selector, e.g. "Items 1-36 of <span>1,204</span>".
func ExtractTotalCount(r io.Reader, pageURL, selector string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return 0, fmt.Errorf("parse html: %w", err)
	}

	matches := doc.Find(selector)
	if matches.Length() == 0 {
		return 0, &ExtractionError{URL: pageURL, Field: "total count"}
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, matches.Last().Text())

	total, err := strconv.Atoi(digits)
	if err != nil || total < 0 {
		return 0, &ExtractionError{URL: pageURL, Field: "total count"}
	}
	return total, nil
}

// ExtractLinks returns the absolute http(s) hrefs of elements matching selector,
// in document order.
func ExtractLinks(r io.Reader, pageURL, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var links []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		links = append(links, abs.String())
	})
	return links, nil
}

// NormalizeText collapses runs of whitespace and trims the result.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
