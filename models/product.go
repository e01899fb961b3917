// Package models defines data structures for the scraper.
package models

import (
	"sort"
	"time"
)

// Product is one listing as displayed on a category page.
type Product struct {
	Name  string `csv:"name" json:"name"`
	Price string `csv:"price" json:"price"`
	SKU   string `csv:"sku" json:"sku"`
	URL   string `csv:"url" json:"url"`
}

// PageResult holds the products extracted from a single category page.
type PageResult struct {
	URL       string
	Products  []Product
	HasNext   bool
	Malformed int
}

// Snapshot maps product name to product. Later writes replace earlier ones.
type Snapshot map[string]Product

// Put stores p under its name and reports whether an entry was replaced.
func (s Snapshot) Put(p Product) bool {
	_, replaced := s[p.Name]
	s[p.Name] = p
	return replaced
}

// Merge puts every entry of other into s and returns the number of replaced keys.
func (s Snapshot) Merge(other Snapshot) int {
	replaced := 0
	for _, p := range other {
		if s.Put(p) {
			replaced++
		}
	}
	return replaced
}

// Names returns the snapshot keys in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CategoryResult is the outcome of scraping every page of one category.
type CategoryResult struct {
	URL            string
	PageCount      int
	PagesFetched   int
	SkippedPages   int
	SkippedURLs    []string
	NextMismatches int
	Malformed      int
	Collisions     int
	ErrorsByType   map[string]int
	Products       Snapshot
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	StartTime        time.Time
	EndTime          time.Time
	Categories       int
	FailedCategories map[string]string
	PagesFetched     int
	SkippedPages     int
	SkippedURLs      []string
	Malformed        int
	Collisions       int
	ErrorsByType     map[string]int
	TotalCount       int
}
