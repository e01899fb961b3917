// Package links discovers category URLs on a storefront homepage and
// reads and writes the newline-separated link list.
package links

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/parser"
	"github.com/aluiziolira/go-scrape-shop/scraper"
)

// Discoverer extracts category links from a homepage.
type Discoverer struct {
	fetcher  scraper.Fetcher
	selector string
	maxLinks int
}

// NewDiscoverer builds a discoverer using cfg's category link selector.
func NewDiscoverer(fetcher scraper.Fetcher, cfg *config.Config) *Discoverer {
	return &Discoverer{
		fetcher:  fetcher,
		selector: cfg.Selectors.CategoryLink,
		maxLinks: cfg.MaxLinks,
	}
}

// Discover fetches homeURL and returns its category links in first-seen order
// without duplicates. At most maxLinks distinct links are remembered.
func (d *Discoverer) Discover(ctx context.Context, homeURL string) ([]string, error) {
	body, err := scraper.FetchOK(ctx, d.fetcher, homeURL)
	if err != nil {
		return nil, err
	}

	found, err := parser.ExtractLinks(bytes.NewReader(body), homeURL, d.selector)
	if err != nil {
		return nil, fmt.Errorf("extract links from %s: %w", homeURL, err)
	}

	seen, err := lru.New[string, struct{}](d.maxLinks)
	if err != nil {
		return nil, fmt.Errorf("create link cache: %w", err)
	}

	links := make([]string, 0, len(found))
	for _, link := range found {
		if ok, _ := seen.ContainsOrAdd(link, struct{}{}); ok {
			continue
		}
		links = append(links, link)
	}

	slog.Info("discovered category links",
		slog.String("home", homeURL),
		slog.Int("matched", len(found)),
		slog.Int("unique", len(links)),
	)
	return links, nil
}

// WriteLinks writes one URL per line, replacing path.
func WriteLinks(path string, urls []string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	var buf bytes.Buffer
	for _, u := range urls {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write links file: %w", err)
	}
	return nil
}

// ReadLinks returns the non-blank, trimmed lines of path.
func ReadLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open links file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read links file: %w", err)
	}
	return urls, nil
}
