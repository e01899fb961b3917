package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/parser"
)

// Scraper walks the pages of a category and merges the products it finds.
type Scraper struct {
	cfg     *config.Config
	fetcher Fetcher
	Metrics *Metrics
}

// NewScraper builds a scraper backed by a colly fetcher configured from cfg.
func NewScraper(cfg *config.Config) *Scraper {
	metrics := NewMetrics()
	return New(cfg, NewCollyFetcher(cfg, metrics), metrics)
}

// New builds a scraper around an existing fetcher. metrics may be nil.
func New(cfg *config.Config, fetcher Fetcher, metrics *Metrics) *Scraper {
	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		Metrics: metrics,
	}
}

// Fetcher returns the fetcher used for every request.
func (s *Scraper) Fetcher() Fetcher {
	return s.fetcher
}

// PageCount returns ceil(totalItems / pageSize); zero items yield zero pages.
func PageCount(totalItems, pageSize int) int {
	if totalItems <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalItems + pageSize - 1) / pageSize
}

// PageURL sets the page query parameter on a category URL.
func PageURL(categoryURL string, page int, param string) (string, error) {
	u, err := url.Parse(categoryURL)
	if err != nil {
		return "", fmt.Errorf("parse category url: %w", err)
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// PageCount fetches the category base URL once and derives the number of
// pages from its total item indicator.
func (s *Scraper) PageCount(ctx context.Context, categoryURL string) (int, error) {
	body, err := FetchOK(ctx, s.fetcher, categoryURL)
	if err != nil {
		return 0, err
	}
	total, err := parser.ExtractTotalCount(bytes.NewReader(body), categoryURL, s.cfg.Selectors.TotalCount)
	if err != nil {
		return 0, err
	}
	return PageCount(total, s.cfg.PageSize), nil
}

// ScrapePage fetches one paginated URL and extracts its products.
func (s *Scraper) ScrapePage(ctx context.Context, pageURL string) (*models.PageResult, error) {
	body, err := FetchOK(ctx, s.fetcher, pageURL)
	if err != nil {
		return nil, err
	}
	result, err := parser.ExtractPage(bytes.NewReader(body), pageURL, s.cfg.Selectors)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", pageURL, err)
	}
	s.Metrics.AddItems(len(result.Products))
	s.Metrics.AddMalformed(result.Malformed)
	return result, nil
}

// ScrapeCategory fetches pages 1..n in order, where n comes from PageCount.
// Failed pages are skipped and recorded on the result. A page count failure
// aborts the category. Cancellation returns the partial result with ctx.Err().
func (s *Scraper) ScrapeCategory(ctx context.Context, categoryURL string) (*models.CategoryResult, error) {
	pages, err := s.PageCount(ctx, categoryURL)
	if err != nil {
		s.Metrics.IncError(ErrorType(err))
		return nil, fmt.Errorf("page count for %s: %w", categoryURL, err)
	}

	result := &models.CategoryResult{
		URL:          categoryURL,
		PageCount:    pages,
		ErrorsByType: make(map[string]int),
		Products:     make(models.Snapshot),
	}
	logger := slog.With(slog.String("category", categoryURL))
	logger.Info("scraping category", slog.Int("pages", pages))

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pageURL, err := PageURL(categoryURL, page, s.cfg.PageParam)
		if err != nil {
			return result, err
		}

		pr, err := s.ScrapePage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			category := ErrorType(err)
			result.SkippedPages++
			result.SkippedURLs = append(result.SkippedURLs, pageURL)
			result.ErrorsByType[category]++
			s.Metrics.IncPage("skipped")
			s.Metrics.IncError(category)
			logger.Warn("skipping page",
				slog.Int("page", page),
				slog.String("url", pageURL),
				slog.String("error_type", category),
				slog.Any("error", err),
			)
			continue
		}

		result.PagesFetched++
		result.Malformed += pr.Malformed
		s.Metrics.IncPage("fetched")

		if pr.HasNext != (page < pages) {
			result.NextMismatches++
			logger.Warn("next page control disagrees with page count",
				slog.Int("page", page),
				slog.Int("pages", pages),
				slog.Bool("has_next", pr.HasNext),
			)
		}

		for _, product := range pr.Products {
			if result.Products.Put(product) {
				result.Collisions++
				logger.Debug("product name collision", slog.String("name", product.Name), slog.String("sku", product.SKU))
			}
		}

		logger.Info("page scraped",
			slog.Int("page", page),
			slog.Int("pages", pages),
			slog.Int("products", len(pr.Products)),
		)
	}

	s.Metrics.AddCollisions(result.Collisions)
	return result, nil
}
