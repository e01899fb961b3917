package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/scraper"
)

// CategoryScraper scrapes every page of one category.
type CategoryScraper interface {
	ScrapeCategory(ctx context.Context, categoryURL string) (*models.CategoryResult, error)
}

// Pipeline runs category scrapes and merges their products into one snapshot.
//
// With one worker, categories run in input order and the merge is
// deterministic. With more, each worker scrapes a whole category and hands
// its local result to the coordinator; which record wins a cross-category
// name collision then depends on completion order.
type Pipeline struct {
	scraper CategoryScraper
	workers int
	metrics *scraper.Metrics

	done     atomic.Int64
	total    atomic.Int64
	products atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

type outcome struct {
	url    string
	result *models.CategoryResult
	err    error
}

// NewPipeline builds a pipeline. metrics may be nil.
func NewPipeline(s CategoryScraper, cfg *config.Config, metrics *scraper.Metrics) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		scraper:  s,
		workers:  workers,
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}
}

// Run scrapes every URL and returns the merged snapshot. A failed category is
// recorded in the result and never stops the others.
func (p *Pipeline) Run(ctx context.Context, urls []string) (models.Snapshot, *models.ScraperResult) {
	defer p.signalShutdown()

	p.total.Store(int64(len(urls)))
	snapshot := make(models.Snapshot)
	result := &models.ScraperResult{
		StartTime:        time.Now(),
		Categories:       len(urls),
		FailedCategories: make(map[string]string),
		ErrorsByType:     make(map[string]int),
	}

	for o := range p.dispatch(ctx, urls) {
		p.merge(snapshot, result, o)
		p.done.Add(1)
		p.products.Store(int64(len(snapshot)))
	}

	result.TotalCount = len(snapshot)
	result.EndTime = time.Now()
	return snapshot, result
}

func (p *Pipeline) dispatch(ctx context.Context, urls []string) <-chan outcome {
	out := make(chan outcome)

	if p.workers == 1 {
		go func() {
			defer close(out)
			for _, u := range urls {
				out <- p.scrape(ctx, u)
			}
		}()
		return out
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				out <- p.scrape(ctx, u)
			}
		}()
	}

	go func() {
		for _, u := range urls {
			jobs <- u
		}
		close(jobs)
		wg.Wait()
		close(out)
	}()
	return out
}

func (p *Pipeline) scrape(ctx context.Context, categoryURL string) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{url: categoryURL, err: err}
	}
	res, err := p.scraper.ScrapeCategory(ctx, categoryURL)
	return outcome{url: categoryURL, result: res, err: err}
}

// merge runs on the coordinating goroutine only.
func (p *Pipeline) merge(snapshot models.Snapshot, result *models.ScraperResult, o outcome) {
	if o.err != nil {
		result.FailedCategories[o.url] = o.err.Error()
		category := scraper.ErrorType(o.err)
		result.ErrorsByType[category]++
		p.metrics.IncCategory("failed")
		level := slog.LevelError
		if errors.Is(o.err, context.Canceled) {
			level = slog.LevelWarn
		}
		slog.Log(context.Background(), level, "category failed",
			slog.String("url", o.url),
			slog.String("error_type", category),
			slog.Any("error", o.err),
		)
	} else {
		p.metrics.IncCategory("ok")
	}

	// partial results from an interrupted category are still merged
	if o.result == nil {
		return
	}

	r := o.result
	result.PagesFetched += r.PagesFetched
	result.SkippedPages += r.SkippedPages
	result.SkippedURLs = append(result.SkippedURLs, r.SkippedURLs...)
	result.Malformed += r.Malformed
	for k, v := range r.ErrorsByType {
		result.ErrorsByType[k] += v
	}

	crossCollisions := snapshot.Merge(r.Products)
	result.Collisions += r.Collisions + crossCollisions
	p.metrics.AddCollisions(crossCollisions)

	slog.Info("category merged",
		slog.String("url", o.url),
		slog.Int("products", len(r.Products)),
		slog.Int("pages", r.PagesFetched),
		slog.Int("skipped_pages", r.SkippedPages),
		slog.Int("collisions", r.Collisions+crossCollisions),
	)
}

// GetMetrics returns a snapshot of the progress counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"categories_done":  p.done.Load(),
		"categories_total": p.total.Load(),
		"products":         p.products.Load(),
	}
}

// StartProgressReporting emits periodic progress logs until Run returns.
func (p *Pipeline) StartProgressReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				slog.Info("pipeline progress",
					slog.Int64("categories_done", p.done.Load()),
					slog.Int64("categories_total", p.total.Load()),
					slog.Int64("products", p.products.Load()),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}
