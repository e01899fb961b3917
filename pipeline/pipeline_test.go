package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/scraper"
)

type fakeCategoryScraper struct {
	results map[string]*models.CategoryResult
	errs    map[string]error
	delay   map[string]time.Duration

	mu    sync.Mutex
	calls []string

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeCategoryScraper) ScrapeCategory(ctx context.Context, categoryURL string) (*models.CategoryResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, categoryURL)
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		current := f.maxActive.Load()
		if n <= current || f.maxActive.CompareAndSwap(current, n) {
			break
		}
	}

	if d := f.delay[categoryURL]; d > 0 {
		time.Sleep(d)
	}
	if err := f.errs[categoryURL]; err != nil {
		return nil, err
	}
	return f.results[categoryURL], nil
}

func categoryResult(url string, products ...models.Product) *models.CategoryResult {
	snap := make(models.Snapshot)
	for _, p := range products {
		snap.Put(p)
	}
	return &models.CategoryResult{
		URL:          url,
		PageCount:    1,
		PagesFetched: 1,
		ErrorsByType: map[string]int{},
		Products:     snap,
	}
}

func TestPipelineSequentialLastWriteWins(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workers = 1

	fake := &fakeCategoryScraper{results: map[string]*models.CategoryResult{
		"http://shop.test/guitars": categoryResult("http://shop.test/guitars",
			models.Product{Name: "Tuner", Price: "$20.00", SKU: "G-1"},
			models.Product{Name: "Strat", Price: "$999.00", SKU: "G-2"},
		),
		"http://shop.test/accessories": categoryResult("http://shop.test/accessories",
			models.Product{Name: "Tuner", Price: "$25.00", SKU: "A-1"},
		),
	}}

	p := NewPipeline(fake, cfg, scraper.NewMetrics())
	snapshot, result := p.Run(context.Background(), []string{"http://shop.test/guitars", "http://shop.test/accessories"})

	if got, want := fake.calls, []string{"http://shop.test/guitars", "http://shop.test/accessories"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if len(snapshot) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snapshot))
	}
	if snapshot["Tuner"].SKU != "A-1" {
		t.Fatalf("Tuner sku = %q, want the later category's A-1", snapshot["Tuner"].SKU)
	}
	if result.Collisions != 1 {
		t.Fatalf("collisions = %d, want 1", result.Collisions)
	}
	if result.TotalCount != 2 || result.PagesFetched != 2 {
		t.Fatalf("total/pages = %d/%d, want 2/2", result.TotalCount, result.PagesFetched)
	}
}

func TestPipelineFailedCategoryDoesNotStopOthers(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workers = 1

	fake := &fakeCategoryScraper{
		results: map[string]*models.CategoryResult{
			"http://shop.test/drums": categoryResult("http://shop.test/drums", models.Product{Name: "Snare"}),
		},
		errs: map[string]error{
			"http://shop.test/broken": &scraper.FetchError{URL: "http://shop.test/broken", StatusCode: 404, Err: scraper.ErrNotFound{Err: errors.New("http status 404")}},
		},
	}

	p := NewPipeline(fake, cfg, nil)
	snapshot, result := p.Run(context.Background(), []string{"http://shop.test/broken", "http://shop.test/drums"})

	if len(snapshot) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(snapshot))
	}
	if _, ok := result.FailedCategories["http://shop.test/broken"]; !ok {
		t.Fatalf("expected broken category to be recorded, got %v", result.FailedCategories)
	}
	if result.ErrorsByType["not_found"] != 1 {
		t.Fatalf("errors by type = %v", result.ErrorsByType)
	}
}

func TestPipelineWorkerPoolMergesAllCategories(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workers = 4

	fake := &fakeCategoryScraper{
		results: make(map[string]*models.CategoryResult),
		delay:   make(map[string]time.Duration),
	}
	var urls []string
	for i := 0; i < 12; i++ {
		url := fmt.Sprintf("http://shop.test/c%d", i)
		urls = append(urls, url)
		fake.results[url] = categoryResult(url,
			models.Product{Name: fmt.Sprintf("Item %d", i)},
			models.Product{Name: "Gift Card"},
		)
		fake.delay[url] = 5 * time.Millisecond
	}

	p := NewPipeline(fake, cfg, scraper.NewMetrics())
	p.StartProgressReporting(time.Millisecond)
	snapshot, result := p.Run(context.Background(), urls)

	if len(snapshot) != 13 {
		t.Fatalf("snapshot size = %d, want 13", len(snapshot))
	}
	if result.Collisions != 11 {
		t.Fatalf("collisions = %d, want 11", result.Collisions)
	}
	if got := fake.maxActive.Load(); got > 4 {
		t.Fatalf("max concurrent categories = %d, want <= 4", got)
	}
	if got := p.GetMetrics()["categories_done"].(int64); got != 12 {
		t.Fatalf("categories done = %d, want 12", got)
	}
}

func TestPipelineCanceledContext(t *testing.T) {
	cfg := config.DefaultConfig()
	fake := &fakeCategoryScraper{results: map[string]*models.CategoryResult{}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snapshot, result := NewPipeline(fake, cfg, nil).Run(ctx, []string{"http://shop.test/a", "http://shop.test/b"})
	if len(snapshot) != 0 {
		t.Fatalf("snapshot size = %d, want 0", len(snapshot))
	}
	if len(result.FailedCategories) != 2 || result.ErrorsByType["canceled"] != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("scraper should not be called after cancellation, got %v", fake.calls)
	}
}
