package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/parser"
)

const categoryURL = "http://shop.test/guitars"

func TestPageCount(t *testing.T) {
	tests := []struct {
		total    int
		pageSize int
		want     int
	}{
		{total: 0, pageSize: 36, want: 0},
		{total: 1, pageSize: 36, want: 1},
		{total: 36, pageSize: 36, want: 1},
		{total: 37, pageSize: 36, want: 2},
		{total: 1204, pageSize: 36, want: 34},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_by_%d", tt.total, tt.pageSize), func(t *testing.T) {
			if got := PageCount(tt.total, tt.pageSize); got != tt.want {
				t.Fatalf("PageCount(%d, %d) = %d, want %d", tt.total, tt.pageSize, got, tt.want)
			}
		})
	}
}

func TestPageURL(t *testing.T) {
	got, err := PageURL("http://shop.test/guitars?product_list_limit=36", 2, "p")
	if err != nil {
		t.Fatalf("page url: %v", err)
	}
	if want := "http://shop.test/guitars?p=2&product_list_limit=36"; got != want {
		t.Fatalf("PageURL = %q, want %q", got, want)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server", err: nil, statusCode: http.StatusBadGateway, expected: "server"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorType(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestErrorTypeLabels(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{err: &parser.ExtractionError{Field: "total count"}, expected: "extraction"},
		{err: fmt.Errorf("wrapped: %w", context.Canceled), expected: "canceled"},
		{err: &FetchError{URL: categoryURL, StatusCode: http.StatusGone, Err: errors.New("http status 410")}, expected: "http_status"},
	}
	for _, tt := range tests {
		if got := ErrorType(tt.err); got != tt.expected {
			t.Errorf("ErrorType(%v) = %q, want %q", tt.err, got, tt.expected)
		}
	}
}

func TestScrapeCategoryStopsAtComputedPageCount(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 2

	page1 := buildCategoryPage(4, []string{"Strat", "Tele"}, true)
	// the second page still advertises a next page; the page count wins
	page2 := buildCategoryPage(4, []string{"Tele", "Jazzmaster"}, true)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryURL, htmlResponder(page1))
	transport.RegisterResponder("GET", categoryURL+"?p=1", htmlResponder(page1))
	transport.RegisterResponder("GET", categoryURL+"?p=2", htmlResponder(page2))
	transport.RegisterResponder("GET", categoryURL+"?p=3", htmlResponder(page2))

	s := newMockedScraper(cfg, transport)

	result, err := s.ScrapeCategory(context.Background(), categoryURL)
	if err != nil {
		t.Fatalf("scrape category: %v", err)
	}

	if got := transport.GetTotalCallCount(); got != 3 {
		t.Fatalf("requests = %d, want 3 (count discovery + 2 pages); calls=%v", got, transport.GetCallCountInfo())
	}
	if result.PageCount != 2 || result.PagesFetched != 2 {
		t.Fatalf("pages = %d/%d, want 2/2", result.PagesFetched, result.PageCount)
	}
	if got, want := result.Products.Names(), []string{"Jazzmaster", "Strat", "Tele"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	if result.Collisions != 1 {
		t.Fatalf("collisions = %d, want 1", result.Collisions)
	}
	if result.NextMismatches != 1 {
		t.Fatalf("next mismatches = %d, want 1", result.NextMismatches)
	}

	tele := result.Products["Tele"]
	if tele.URL != "http://shop.test/p/tele.html" || tele.Price != "$4.00" || tele.SKU != "SKU-Tele" {
		t.Fatalf("unexpected Tele record: %+v", tele)
	}
}

func TestScrapeCategorySkipsFailedPages(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 1

	page1 := buildCategoryPage(3, []string{"Strat"}, true)
	page3 := buildCategoryPage(3, []string{"Jazzmaster"}, false)

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryURL, htmlResponder(page1))
	transport.RegisterResponder("GET", categoryURL+"?p=1", htmlResponder(page1))
	transport.RegisterResponder("GET", categoryURL+"?p=2", httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))
	transport.RegisterResponder("GET", categoryURL+"?p=3", htmlResponder(page3))

	s := newMockedScraper(cfg, transport)

	result, err := s.ScrapeCategory(context.Background(), categoryURL)
	if err != nil {
		t.Fatalf("scrape category: %v", err)
	}
	if result.PagesFetched != 2 || result.SkippedPages != 1 {
		t.Fatalf("fetched/skipped = %d/%d, want 2/1", result.PagesFetched, result.SkippedPages)
	}
	if len(result.SkippedURLs) != 1 || result.SkippedURLs[0] != categoryURL+"?p=2" {
		t.Fatalf("skipped urls = %v", result.SkippedURLs)
	}
	if result.ErrorsByType["server"] != 1 {
		t.Fatalf("errors by type = %v, want one server error", result.ErrorsByType)
	}
	if len(result.Products) != 2 {
		t.Fatalf("products = %d, want 2", len(result.Products))
	}
}

func TestScrapeCategoryPageCountFailures(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		check     func(t *testing.T, err error)
	}{
		{
			name:      "not found",
			responder: httpmock.NewStringResponder(http.StatusNotFound, ""),
			check: func(t *testing.T, err error) {
				var fetchErr *FetchError
				if !errors.As(err, &fetchErr) || fetchErr.StatusCode != http.StatusNotFound {
					t.Fatalf("expected 404 FetchError, got %v", err)
				}
				if got := ErrorType(err); got != "not_found" {
					t.Fatalf("error type = %q, want not_found", got)
				}
			},
		},
		{
			name:      "missing indicator",
			responder: htmlResponder("<html><body><p>Nothing here</p></body></html>"),
			check: func(t *testing.T, err error) {
				var extractionErr *parser.ExtractionError
				if !errors.As(err, &extractionErr) {
					t.Fatalf("expected ExtractionError, got %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := httpmock.NewMockTransport()
			transport.RegisterResponder("GET", categoryURL, tt.responder)

			s := newMockedScraper(testConfig(), transport)
			result, err := s.ScrapeCategory(context.Background(), categoryURL)
			if result != nil {
				t.Fatalf("expected no result, got %+v", result)
			}
			tt.check(t, err)
			if got := transport.GetTotalCallCount(); got != 1 {
				t.Fatalf("requests = %d, want 1", got)
			}
		})
	}
}

func TestScrapeCategoryZeroProducts(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryURL, htmlResponder(buildCategoryPage(0, nil, false)))

	s := newMockedScraper(testConfig(), transport)
	result, err := s.ScrapeCategory(context.Background(), categoryURL)
	if err != nil {
		t.Fatalf("scrape category: %v", err)
	}
	if result.PageCount != 0 || len(result.Products) != 0 {
		t.Fatalf("expected empty category, got %+v", result)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("requests = %d, want 1", got)
	}
}

func TestScrapeCategoryFetchesPagesInOrder(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 1
	fetcher := &recordingFetcher{pages: map[string]string{
		categoryURL:          buildCategoryPage(3, []string{"A"}, true),
		categoryURL + "?p=1": buildCategoryPage(3, []string{"A"}, true),
		categoryURL + "?p=2": buildCategoryPage(3, []string{"B"}, true),
		categoryURL + "?p=3": buildCategoryPage(3, []string{"C"}, false),
	}}

	s := New(cfg, fetcher, nil)
	if _, err := s.ScrapeCategory(context.Background(), categoryURL); err != nil {
		t.Fatalf("scrape category: %v", err)
	}

	want := []string{categoryURL, categoryURL + "?p=1", categoryURL + "?p=2", categoryURL + "?p=3"}
	if !reflect.DeepEqual(fetcher.requested(), want) {
		t.Fatalf("requests = %v, want %v", fetcher.requested(), want)
	}
}

func TestScrapeCategoryCanceled(t *testing.T) {
	cfg := testConfig()
	cfg.PageSize = 1
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &recordingFetcher{
		pages: map[string]string{
			categoryURL:          buildCategoryPage(3, []string{"A"}, true),
			categoryURL + "?p=1": buildCategoryPage(3, []string{"A"}, true),
		},
		afterFetch: func(url string) {
			if url == categoryURL+"?p=1" {
				cancel()
			}
		},
	}

	result, err := New(cfg, fetcher, nil).ScrapeCategory(ctx, categoryURL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result == nil || result.PagesFetched != 1 || len(result.Products) != 1 {
		t.Fatalf("expected partial result with one page, got %+v", result)
	}
}

func TestCollyFetcherReturnsErrorStatusAsPage(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryURL, httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

	fetcher := NewCollyFetcher(testConfig(), NewMetrics())
	fetcher.WithTransport(transport)

	page, err := fetcher.Fetch(context.Background(), categoryURL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if page.StatusCode != http.StatusServiceUnavailable || string(page.Body) != "down" {
		t.Fatalf("page = %d %q", page.StatusCode, page.Body)
	}
}

func TestCollyFetcherTransportError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", categoryURL, httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	fetcher := NewCollyFetcher(testConfig(), nil)
	fetcher.WithTransport(transport)

	_, err := fetcher.Fetch(context.Background(), categoryURL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if got := ErrorType(err); got != "connection" {
		t.Fatalf("error type = %q, want connection", got)
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.PageSize = 36
	return cfg
}

func newMockedScraper(cfg *config.Config, transport http.RoundTripper) *Scraper {
	metrics := NewMetrics()
	fetcher := NewCollyFetcher(cfg, metrics)
	fetcher.WithTransport(transport)
	return New(cfg, fetcher, metrics)
}

type recordingFetcher struct {
	mu         sync.Mutex
	pages      map[string]string
	urls       []string
	afterFetch func(url string)
}

func (f *recordingFetcher) Fetch(_ context.Context, rawURL string) (*Page, error) {
	f.mu.Lock()
	f.urls = append(f.urls, rawURL)
	body, ok := f.pages[rawURL]
	f.mu.Unlock()

	if f.afterFetch != nil {
		defer f.afterFetch(rawURL)
	}
	if !ok {
		return &Page{URL: rawURL, StatusCode: http.StatusNotFound}, nil
	}
	return &Page{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func (f *recordingFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.urls))
	copy(out, f.urls)
	return out
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func buildCategoryPage(total int, names []string, hasNext bool) string {
	var builder strings.Builder
	builder.WriteString("<html><body>")
	fmt.Fprintf(&builder, "<p class=\"toolbar-amount\" id=\"toolbar-amount\"><span class=\"toolbar-number\">%d</span> Items</p>", total)
	builder.WriteString("<ol class=\"products\">")

	for _, name := range names {
		builder.WriteString("<li><div class=\"product-item-info\">")
		fmt.Fprintf(&builder, "<span class=\"product-name\"><a href=\"/p/%s.html\">%s</a></span>", strings.ToLower(name), name)
		fmt.Fprintf(&builder, "<span class=\"price\">$%d.00</span>", len(name))
		fmt.Fprintf(&builder, "<span class=\"product-sku\">SKU-%s</span>", name)
		builder.WriteString("</div></li>")
	}
	builder.WriteString("</ol>")

	if hasNext {
		builder.WriteString("<ul class=\"pages\"><li class=\"pages-item-next\"><a href=\"#\">Next</a></li></ul>")
	}

	builder.WriteString("</body></html>")
	return builder.String()
}
