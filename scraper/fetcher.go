package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-shop/config"
)

const (
	ctxStart  = "start"
	ctxStatus = "status"
	ctxBody   = "body"
)

// Page is a fetched document. Error statuses are returned as pages, not errors.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Fetcher performs GET requests.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// CollyFetcher fetches pages synchronously through a shared colly collector.
// It is safe for concurrent use.
type CollyFetcher struct {
	collector *colly.Collector
	metrics   *Metrics
}

// NewCollyFetcher builds a fetcher configured from cfg.
func NewCollyFetcher(cfg *config.Config, metrics *Metrics) *CollyFetcher {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	f := &CollyFetcher{
		collector: collector,
		metrics:   metrics,
	}
	f.configureHandlers()
	return f
}

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch issues a GET for rawURL and blocks until the response is read.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, rawURL, nil, reqCtx, nil); err != nil {
		return nil, &FetchError{URL: rawURL, Err: classifyError(err, 0)}
	}

	status, ok := reqCtx.GetAny(ctxStatus).(int)
	if !ok {
		return nil, &FetchError{URL: rawURL, Err: errors.New("no response received")}
	}
	body, _ := reqCtx.GetAny(ctxBody).([]byte)
	return &Page{URL: rawURL, StatusCode: status, Body: body}, nil
}

func (f *CollyFetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		f.metrics.IncRequest("started")
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxBody, r.Body)
		f.metrics.IncRequest("completed")
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})
}

// FetchOK fetches rawURL and returns its body, treating any non-2xx status as a FetchError.
func FetchOK(ctx context.Context, f Fetcher, rawURL string) ([]byte, error) {
	page, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if page.StatusCode < http.StatusOK || page.StatusCode >= http.StatusMultipleChoices {
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: page.StatusCode,
			Err:        classifyError(nil, page.StatusCode),
		}
	}
	return page.Body, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{Err: wrapped}
		}
		return wrapped
	}

	return err
}
