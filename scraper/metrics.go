package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	PagesTotal        *prometheus.CounterVec
	ItemsScrapedTotal prometheus.Counter
	MalformedTotal    prometheus.Counter
	CategoriesTotal   *prometheus.CounterVec
	CollisionsTotal   prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Category pages processed, by outcome.",
		},
		[]string{"outcome"},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of products extracted from category pages.",
		},
	)
	malformed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_malformed_blocks_total",
			Help: "Product blocks skipped because a field was missing.",
		},
	)
	categories := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_categories_total",
			Help: "Categories processed, by outcome.",
		},
		[]string{"outcome"},
	)
	collisions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_name_collisions_total",
			Help: "Products replaced by a later product with the same name.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, itemsScraped, malformed, categories, collisions, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		PagesTotal:        pages,
		ItemsScrapedTotal: itemsScraped,
		MalformedTotal:    malformed,
		CategoriesTotal:   categories,
		CollisionsTotal:   collisions,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage increments the pages counter for an outcome (fetched or skipped).
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// AddItems adds n to the items scraped counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.Add(float64(n))
}

// AddMalformed adds n to the malformed block counter.
func (m *Metrics) AddMalformed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MalformedTotal.Add(float64(n))
}

// IncCategory increments the categories counter for an outcome (ok or failed).
func (m *Metrics) IncCategory(outcome string) {
	if m == nil {
		return
	}
	m.CategoriesTotal.WithLabelValues(outcome).Inc()
}

// AddCollisions adds n to the name collision counter.
func (m *Metrics) AddCollisions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CollisionsTotal.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
