package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-shop/catalog"
	"github.com/aluiziolira/go-scrape-shop/config"
	"github.com/aluiziolira/go-scrape-shop/links"
	"github.com/aluiziolira/go-scrape-shop/models"
	"github.com/aluiziolira/go-scrape-shop/pipeline"
	"github.com/aluiziolira/go-scrape-shop/scraper"
)

func main() {
	app := cli.App("scraper", "Scrape product listings from a storefront's category pages")
	app.Spec = "[-c] [-v]"

	configPath := app.String(cli.StringOpt{
		Name:   "c config",
		Desc:   "YAML configuration file",
		EnvVar: "SCRAPER_CONFIG",
	})
	verbose := app.Bool(cli.BoolOpt{
		Name: "v verbose",
		Desc: "Enable debug logging",
	})

	var cfg *config.Config
	app.Before = func() {
		loaded, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
			cli.Exit(1)
		}
		if *verbose {
			loaded.Verbose = true
		}
		cfg = loaded

		logger, level := newLogger(cfg.Verbose)
		slog.SetDefault(logger)
		slog.SetLogLoggerLevel(level.Level())
	}

	defaults := config.DefaultConfig()

	app.Command("links", "Discover category links on the homepage and save them", func(cmd *cli.Cmd) {
		var homeSet, outSet bool
		home := cmd.String(cli.StringOpt{Name: "home", Value: defaults.HomeURL, Desc: "Storefront homepage", SetByUser: &homeSet})
		out := cmd.String(cli.StringOpt{Name: "o out", Value: defaults.LinksFile, Desc: "Links file to write", SetByUser: &outSet})

		cmd.Action = func() {
			if homeSet {
				cfg.HomeURL = *home
			}
			if outSet {
				cfg.LinksFile = *out
			}
			cli.Exit(withSignals(func(ctx context.Context) int { return runLinks(ctx, cfg) }))
		}
	})

	app.Command("scrape", "Scrape every category in the links file", func(cmd *cli.Cmd) {
		var linksSet, outputSet, formatSet, workersSet, pageSizeSet, metricsSet bool
		linksFile := cmd.String(cli.StringOpt{Name: "l links", Value: defaults.LinksFile, Desc: "Links file to read", SetByUser: &linksSet})
		output := cmd.String(cli.StringOpt{Name: "o output", Value: defaults.OutputFile, Desc: "Output file path", SetByUser: &outputSet})
		format := cmd.String(cli.StringOpt{Name: "f format", Value: defaults.OutputFormat, Desc: "Output format: json, csv, or dual", SetByUser: &formatSet})
		workers := cmd.Int(cli.IntOpt{Name: "w workers", Value: defaults.Workers, Desc: "Categories scraped concurrently", SetByUser: &workersSet})
		pageSize := cmd.Int(cli.IntOpt{Name: "page-size", Value: defaults.PageSize, Desc: "Products per category page", SetByUser: &pageSizeSet})
		metricsAddr := cmd.String(cli.StringOpt{Name: "metrics-addr", Value: defaults.MetricsAddr, Desc: "Prometheus metrics listen address (e.g. :9090)", SetByUser: &metricsSet})

		cmd.Action = func() {
			if linksSet {
				cfg.LinksFile = *linksFile
			}
			if outputSet {
				cfg.OutputFile = *output
			}
			if formatSet {
				cfg.OutputFormat = strings.ToLower(*format)
			}
			if workersSet {
				cfg.Workers = *workers
			}
			if pageSizeSet {
				cfg.PageSize = *pageSize
			}
			if metricsSet {
				cfg.MetricsAddr = *metricsAddr
			}
			cli.Exit(withSignals(func(ctx context.Context) int { return runScrape(ctx, cfg) }))
		}
	})

	app.Command("stats", "Print price statistics for a scraped snapshot", func(cmd *cli.Cmd) {
		var inputSet bool
		input := cmd.String(cli.StringOpt{Name: "i input", Value: defaults.OutputFile, Desc: "Snapshot JSON file", SetByUser: &inputSet})
		plotPath := cmd.String(cli.StringOpt{Name: "p plot", Desc: "Write a price scatter chart to this PNG file"})

		cmd.Action = func() {
			path := cfg.OutputFile
			if inputSet {
				path = *input
			}
			cli.Exit(runStats(path, *plotPath))
		}
	})

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadFile(path)
}

func withSignals(run func(ctx context.Context) int) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received, finishing current page")
		case <-done:
		}
	}()
	return run(ctx)
}

func runLinks(ctx context.Context, cfg *config.Config) int {
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	fetcher := scraper.NewCollyFetcher(cfg, nil)
	urls, err := links.NewDiscoverer(fetcher, cfg).Discover(ctx, cfg.HomeURL)
	if err != nil {
		slog.Error("link discovery failed", slog.String("home", cfg.HomeURL), slog.Any("error", err))
		return 1
	}
	if err := links.WriteLinks(cfg.LinksFile, urls); err != nil {
		slog.Error("writing links failed", slog.Any("error", err))
		return 1
	}

	fmt.Printf("Saved %d category links to %s\n", len(urls), cfg.LinksFile)
	return 0
}

func runScrape(ctx context.Context, cfg *config.Config) int {
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		return 1
	}

	urls, err := links.ReadLinks(cfg.LinksFile)
	if err != nil {
		slog.Error("reading links failed", slog.Any("error", err))
		return 1
	}

	slog.Info("starting scrape",
		slog.String("links_file", cfg.LinksFile),
		slog.Int("categories", len(urls)),
		slog.Int("workers", cfg.Workers),
		slog.Int("page_size", cfg.PageSize),
	)

	s := scraper.NewScraper(cfg)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p := pipeline.NewPipeline(s, cfg, s.Metrics)
	if cfg.Verbose {
		p.StartProgressReporting(10 * time.Second)
	}

	snapshot, result := p.Run(ctx, urls)
	saveSnapshot(cfg, snapshot)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.OutputFile)

	if len(urls) > 0 && len(result.FailedCategories) == len(urls) {
		return 1
	}
	return 0
}

// saveSnapshot only warns on failure so the run summary is still printed.
func saveSnapshot(cfg *config.Config, snapshot models.Snapshot) {
	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Warn("creating writer failed", slog.Any("error", err))
		return
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Warn("close writer", slog.Any("error", err))
		}
	}()

	if err := writer.Write(snapshot); err != nil {
		slog.Warn("writing snapshot failed", slog.Any("error", err))
		return
	}
	if err := writer.Validate(); err != nil {
		slog.Warn("output validation failed", slog.Any("error", err))
	}
}

func runStats(path, plotPath string) int {
	snapshot, err := catalog.Load(path)
	if err != nil {
		slog.Error("loading snapshot failed", slog.Any("error", err))
		return 1
	}

	summary, err := catalog.Summarize(snapshot)
	if err != nil {
		slog.Error("computing statistics failed", slog.String("input", path), slog.Any("error", err))
		return 1
	}
	for _, bad := range summary.Unparsable {
		slog.Warn("excluded unparsable price", slog.String("name", bad.Name), slog.String("price", bad.Text))
	}

	separator := "--------------------------------------------------"
	fmt.Println(separator)
	fmt.Printf("  Max price:     %s (%s)\n", summary.Max.Price, summary.Max.Name)
	fmt.Printf("  Min price:     %s (%s)\n", summary.Min.Price, summary.Min.Name)
	fmt.Printf("  Average price: $%s\n", summary.Average.StringFixed(2))
	fmt.Printf("  Total items:   %d\n", summary.Total)
	if excluded := len(summary.Unparsable); excluded > 0 {
		fmt.Printf("  Excluded:      %d\n", excluded)
	}
	fmt.Println(separator)

	if plotPath != "" {
		if err := catalog.PlotPrices(plotPath, catalog.Prices(snapshot), summary.Average.InexactFloat64()); err != nil {
			slog.Error("plotting prices failed", slog.Any("error", err))
			return 1
		}
		fmt.Printf("Price chart written to %s\n", plotPath)
	}
	return 0
}

func printSummary(result *models.ScraperResult, outputFile string) {
	duration := result.EndTime.Sub(result.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.TotalCount) / duration.Seconds()
	}

	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Total items:   %d\n", result.TotalCount)
	fmt.Printf("  Categories:    %d (%d failed)\n", result.Categories, len(result.FailedCategories))
	fmt.Printf("  Pages:         %d (%d skipped)\n", result.PagesFetched, result.SkippedPages)
	fmt.Printf("  Malformed:     %d\n", result.Malformed)
	fmt.Printf("  Collisions:    %d\n", result.Collisions)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if len(result.FailedCategories) > 0 {
		failed := make([]string, 0, len(result.FailedCategories))
		for u := range result.FailedCategories {
			failed = append(failed, u)
		}
		sort.Strings(failed)
		for _, u := range failed {
			fmt.Printf("  Failed:        %s: %s\n", u, result.FailedCategories[u])
		}
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
