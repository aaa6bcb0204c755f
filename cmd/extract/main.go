package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/maltedev/price-tracker/internal/browser"
	"github.com/maltedev/price-tracker/internal/compare"
	"github.com/maltedev/price-tracker/internal/config"
	"github.com/maltedev/price-tracker/internal/extractor"
	"github.com/maltedev/price-tracker/internal/fetch"
	"github.com/maltedev/price-tracker/internal/models"
	"github.com/maltedev/price-tracker/internal/ratelimit"
	"github.com/maltedev/price-tracker/pkg/logger"
)

type output struct {
	URL        string                  `json:"url"`
	Source     string                  `json:"source"`
	Result     models.ExtractionResult `json:"result"`
	Comparison []models.ComparisonRow  `json:"comparison,omitempty"`
	Requests   int64                   `json:"http_requests"`
	Elapsed    string                  `json:"elapsed"`
}

func main() {
	var (
		url      = flag.String("url", "", "Product URL to extract")
		doCmp    = flag.Bool("compare", false, "Also compare the price on the other sources")
		headless = flag.Bool("headless", true, "Run the browser headless")
		timeout  = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	)
	flag.Parse()

	if *url == "" {
		fmt.Println("Please provide a URL with -url")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logger.New(cfg.Logging.Level, "text")
	logger.Info("Starting extraction", "url", *url)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fetcher := fetch.NewClient(fetch.Options{
		Timeout:     cfg.Fetch.Timeout,
		MaxAttempts: cfg.Fetch.MaxAttempts,
		BackoffBase: cfg.Fetch.BackoffBase,
		UserAgent:   cfg.Fetch.UserAgent,
		Limiter:     ratelimit.NewHostLimiter(cfg.Fetch.RateLimit, cfg.Fetch.RateBurst),
	}, logger)

	launcher := browser.NewLauncher(&browser.Options{
		Headless:       *headless,
		NavTimeout:     cfg.Browser.NavTimeout,
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         cfg.Browser.Locale,
	}, cfg.Browser.MaxConcurrent, logger)
	defer launcher.Close()

	registry := extractor.NewDefaultRegistry(extractor.Deps{
		Fetcher:  fetcher,
		Renderer: launcher,
		Headers:  fetch.BrowserHeaders(cfg.Fetch.UserAgent),
		Wait: extractor.WaitOptions{
			Timeout:      cfg.Browser.WaitTimeout,
			PollInterval: cfg.Browser.PollInterval,
		},
		Logger: logger,
	})

	start := time.Now()
	out := output{
		URL:    *url,
		Source: registry.SourceFor(*url),
		Result: registry.Resolve(*url).Extract(ctx, *url),
	}

	if *doCmp && out.Result.NameFound {
		job := compare.New(registry, compare.Options{CacheSize: 1}, logger)
		out.Comparison = job.Compare(ctx, out.Result.Name, out.Result.Price, out.Source)
	}

	out.Requests = fetcher.Requests()
	out.Elapsed = time.Since(start).Round(time.Millisecond).String()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("Failed to write result", "error", err)
		os.Exit(1)
	}

	if !out.Result.Success {
		cancel()
		launcher.Close()
		os.Exit(2)
	}
}
