package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/playwright-community/playwright-go"
)

// Options configures every browser the Launcher starts.
type Options struct {
	Headless       bool
	NavTimeout     time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		NavTimeout:     30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36 Edg/133.0.0.0",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		Locale:         "en-IN",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-IN,en;q=0.9",
			"DNT":             "1",
		},
	}
}

var chromiumArgs = []string{
	"--disable-blink-features=AutomationControlled",
	"--disable-dev-shm-usage",
	"--no-sandbox",
	"--disable-setuid-sandbox",
}

// session is a single Chromium process with one isolated context.
type session struct {
	browser playwright.Browser
	bctx    playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

func launch(pw *playwright.Playwright, opts *Options, logger *slog.Logger) (*session, error) {
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     chromiumArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch chromium: %w", err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(opts.UserAgent),
		Locale:            playwright.String(opts.Locale),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Viewport:          &playwright.Size{Width: opts.ViewportWidth, Height: opts.ViewportHeight},
		ExtraHttpHeaders:  opts.ExtraHeaders,
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &session{browser: b, bctx: bctx, opts: opts, logger: logger}, nil
}

func (s *session) timeoutMillis() float64 {
	return float64(s.opts.NavTimeout.Milliseconds())
}

func (s *session) newPage() (playwright.Page, error) {
	page, err := s.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultTimeout(s.timeoutMillis())
	return page, nil
}

// open navigates page to url, retrying up to retries extra times with
// exponential backoff until ctx is done.
func (s *session) open(ctx context.Context, page playwright.Page, url string, retries int) error {
	attempt := 0
	nav := func() error {
		attempt++
		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(s.timeoutMillis()),
		})
		if err != nil {
			s.logger.Warn("navigation failed", "url", url, "attempt", attempt, "error", err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	if err := backoff.Retry(nav, policy); err != nil {
		return fmt.Errorf("navigation gave up after %d attempts: %w", attempt, err)
	}
	return nil
}

func (s *session) close() error {
	var errs []error
	if err := s.bctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close context: %w", err))
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	return errors.Join(errs...)
}
