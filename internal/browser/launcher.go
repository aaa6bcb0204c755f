package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/sync/semaphore"
)

const navigationRetries = 1

// Launcher hands out one browser per Render call and bounds how many run at
// once. The playwright driver is started on first use and shared.
type Launcher struct {
	opts   *Options
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

func NewLauncher(opts *Options, maxConcurrent int, logger *slog.Logger) *Launcher {
	if opts == nil {
		opts = DefaultOptions()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Launcher{
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger: logger.With("component", "browser"),
	}
}

func (l *Launcher) driver() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// Render launches a browser, opens url and passes the rendered page to fn.
// The browser is closed before Render returns, whatever fn does.
func (l *Launcher) Render(ctx context.Context, url string, fn func(Page) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire browser slot: %w", err)
	}
	defer l.sem.Release(1)

	pw, err := l.driver()
	if err != nil {
		return err
	}

	sess, err := launch(pw, l.opts, l.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.close(); err != nil {
			l.logger.Warn("failed to close browser", "url", url, "error", err)
		}
	}()

	page, err := sess.newPage()
	if err != nil {
		return err
	}

	if err := sess.open(ctx, page, url, navigationRetries); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}

	return fn(&playwrightPage{page: page})
}

// Close stops the playwright driver.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	if err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return nil
}
