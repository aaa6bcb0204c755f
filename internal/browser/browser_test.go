package browser

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.True(t, opts.Headless, "headless should be the default")
	assert.Equal(t, 30*time.Second, opts.NavTimeout)
	assert.Equal(t, 1920, opts.ViewportWidth)
	assert.Equal(t, 1080, opts.ViewportHeight)
	assert.Contains(t, opts.UserAgent, "Chrome/133.0.0.0")
}

func TestLauncherBoundsConcurrency(t *testing.T) {
	l := NewLauncher(nil, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, l.sem.Acquire(context.Background(), 1))
	defer l.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Render(ctx, "https://www.ajio.com/p/1", func(Page) error {
		t.Fatal("render callback must not run without a free slot")
		return nil
	})
	assert.ErrorContains(t, err, "failed to acquire browser slot")
}

func TestLauncherCloseWithoutDriver(t *testing.T) {
	l := NewLauncher(DefaultOptions(), 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, l.Close())
}
