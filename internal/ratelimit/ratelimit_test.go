package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiterSeparatesHosts(t *testing.T) {
	l := NewHostLimiter(1, 1)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.amazon.in/dp/1"))
	require.NoError(t, l.Wait(ctx, "https://www.flipkart.com/p/1"))

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://WWW.AMAZON.IN/dp/2"), "second amazon request should wait past the deadline")
}

func TestHostLimiterDisabled(t *testing.T) {
	l := NewHostLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://www.amazon.in"))
	}
}

func TestNoopHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Noop{}.Wait(ctx, "https://x.test"), context.Canceled)
}
