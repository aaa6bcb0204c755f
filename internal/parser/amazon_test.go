package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmazonPrice(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
		hasError bool
	}{
		{
			name: "whole and fraction",
			html: `<span class="a-price"><span class="a-price-whole">1,299.</span><span class="a-price-fraction">50</span></span>`,
			expected: "1299.50",
		},
		{
			name:     "whole without fraction",
			html:     `<span class="a-price-whole">24,990</span>`,
			expected: "24990.00",
		},
		{
			name:     "offscreen fallback",
			html:     `<span class="a-price"><span class="a-offscreen">₹499.00</span></span>`,
			expected: "499.00",
		},
		{
			name:     "no price block",
			html:     `<div id="availability">Currently unavailable.</div>`,
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewDocument([]byte(tt.html))
			require.NoError(t, err)

			price, err := AmazonPrice(doc)
			if tt.hasError {
				assert.ErrorIs(t, err, ErrNoMatch)
				assert.True(t, price.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, price.StringFixed(2))
		})
	}
}
