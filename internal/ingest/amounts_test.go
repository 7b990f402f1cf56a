package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountRange(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantMin float64
		wantMax float64
		wantNil bool
	}{
		{
			name:    "explicit range",
			text:    "Grants of £5,000 to £10,000 are available",
			wantMin: 5000,
			wantMax: 10000,
		},
		{
			name:    "single amount",
			text:    "Apply for up to £10,000",
			wantMin: 10000,
			wantMax: 10000,
		},
		{
			name:    "reversed range is reordered",
			text:    "between £25,000 and £2,500",
			wantMin: 2500,
			wantMax: 25000,
		},
		{
			name:    "decimal amount",
			text:    "awards of £1,500.50",
			wantMin: 1500.50,
			wantMax: 1500.50,
		},
		{
			name:    "spaced pound sign",
			text:    "up to £ 50,000 per project",
			wantMin: 50000,
			wantMax: 50000,
		},
		{
			name:    "no amounts",
			text:    "Funding for community projects in Greater Manchester",
			wantNil: true,
		},
		{
			name:    "bare numbers are not money",
			text:    "Registered charity 1089464, established 2004",
			wantNil: true,
		},
		{
			name:    "empty string",
			text:    "",
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max := ParseAmountRange(tt.text)
			if tt.wantNil {
				assert.Nil(t, min)
				assert.Nil(t, max)
				return
			}
			require.NotNil(t, min)
			require.NotNil(t, max)
			assert.Equal(t, tt.wantMin, *min)
			assert.Equal(t, tt.wantMax, *max)
		})
	}
}

func TestParseAmountRangeIgnoresExtraTokens(t *testing.T) {
	// Only the first two sterling tokens count; trailing mentions such as a
	// total pot size must not widen the range.
	min, max := ParseAmountRange("£500 to £2,000 from a total pot of £1,000,000")
	require.NotNil(t, min)
	require.NotNil(t, max)
	assert.Equal(t, 500.0, *min)
	assert.Equal(t, 2000.0, *max)
}
