package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRound2(t *testing.T) {
	cases := map[string]string{
		"100":      "100",
		"0.125":    "0.12",
		"0.135":    "0.14",
		"-12.3456": "-12.35",
		"880.004":  "880",
	}
	for in, want := range cases {
		got := Round2(decimal.RequireFromString(in))
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "Round2(%s) = %s, want %s", in, got, want)
	}
}

func TestPercentOf(t *testing.T) {
	fee := PercentOf(decimal.NewFromInt(100), decimal.NewFromInt(20))
	assert.Equal(t, "20", fee.String())

	fee = PercentOf(decimal.RequireFromString("33.33"), decimal.NewFromInt(5))
	assert.Equal(t, "1.67", fee.String())
}

func TestTruncateDescription(t *testing.T) {
	assert.Equal(t, "rent", TruncateDescription("rent"))
	assert.Equal(t, "exactly12chr", TruncateDescription("exactly12chr"))
	assert.Equal(t, "monthly rent", TruncateDescription("monthly rent payment"))
	assert.Equal(t, "ñandú ñandú ", TruncateDescription("ñandú ñandú ñandú"))
}
