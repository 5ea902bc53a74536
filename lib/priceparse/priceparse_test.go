package priceparse

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func opts(min int64) Options {
	return Options{MinPrice: decimal.NewFromInt(min)}
}

func TestExtractPicksMinimum(t *testing.T) {
	for _, text := range []string{
		"Adult $20 Child $5 Senior $10",
		"from 10 or 5, previously 20",
		"$5.00 ... $20.00 ... $10.00",
		"20, 10, 5",
	} {
		c, ok := Extract(text, opts(1))
		require.True(t, ok, text)
		require.True(t, c.Price.Equal(decimal.NewFromInt(5)), "%s -> %s", text, c.Price)
	}
}

func TestExtractNoCandidates(t *testing.T) {
	_, ok := Extract("no ticket information available right now", opts(1))
	require.False(t, ok)

	_, ok = Extract("", opts(1))
	require.False(t, ok)
}

func TestNormalization(t *testing.T) {
	c, ok := Extract("tickets from A$1,299.50 per person", opts(5))
	require.True(t, ok)
	require.True(t, c.Price.Equal(decimal.RequireFromString("1299.5")))
	require.True(t, c.HasCurrency)
	require.Equal(t, "A$1,299.50", c.Raw)
}

func TestSanityFloor(t *testing.T) {
	// quantities and counters below the floor are not prices
	_, ok := Extract("2 adults, 1 child", opts(5))
	require.False(t, ok)

	c, ok := Extract("2 adults, 1 child, total $358", opts(5))
	require.True(t, ok)
	require.True(t, c.Price.Equal(decimal.NewFromInt(358)))
}

func TestZeroRejected(t *testing.T) {
	_, ok := Extract("$0", opts(0))
	require.False(t, ok)
}

func TestBareYearRejected(t *testing.T) {
	_, ok := Extract("© 2025 Some Vendor Pty Ltd", opts(5))
	require.False(t, ok)

	// a year-sized amount with an explicit currency marker is a price
	c, ok := Extract("suite package $2025", opts(5))
	require.True(t, ok)
	require.True(t, c.Price.Equal(decimal.NewFromInt(2025)))
}

func TestStruckThroughPriceStillWins(t *testing.T) {
	// documented tradeoff: a lone struck-through original price is
	// still reported when no current price is present
	c, ok := Extract("was ¥499", opts(5))
	require.True(t, ok)
	require.True(t, c.Price.Equal(decimal.NewFromInt(499)))
}

func TestCandidatesKeepEverything(t *testing.T) {
	cands := Candidates("$5 and 0 and 2024")
	require.Len(t, cands, 3)
}
