package entities

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCoinFromAtomic(t *testing.T) {
	assert.True(t, CoinFromAtomic(0).IsZero())
	assert.Equal(t, "1", CoinFromAtomic(1_000_000_000_000).String())
	assert.Equal(t, "0.000000000001", CoinFromAtomic(1).String())
	assert.Equal(t, "2.5", CoinFromAtomic(2_500_000_000_000).String())
}

func TestAtomicFromCoin(t *testing.T) {
	assert.Equal(t, uint64(1_000_000_000_000), AtomicFromCoin(decimal.NewFromInt(1)))
	assert.Equal(t, uint64(0), AtomicFromCoin(decimal.Zero))

	// Sub-atomic precision is truncated, never rounded up
	d := decimal.RequireFromString("1.3333333333339")
	assert.Equal(t, uint64(1_333_333_333_333), AtomicFromCoin(d))
}

func TestAtomicRoundTrip(t *testing.T) {
	original := uint64(1_333_333_333_333)
	assert.Equal(t, original, AtomicFromCoin(CoinFromAtomic(original)))
}
