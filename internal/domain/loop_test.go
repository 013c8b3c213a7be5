package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopID(t *testing.T) {
	l := Loop{Path: []string{"USDT", "BTC", "ETH", "USDT"}}
	assert.Equal(t, "USDT>BTC>ETH>USDT", l.ID())
}

func TestLoopSymbolsDeduplicates(t *testing.T) {
	l := Loop{
		Path:  []string{"USDT", "BTC", "USDT"},
		Pairs: []string{"BTCUSDT", "BTCUSDT"},
	}
	assert.Equal(t, []string{"BTCUSDT"}, l.Symbols())
}

func TestLoopLegsResolvesDirection(t *testing.T) {
	l := Loop{
		Path:  []string{"USDT", "BTC", "ETH", "USDT"},
		Pairs: []string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
	}
	legs, err := l.Legs()
	require.NoError(t, err)
	require.Len(t, legs, 3)

	// USDT -> BTC via BTCUSDT: BTC is base, so we buy base with quote.
	assert.Equal(t, "BTCUSDT", legs[0].Symbol)
	assert.False(t, legs[0].SellBase)

	// BTC -> ETH via ETHBTC: ETH is base, buy base again.
	assert.Equal(t, "ETHBTC", legs[1].Symbol)
	assert.False(t, legs[1].SellBase)

	// ETH -> USDT via ETHUSDT: ETH is base, sell base for quote.
	assert.Equal(t, "ETHUSDT", legs[2].Symbol)
	assert.True(t, legs[2].SellBase)
}

func TestLoopLegsRejectsUnconnectedPair(t *testing.T) {
	l := Loop{
		Path:  []string{"USDT", "BTC", "USDT"},
		Pairs: []string{"ETHUSDT", "BTCUSDT"},
	}
	_, err := l.Legs()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidLoop)
}

func TestLoopLegsRejectsPairCountMismatch(t *testing.T) {
	l := Loop{
		Path:  []string{"USDT", "BTC", "ETH", "USDT"},
		Pairs: []string{"BTCUSDT", "ETHBTC"},
	}
	_, err := l.Legs()
	assert.ErrorIs(t, err, ErrInvalidLoop)
}

func TestLoopValidate(t *testing.T) {
	set := NewMarketSet([]Market{
		{Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT", Tradable: true},
		{Symbol: "ETHBTC", BaseAsset: "ETH", QuoteAsset: "BTC", Tradable: true},
		{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", Tradable: false},
	})

	valid := Loop{
		Path:  []string{"USDT", "BTC", "ETH", "USDT"},
		Pairs: []string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
	}
	// ETHUSDT is not tradable, so the set does not contain it.
	assert.ErrorIs(t, valid.Validate(set), ErrInvalidLoop)

	short := Loop{Path: []string{"USDT", "BTC"}, Pairs: []string{"BTCUSDT"}}
	assert.ErrorIs(t, short.Validate(set), ErrInvalidLoop)
}

func TestQuoteValid(t *testing.T) {
	assert.True(t, Quote{Bid: 99, Ask: 100}.Valid())
	assert.False(t, Quote{Bid: 0, Ask: 100}.Valid())
	assert.False(t, Quote{Bid: 100, Ask: 99}.Valid())
	assert.False(t, Quote{Bid: 100, Ask: 100}.Valid())
}
