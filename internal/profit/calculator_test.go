package profit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// testLoop is USDT -> BTC -> ETH -> USDT: buy BTC, buy ETH, sell ETH.
var testLoop = domain.Loop{
	Path:  []string{"USDT", "BTC", "ETH", "USDT"},
	Pairs: []string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
}

// testQuotes prices the loop so 100 USDT ends as ~120 USDT with zero fees:
// buy 0.002 BTC at 50000, buy 0.04 ETH at 0.05, sell at 3000.
func testQuotes() map[string]domain.Quote {
	return map[string]domain.Quote{
		"BTCUSDT": {Symbol: "BTCUSDT", Bid: 49990, Ask: 50000},
		"ETHBTC":  {Symbol: "ETHBTC", Bid: 0.0499, Ask: 0.05},
		"ETHUSDT": {Symbol: "ETHUSDT", Bid: 3000, Ask: 3001},
	}
}

func TestSellBaseVWAPWalksLadder(t *testing.T) {
	bids := []domain.PriceLevel{{Price: 100, Qty: 1}, {Price: 99, Qty: 2}}

	avg, out, err := sellBaseVWAP(bids, 2)
	require.NoError(t, err)
	assert.InDelta(t, 199.0, out, 1e-9)
	assert.InDelta(t, 99.5, avg, 1e-9)
}

func TestSellBaseVWAPConvergesToTopOfBook(t *testing.T) {
	bids := []domain.PriceLevel{{Price: 100, Qty: 5}, {Price: 90, Qty: 5}}

	avg, _, err := sellBaseVWAP(bids, 0.001)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, avg, 1e-9)
}

func TestSellBaseVWAPInsufficientDepth(t *testing.T) {
	bids := []domain.PriceLevel{{Price: 100, Qty: 1}}

	_, _, err := sellBaseVWAP(bids, 2)
	assert.ErrorIs(t, err, domain.ErrInsufficientDepth)

	_, _, err = sellBaseVWAP(nil, 1)
	assert.ErrorIs(t, err, domain.ErrInsufficientDepth)

	_, _, err = sellBaseVWAP(bids, 0)
	assert.ErrorIs(t, err, domain.ErrInsufficientDepth)
}

func TestBuyBaseVWAPWalksLadder(t *testing.T) {
	asks := []domain.PriceLevel{{Price: 100, Qty: 1}, {Price: 101, Qty: 2}}

	// Spend 150 quote: 100 buys the full first level, 50 partially fills
	// the second.
	avg, base, err := buyBaseVWAP(asks, 150)
	require.NoError(t, err)
	want := 1 + 50.0/101
	assert.InDelta(t, want, base, 1e-9)
	assert.InDelta(t, 150/want, avg, 1e-9)
}

func TestBuyBaseVWAPInsufficientNotional(t *testing.T) {
	asks := []domain.PriceLevel{{Price: 100, Qty: 1}}

	_, _, err := buyBaseVWAP(asks, 101)
	assert.ErrorIs(t, err, domain.ErrInsufficientDepth)
}

func TestEvaluateTOBProfitableLoop(t *testing.T) {
	calc := NewCalculator(Params{})

	est, err := calc.EvaluateTOB(testLoop, testQuotes(), 100)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeTOB, est.Mode)
	require.Len(t, est.Legs, 3)
	assert.InDelta(t, 120.0, est.FinalAmount, 1e-6)
	assert.InDelta(t, 20.0, est.NetProfit, 1e-6)
	assert.InDelta(t, 0.2, est.ProfitPct, 1e-9)
	assert.True(t, est.IsProfitable)

	// Leg amounts chain: each leg's input is the previous leg's output.
	assert.InDelta(t, est.Legs[0].AmountOut, est.Legs[1].AmountIn, 1e-12)
	assert.InDelta(t, est.Legs[1].AmountOut, est.Legs[2].AmountIn, 1e-12)
}

func TestEvaluateTOBAppliesFeePerLeg(t *testing.T) {
	calc := NewCalculator(Params{FeeRate: 0.001})

	est, err := calc.EvaluateTOB(testLoop, testQuotes(), 100)
	require.NoError(t, err)

	want := 120.0 * 0.999 * 0.999 * 0.999
	assert.InDelta(t, want, est.FinalAmount, 1e-6)
}

func TestEvaluateTOBThreshold(t *testing.T) {
	// final/start is ~1.2; require more than that and the loop fails.
	calc := NewCalculator(Params{MinProfit: 25})
	est, err := calc.EvaluateTOB(testLoop, testQuotes(), 100)
	require.NoError(t, err)
	assert.False(t, est.IsProfitable)

	calc = NewCalculator(Params{MinProfit: 10, SafetyMarginPct: 0.05})
	est, err = calc.EvaluateTOB(testLoop, testQuotes(), 100)
	require.NoError(t, err)
	assert.True(t, est.IsProfitable)

	// Safety margin alone can also push the loop under.
	calc = NewCalculator(Params{SafetyMarginPct: 0.25})
	est, err = calc.EvaluateTOB(testLoop, testQuotes(), 100)
	require.NoError(t, err)
	assert.False(t, est.IsProfitable)
}

func TestEvaluateTOBNoSpreadNoFeeIsBreakEven(t *testing.T) {
	calc := NewCalculator(Params{})
	loop := domain.Loop{
		Path:  []string{"USDT", "BTC", "USDC"},
		Pairs: []string{"BTCUSDT", "BTCUSDC"},
	}
	// Near-zero spreads around equal mid prices: the round trip returns
	// almost exactly the start amount.
	quotes := map[string]domain.Quote{
		"BTCUSDT": {Symbol: "BTCUSDT", Bid: 99.999, Ask: 100.001},
		"BTCUSDC": {Symbol: "BTCUSDC", Bid: 99.999, Ask: 100.001},
	}

	est, err := calc.EvaluateTOB(loop, quotes, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, est.NetProfit, 0.01)
	assert.False(t, est.IsProfitable)
}

func TestEvaluateTOBMissingQuote(t *testing.T) {
	calc := NewCalculator(Params{})
	quotes := testQuotes()
	delete(quotes, "ETHBTC")

	_, err := calc.EvaluateTOB(testLoop, quotes, 100)
	assert.ErrorIs(t, err, domain.ErrNoQuote)
}

func TestEvaluateTOBInvalidQuote(t *testing.T) {
	calc := NewCalculator(Params{})
	quotes := testQuotes()
	quotes["ETHBTC"] = domain.Quote{Symbol: "ETHBTC", Bid: 0.05, Ask: 0.0499}

	_, err := calc.EvaluateTOB(testLoop, quotes, 100)
	assert.ErrorIs(t, err, domain.ErrNoQuote)
}

func testBooks(now time.Time) map[string]domain.DepthBook {
	return map[string]domain.DepthBook{
		"BTCUSDT": {
			Symbol:     "BTCUSDT",
			Bids:       []domain.PriceLevel{{Price: 49990, Qty: 5}},
			Asks:       []domain.PriceLevel{{Price: 50000, Qty: 5}},
			LastUpdate: now,
		},
		"ETHBTC": {
			Symbol:     "ETHBTC",
			Bids:       []domain.PriceLevel{{Price: 0.0499, Qty: 100}},
			Asks:       []domain.PriceLevel{{Price: 0.05, Qty: 100}},
			LastUpdate: now,
		},
		"ETHUSDT": {
			Symbol:     "ETHUSDT",
			Bids:       []domain.PriceLevel{{Price: 3000, Qty: 100}},
			Asks:       []domain.PriceLevel{{Price: 3001, Qty: 100}},
			LastUpdate: now,
		},
	}
}

func TestEvaluateDepthAllVWAP(t *testing.T) {
	calc := NewCalculator(Params{})

	est, err := calc.EvaluateDepth(testLoop, testQuotes(), testBooks(time.Now()), 100)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeVWAP, est.Mode)
	for _, leg := range est.Legs {
		assert.Equal(t, domain.FillVWAP, leg.Method)
		assert.Equal(t, domain.FallbackNone, leg.Fallback)
	}
	// Single deep levels at the TOB prices, so the result matches TOB.
	assert.InDelta(t, 120.0, est.FinalAmount, 1e-6)
}

func TestEvaluateDepthFallsBackWhenBookMissing(t *testing.T) {
	calc := NewCalculator(Params{})
	books := testBooks(time.Now())
	delete(books, "ETHBTC")

	est, err := calc.EvaluateDepth(testLoop, testQuotes(), books, 100)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeMixed, est.Mode)
	assert.Equal(t, domain.FallbackNoBook, est.Legs[1].Fallback)
	assert.Equal(t, domain.FillTOB, est.Legs[1].Method)
	assert.Equal(t, domain.FallbackNone, est.Legs[0].Fallback)
}

func TestEvaluateDepthFallsBackWhenBookStale(t *testing.T) {
	calc := NewCalculator(Params{BookMaxAge: time.Second})
	books := testBooks(time.Now())
	stale := books["ETHUSDT"]
	stale.LastUpdate = time.Now().Add(-time.Minute)
	books["ETHUSDT"] = stale

	est, err := calc.EvaluateDepth(testLoop, testQuotes(), books, 100)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeMixed, est.Mode)
	assert.Equal(t, domain.FallbackStaleBook, est.Legs[2].Fallback)
}

func TestEvaluateDepthFallsBackWhenBookTooThin(t *testing.T) {
	calc := NewCalculator(Params{})
	books := testBooks(time.Now())
	thin := books["BTCUSDT"]
	// 100 USDT of spend needs 0.002 BTC of ask depth.
	thin.Asks = []domain.PriceLevel{{Price: 50000, Qty: 0.001}}
	books["BTCUSDT"] = thin

	est, err := calc.EvaluateDepth(testLoop, testQuotes(), books, 100)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeMixed, est.Mode)
	assert.Equal(t, domain.FallbackInsufficientDepth, est.Legs[0].Fallback)
}

func TestEvaluateDepthNoBooksIsTOB(t *testing.T) {
	calc := NewCalculator(Params{})

	est, err := calc.EvaluateDepth(testLoop, testQuotes(), nil, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeTOB, est.Mode)
}

func TestEvaluateDepthRequiresQuotesForFallback(t *testing.T) {
	calc := NewCalculator(Params{})
	quotes := testQuotes()
	delete(quotes, "BTCUSDT")

	_, err := calc.EvaluateDepth(testLoop, quotes, testBooks(time.Now()), 100)
	assert.ErrorIs(t, err, domain.ErrNoQuote)
}
