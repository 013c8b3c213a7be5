// Package profit simulates loop execution against live quotes and depth
// books, producing per-tick profit estimates.
package profit

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// Params are the fixed economics of an evaluation. FeeRate is the taker fee
// per leg, deducted multiplicatively from each leg's proceeds.
// SafetyMarginPct and MinProfit together set the profitability threshold:
// a loop is profitable when
//
//	final/start >= 1 + SafetyMarginPct + MinProfit/start
//
// BookMaxAge bounds how old a depth book may be before a leg falls back to
// top-of-book; zero disables the staleness check.
type Params struct {
	FeeRate         float64
	SafetyMarginPct float64
	MinProfit       float64
	BookMaxAge      time.Duration
}

// Calculator prices loops. It is stateless between calls and safe for
// concurrent use.
type Calculator struct {
	params Params
}

// NewCalculator creates a Calculator with the given economics.
func NewCalculator(params Params) *Calculator {
	return &Calculator{params: params}
}

// EvaluateTOB simulates the loop using top-of-book prices only. Every leg
// needs a valid quote; a missing or inverted quote aborts the evaluation
// with ErrNoQuote and the loop is skipped for the tick.
func (c *Calculator) EvaluateTOB(loop domain.Loop, quotes map[string]domain.Quote, start float64) (domain.ProfitEstimate, error) {
	legs, err := loop.Legs()
	if err != nil {
		return domain.ProfitEstimate{}, err
	}

	amount := start
	fills := make([]domain.LegFill, 0, len(legs))
	for _, leg := range legs {
		q, ok := quotes[leg.Symbol]
		if !ok || !q.Valid() {
			return domain.ProfitEstimate{}, fmt.Errorf("profit: loop %s leg %s: %w",
				loop.ID(), leg.Symbol, domain.ErrNoQuote)
		}
		fill := c.fillTOB(leg, q, amount)
		fills = append(fills, fill)
		amount = fill.AmountOut
	}

	return c.finalize(loop, domain.ModeTOB, fills, start, amount), nil
}

// EvaluateDepth simulates the loop against depth ladders where available.
// Each leg independently falls back to top-of-book when its book is absent,
// stale, or too thin for the amount; the fallback reason is recorded on the
// leg. Top-of-book quotes are still required for every leg because they are
// the fallback price source.
func (c *Calculator) EvaluateDepth(loop domain.Loop, quotes map[string]domain.Quote, books map[string]domain.DepthBook, start float64) (domain.ProfitEstimate, error) {
	legs, err := loop.Legs()
	if err != nil {
		return domain.ProfitEstimate{}, err
	}

	now := time.Now()
	amount := start
	fills := make([]domain.LegFill, 0, len(legs))
	vwapLegs := 0
	for _, leg := range legs {
		q, ok := quotes[leg.Symbol]
		if !ok || !q.Valid() {
			return domain.ProfitEstimate{}, fmt.Errorf("profit: loop %s leg %s: %w",
				loop.ID(), leg.Symbol, domain.ErrNoQuote)
		}

		fill, usedVWAP := c.fillDepth(leg, q, books, amount, now)
		if usedVWAP {
			vwapLegs++
		}
		fills = append(fills, fill)
		amount = fill.AmountOut
	}

	mode := domain.ModeMixed
	switch vwapLegs {
	case len(legs):
		mode = domain.ModeVWAP
	case 0:
		mode = domain.ModeTOB
	}
	return c.finalize(loop, mode, fills, start, amount), nil
}

// fillTOB prices one leg at top of book. Selling base executes at the bid,
// buying base at the ask; the fee comes off the proceeds.
func (c *Calculator) fillTOB(leg domain.Leg, q domain.Quote, amountIn float64) domain.LegFill {
	fill := domain.LegFill{
		Symbol:   leg.Symbol,
		SellBase: leg.SellBase,
		Method:   domain.FillTOB,
		AmountIn: amountIn,
	}
	if leg.SellBase {
		fill.Price = q.Bid
		fill.AmountOut = amountIn * q.Bid * (1 - c.params.FeeRate)
	} else {
		fill.Price = q.Ask
		fill.AmountOut = amountIn / q.Ask * (1 - c.params.FeeRate)
	}
	return fill
}

// fillDepth prices one leg by walking its depth ladder, falling back to top
// of book when the book is missing, stale, or too thin. The second return
// reports whether VWAP pricing was actually used.
func (c *Calculator) fillDepth(leg domain.Leg, q domain.Quote, books map[string]domain.DepthBook, amountIn float64, now time.Time) (domain.LegFill, bool) {
	book, ok := books[leg.Symbol]
	if !ok {
		fill := c.fillTOB(leg, q, amountIn)
		fill.Fallback = domain.FallbackNoBook
		return fill, false
	}
	if c.params.BookMaxAge > 0 && now.Sub(book.LastUpdate) > c.params.BookMaxAge {
		fill := c.fillTOB(leg, q, amountIn)
		fill.Fallback = domain.FallbackStaleBook
		return fill, false
	}

	var (
		avgPrice float64
		grossOut float64
		err      error
	)
	if leg.SellBase {
		avgPrice, grossOut, err = sellBaseVWAP(book.Bids, amountIn)
	} else {
		avgPrice, grossOut, err = buyBaseVWAP(book.Asks, amountIn)
	}
	if err != nil {
		fill := c.fillTOB(leg, q, amountIn)
		if errors.Is(err, domain.ErrInsufficientDepth) {
			fill.Fallback = domain.FallbackInsufficientDepth
		} else {
			fill.Fallback = domain.FallbackNoBook
		}
		return fill, false
	}

	return domain.LegFill{
		Symbol:    leg.Symbol,
		SellBase:  leg.SellBase,
		Method:    domain.FillVWAP,
		Price:     avgPrice,
		AmountIn:  amountIn,
		AmountOut: grossOut * (1 - c.params.FeeRate),
	}, true
}

// finalize assembles the estimate and applies the profitability threshold.
// Cross-anchor loops settle start and end amounts one-to-one; the anchors
// are parity-pegged settlement currencies.
func (c *Calculator) finalize(loop domain.Loop, mode domain.EstimateMode, fills []domain.LegFill, start, final float64) domain.ProfitEstimate {
	net := final - start
	pct := 0.0
	if start > 0 {
		pct = net / start
	}
	profitable := start > 0 &&
		final/start >= 1+c.params.SafetyMarginPct+c.params.MinProfit/start

	return domain.ProfitEstimate{
		Loop:         loop,
		Mode:         mode,
		Legs:         fills,
		StartAmount:  start,
		FinalAmount:  final,
		NetProfit:    net,
		ProfitPct:    pct,
		IsProfitable: profitable,
	}
}
