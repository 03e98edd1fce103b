// Package oracle implements the Price Oracle: a fair USD reference price
// per token, built from the Quote Engine's spot price plus an hourly
// quote-token→USD table.
package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
)

// notionalOneUnit is the target-token sell amount (in the target token's
// smallest unit) used to probe the Quote Engine for a spot price at a
// notional 1-unit size. 1e18 is "one unit" for an 18-decimal target
// token; the value is fixed for every token.
var notionalOneUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// USDTable resolves a quote token's USD price for a given hour, refreshed
// asynchronously and persisted in the `quote_prices` table keyed by
// (quoteToken, hour).
type USDTable interface {
	// Get returns quoteUSD and whether the lookup found any row at all for
	// quoteToken (possibly from an hour older than `hour`, in which case
	// stale reports true). ok is false only when no row exists at any hour.
	Get(ctx context.Context, quoteToken string, hour time.Time) (quoteUSD float64, stale bool, ok bool)
}

// Result is the oracle's output. Price is nil when any input piece is
// missing; Reason then explains what, and upstream code decides whether
// to proceed.
type Result struct {
	Price *big.Float
	Stale bool
	Reason string
}

// Oracle computes USD price = spot(quote Engine) × quoteUSD(USDTable).
type Oracle struct {
	engine *quote.Engine
	table  USDTable
	clock  func() time.Time
}

// New builds an Oracle over the given Quote Engine and USD table.
func New(engine *quote.Engine, table USDTable, clock func() time.Time) *Oracle {
	if clock == nil {
		clock = time.Now
	}
	return &Oracle{engine: engine, table: table, clock: clock}
}

// Price returns the USD reference price for target's token, or a nil
// Price with a Reason when the spot quote or the quote-token USD lookup
// is unavailable. It never fabricates a value for a missing piece.
func (o *Oracle) Price(ctx context.Context, target eigen.Target) Result {
	spotResult, err := o.engine.Quote(ctx, target, quote.DirectionSell, notionalOneUnit.String())
	if err != nil {
		return Result{Reason: "quote engine: " + err.Error()}
	}
	amountOut, ok := new(big.Int).SetString(spotResult.AmountOutRaw, 10)
	if !ok || amountOut.Sign() <= 0 {
		return Result{Reason: "quote engine returned a non-positive spot amount"}
	}

	// spot = quote-token units received per 1 unit of target token.
	spot := new(big.Float).Quo(new(big.Float).SetInt(amountOut), new(big.Float).SetInt(notionalOneUnit))

	quoteUSD, stale, found := o.table.Get(ctx, target.Pool.Token1, o.clock().UTC())
	if !found {
		return Result{Reason: "no quote-token USD price available"}
	}

	usd := new(big.Float).Mul(spot, big.NewFloat(quoteUSD))
	return Result{Price: usd, Stale: stale}
}
