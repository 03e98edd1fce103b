// Package scheduler implements the per-eigen cooperative trading loop:
// planning the next action from config, live position, and price, sizing
// it, and driving it through the Quote Engine and Chain Client.
package scheduler

import (
	"hash/fnv"
	"math/big"
	"math/rand"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
)

// ActionKind is the shape of output planNext can produce.
type ActionKind string

const (
	ActionWait      ActionKind = "wait"
	ActionTrade     ActionKind = "trade"
	ActionLiquidate ActionKind = "liquidate"
)

// Tag further classifies a trade action for the trade log.
type Tag string

const (
	TagNormal      Tag = "normal"
	TagProfitTake  Tag = "profit_take"
	TagReactive    Tag = "reactive_sell"
)

// Action is planNext's deterministic output.
type Action struct {
	Kind      ActionKind
	Direction quote.Direction
	SizeWei   string // absolute wei/raw-unit size, resolved by Direction
	Tag       Tag
	WaitFor   time.Duration
}

// Snapshot is the read-only input planNext consumes: a point-in-time view
// of an eigen plus the market data the scheduler gathered for this tick.
type Snapshot struct {
	Eigen *eigen.Eigen
	// MarkPriceWei is the oracle/spot price expressed as quote-token wei
	// per one raw unit of the target token.
	MarkPriceWei string
	// ExternalBuyWei is the size of an external buy observed in the last
	// cadence window, feeding reactive-sell mode; zero when none observed.
	ExternalBuyWei string
}

// SeedFor derives a deterministic PRNG seed from an eigen id so that
// planNext given the same snapshot and the same seed always returns the
// same action.
func SeedFor(eigenID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(eigenID))
	return int64(h.Sum64())
}

// NewRand builds the per-eigen seeded PRNG.
func NewRand(eigenID string) *rand.Rand {
	return rand.New(rand.NewSource(SeedFor(eigenID)))
}

// NextCadence returns now plus a jittered interval around 3600s /
// tradeFrequencyPerHour, jitter bounds ±30% uniform.
func NextCadence(rng *rand.Rand, tradeFrequencyPerHour float64, now time.Time) time.Time {
	if tradeFrequencyPerHour <= 0 {
		tradeFrequencyPerHour = 1
	}
	base := 3600.0 / tradeFrequencyPerHour
	jitter := 1 + (rng.Float64()*0.6 - 0.3) // uniform in [0.7, 1.3]
	return now.Add(time.Duration(base * jitter * float64(time.Second)))
}

// planNext implements the planning policy: direction
// bias from inventory ratio, reactive-sell override, sizing as the
// smaller of an absolute and a percent-based uniform draw, profit-take
// and stop-loss overrides.
func planNext(snap Snapshot, rng *rand.Rand) Action {
	e := snap.Eigen
	cfg := e.Config

	if unrealizedCrossesStopLoss(e, snap.MarkPriceWei, cfg.StopLossBps) {
		return Action{Kind: ActionLiquidate}
	}

	if cfg.ReactiveSellMode && weiPositive(snap.ExternalBuyWei) {
		sellSize := pctOfWei(snap.ExternalBuyWei, cfg.ReactiveSellPct)
		sellSize = clampToWei(sellSize, e.Position.TokenBalance)
		if weiPositive(sellSize) {
			return Action{Kind: ActionTrade, Direction: quote.DirectionSell, SizeWei: sellSize, Tag: TagReactive}
		}
	}

	if unrealizedCrossesProfitTarget(e, snap.MarkPriceWei, cfg.ProfitTargetBps) {
		size := sizeFor(rng, e, quote.DirectionSell)
		size = clampToWei(size, e.Position.TokenBalance)
		if weiPositive(size) {
			return Action{Kind: ActionTrade, Direction: quote.DirectionSell, SizeWei: size, Tag: TagProfitTake}
		}
	}

	direction := directionBias(rng, e, snap.MarkPriceWei)
	size := sizeFor(rng, e, direction)
	if direction == quote.DirectionSell {
		size = clampToWei(size, e.Position.TokenBalance)
	} else {
		size = clampToWei(size, e.Budget.BalanceWei)
	}
	if !weiPositive(size) {
		return Action{Kind: ActionWait, WaitFor: time.Duration(60) * time.Second}
	}
	return Action{Kind: ActionTrade, Direction: direction, SizeWei: size, Tag: TagNormal}
}

// directionBias implements "r = tokenValue / (tokenValue + ethFree)": if r
// exceeds rebalanceThreshold, force sell; if r falls under its complement,
// force buy; otherwise pick from the spread policy via a coin flip.
func directionBias(rng *rand.Rand, e *eigen.Eigen, markPriceWei string) quote.Direction {
	tokenValue := weiMul(e.Position.TokenBalance, markPriceWei)
	ethFree := weiOrZero(e.Budget.BalanceWei)
	total := new(big.Int).Add(tokenValue, ethFree)
	if total.Sign() == 0 {
		return quote.DirectionBuy
	}
	r := new(big.Float).Quo(new(big.Float).SetInt(tokenValue), new(big.Float).SetInt(total))
	threshold := e.Config.RebalanceThreshold

	rf, _ := r.Float64()
	if rf > threshold {
		return quote.DirectionSell
	}
	if rf < 1-threshold {
		return quote.DirectionBuy
	}
	if rng.Float64() < 0.5 {
		return quote.DirectionSell
	}
	return quote.DirectionBuy
}

// sizeFor draws the effective order size: the smaller of a uniform
// absolute-range draw and a uniform percent-of-balance draw.
func sizeFor(rng *rand.Rand, e *eigen.Eigen, direction quote.Direction) string {
	absMin := weiOrZero(e.Config.OrderSize.Min)
	absMax := weiOrZero(e.Config.OrderSize.Max)
	abs := uniformBig(rng, absMin, absMax)

	applicableBalance := e.Budget.BalanceWei
	if direction == quote.DirectionSell {
		applicableBalance = e.Position.TokenBalance
	}
	pctMin := e.Config.OrderSizePct.Min
	pctMax := e.Config.OrderSizePct.Max
	pct := pctMin + rng.Float64()*(pctMax-pctMin)
	pctSize := pctOfWei(applicableBalance, pct)

	if weiOrZero(pctSize).Cmp(abs) < 0 {
		return pctSize
	}
	return abs.String()
}

func unrealizedCrossesProfitTarget(e *eigen.Eigen, markPriceWei string, profitTargetBps int) bool {
	if weiOrZero(e.Position.TokenBalance).Sign() <= 0 {
		return false
	}
	unrealized := weiOrZero(e.Position.UnrealizedPnl(markPriceWei))
	costBasis := weiMul(e.Position.TokenBalance, e.Position.AverageEntryWei)
	if costBasis.Sign() <= 0 {
		return false
	}
	thresholdNum := new(big.Int).Mul(costBasis, big.NewInt(int64(profitTargetBps)))
	threshold := new(big.Int).Div(thresholdNum, big.NewInt(10000))
	return unrealized.Cmp(threshold) >= 0
}

func unrealizedCrossesStopLoss(e *eigen.Eigen, markPriceWei string, stopLossBps int) bool {
	if weiOrZero(e.Position.TokenBalance).Sign() <= 0 {
		return false
	}
	unrealized := weiOrZero(e.Position.UnrealizedPnl(markPriceWei))
	costBasis := weiMul(e.Position.TokenBalance, e.Position.AverageEntryWei)
	if costBasis.Sign() <= 0 {
		return false
	}
	thresholdNum := new(big.Int).Mul(costBasis, big.NewInt(int64(stopLossBps)))
	threshold := new(big.Int).Div(thresholdNum, big.NewInt(10000))
	return unrealized.Cmp(new(big.Int).Neg(threshold)) <= 0
}

func weiOrZero(s string) *big.Int {
	if s == "" {
		return big.NewInt(0)
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

func weiPositive(s string) bool {
	return weiOrZero(s).Sign() > 0
}

func weiMul(a, b string) *big.Int {
	return new(big.Int).Mul(weiOrZero(a), weiOrZero(b))
}

func pctOfWei(amountWei string, pct float64) string {
	amount := new(big.Float).SetInt(weiOrZero(amountWei))
	scaled := new(big.Float).Mul(amount, big.NewFloat(pct/100))
	out, _ := scaled.Int(nil)
	return out.String()
}

func clampToWei(sizeWei, ceilingWei string) string {
	size := weiOrZero(sizeWei)
	ceiling := weiOrZero(ceilingWei)
	if size.Cmp(ceiling) > 0 {
		return ceiling.String()
	}
	return size.String()
}

func uniformBig(rng *rand.Rand, min, max *big.Int) *big.Int {
	if max.Cmp(min) <= 0 {
		return new(big.Int).Set(min)
	}
	span := new(big.Int).Sub(max, min)
	f := rng.Float64()
	scaled := new(big.Float).Mul(new(big.Float).SetInt(span), big.NewFloat(f))
	delta, _ := scaled.Int(nil)
	return new(big.Int).Add(min, delta)
}
