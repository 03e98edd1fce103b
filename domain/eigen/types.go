// Package eigen defines the Eigen aggregate: a single market-making agent
// bound to one token, one chain, one config, and one budget.
package eigen

import "time"

// Status is the eigen lifecycle state.
type Status string

const (
	StatusPendingFunding Status = "pending_funding"
	StatusPendingLP      Status = "pending_lp"
	StatusActive         Status = "active"
	StatusSuspended      Status = "suspended"
	StatusLiquidating    Status = "liquidating"
	StatusLiquidated     Status = "liquidated"
	StatusTerminated     Status = "terminated"
	StatusClosed         Status = "closed"
)

// Terminal reports whether the scheduler must not run for this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusLiquidated, StatusTerminated, StatusClosed:
		return true
	default:
		return false
	}
}

// Class selects default parameter ranges and fee rate.
type Class string

const (
	ClassLite  Class = "lite"
	ClassCore  Class = "core"
	ClassPro   Class = "pro"
	ClassUltra Class = "ultra"
)

// classRank orders classes so "upward only" class changes can be checked.
var classRank = map[Class]int{
	ClassLite:  0,
	ClassCore:  1,
	ClassPro:   2,
	ClassUltra: 3,
}

// Upgrade reports whether to is a strictly-higher class than from.
func Upgrade(from, to Class) bool {
	return classRank[to] > classRank[from]
}

// PoolVersion identifies the liquidity mechanism backing a pool.
type PoolVersion string

const (
	PoolV3           PoolVersion = "v3"
	PoolV4           PoolVersion = "v4"
	PoolBondingCurve PoolVersion = "bonding-curve"
)

// PoolDescriptor identifies the on-chain pool an eigen trades against.
type PoolDescriptor struct {
	Version     PoolVersion
	PoolAddress string
	Token0      string
	Token1      string
	FeeTier     uint32
	// TickSpacing is required when Version == PoolV4; the Quote Engine
	// returns a validation error rather than guessing when it is zero.
	TickSpacing int32
	RouterHint  string
}

// Target identifies the chain and token an eigen operates against.
type Target struct {
	ChainID      int64
	TokenAddress string
	Pool         PoolDescriptor
}

// OrderSizeRange bounds an order in absolute wei; the percent-of-balance
// bounds are carried separately as a PercentRange (Config.OrderSizePct).
type OrderSizeRange struct {
	Min string // decimal wei string
	Max string
}

type PercentRange struct {
	Min float64
	Max float64
}

// Config holds all mutable, bounds-checked fields of an eigen.
type Config struct {
	VolumeTargetWeiPerDay string // decimal wei/day equivalent
	TradeFrequencyPerHour float64
	OrderSize             OrderSizeRange
	OrderSizePct          PercentRange
	SpreadWidthBps        int
	ProfitTargetBps       int
	StopLossBps           int
	RebalanceThreshold    float64 // 0..1
	WalletCount           int     // 1..20
	SlippageBps           int     // 10..1000
	ReactiveSellMode      bool
	ReactiveSellPct       float64 // 1..100
	StrategyPrompt        string
}

// Bounds is the declared [min, max] for a single numeric config field, used
// by the patch validator. Field names match the JSON wire names, except
// tradeFrequencyPerHour, whose wire name is tradeFrequency.
type Bounds struct {
	Min, Max float64
}

// FieldBounds enumerates every bounded numeric config field.
var FieldBounds = map[string]Bounds{
	"tradeFrequencyPerHour": {Min: 0.01, Max: 1000},
	"spreadWidthBps":        {Min: 0, Max: 10000},
	"profitTargetBps":       {Min: 0, Max: 100000},
	"stopLossBps":           {Min: 0, Max: 10000},
	"rebalanceThreshold":    {Min: 0, Max: 1},
	"walletCount":           {Min: 1, Max: 20},
	"slippageBps":           {Min: 10, Max: 1000},
	"reactiveSellPct":       {Min: 1, Max: 100},
}

// Budget tracks deposited, free, and in-flight funds in wei.
type Budget struct {
	DepositedWei string
	BalanceWei   string
	ReservedWei  string
}

// Position tracks held inventory and running P&L in wei.
type Position struct {
	TokenBalance     string // raw integer units
	AverageEntryWei  string
	RealizedPnlWei   string
	UnrealizedPnlWei string // recomputed on read, not persisted
	GasSpentWei      string
	FeeAccruedWei    string
	// VolumeProducedWei accumulates the ETH-equivalent notional of every
	// confirmed trade, checked against Config.VolumeTargetWeiPerDay to
	// decide when the eigen has exhausted its purchased volume.
	VolumeProducedWei string
	TradeCount        int64
	BuyCount          int64
	SellCount         int64
}

// Eigen is the unit of work the keeper operates on.
type Eigen struct {
	ID            string
	OwnerAddress  string // lower-case hex
	AgentIdentity string // optional external agent identity
	Target        Target
	Class         Class
	Config        Config
	Budget        Budget
	Position      Position
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
	TerminatedAt  *time.Time
}
