package gateway

import (
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
)

// Wire types: wei-scale integers travel as decimal strings, percents and
// USD as decimal numbers, per the API contract.

type poolWire struct {
	Version     string `json:"version"`
	PoolAddress string `json:"poolAddress,omitempty"`
	Token0      string `json:"token0,omitempty"`
	Token1      string `json:"token1,omitempty"`
	FeeTier     uint32 `json:"feeTier,omitempty"`
	TickSpacing int32  `json:"tickSpacing,omitempty"`
	RouterHint  string `json:"routerHint,omitempty"`
}

type orderSizeWire struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type pctRangeWire struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type configWire struct {
	VolumeTarget       string        `json:"volumeTarget"`
	TradeFrequency     float64       `json:"tradeFrequency"`
	OrderSize          orderSizeWire `json:"orderSize"`
	OrderSizePct       pctRangeWire  `json:"orderSizePct"`
	SpreadWidthBps     int           `json:"spreadWidthBps"`
	ProfitTargetBps    int           `json:"profitTargetBps"`
	StopLossBps        int           `json:"stopLossBps"`
	RebalanceThreshold float64       `json:"rebalanceThreshold"`
	WalletCount        int           `json:"walletCount"`
	SlippageBps        int           `json:"slippageBps"`
	ReactiveSellMode   bool          `json:"reactiveSellMode"`
	ReactiveSellPct    float64       `json:"reactiveSellPct"`
	StrategyPrompt     string        `json:"strategyPrompt,omitempty"`
}

type budgetWire struct {
	DepositedWei string `json:"depositedWei"`
	BalanceWei   string `json:"balanceWei"`
	ReservedWei  string `json:"reservedWei"`
}

type positionWire struct {
	TokenBalance      string `json:"tokenBalance"`
	AverageEntryWei   string `json:"averageEntryWei"`
	RealizedPnlWei    string `json:"realizedPnlWei"`
	UnrealizedPnlWei  string `json:"unrealizedPnlWei,omitempty"`
	GasSpentWei       string `json:"gasSpentWei"`
	FeeAccruedWei     string `json:"feeAccruedWei"`
	VolumeProducedWei string `json:"volumeProducedWei"`
	TradeCount        int64  `json:"tradeCount"`
	BuyCount          int64  `json:"buyCount"`
	SellCount         int64  `json:"sellCount"`
}

type eigenWire struct {
	ID            string       `json:"id"`
	Owner         string       `json:"owner"`
	AgentIdentity string       `json:"agentIdentity,omitempty"`
	ChainID       int64        `json:"chainId"`
	TokenAddress  string       `json:"tokenAddress"`
	Pool          poolWire     `json:"pool"`
	Class         string       `json:"class"`
	Config        configWire   `json:"config"`
	Budget        budgetWire   `json:"budget"`
	Position      positionWire `json:"position"`
	Status        string       `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	TerminatedAt  *time.Time   `json:"terminatedAt,omitempty"`
}

func eigenToWire(e *eigen.Eigen) eigenWire {
	return eigenWire{
		ID:            e.ID,
		Owner:         e.OwnerAddress,
		AgentIdentity: e.AgentIdentity,
		ChainID:       e.Target.ChainID,
		TokenAddress:  e.Target.TokenAddress,
		Pool: poolWire{
			Version:     string(e.Target.Pool.Version),
			PoolAddress: e.Target.Pool.PoolAddress,
			Token0:      e.Target.Pool.Token0,
			Token1:      e.Target.Pool.Token1,
			FeeTier:     e.Target.Pool.FeeTier,
			TickSpacing: e.Target.Pool.TickSpacing,
			RouterHint:  e.Target.Pool.RouterHint,
		},
		Class: string(e.Class),
		Config: configWire{
			VolumeTarget:       e.Config.VolumeTargetWeiPerDay,
			TradeFrequency:     e.Config.TradeFrequencyPerHour,
			OrderSize:          orderSizeWire{Min: e.Config.OrderSize.Min, Max: e.Config.OrderSize.Max},
			OrderSizePct:       pctRangeWire{Min: e.Config.OrderSizePct.Min, Max: e.Config.OrderSizePct.Max},
			SpreadWidthBps:     e.Config.SpreadWidthBps,
			ProfitTargetBps:    e.Config.ProfitTargetBps,
			StopLossBps:        e.Config.StopLossBps,
			RebalanceThreshold: e.Config.RebalanceThreshold,
			WalletCount:        e.Config.WalletCount,
			SlippageBps:        e.Config.SlippageBps,
			ReactiveSellMode:   e.Config.ReactiveSellMode,
			ReactiveSellPct:    e.Config.ReactiveSellPct,
			StrategyPrompt:     e.Config.StrategyPrompt,
		},
		Budget: budgetWire{
			DepositedWei: e.Budget.DepositedWei,
			BalanceWei:   e.Budget.BalanceWei,
			ReservedWei:  e.Budget.ReservedWei,
		},
		Position: positionWire{
			TokenBalance:      e.Position.TokenBalance,
			AverageEntryWei:   e.Position.AverageEntryWei,
			RealizedPnlWei:    e.Position.RealizedPnlWei,
			UnrealizedPnlWei:  e.Position.UnrealizedPnlWei,
			GasSpentWei:       e.Position.GasSpentWei,
			FeeAccruedWei:     e.Position.FeeAccruedWei,
			VolumeProducedWei: e.Position.VolumeProducedWei,
			TradeCount:        e.Position.TradeCount,
			BuyCount:          e.Position.BuyCount,
			SellCount:         e.Position.SellCount,
		},
		Status:       string(e.Status),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		TerminatedAt: e.TerminatedAt,
	}
}

type tradeWire struct {
	ID           string                 `json:"id"`
	EigenID      string                 `json:"eigenId"`
	Direction    string                 `json:"direction"`
	AmountInWei  string                 `json:"amountInWei"`
	AmountOutRaw string                 `json:"amountOutRaw"`
	Router       string                 `json:"router,omitempty"`
	TxHash       string                 `json:"txHash,omitempty"`
	Outcome      string                 `json:"outcome"`
	Revert       *tradelog.RevertDetail `json:"revert,omitempty"`
	GasUsedWei   string                 `json:"gasUsedWei"`
	PriceWei     string                 `json:"priceWei"`
	WalletIndex  int                    `json:"walletIndex"`
	CreatedAt    time.Time              `json:"createdAt"`
}

func tradeToWire(t *tradelog.Entry) tradeWire {
	return tradeWire{
		ID:           t.ID,
		EigenID:      t.EigenID,
		Direction:    t.Direction,
		AmountInWei:  t.AmountInWei,
		AmountOutRaw: t.AmountOutRaw,
		Router:       t.Router,
		TxHash:       t.TxHash,
		Outcome:      string(t.Outcome),
		Revert:       t.Revert,
		GasUsedWei:   t.GasUsedWei,
		PriceWei:     t.PriceWei,
		WalletIndex:  t.WalletIndex,
		CreatedAt:    t.CreatedAt,
	}
}

// configPatchWire is the PATCH body; pointer fields distinguish "absent"
// from zero.
type configPatchWire struct {
	TradeFrequency     *float64       `json:"tradeFrequency"`
	OrderSize          *orderSizeWire `json:"orderSize"`
	OrderSizePct       *pctRangeWire  `json:"orderSizePct"`
	SpreadWidthBps     *int           `json:"spreadWidthBps"`
	ProfitTargetBps    *int           `json:"profitTargetBps"`
	StopLossBps        *int           `json:"stopLossBps"`
	RebalanceThreshold *float64       `json:"rebalanceThreshold"`
	WalletCount        *int           `json:"walletCount"`
	SlippageBps        *int           `json:"slippageBps"`
	ReactiveSellMode   *bool          `json:"reactiveSellMode"`
	ReactiveSellPct    *float64       `json:"reactiveSellPct"`
	StrategyPrompt     *string        `json:"strategyPrompt"`
	Class              *string        `json:"class"`
}

func (p configPatchWire) toDomain() eigen.ConfigPatch {
	patch := eigen.ConfigPatch{
		TradeFrequencyPerHour: p.TradeFrequency,
		SpreadWidthBps:        p.SpreadWidthBps,
		ProfitTargetBps:       p.ProfitTargetBps,
		StopLossBps:           p.StopLossBps,
		RebalanceThreshold:    p.RebalanceThreshold,
		WalletCount:           p.WalletCount,
		SlippageBps:           p.SlippageBps,
		ReactiveSellMode:      p.ReactiveSellMode,
		ReactiveSellPct:       p.ReactiveSellPct,
		StrategyPrompt:        p.StrategyPrompt,
	}
	if p.OrderSize != nil {
		patch.OrderSize = &eigen.OrderSizeRange{Min: p.OrderSize.Min, Max: p.OrderSize.Max}
	}
	if p.OrderSizePct != nil {
		patch.OrderSizePct = &eigen.PercentRange{Min: p.OrderSizePct.Min, Max: p.OrderSizePct.Max}
	}
	if p.Class != nil {
		class := eigen.Class(*p.Class)
		patch.Class = &class
	}
	return patch
}
