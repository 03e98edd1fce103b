package scheduler

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
)

func planFixture() *eigen.Eigen {
	cfg := eigen.DefaultConfig(eigen.ClassCore)
	cfg.VolumeTargetWeiPerDay = "50000000000000000"
	return &eigen.Eigen{
		ID:     "ES-test01",
		Config: cfg,
		Budget: eigen.Budget{
			DepositedWei: "100000000000000000",
			BalanceWei:   "100000000000000000",
			ReservedWei:  "0",
		},
		Position: eigen.Position{
			TokenBalance:    "0",
			AverageEntryWei: "0",
		},
		Status: eigen.StatusActive,
	}
}

func TestPlanNextDeterministicForSameSeed(t *testing.T) {
	snap := Snapshot{Eigen: planFixture(), MarkPriceWei: "1000", ExternalBuyWei: "0"}

	first := planNext(snap, NewRand("ES-test01"))
	second := planNext(snap, NewRand("ES-test01"))

	assert.Equal(t, first, second)
}

func TestSeedForIsStablePerEigen(t *testing.T) {
	assert.Equal(t, SeedFor("ES-ab12cd"), SeedFor("ES-ab12cd"))
	assert.NotEqual(t, SeedFor("ES-ab12cd"), SeedFor("ES-ab12ce"))
}

func TestNextCadenceJitterBounds(t *testing.T) {
	rng := NewRand("ES-test01")
	now := time.Unix(1_700_000_000, 0)
	base := 3600.0 / 6 // seconds at 6 trades/hour

	for i := 0; i < 200; i++ {
		next := NextCadence(rng, 6, now)
		delta := next.Sub(now).Seconds()
		assert.GreaterOrEqual(t, delta, base*0.7-1)
		assert.LessOrEqual(t, delta, base*1.3+1)
	}
}

func TestDirectionForcedSellAboveRebalanceThreshold(t *testing.T) {
	e := planFixture()
	// Token value dwarfs free balance: r ≈ 1 > threshold.
	e.Position.TokenBalance = "1000000000000000000"
	e.Position.AverageEntryWei = "1"
	e.Budget.BalanceWei = "1"

	got := directionBias(NewRand(e.ID), e, "1000")
	assert.Equal(t, quote.DirectionSell, got)
}

func TestDirectionForcedBuyBelowComplement(t *testing.T) {
	e := planFixture()
	e.Position.TokenBalance = "0"

	got := directionBias(NewRand(e.ID), e, "1000")
	assert.Equal(t, quote.DirectionBuy, got)
}

func TestReactiveSellOverridesPlanning(t *testing.T) {
	e := planFixture()
	e.Config.ReactiveSellMode = true
	e.Config.ReactiveSellPct = 50
	e.Position.TokenBalance = "2000000"
	e.Position.AverageEntryWei = "1000"

	snap := Snapshot{Eigen: e, MarkPriceWei: "1000", ExternalBuyWei: "1000000"}
	action := planNext(snap, NewRand(e.ID))

	require.Equal(t, ActionTrade, action.Kind)
	assert.Equal(t, quote.DirectionSell, action.Direction)
	assert.Equal(t, TagReactive, action.Tag)
	assert.Equal(t, "500000", action.SizeWei) // 50% of the observed buy
}

func TestReactiveSellBoundedByPosition(t *testing.T) {
	e := planFixture()
	e.Config.ReactiveSellMode = true
	e.Config.ReactiveSellPct = 100
	e.Position.TokenBalance = "300"
	e.Position.AverageEntryWei = "1000"

	snap := Snapshot{Eigen: e, MarkPriceWei: "1000", ExternalBuyWei: "1000000"}
	action := planNext(snap, NewRand(e.ID))

	require.Equal(t, ActionTrade, action.Kind)
	assert.Equal(t, "300", action.SizeWei)
}

func TestStopLossPlansLiquidation(t *testing.T) {
	e := planFixture()
	e.Config.StopLossBps = 1000 // 10%
	e.Position.TokenBalance = "1000000"
	e.Position.AverageEntryWei = "1000"

	// Mark at 50% of entry: unrealized = -50% of cost basis.
	snap := Snapshot{Eigen: e, MarkPriceWei: "500"}
	action := planNext(snap, NewRand(e.ID))

	assert.Equal(t, ActionLiquidate, action.Kind)
}

func TestProfitTakeTagged(t *testing.T) {
	e := planFixture()
	e.Config.ProfitTargetBps = 1000 // 10%
	e.Config.ReactiveSellMode = false
	e.Position.TokenBalance = "1000000000000000000"
	e.Position.AverageEntryWei = "1000"

	// Mark at 2x entry: +100% unrealized.
	snap := Snapshot{Eigen: e, MarkPriceWei: "2000"}
	action := planNext(snap, NewRand(e.ID))

	require.Equal(t, ActionTrade, action.Kind)
	assert.Equal(t, quote.DirectionSell, action.Direction)
	assert.Equal(t, TagProfitTake, action.Tag)
}

func TestSizeClippedToAvailableBalance(t *testing.T) {
	e := planFixture()
	e.Budget.BalanceWei = "500" // far below orderSize.Min

	snap := Snapshot{Eigen: e, MarkPriceWei: "1000"}
	action := planNext(snap, NewRand(e.ID))

	if action.Kind == ActionTrade && action.Direction == quote.DirectionBuy {
		size, ok := new(big.Int).SetString(action.SizeWei, 10)
		require.True(t, ok)
		assert.LessOrEqual(t, size.Cmp(big.NewInt(500)), 0)
	}
}

func TestMinOutAppliesSlippage(t *testing.T) {
	out := MinOut(big.NewInt(10000), 300)
	assert.Equal(t, "9700", out.String())

	out = MinOut(big.NewInt(10000), 10)
	assert.Equal(t, "9990", out.String())
}

func TestCalldataSelectorsDiffer(t *testing.T) {
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")

	buy, err := BuyCalldata(token, recipient, big.NewInt(1))
	require.NoError(t, err)
	sell, err := SellCalldata(token, recipient, big.NewInt(1), big.NewInt(1))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(buy), 4)
	require.GreaterOrEqual(t, len(sell), 4)
	assert.NotEqual(t, buy[:4], sell[:4])
}

func TestWithdrawableNetOfGasAndFees(t *testing.T) {
	e := planFixture()
	e.Budget.BalanceWei = "10000000000000000" // 0.01
	e.Position.FeeAccruedWei = "1000000000000000"

	net := WithdrawableWei(e)
	// 0.01 - 0.002 gas floor - 0.001 fees = 0.007
	assert.Equal(t, "7000000000000000", net.String())

	e.Budget.BalanceWei = "100"
	assert.Equal(t, "0", WithdrawableWei(e).String())
}
