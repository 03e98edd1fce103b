// Package quote implements the Quote Engine: given (pool, direction,
// amount) it returns an estimated output and the router selected by the
// pool's protocol, reading on-chain pool state rather than approximating.
package quote

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// Direction is the swap direction relative to the eigen's target token.
type Direction string

const (
	DirectionBuy  Direction = "buy"  // quote token in, target token out
	DirectionSell Direction = "sell" // target token in, quote token out
)

// RouteKind names the protocol the selected router belongs to.
type RouteKind string

const (
	RouteV3           RouteKind = "v3"
	RouteV4           RouteKind = "v4"
	RouteBondingCurve RouteKind = "bonding-curve"
)

// Result is the Quote Engine's output for one (pool, direction, amount).
type Result struct {
	AmountOutRaw   string
	SelectedRouter common.Address
	Route          RouteKind
}

// slot0Method packs/unpacks the Uniswap V3/V4-style slot0() view call:
// (sqrtPriceX96 uint160, tick int24, ...). Only the leading sqrtPriceX96
// is decoded; the remaining return values are ignored.
var slot0Method = mustMethod("slot0", nil, []abi.Argument{
	{Name: "sqrtPriceX96", Type: mustType("uint160")},
	{Name: "tick", Type: mustType("int24")},
	{Name: "observationIndex", Type: mustType("uint16")},
	{Name: "observationCardinality", Type: mustType("uint16")},
	{Name: "observationCardinalityNext", Type: mustType("uint16")},
	{Name: "feeProtocol", Type: mustType("uint8")},
	{Name: "unlocked", Type: mustType("bool")},
})

// getAmountOutMethod packs/unpacks a bonding-curve router's
// getAmountOut(uint256 amountIn, address tokenIn) view call.
var getAmountOutMethod = mustMethod("getAmountOut", []abi.Argument{
	{Name: "amountIn", Type: mustType("uint256")},
	{Name: "tokenIn", Type: mustType("address")},
}, []abi.Argument{
	{Name: "amountOut", Type: mustType("uint256")},
})

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustMethod(name string, inputs, outputs []abi.Argument) abi.Method {
	return abi.NewMethod(name, name, abi.Function, "view", false, false, inputs, outputs)
}

// q96 is 2^96, the fixed-point scale of a Uniswap-style sqrtPriceX96.
var q96 = new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// Engine reads on-chain pool state via the Chain Client and resolves the
// router the target's protocol selects.
type Engine struct {
	chains *chainconfig.Registry
	client func(chainID int64) *chain.Client
}

// NewEngine builds an Engine that looks up a Chain Client per chain id via
// clientFor (normally backed by a small per-chain map built at startup).
func NewEngine(chains *chainconfig.Registry, clientFor func(chainID int64) *chain.Client) *Engine {
	return &Engine{chains: chains, client: clientFor}
}

// Quote resolves amountOut for swapping amountInWei in `direction` against
// target.Pool. It never approximates silently: a V4 pool with no declared
// TickSpacing, or a chain/pool combination the Chain Client cannot read,
// returns an error instead of a guessed result.
func (e *Engine) Quote(ctx context.Context, target eigen.Target, direction Direction, amountInWei string) (*Result, error) {
	amountIn, ok := new(big.Int).SetString(amountInWei, 10)
	if !ok || amountIn.Sign() <= 0 {
		return nil, svcerrors.InvalidInput("amountIn", "must be a positive decimal wei string")
	}

	chainCfg := e.chains.Get(target.ChainID)
	if chainCfg == nil {
		return nil, svcerrors.InvalidInput("chainId", "unconfigured chain")
	}
	cl := e.client(target.ChainID)
	if cl == nil {
		return nil, svcerrors.UpstreamUnavailable(target.ChainID, nil)
	}

	switch target.Pool.Version {
	case eigen.PoolV3, eigen.PoolV4:
		if target.Pool.Version == eigen.PoolV4 && target.Pool.TickSpacing == 0 {
			return nil, svcerrors.InvalidInput("tickSpacing", "required for v4 pools; the quote engine never guesses it")
		}
		return e.quoteConcentrated(ctx, cl, chainCfg, target, direction, amountIn)
	case eigen.PoolBondingCurve:
		return e.quoteBondingCurve(ctx, cl, chainCfg, target, direction, amountIn)
	default:
		return nil, svcerrors.InvalidInput("pool.version", "unknown pool version "+string(target.Pool.Version))
	}
}

func (e *Engine) quoteConcentrated(ctx context.Context, cl *chain.Client, chainCfg *chainconfig.Chain, target eigen.Target, direction Direction, amountIn *big.Int) (*Result, error) {
	pool := common.HexToAddress(target.Pool.PoolAddress)
	data, err := slot0Method.Inputs.Pack()
	if err != nil {
		return nil, svcerrors.Internal("quote: pack slot0", err)
	}
	selector := slot0Method.ID
	callData := append(append([]byte{}, selector...), data...)

	raw, err := cl.Call(ctx, pool, callData, nil)
	if err != nil {
		return nil, svcerrors.BlockchainError("slot0", err)
	}
	values, err := slot0Method.Outputs.Unpack(raw)
	if err != nil || len(values) == 0 {
		return nil, svcerrors.BlockchainError("slot0 decode", err)
	}
	sqrtPriceX96, ok := values[0].(*big.Int)
	if !ok || sqrtPriceX96.Sign() == 0 {
		return nil, svcerrors.Reverted(target.Pool.PoolAddress, "slot0 returned zero price")
	}

	// price = (sqrtPriceX96 / 2^96)^2, expressed as token1 per token0.
	ratio := new(big.Float).Quo(new(big.Float).SetInt(sqrtPriceX96), q96)
	price := new(big.Float).Mul(ratio, ratio)

	var out *big.Float
	routeKind := RouteV3
	if target.Pool.Version == eigen.PoolV4 {
		routeKind = RouteV4
	}
	// DirectionBuy spends quote (token1) for target (token0): amountOut =
	// amountIn / price. DirectionSell spends target (token0) for quote
	// (token1): amountOut = amountIn * price.
	amountInF := new(big.Float).SetInt(amountIn)
	if direction == DirectionBuy {
		out = new(big.Float).Quo(amountInF, price)
	} else {
		out = new(big.Float).Mul(amountInF, price)
	}

	outInt, _ := out.Int(nil)
	router := common.HexToAddress(chainCfg.RouterAddress)
	if target.Pool.RouterHint != "" {
		router = common.HexToAddress(target.Pool.RouterHint)
	}
	return &Result{AmountOutRaw: outInt.String(), SelectedRouter: router, Route: routeKind}, nil
}

func (e *Engine) quoteBondingCurve(ctx context.Context, cl *chain.Client, chainCfg *chainconfig.Chain, target eigen.Target, direction Direction, amountIn *big.Int) (*Result, error) {
	router := common.HexToAddress(chainCfg.BondingCurveRouter)
	if target.Pool.RouterHint != "" {
		router = common.HexToAddress(target.Pool.RouterHint)
	}

	tokenIn := common.HexToAddress(target.Pool.Token1) // quote token
	if direction == DirectionSell {
		tokenIn = common.HexToAddress(target.Pool.Token0) // target token
	}

	data, err := getAmountOutMethod.Inputs.Pack(amountIn, tokenIn)
	if err != nil {
		return nil, svcerrors.Internal("quote: pack getAmountOut", err)
	}
	callData := append(append([]byte{}, getAmountOutMethod.ID...), data...)

	raw, err := cl.Call(ctx, router, callData, nil)
	if err != nil {
		return nil, svcerrors.BlockchainError("getAmountOut", err)
	}
	values, err := getAmountOutMethod.Outputs.Unpack(raw)
	if err != nil || len(values) == 0 {
		return nil, svcerrors.BlockchainError("getAmountOut decode", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok {
		return nil, svcerrors.BlockchainError("getAmountOut decode", nil)
	}

	return &Result{AmountOutRaw: amountOut.String(), SelectedRouter: router, Route: RouteBondingCurve}, nil
}

// SanityCheck reports whether amountOut deviates from the oracle's
// reference amountOut by more than maxDeviationBps; callers drop the
// action when it does.
func SanityCheck(quotedOut, oracleOut string, maxDeviationBps int) bool {
	quoted, ok1 := new(big.Int).SetString(quotedOut, 10)
	oracle, ok2 := new(big.Int).SetString(oracleOut, 10)
	if !ok1 || !ok2 || oracle.Sign() == 0 {
		return true
	}
	diff := new(big.Int).Sub(quoted, oracle)
	diff.Abs(diff)
	bps := new(big.Int).Mul(diff, big.NewInt(10000))
	bps.Div(bps, oracle)
	return bps.Cmp(big.NewInt(int64(maxDeviationBps))) > 0
}
