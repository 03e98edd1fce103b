package scheduler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// The router ABI surface is fixed (the contracts themselves are opaque to
// the keeper): a payable buy entrypoint taking native currency and a sell
// entrypoint taking pre-approved tokens. Both take a minOut for slippage
// protection.
var (
	buyMethod = mustMethod("buyTokens", []abi.Argument{
		{Name: "token", Type: mustType("address")},
		{Name: "minOut", Type: mustType("uint256")},
		{Name: "recipient", Type: mustType("address")},
	}, nil)

	sellMethod = mustMethod("sellTokens", []abi.Argument{
		{Name: "token", Type: mustType("address")},
		{Name: "amountIn", Type: mustType("uint256")},
		{Name: "minOut", Type: mustType("uint256")},
		{Name: "recipient", Type: mustType("address")},
	}, nil)

	approveMethod = mustMethod("approve", []abi.Argument{
		{Name: "spender", Type: mustType("address")},
		{Name: "amount", Type: mustType("uint256")},
	}, []abi.Argument{
		{Name: "ok", Type: mustType("bool")},
	})
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustMethod(name string, inputs, outputs []abi.Argument) abi.Method {
	return abi.NewMethod(name, name, abi.Function, "nonpayable", false, false, inputs, outputs)
}

// BuyCalldata packs the router buy call; the native amount rides in the
// transaction value.
func BuyCalldata(token, recipient common.Address, minOut *big.Int) ([]byte, error) {
	args, err := buyMethod.Inputs.Pack(token, minOut, recipient)
	if err != nil {
		return nil, svcerrors.Internal("scheduler: pack buyTokens", err)
	}
	return append(append([]byte{}, buyMethod.ID...), args...), nil
}

// SellCalldata packs the router sell call.
func SellCalldata(token, recipient common.Address, amountIn, minOut *big.Int) ([]byte, error) {
	args, err := sellMethod.Inputs.Pack(token, amountIn, minOut, recipient)
	if err != nil {
		return nil, svcerrors.Internal("scheduler: pack sellTokens", err)
	}
	return append(append([]byte{}, sellMethod.ID...), args...), nil
}

// ApproveCalldata packs an ERC-20 approval of the router for amount.
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	args, err := approveMethod.Inputs.Pack(spender, amount)
	if err != nil {
		return nil, svcerrors.Internal("scheduler: pack approve", err)
	}
	return append(append([]byte{}, approveMethod.ID...), args...), nil
}

// MinOut applies the slippage tolerance: expectedOut × (1 − slippageBps /
// 10000).
func MinOut(expectedOut *big.Int, slippageBps int) *big.Int {
	factor := big.NewInt(int64(10000 - slippageBps))
	out := new(big.Int).Mul(expectedOut, factor)
	return out.Div(out, big.NewInt(10000))
}
