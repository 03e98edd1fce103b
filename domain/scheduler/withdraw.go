package scheduler

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// WithdrawableWei computes the net free balance a withdraw("all") may
// return: free balance minus a worst-case gas reservation and the fees
// accrued but not yet claimed.
func WithdrawableWei(e *eigen.Eigen) *big.Int {
	free, _ := new(big.Int).SetString(e.Budget.BalanceWei, 10)
	if free == nil {
		free = big.NewInt(0)
	}
	net := new(big.Int).Sub(free, big.NewInt(walletGasFloorWei))
	fees, _ := new(big.Int).SetString(e.Position.FeeAccruedWei, 10)
	if fees != nil {
		net.Sub(net, fees)
	}
	if net.Sign() < 0 {
		return big.NewInt(0)
	}
	return net
}

// executeWithdraw sends the requested amount (or the whole withdrawable
// balance) from sub-wallet 0 back to the owner as a native transfer.
func (r *Runner) executeWithdraw(ctx context.Context, e *eigen.Eigen, cmd Command) error {
	net := WithdrawableWei(e)
	amount := net
	if cmd.AmountWei != "" {
		requested, ok := new(big.Int).SetString(cmd.AmountWei, 10)
		if !ok || requested.Sign() <= 0 {
			return svcerrors.InvalidInput("amount", "must be a positive decimal wei string")
		}
		if requested.Cmp(net) > 0 {
			return svcerrors.InsufficientFunds(cmd.AmountWei, net.String())
		}
		amount = requested
	}
	if amount.Sign() <= 0 {
		return nil
	}

	recipient := common.HexToAddress(cmd.Recipient)
	if recipient == (common.Address{}) {
		recipient = common.HexToAddress(e.OwnerAddress)
	}

	if r.deps.ClientFor == nil {
		return svcerrors.UpstreamUnavailable(e.Target.ChainID, nil)
	}
	cl := r.deps.ClientFor(e.Target.ChainID)
	if cl == nil {
		return svcerrors.UpstreamUnavailable(e.Target.ChainID, nil)
	}
	signer, err := r.signerFor(e)
	if err != nil {
		return err
	}
	from, err := signer.AddressAt(0)
	if err != nil {
		return err
	}

	if _, err := r.deps.Registry.WithLock(ctx, e.ID, func(locked *eigen.Eigen) error {
		return locked.Budget.Reserve(amount.String())
	}); err != nil {
		return err
	}

	txHash, gasCost, status, err := r.sendTx(ctx, e, cl, signer, 0, from, recipient, amount, nil)
	if err != nil || status != chain.ReceiptSuccess {
		_, _ = r.deps.Registry.WithLock(context.WithoutCancel(ctx), e.ID, func(locked *eigen.Eigen) error {
			locked.Budget.Release(amount.String())
			return nil
		})
		if err != nil {
			return err
		}
		return svcerrors.Reverted(txHash.Hex(), "withdraw transfer reverted")
	}

	_, err = r.deps.Registry.WithLock(context.WithoutCancel(ctx), e.ID, func(locked *eigen.Eigen) error {
		locked.Budget.Settle(amount.String(), amount.String())
		locked.Budget.BalanceWei = eigen.SubWei(locked.Budget.BalanceWei, gasString(gasCost))
		locked.Position.GasSpentWei = eigen.AddWei(locked.Position.GasSpentWei, gasString(gasCost))
		return nil
	})
	if err != nil {
		return err
	}

	r.appendEntry(ctx, e, Action{Kind: ActionTrade, Direction: "withdraw", SizeWei: amount.String()},
		tradelog.OutcomeFilled, nil, txHash.Hex(), gasString(gasCost), amount.String(), "0", "", 0, "0")
	return nil
}

func errPriceUnavailable(eigenID string) error {
	return svcerrors.BlockchainError("mark price", nil).WithDetails("eigenId", eigenID)
}

func commandFailed(result execResult) error {
	if result.revert != nil {
		return svcerrors.Reverted("", result.revert.ErrorName)
	}
	if result.deferred {
		return svcerrors.Conflict("action deferred; retry shortly")
	}
	return svcerrors.Conflict("action skipped")
}
