package scheduler

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/wallet"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

const (
	// walletGasFloorWei is the native balance a sub-wallet must hold to be
	// eligible for selection; wallets below it are skipped in rotation.
	walletGasFloorWei = 2_000_000_000_000_000 // 0.002

	// dustFloorRaw is the smallest token remainder a sell may leave behind;
	// a sell that would leave less is raised to clear the position.
	dustFloorRaw = 1_000_000

	// sanityDeviationBps drops an action whose quoted output strays more
	// than 50% from the mark-price-implied output.
	sanityDeviationBps = 5000

	receiptTimeout = 30 * time.Second
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// allowanceMethod reads the ERC-20 allowance granted to the router.
var allowanceMethod = mustMethod("allowance", []abi.Argument{
	{Name: "owner", Type: mustType("address")},
	{Name: "spender", Type: mustType("address")},
}, []abi.Argument{
	{Name: "remaining", Type: mustType("uint256")},
})

// execResult summarizes one executed (or skipped) trade for the loop.
type execResult struct {
	outcome  tradelog.Outcome
	revert   *tradelog.RevertDetail
	deferred bool
}

// pickWallet selects the next sub-wallet by round-robin, skipping wallets
// whose free native balance cannot cover gas. With every wallet below the
// floor it reports deferred so the loop sleeps a cadence tick instead of
// queuing work.
func (r *Runner) pickWallet(ctx context.Context, e *eigen.Eigen, cl *chain.Client) (int, common.Address, bool, error) {
	count := e.Config.WalletCount
	if count < 1 {
		count = 1
	}
	floor := big.NewInt(walletGasFloorWei)
	for probe := 0; probe < count; probe++ {
		idx := (r.walletCursor + probe) % count
		addr, err := wallet.DeriveAddress(r.deps.MasterSecret, e.ID, idx)
		if err != nil {
			return 0, common.Address{}, false, err
		}
		bal, err := cl.GetBalance(ctx, addr)
		if err != nil {
			return 0, common.Address{}, false, err
		}
		if bal.Cmp(floor) < 0 {
			continue
		}
		r.walletCursor = (idx + 1) % count
		return idx, addr, true, nil
	}
	return 0, common.Address{}, false, nil
}

func (r *Runner) signerFor(e *eigen.Eigen) (*wallet.Signer, error) {
	chainCfg := r.deps.Chains.Get(e.Target.ChainID)
	if chainCfg == nil {
		return nil, svcerrors.InvalidInput("chainId", "unconfigured chain")
	}
	count := e.Config.WalletCount
	subs := make(map[common.Address]bool, count)
	for i := 0; i < count; i++ {
		addr, err := wallet.DeriveAddress(r.deps.MasterSecret, e.ID, i)
		if err != nil {
			return nil, err
		}
		subs[addr] = true
	}
	targets := wallet.AllowedTargets{
		Router:     routerFor(chainCfg, e.Target),
		Stablecoin: common.HexToAddress(chainCfg.StablecoinAddress),
		Token:      common.HexToAddress(e.Target.TokenAddress),
		Owner:      common.HexToAddress(e.OwnerAddress),
		SubWallets: subs,
	}
	return wallet.NewSigner(r.deps.MasterSecret, e.ID, targets), nil
}

func routerFor(chainCfg *chainconfig.Chain, target eigen.Target) common.Address {
	if target.Pool.RouterHint != "" {
		return common.HexToAddress(target.Pool.RouterHint)
	}
	if target.Pool.Version == eigen.PoolBondingCurve {
		return common.HexToAddress(chainCfg.BondingCurveRouter)
	}
	return common.HexToAddress(chainCfg.RouterAddress)
}

// sendTx signs and broadcasts one transaction from sub-wallet `idx`,
// serialized through the nonce tracker, and waits for its receipt.
func (r *Runner) sendTx(ctx context.Context, e *eigen.Eigen, cl *chain.Client, signer *wallet.Signer, idx int, from, to common.Address, value *big.Int, data []byte) (common.Hash, *big.Int, chain.ReceiptStatus, error) {
	chainNonce, err := cl.GetTransactionCount(ctx, from)
	if err != nil {
		return common.Hash{}, nil, chain.ReceiptPending, err
	}
	r.deps.Nonces.Seed(from, chainNonce)

	fees, err := cl.SuggestFees(ctx)
	if err != nil {
		return common.Hash{}, nil, chain.ReceiptPending, err
	}
	gasLimit, err := cl.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data}, true)
	if err != nil {
		return common.Hash{}, nil, chain.ReceiptPending, err
	}

	var txHash common.Hash
	err = r.deps.Nonces.WithNonce(ctx, from, func(nonce uint64) error {
		signedTx, _, signErr := signer.SignTx(wallet.TxRequest{
			ChainID:   big.NewInt(e.Target.ChainID),
			Index:     idx,
			Nonce:     nonce,
			GasLimit:  gasLimit,
			GasTipCap: fees.TipCap,
			GasFeeCap: fees.FeeCap,
			To:        to,
			ValueWei:  value,
			Data:      data,
		})
		if signErr != nil {
			return signErr
		}
		hash, sendErr := cl.SendRaw(ctx, signedTx)
		if sendErr != nil {
			return sendErr
		}
		txHash = hash
		return nil
	})
	if err != nil {
		return common.Hash{}, nil, chain.ReceiptPending, err
	}

	receipt, status, err := cl.WaitReceipt(ctx, txHash, receiptTimeout)
	if err != nil {
		return txHash, nil, chain.ReceiptPending, err
	}
	gasCost := new(big.Int).SetUint64(receipt.GasUsed)
	if receipt.EffectiveGasPrice != nil {
		gasCost.Mul(gasCost, receipt.EffectiveGasPrice)
	} else {
		gasCost.Mul(gasCost, fees.FeeCap)
	}
	return txHash, gasCost, status, nil
}

// ensureAllowance grants the router an unlimited token approval from the
// selected sub-wallet when its current allowance can't cover amountIn.
func (r *Runner) ensureAllowance(ctx context.Context, e *eigen.Eigen, cl *chain.Client, signer *wallet.Signer, idx int, from, router common.Address, amountIn *big.Int) error {
	token := common.HexToAddress(e.Target.TokenAddress)
	args, err := allowanceMethod.Inputs.Pack(from, router)
	if err != nil {
		return svcerrors.Internal("scheduler: pack allowance", err)
	}
	raw, err := cl.Call(ctx, token, append(append([]byte{}, allowanceMethod.ID...), args...), nil)
	if err != nil {
		return err
	}
	values, err := allowanceMethod.Outputs.Unpack(raw)
	if err == nil && len(values) == 1 {
		if remaining, ok := values[0].(*big.Int); ok && remaining.Cmp(amountIn) >= 0 {
			return nil
		}
	}

	data, err := ApproveCalldata(router, maxUint256)
	if err != nil {
		return err
	}
	_, _, status, err := r.sendTx(ctx, e, cl, signer, idx, from, token, big.NewInt(0), data)
	if err != nil {
		return err
	}
	if status != chain.ReceiptSuccess {
		return svcerrors.Reverted("", "token approval reverted")
	}
	return nil
}

// executeTrade runs one planned buy or sell end to end: reserve, quote,
// sanity-check, simulate, sign, send, and commit. Every exit path either
// settles or releases the reservation.
func (r *Runner) executeTrade(ctx context.Context, e *eigen.Eigen, action Action, markPriceWei string) execResult {
	if r.deps.ClientFor == nil {
		return execResult{deferred: true}
	}
	cl := r.deps.ClientFor(e.Target.ChainID)
	if cl == nil {
		return execResult{deferred: true}
	}
	signer, err := r.signerFor(e)
	if err != nil {
		r.logWarn(ctx, e.ID, "signer unavailable", err)
		return execResult{deferred: true}
	}

	size, ok := new(big.Int).SetString(action.SizeWei, 10)
	if !ok || size.Sign() <= 0 {
		return execResult{outcome: tradelog.OutcomeSkipped}
	}

	if action.Direction == quote.DirectionBuy {
		return r.executeBuy(ctx, e, cl, signer, action, size, markPriceWei)
	}
	return r.executeSell(ctx, e, cl, signer, action, size, markPriceWei)
}

func (r *Runner) executeBuy(ctx context.Context, e *eigen.Eigen, cl *chain.Client, signer *wallet.Signer, action Action, size *big.Int, markPriceWei string) execResult {
	// Reserve the spend before anything leaves the process.
	if _, err := r.deps.Registry.WithLock(ctx, e.ID, func(locked *eigen.Eigen) error {
		return locked.Budget.Reserve(size.String())
	}); err != nil {
		return execResult{deferred: true}
	}
	release := func() {
		_, _ = r.deps.Registry.WithLock(context.WithoutCancel(ctx), e.ID, func(locked *eigen.Eigen) error {
			locked.Budget.Release(size.String())
			return nil
		})
	}

	q, err := r.deps.Quotes.Quote(ctx, e.Target, quote.DirectionBuy, size.String())
	if err != nil {
		release()
		r.logWarn(ctx, e.ID, "buy quote failed", err)
		return execResult{deferred: true}
	}
	if ref := impliedBuyOut(size, markPriceWei); ref != nil && quote.SanityCheck(q.AmountOutRaw, ref.String(), sanityDeviationBps) {
		release()
		r.recordSkip(ctx, e, action, "quote deviates from oracle reference")
		return execResult{outcome: tradelog.OutcomeSkipped}
	}
	expectedOut, _ := new(big.Int).SetString(q.AmountOutRaw, 10)
	minOut := MinOut(expectedOut, e.Config.SlippageBps)

	idx, from, found, err := r.pickWallet(ctx, e, cl)
	if err != nil || !found {
		release()
		return execResult{deferred: true}
	}

	data, err := BuyCalldata(common.HexToAddress(e.Target.TokenAddress), from, minOut)
	if err != nil {
		release()
		return execResult{outcome: tradelog.OutcomeSkipped}
	}

	if simErr := cl.Simulate(ctx, from, q.SelectedRouter, size, data); simErr != nil {
		release()
		if rev := chain.DecodeRevert(simErr); rev != nil {
			detail := &tradelog.RevertDetail{ErrorName: rev.ErrorName, Args: rev.Args, NextAction: "skip_cycle"}
			r.appendEntry(ctx, e, action, tradelog.OutcomeSimFailed, detail, "", "0", size.String(), expectedOut.String(), q.SelectedRouter.Hex(), idx, markPriceWei)
			return execResult{outcome: tradelog.OutcomeSimFailed, revert: detail}
		}
		r.logWarn(ctx, e.ID, "buy simulation failed upstream", simErr)
		return execResult{deferred: true}
	}

	txHash, gasCost, status, err := r.sendTx(ctx, e, cl, signer, idx, from, q.SelectedRouter, size, data)
	if err != nil {
		release()
		r.logWarn(ctx, e.ID, "buy send failed", err)
		return execResult{deferred: true}
	}
	if status != chain.ReceiptSuccess {
		release()
		detail := r.revertDetailFor(txHash)
		r.commitGas(ctx, e.ID, gasCost)
		r.appendEntry(ctx, e, action, tradelog.OutcomeReverted, detail, txHash.Hex(), gasString(gasCost), size.String(), "0", q.SelectedRouter.Hex(), idx, markPriceWei)
		return execResult{outcome: tradelog.OutcomeReverted, revert: detail}
	}

	price := priceFor(size, expectedOut)
	if _, err := r.deps.Registry.WithLock(context.WithoutCancel(ctx), e.ID, func(locked *eigen.Eigen) error {
		locked.Budget.Settle(size.String(), size.String())
		locked.Budget.BalanceWei = eigen.SubWei(locked.Budget.BalanceWei, gasString(gasCost))
		locked.Position.ApplyBuy(expectedOut.String(), price)
		locked.Position.GasSpentWei = eigen.AddWei(locked.Position.GasSpentWei, gasString(gasCost))
		locked.Position.VolumeProducedWei = eigen.AddWei(locked.Position.VolumeProducedWei, size.String())
		return nil
	}); err != nil {
		r.logWarn(ctx, e.ID, "buy commit failed", err)
	}
	r.appendEntry(ctx, e, action, tradelog.OutcomeFilled, nil, txHash.Hex(), gasString(gasCost), size.String(), expectedOut.String(), q.SelectedRouter.Hex(), idx, price)
	return execResult{outcome: tradelog.OutcomeFilled}
}

func (r *Runner) executeSell(ctx context.Context, e *eigen.Eigen, cl *chain.Client, signer *wallet.Signer, action Action, size *big.Int, markPriceWei string) execResult {
	// Raise a sell that would strand dust below the floor.
	held, _ := new(big.Int).SetString(e.Position.TokenBalance, 10)
	if held == nil {
		held = big.NewInt(0)
	}
	remainder := new(big.Int).Sub(held, size)
	if remainder.Sign() > 0 && remainder.Cmp(big.NewInt(dustFloorRaw)) < 0 {
		size = held
	}
	if size.Cmp(held) > 0 {
		size = new(big.Int).Set(held)
	}
	if size.Sign() <= 0 {
		return execResult{outcome: tradelog.OutcomeSkipped}
	}

	// A sell spends only gas from the budget; reserve a gas allowance.
	gasReserve := big.NewInt(walletGasFloorWei)
	if _, err := r.deps.Registry.WithLock(ctx, e.ID, func(locked *eigen.Eigen) error {
		return locked.Budget.Reserve(gasReserve.String())
	}); err != nil {
		return execResult{deferred: true}
	}
	release := func() {
		_, _ = r.deps.Registry.WithLock(context.WithoutCancel(ctx), e.ID, func(locked *eigen.Eigen) error {
			locked.Budget.Release(gasReserve.String())
			return nil
		})
	}

	q, err := r.deps.Quotes.Quote(ctx, e.Target, quote.DirectionSell, size.String())
	if err != nil {
		release()
		r.logWarn(ctx, e.ID, "sell quote failed", err)
		return execResult{deferred: true}
	}
	if ref := impliedSellOut(size, markPriceWei); ref != nil && quote.SanityCheck(q.AmountOutRaw, ref.String(), sanityDeviationBps) {
		release()
		r.recordSkip(ctx, e, action, "quote deviates from oracle reference")
		return execResult{outcome: tradelog.OutcomeSkipped}
	}
	expectedOut, _ := new(big.Int).SetString(q.AmountOutRaw, 10)
	minOut := MinOut(expectedOut, e.Config.SlippageBps)

	idx, from, found, err := r.pickWallet(ctx, e, cl)
	if err != nil || !found {
		release()
		return execResult{deferred: true}
	}

	if err := r.ensureAllowance(ctx, e, cl, signer, idx, from, q.SelectedRouter, size); err != nil {
		release()
		r.logWarn(ctx, e.ID, "sell approval failed", err)
		return execResult{deferred: true}
	}

	data, err := SellCalldata(common.HexToAddress(e.Target.TokenAddress), from, size, minOut)
	if err != nil {
		release()
		return execResult{outcome: tradelog.OutcomeSkipped}
	}

	if simErr := cl.Simulate(ctx, from, q.SelectedRouter, big.NewInt(0), data); simErr != nil {
		release()
		if rev := chain.DecodeRevert(simErr); rev != nil {
			detail := &tradelog.RevertDetail{ErrorName: rev.ErrorName, Args: rev.Args, NextAction: "skip_cycle"}
			r.appendEntry(ctx, e, action, tradelog.OutcomeSimFailed, detail, "", "0", size.String(), expectedOut.String(), q.SelectedRouter.Hex(), idx, markPriceWei)
			return execResult{outcome: tradelog.OutcomeSimFailed, revert: detail}
		}
		r.logWarn(ctx, e.ID, "sell simulation failed upstream", simErr)
		return execResult{deferred: true}
	}

	txHash, gasCost, status, err := r.sendTx(ctx, e, cl, signer, idx, from, q.SelectedRouter, big.NewInt(0), data)
	if err != nil {
		release()
		r.logWarn(ctx, e.ID, "sell send failed", err)
		return execResult{deferred: true}
	}
	if status != chain.ReceiptSuccess {
		release()
		detail := r.revertDetailFor(txHash)
		r.commitGas(ctx, e.ID, gasCost)
		r.appendEntry(ctx, e, action, tradelog.OutcomeReverted, detail, txHash.Hex(), gasString(gasCost), size.String(), "0", q.SelectedRouter.Hex(), idx, markPriceWei)
		return execResult{outcome: tradelog.OutcomeReverted, revert: detail}
	}

	price := priceFor(expectedOut, size) // quote wei per raw token unit
	if _, err := r.deps.Registry.WithLock(context.WithoutCancel(ctx), e.ID, func(locked *eigen.Eigen) error {
		locked.Budget.Settle(gasReserve.String(), gasString(gasCost))
		locked.Position.ApplySell(size.String(), price)
		locked.Budget.Credit(expectedOut.String())
		locked.Position.GasSpentWei = eigen.AddWei(locked.Position.GasSpentWei, gasString(gasCost))
		locked.Position.VolumeProducedWei = eigen.AddWei(locked.Position.VolumeProducedWei, expectedOut.String())
		return nil
	}); err != nil {
		r.logWarn(ctx, e.ID, "sell commit failed", err)
	}
	r.appendEntry(ctx, e, action, tradelog.OutcomeFilled, nil, txHash.Hex(), gasString(gasCost), expectedOut.String(), size.String(), q.SelectedRouter.Hex(), idx, price)
	return execResult{outcome: tradelog.OutcomeFilled}
}

// commitGas charges gas for a reverted send, where the reservation was
// released but the chain still consumed gas. The gas leaves the free
// balance as a settled outflow so the ledger invariant keeps holding.
func (r *Runner) commitGas(ctx context.Context, eigenID string, gasCost *big.Int) {
	if gasCost == nil || gasCost.Sign() <= 0 {
		return
	}
	_, _ = r.deps.Registry.WithLock(context.WithoutCancel(ctx), eigenID, func(locked *eigen.Eigen) error {
		locked.Budget.BalanceWei = eigen.SubWei(locked.Budget.BalanceWei, gasCost.String())
		locked.Position.GasSpentWei = eigen.AddWei(locked.Position.GasSpentWei, gasCost.String())
		return nil
	})
}

func (r *Runner) revertDetailFor(txHash common.Hash) *tradelog.RevertDetail {
	return &tradelog.RevertDetail{ErrorName: "Reverted", NextAction: "skip_cycle", Args: []string{txHash.Hex()}}
}

func (r *Runner) appendEntry(ctx context.Context, e *eigen.Eigen, action Action, outcome tradelog.Outcome, revert *tradelog.RevertDetail, txHash, gasWei, amountInWei, amountOutRaw, router string, walletIdx int, priceWei string) {
	entry := &tradelog.Entry{
		ID:           uuid.NewString(),
		EigenID:      e.ID,
		Direction:    string(action.Direction),
		AmountInWei:  amountInWei,
		AmountOutRaw: amountOutRaw,
		Router:       router,
		TxHash:       txHash,
		Outcome:      outcome,
		Revert:       revert,
		GasUsedWei:   gasWei,
		PriceWei:     priceWei,
		WalletIndex:  walletIdx,
		CreatedAt:    r.deps.Clock().UTC(),
	}
	if err := r.deps.Trades.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.logWarn(ctx, e.ID, "trade log append failed", err)
	}
	tradesTotal.WithLabelValues(string(outcome), entry.Direction).Inc()
	if outcome == tradelog.OutcomeReverted || outcome == tradelog.OutcomeSimFailed {
		revertsTotal.Inc()
	}
}

func (r *Runner) recordSkip(ctx context.Context, e *eigen.Eigen, action Action, reason string) {
	detail := &tradelog.RevertDetail{ErrorName: "SanityCheck", Args: []string{reason}, NextAction: "wait"}
	r.appendEntry(ctx, e, action, tradelog.OutcomeSkipped, detail, "", "0", action.SizeWei, "0", "", 0, "0")
}

// priceFor computes quote-wei per raw token unit as an integer string.
func priceFor(quoteWei, tokenRaw *big.Int) string {
	if tokenRaw == nil || tokenRaw.Sign() == 0 {
		return "0"
	}
	return new(big.Int).Div(quoteWei, tokenRaw).String()
}

// impliedBuyOut estimates tokens received for sizeWei at the mark price.
func impliedBuyOut(sizeWei *big.Int, markPriceWei string) *big.Int {
	mark, ok := new(big.Int).SetString(markPriceWei, 10)
	if !ok || mark.Sign() <= 0 {
		return nil
	}
	return new(big.Int).Div(sizeWei, mark)
}

// impliedSellOut estimates quote wei received for sizeRaw at the mark price.
func impliedSellOut(sizeRaw *big.Int, markPriceWei string) *big.Int {
	mark, ok := new(big.Int).SetString(markPriceWei, 10)
	if !ok || mark.Sign() <= 0 {
		return nil
	}
	return new(big.Int).Mul(sizeRaw, mark)
}

func gasString(gasCost *big.Int) string {
	if gasCost == nil {
		return "0"
	}
	return gasCost.String()
}
