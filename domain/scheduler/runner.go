package scheduler

import (
	"context"
	"math/big"
	"math/rand"
	"strconv"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/quote"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/state"
)

// maxConsecutiveReverts auto-suspends an eigen after this many reverts
// sharing the same decoded reason.
const maxConsecutiveReverts = 3

// errorBackoff is the sleep after a loop-head error, so a persistent
// upstream failure degrades to a slow retry instead of a hot loop.
const errorBackoff = 30 * time.Second

// Deps carries everything a Runner borrows. The Runner holds no state of
// its own beyond the PRNG, wallet cursor, and reactive scan position; the
// registry row is re-read at every loop head.
type Deps struct {
	Registry     eigen.Registry
	Trades       tradelog.Store
	Quotes       *quote.Engine
	Chains       *chainconfig.Registry
	ClientFor    func(chainID int64) *chain.Client
	Nonces       *chain.NonceTracker
	MasterSecret []byte
	Logger       *logging.Logger
	Clock        func() time.Time
	// Cursors persists per-eigen scan positions (reactive-sell log
	// ingestion) across restarts; optional.
	Cursors *state.PersistentState
}

// Runner is the cooperative per-eigen trading task. One Runner services
// exactly one eigen; the Manager owns the goroutine.
type Runner struct {
	deps         Deps
	eigenID      string
	rng          *rand.Rand
	commands     chan Command
	walletCursor int
	reactive     *ReactiveIngestor
}

// NewRunner builds a Runner for eigenID with its deterministic per-eigen
// PRNG seed.
func NewRunner(deps Deps, eigenID string) *Runner {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Runner{
		deps:     deps,
		eigenID:  eigenID,
		rng:      NewRand(eigenID),
		commands: make(chan Command, 1),
	}
}

// Run drives the loop until the eigen reaches a state the scheduler must
// not execute in, or ctx is cancelled. Any error inside one iteration is
// caught, logged with the eigen id, and followed by a backoff or cadence
// sleep; only a run of reverts sharing one decoded reason suspends the
// eigen (see afterExecution).
func (r *Runner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		e, err := r.deps.Registry.Get(ctx, r.eigenID)
		if err != nil {
			r.logWarn(ctx, r.eigenID, "registry read failed", err)
			if !r.sleep(ctx, errorBackoff) {
				return
			}
			continue
		}

		// Lifecycle commands preempt planning in every runnable state.
		select {
		case cmd := <-r.commands:
			cmd.reply(r.runCommand(ctx, e, cmd))
			continue
		default:
		}

		switch e.Status {
		case eigen.StatusActive:
			if !r.stepActive(ctx, e) {
				return
			}
		case eigen.StatusLiquidating:
			if !r.stepLiquidating(ctx, e) {
				return
			}
		case eigen.StatusSuspended, eigen.StatusPendingFunding, eigen.StatusPendingLP:
			// Parked but not terminal: wake periodically in case a resume
			// or funding arrived, and stay responsive to commands.
			if !r.sleepOrCommand(ctx, e, 15*time.Second) {
				return
			}
		default:
			// Terminal state: the loop exits and never executes again.
			return
		}
	}
}

// stepActive runs one planning+execution iteration. Returns false when
// the loop should exit.
func (r *Runner) stepActive(ctx context.Context, e *eigen.Eigen) bool {
	if eigen.CmpWei(e.Position.VolumeProducedWei, e.Config.VolumeTargetWeiPerDay) >= 0 &&
		eigen.CmpWei(e.Config.VolumeTargetWeiPerDay, "0") > 0 {
		if _, err := r.deps.Registry.TransitionStatus(ctx, e.ID, eigen.StatusActive, eigen.StatusLiquidating); err != nil {
			r.logWarn(ctx, e.ID, "volume-exhaustion transition failed", err)
		}
		return true
	}

	markPrice, ok := r.markPrice(ctx, e)
	if !ok {
		return r.sleepOrCommand(ctx, e, errorBackoff)
	}

	externalBuy := "0"
	if e.Config.ReactiveSellMode {
		externalBuy = r.observedExternalBuy(ctx, e)
	}

	action := planNext(Snapshot{Eigen: e, MarkPriceWei: markPrice, ExternalBuyWei: externalBuy}, r.rng)

	switch action.Kind {
	case ActionLiquidate:
		if _, err := r.deps.Registry.TransitionStatus(ctx, e.ID, eigen.StatusActive, eigen.StatusLiquidating); err != nil {
			r.logWarn(ctx, e.ID, "stop-loss transition failed", err)
		}
		return true
	case ActionWait:
		return r.sleepOrCommand(ctx, e, action.WaitFor)
	}

	result := r.executeTrade(ctx, e, action, markPrice)
	r.afterExecution(ctx, e, result)

	next := NextCadence(r.rng, e.Config.TradeFrequencyPerHour, r.deps.Clock())
	return r.sleepOrCommand(ctx, e, time.Until(next))
}

// stepLiquidating sells down the whole position; every non-sell action is
// rejected in this state. Once the token balance reaches zero the eigen
// moves to liquidated.
func (r *Runner) stepLiquidating(ctx context.Context, e *eigen.Eigen) bool {
	held, _ := new(big.Int).SetString(e.Position.TokenBalance, 10)
	if held == nil || held.Sign() <= 0 {
		if _, err := r.deps.Registry.TransitionStatus(ctx, e.ID, eigen.StatusLiquidating, eigen.StatusLiquidated); err != nil {
			r.logWarn(ctx, e.ID, "liquidated transition failed", err)
			return r.sleep(ctx, errorBackoff)
		}
		return true
	}

	markPrice, ok := r.markPrice(ctx, e)
	if !ok {
		return r.sleepOrCommand(ctx, e, errorBackoff)
	}

	action := Action{Kind: ActionTrade, Direction: quote.DirectionSell, SizeWei: held.String(), Tag: TagNormal}
	result := r.executeTrade(ctx, e, action, markPrice)
	r.afterExecution(ctx, e, result)

	if result.outcome == tradelog.OutcomeFilled {
		return true
	}
	next := NextCadence(r.rng, e.Config.TradeFrequencyPerHour, r.deps.Clock())
	return r.sleepOrCommand(ctx, e, time.Until(next))
}

// afterExecution applies the repeated-revert auto-suspend rule.
func (r *Runner) afterExecution(ctx context.Context, e *eigen.Eigen, result execResult) {
	if result.revert == nil || result.revert.ErrorName == "" {
		return
	}
	count, err := r.deps.Trades.ConsecutiveSameRevert(ctx, e.ID, result.revert.ErrorName)
	if err != nil || count < maxConsecutiveReverts {
		return
	}
	current, err := r.deps.Registry.Get(ctx, e.ID)
	if err != nil || current.Status.Terminal() {
		return
	}
	if _, err := r.deps.Registry.TransitionStatus(ctx, e.ID, current.Status, eigen.StatusSuspended); err != nil {
		r.logWarn(ctx, e.ID, "auto-suspend transition failed", err)
		return
	}
	r.deps.Logger.Warn(ctx, "eigen auto-suspended after repeated reverts", map[string]interface{}{
		"eigen_id": e.ID,
		"error":    result.revert.ErrorName,
		"count":    count,
	})
}

// runCommand executes one lifecycle-enqueued action at priority.
func (r *Runner) runCommand(ctx context.Context, e *eigen.Eigen, cmd Command) error {
	switch cmd.Kind {
	case CommandTakeProfit:
		markPrice, ok := r.markPrice(ctx, e)
		if !ok {
			return errPriceUnavailable(e.ID)
		}
		size := cmd.AmountWei
		if size == "" || eigen.CmpWei(size, e.Position.TokenBalance) > 0 {
			size = e.Position.TokenBalance
		}
		if eigen.CmpWei(size, "0") <= 0 {
			return nil
		}
		action := Action{Kind: ActionTrade, Direction: quote.DirectionSell, SizeWei: size, Tag: TagProfitTake}
		result := r.executeTrade(ctx, e, action, markPrice)
		if result.outcome != tradelog.OutcomeFilled {
			return commandFailed(result)
		}
		return nil

	case CommandLiquidate:
		markPrice, ok := r.markPrice(ctx, e)
		if !ok {
			return errPriceUnavailable(e.ID)
		}
		held := e.Position.TokenBalance
		if eigen.CmpWei(held, "0") <= 0 {
			return nil
		}
		action := Action{Kind: ActionTrade, Direction: quote.DirectionSell, SizeWei: held, Tag: TagNormal}
		result := r.executeTrade(ctx, e, action, markPrice)
		if result.outcome != tradelog.OutcomeFilled {
			return commandFailed(result)
		}
		return nil

	case CommandWithdraw:
		return r.executeWithdraw(ctx, e, cmd)
	}
	return nil
}

// markPrice reads the spot price as quote wei per raw token unit, probing
// the Quote Engine at a notional 1e18-unit size.
func (r *Runner) markPrice(ctx context.Context, e *eigen.Eigen) (string, bool) {
	if r.deps.Quotes == nil {
		return "", false
	}
	notional := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	q, err := r.deps.Quotes.Quote(ctx, e.Target, quote.DirectionSell, notional.String())
	if err != nil {
		r.logWarn(ctx, e.ID, "mark price unavailable", err)
		return "", false
	}
	out, ok := new(big.Int).SetString(q.AmountOutRaw, 10)
	if !ok || out.Sign() <= 0 {
		return "", false
	}
	return new(big.Int).Div(out, notional).String(), true
}

func (r *Runner) observedExternalBuy(ctx context.Context, e *eigen.Eigen) string {
	if r.reactive == nil {
		if r.deps.ClientFor == nil {
			return "0"
		}
		cl := r.deps.ClientFor(e.Target.ChainID)
		if cl == nil {
			return "0"
		}
		r.reactive = NewReactiveIngestor(cl, e, r.deps.MasterSecret)
		if r.deps.Cursors != nil {
			if raw, err := r.deps.Cursors.Load(ctx, "reactive:"+e.ID); err == nil {
				if block, parseErr := strconv.ParseUint(string(raw), 10, 64); parseErr == nil {
					r.reactive.SeedCursor(block)
				}
			}
		}
	}
	size, err := r.reactive.LargestExternalBuy(ctx)
	if err != nil {
		r.logWarn(ctx, e.ID, "reactive ingest failed", err)
		return "0"
	}
	if r.deps.Cursors != nil {
		cursor := strconv.FormatUint(r.reactive.Cursor(), 10)
		_ = r.deps.Cursors.Save(ctx, "reactive:"+e.ID, []byte(cursor))
	}
	return size
}

// sleepOrCommand waits d, waking early for a lifecycle command or ctx
// cancellation; commands received mid-sleep are executed immediately.
// Returns false when the loop should exit.
func (r *Runner) sleepOrCommand(ctx context.Context, e *eigen.Eigen, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case cmd := <-r.commands:
		cmd.reply(r.runCommand(ctx, e, cmd))
		return true
	case <-timer.C:
		return true
	}
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (r *Runner) logWarn(ctx context.Context, eigenID, msg string, err error) {
	if r.deps.Logger == nil {
		return
	}
	r.deps.Logger.Warn(ctx, msg, map[string]interface{}{
		"eigen_id": eigenID,
		"error":    err.Error(),
	})
}
