// Package lifecycle exposes the admin operations on an eigen: create,
// fund, adjust, suspend, resume, take-profit, liquidate, terminate, and
// withdraw. Every operation validates owner identity, requests a status
// transition through the registry, and — when an on-chain effect is
// required — enqueues a single higher-priority action to the scheduler
// and waits for its settlement.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/scheduler"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
)

// Controller wires the registry and the scheduler manager behind the
// lifecycle surface.
type Controller struct {
	registry eigen.Registry
	manager  *scheduler.Manager
	logger   *logging.Logger
	clock    func() time.Time
}

// New builds a Controller.
func New(registry eigen.Registry, manager *scheduler.Manager, logger *logging.Logger) *Controller {
	return &Controller{registry: registry, manager: manager, logger: logger, clock: time.Now}
}

// CreateParams carries everything needed to mint a new eigen.
type CreateParams struct {
	OwnerAddress  string
	AgentIdentity string
	Target        eigen.Target
	Class         eigen.Class
	Config        eigen.Config
	// PendingLP marks launch-mode eigens that wait for pool creation
	// before funding.
	PendingLP bool
}

// Create mints a new eigen in pending_funding (or pending_lp for launch
// mode). The caller funds it separately via Fund.
func (c *Controller) Create(ctx context.Context, p CreateParams) (*eigen.Eigen, error) {
	if p.OwnerAddress == "" {
		return nil, svcerrors.MissingParameter("owner")
	}
	if p.Config.WalletCount < 1 || p.Config.WalletCount > 20 {
		return nil, svcerrors.OutOfRange("walletCount", 1, 20)
	}
	if p.Config.SlippageBps < 10 || p.Config.SlippageBps > 1000 {
		return nil, svcerrors.OutOfRange("slippageBps", 10, 1000)
	}

	id, err := eigen.NewID()
	if err != nil {
		return nil, svcerrors.Internal("lifecycle: generate eigen id", err)
	}

	status := eigen.StatusPendingFunding
	if p.PendingLP {
		status = eigen.StatusPendingLP
	}

	now := c.clock().UTC()
	e := &eigen.Eigen{
		ID:            id,
		OwnerAddress:  strings.ToLower(p.OwnerAddress),
		AgentIdentity: p.AgentIdentity,
		Target:        p.Target,
		Class:         p.Class,
		Config:        p.Config,
		Budget:        eigen.Budget{DepositedWei: "0", BalanceWei: "0", ReservedWei: "0"},
		Position:      eigen.Position{TokenBalance: "0", AverageEntryWei: "0", RealizedPnlWei: "0", GasSpentWei: "0", FeeAccruedWei: "0", VolumeProducedWei: "0"},
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.registry.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Fund credits the eigen's budget from a consumed payment and activates
// it, starting the scheduler loop.
func (c *Controller) Fund(ctx context.Context, eigenID, amountWei string) (*eigen.Eigen, error) {
	if eigen.CmpWei(amountWei, "0") <= 0 {
		return nil, svcerrors.InvalidInput("amountWei", "must be positive")
	}
	e, err := c.registry.WithLock(ctx, eigenID, func(locked *eigen.Eigen) error {
		if locked.Status.Terminal() {
			return terminalState(locked.ID)
		}
		locked.Budget.Deposit(amountWei)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.Status == eigen.StatusPendingFunding || e.Status == eigen.StatusPendingLP {
		e, err = c.registry.TransitionStatus(ctx, eigenID, e.Status, eigen.StatusActive)
		if err != nil {
			return nil, err
		}
	}
	c.manager.StartFor(eigenID)
	return e, nil
}

// Adjust applies a validated config patch, enforcing the write-time rules
// the registry itself can't see: walletCount never decreases, and a class
// change moves only upward and only while active.
func (c *Controller) Adjust(ctx context.Context, ownerAddr, eigenID string, patch eigen.ConfigPatch) (*eigen.Eigen, error) {
	e, err := c.owned(ctx, ownerAddr, eigenID)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, terminalState(eigenID)
	}
	if violated := eigen.ValidatePatch(patch); violated != "" {
		return nil, svcerrors.InvalidInput("config", violated+" out of bounds")
	}
	if patch.WalletCount != nil && *patch.WalletCount < e.Config.WalletCount {
		return nil, svcerrors.InvalidInput("walletCount", "never decreases; extending requires an explicit admin op")
	}
	if patch.Class != nil {
		if e.Status != eigen.StatusActive {
			return nil, svcerrors.Conflict("class change is allowed only while active")
		}
		if !eigen.Upgrade(e.Class, *patch.Class) {
			return nil, svcerrors.InvalidInput("class", "only upward class changes are allowed")
		}
	}
	return c.registry.UpdateConfig(ctx, eigenID, patch)
}

// Suspend parks an active eigen; the loop stays resident but executes
// nothing until resumed.
func (c *Controller) Suspend(ctx context.Context, ownerAddr, eigenID string) (*eigen.Eigen, error) {
	e, err := c.owned(ctx, ownerAddr, eigenID)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, terminalState(eigenID)
	}
	return c.registry.TransitionStatus(ctx, eigenID, eigen.StatusActive, eigen.StatusSuspended)
}

// Resume reactivates a suspended eigen.
func (c *Controller) Resume(ctx context.Context, ownerAddr, eigenID string) (*eigen.Eigen, error) {
	current, err := c.owned(ctx, ownerAddr, eigenID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, terminalState(eigenID)
	}
	e, err := c.registry.TransitionStatus(ctx, eigenID, eigen.StatusSuspended, eigen.StatusActive)
	if err != nil {
		return nil, err
	}
	c.manager.StartFor(eigenID)
	return e, nil
}

// TakeProfit enqueues a priority sell bounded by sizeWei ("" sells the
// whole position) and waits for settlement.
func (c *Controller) TakeProfit(ctx context.Context, ownerAddr, eigenID, sizeWei string) error {
	e, err := c.owned(ctx, ownerAddr, eigenID)
	if err != nil {
		return err
	}
	if e.Status.Terminal() {
		return terminalState(eigenID)
	}
	return c.manager.EnqueueCommand(ctx, eigenID, scheduler.Command{
		Kind:      scheduler.CommandTakeProfit,
		AmountWei: sizeWei,
	})
}

// Liquidate moves the eigen to liquidating and lets the scheduler sell
// the position down; the status transition is the interruption, the
// priority command accelerates the first sell.
func (c *Controller) Liquidate(ctx context.Context, ownerAddr, eigenID string) (*eigen.Eigen, error) {
	e, err := c.owned(ctx, ownerAddr, eigenID)
	if err != nil {
		return nil, err
	}
	if e.Status.Terminal() {
		return nil, terminalState(eigenID)
	}
	if e.Status != eigen.StatusLiquidating {
		e, err = c.registry.TransitionStatus(ctx, eigenID, e.Status, eigen.StatusLiquidating)
		if err != nil {
			return nil, err
		}
	}
	c.manager.StartFor(eigenID)
	if settleErr := c.settlePosition(ctx, eigenID); settleErr != nil {
		c.logger.Warn(ctx, "liquidate: priority sell incomplete", map[string]interface{}{
			"eigen_id": eigenID, "error": settleErr.Error(),
		})
	}
	return e, nil
}

// Terminate drives the eigen through liquidation to terminated and then
// closed, settling the position first when one is still held.
func (c *Controller) Terminate(ctx context.Context, ownerAddr, eigenID string) (*eigen.Eigen, error) {
	e, err := c.owned(ctx, ownerAddr, eigenID)
	if err != nil {
		return nil, err
	}

	switch e.Status {
	case eigen.StatusClosed:
		return e, nil
	case eigen.StatusTerminated:
		return c.registry.TransitionStatus(ctx, eigenID, eigen.StatusTerminated, eigen.StatusClosed)
	case eigen.StatusPendingFunding, eigen.StatusPendingLP, eigen.StatusSuspended:
		e, err = c.registry.TransitionStatus(ctx, eigenID, e.Status, eigen.StatusTerminated)
	case eigen.StatusActive:
		if _, err = c.registry.TransitionStatus(ctx, eigenID, eigen.StatusActive, eigen.StatusLiquidating); err != nil {
			return nil, err
		}
		fallthrough
	case eigen.StatusLiquidating:
		if settleErr := c.settlePosition(ctx, eigenID); settleErr != nil {
			c.logger.Warn(ctx, "terminate: settlement incomplete", map[string]interface{}{
				"eigen_id": eigenID, "error": settleErr.Error(),
			})
		}
		e, err = c.advanceToTerminated(ctx, eigenID)
	case eigen.StatusLiquidated:
		e, err = c.registry.TransitionStatus(ctx, eigenID, eigen.StatusLiquidated, eigen.StatusTerminated)
	}
	if err != nil {
		return nil, err
	}

	if e.Status == eigen.StatusTerminated {
		return c.registry.TransitionStatus(ctx, eigenID, eigen.StatusTerminated, eigen.StatusClosed)
	}
	return e, nil
}

// settlePosition enqueues a priority liquidation sell when tokens are
// still held.
func (c *Controller) settlePosition(ctx context.Context, eigenID string) error {
	e, err := c.registry.Get(ctx, eigenID)
	if err != nil {
		return err
	}
	if eigen.CmpWei(e.Position.TokenBalance, "0") <= 0 {
		return nil
	}
	return c.manager.EnqueueCommand(ctx, eigenID, scheduler.Command{Kind: scheduler.CommandLiquidate})
}

// advanceToTerminated walks liquidating→(liquidated)→terminated from
// whatever point settlement left the eigen at.
func (c *Controller) advanceToTerminated(ctx context.Context, eigenID string) (*eigen.Eigen, error) {
	e, err := c.registry.Get(ctx, eigenID)
	if err != nil {
		return nil, err
	}
	if e.Status == eigen.StatusLiquidating {
		if eigen.CmpWei(e.Position.TokenBalance, "0") <= 0 {
			if e, err = c.registry.TransitionStatus(ctx, eigenID, eigen.StatusLiquidating, eigen.StatusLiquidated); err != nil {
				return nil, err
			}
		} else {
			return c.registry.TransitionStatus(ctx, eigenID, eigen.StatusLiquidating, eigen.StatusTerminated)
		}
	}
	if e.Status == eigen.StatusLiquidated {
		return c.registry.TransitionStatus(ctx, eigenID, eigen.StatusLiquidated, eigen.StatusTerminated)
	}
	return e, nil
}

// Withdraw returns free balance to the owner. amountWei == "" (or "all")
// computes the net free balance after worst-case gas and pending fees.
func (c *Controller) Withdraw(ctx context.Context, ownerAddr, eigenID, amountWei string) (string, error) {
	e, err := c.owned(ctx, ownerAddr, eigenID)
	if err != nil {
		return "", err
	}
	if amountWei == "all" {
		amountWei = ""
	}
	requested := amountWei
	if requested == "" {
		requested = scheduler.WithdrawableWei(e).String()
	}
	if eigen.CmpWei(requested, "0") <= 0 {
		return "0", nil
	}
	err = c.manager.EnqueueCommand(ctx, eigenID, scheduler.Command{
		Kind:      scheduler.CommandWithdraw,
		AmountWei: amountWei,
		Recipient: e.OwnerAddress,
	})
	if err != nil {
		return "", err
	}
	return requested, nil
}

// owned loads the eigen and enforces that ownerAddr matches; an empty
// ownerAddr (internal caller) skips the check.
func (c *Controller) owned(ctx context.Context, ownerAddr, eigenID string) (*eigen.Eigen, error) {
	e, err := c.registry.Get(ctx, eigenID)
	if err != nil {
		return nil, err
	}
	if ownerAddr != "" && !strings.EqualFold(ownerAddr, e.OwnerAddress) {
		return nil, svcerrors.OwnershipRequired(eigenID)
	}
	return e, nil
}

func terminalState(eigenID string) error {
	return svcerrors.TerminalState(eigenID)
}
