package gateway

import (
	"net/http"
	"strings"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/launch"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/lifecycle"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/payment"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/httputil"
)

// paymentHeader is the proof header of the 402 handshake.
const paymentHeader = "X-PAYMENT"

type buyVolumeRequest struct {
	TokenAddress string `json:"tokenAddress"`
	PackageID    string `json:"packageId"`
	ChainID      int64  `json:"chainId"`
	Class        string `json:"class"`
	// Optional pool override for tokens that have graduated to a DEX.
	Pool *poolWire `json:"pool"`
}

type fundingWire struct {
	Funded    bool   `json:"funded"`
	AmountWei string `json:"amountWei"`
}

type buyVolumeResponse struct {
	EigenID   string      `json:"eigenId"`
	Status    string      `json:"status"`
	Funding   fundingWire `json:"funding"`
	PaymentID string      `json:"paymentId"`
}

// handleBuyVolume implements the purchase flow: the first POST without
// X-PAYMENT answers 402 with the requirements record; the retry carrying
// proof creates, funds, and activates an eigen.
func (s *Server) handleBuyVolume(w http.ResponseWriter, r *http.Request) {
	var req buyVolumeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.TokenAddress == "" {
		s.writeError(w, r, svcerrors.MissingParameter("tokenAddress"))
		return
	}
	pkg, ok := payment.Packages[req.PackageID]
	if !ok {
		s.writeError(w, r, svcerrors.InvalidInput("packageId", "unknown package"))
		return
	}
	chainID := req.ChainID
	if chainID == 0 {
		chainID = s.defaultChain
	}
	if s.chains.Get(chainID) == nil {
		s.writeError(w, r, svcerrors.InvalidInput("chainId", "unconfigured chain"))
		return
	}

	requirements := s.payments.RequirementsFor(chainID, pkg)
	proof := strings.TrimSpace(r.Header.Get(paymentHeader))
	if proof == "" {
		httputil.WriteJSON(w, http.StatusPaymentRequired, requirements)
		return
	}

	pay, err := s.payments.Verify(r.Context(), requirements, proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// A replayed proof whose payment is already linked answers 409 with
	// the original payment id.
	if pay.State == payment.StateConsumed {
		s.writeError(w, r, svcerrors.PaymentConsumed(pay.ID))
		return
	}

	class := eigen.Class(req.Class)
	if class == "" {
		class = eigen.ClassLite
	}
	cfg := eigen.DefaultConfig(class)
	cfg.VolumeTargetWeiPerDay = pkg.VolumeTargetWei

	e, err := s.lifecycle.Create(r.Context(), lifecycle.CreateParams{
		OwnerAddress: pay.Payer,
		Target: eigen.Target{
			ChainID:      chainID,
			TokenAddress: strings.ToLower(req.TokenAddress),
			Pool:         s.poolFromRequest(chainID, req.TokenAddress, req.Pool),
		},
		Class:  class,
		Config: cfg,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.payments.Consume(r.Context(), pay.ID, e.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	e, err = s.lifecycle.Fund(r.Context(), e.ID, pkg.VolumeTargetWei)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, buyVolumeResponse{
		EigenID:   e.ID,
		Status:    string(e.Status),
		Funding:   fundingWire{Funded: true, AmountWei: e.Budget.DepositedWei},
		PaymentID: pay.ID,
	})
}

// poolFromRequest resolves the pool descriptor: the caller's explicit
// override when present, otherwise the chain's bonding-curve default
// keyed by the token.
func (s *Server) poolFromRequest(chainID int64, tokenAddress string, override *poolWire) eigen.PoolDescriptor {
	if override != nil {
		return eigen.PoolDescriptor{
			Version:     eigen.PoolVersion(override.Version),
			PoolAddress: override.PoolAddress,
			Token0:      override.Token0,
			Token1:      override.Token1,
			FeeTier:     override.FeeTier,
			TickSpacing: override.TickSpacing,
			RouterHint:  override.RouterHint,
		}
	}
	chainCfg := s.chains.Get(chainID)
	return eigen.PoolDescriptor{
		Version:     eigen.PoolBondingCurve,
		PoolAddress: strings.ToLower(tokenAddress),
		Token0:      strings.ToLower(tokenAddress),
		Token1:      chainCfg.StablecoinAddress,
		RouterHint:  chainCfg.BondingCurveRouter,
	}
}

type launchRequest struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
	PackageID   string `json:"packageId"`
	Class       string `json:"class"`
	FeeType     string `json:"feeType"`
	WalletCount int    `json:"walletCount"`
	Allocation  string `json:"allocation"`
	ChainID     int64  `json:"chainId"`
}

type launchResponse struct {
	TokenAddress string   `json:"tokenAddress"`
	EigenID      string   `json:"eigenId"`
	PoolID       string   `json:"poolId,omitempty"`
	Allocation   string   `json:"allocation"`
	TxHashes     []string `json:"txHashes"`
}

// handleLaunch runs the same 402 flow as buy-volume, then creates a new
// token through the bonding-curve router and binds a pending_lp eigen to
// it.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	var req launchRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" || req.Symbol == "" {
		s.writeError(w, r, svcerrors.MissingParameter("name/symbol"))
		return
	}
	pkg, ok := payment.Packages[req.PackageID]
	if !ok {
		s.writeError(w, r, svcerrors.InvalidInput("packageId", "unknown package"))
		return
	}
	chainID := req.ChainID
	if chainID == 0 {
		chainID = s.defaultChain
	}
	if s.chains.Get(chainID) == nil {
		s.writeError(w, r, svcerrors.InvalidInput("chainId", "unconfigured chain"))
		return
	}

	requirements := s.payments.RequirementsFor(chainID, pkg)
	proof := strings.TrimSpace(r.Header.Get(paymentHeader))
	if proof == "" {
		httputil.WriteJSON(w, http.StatusPaymentRequired, requirements)
		return
	}

	pay, err := s.payments.Verify(r.Context(), requirements, proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pay.State == payment.StateConsumed {
		s.writeError(w, r, svcerrors.PaymentConsumed(pay.ID))
		return
	}

	class := eigen.Class(req.Class)
	if class == "" {
		class = eigen.ClassCore
	}
	cfg := eigen.DefaultConfig(class)
	cfg.VolumeTargetWeiPerDay = pkg.VolumeTargetWei
	if req.WalletCount > 0 {
		cfg.WalletCount = req.WalletCount
	}

	allocation := req.Allocation
	if allocation == "" {
		allocation = "0"
	}

	// The eigen is created first (pending_lp) so its dev wallet can be
	// derived; the token address is patched in once creation confirms.
	e, err := s.lifecycle.Create(r.Context(), lifecycle.CreateParams{
		OwnerAddress: pay.Payer,
		Target: eigen.Target{
			ChainID: chainID,
		},
		Class:     class,
		Config:    cfg,
		PendingLP: true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.payments.Consume(r.Context(), pay.ID, e.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.launcher.Launch(r.Context(), launch.Params{
		ChainID:       chainID,
		Name:          req.Name,
		Symbol:        req.Symbol,
		Description:   req.Description,
		OwnerAddress:  pay.Payer,
		AllocationWei: allocation,
		EigenID:       e.ID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.registry.WithLock(r.Context(), e.ID, func(locked *eigen.Eigen) error {
		locked.Target.TokenAddress = strings.ToLower(result.TokenAddress)
		locked.Target.Pool = s.launcher.PoolFor(chainID, result.TokenAddress, result.PoolID)
		return nil
	}); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.lifecycle.Fund(r.Context(), e.ID, pkg.VolumeTargetWei); err != nil {
		s.writeError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, launchResponse{
		TokenAddress: result.TokenAddress,
		EigenID:      e.ID,
		PoolID:       result.PoolID,
		Allocation:   allocation,
		TxHashes:     result.TxHashes,
	})
}
