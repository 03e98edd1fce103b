package payment

import (
	"context"
	"strings"
	"time"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/chain"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// VerifiedTTL is how long a `verified` payment may sit unconsumed before
// the sweep returns it to `failed`.
const VerifiedTTL = 10 * time.Minute

// StablecoinConfig names the EIP-712 domain of the recipient stablecoin,
// needed to validate a signed authorization's signature.
type StablecoinConfig struct {
	Address string
	Name    string
	Version string
}

// Gateway implements the 402 handshake: RequirementsFor builds the body
// returned on the first POST without X-PAYMENT; Verify checks the proof
// carried on the retry; Consume links a verified payment to exactly one
// eigen.
type Gateway struct {
	store       Store
	locker      Locker
	chains      func(chainID int64) *chain.Client
	facilitator Facilitator
	stablecoin  func(chainID int64) StablecoinConfig
	recipient   func(chainID int64) string
	confirmationDepth func(chainID int64) int
	clock       func() time.Time
}

// NewGateway builds a Gateway. clientFor resolves a Chain Client per chain
// id; stablecoinFor and recipientFor resolve per-chain stablecoin/
// recipient config; confirmationDepthFor resolves the operator's
// confirmation-depth policy.
func NewGateway(store Store, locker Locker, facilitator Facilitator, clientFor func(int64) *chain.Client, stablecoinFor func(int64) StablecoinConfig, recipientFor func(int64) string, confirmationDepthFor func(int64) int) *Gateway {
	return &Gateway{
		store: store, locker: locker, facilitator: facilitator,
		chains: clientFor, stablecoin: stablecoinFor, recipient: recipientFor,
		confirmationDepth: confirmationDepthFor,
		clock: time.Now,
	}
}

// RequirementsFor builds the 402 body for a package purchase on chainID.
func (g *Gateway) RequirementsFor(chainID int64, pkg Package) Requirements {
	now := g.clock().UTC()
	return Requirements{
		Scheme:      SchemeDirect,
		Chain:       chainID,
		Token:       g.stablecoin(chainID).Address,
		Amount:      pkg.USDAmountMinor,
		Recipient:   g.recipient(chainID),
		ValidAfter:  now,
		ValidBefore: now.Add(time.Duration(pkg.DurationHours) * time.Hour),
	}
}

// Verify admits the X-PAYMENT header's proof against req: a tx hash for
// the direct scheme, or base64(payload) for the signed-authorization
// scheme (distinguished by whether the value parses as a hex tx hash).
// Idempotent: presenting the same proof twice returns the same Payment
// without re-verifying on chain the second time.
func (g *Gateway) Verify(ctx context.Context, req Requirements, xPayment string) (*Payment, error) {
	xPayment = strings.TrimSpace(xPayment)
	if xPayment == "" {
		return nil, svcerrors.PaymentRequired("missing X-PAYMENT header")
	}

	var candidate *Payment
	var err error
	if isTxHash(xPayment) {
		if existing, getErr := g.store.Get(ctx, DirectTxHashPaymentID(req.Chain, xPayment)); getErr == nil && existing != nil {
			return existing, nil
		}
		candidate, err = VerifyDirectTransfer(ctx, g.chains(req.Chain), req, xPayment, g.requiredConfirmations(req.Chain))
	} else {
		var auth *Authorization
		auth, err = DecodeAuthorization(xPayment)
		if err == nil {
			if existing, getErr := g.store.Get(ctx, SignedAuthorizationPaymentID(auth)); getErr == nil && existing != nil {
				return existing, nil
			}
			sc := g.stablecoin(req.Chain)
			candidate, err = VerifySignedAuthorization(ctx, g.facilitator, req, auth, xPayment, sc.Name, sc.Version)
		}
	}
	if err != nil {
		return nil, err
	}

	locked, lockErr := g.locker.Acquire(ctx, candidate.ID)
	if lockErr != nil {
		return nil, svcerrors.Internal("payment: lock acquire", lockErr)
	}
	if !locked {
		// Another in-flight request is verifying the same proof; return
		// whatever is currently stored rather than double-processing.
		existing, getErr := g.store.Get(ctx, candidate.ID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, svcerrors.Conflict("payment verification already in progress")
	}
	defer g.locker.Release(ctx, candidate.ID)

	existing, created, upsertErr := g.store.Upsert(ctx, candidate)
	if upsertErr != nil {
		return nil, svcerrors.DatabaseError("payment upsert", upsertErr)
	}
	if !created {
		return existing, nil
	}
	verifiedTotal.WithLabelValues(string(candidate.Scheme)).Inc()
	return candidate, nil
}

// Consume links paymentID to eigenID, moving it from verified to
// consumed. A payment already consumed by a different eigen fails with
// PaymentConsumed (409 "payment_consumed"), satisfying "one payment
// record maps to at most one eigen id".
func (g *Gateway) Consume(ctx context.Context, paymentID, eigenID string) (*Payment, error) {
	p, err := g.store.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.State == StateConsumed {
		if p.LinkedEigenID == eigenID {
			return p, nil
		}
		return nil, svcerrors.PaymentConsumed(paymentID)
	}
	if p.State != StateVerified {
		return nil, svcerrors.PaymentInvalid("payment is not in a consumable state")
	}
	return g.store.LinkEigen(ctx, paymentID, eigenID)
}

// SweepExpired returns verified-but-unconsumed payments older than
// VerifiedTTL to failed, run periodically from a cron job.
func (g *Gateway) SweepExpired(ctx context.Context) (int, error) {
	return g.store.SweepExpiredVerified(ctx, int64(VerifiedTTL.Seconds()))
}

// requiredConfirmations resolves the operator's finality depth for
// chainID; an unconfigured policy requires none.
func (g *Gateway) requiredConfirmations(chainID int64) int {
	if g.confirmationDepth == nil {
		return 0
	}
	return g.confirmationDepth(chainID)
}

func isTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	hexPart := s[2:]
	if len(hexPart) != 64 {
		return false
	}
	for _, r := range hexPart {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}
