package payment

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// fakeStore is an in-memory payment.Store.
type fakeStore struct {
	rows map[string]*Payment
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*Payment)}
}

func (s *fakeStore) Upsert(_ context.Context, p *Payment) (*Payment, bool, error) {
	if existing, ok := s.rows[p.ID]; ok {
		return existing, false, nil
	}
	clone := *p
	s.rows[p.ID] = &clone
	return nil, true, nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*Payment, error) {
	p, ok := s.rows[id]
	if !ok {
		return nil, svcerrors.NotFound("payment", id)
	}
	clone := *p
	return &clone, nil
}

func (s *fakeStore) TransitionState(_ context.Context, id string, from, to State) (*Payment, error) {
	p, ok := s.rows[id]
	if !ok || p.State != from {
		return nil, svcerrors.Conflict("state mismatch")
	}
	p.State = to
	clone := *p
	return &clone, nil
}

func (s *fakeStore) LinkEigen(_ context.Context, id, eigenID string) (*Payment, error) {
	p, ok := s.rows[id]
	if !ok {
		return nil, svcerrors.NotFound("payment", id)
	}
	if p.State != StateVerified {
		return nil, svcerrors.PaymentConsumed(id)
	}
	p.State = StateConsumed
	p.LinkedEigenID = eigenID
	clone := *p
	return &clone, nil
}

func (s *fakeStore) SweepExpiredVerified(_ context.Context, olderThanSeconds int64) (int, error) {
	n := 0
	cutoff := time.Now().Add(-time.Duration(olderThanSeconds) * time.Second)
	for _, p := range s.rows {
		if p.State == StateVerified && p.VerifiedAt.Before(cutoff) {
			p.State = StateFailed
			n++
		}
	}
	return n, nil
}

type fakeFacilitator struct {
	resp *FacilitatorResponse
	err  error
}

func (f *fakeFacilitator) Settle(context.Context, string) (*FacilitatorResponse, error) {
	return f.resp, f.err
}

func signedAuth(t *testing.T, priv *ecdsa.PrivateKey, req Requirements, value string) (*Authorization, string) {
	t.Helper()
	from := crypto.PubkeyToAddress(priv.PublicKey)
	auth := &Authorization{
		From:        from.Hex(),
		To:          req.Recipient,
		Value:       value,
		ValidAfter:  0,
		ValidBefore: time.Now().Add(time.Hour).Unix(),
		Nonce:       "0x" + hex.EncodeToString(make([]byte, 32)),
	}

	nonce := [32]byte{}
	sHash, err := structHash(auth, nonce)
	require.NoError(t, err)
	domain := domainSeparator("USD Coin", "2", req.Chain, common.HexToAddress(req.Token))
	digest := crypto.Keccak256(append([]byte{0x19, 0x01}, append(domain.Bytes(), sHash.Bytes()...)...))

	sig, err := crypto.Sign(digest, priv)
	require.NoError(t, err)
	auth.Signature = "0x" + hex.EncodeToString(sig)

	raw, err := json.Marshal(auth)
	require.NoError(t, err)
	return auth, base64.StdEncoding.EncodeToString(raw)
}

func testRequirements() Requirements {
	return Requirements{
		Scheme:    SchemeDirect,
		Chain:     143,
		Token:     "0x7547000000000000000000000000000000000a03",
		Amount:    "1000000",
		Recipient: "0x4206000000000000000000000000000000000000",
	}
}

func TestVerifySignedAuthorizationHappyPath(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := testRequirements()

	auth, _ := signedAuth(t, priv, req, "1000000")
	fac := &fakeFacilitator{resp: &FacilitatorResponse{OK: true, TxHash: "0xsettle"}}

	p, err := VerifySignedAuthorization(context.Background(), fac, req, auth, "payload", "USD Coin", "2")
	require.NoError(t, err)
	assert.Equal(t, StateVerified, p.State)
	assert.Equal(t, SchemeSignedAuthorization, p.Scheme)
	assert.Equal(t, crypto.PubkeyToAddress(priv.PublicKey), common.HexToAddress(p.Payer))
	assert.Equal(t, "0xsettle", p.TxHash)
}

func TestVerifySignedAuthorizationRejectsShortValue(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := testRequirements()

	auth, _ := signedAuth(t, priv, req, "999999")
	fac := &fakeFacilitator{resp: &FacilitatorResponse{OK: true}}

	_, err = VerifySignedAuthorization(context.Background(), fac, req, auth, "payload", "USD Coin", "2")
	assert.Error(t, err)
}

func TestVerifySignedAuthorizationRejectsWrongRecipient(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := testRequirements()

	auth, _ := signedAuth(t, priv, req, "1000000")
	auth.To = "0x9999999999999999999999999999999999999999"
	fac := &fakeFacilitator{resp: &FacilitatorResponse{OK: true}}

	_, err = VerifySignedAuthorization(context.Background(), fac, req, auth, "payload", "USD Coin", "2")
	assert.Error(t, err)
}

func TestVerifySignedAuthorizationFacilitatorRejection(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	req := testRequirements()

	auth, _ := signedAuth(t, priv, req, "1000000")
	fac := &fakeFacilitator{resp: &FacilitatorResponse{OK: false, Reason: "nonce used"}}

	_, err = VerifySignedAuthorization(context.Background(), fac, req, auth, "payload", "USD Coin", "2")
	assert.Error(t, err)
}

func TestConsumeLinksExactlyOnce(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, NewMemoryLocker(time.Second), nil, nil, nil, nil, nil)

	_, created, err := store.Upsert(context.Background(), &Payment{
		ID:    "pay_1",
		State: StateVerified,
	})
	require.NoError(t, err)
	require.True(t, created)

	p, err := g.Consume(context.Background(), "pay_1", "ES-aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, StateConsumed, p.State)
	assert.Equal(t, "ES-aaaaaa", p.LinkedEigenID)

	// Same eigen again: idempotent.
	p, err = g.Consume(context.Background(), "pay_1", "ES-aaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "ES-aaaaaa", p.LinkedEigenID)

	// A different eigen is a replay.
	_, err = g.Consume(context.Background(), "pay_1", "ES-bbbbbb")
	require.Error(t, err)
	svcErr := svcerrors.GetServiceError(err)
	require.NotNil(t, svcErr)
	assert.Equal(t, svcerrors.ErrCodePaymentConsumed, svcErr.Code)
}

func TestSweepExpiredReturnsVerifiedToFailed(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, NewMemoryLocker(time.Second), nil, nil, nil, nil, nil)

	store.rows["pay_old"] = &Payment{ID: "pay_old", State: StateVerified, VerifiedAt: time.Now().Add(-time.Hour)}
	store.rows["pay_new"] = &Payment{ID: "pay_new", State: StateVerified, VerifiedAt: time.Now()}

	n, err := g.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StateFailed, store.rows["pay_old"].State)
	assert.Equal(t, StateVerified, store.rows["pay_new"].State)
}

func TestIsTxHash(t *testing.T) {
	assert.True(t, isTxHash("0x"+string(make64('a'))))
	assert.False(t, isTxHash("0x1234"))
	assert.False(t, isTxHash("nothex"))
	assert.False(t, isTxHash("0x"+string(make64('g'))))
}

func make64(c byte) []byte {
	out := make([]byte, 64)
	for i := range out {
		out[i] = c
	}
	return out
}

func TestDirectTxHashPaymentIDIsContentAddressed(t *testing.T) {
	a := DirectTxHashPaymentID(143, "0xabc")
	b := DirectTxHashPaymentID(143, "0xabc")
	c := DirectTxHashPaymentID(8453, "0xabc")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestMemoryLockerCAS(t *testing.T) {
	l := NewMemoryLocker(time.Minute)
	ok, err := l.Acquire(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(context.Background(), "pay_1"))
	ok, err = l.Acquire(context.Background(), "pay_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDecodeAuthorizationRejectsGarbage(t *testing.T) {
	_, err := DecodeAuthorization("!!!not-base64!!!")
	assert.Error(t, err)

	_, err = DecodeAuthorization(base64.StdEncoding.EncodeToString([]byte("not json")))
	assert.Error(t, err)
}
