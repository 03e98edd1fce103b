package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/apikey"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/chainconfig"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/payment"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/logging"
	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/testutil"
)

// memKeyStore is an in-memory apikey.Store for handler tests.
type memKeyStore struct {
	keys   map[string]*apikey.Key
	nonces map[int64]bool
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{keys: make(map[string]*apikey.Key), nonces: make(map[int64]bool)}
}

func (s *memKeyStore) Create(_ context.Context, k *apikey.Key) error {
	clone := *k
	s.keys[k.Prefix] = &clone
	return nil
}

func (s *memKeyStore) GetByPrefix(_ context.Context, prefix string) (*apikey.Key, error) {
	k, ok := s.keys[prefix]
	if !ok {
		return nil, svcerrors.NotFound("api_key", prefix)
	}
	clone := *k
	return &clone, nil
}

func (s *memKeyStore) ListByOwner(_ context.Context, owner string) ([]*apikey.Key, error) {
	var out []*apikey.Key
	for _, k := range s.keys {
		if k.Owner == owner {
			clone := *k
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memKeyStore) Revoke(_ context.Context, prefix string) error {
	if k, ok := s.keys[prefix]; ok {
		k.Revoked = true
	}
	return nil
}

func (s *memKeyStore) TouchLastUsed(_ context.Context, prefix string, at time.Time) error {
	return nil
}

func (s *memKeyStore) SeenNonce(_ context.Context, owner string, timestamp int64) (bool, error) {
	if s.nonces[timestamp] {
		return false, nil
	}
	s.nonces[timestamp] = true
	return true, nil
}

func testServer(t *testing.T) (*Server, *memKeyStore) {
	t.Helper()
	chains := chainconfig.NewRegistry([]*chainconfig.Chain{{
		ChainID:            143,
		StablecoinAddress:  "0x7547000000000000000000000000000000000a03",
		BondingCurveRouter: "0x2222222222222222222222222222222222222222",
	}})
	payments := payment.NewGateway(nil, payment.NewMemoryLocker(time.Second), nil, nil,
		func(int64) payment.StablecoinConfig {
			return payment.StablecoinConfig{Address: "0x7547000000000000000000000000000000000a03", Name: "USD Coin", Version: "2"}
		},
		func(int64) string { return "0x4206000000000000000000000000000000000000" },
		func(int64) int { return 2 },
	)
	keys := newMemKeyStore()
	s := NewServer(Deps{
		Logger:       logging.New("gateway-test", "error", "text"),
		Payments:     payments,
		Keys:         keys,
		Chains:       chains,
		DefaultChain: 143,
		StartedAt:    time.Now().UTC(),
	})
	t.Cleanup(s.Stop)
	return s, keys
}

func TestBuyVolumeWithoutProofAnswers402(t *testing.T) {
	s, _ := testServer(t)
	srv := testutil.NewHTTPTestServer(t, s.Router())

	body, _ := json.Marshal(map[string]interface{}{
		"tokenAddress": "0xToken",
		"packageId":    "micro",
	})
	resp, err := http.Post(srv.URL+"/api/agents/buy-volume", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var requirements payment.Requirements
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&requirements))
	assert.Equal(t, "1000000", requirements.Amount)
	assert.Equal(t, int64(143), requirements.Chain)
	assert.Equal(t, "0x4206000000000000000000000000000000000000", requirements.Recipient)
	assert.Equal(t, "0x7547000000000000000000000000000000000a03", requirements.Token)
}

func TestBuyVolumeUnknownPackageAnswers400(t *testing.T) {
	s, _ := testServer(t)
	srv := testutil.NewHTTPTestServer(t, s.Router())

	body, _ := json.Marshal(map[string]interface{}{
		"tokenAddress": "0xToken",
		"packageId":    "gigantic",
	})
	resp, err := http.Post(srv.URL+"/api/agents/buy-volume", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPricingListsPackages(t *testing.T) {
	s, _ := testServer(t)
	srv := testutil.NewHTTPTestServer(t, s.Router())

	resp, err := http.Get(srv.URL + "/api/pricing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))

	var body struct {
		Packages []struct {
			ID        string  `json:"id"`
			USDAmount float64 `json:"usdAmount"`
		} `json:"packages"`
		FeeRatesBps map[string]int `json:"feeRatesBps"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Packages)
	assert.Equal(t, "micro", body.Packages[0].ID)
	assert.InDelta(t, 1.0, body.Packages[0].USDAmount, 1e-9)
	assert.Contains(t, body.FeeRatesBps, "ultra")
}

func TestKeyEnrollmentOverHTTP(t *testing.T) {
	s, keys := testServer(t)
	srv := testutil.NewHTTPTestServer(t, s.Router())

	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(priv.PublicKey).Hex()
	ts := time.Now().Unix()

	sig, err := crypto.Sign(personalDigest(apikey.EnrollmentMessage(owner, ts)), priv)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]interface{}{
		"owner":     owner,
		"timestamp": ts,
		"signature": "0x" + hex.EncodeToString(sig),
		"label":     "ci-bot",
	})
	resp, err := http.Post(srv.URL+"/api/agent/keys", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Key    string  `json:"key"`
		Record keyWire `json:"record"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.Key)
	assert.Equal(t, "ci-bot", created.Record.Label)

	// The plaintext is never persisted.
	stored, err := keys.GetByPrefix(context.Background(), created.Record.Prefix)
	require.NoError(t, err)
	assert.NotContains(t, created.Key, stored.SecretHash)

	// The minted key authenticates against the agent routes.
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/agent/keys", nil)
	req.Header.Set("X-API-Key", created.Key)
	listResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer listResp.Body.Close()
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	// No key: 401.
	noKey, err := http.Get(srv.URL + "/api/agent/keys")
	require.NoError(t, err)
	defer noKey.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, noKey.StatusCode)
}

func personalDigest(message string) []byte {
	prefixed := "\x19Ethereum Signed Message:\n" + strconv.Itoa(len(message)) + message
	return crypto.Keccak256([]byte(prefixed))
}
