package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// personalSignDigest is the Keccak-256 digest of message under the EIP-191
// "Ethereum Signed Message" prefix.
func personalSignDigest(message string) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// RecoverEnrollmentSigner verifies an EIP-191 personal-sign signature over
// message and returns the recovered owner address.
func RecoverEnrollmentSigner(message string, signatureHex string) (common.Address, error) {
	sig, err := hex.DecodeString(trimHex(signatureHex))
	if err != nil || len(sig) != 65 {
		return common.Address{}, svcerrors.InvalidSignature(fmt.Errorf("signature must be 65 bytes hex"))
	}
	normalized := append([]byte{}, sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pubKey, err := crypto.SigToPub(personalSignDigest(message), normalized)
	if err != nil {
		return common.Address{}, svcerrors.VerificationFailed(err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func trimHex(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Enroll validates a fresh enrollment request, checks for replay via
// store.SeenNonce, and mints a new Key + Plaintext on success. The same
// signed message presented twice is rejected as replay.
func Enroll(ctx context.Context, store Store, owner string, timestamp int64, signatureHex, label string, now time.Time) (*Key, *Plaintext, error) {
	if delta := now.Unix() - timestamp; delta > int64(EnrollmentWindow.Seconds()) || delta < -int64(EnrollmentWindow.Seconds()) {
		return nil, nil, svcerrors.Unauthorized("enrollment timestamp outside the admissible window")
	}

	message := EnrollmentMessage(owner, timestamp)
	signer, err := RecoverEnrollmentSigner(message, signatureHex)
	if err != nil {
		return nil, nil, err
	}
	if signer != common.HexToAddress(owner) {
		return nil, nil, svcerrors.InvalidSignature(fmt.Errorf("recovered signer does not match claimed owner"))
	}

	fresh, err := store.SeenNonce(ctx, signer.Hex(), timestamp)
	if err != nil {
		return nil, nil, svcerrors.DatabaseError("apikey nonce check", err)
	}
	if !fresh {
		return nil, nil, svcerrors.Conflict("enrollment message already used")
	}

	plain, err := NewPlaintext()
	if err != nil {
		return nil, nil, svcerrors.Internal("apikey: generate plaintext", err)
	}
	sum := sha256.Sum256([]byte(plain.Secret))
	key := &Key{
		Prefix:     plain.Prefix,
		SecretHash: hex.EncodeToString(sum[:]),
		Owner:      signer.Hex(),
		Label:      label,
		RateLimit:  DefaultRateLimit,
		CreatedAt:  now,
	}
	if err := store.Create(ctx, key); err != nil {
		return nil, nil, svcerrors.DatabaseError("apikey create", err)
	}
	return key, plain, nil
}

// Authenticate checks a presented "<prefix>.<secret>" value against the
// store, touching LastUsedAt on success.
func Authenticate(ctx context.Context, store Store, full string, now time.Time) (*Key, error) {
	prefix, secret, ok := Split(full)
	if !ok {
		return nil, svcerrors.Unauthorized("malformed API key")
	}
	key, err := store.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, svcerrors.Unauthorized("unknown API key")
	}
	if key.Revoked {
		return nil, svcerrors.Unauthorized("API key revoked")
	}
	sum := sha256.Sum256([]byte(secret))
	if hex.EncodeToString(sum[:]) != key.SecretHash {
		return nil, svcerrors.Unauthorized("invalid API key")
	}
	_ = store.TouchLastUsed(ctx, prefix, now)
	return key, nil
}
