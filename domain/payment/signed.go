package payment

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// Authorization is the ERC-3009-style payload a client signs under an
// EIP-712 domain.
type Authorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  int64  `json:"validAfter"`
	ValidBefore int64  `json:"validBefore"`
	Nonce       string `json:"nonce"`
	Signature   string `json:"signature"` // 65-byte r||s||v, hex-encoded
}

// DecodeAuthorization parses the base64(payment payload) carried in the
// X-PAYMENT header for the signed-authorization scheme.
func DecodeAuthorization(b64 string) (*Authorization, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, svcerrors.PaymentInvalid("X-PAYMENT is not valid base64")
	}
	var auth Authorization
	if err := json.Unmarshal(raw, &auth); err != nil {
		return nil, svcerrors.PaymentInvalid("X-PAYMENT payload is not a valid authorization")
	}
	return &auth, nil
}

// eip712TypeHash is keccak256 of the ERC-3009 TransferWithAuthorization
// struct type string.
var eip712TypeHash = crypto.Keccak256(
	[]byte("TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)"),
)

// domainSeparator computes the EIP-712 domain separator for the
// stablecoin's EIP-3009 domain.
func domainSeparator(name, version string, chainID int64, verifyingContract common.Address) common.Hash {
	domainTypeHash := crypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	packed := append([]byte{}, domainTypeHash...)
	packed = append(packed, crypto.Keccak256([]byte(name))...)
	packed = append(packed, crypto.Keccak256([]byte(version))...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(chainID).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(verifyingContract.Bytes(), 32)...)
	return common.BytesToHash(crypto.Keccak256(packed))
}

// structHash computes the EIP-712 struct hash of the authorization.
func structHash(auth *Authorization, nonce [32]byte) (common.Hash, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return common.Hash{}, svcerrors.PaymentInvalid("authorization value is not a decimal integer")
	}
	packed := append([]byte{}, eip712TypeHash...)
	packed = append(packed, common.LeftPadBytes(common.HexToAddress(auth.From).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(common.HexToAddress(auth.To).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(value.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(auth.ValidAfter).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(big.NewInt(auth.ValidBefore).Bytes(), 32)...)
	packed = append(packed, nonce[:]...)
	return common.BytesToHash(crypto.Keccak256(packed)), nil
}

// RecoverSigner verifies auth's EIP-712 signature against the stablecoin's
// domain and returns the recovered signer address, which must equal
// auth.From for the authorization to be admissible.
func RecoverSigner(auth *Authorization, tokenName, tokenVersion string, chainID int64, tokenAddress common.Address) (common.Address, error) {
	nonceBytes, err := hex.DecodeString(trimHexPrefix(auth.Nonce))
	if err != nil || len(nonceBytes) != 32 {
		return common.Address{}, svcerrors.PaymentInvalid("authorization nonce must be 32 bytes hex")
	}
	var nonce [32]byte
	copy(nonce[:], nonceBytes)

	sHash, err := structHash(auth, nonce)
	if err != nil {
		return common.Address{}, err
	}
	domain := domainSeparator(tokenName, tokenVersion, chainID, tokenAddress)

	digest := crypto.Keccak256(append([]byte{0x19, 0x01}, append(domain.Bytes(), sHash.Bytes()...)...))

	sig, err := hex.DecodeString(trimHexPrefix(auth.Signature))
	if err != nil || len(sig) != 65 {
		return common.Address{}, svcerrors.PaymentInvalid("signature must be 65 bytes hex")
	}
	// go-ethereum expects the recovery id in the last byte as 0/1.
	normalized := append([]byte{}, sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, svcerrors.VerificationFailed(err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// SignedAuthorizationPaymentID derives the content-addressed id for the
// signed-authorization scheme: hash of the authorization payload.
func SignedAuthorizationPaymentID(auth *Authorization) string {
	raw, _ := json.Marshal(auth)
	sum := sha256.Sum256(raw)
	return "pay_" + hex.EncodeToString(sum[:16])
}

// FacilitatorResponse is the settlement result an external facilitator
// returns for a forwarded signed authorization.
type FacilitatorResponse struct {
	OK     bool   `json:"ok"`
	TxHash string `json:"txHash"`
	Reason string `json:"reason"`
}

// Facilitator forwards a base64 authorization payload to the external
// settlement service.
type Facilitator interface {
	Settle(ctx context.Context, b64Payload string) (*FacilitatorResponse, error)
}

// VerifySignedAuthorization checks auth's signature, calls the
// facilitator to settle it on-chain, and builds the resulting Payment
// record on success.
func VerifySignedAuthorization(ctx context.Context, facilitator Facilitator, req Requirements, auth *Authorization, b64Payload, tokenName, tokenVersion string) (*Payment, error) {
	signer, err := RecoverSigner(auth, tokenName, tokenVersion, req.Chain, common.HexToAddress(req.Token))
	if err != nil {
		return nil, err
	}
	if !sameAddress(signer.Hex(), auth.From) {
		return nil, svcerrors.InvalidSignature(fmt.Errorf("recovered signer does not match authorization.from"))
	}
	if !sameAddress(auth.To, req.Recipient) {
		return nil, svcerrors.PaymentInvalid("authorization.to does not match required recipient")
	}
	value, ok := new(big.Int).SetString(auth.Value, 10)
	required, ok2 := new(big.Int).SetString(req.Amount, 10)
	if !ok || !ok2 || value.Cmp(required) < 0 {
		return nil, svcerrors.PaymentInvalid("authorization value below required amount")
	}

	resp, err := facilitator.Settle(ctx, b64Payload)
	if err != nil {
		return nil, svcerrors.FacilitatorError(err)
	}
	if !resp.OK {
		return nil, svcerrors.PaymentInvalid("facilitator rejected authorization: " + resp.Reason)
	}

	return &Payment{
		ID:          SignedAuthorizationPaymentID(auth),
		Payer:       auth.From,
		Recipient:   auth.To,
		AmountMinor: value.String(),
		ChainID:     req.Chain,
		Scheme:      SchemeSignedAuthorization,
		State:       StateVerified,
		TxHash:      resp.TxHash,
		Nonce:       auth.Nonce,
		CreatedAt:   time.Now().UTC(),
		VerifiedAt:  time.Now().UTC(),
	}, nil
}

func sameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}
