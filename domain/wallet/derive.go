// Package wallet derives and signs with an eigen's sub-wallets. Private
// keys are never persisted: every signature re-derives the key from the
// keeper master secret, the eigen id, and the sub-wallet index, so a
// restart is safe and no at-rest key database exists.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// secp256k1N is the order of the secp256k1 group, used to clamp the KDF
// output into a valid scalar range.
var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

// Derive computes the sub-wallet at `index` for `eigenID` deterministically
// from masterSecret: wallet(i) = kdf(masterSecret || eigenId || i), the
// 32-byte KDF output interpreted as a secp256k1 scalar clamped to the group
// order.
func Derive(masterSecret []byte, eigenID string, index int) (*ecdsa.PrivateKey, error) {
	if len(masterSecret) == 0 {
		return nil, fmt.Errorf("wallet: master secret is required")
	}
	if index < 0 {
		return nil, fmt.Errorf("wallet: index must be non-negative")
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(masterSecret)
	h.Write([]byte(eigenID))
	h.Write(encodeIndex(index))
	digest := h.Sum(nil)

	scalar := new(big.Int).SetBytes(digest)
	scalar.Mod(scalar, new(big.Int).Sub(secp256k1N, big.NewInt(1)))
	scalar.Add(scalar, big.NewInt(1)) // never zero

	privKey, err := toECDSA(scalar)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive index %d: %w", index, err)
	}
	return privKey, nil
}

func encodeIndex(index int) []byte {
	buf := make([]byte, 8)
	v := uint64(index)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v & 0xff)
		v >>= 8
	}
	return buf
}

func toECDSA(scalar *big.Int) (*ecdsa.PrivateKey, error) {
	keyBytes := make([]byte, 32)
	scalar.FillBytes(keyBytes)
	return crypto.ToECDSA(keyBytes)
}

// Address returns the canonical EVM address for a derived private key.
func Address(priv *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(priv.PublicKey)
}

// DeriveAddress is a convenience wrapper returning only the public address,
// for building a Wallet Derivation Record without holding the private key
// in memory longer than necessary.
func DeriveAddress(masterSecret []byte, eigenID string, index int) (common.Address, error) {
	priv, err := Derive(masterSecret, eigenID, index)
	if err != nil {
		return common.Address{}, err
	}
	defer zero(priv)
	return Address(priv), nil
}

// zero best-effort clears the private scalar from memory once it is no
// longer needed; Go cannot guarantee this against a GC copy, but it limits
// the window a sensitive value is reachable.
func zero(priv *ecdsa.PrivateKey) {
	if priv == nil || priv.D == nil {
		return
	}
	priv.D.SetInt64(0)
}

// DerivationRecord is the public half of a derived wallet: index and
// address. Private keys are never persisted alongside it.
type DerivationRecord struct {
	Index   int
	Address string
}

// DeriveSet returns the first n derivation records for an eigen, used to
// populate the Wallet Derivation Record when walletCount changes.
func DeriveSet(masterSecret []byte, eigenID string, n int) ([]DerivationRecord, error) {
	out := make([]DerivationRecord, 0, n)
	for i := 0; i < n; i++ {
		addr, err := DeriveAddress(masterSecret, eigenID, i)
		if err != nil {
			return nil, err
		}
		out = append(out, DerivationRecord{Index: i, Address: addr.Hex()})
	}
	return out, nil
}
