// Package apikey implements API-key enrollment, verification, and
// per-key rate limits.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// EnrollmentWindow bounds how stale a signed enrollment message may be.
const EnrollmentWindow = 300 * time.Second

// DefaultRateLimit is the requests/60s ceiling for a newly created key.
const DefaultRateLimit = 60

// Key is the durable record of one API key. The secret itself exists only
// in the Plaintext returned to the caller on creation; Store persists only
// SecretHash.
type Key struct {
	Prefix     string
	SecretHash string // sha256(secret), hex
	Owner      string // EIP-55 checksummed hex address, as recovered at enrollment
	Label      string
	RateLimit  int
	Revoked    bool
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Plaintext is the one-time-returned full key value: "<prefix>.<secret>".
type Plaintext struct {
	Prefix string
	Secret string
	Full   string
}

// Store is the durable `api_keys` table, keyed by prefix.
type Store interface {
	Create(ctx context.Context, k *Key) error
	GetByPrefix(ctx context.Context, prefix string) (*Key, error)
	ListByOwner(ctx context.Context, owner string) ([]*Key, error)
	Revoke(ctx context.Context, prefix string) error
	TouchLastUsed(ctx context.Context, prefix string, at time.Time) error
	// SeenNonce records the (owner, timestamp) pair from an enrollment
	// message, returning false if it was already seen (replay).
	SeenNonce(ctx context.Context, owner string, timestamp int64) (fresh bool, err error)
}

// NewPlaintext generates a fresh "<prefix>.<secret>" key: an 8-byte
// prefix and a 32-byte secret, both hex-encoded.
func NewPlaintext() (*Plaintext, error) {
	prefixBytes := make([]byte, 8)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("apikey: generate prefix: %w", err)
	}
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("apikey: generate secret: %w", err)
	}
	prefix := hex.EncodeToString(prefixBytes)
	secret := hex.EncodeToString(secretBytes)
	return &Plaintext{
		Prefix: prefix,
		Secret: secret,
		Full:   prefix + "." + secret,
	}, nil
}

// Split parses "<prefix>.<secret>" out of the full key value presented in
// a request's Authorization/X-API-Key header.
func Split(full string) (prefix, secret string, ok bool) {
	idx := strings.IndexByte(full, '.')
	if idx <= 0 || idx == len(full)-1 {
		return "", "", false
	}
	return full[:idx], full[idx+1:], true
}

// EnrollmentMessage is the exact text an owner signs to register a key.
func EnrollmentMessage(owner string, timestamp int64) string {
	return fmt.Sprintf("EigenSwarm Register\neigenId: agent-key\nowner: %s\ntimestamp: %d", strings.ToLower(owner), timestamp)
}
