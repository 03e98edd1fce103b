package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/apikey"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// APIKeyStore is the Postgres-backed apikey.Store.
type APIKeyStore struct {
	BaseStore
}

// NewAPIKeyStore builds an APIKeyStore over db.
func NewAPIKeyStore(db *sqlx.DB) *APIKeyStore {
	return &APIKeyStore{BaseStore: NewBaseStore(db)}
}

var _ apikey.Store = (*APIKeyStore)(nil)

func (s *APIKeyStore) Create(ctx context.Context, k *apikey.Key) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO api_keys (prefix, secret_hash, owner_address, label, rate_limit, revoked, created_at, last_used_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, NULL)
	`, k.Prefix, k.SecretHash, k.Owner, k.Label, k.RateLimit, k.CreatedAt)
	if err != nil {
		return svcerrors.DatabaseError("apikey create", err)
	}
	return nil
}

func (s *APIKeyStore) GetByPrefix(ctx context.Context, prefix string) (*apikey.Key, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT prefix, secret_hash, owner_address, label, rate_limit, revoked, created_at, last_used_at
		FROM api_keys WHERE prefix = $1
	`, prefix)

	var k apikey.Key
	var lastUsed sql.NullTime
	if err := row.Scan(&k.Prefix, &k.SecretHash, &k.Owner, &k.Label, &k.RateLimit, &k.Revoked, &k.CreatedAt, &lastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, svcerrors.NotFound("api_key", prefix)
		}
		return nil, svcerrors.DatabaseError("apikey get", err)
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	return &k, nil
}

func (s *APIKeyStore) ListByOwner(ctx context.Context, owner string) ([]*apikey.Key, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT prefix, secret_hash, owner_address, label, rate_limit, revoked, created_at, last_used_at
		FROM api_keys WHERE owner_address = $1 ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, svcerrors.DatabaseError("apikey list", err)
	}
	defer rows.Close()

	var keys []*apikey.Key
	for rows.Next() {
		var k apikey.Key
		var lastUsed sql.NullTime
		if err := rows.Scan(&k.Prefix, &k.SecretHash, &k.Owner, &k.Label, &k.RateLimit, &k.Revoked, &k.CreatedAt, &lastUsed); err != nil {
			return nil, svcerrors.DatabaseError("apikey list scan", err)
		}
		if lastUsed.Valid {
			k.LastUsedAt = &lastUsed.Time
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *APIKeyStore) Revoke(ctx context.Context, prefix string) error {
	res, err := s.Querier(ctx).ExecContext(ctx, `UPDATE api_keys SET revoked = TRUE WHERE prefix = $1`, prefix)
	if err != nil {
		return svcerrors.DatabaseError("apikey revoke", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return svcerrors.NotFound("api_key", prefix)
	}
	return nil
}

func (s *APIKeyStore) TouchLastUsed(ctx context.Context, prefix string, at time.Time) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE prefix = $1`, prefix, at)
	if err != nil {
		return svcerrors.DatabaseError("apikey touch", err)
	}
	return nil
}

// SeenNonce inserts (owner, timestamp) and reports whether this call
// performed the insert (fresh=true) or the pair already existed
// (fresh=false, a replay).
func (s *APIKeyStore) SeenNonce(ctx context.Context, owner string, timestamp int64) (bool, error) {
	res, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO api_key_nonces (owner_address, ts) VALUES ($1, $2)
		ON CONFLICT (owner_address, ts) DO NOTHING
	`, owner, timestamp)
	if err != nil {
		return false, svcerrors.DatabaseError("apikey nonce insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, svcerrors.DatabaseError("apikey nonce rows affected", err)
	}
	return n > 0, nil
}
