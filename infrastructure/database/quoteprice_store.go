package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/oracle"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// QuotePriceStore is the Postgres-backed `quote_prices` hourly series,
// implementing oracle.Store.
type QuotePriceStore struct {
	BaseStore
}

// NewQuotePriceStore builds a QuotePriceStore over db.
func NewQuotePriceStore(db *sqlx.DB) *QuotePriceStore {
	return &QuotePriceStore{BaseStore: NewBaseStore(db)}
}

var _ oracle.Store = (*QuotePriceStore)(nil)

func (s *QuotePriceStore) Set(ctx context.Context, quoteToken string, hour time.Time, usd float64) error {
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO quote_prices (quote_token, hour, usd_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (quote_token, hour) DO UPDATE SET usd_price = EXCLUDED.usd_price
	`, quoteToken, hour.UTC().Truncate(time.Hour), usd)
	if err != nil {
		return svcerrors.DatabaseError("quote price set", err)
	}
	return nil
}

// Get returns the price for quoteToken at hour if present, otherwise the
// most recent price recorded at or before hour, flagging stale in that
// case.
func (s *QuotePriceStore) Get(ctx context.Context, quoteToken string, hour time.Time) (float64, bool, bool) {
	hour = hour.UTC().Truncate(time.Hour)

	var usd float64
	err := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT usd_price FROM quote_prices WHERE quote_token = $1 AND hour = $2
	`, quoteToken, hour).Scan(&usd)
	if err == nil {
		return usd, false, true
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, false
	}

	err = s.Querier(ctx).QueryRowContext(ctx, `
		SELECT usd_price FROM quote_prices
		WHERE quote_token = $1 AND hour <= $2
		ORDER BY hour DESC
		LIMIT 1
	`, quoteToken, hour).Scan(&usd)
	if err != nil {
		return 0, false, false
	}
	return usd, true, true
}
