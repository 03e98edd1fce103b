package database

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/tradelog"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// TradeLogStore is the Postgres-backed, append-only tradelog.Store.
type TradeLogStore struct {
	BaseStore
}

// NewTradeLogStore builds a TradeLogStore over db.
func NewTradeLogStore(db *sqlx.DB) *TradeLogStore {
	return &TradeLogStore{BaseStore: NewBaseStore(db)}
}

var _ tradelog.Store = (*TradeLogStore)(nil)

func (s *TradeLogStore) Append(ctx context.Context, e *tradelog.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var revertJSON []byte
	if e.Revert != nil {
		var err error
		revertJSON, err = json.Marshal(e.Revert)
		if err != nil {
			return svcerrors.Internal("tradelog: marshal revert", err)
		}
	}
	_, err := s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO trades (id, eigen_id, direction, amount_in_wei, amount_out_raw, router, tx_hash, outcome, revert, gas_used_wei, price_wei, wallet_index, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, e.ID, e.EigenID, e.Direction, e.AmountInWei, e.AmountOutRaw, e.Router, e.TxHash, e.Outcome, revertJSON, e.GasUsedWei, e.PriceWei, e.WalletIndex, e.CreatedAt)
	if err != nil {
		return svcerrors.DatabaseError("tradelog append", err)
	}
	return nil
}

func (s *TradeLogStore) ListByEigen(ctx context.Context, eigenID string, limit, offset int) ([]*tradelog.Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, eigen_id, direction, amount_in_wei, amount_out_raw, router, tx_hash, outcome, revert, gas_used_wei, price_wei, wallet_index, created_at
		FROM trades
		WHERE eigen_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, eigenID, limit, offset)
	if err != nil {
		return nil, svcerrors.DatabaseError("tradelog list", err)
	}
	defer rows.Close()

	var out []*tradelog.Entry
	for rows.Next() {
		e, err := scanTradeEntry(rows)
		if err != nil {
			return nil, svcerrors.DatabaseError("tradelog list scan", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *TradeLogStore) ConsecutiveSameRevert(ctx context.Context, eigenID, errorName string) (int, error) {
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT outcome, revert
		FROM trades
		WHERE eigen_id = $1
		ORDER BY created_at DESC
		LIMIT 50
	`, eigenID)
	if err != nil {
		return 0, svcerrors.DatabaseError("tradelog consecutive reverts", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var outcome string
		var revertRaw []byte
		if err := rows.Scan(&outcome, &revertRaw); err != nil {
			return 0, svcerrors.DatabaseError("tradelog consecutive reverts scan", err)
		}
		if outcome != string(tradelog.OutcomeReverted) {
			break
		}
		var detail tradelog.RevertDetail
		if len(revertRaw) > 0 {
			_ = json.Unmarshal(revertRaw, &detail)
		}
		if detail.ErrorName != errorName {
			break
		}
		count++
	}
	return count, rows.Err()
}

func scanTradeEntry(scanner rowScanner) (*tradelog.Entry, error) {
	var e tradelog.Entry
	var revertRaw []byte
	if err := scanner.Scan(
		&e.ID, &e.EigenID, &e.Direction, &e.AmountInWei, &e.AmountOutRaw, &e.Router, &e.TxHash,
		&e.Outcome, &revertRaw, &e.GasUsedWei, &e.PriceWei, &e.WalletIndex, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(revertRaw) > 0 {
		var detail tradelog.RevertDetail
		if err := json.Unmarshal(revertRaw, &detail); err == nil {
			e.Revert = &detail
		}
	}
	return &e, nil
}
