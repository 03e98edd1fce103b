package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/payment"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// PaymentStore is the Postgres-backed payment.Store.
type PaymentStore struct {
	BaseStore
}

// NewPaymentStore builds a PaymentStore over db.
func NewPaymentStore(db *sqlx.DB) *PaymentStore {
	return &PaymentStore{BaseStore: NewBaseStore(db)}
}

var _ payment.Store = (*PaymentStore)(nil)

func (s *PaymentStore) Upsert(ctx context.Context, p *payment.Payment) (*payment.Payment, bool, error) {
	var existing *payment.Payment
	var created bool
	err := s.WithTx(ctx, func(ctx context.Context) error {
		got, err := s.get(ctx, p.ID)
		if err == nil {
			existing = got
			created = false
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err = s.Querier(ctx).ExecContext(ctx, `
			INSERT INTO payments (id, payer, recipient, amount_minor, chain_id, scheme, state, linked_eigen_id, tx_hash, nonce, created_at, verified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $9, $10, $11)
		`, p.ID, p.Payer, p.Recipient, p.AmountMinor, p.ChainID, p.Scheme, p.State, p.TxHash, p.Nonce, p.CreatedAt, p.VerifiedAt)
		if err != nil {
			return svcerrors.DatabaseError("payment upsert", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		return p, true, nil
	}
	return existing, false, nil
}

func (s *PaymentStore) Get(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := s.get(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("payment", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("payment get", err)
	}
	return p, nil
}

func (s *PaymentStore) get(ctx context.Context, id string) (*payment.Payment, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, payer, recipient, amount_minor, chain_id, scheme, state, linked_eigen_id, tx_hash, nonce, created_at, verified_at
		FROM payments WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (s *PaymentStore) TransitionState(ctx context.Context, id string, from, to payment.State) (*payment.Payment, error) {
	var result *payment.Payment
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.Querier(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return svcerrors.DatabaseError("payment advisory lock", err)
		}
		p, err := s.get(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return svcerrors.NotFound("payment", id)
		}
		if err != nil {
			return err
		}
		if p.State != from {
			return svcerrors.Conflict("payment state changed concurrently")
		}
		p.State = to
		if _, err := s.Querier(ctx).ExecContext(ctx, `UPDATE payments SET state = $2 WHERE id = $1`, id, to); err != nil {
			return svcerrors.DatabaseError("payment transition", err)
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentStore) LinkEigen(ctx context.Context, id, eigenID string) (*payment.Payment, error) {
	var result *payment.Payment
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.Querier(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return svcerrors.DatabaseError("payment advisory lock", err)
		}
		p, err := s.get(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return svcerrors.NotFound("payment", id)
		}
		if err != nil {
			return err
		}
		if p.State == payment.StateConsumed {
			if p.LinkedEigenID == eigenID {
				result = p
				return nil
			}
			return svcerrors.PaymentConsumed(id)
		}
		if p.State != payment.StateVerified {
			return svcerrors.PaymentInvalid("payment is not in a consumable state")
		}
		p.State = payment.StateConsumed
		p.LinkedEigenID = eigenID
		if _, err := s.Querier(ctx).ExecContext(ctx, `
			UPDATE payments SET state = $2, linked_eigen_id = $3 WHERE id = $1
		`, id, payment.StateConsumed, eigenID); err != nil {
			return svcerrors.DatabaseError("payment link eigen", err)
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *PaymentStore) SweepExpiredVerified(ctx context.Context, olderThanSeconds int64) (int, error) {
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE payments
		SET state = $1
		WHERE state = $2 AND verified_at < now() - ($3 || ' seconds')::interval
	`, payment.StateFailed, payment.StateVerified, olderThanSeconds)
	if err != nil {
		return 0, svcerrors.DatabaseError("payment sweep", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, svcerrors.DatabaseError("payment sweep rows affected", err)
	}
	return int(n), nil
}

func scanPayment(scanner rowScanner) (*payment.Payment, error) {
	var p payment.Payment
	var verifiedAt sql.NullTime
	if err := scanner.Scan(
		&p.ID, &p.Payer, &p.Recipient, &p.AmountMinor, &p.ChainID, &p.Scheme, &p.State,
		&p.LinkedEigenID, &p.TxHash, &p.Nonce, &p.CreatedAt, &verifiedAt,
	); err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		p.VerifiedAt = verifiedAt.Time
	}
	return &p, nil
}
