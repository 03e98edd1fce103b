package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/eigen"
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// EigenStore is the Postgres-backed eigen.Registry, serializing
// multi-step mutations per eigen id with a transaction-scoped advisory lock
// held for the lifetime of the enclosing transaction.
type EigenStore struct {
	BaseStore
}

// NewEigenStore builds an EigenStore over db.
func NewEigenStore(db *sqlx.DB) *EigenStore {
	return &EigenStore{BaseStore: NewBaseStore(db)}
}

var _ eigen.Registry = (*EigenStore)(nil)

func (s *EigenStore) Create(ctx context.Context, e *eigen.Eigen) error {
	pool, err := json.Marshal(e.Target.Pool)
	if err != nil {
		return fmt.Errorf("eigen store: marshal pool: %w", err)
	}
	cfg, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("eigen store: marshal config: %w", err)
	}
	budget, err := json.Marshal(e.Budget)
	if err != nil {
		return fmt.Errorf("eigen store: marshal budget: %w", err)
	}
	position, err := json.Marshal(e.Position)
	if err != nil {
		return fmt.Errorf("eigen store: marshal position: %w", err)
	}

	_, err = s.Querier(ctx).ExecContext(ctx, `
		INSERT INTO eigens
			(id, owner_address, agent_identity, chain_id, token_address, pool, class, config, budget, position, status, created_at, updated_at, terminated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, e.ID, e.OwnerAddress, e.AgentIdentity, e.Target.ChainID, e.Target.TokenAddress, pool, e.Class, cfg, budget, position, e.Status, e.CreatedAt, e.UpdatedAt, e.TerminatedAt)
	if err != nil {
		return svcerrors.DatabaseError("eigen create", err)
	}
	return nil
}

func (s *EigenStore) Get(ctx context.Context, id string) (*eigen.Eigen, error) {
	row := s.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, owner_address, agent_identity, chain_id, token_address, pool, class, config, budget, position, status, created_at, updated_at, terminated_at
		FROM eigens WHERE id = $1
	`, id)
	e, err := scanEigen(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, svcerrors.NotFound("eigen", id)
	}
	if err != nil {
		return nil, svcerrors.DatabaseError("eigen get", err)
	}
	return e, nil
}

func (s *EigenStore) List(ctx context.Context, filter eigen.ListFilter, page eigen.Page) ([]*eigen.Eigen, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Querier(ctx).QueryContext(ctx, `
		SELECT id, owner_address, agent_identity, chain_id, token_address, pool, class, config, budget, position, status, created_at, updated_at, terminated_at
		FROM eigens
		WHERE ($1 = '' OR owner_address = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, filter.OwnerAddress, string(filter.Status), limit, page.Offset)
	if err != nil {
		return nil, svcerrors.DatabaseError("eigen list", err)
	}
	defer rows.Close()

	var out []*eigen.Eigen
	for rows.Next() {
		e, err := scanEigen(rows)
		if err != nil {
			return nil, svcerrors.DatabaseError("eigen list scan", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *EigenStore) UpdateConfig(ctx context.Context, id string, patch eigen.ConfigPatch) (*eigen.Eigen, error) {
	var result *eigen.Eigen
	err := s.WithTx(ctx, func(ctx context.Context) error {
		e, err := s.lockedGet(ctx, id)
		if err != nil {
			return err
		}
		if patch.IsNoop(e.Config) {
			result = e
			return nil
		}
		if violated := eigen.ValidatePatch(patch); violated != "" {
			return svcerrors.InvalidInput("config", fmt.Sprintf("%s out of bounds", violated))
		}
		patch.Apply(&e.Config)
		if patch.Class != nil {
			e.Class = *patch.Class
		}
		e.UpdatedAt = nowUTC()
		if err := s.persist(ctx, e); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *EigenStore) UpdateCounters(ctx context.Context, id string, delta eigen.CounterDelta) (*eigen.Eigen, error) {
	var result *eigen.Eigen
	err := s.WithTx(ctx, func(ctx context.Context) error {
		e, err := s.lockedGet(ctx, id)
		if err != nil {
			return err
		}
		e.Position.TokenBalance = eigen.AddWei(e.Position.TokenBalance, delta.TokenBalanceDeltaRaw)
		e.Position.RealizedPnlWei = eigen.AddWei(e.Position.RealizedPnlWei, delta.RealizedPnlDeltaWei)
		e.Position.GasSpentWei = eigen.AddWei(e.Position.GasSpentWei, delta.GasSpentDeltaWei)
		e.Position.FeeAccruedWei = eigen.AddWei(e.Position.FeeAccruedWei, delta.FeeAccruedDeltaWei)
		e.Position.VolumeProducedWei = eigen.AddWei(e.Position.VolumeProducedWei, delta.VolumeDeltaWei)
		e.Position.TradeCount += delta.TradeCountDelta
		e.Position.BuyCount += delta.BuyCountDelta
		e.Position.SellCount += delta.SellCountDelta
		e.UpdatedAt = nowUTC()
		if err := s.persist(ctx, e); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *EigenStore) TransitionStatus(ctx context.Context, id string, from, to eigen.Status) (*eigen.Eigen, error) {
	var result *eigen.Eigen
	err := s.WithTx(ctx, func(ctx context.Context) error {
		e, err := s.lockedGet(ctx, id)
		if err != nil {
			return err
		}
		if e.Status != from {
			return svcerrors.InvalidTransition(string(e.Status), string(to))
		}
		if err := eigen.ValidateTransition(from, to); err != nil {
			return err
		}
		e.Status = to
		e.UpdatedAt = nowUTC()
		if to.Terminal() {
			t := e.UpdatedAt
			e.TerminatedAt = &t
		}
		if err := s.persist(ctx, e); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *EigenStore) WithLock(ctx context.Context, id string, fn func(e *eigen.Eigen) error) (*eigen.Eigen, error) {
	var result *eigen.Eigen
	err := s.WithTx(ctx, func(ctx context.Context) error {
		e, err := s.lockedGet(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		e.UpdatedAt = nowUTC()
		if err := s.persist(ctx, e); err != nil {
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// lockedGet takes a transaction-scoped Postgres advisory lock keyed on id's
// hash before reading the row, serializing every mutation path (patch,
// counters, transition, WithLock) against concurrent writers for the same
// eigen, so there is a single writer per eigen id. The lock
// is released automatically when the enclosing transaction ends.
func (s *EigenStore) lockedGet(ctx context.Context, id string) (*eigen.Eigen, error) {
	if _, err := s.Querier(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
		return nil, svcerrors.DatabaseError("eigen advisory lock", err)
	}
	return s.Get(ctx, id)
}

func (s *EigenStore) persist(ctx context.Context, e *eigen.Eigen) error {
	pool, err := json.Marshal(e.Target.Pool)
	if err != nil {
		return fmt.Errorf("eigen store: marshal pool: %w", err)
	}
	cfg, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("eigen store: marshal config: %w", err)
	}
	budget, err := json.Marshal(e.Budget)
	if err != nil {
		return fmt.Errorf("eigen store: marshal budget: %w", err)
	}
	position, err := json.Marshal(e.Position)
	if err != nil {
		return fmt.Errorf("eigen store: marshal position: %w", err)
	}
	_, err = s.Querier(ctx).ExecContext(ctx, `
		UPDATE eigens
		SET token_address = $2, pool = $3, class = $4, config = $5, budget = $6, position = $7, status = $8, updated_at = $9, terminated_at = $10
		WHERE id = $1
	`, e.ID, e.Target.TokenAddress, pool, e.Class, cfg, budget, position, e.Status, e.UpdatedAt, e.TerminatedAt)
	if err != nil {
		return svcerrors.DatabaseError("eigen persist", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEigen(scanner rowScanner) (*eigen.Eigen, error) {
	var (
		e                                  eigen.Eigen
		poolRaw, cfgRaw, budgetRaw, posRaw []byte
	)
	e.Target = eigen.Target{}
	if err := scanner.Scan(
		&e.ID, &e.OwnerAddress, &e.AgentIdentity, &e.Target.ChainID, &e.Target.TokenAddress,
		&poolRaw, &e.Class, &cfgRaw, &budgetRaw, &posRaw, &e.Status,
		&e.CreatedAt, &e.UpdatedAt, &e.TerminatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(poolRaw, &e.Target.Pool); err != nil {
		return nil, fmt.Errorf("eigen store: unmarshal pool: %w", err)
	}
	if err := json.Unmarshal(cfgRaw, &e.Config); err != nil {
		return nil, fmt.Errorf("eigen store: unmarshal config: %w", err)
	}
	if err := json.Unmarshal(budgetRaw, &e.Budget); err != nil {
		return nil, fmt.Errorf("eigen store: unmarshal budget: %w", err)
	}
	if err := json.Unmarshal(posRaw, &e.Position); err != nil {
		return nil, fmt.Errorf("eigen store: unmarshal position: %w", err)
	}
	return &e, nil
}
