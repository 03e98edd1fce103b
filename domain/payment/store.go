package payment

import "context"

// Store is the durable `payments` table, keyed by paymentId and indexed
// by payer.
type Store interface {
	// Upsert inserts p if paymentId is new, or returns the existing row
	// unchanged if it already exists — the idempotence primitive behind
	// "same payment proof presented twice returns the original result".
	Upsert(ctx context.Context, p *Payment) (existing *Payment, created bool, err error)
	Get(ctx context.Context, id string) (*Payment, error)
	// TransitionState performs the CAS: it only writes when the stored
	// state still equals `from`.
	TransitionState(ctx context.Context, id string, from, to State) (*Payment, error)
	// LinkEigen atomically sets LinkedEigenID and moves state verified→
	// consumed, enforcing "(paymentId) maps to at most one eigen id".
	LinkEigen(ctx context.Context, id, eigenID string) (*Payment, error)
	// SweepExpiredVerified returns verified-but-unconsumed payments older
	// than the TTL to `failed`.
	SweepExpiredVerified(ctx context.Context, olderThanSeconds int64) (int, error)
}

// Locker is the CAS lock on a paymentId while a purchase request is in
// flight, backed by Redis SETNX in the concrete implementation. No lock is
// held across RPCs.
type Locker interface {
	// Acquire returns true if the lock was newly taken; false if another
	// request already holds it.
	Acquire(ctx context.Context, paymentID string) (bool, error)
	Release(ctx context.Context, paymentID string) error
}
