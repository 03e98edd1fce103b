package database

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/domain/payment"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

func paymentColumns() []string {
	return []string{"id", "payer", "recipient", "amount_minor", "chain_id", "scheme", "state", "linked_eigen_id", "tx_hash", "nonce", "created_at", "verified_at"}
}

func TestPaymentStoreUpsertInsertsNewRow(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPaymentStore(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, payer, recipient, amount_minor, chain_id, scheme, state, linked_eigen_id, tx_hash, nonce, created_at, verified_at`)).
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns()))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO payments`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := &payment.Payment{
		ID:          "pay_1",
		Payer:       "0xpayer",
		Recipient:   "0xrecipient",
		AmountMinor: "1000000",
		ChainID:     143,
		Scheme:      payment.SchemeDirect,
		State:       payment.StateVerified,
		CreatedAt:   time.Now().UTC(),
		VerifiedAt:  time.Now().UTC(),
	}
	returned, created, err := store.Upsert(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "pay_1", returned.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentStoreUpsertReturnsExistingRow(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPaymentStore(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, payer, recipient`)).
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow("pay_1", "0xpayer", "0xrecipient", "1000000", int64(143), "direct", "consumed", "ES-aaaaaa", "0xhash", "", now, now))
	mock.ExpectCommit()

	returned, created, err := store.Upsert(context.Background(), &payment.Payment{ID: "pay_1"})
	require.NoError(t, err)
	assert.False(t, created, "repeated proof must not re-insert")
	assert.Equal(t, payment.StateConsumed, returned.State)
	assert.Equal(t, "ES-aaaaaa", returned.LinkedEigenID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentStoreGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPaymentStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, payer, recipient`)).
		WithArgs("pay_missing").
		WillReturnRows(sqlmock.NewRows(paymentColumns()))

	_, err := store.Get(context.Background(), "pay_missing")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentStoreTransitionStateRejectsStaleFrom(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewPaymentStore(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, payer, recipient`)).
		WithArgs("pay_1").
		WillReturnRows(sqlmock.NewRows(paymentColumns()).
			AddRow("pay_1", "0xpayer", "0xrecipient", "1000000", int64(143), "direct", "consumed", "ES-aaaaaa", "", "", now, now))
	mock.ExpectRollback()

	_, err := store.TransitionState(context.Background(), "pay_1", payment.StateVerified, payment.StateFailed)
	assert.Error(t, err, "CAS must fail when the stored state is not `from`")
	assert.NoError(t, mock.ExpectationsWereMet())
}
