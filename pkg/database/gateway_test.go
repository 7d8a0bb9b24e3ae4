package database

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observerStub struct {
	labels  []string
	retries int
}

func (o *observerStub) ObserveTxRetry(string) {
	o.retries++
}

func (o *observerStub) ObserveDBQuery(label string, _ time.Duration) {
	o.labels = append(o.labels, label)
}

func newGatewayMock(t *testing.T) (*Gateway, sqlmock.Sqlmock, *observerStub) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	obs := &observerStub{}
	return NewGateway(sqlx.NewDb(db, "sqlmock"), obs, nil), mock, obs
}

func TestWithinTxCommits(t *testing.T) {
	gw, mock, obs := newGatewayMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sections").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := gw.WithinTx(context.Background(), TxOptions{Label: "patch"}, func(ctx context.Context, exec sqlx.ExtContext) error {
		_, err := exec.ExecContext(ctx, "UPDATE sections SET freeze = true")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"patch"}, obs.labels)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	gw, mock, _ := newGatewayMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := gw.WithinTx(context.Background(), TxOptions{MaxRetries: 3}, func(ctx context.Context, exec sqlx.ExtContext) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRetriesSerializationFailures(t *testing.T) {
	gw, mock, obs := newGatewayMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").WillReturnError(&pq.Error{Code: CodeSerializationFailure})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	calls := 0
	err := gw.WithinTx(context.Background(), TxOptions{Label: "admit", MaxRetries: 2}, func(ctx context.Context, exec sqlx.ExtContext) error {
		calls++
		_, err := exec.ExecContext(ctx, "INSERT INTO enrollments (id) VALUES ('e1')")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, obs.labels, 2)
	assert.Equal(t, 1, obs.retries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxGivesUpAfterMaxRetries(t *testing.T) {
	gw, mock, _ := newGatewayMock(t)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}

	err := gw.WithinTx(context.Background(), TxOptions{MaxRetries: 1}, func(ctx context.Context, exec sqlx.ExtContext) error {
		return &pq.Error{Code: CodeDeadlockDetected}
	})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: CodeSerializationFailure}))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: CodeUniqueViolation, Constraint: "enrollments_active_uniq"}, "enrollments_active_uniq"))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: CodeUniqueViolation, Constraint: "other"}, "enrollments_active_uniq"))
	assert.True(t, IsUniqueViolation(&pq.Error{Code: CodeUniqueViolation}, ""))
}
