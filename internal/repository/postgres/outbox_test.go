package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-reports/internal/model"
)

func newMockRepo(t *testing.T) (*outboxRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewOutboxRepository(NewBaseRepository(sqlx.NewDb(db, "postgres")))
	return repo.(*outboxRepository), mock
}

func TestOutboxRepository_Create(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(`INSERT INTO outbox_events`).
		WithArgs(sqlmock.AnyArg(), model.EventTypeReportGenerated, sqlmock.AnyArg(),
			"PENDING", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	evt := &model.OutboxEvent{EventType: model.EventTypeReportGenerated, Payload: json.RawMessage(`{"kind":"patient"}`)}
	require.NoError(t, repo.Create(context.Background(), evt))

	assert.NotEqual(t, uuid.Nil, evt.ID)
	assert.Equal(t, "PENDING", evt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_CreateRejectsEmptyPayload(t *testing.T) {
	repo, mock := newMockRepo(t)

	assert.Error(t, repo.Create(context.Background(), nil))
	assert.Error(t, repo.Create(context.Background(), &model.OutboxEvent{EventType: "X"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ClaimPending(t *testing.T) {
	repo, mock := newMockRepo(t)
	id1, id2 := uuid.New(), uuid.New()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"id", "event_type", "payload", "status", "error_message", "created_at",
		"processed_at", "updated_at", "retry_count", "retry_at",
	}).
		AddRow(id1.String(), model.EventTypeReportGenerated, []byte(`{}`), "PENDING", nil, created, nil, created, 0, nil).
		AddRow(id2.String(), model.EventTypeReportGenerated, []byte(`{}`), "RETRY", "boom", created, nil, created, 2, created)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM outbox_events WHERE status IN \(\$1, \$2\)(.+)FOR UPDATE SKIP LOCKED`).
		WithArgs("PENDING", "RETRY", 10).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE outbox_events SET status = \$1, updated_at = NOW\(\) WHERE id = ANY\(\$2\)`).
		WithArgs("PROCESSING", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	events, err := repo.ClaimPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, id1, events[0].ID)
	assert.Equal(t, "PROCESSING", events[0].Status)
	assert.Equal(t, 2, events[1].RetryCount)
	require.NotNil(t, events[1].ErrorMessage)
	assert.Equal(t, "boom", *events[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ClaimPendingNothingDue(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM outbox_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	events, err := repo.ClaimPending(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_ClaimPendingRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM outbox_events`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.ClaimPending(context.Background(), 5)
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE outbox_events`).
		WithArgs("PROCESSED", id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE outbox_events`).
		WithArgs("PROCESSED", id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkProcessed(context.Background(), id))
	assert.ErrorIs(t, repo.MarkProcessed(context.Background(), id), ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()
	retryAt := time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE outbox_events SET status = \$1, error_message = \$2, retry_at = \$3, retry_count = retry_count \+ 1`).
		WithArgs("RETRY", "publish failed", retryAt, id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE outbox_events`).
		WithArgs("FAILED", "publish failed", nil, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), id, "publish failed", &retryAt))
	require.NoError(t, repo.MarkFailed(context.Background(), id, "publish failed", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MoveToDeadLetter(t *testing.T) {
	repo, mock := newMockRepo(t)
	evt := &model.OutboxEvent{ID: uuid.New(), EventType: model.EventTypeReportGenerated, Payload: json.RawMessage(`{}`), RetryCount: 5}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO outbox_events_deadletter`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE outbox_events SET status = \$1`).
		WithArgs("FAILED", evt.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MoveToDeadLetter(context.Background(), evt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_DeleteProcessedBefore(t *testing.T) {
	repo, mock := newMockRepo(t)
	before := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM outbox_events`).
		WithArgs("PROCESSED", before).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := repo.DeleteProcessedBefore(context.Background(), before)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
