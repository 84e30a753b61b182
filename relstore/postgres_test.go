package relstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreUpsertDocument(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)
	row := DocumentRow{
		ID:        "doc-1",
		Name:      "report.md",
		SourceURI: "file:///report.md",
		Status:    "ingested",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WithArgs(row.ID, row.Name, row.SourceURI, row.Status, row.CreatedAt, row.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertDocument(context.Background(), row))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetDocumentNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, source_uri, status, created_at, updated_at")).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "source_uri", "status", "created_at", "updated_at"}))

	_, found, err := store.GetDocument(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetDocumentFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)
	now := time.Now()
	rows := pgxmock.NewRows([]string{"id", "name", "source_uri", "status", "created_at", "updated_at"}).
		AddRow("doc-1", "report.md", "file:///report.md", "ingested", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, source_uri, status, created_at, updated_at")).
		WithArgs("doc-1").
		WillReturnRows(rows)

	row, found, err := store.GetDocument(context.Background(), "doc-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "report.md", row.Name)
}

func TestPostgresStoreUpsertAndGetQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStoreWithPool(mock)
	row := QueryRow{
		ID:       "q-1",
		UserID:   "u-1",
		Question: "who founded Acme?",
		Mode:     "local",
		Status:   "success",
		CreatedAt: time.Now(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO queries")).
		WithArgs(row.ID, row.UserID, row.Question, row.Mode, row.Status, row.AnswerText, row.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertQuery(context.Background(), row))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, question, mode, status, answer_text, created_at")).
		WithArgs(row.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "question", "mode", "status", "answer_text", "created_at"}).
			AddRow(row.ID, row.UserID, row.Question, row.Mode, row.Status, row.AnswerText, row.CreatedAt))

	got, found, err := store.GetQuery(context.Background(), row.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, row.Question, got.Question)
	assert.NoError(t, mock.ExpectationsWereMet())
}
