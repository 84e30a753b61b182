package relstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBPool is the subset of pgxpool.Pool used here, kept as an interface so
// pgxmock can substitute for it in tests — same abstraction the teacher uses
// for PostgresCheckpointStore.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore is a Store backed by PostgreSQL via pgx/v5.
type PostgresStore struct {
	pool DBPool
}

// Options configures PostgresStore connection.
type Options struct {
	ConnString string
}

// NewPostgresStore opens a pool and returns a PostgresStore.
func NewPostgresStore(ctx context.Context, opts Options) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool builds a PostgresStore over an existing pool,
// for pgxmock-based tests.
func NewPostgresStoreWithPool(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InitSchema creates the documents, users and queries tables if absent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_uri TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			question TEXT NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			answer_text TEXT,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) UpsertDocument(ctx context.Context, row DocumentRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, name, source_uri, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source_uri = EXCLUDED.source_uri,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, row.ID, row.Name, row.SourceURI, row.Status, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert document row: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (DocumentRow, bool, error) {
	var row DocumentRow
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, source_uri, status, created_at, updated_at
		FROM documents WHERE id = $1
	`, id).Scan(&row.ID, &row.Name, &row.SourceURI, &row.Status, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return DocumentRow{}, false, nil
		}
		return DocumentRow{}, false, fmt.Errorf("failed to load document row: %w", err)
	}
	return row, true, nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, row UserRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, row.ID, row.Name, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert user row: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (UserRow, bool, error) {
	var row UserRow
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at FROM users WHERE id = $1
	`, id).Scan(&row.ID, &row.Name, &row.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return UserRow{}, false, nil
		}
		return UserRow{}, false, fmt.Errorf("failed to load user row: %w", err)
	}
	return row, true, nil
}

func (s *PostgresStore) UpsertQuery(ctx context.Context, row QueryRow) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO queries (id, user_id, question, mode, status, answer_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			answer_text = EXCLUDED.answer_text
	`, row.ID, row.UserID, row.Question, row.Mode, row.Status, row.AnswerText, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert query row: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetQuery(ctx context.Context, id string) (QueryRow, bool, error) {
	var row QueryRow
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, question, mode, status, answer_text, created_at
		FROM queries WHERE id = $1
	`, id).Scan(&row.ID, &row.UserID, &row.Question, &row.Mode, &row.Status, &row.AnswerText, &row.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return QueryRow{}, false, nil
		}
		return QueryRow{}, false, fmt.Errorf("failed to load query row: %w", err)
	}
	return row, true, nil
}
