// Package relstore is the relational-store collaborator (spec §6, expanded
// §4.13): plain insert/update/lookup-by-id over Document, User and Query-log
// rows. It never joins across rows and never spans a transaction into the
// graph store — that separation belongs to graphstore.
package relstore

import (
	"context"
	"time"
)

// DocumentRow is the relational record of an ingested document, distinct
// from graphmodel.Document: it tracks ingestion bookkeeping (status,
// timestamps, source path), not graph content.
type DocumentRow struct {
	ID        string
	Name      string
	SourceURI string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRow is a minimal account record for attributing queries.
type UserRow struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// QueryRow is a log entry for one QueryService invocation.
type QueryRow struct {
	ID         string
	UserID     string
	Question   string
	Mode       string
	Status     string
	AnswerText string
	CreatedAt  time.Time
}

// DocumentStore upserts and looks up DocumentRow by id.
type DocumentStore interface {
	UpsertDocument(ctx context.Context, row DocumentRow) error
	GetDocument(ctx context.Context, id string) (DocumentRow, bool, error)
}

// UserStore upserts and looks up UserRow by id.
type UserStore interface {
	UpsertUser(ctx context.Context, row UserRow) error
	GetUser(ctx context.Context, id string) (UserRow, bool, error)
}

// QueryStore upserts and looks up QueryRow by id.
type QueryStore interface {
	UpsertQuery(ctx context.Context, row QueryRow) error
	GetQuery(ctx context.Context, id string) (QueryRow, bool, error)
}

// Store aggregates the three row stores. A single PostgresStore satisfies
// all three using one pool.
type Store interface {
	DocumentStore
	UserStore
	QueryStore
	Close()
}
