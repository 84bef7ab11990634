package kv

import (
	"context"
	"database/sql"

	"github.com/hpungsan/casefile/internal/db"
)

// SQLite is the runtime tier: the per-profile SQLite database.
// It is the fast, reliable default.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an initialized database (see db.Init).
func NewSQLite(database *sql.DB) *SQLite {
	return &SQLite{db: database}
}

func (s *SQLite) Name() string { return "runtime" }

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	return db.GetValue(ctx, s.db, key)
}

func (s *SQLite) Set(ctx context.Context, key, value string) error {
	return db.PutValue(ctx, s.db, key, value)
}

func (s *SQLite) Remove(ctx context.Context, key string) error {
	return db.DeleteValue(ctx, s.db, key)
}
