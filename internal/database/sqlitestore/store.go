package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	"resonance/internal/moderation"
)

// ModerationStore implements moderation.Store using SQLite.
// It shares the database connection with the CounterStore.
type ModerationStore struct {
	db *sql.DB
}

// NewModerationStore creates a ModerationStore backed by the given database.
// The database must already have the schema applied.
func NewModerationStore(db *sql.DB) *ModerationStore {
	return &ModerationStore{db: db}
}

// Ensure ModerationStore implements the interface at compile time.
var _ moderation.Store = (*ModerationStore)(nil)

// WithTx runs fn in an immediate transaction. The transaction is rolled
// back when fn returns an error.
func (s *ModerationStore) WithTx(ctx context.Context, fn func(tx moderation.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", classify(err))
	}
	if err := fn(&modTx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", classify(err))
	}
	return nil
}

// modTx implements moderation.Tx over a *sql.Tx
type modTx struct {
	q querier
}

var _ moderation.Tx = (*modTx)(nil)
