// Package sqlitestore provides SQLite-backed store implementations.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/rs/zerolog/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"resonance/internal/moderation"
)

// Options configures the SQLite connection
type Options struct {
	// BusyTimeout is how long a writer waits for the database lock
	BusyTimeout time.Duration
	// MaxOpenConns bounds the connection pool
	MaxOpenConns int
}

// DefaultOptions returns sensible defaults for the moderation database
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 4,
	}
}

// Open opens (or creates) the SQLite database at path and applies the
// schema. Every transaction begins IMMEDIATE so writers serialize on the
// database lock instead of failing on upgrade.
func Open(path string, opts Options) (*sql.DB, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultOptions().MaxOpenConns
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(opts.BusyTimeout.Milliseconds(), 10)+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	dsn := "file:" + path + "?" + q.Encode()

	db, err := otelsql.Open("sqlite", dsn, otelsql.WithAttributes(semconv.DBSystemSqlite))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("path", path).Msg("moderation: database opened")
	return db, nil
}

// Migrate applies the schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// classify marks lock contention and constraint races as retryable so the
// engine reports them as concurrent modifications.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return err
	}
	code := serr.Code()
	switch {
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", moderation.ErrStoreBusy, err)
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", moderation.ErrStoreBusy, err)
	case code == sqlite3.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", moderation.ErrStoreBusy, err)
	}
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Timestamps are stored fixed-width in UTC so string comparison orders them
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// rowDecoder decodes stored text columns and keeps the first failure, so a
// scan function can decode every column and check once.
type rowDecoder struct {
	err error
}

func (d *rowDecoder) fail(column string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("decode %s: %w", column, err)
	}
}

func (d *rowDecoder) time(column, s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		d.fail(column, err)
	}
	return t
}

func (d *rowDecoder) timePtr(column string, ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := d.time(column, ns.String)
	return &t
}

func (d *rowDecoder) json(column, s string, v any) {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		d.fail(column, err)
	}
}

func strArg(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
