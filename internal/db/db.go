package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	embedsql "github.com/abd3rr/workflow-api/embed/sql"
	"github.com/abd3rr/workflow-api/pkg/models"
	_ "modernc.org/sqlite"
)

// DB is the SQLite backed store. Its embedded Queries run directly against
// the connection pool; use WithTx to group several writes into one
// transaction.
type DB struct {
	*sql.DB
	*Queries
	onChange   func(ctx context.Context)
	onChangeMu sync.RWMutex
}

// Queries holds every store operation. It is bound either to the database
// or to a single transaction.
type Queries struct {
	exec    executor
	changed func(ctx context.Context)
}

type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) SetOnChange(fn func(ctx context.Context)) {
	db.onChangeMu.Lock()
	defer db.onChangeMu.Unlock()
	db.onChange = fn
}

func (db *DB) triggerChange(ctx context.Context) {
	db.onChangeMu.RLock()
	fn := db.onChange
	db.onChangeMu.RUnlock()

	if fn != nil {
		fn(ctx)
	}
}

func (q *Queries) triggerChange(ctx context.Context) {
	if q.changed != nil {
		q.changed(ctx)
	}
}

// Open opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL mode for better concurrency
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Foreign keys support
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// SQLite works best with a single writer. It also keeps ":memory:"
	// databases alive, since every new connection would get an empty one.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB}
	db.Queries = &Queries{exec: sqlDB, changed: db.triggerChange}
	return db, nil
}

func (db *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	db.triggerChange(ctx)
	return nil
}

func (db *DB) Init(ctx context.Context) error {
	return db.Migrate(ctx, embedsql.Schema)
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise. The change hook fires once, after
// commit, if fn wrote anything.
func (db *DB) WithTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dirty := false
	q := &Queries{exec: tx, changed: func(context.Context) { dirty = true }}
	if err := fn(q); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if dirty {
		db.triggerChange(ctx)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func affectedOne(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.NotFound(kind, id)
	}
	return nil
}
