// Package dbx provides the small database abstractions shared by the
// repositories: DBTX, implemented by both *sql.DB and *sql.Tx, a helper
// that runs a function inside a transaction, and Transactor, which lets
// services ask for a unit of work without knowing the backing store.
package dbx

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// Transactor hands out the handle repositories should be bound to.
type Transactor interface {
	// Conn returns the handle for single-statement work.
	Conn() DBTX
	// WithinTx runs fn in one unit of work.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error
}

// SQLTransactor backs Transactor with a *sql.DB.
type SQLTransactor struct {
	DB *sql.DB
}

func NewSQLTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{DB: db}
}

func (t *SQLTransactor) Conn() DBTX { return t.DB }

func (t *SQLTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, t.DB, nil, fn)
}

// NoTx is the Transactor for stores that ignore the DBTX handle (the
// in-memory repositories): fn runs directly with a nil handle.
type NoTx struct{}

func (NoTx) Conn() DBTX { return nil }

func (NoTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return fn(ctx, nil)
}

// Placeholders returns n positional parameters starting at $start,
// e.g. Placeholders(2, 3) == "$2, $3, $4".
func Placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("$")
		b.WriteString(strconv.Itoa(start + i))
	}
	return b.String()
}
