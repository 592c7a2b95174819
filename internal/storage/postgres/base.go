// Package postgres implements every storage.* interface against Postgres
// using database/sql and lib/pq, with raw SQL and no ORM.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	tserrors "github.com/tenantsync/engine/internal/errors"
	"github.com/lib/pq"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// ContextWithTx attaches a transaction to ctx so nested store calls share it.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Base is embedded by every entity store and resolves the right querier.
type Base struct {
	DB *sql.DB
}

func (b Base) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return b.DB
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func (b Base) WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, txErr := b.DB.BeginTx(ctx, nil)
	if txErr != nil {
		return tserrors.TransientIO("begin_tx_failed", "begin transaction", txErr)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(ContextWithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return tserrors.TransientIO("commit_tx_failed", "commit transaction", err)
	}
	return nil
}

// classify maps a bare database/sql or lib/pq error into a typed one.
func classify(code, msg string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return tserrors.NotFound(code, msg, err)
	}
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return tserrors.Conflict(code, msg, err)
	}
	return tserrors.TransientIO(code, msg, err)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	return &nt.Time
}

func jsonOf(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func parseJSONMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

func textArray(ss []string) pq.StringArray { return pq.StringArray(ss) }
