// Package pgxutil bridges the database/sql pool to native pgx connections so
// repositories can use pgx row collection against a shared *sql.DB.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// WithPgxConn acquires a *pgx.Conn via the stdlib bridge and executes fn with it.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		// connection close failure is best-effort and ignored
		_ = conn.Close()
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		return fn(std.Conn())
	})
}

// QueryOne runs a query expected to return exactly one row and maps it onto T
// by column name. pgx.ErrNoRows passes through for the caller to classify.
func QueryOne[T any](ctx context.Context, db *sql.DB, query string, args ...any) (*T, error) {
	var out T
	err := WithPgxConn(ctx, db, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// QueryAll runs a query and maps every row onto *T by column name.
func QueryAll[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]*T, error) {
	var out []*T
	err := WithPgxConn(ctx, db, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Exec runs a statement and returns the number of rows affected.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (int64, error) {
	var affected int64
	err := WithPgxConn(ctx, db, func(pgxConn *pgx.Conn) error {
		tag, err := pgxConn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}
