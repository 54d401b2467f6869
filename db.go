package dbcore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the contract application code should depend on instead of the
// concrete Handle. It keeps services testable (via TestDB) and decoupled
// from pool operational concerns: Acquire, Status, and the config knobs
// intentionally stay on Handle.
//
// All methods take context.Context so cancellation propagates to in-flight
// database operations. On a Handle, the first real call forces pool
// construction; offline handles fail fast with KindNotConfigured.
type DB interface {
	// Exec executes a query that does not return rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Query executes a query that returns rows, typically a SELECT.
	// The caller must close the returned Rows when done.
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)

	// QueryRow executes a query expected to return at most one row.
	// If no rows match, row.Scan() returns pgx.ErrNoRows.
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row

	// Begin starts a transaction with default options.
	Begin(ctx context.Context) (pgx.Tx, error)

	// BeginTx starts a transaction with explicit options.
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases all resources. Call once during graceful shutdown.
	Close()
}

var _ DB = (*Handle)(nil)

func (h *Handle) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := h.ensurePool(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

func (h *Handle) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := h.ensurePool(ctx)
	if err != nil {
		return &ErrRows{ErrValue: err}, err
	}
	return pool.Query(ctx, sql, args...)
}

func (h *Handle) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := h.ensurePool(ctx)
	if err != nil {
		return &ErrRow{Err: err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

func (h *Handle) Begin(ctx context.Context) (pgx.Tx, error) {
	pool, err := h.ensurePool(ctx)
	if err != nil {
		return nil, err
	}
	return pool.Begin(ctx)
}

func (h *Handle) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	pool, err := h.ensurePool(ctx)
	if err != nil {
		return nil, err
	}
	return pool.BeginTx(ctx, txOptions)
}

// Ping forces construction if needed and verifies a round trip. The
// readiness probe does not use this path; it must never trigger
// construction.
func (h *Handle) Ping(ctx context.Context) error {
	pool, err := h.ensurePool(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Close implements DB by disposing the Handle.
func (h *Handle) Close() {
	h.Dispose()
}

const defaultRollbackTimeout = 5 * time.Second

// WithTx executes fn within a transaction. If fn returns an error or
// panics, the transaction is rolled back. Otherwise, it is committed.
//
// Rollback runs on its own timeout so a canceled request context cannot
// leave the transaction dangling.
func WithTx(ctx context.Context, db DB, opts pgx.TxOptions, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return newError(classify(err), "dbcore: begin tx failed", err)
	}

	rollbackCtx, cancelRollback := context.WithTimeout(context.Background(), defaultRollbackTimeout)
	defer cancelRollback()

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(rollbackCtx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(rollbackCtx)
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return newError(classify(err), "dbcore: commit tx failed", err)
	}

	return nil
}
