package dbcore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"
)

// handleState is the Handle lifecycle. Transitions:
// uninitialized -> constructing -> ready -> disposed, with constructing
// reverting to uninitialized on failure so a later call can retry.
// offline is terminal short of disposal and only entered at NewHandle time.
type handleState int

const (
	stateUninitialized handleState = iota
	stateConstructing
	stateReady
	stateOffline
	stateDisposed
)

func (s handleState) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateConstructing:
		return "constructing"
	case stateReady:
		return "ready"
	case stateOffline:
		return "offline"
	case stateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// newPoolWithConfig is a package-private seam used by tests to force
// deterministic pool-construction outcomes without network dependencies.
var newPoolWithConfig = pgxpool.NewWithConfig

// Option configures a Handle.
type Option func(*handleOptions)

type handleOptions struct {
	logger            *slog.Logger
	pgxConfigModifier func(*pgxpool.Config)
}

// WithLogger sets the logger for connection lifecycle events.
// Passwords are never logged; host and database name may be.
func WithLogger(l *slog.Logger) Option {
	return func(o *handleOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPgxConfig allows low-level pgxpool configuration.
//
// The modifier runs after standard dbcore configuration is applied.
func WithPgxConfig(fn func(*pgxpool.Config)) Option {
	return func(o *handleOptions) {
		o.pgxConfigModifier = fn
	}
}

// Handle is the lazily-constructed, long-lived pool resource.
//
// A Handle is an explicitly owned value: construct it once at startup, pass
// it down, and Dispose it at shutdown. It owns the only shared mutable
// state in this package and callers never reach into pool internals.
//
// The pool itself is built on the first real use (or by the warmup
// scheduler, whichever comes first). Concurrent first-callers wait on the
// same in-flight construction and observe its single outcome; a failed
// construction is not cached, so the next call retries.
type Handle struct {
	cfg    Config
	desc   *Descriptor
	args   *Args
	logger *slog.Logger

	pgxConfigModifier func(*pgxpool.Config)

	mu    sync.Mutex
	state handleState
	pool  *pgxpool.Pool

	construct singleflight.Group
}

// NewHandle validates configuration eagerly and connects lazily.
//
// Parse and driver-shape failures surface here, before any network attempt.
// An empty connection string is a KindConfig error in development; in
// production the Handle comes up offline: liveness and health are
// unaffected, readiness reports the reason, and Acquire fails fast with
// KindNotConfigured.
func NewHandle(cfg Config, opts ...Option) (*Handle, error) {
	var o handleOptions
	o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}

	cfg = cfg.withDefaults()

	desc, err := ParseDSN(cfg.ConnectionString)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		cfg:               cfg,
		logger:            o.logger,
		pgxConfigModifier: o.pgxConfigModifier,
	}

	if desc == nil {
		if cfg.Environment != EnvProduction {
			return nil, newError(KindConfig, "dbcore: connection string is not configured (set DATABASE_URL)", nil)
		}
		h.state = stateOffline
		h.logger.Warn("database not configured, handle is offline")
		return h, nil
	}

	if cfg.Driver != DriverPgx {
		return nil, newError(KindConfig,
			fmt.Sprintf("dbcore: driver %q is not pool-managed; build args with BuildArgs and open it with OpenSQL", cfg.Driver), nil)
	}

	args, err := BuildArgs(desc, cfg.Driver)
	if err != nil {
		return nil, err
	}

	h.desc = desc
	h.args = args
	return h, nil
}

// current snapshots the state without blocking on construction.
func (h *Handle) current() (handleState, *pgxpool.Pool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, h.pool
}

// ensurePool returns the pool, constructing it on first use.
//
// Construction is linearized through singleflight: any number of concurrent
// first-callers share one construction attempt and its one outcome. The
// attempt itself runs on its own timeout, detached from caller contexts, so
// one canceled caller cannot poison the shared result; a waiting caller
// whose context ends simply stops waiting.
func (h *Handle) ensurePool(ctx context.Context) (*pgxpool.Pool, error) {
	h.mu.Lock()
	switch h.state {
	case stateReady:
		p := h.pool
		h.mu.Unlock()
		return p, nil
	case stateOffline:
		h.mu.Unlock()
		return nil, newError(KindNotConfigured, "dbcore: database is not configured (offline mode)", nil)
	case stateDisposed:
		h.mu.Unlock()
		return nil, newError(KindPermanent, "dbcore: handle is disposed", nil)
	}
	h.mu.Unlock()

	ch := h.construct.DoChan("construct", func() (any, error) {
		return h.buildPool()
	})

	select {
	case <-ctx.Done():
		return nil, newError(KindTransient, "dbcore: canceled while waiting for pool construction", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pgxpool.Pool), nil
	}
}

// buildPool performs one construction attempt. On any failure the state
// reverts to uninitialized; failure is never a poisoned terminal state.
func (h *Handle) buildPool() (*pgxpool.Pool, error) {
	h.mu.Lock()
	switch h.state {
	case stateReady:
		p := h.pool
		h.mu.Unlock()
		return p, nil
	case stateDisposed:
		h.mu.Unlock()
		return nil, newError(KindPermanent, "dbcore: handle is disposed", nil)
	}
	h.state = stateConstructing
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ConnectTimeout)
	defer cancel()

	pgxCfg, err := pgxpool.ParseConfig(h.args.DSN)
	if err != nil {
		h.revert()
		// Parse errors from the driver may echo DSN content; keep the
		// outer message sanitized.
		return nil, newError(KindConfig, "dbcore: driver rejected connection arguments", err)
	}

	if h.args.TLSExplicit {
		pgxCfg.ConnConfig.TLSConfig = h.args.TLSConfig
		pgxCfg.ConnConfig.Fallbacks = nil
	}

	pgxCfg.MaxConns = h.cfg.MaxConns
	pgxCfg.MinConns = h.cfg.MinConns
	pgxCfg.MaxConnLifetime = h.cfg.MaxConnLifetime
	pgxCfg.MaxConnIdleTime = h.cfg.MaxConnIdleTime
	pgxCfg.HealthCheckPeriod = h.cfg.HealthCheckPeriod
	pgxCfg.ConnConfig.ConnectTimeout = h.cfg.ConnectTimeout
	if h.cfg.CommandTimeout > 0 {
		pgxCfg.ConnConfig.RuntimeParams["statement_timeout"] =
			strconv.FormatInt(h.cfg.CommandTimeout.Milliseconds(), 10)
	}

	if h.pgxConfigModifier != nil {
		h.pgxConfigModifier(pgxCfg)
	}

	pool, err := newPoolWithConfig(ctx, pgxCfg)
	if err != nil {
		h.revert()
		return nil, newError(classify(err),
			fmt.Sprintf("dbcore: failed to create pool (host=%s)", h.desc.Host), err)
	}

	// A constructed pool is not yet a reachable database; verify with a
	// round trip so auth and catalog failures surface now.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		h.revert()
		return nil, newError(classify(err),
			fmt.Sprintf("dbcore: initial ping failed (host=%s)", h.desc.Host), err)
	}

	h.mu.Lock()
	if h.state == stateDisposed {
		h.mu.Unlock()
		pool.Close()
		return nil, newError(KindPermanent, "dbcore: handle is disposed", nil)
	}
	h.pool = pool
	h.state = stateReady
	h.mu.Unlock()

	h.logger.Info("database pool ready",
		slog.String("host", h.desc.Host),
		slog.String("database", h.desc.Database),
	)
	return pool, nil
}

func (h *Handle) revert() {
	h.mu.Lock()
	if h.state == stateConstructing {
		h.state = stateUninitialized
	}
	h.mu.Unlock()
}

// Acquire returns a ready-to-use pooled connection, constructing the pool
// on first call. The connection is validated with a cheap pre-flight round
// trip immediately before hand-out; one that silently died while idle is
// destroyed and replaced rather than returned broken.
//
// Release the connection when done. Waiting for a free slot is bounded by
// AcquireTimeout and reported as KindPoolExhausted.
func (h *Handle) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	pool, err := h.ensurePool(ctx)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.cfg.AcquireTimeout)
	defer cancel()

	conn, err := pool.Acquire(waitCtx)
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, newError(KindPoolExhausted,
				"dbcore: no pool slot available within acquire timeout", err)
		}
		return nil, newError(classify(err), "dbcore: failed to acquire connection", err)
	}

	if err := conn.Ping(waitCtx); err == nil {
		return conn, nil
	}

	// Pre-flight failed: destroy the dead connection and try one
	// replacement before giving up.
	_ = conn.Conn().Close(waitCtx)
	conn.Release()

	conn, err = pool.Acquire(waitCtx)
	if err != nil {
		return nil, newError(classify(err), "dbcore: failed to acquire replacement connection", err)
	}
	if err := conn.Ping(waitCtx); err != nil {
		_ = conn.Conn().Close(waitCtx)
		conn.Release()
		return nil, newError(classify(err), "dbcore: pre-flight check failed on replacement connection", err)
	}
	return conn, nil
}

// PoolStatus is a read-only metrics snapshot.
type PoolStatus struct {
	State    string `json:"state"`
	Size     int32  `json:"size"`
	InUse    int32  `json:"in_use"`
	Idle     int32  `json:"idle"`
	MaxSize  int32  `json:"max_size"`
	Recycled int64  `json:"recycled_count"`
}

// Status reports pool metrics without blocking and without forcing
// construction.
func (h *Handle) Status() PoolStatus {
	state, pool := h.current()

	st := PoolStatus{State: state.String(), MaxSize: h.cfg.MaxConns}
	if state == stateReady && pool != nil {
		s := pool.Stat()
		st.Size = s.TotalConns()
		st.InUse = s.AcquiredConns()
		st.Idle = s.IdleConns()
		st.Recycled = s.MaxLifetimeDestroyCount()
	}
	return st
}

// Dispose releases all pool resources. Idempotent; call once per owner at
// process shutdown. The Handle is not usable afterwards.
func (h *Handle) Dispose() {
	h.mu.Lock()
	if h.state == stateDisposed {
		h.mu.Unlock()
		return
	}
	pool := h.pool
	h.pool = nil
	h.state = stateDisposed
	h.mu.Unlock()

	if pool != nil {
		pool.Close()
	}
}
