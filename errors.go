package dbcore

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind classifies connection-layer failures so callers can branch on
// retry-vs-fatal without inspecting message strings.
type Kind int

const (
	// KindConfig marks a bad connection string or a driver/directive
	// mismatch. Surfaced at startup, never retried.
	KindConfig Kind = iota + 1

	// KindNotConfigured marks operations against an offline handle
	// (no connection string in a production environment).
	KindNotConfigured

	// KindTransient marks network-level hiccups that the retry policy
	// may attempt again.
	KindTransient

	// KindPermanent marks failures that retrying cannot fix: rejected
	// credentials, a missing database, a disposed handle.
	KindPermanent

	// KindPoolExhausted marks an acquire that found no free slot within
	// the configured wait timeout.
	KindPoolExhausted
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotConfigured:
		return "not_configured"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindPoolExhausted:
		return "pool_exhausted"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by this package.
//
// The outer message is always safe for default production logging: it never
// contains the raw connection string, credentials, or a DSN authority. The
// wrapped cause may still carry sensitive detail and is reachable only
// through errors.Unwrap/Is/As.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.cause }

// Kind reports the failure class.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the failure class from an error chain.
// It returns 0 for errors that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return 0
}

// IsRetryable reports whether the retry policy may attempt the operation
// again. Only transient failures qualify.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// classify maps a driver-level connect failure onto a Kind.
//
// SQLSTATE class 28 (invalid authorization) and 3D000 (database does not
// exist) cannot be fixed by retrying. Everything network-shaped is assumed
// transient.
func classify(err error) Kind {
	if k := KindOf(err); k != 0 {
		return k
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "28") || pgErr.Code == "3D000" {
			return KindPermanent
		}
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransient
	}

	return KindTransient
}
