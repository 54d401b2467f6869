package dbcore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// LivenessStatus is the payload of the liveness probe.
type LivenessStatus struct {
	Alive bool `json:"alive"`
}

// HealthStatus is the payload of the health probe.
type HealthStatus struct {
	Healthy bool `json:"healthy"`
}

// ReadinessStatus is the payload of the readiness probe. Reason is set
// only when Ready is false.
type ReadinessStatus struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Probes exposes the three probe tiers over a Handle. Each tier has a
// strict maximum dependency depth: liveness touches nothing, health touches
// process state only, and readiness is the single probe allowed to reach
// the database.
type Probes struct {
	handle *Handle
}

// NewProbes wires the probe tiers to a Handle.
func NewProbes(h *Handle) *Probes {
	return &Probes{handle: h}
}

// Liveness reports that the process can execute code. Constant time, zero
// dependencies, ever.
func (p *Probes) Liveness() LivenessStatus {
	return LivenessStatus{Alive: true}
}

// Health reports that the process can serve requests.
//
// It must never touch the pool: a database outage making the process look
// dead to its own supervisor turns one incident into a cascade of
// restarts. This is the most load-bearing invariant in the package.
func (p *Probes) Health() HealthStatus {
	return HealthStatus{Healthy: true}
}

// Readiness confirms the database dependency with a bounded round trip.
//
// It inspects the Handle's current state rather than forcing construction:
// a pool that has not been built yet is simply "not ready". Failures come
// back as a diagnostic reason, never as a panic or an unbounded hang.
func (p *Probes) Readiness(ctx context.Context) ReadinessStatus {
	state, pool := p.handle.current()

	switch state {
	case stateOffline:
		return ReadinessStatus{Reason: "database not configured"}
	case stateDisposed:
		return ReadinessStatus{Reason: "handle disposed"}
	case stateUninitialized, stateConstructing:
		return ReadinessStatus{Reason: "pool not initialized"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.handle.cfg.ReadinessTimeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		// The reason names the host and the failure category but never
		// echoes the driver message, which may carry connection parameters.
		return ReadinessStatus{Reason: fmt.Sprintf("database ping failed (host=%s): %s (%s)",
			p.handle.desc.Host, classify(err), probeFailureDetail(err))}
	}

	return ReadinessStatus{Ready: true}
}

// probeFailureDetail names the failure category of a probe round trip.
// SQLSTATE codes and coarse network categories are safe to expose; raw
// driver messages are not.
func probeFailureDetail(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "sqlstate " + pgErr.Code
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused"
	default:
		return "network error"
	}
}
