// Package dbcore is the database connectivity resilience core for Vango
// services: it turns a raw, possibly malformed connection string into a
// safely-pooled, lazily-initialized database resource that never blocks
// process startup or liveness.
//
// Invariants:
//
//   - I1: a Descriptor is validated before any network attempt; a missing
//     host or unknown scheme is a startup error, not a connect failure.
//   - I2: the database-name segment is whitespace-normalized on its own;
//     the raw segment is never used for the actual connection.
//   - I3: transport-security directives are mapped onto the one shape the
//     active driver declares; an sslmode keyword is never handed to a
//     driver that does not define one.
//   - I4: the pool is constructed at most once, lazily, and a failed
//     construction is retryable, never a poisoned terminal state.
//   - I5: liveness and health probes never touch the pool; readiness is
//     the only probe allowed a (bounded) database round trip.
//   - I6: connect-path errors are safe to log by default; the raw DSN and
//     password never appear in an error message.
//
// This package is framework-adjacent but framework-independent. It does
// not import github.com/vango-go/vango.
package dbcore
