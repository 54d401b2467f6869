package dbcore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StartWarmup launches a background task that pre-constructs the pool so
// the first real request does not pay the connection cost. It returns
// immediately; process startup is never blocked on the database.
//
// Each warmup step (construct the pool, run a trivial probe round trip)
// runs under its own timeout; a timed-out or transient step is logged and
// retried with a growing, capped delay for a bounded number of attempts.
// Permanent failures (rejected credentials, bad configuration) stop the
// scheduler at once; the next organic Acquire still retries construction
// on its own.
//
// The returned stop function cancels the task and waits for it to finish.
// It is idempotent.
func StartWarmup(ctx context.Context, h *Handle) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		h.warmup(ctx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (h *Handle) warmup(ctx context.Context) {
	if state, _ := h.current(); state == stateOffline {
		h.logger.Info("database warmup skipped, handle is offline")
		return
	}

	attempts := h.cfg.WarmupAttempts
	for attempt := 1; attempt <= attempts; attempt++ {
		err := h.warmupStep(ctx)
		if err == nil {
			h.logger.Info("database warmup complete", slog.Int("attempt", attempt))
			return
		}
		if ctx.Err() != nil {
			h.logger.Info("database warmup canceled")
			return
		}

		switch classify(err) {
		case KindConfig, KindNotConfigured, KindPermanent:
			h.logger.Error("database warmup aborted",
				slog.String("kind", classify(err).String()),
				slog.String("error", err.Error()),
			)
			return
		}

		h.logger.Warn("database warmup attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)

		if attempt == attempts {
			h.logger.Warn("database warmup gave up, first acquire will retry")
			return
		}

		delay := min(time.Duration(attempt)*h.cfg.WarmupInterval, warmupMaxDelay)
		select {
		case <-ctx.Done():
			h.logger.Info("database warmup canceled")
			return
		case <-time.After(delay):
		}
	}
}

// warmupStep runs the two warmup sub-steps, each on its own bounded
// timeout so a hung network path cannot stall shutdown.
func (h *Handle) warmupStep(ctx context.Context) error {
	buildCtx, cancel := context.WithTimeout(ctx, h.cfg.WarmupStepTimeout)
	pool, err := h.ensurePool(buildCtx)
	cancel()
	if err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.WarmupStepTimeout)
	defer cancel()
	if err := pool.Ping(probeCtx); err != nil {
		return newError(classify(err), "dbcore: warmup probe failed", err)
	}
	return nil
}
