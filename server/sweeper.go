package server

import (
	"context"
	"time"
)

// StartSweeper runs Sweep every SweepInterval until ctx is done
func (s *Server) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.Config.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep removes expired authorization codes and purges ledger entries whose
// tokens expired more than the clock skew grace period ago. It returns the
// number of codes and ledger entries removed.
func (s *Server) Sweep(ctx context.Context) (int, int) {
	codes := s.codes.SweepExpired(s.Config.CodeMaxAge)
	if codes > 0 && s.metrics != nil {
		s.metrics.RecordCodeSweep(ctx, codes)
	}

	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	purged, err := s.ledger.PurgeExpired(storeCtx, s.now().Add(-s.Config.ClockSkewGracePeriod))
	if err != nil {
		s.Logger.WarnContext(ctx, "Failed to purge revocation ledger", "error", err)
		return codes, 0
	}
	if purged > 0 {
		s.Logger.DebugContext(ctx, "Purged expired revocation entries", "count", purged)
	}
	return codes, purged
}
