// Package housekeeping removes stored artifacts once they fall out of the
// retention window.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/facehook/internal/observability"
	"github.com/your-org/facehook/internal/storage"
)

type Sweeper struct {
	store     storage.Store
	retention time.Duration
	now       func() time.Time
}

func NewSweeper(store storage.Store, retention time.Duration) *Sweeper {
	return &Sweeper{store: store, retention: retention, now: time.Now}
}

// Sweep deletes every artifact older than the retention window and returns
// how many were removed. Objects that vanish meanwhile are not errors. A
// zero retention disables sweeping.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	objects, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}

	cutoff := s.now().Add(-s.retention)
	deleted := 0
	for _, obj := range objects {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if !obj.ModTime.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, obj.Name); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			slog.Warn("sweep: delete artifact", "name", obj.Name, "error", err)
			continue
		}
		deleted++
	}
	observability.SweptArtifacts.Add(float64(deleted))
	if deleted > 0 {
		slog.Info("sweep: deleted old artifacts", "deleted", deleted, "remaining", len(objects)-deleted)
	}
	return deleted, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 || interval <= 0 {
		slog.Info("artifact sweep disabled")
		return
	}
	slog.Info("artifact sweep enabled", "retention", s.retention, "interval", interval)

	s.sweepLogged(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepLogged(ctx)
		}
	}
}

func (s *Sweeper) sweepLogged(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("sweep failed", "error", err)
	}
}
