package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/your-org/facehook/internal/config"
)

// Open builds the artifact store the config selects.
func Open(ctx context.Context, cfg config.StorageConfig, minioCfg config.MinIOConfig) (Store, error) {
	switch cfg.Backend {
	case "minio":
		s, err := NewMinIOStore(minioCfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		slog.Info("artifact storage ready", "backend", "minio", "bucket", minioCfg.Bucket)
		return s, nil
	case "local", "":
		s, err := NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		slog.Info("artifact storage ready", "backend", "local", "dir", s.Dir())
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
