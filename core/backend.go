package core

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// OpenSessionRegistry builds the registry selected by cfg.SessionBackend.
// The returned closer releases the backend connection.
func OpenSessionRegistry(ctx context.Context, cfg Config, ids *SessionIDs, logger *zap.Logger) (SessionRegistry, io.Closer, error) {
	switch cfg.SessionBackend {
	case BackendMemory, "":
		return NewMemorySessionRegistry(ids, cfg.SessionTTL), nopCloser{}, nil

	case BackendRedis:
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		logger.Info("using redis session backend", zap.String("addr", client.Options().Addr))
		return NewRedisSessionRegistry(client, ids, cfg.SessionTTL), client, nil

	case BackendPostgres:
		db, err := ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect database: %w", err)
		}
		reg := NewPgSessionRegistry(db, ids, cfg.SessionTTL)
		if err := reg.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to prepare sessions table: %w", err)
		}
		logger.Info("using postgres session backend")
		return reg, closerFunc(func() error { db.Close(); return nil }), nil

	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
