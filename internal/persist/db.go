package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/assetstream/streamer/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// DB is the Postgres pool the load journal writes through.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// NewDB connects using the [journal] settings and fails unless the server
// answers a ping.
func NewDB(ctx context.Context, cfg config.JournalConfig, log *zap.Logger) (*DB, error) {
	poolCfg, err := journalPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open journal pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping journal db: %w", err)
	}

	log.Info("journal database connected",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.Int32("max_conns", poolCfg.MaxConns))
	return &DB{Pool: pool, log: log}, nil
}

// journalPoolConfig parses the DSN and applies only the limits that are set,
// leaving pgxpool defaults otherwise.
func journalPoolConfig(cfg config.JournalConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse journal dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	return poolCfg, nil
}

func (db *DB) Close() { db.Pool.Close() }
