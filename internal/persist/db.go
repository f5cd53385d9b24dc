package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/realmrelay/server/internal/config"
	"go.uber.org/zap"
)

// The journal has a single writer goroutine plus the occasional prune, so
// the pool stays small unless configured otherwise.
const (
	journalMaxConns     = 2
	journalIdleTime     = 5 * time.Minute
	journalPingTimeout  = 5 * time.Second
	journalHealthPeriod = 30 * time.Second
)

// DB wraps the pgx pool backing the session journal.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

// journalPoolConfig turns the database section into pool settings. The
// server name is reported to Postgres as application_name so journal
// connections can be told apart in pg_stat_activity.
func journalPoolConfig(cfg config.DatabaseConfig, appName string) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = journalMaxConns
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = min(int32(max(cfg.MaxIdleConns, 0)), poolCfg.MaxConns)
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolCfg.MaxConnIdleTime = journalIdleTime
	poolCfg.HealthCheckPeriod = journalHealthPeriod
	if appName != "" {
		if _, set := poolCfg.ConnConfig.RuntimeParams["application_name"]; !set {
			poolCfg.ConnConfig.RuntimeParams["application_name"] = appName
		}
	}
	return poolCfg, nil
}

// NewDB connects the journal pool and checks the server is reachable.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, appName string, log *zap.Logger) (*DB, error) {
	poolCfg, err := journalPoolConfig(cfg, appName)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, journalPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	log.Info("journal database connected",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
	db.log.Info("journal database closed")
}
