package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Abhracodec/osint-recon/config"
	"github.com/Abhracodec/osint-recon/internal/bootstrap"
)

type connectInfraOptions struct {
	Logger    *slog.Logger
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
}

// infra holds the connections a command opened.
type infra struct {
	db     *sql.DB
	redis  redis.UniversalClient
	logger *slog.Logger
}

// connectInfra opens only what the command and backend need: Redis for the
// redis backend and Postgres for the audit trail or migrations.
func connectInfra(opts *connectInfraOptions) (*infra, error) {
	out := &infra{logger: opts.Logger}

	if opts.WantDB {
		db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: opts.Config.Postgres, Logger: opts.Logger})
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		out.db = db
	}

	if opts.WantRedis {
		client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{RedisConfig: opts.Config.Redis, Logger: opts.Logger})
		if err != nil {
			err = fmt.Errorf("connect redis: %w", err)
			if out.db != nil {
				if closeErr := out.db.Close(); closeErr != nil {
					err = errors.Join(err, fmt.Errorf("close db: %w", closeErr))
				}
			}
			return nil, err
		}
		out.redis = client
	}

	return out, nil
}

// Close releases every connection, logging failures.
func (i *infra) Close() {
	if i == nil {
		return
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.logger.Error("close redis failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			i.logger.Error("close database failed", "error", err)
		}
	}
}

// openServices connects infrastructure and wires the engine. The returned
// func releases both.
func (a *app) openServices(ctx context.Context) (*bootstrap.ServiceContainer, func(), error) {
	conns, err := connectInfra(&connectInfraOptions{
		Logger:    a.logger,
		Config:    &a.cfg,
		WantDB:    a.cfg.Audit.Enabled,
		WantRedis: a.cfg.Backend == config.BackendRedis,
	})
	if err != nil {
		return nil, nil, err
	}

	if conns.db != nil && a.cfg.Postgres.RunMigrations {
		if err = bootstrap.RunMigrations(ctx, conns.db, a.logger); err != nil {
			conns.Close()
			return nil, nil, err
		}
	}

	svc, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &a.cfg,
		DB:          conns.db,
		RedisClient: conns.redis,
		Logger:      a.logger,
	})
	if err != nil {
		conns.Close()
		return nil, nil, err
	}

	return svc, func() {
		if cerr := svc.Close(); cerr != nil {
			a.logger.Error("close services failed", "error", cerr)
		}
		conns.Close()
	}, nil
}
