// Package app assembles the ingest pipeline from configuration. The HTTP
// server and the CLI share it so both append through the same lock and
// journal backends.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/credentials"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/awsutil"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/distlock"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
	"github.com/ignite/campaign-sheet-sync/internal/repository/postgres"
	"github.com/ignite/campaign-sheet-sync/internal/service/ingest"
	"github.com/ignite/campaign-sheet-sync/internal/sheets"
	"github.com/ignite/campaign-sheet-sync/internal/storage"
)

const pingTimeout = 3 * time.Second

// App holds the wired pipeline and the connections it owns.
type App struct {
	Config    *config.Config
	Service   *ingest.Service
	Appenders *ingest.SheetsAppenders
	Journal   sheets.Journal

	redis *redis.Client
	db    *sql.DB
}

// New connects the optional backends and builds the service. Redis and
// PostgreSQL are optional: when unreachable the app falls back to
// PostgreSQL advisory locks, then to in-process locks and an in-memory
// journal.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	if cfg.Lock.RedisAddr != "" {
		a.redis = connectRedis(ctx, cfg.Lock)
	}
	if cfg.Journal.Enabled() {
		a.db = connectPostgres(ctx, cfg.Journal.DatabaseURL)
	}

	if a.db != nil {
		a.Journal = postgres.NewAppendLogRepo(a.db)
	} else {
		a.Journal = sheets.NewMemoryJournal()
	}
	locks := distlock.NewFactory(a.redis, a.db, cfg.Lock.TTL())

	archive, err := storage.New(ctx, cfg.Reports, cfg.AWS)
	if err != nil {
		a.Close()
		return nil, err
	}

	// Left as an untyped nil unless a bucket is configured.
	var s3Client credentials.S3GetObjectAPI
	if cfg.Credentials.S3Bucket != "" {
		c, err := awsutil.NewS3Client(ctx, cfg.AWS)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing S3 credentials source: %w", err)
		}
		s3Client = c
	}

	sources := ingest.ConfiguredSources(cfg.Credentials, s3Client)
	a.Appenders = ingest.NewSheetsAppenders(cfg, sources, locks, a.Journal)
	a.Service = ingest.NewService(a.Appenders, archive, cfg.Upload.PreviewRows, cfg.Upload.MaxFiles)

	logger.Info("app: pipeline ready",
		"lock_backend", a.LockBackend(),
		"journal", journalName(a.db),
		"reports", cfg.Reports.Type,
		"worksheet", cfg.Sheets.Worksheet)
	return a, nil
}

// LockBackend names the lock implementation in use.
func (a *App) LockBackend() string {
	switch {
	case a.redis != nil:
		return "redis"
	case a.db != nil:
		return "postgres"
	default:
		return "local"
	}
}

// Close releases the Redis and database connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return errors.Join(errs...)
}

func connectRedis(ctx context.Context, cfg config.LockConfig) *redis.Client {
	var client *redis.Client
	if strings.HasPrefix(cfg.RedisAddr, "redis://") || strings.HasPrefix(cfg.RedisAddr, "rediss://") {
		opts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			logger.Warn("app: invalid redis url, using local locks", "error", err)
			return nil
		}
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("app: redis unreachable, falling back", "addr", cfg.RedisAddr, "error", err)
		client.Close()
		return nil
	}
	logger.Info("app: redis connected", "addr", cfg.RedisAddr)
	return client
}

func connectPostgres(ctx context.Context, dsn string) *sql.DB {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Warn("app: open database failed, journal kept in memory", "error", err)
		return nil
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		logger.Warn("app: database unreachable, journal kept in memory", "error", err)
		db.Close()
		return nil
	}
	logger.Info("app: database connected")
	return db
}

func journalName(db *sql.DB) string {
	if db != nil {
		return "postgres"
	}
	return "memory"
}
