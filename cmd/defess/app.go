package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	solanaclient "github.com/lalitcap23/defess-v3/internal/client/solana"
	"github.com/lalitcap23/defess-v3/internal/config"
	"github.com/lalitcap23/defess-v3/internal/db"
	"github.com/lalitcap23/defess-v3/internal/lock"
	"github.com/lalitcap23/defess-v3/internal/metrics"
	"github.com/lalitcap23/defess-v3/internal/notify"
	gormrepository "github.com/lalitcap23/defess-v3/internal/repository/gorm"
	"github.com/lalitcap23/defess-v3/internal/service"
)

type app struct {
	cfg    config.Config
	logger *zap.Logger

	db    *db.DB
	store *gormrepository.Store
	chain *solanaclient.Client
	redis *lock.RedisLocker

	registry  *prometheus.Registry
	selector  *service.WinnerSelector
	processor *service.PeriodProcessor
	stats     *service.StatsService
}

func newChainClient(cfg config.Config, logger *zap.Logger) (*solanaclient.Client, error) {
	return solanaclient.New(solanaclient.Options{
		RPCURL:          cfg.Solana.RPCURL,
		ProgramID:       cfg.Solana.ProgramID,
		AuthorityKey:    cfg.Solana.AuthorityPrivateKey,
		Commitment:      cfg.Solana.Commitment,
		ConfirmAttempts: cfg.Solana.ConfirmAttempts,
		ConfirmDelay:    cfg.Solana.ConfirmDelay,
		SkipPreflight:   cfg.Solana.SkipPreflight,
	}, logger.Named("solana"))
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	conn, err := db.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	a.db = conn
	if err := db.SetTimezone(conn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if cfg.DB.AutoMigrate {
		// CRUD tables belong to the web app except on sqlite, where nothing
		// else creates them.
		if err := db.AutoMigrate(conn, conn.Driver == "sqlite"); err != nil {
			a.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}
	a.store = gormrepository.New(conn.Gorm)

	a.chain, err = newChainClient(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if !a.chain.HasAuthority() {
		logger.Warn("solana authority key not configured, rewards will fail")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(a.registry)
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		a.redis = lock.NewRedisLocker(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.redis.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, using in-process period lock", zap.Error(err))
			_ = a.redis.Close()
			a.redis = nil
		} else {
			locker = a.redis
		}
	}

	a.selector = &service.WinnerSelector{
		Repo:           a.store,
		Logger:         logger.Named("selector"),
		Metrics:        m,
		Strategy:       cfg.Selection.Strategy,
		MaxConcurrency: cfg.Selection.MaxConcurrency,
	}
	a.processor = &service.PeriodProcessor{
		Selector:     a.selector,
		Issuer:       a.chain,
		Repo:         a.store,
		Locker:       locker,
		Metrics:      m,
		Logger:       logger.Named("processor"),
		IssueTimeout: cfg.Solana.Timeout,
		LockTTL:      cfg.Jobs.LockTTL,
	}
	if url := strings.TrimSpace(cfg.Notify.WebhookURL); url != "" {
		a.processor.Notifier = notify.NewWebhookNotifier(url, cfg.Notify.Timeout, logger.Named("notify"))
	}
	a.stats = &service.StatsService{
		Repo:     a.store,
		Selector: a.selector,
		Config: service.ConfigStatus{
			CronSecretConfigured: cfg.Jobs.CronSecret != "",
			SolanaConfigured:     cfg.Solana.ProgramID != "" && a.chain.HasAuthority(),
			TimeZone:             cfg.DB.Timezone,
		},
	}
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = db.Close(a.db)
	}
}
