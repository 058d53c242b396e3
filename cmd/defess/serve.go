package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cronrunner "github.com/lalitcap23/defess-v3/internal/cron"
	"github.com/lalitcap23/defess-v3/internal/handler"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the optional in-process schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("startup failed", zap.Error(err))
				return err
			}
			defer a.Close()

			if strings.EqualFold(cfg.App.Env, "dev") {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			engine := gin.New()
			engine.Use(gin.Recovery())
			engine.Use(handler.RequestLogger(logger.Named("http")))
			engine.Use(handler.CORSMiddleware())

			health := &handler.HealthHandler{DB: a.store}
			if a.registry != nil {
				health.Gatherer = a.registry
			}
			health.Register(engine)
			(&handler.JobsHandler{Processor: a.processor, CronSecret: cfg.Jobs.CronSecret}).Register(engine)
			(&handler.AdminHandler{
				Stats:      a.stats,
				Processor:  a.processor,
				Chain:      a.chain,
				CronSecret: cfg.Jobs.CronSecret,
				Logger:     logger.Named("admin"),
			}).Register(engine)

			srv := &http.Server{
				Addr:              cfg.Server.HTTPAddr,
				Handler:           engine,
				ReadHeaderTimeout: 10 * time.Second,
			}

			var runner *cronrunner.Runner
			if cfg.Cron.Enabled {
				runner = cronrunner.New(logger.Named("cron"), ctx)
				_, err := runner.Add("process-period", cfg.Cron.ProcessPeriod, func(ctx context.Context) {
					a.processor.ProcessPreviousPeriod(ctx)
				})
				if err != nil {
					logger.Error("invalid cron spec", zap.String("spec", cfg.Cron.ProcessPeriod), zap.Error(err))
					return err
				}
				runner.Start()
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.String("addr", cfg.Server.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					logger.Error("http server failed", zap.Error(err))
					return err
				}
			}

			if runner != nil {
				runner.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown failed", zap.Error(err))
			}
			logger.Info("stopped")
			return nil
		},
	}
}
