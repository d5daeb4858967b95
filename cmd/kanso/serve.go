package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	adapterHTTP "github.com/comitanigiacomo/kanso-streak-engine/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/services"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the streak worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func runServe(parent context.Context, root *rootOptions) error {
	startTime := time.Now()
	cfg, logger := root.cfg, root.logger

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := newEngine(ctx, cfg, logger, root.Memory, nil)
	if err != nil {
		return err
	}
	defer e.Close()

	if !root.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := adapterHTTP.NewRouter(adapterHTTP.RouterDependencies{
		HabitHandler:      adapterHTTP.NewHabitHandler(e.habitSvc, logger),
		CompletionHandler: adapterHTTP.NewCompletionHandler(e.completionSvc, logger),
		FreezeHandler:     adapterHTTP.NewFreezeHandler(e.freezeSvc, logger),
		StatusHandler:     adapterHTTP.NewStatusHandler(e.statusSvc, logger),
		TokenService:      services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		DB:                e.db,
		Redis:             e.rdb,
		RateLimit:         cfg.HTTP.RateLimit,
		RateWindow:        cfg.HTTP.RateWindow,
		StartTime:         startTime,
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	e.worker.Start(workerCtx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("kanso streak engine listening", zap.String("addr", srv.Addr), zap.Stringer("timezone", e.loc))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("stop signal received, shutting down")
	case err := <-serveErr:
		if err != nil {
			stopWorker()
			<-e.worker.Done()
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}

	stopWorker()
	<-e.worker.Done()

	logger.Info("server stopped gracefully", zap.Int64("dropped_jobs", e.worker.Dropped()))
	return nil
}
