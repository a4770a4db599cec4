package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/careflowhq/careflow/internal/config"
	"github.com/careflowhq/careflow/internal/controller"
	"github.com/careflowhq/careflow/internal/notify"
	"github.com/careflowhq/careflow/internal/scheduler"
	"github.com/careflowhq/careflow/internal/server/handlers"
	"github.com/careflowhq/careflow/internal/server/router"
	"github.com/careflowhq/careflow/internal/store/local"
	"github.com/careflowhq/careflow/internal/store/remote"
	"github.com/careflowhq/careflow/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New())
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	localStore, err := local.Open(cfg.Local.Path, cfg.Local.CapacityBytes, baseLogger.Named("store.local"))
	if err != nil {
		baseLogger.Fatal("failed to open local store", zap.Error(err))
	}
	defer func() {
		if err := localStore.Close(); err != nil {
			baseLogger.Error("failed to close local store", zap.Error(err))
		}
	}()

	var remoteChannel controller.RemoteChannel
	if cfg.MongoDB.URI != "" {
		channel, err := remote.NewChannel(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName, baseLogger.Named("store.remote"))
		if err != nil {
			baseLogger.Fatal("failed to init remote channel", zap.Error(err))
		}
		defer func() {
			if err := channel.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		remoteChannel = channel
	} else {
		baseLogger.Warn("no mongodb uri configured, remote sync disabled")
	}

	ctrl := controller.New(localStore, remoteChannel, time.Duration(cfg.Sync.DebounceMS)*time.Millisecond, baseLogger.Named("controller"))
	defer ctrl.Shutdown()

	var notifier notify.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Alerts.WebhookURL)
		baseLogger.Info("low-stock alert webhook enabled")
	} else {
		baseLogger.Warn("alert webhook url missing, low-stock alerts disabled")
	}

	dataHandler := handlers.NewDataHandler(ctrl, baseLogger.Named("handlers.data"))
	crudHandler := handlers.NewCrudHandler(ctrl, baseLogger.Named("handlers.crud"))
	engine := router.New(dataHandler, crudHandler, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(*cfg, ctrl, notifier, baseLogger.Named("scheduler"))
	sched.Start()
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
