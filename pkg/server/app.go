package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinGuard/internal/scheduler"
	"FinGuard/internal/service/alerting"
	"FinGuard/internal/usecase"
	"FinGuard/pkg/config"
	xhttp "FinGuard/pkg/http"
	pkgkafka "FinGuard/pkg/kafka"
	applogger "FinGuard/pkg/logger"
)

// IngestHandler is a Kafka handler that also classifies bad input before
// the handler runs.
type IngestHandler interface {
	pkgkafka.MessageHandler
	Hook() pkgkafka.HookFuncs
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	httpServer *xhttp.Server
	runner     *scheduler.Runner
	consumer   *pkgkafka.Consumer
	ingest     IngestHandler
	alerts     *usecase.AlertDispatcher
	hub        *alerting.Hub
	ledger     *usecase.Ledger
}

// New creates a new App. runner and consumer may be nil when disabled.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	runner *scheduler.Runner,
	consumer *pkgkafka.Consumer,
	ingest IngestHandler,
	alerts *usecase.AlertDispatcher,
	hub *alerting.Hub,
	ledger *usecase.Ledger,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		httpServer: httpServer,
		runner:     runner,
		consumer:   consumer,
		ingest:     ingest,
		alerts:     alerts,
		hub:        hub,
		ledger:     ledger,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.runner != nil {
		a.runner.Start()
	}

	if a.consumer != nil && a.ingest != nil {
		a.consumer.RegisterHandler(a.ingest)
		a.consumer.WithConsumerHook(a.ingest.Hook())
		if err := a.consumer.Start(ctx); err != nil {
			a.l.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.l.Info("prediction ingest started", applogger.String("topic", a.ingest.Topic()))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("finguard started",
		applogger.String("env", a.cfg.Environment),
		applogger.Strings("tickers", a.cfg.Tickers),
		applogger.Bool("ledger_degraded", a.ledger.Degraded()),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first, then drains background work. Infrastructure
// clients are closed by the DI cleanup.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	if a.runner != nil {
		a.runner.Stop()
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.alerts.Flush()
	a.hub.Close()
	a.ledger.Wait()

	a.l.Info("shutdown complete")
	return nil
}
