//go:build wireinject
// +build wireinject

package di

import (
	"FinGuard/internal/usecase"
	"FinGuard/pkg/config"
	"FinGuard/pkg/server"

	"github.com/google/wire"
)

var monitoringSet = wire.NewSet(
	// Ambient
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideMarketLocation,

	// Infrastructure clients
	ProvideCache,
	ProvideSQLite,
	ProvidePostgres,
	ProvideClickHouseClient,

	// Repositories
	ProvideJournal,
	ProvideLedger,
	ProvideCandleStore,
	ProvideSources,

	// Use cases
	ProvideFetcher,
	ProvideValidator,
	ProvideDriftDetector,
	ProvideAlertHub,
	ProvideAlertDispatcher,
	ProvideMonitoringJobs,
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		monitoringSet,

		ProvidePredictor,
		ProvidePredictionService,
		ProvideHistoryService,
		ProvideScheduler,
		ProvidePredictionIngest,
		ProvideKafkaConsumer,

		// HTTP
		ProvideHealthChecks,
		ProvideHTTPHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeMonitor wires the monitoring jobs for one-shot CLI runs.
func InitializeMonitor(cfg *config.Config) (*usecase.MonitoringJobs, func(), error) {
	wire.Build(monitoringSet)
	return nil, nil, nil
}
