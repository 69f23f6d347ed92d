//go:build wireinject
// +build wireinject

package di

import (
	"SMCScan/pkg/config"
	"SMCScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideCache,
		ProvidePostgres,

		// Repositories and upstream sources
		ProvideBarStore,
		ProvideSetupStore,
		ProvideBinanceClient,
		ProvideBarSource,
		ProvideContextSource,
		ProvideDepthSource,
		ProvideScorer,
		ProvideSetupSink,
		ProvideOutcomeStore,

		// Alerts
		ProvideSizer,
		ProvideAlertQueue,
		ProvideNotifier,

		// Use cases
		ProvideScanUseCase,
		ProvideScanScheduler,
		ProvideBacktestUseCase,
		ProvideBarsUseCase,
		ProvideBarProcessor,
		ProvideBarCollector,
		ProvideKafkaBarsHandler,

		// Application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
