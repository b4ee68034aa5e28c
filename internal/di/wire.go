//go:build wireinject
// +build wireinject

package di

import (
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideHistoryStore,
		ProvideEventPublisher,
		ProvideAnalysisStore,
		ProvideQueue,

		// Services
		ProvideClassifier,
		ProvideNormalizer,

		// Use cases
		ProvideOrchestrator,
		ProvideNewsFeed,
		ProvideCurrencyStrength,
		ProvideRateProbabilities,
		ProvideCalendar,

		// Refresh
		ProvideScheduler,
		ProvideSnapshots,

		// Transport
		ProvideSignalsHandler,
		ProvideStreamHub,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
