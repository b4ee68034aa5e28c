package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/handler/stream"
	"MarketPulse/internal/scheduler"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgch "MarketPulse/pkg/clickhouse"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/queue"

	"github.com/google/uuid"
)

// Components are the long-running parts the App starts and stops. Queue
// and Producer are nil when their feature is disabled.
type Components struct {
	Scheduler    *scheduler.Scheduler
	Orchestrator *usecase.SurpriseOrchestrator
	Queue        *queue.RedisQueue
	Publisher    domrepo.EventPublisher
	// Producer carries the aggregated error logs.
	Producer     *pkgkafka.Producer
	History      domrepo.HistoryStore
	ClickHouse   *pkgch.Client
	Cache        cache.Service
	Hub          *stream.Hub
	HTTP         *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger
	c   Components

	events sync.WaitGroup
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, log *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, log: log.Component("app"), c: c}
}

// Run starts the application and blocks until interrupted or the HTTP
// listener fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case runErr = <-a.c.HTTP.Errors():
		a.log.Error("http listener failed", applogger.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	a.Shutdown(shutdownCtx)
	return runErr
}

// Start wires the event hooks and launches every component.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	a.c.Scheduler.OnSwap(a.c.Hub.Publish)
	a.c.Scheduler.OnSwap(a.onSwap)
	a.c.Orchestrator.OnTransition(a.onTransition)

	if a.c.Queue != nil {
		a.c.Queue.RegisterJob(usecase.NewAnalysisJob(a.c.Orchestrator, a.log))
		if err := a.c.Queue.Start(); err != nil {
			return err
		}
		a.log.Info("analysis queue started", applogger.Int("workers", a.cfg.Analysis.Workers))
	}

	a.c.Scheduler.Start(ctx)

	go a.pruneLoop(ctx)

	if err := a.c.HTTP.Start(); err != nil {
		return err
	}
	a.log.Info("marketpulse started", applogger.Int("port", a.cfg.Server.Port))
	return nil
}

// pruneLoop forgets old analysis entries; Analyzed ones stay in the store.
func (a *App) pruneLoop(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-a.cfg.Refresh.NewsRetention)
			if n := a.c.Orchestrator.Prune(cutoff); n > 0 {
				a.log.Debug("analysis entries pruned", applogger.Int("count", n))
			}
		}
	}
}

func (a *App) onSwap(ev scheduler.SwapEvent) {
	a.publish(models.SignalEvent{
		ID:         uuid.NewString(),
		Type:       models.SignalSnapshotSwapped,
		Family:     ev.Family,
		CycleID:    ev.CycleID,
		OccurredAt: ev.LastUpdated,
		Payload:    ev,
	})
}

func (a *App) onTransition(t usecase.Transition) {
	if t.To != models.StateAnalyzed && t.To != models.StateFailed {
		return
	}
	a.log.Info("surprise analysis settled",
		applogger.String("id", t.ID.String()),
		applogger.String("state", string(t.To)),
		applogger.String("reason", t.Reason),
	)
	a.publish(models.SignalEvent{
		ID:         uuid.NewString(),
		Type:       models.SignalSurpriseScored,
		Family:     scheduler.FamilyNews,
		OccurredAt: t.At,
		Payload: map[string]interface{}{
			"headline":  t.ID.Headline,
			"timestamp": t.ID.Timestamp,
			"state":     t.To,
			"reason":    t.Reason,
			"analysis":  t.Analysis,
		},
	})
}

// publish ships ev off the caller's goroutine; hooks must not block.
func (a *App) publish(ev models.SignalEvent) {
	a.events.Add(1)
	go func() {
		defer a.events.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.c.Publisher.Publish(ctx, ev); err != nil {
			a.log.Warn("signal event not published", applogger.String("type", ev.Type), applogger.Error(err))
		}
	}()
}

// Shutdown stops components in reverse start order.
func (a *App) Shutdown(ctx context.Context) {
	a.log.Info("shutting down")

	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	a.c.Hub.Close()

	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	if err := a.c.Scheduler.Stop(ctx); err != nil {
		a.log.Warn("scheduler stop error", applogger.Error(err))
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}
	a.c.Orchestrator.Close()

	a.events.Wait()
	// Flush aggregated error logs while the producer is still open. The
	// publisher owns the producer.
	if a.c.Producer != nil {
		a.log.RemoveCollector()
	}

	if err := a.c.Publisher.Close(); err != nil {
		a.log.Warn("publisher close error", applogger.Error(err))
	}
	if err := a.c.History.Close(); err != nil {
		a.log.Warn("history store close error", applogger.Error(err))
	}
	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if a.c.Cache != nil {
		_ = a.c.Cache.Close()
	}

	a.log.Info("shutdown complete")
}
