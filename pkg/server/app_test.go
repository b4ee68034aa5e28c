package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/scheduler"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/config"
	"MarketPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []models.SignalEvent
}

func (p *capturePublisher) Publish(_ context.Context, ev models.SignalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestSwapAndSettledTransitionsArePublished(t *testing.T) {
	pub := &capturePublisher{}
	app := New(&config.Config{}, logger.Nop(), Components{Publisher: pub})

	at := time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)
	app.onSwap(scheduler.SwapEvent{Family: scheduler.FamilyRates, CycleID: "c-1", LastUpdated: at})

	id := models.NewsIdentity{Headline: "NFP", Timestamp: at}
	app.onTransition(usecase.Transition{ID: id, From: models.StateUnanalyzed, To: models.StateAnalyzing, At: at})
	app.onTransition(usecase.Transition{ID: id, From: models.StateAnalyzing, To: models.StateFailed, Reason: "AI service timed out", At: at})
	app.events.Wait()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.events, 2)

	byType := map[string]models.SignalEvent{}
	for _, ev := range pub.events {
		assert.NotEmpty(t, ev.ID)
		byType[ev.Type] = ev
	}

	swap := byType[models.SignalSnapshotSwapped]
	assert.Equal(t, scheduler.FamilyRates, swap.Family)
	assert.Equal(t, "c-1", swap.CycleID)

	scored := byType[models.SignalSurpriseScored]
	payload := scored.Payload.(map[string]interface{})
	assert.Equal(t, models.StateFailed, payload["state"])
	assert.Equal(t, "AI service timed out", payload["reason"])
}
