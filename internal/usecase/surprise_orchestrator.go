package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/domain/service"
	"MarketPulse/pkg/logger"
)

// ErrMissingData is wrapped by the error returned when a print lacks
// actual or forecast.
var ErrMissingData = errors.New("actual and forecast are required")

// Transition is reported to hooks on every state change.
type Transition struct {
	ID       models.NewsIdentity
	From     models.AnalysisState
	To       models.AnalysisState
	Reason   string
	Analysis *models.SurpriseAnalysis
	At       time.Time
}

type TransitionHook func(Transition)

// Entry is a read-only view of one identity's analysis state.
type Entry struct {
	State     models.AnalysisState     `json:"state"`
	Analysis  *models.SurpriseAnalysis `json:"analysis,omitempty"`
	Reason    string                   `json:"reason,omitempty"`
	UpdatedAt time.Time                `json:"updatedAt"`
}

// Flight is one in-progress or completed analysis. Every caller asking
// for the same identity while it runs shares the flight.
type Flight struct {
	id       models.NewsIdentity
	done     chan struct{}
	analysis *models.SurpriseAnalysis
	err      error
}

func newFlight(id models.NewsIdentity) *Flight {
	return &Flight{id: id, done: make(chan struct{})}
}

func completedFlight(id models.NewsIdentity, a *models.SurpriseAnalysis, err error) *Flight {
	f := newFlight(id)
	f.finish(a, err)
	return f
}

func (f *Flight) finish(a *models.SurpriseAnalysis, err error) {
	f.analysis, f.err = a, err
	close(f.done)
}

// Done is closed when the flight completes.
func (f *Flight) Done() <-chan struct{} { return f.done }

// Wait blocks until the flight completes or ctx ends. Abandoning the wait
// does not cancel the analysis.
func (f *Flight) Wait(ctx context.Context) (*models.SurpriseAnalysis, error) {
	select {
	case <-f.done:
		if f.err != nil {
			return nil, f.err
		}
		a := *f.analysis
		return &a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type analysisEntry struct {
	state    models.AnalysisState
	analysis *models.SurpriseAnalysis
	reason   string
	updated  time.Time
	flight   *Flight
}

type OrchestratorOptions struct {
	// Timeout bounds one analysis including the store lookups.
	Timeout time.Duration
}

// SurpriseOrchestrator runs AI surprise analysis with at most one flight
// per identity. Analyzed is terminal; Failed only moves on Retry.
type SurpriseOrchestrator struct {
	classifier service.SurpriseClassifier
	store      domrepo.AnalysisStore
	metrics    domrepo.Metrics
	log        *logger.Logger
	timeout    time.Duration
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[models.NewsIdentity]*analysisEntry
	hooks   []TransitionHook
}

func NewSurpriseOrchestrator(
	classifier service.SurpriseClassifier,
	store domrepo.AnalysisStore,
	metrics domrepo.Metrics,
	opts OrchestratorOptions,
	log *logger.Logger,
) *SurpriseOrchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SurpriseOrchestrator{
		classifier: classifier,
		store:      store,
		metrics:    metrics,
		log:        log.Component("surprise"),
		timeout:    opts.Timeout,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		entries:    make(map[models.NewsIdentity]*analysisEntry),
	}
}

// OnTransition registers a hook. Hooks run synchronously outside the
// orchestrator lock and must not block.
func (o *SurpriseOrchestrator) OnTransition(h TransitionHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, h)
}

// Request starts an analysis or joins the running one.
func (o *SurpriseOrchestrator) Request(item models.NewsItem) (*Flight, error) {
	return o.start(item, false)
}

// Retry is Request that also restarts a Failed identity.
func (o *SurpriseOrchestrator) Retry(item models.NewsItem) (*Flight, error) {
	return o.start(item, true)
}

// Analyze requests (or retries) and waits for the verdict.
func (o *SurpriseOrchestrator) Analyze(ctx context.Context, item models.NewsItem, retry bool) (*models.SurpriseAnalysis, error) {
	f, err := o.start(item, retry)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

func (o *SurpriseOrchestrator) start(item models.NewsItem, retry bool) (*Flight, error) {
	if !item.EconomicData.HasSurpriseInputs() {
		return nil, models.NewSourceError(models.KindMissingData, "analysis", "", ErrMissingData)
	}
	id := item.Identity()

	o.mu.Lock()
	e, ok := o.entries[id]
	if !ok {
		e = &analysisEntry{state: models.StateUnanalyzed}
		o.entries[id] = e
	}

	switch e.state {
	case models.StateAnalyzing:
		f := e.flight
		o.mu.Unlock()
		return f, nil
	case models.StateAnalyzed:
		a := *e.analysis
		a.Cached = true
		o.mu.Unlock()
		return completedFlight(id, &a, nil), nil
	case models.StateFailed:
		if !retry {
			err := failedError(e.reason)
			o.mu.Unlock()
			return completedFlight(id, nil, err), nil
		}
	}

	f := newFlight(id)
	t := o.transitionLocked(id, e, models.StateAnalyzing, "", nil)
	e.flight = f
	hooks := o.hooks
	o.mu.Unlock()

	o.fire(hooks, t)

	o.wg.Add(1)
	go o.run(item.Clone(), f)
	return f, nil
}

func (o *SurpriseOrchestrator) run(item models.NewsItem, f *Flight) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(o.ctx, o.timeout)
	defer cancel()

	id := item.Identity()
	start := o.now()

	if a := o.hydrate(ctx, id); a != nil {
		a.Cached = true
		o.record("hydrated", start)
		o.complete(f, a, nil)
		return
	}

	result, err := o.classifier.Classify(ctx, item)
	if err == nil && (!result.Verdict.Valid() || result.Verdict == models.VerdictError) {
		err = models.NewSourceError(models.KindAIServiceError, o.classifier.Name(), "model returned an error verdict", nil)
	}
	if err != nil {
		o.record("failed", start)
		o.complete(f, nil, err)
		return
	}

	if result.AnalyzedAt.IsZero() {
		result.AnalyzedAt = o.now().UTC()
	}
	result.Cached = false
	if o.store != nil {
		if err := o.store.Put(ctx, id, result); err != nil {
			o.log.Warn("analysis not persisted", logger.String("id", id.String()), logger.Error(err))
		}
	}
	o.record("analyzed", start)
	o.complete(f, &result, nil)
}

func (o *SurpriseOrchestrator) hydrate(ctx context.Context, id models.NewsIdentity) *models.SurpriseAnalysis {
	if o.store == nil {
		return nil
	}
	a, err := o.store.Get(ctx, id)
	if err != nil {
		o.log.Warn("analysis store read failed", logger.String("id", id.String()), logger.Error(err))
		return nil
	}
	return a
}

func (o *SurpriseOrchestrator) complete(f *Flight, a *models.SurpriseAnalysis, err error) {
	o.mu.Lock()
	e := o.entries[f.id]
	var t Transition
	if err != nil {
		reason := FailureReason(err)
		t = o.transitionLocked(f.id, e, models.StateFailed, reason, nil)
		err = failedError(reason, err)
	} else {
		stored := *a
		t = o.transitionLocked(f.id, e, models.StateAnalyzed, "", &stored)
	}
	e.flight = nil
	hooks := o.hooks
	o.mu.Unlock()

	if err != nil {
		o.log.Warn("analysis failed", logger.String("id", f.id.String()), logger.String("reason", t.Reason))
	}
	o.fire(hooks, t)
	f.finish(a, err)
}

func (o *SurpriseOrchestrator) transitionLocked(id models.NewsIdentity, e *analysisEntry, to models.AnalysisState, reason string, a *models.SurpriseAnalysis) Transition {
	from := e.state
	e.state = to
	e.reason = reason
	e.updated = o.now().UTC()
	if a != nil {
		e.analysis = a
	}
	if o.metrics != nil {
		o.metrics.RecordAnalysisTransition(from, to)
	}
	return Transition{ID: id, From: from, To: to, Reason: reason, Analysis: a, At: e.updated}
}

func (o *SurpriseOrchestrator) fire(hooks []TransitionHook, t Transition) {
	for _, h := range hooks {
		h(t)
	}
}

func (o *SurpriseOrchestrator) record(outcome string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordAnalysis(outcome, o.now().Sub(start).Seconds())
	}
}

// State returns the state of id; unknown identities are Unanalyzed.
func (o *SurpriseOrchestrator) State(id models.NewsIdentity) models.AnalysisState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if e, ok := o.entries[id]; ok {
		return e.state
	}
	return models.StateUnanalyzed
}

// Lookup returns a copy of id's entry.
func (o *SurpriseOrchestrator) Lookup(id models.NewsIdentity) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if !ok {
		return Entry{}, false
	}
	out := Entry{State: e.state, Reason: e.reason, UpdatedAt: e.updated}
	if e.analysis != nil {
		a := *e.analysis
		a.Cached = true
		out.Analysis = &a
	}
	return out, true
}

// Prune forgets Failed entries, and Analyzed entries that are safe in the
// store, last updated before cutoff.
func (o *SurpriseOrchestrator) Prune(cutoff time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, e := range o.entries {
		if !e.updated.Before(cutoff) {
			continue
		}
		if e.state == models.StateFailed || e.state == models.StateAnalyzed && o.store != nil {
			delete(o.entries, id)
			n++
		}
	}
	return n
}

// Close cancels running analyses and waits for them.
func (o *SurpriseOrchestrator) Close() {
	o.cancel()
	o.wg.Wait()
}

// FailureReason renders err for the user.
func FailureReason(err error) string {
	switch models.KindOf(err) {
	case models.KindTimeout:
		return "AI service timed out"
	case models.KindParseError:
		return "AI response could not be read"
	case models.KindUpstreamUnavailable, models.KindAIServiceError:
		var se *models.SourceError
		if errors.As(err, &se) && se.Reason != "" {
			return se.Reason
		}
		return "AI service unavailable"
	}
	if errors.Is(err, context.Canceled) {
		return "analysis cancelled"
	}
	return "analysis failed"
}

func failedError(reason string, cause ...error) error {
	var err error
	if len(cause) > 0 {
		err = cause[0]
	}
	return models.NewSourceError(models.KindAIServiceError, "analysis", reason, err)
}
