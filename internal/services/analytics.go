package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"commerce-insights/internal/models"
	"commerce-insights/internal/observability"
	"commerce-insights/internal/storage"
)

var (
	// ErrNotLoaded is returned by every read until a load succeeds. When a load
	// has failed it wraps that failure.
	ErrNotLoaded = errors.New("fact store not loaded")

	ErrInvalidFilter = errors.New("invalid filter value")
)

type AnalyticsOptions struct {
	Engine    []Option
	Selection storage.SelectionStore
	// Cache is optional; nil disables the normalized fact cache.
	Cache  *FactCache
	Logger *slog.Logger
}

// Analytics is the dashboard session: one fact store, the current filter
// state and the snapshot derived from both. Filter changes are serialized;
// each runs apply, reconcile and aggregate to completion before the next.
type Analytics struct {
	mu       sync.RWMutex
	engine   *Engine
	filters  models.Filters
	snapshot models.Snapshot
	source   string
	loadErr  error

	engineOpts []Option
	selection  storage.SelectionStore
	cache      *FactCache
	logger     *slog.Logger

	cycles atomic.Int64
	resets atomic.Int64
}

func NewAnalytics(opts AnalyticsOptions) *Analytics {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	selection := opts.Selection
	if selection == nil {
		selection = storage.NewMemorySelectionStore()
	}
	return &Analytics{
		engineOpts: opts.Engine,
		selection:  selection,
		cache:      opts.Cache,
		logger:     logger,
	}
}

// LoadFromFile builds the fact store from a JSON payload file. A failure
// leaves the session in a load-error state until a later load succeeds.
func (a *Analytics) LoadFromFile(ctx context.Context, path string) error {
	ctx, span := observability.StartSpan(ctx, "analytics.load")
	span.SetTag("source", path)
	defer span.End(a.logger)

	if a.cache != nil {
		if facts, ok := a.cache.Load(path); ok {
			a.logger.Info("loaded facts from cache", "source", path, "records", len(facts))
			observability.RecordLoad("cache", len(facts))
			return a.install(ctx, facts, path)
		}
	}

	start := time.Now()
	a.logger.Info("processing payload", "source", path)

	facts, skipped, err := a.readFile(ctx, path)
	if err != nil {
		span.SetError(err)
		a.fail(err)
		return err
	}

	if a.cache != nil {
		if err := a.cache.Save(path, facts); err != nil {
			a.logger.Warn("failed to save cache", "error", err)
		}
	}

	duration := time.Since(start)
	a.logger.Info("payload processing complete",
		"records", len(facts),
		"skipped", skipped,
		"duration", duration,
		"rate", fmt.Sprintf("%.0f records/sec", float64(len(facts))/max(duration.Seconds(), 1e-9)))
	observability.RecordLoad("ok", len(facts))

	return a.install(ctx, facts, path)
}

func (a *Analytics) readFile(ctx context.Context, path string) ([]models.Fact, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open payload: %v", ErrLoad, err)
	}
	defer file.Close()

	return LoadPayload(ctx, file)
}

// SetFacts installs an already normalized fact set.
func (a *Analytics) SetFacts(ctx context.Context, facts []models.Fact) error {
	if len(facts) == 0 {
		err := fmt.Errorf("%w: no valid records found", ErrLoad)
		a.fail(err)
		return err
	}
	observability.RecordLoad("ok", len(facts))
	return a.install(ctx, facts, "memory")
}

func (a *Analytics) fail(err error) {
	observability.RecordLoad("error", 0)
	a.logger.Error("fact store load failed", "error", err)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine = nil
	a.snapshot = models.Snapshot{}
	a.loadErr = err
}

// install swaps in a new store and restores the saved selection, dropping
// any part of it the new data cannot reach.
func (a *Analytics) install(ctx context.Context, facts []models.Fact, source string) error {
	engine := NewEngine(NewFactStore(facts), a.engineOpts...)

	restored, ok, err := a.selection.Load(ctx)
	if err != nil {
		a.logger.Warn("failed to restore selection", "error", err)
	}
	if !ok || err != nil {
		restored = models.Filters{}
	}

	filters, reset := Reconcile(engine.Store(), restored, nil, engine.ScanLimit())
	if len(reset) > 0 {
		a.logger.Info("restored selection adjusted", "reset", reset)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine = engine
	a.source = source
	a.loadErr = nil
	a.filters = filters
	a.snapshot = engine.Compute(filters)
	return nil
}

func (a *Analytics) notLoaded() error {
	if a.loadErr != nil {
		return fmt.Errorf("%w: %w", ErrNotLoaded, a.loadErr)
	}
	return ErrNotLoaded
}

// Select applies a partial filter update, reconciles the other dimensions
// and recomputes the snapshot. It returns the dimensions the guard reset.
func (a *Analytics) Select(ctx context.Context, update models.FilterUpdate) (models.Snapshot, []models.Dimension, error) {
	return a.SelectWith(ctx, func(models.Filters) models.FilterUpdate { return update })
}

// SelectWith is Select with the update derived from the current filters.
// build runs under the session lock, so the update cannot be computed
// against a selection another cycle has already replaced.
func (a *Analytics) SelectWith(ctx context.Context, build func(current models.Filters) models.FilterUpdate) (models.Snapshot, []models.Dimension, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine == nil {
		return models.Snapshot{}, nil, a.notLoaded()
	}
	update := build(a.filters)

	ctx, span := observability.StartSpan(ctx, "analytics.select")
	defer func() {
		observability.ObserveCycle("select", span.End(a.logger))
	}()

	next, touched, err := a.filters.Apply(update)
	if err != nil {
		span.SetError(err)
		return models.Snapshot{}, nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	next, reset := Reconcile(a.engine.Store(), next, touched, a.engine.ScanLimit())
	for _, d := range reset {
		observability.RecordGuardReset(string(d))
	}
	if len(reset) > 0 {
		a.resets.Add(int64(len(reset)))
		a.logger.Info("filters reset by consistency guard", "reset", reset, "filters", next)
	}

	a.commit(ctx, next)
	return a.snapshot, reset, nil
}

// Reset restores every dimension to wildcard.
func (a *Analytics) Reset(ctx context.Context) (models.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.engine == nil {
		return models.Snapshot{}, a.notLoaded()
	}

	ctx, span := observability.StartSpan(ctx, "analytics.reset")
	defer func() {
		observability.ObserveCycle("reset", span.End(a.logger))
	}()

	var next models.Filters
	next.Reset()
	a.commit(ctx, next)
	return a.snapshot, nil
}

// commit must be called with mu held.
func (a *Analytics) commit(ctx context.Context, filters models.Filters) {
	a.filters = filters
	a.snapshot = a.engine.Compute(filters)
	a.cycles.Add(1)

	a.logger.Debug("snapshot computed",
		"filters", filters,
		"records", a.snapshot.RecordCount,
		"empty", a.snapshot.Empty,
	)

	if err := a.selection.Save(ctx, filters); err != nil {
		a.logger.Warn("failed to persist selection", "error", err)
	}
}

func (a *Analytics) Snapshot() (models.Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.engine == nil {
		return models.Snapshot{}, a.notLoaded()
	}
	return a.snapshot, nil
}

func (a *Analytics) Filters() (models.Filters, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.engine == nil {
		return models.Filters{}, a.notLoaded()
	}
	return a.filters, nil
}

// Options resolves one dimension against the current filters.
func (a *Analytics) Options(d models.Dimension) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.engine == nil {
		return nil, a.notLoaded()
	}
	return ResolveOptions(a.engine.Store(), a.filters, d, a.engine.ScanLimit())
}

func (a *Analytics) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.engine != nil
}

func (a *Analytics) Close() error {
	return a.selection.Close()
}

// Shutdown saves the final selection and closes the selection store. A
// session that never loaded has nothing to save.
func (a *Analytics) Shutdown(ctx context.Context) error {
	a.mu.RLock()
	loaded, filters := a.engine != nil, a.filters
	a.mu.RUnlock()

	var saveErr error
	if loaded {
		if err := a.selection.Save(ctx, filters); err != nil {
			saveErr = fmt.Errorf("save final selection: %w", err)
		}
	}
	return errors.Join(saveErr, a.Close())
}

// Utility method for monitoring
func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := map[string]any{
		"loaded":       a.engine != nil,
		"cycles":       a.cycles.Load(),
		"guard_resets": a.resets.Load(),
	}
	if a.loadErr != nil {
		stats["load_error"] = a.loadErr.Error()
	}
	if a.engine == nil {
		return stats
	}

	stats["source"] = a.source
	stats["record_count"] = a.engine.Store().Len()
	stats["last_processed"] = a.engine.Store().LoadedAt()
	stats["filters"] = a.filters
	stats["filtered_records"] = a.snapshot.RecordCount
	stats["regions"] = len(a.snapshot.Options.Regions)
	stats["categories"] = len(a.snapshot.Options.Categories)
	return stats
}
