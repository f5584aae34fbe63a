package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/metrics"
)

// Dependencies are the long-lived collaborators shared by every Service.
type Dependencies struct {
	Registry    *Registry
	Collectors  CollectorSelector
	Storages    StorageSelector
	StorageMode StorageMode
	UpdateDelay time.Duration
	Archive     Archiver
	Notifier    Notifier
	Clock       Clock
	IDs         IDGenerator
	Logger      *zap.Logger
}

// Service binds one Record to a collector and, when storing, to a storage backend.
// A Service serves a single request and is not safe for concurrent use.
type Service struct {
	deps        Dependencies
	record      *Record
	strategy    Strategy
	storeResult bool
	storage     Storage
	pages       []RawPage
	collected   bool
	logger      *zap.Logger
}

// NewService creates a Service for record.
func NewService(record *Record, strategy Strategy, storeResult bool, deps Dependencies) *Service {
	if deps.Registry == nil {
		deps.Registry = DefaultRegistry()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:        deps,
		record:      record,
		strategy:    strategy,
		storeResult: storeResult,
		logger:      logger.Named("research"),
	}
}

// Record returns the current research record.
func (s *Service) Record() *Record {
	return s.record
}

// StoreResult reports whether the service persists its research.
func (s *Service) StoreResult() bool {
	return s.storeResult
}

// SetStoreResult toggles persistence.
func (s *Service) SetStoreResult(store bool) {
	s.storeResult = store
}

// Expired reports whether the record is older than the configured update delay.
func (s *Service) Expired() bool {
	return s.record.IsExpired(s.deps.Clock.Now(), s.deps.UpdateDelay)
}

// Conduct runs the collector bound to the record and merges its sellers.
// found is false when the collector succeeded but returned no sellers.
// Collector failures are reported as ErrResearchFailed.
func (s *Service) Conduct(ctx context.Context) (bool, error) {
	collector, err := s.bindCollector()
	if err != nil {
		return false, err
	}
	logger := s.logger.With(
		zap.String("marketplace", s.record.Marketplace),
		zap.String("url", s.record.URL),
	)

	start := time.Now()
	collection, err := runCollector(ctx, collector)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObserveCollection(s.record.Marketplace, "failure", 0, elapsed)
		logger.Error("collection failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return false, fmt.Errorf("%w: %s", ErrResearchFailed, err.Error())
	}

	found := s.record.UpdateFromCollection(collection.Sellers, s.deps.Clock.Now())
	outcome := "success"
	if !found {
		outcome = "empty"
	} else {
		s.pages = collection.Pages
		s.collected = true
	}
	metrics.ObserveCollection(s.record.Marketplace, outcome, len(collection.Sellers), elapsed)
	logger.Info("collection finished",
		zap.Int("sellers", len(collection.Sellers)),
		zap.Duration("elapsed", elapsed),
	)
	return found, nil
}

func (s *Service) bindCollector() (Collector, error) {
	if s.deps.Collectors == nil {
		return nil, fmt.Errorf("%w: no collector selector configured", ErrUnsupportedStrategy)
	}
	if s.record.URL == "" {
		if m, ok := s.deps.Registry.Lookup(s.record.Marketplace); ok && m.RequiresURL {
			return nil, fmt.Errorf("%w: %s research requires a product url", ErrMissingRequiredInput, m.Name)
		}
	}
	collector, err := s.deps.Collectors.Select(s.strategy, s.record.URL, s.record.Marketplace)
	if err != nil {
		return nil, fmt.Errorf("select collector: %w", err)
	}
	return collector, nil
}

func runCollector(ctx context.Context, collector Collector) (collection Collection, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("collector panic: %v", rec)
		}
	}()
	return collector.Execute(ctx)
}

// BindStorage resolves the storage backend for the configured mode.
func (s *Service) BindStorage(ctx context.Context) error {
	if s.storage != nil {
		return nil
	}
	if s.deps.Storages == nil {
		return fmt.Errorf("%w: no storage selector configured", ErrUnsupportedStorageMode)
	}
	storage, err := s.deps.Storages.Select(ctx, s.deps.StorageMode)
	if err != nil {
		return fmt.Errorf("bind storage: %w", err)
	}
	s.storage = storage
	return nil
}

// StoreResearch persists the current record synchronously.
func (s *Service) StoreResearch(ctx context.Context) error {
	return s.PersistTask()(ctx)
}

// PersistTask captures the record as it is now and returns a task that saves
// it, archives the raw pages and publishes a notification. The task is a
// no-op when storing is disabled, no storage is bound, or Conduct has not
// collected any sellers.
func (s *Service) PersistTask() func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !s.storeResult || s.storage == nil {
		return noop
	}
	if !s.collected {
		s.logger.Debug("nothing collected to persist", zap.String("url", s.record.URL))
		return noop
	}

	id, idErr := s.newID()
	snap := s.record.Snapshot(id, s.strategy)
	pages := append([]RawPage(nil), s.pages...)
	storage := s.storage
	archive := s.deps.Archive
	notifier := s.deps.Notifier
	logger := s.logger.With(zap.String("snapshot_id", id), zap.String("marketplace", snap.Marketplace))

	return func(ctx context.Context) error {
		if idErr != nil {
			metrics.ObservePersist("failure")
			return fmt.Errorf("%w: %w", ErrPersistenceFailed, idErr)
		}
		if err := storage.Save(ctx, snap); err != nil {
			metrics.ObservePersist("failure")
			return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
		}
		metrics.ObservePersist("success")
		logger.Info("research stored", zap.Int("sellers", len(snap.Sellers)))

		if archive != nil && len(pages) > 0 {
			if err := archive.Archive(ctx, snap, pages); err != nil {
				logger.Warn("archive raw pages failed", zap.Error(err))
			}
		}
		if notifier != nil {
			if err := notifier.Notify(ctx, snap); err != nil {
				logger.Warn("publish research notification failed", zap.Error(err))
			}
		}
		return nil
	}
}

func (s *Service) newID() (string, error) {
	if s.deps.IDs == nil {
		return "", fmt.Errorf("no id generator configured")
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("snapshot id: %w", err)
	}
	return id, nil
}

// Retrieve loads the most recent stored snapshot for the record and replaces
// the in-memory record with it. found is false when nothing is stored.
func (s *Service) Retrieve(ctx context.Context) (bool, error) {
	if err := s.BindStorage(ctx); err != nil {
		return false, err
	}
	criteria := s.criteria()
	rows, err := s.storage.Retrieve(ctx, criteria)
	if err != nil {
		return false, fmt.Errorf("retrieve research: %w", err)
	}
	if len(rows) == 0 {
		metrics.ObserveCacheLookup("miss")
		if s.record.URL == "" {
			if m, ok := s.deps.Registry.Lookup(s.record.Marketplace); ok && m.RequiresURL {
				return false, fmt.Errorf(
					"%w: Product URL is required for %s when no research is stored",
					ErrMissingRequiredInput, m.Name,
				)
			}
		}
		return false, nil
	}

	s.record = RecordFromSnapshot(rows[0])
	if s.Expired() {
		metrics.ObserveCacheLookup("stale")
	} else {
		metrics.ObserveCacheLookup("hit")
	}
	return true, nil
}

func (s *Service) criteria() Criteria {
	if s.record.URL != "" {
		return Criteria{"url": s.record.URL}
	}
	return Criteria{
		"marketplace":    s.record.Marketplace,
		"marketplace_id": s.record.MarketplaceID,
	}
}

// SystemClock reads the wall clock in UTC. It is the default Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
