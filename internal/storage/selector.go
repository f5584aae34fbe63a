// Package storage resolves research stores by storage mode.
//
// Backends are registered explicitly at startup; each is built on first use
// and cached until Close.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// Factory builds the Storage for one mode.
type Factory func(ctx context.Context) (research.Storage, error)

type pinger interface {
	Ping(ctx context.Context) error
}

// Selector implements research.StorageSelector over a registry of factories.
type Selector struct {
	mu        sync.Mutex
	factories map[research.StorageMode]Factory
	stores    map[research.StorageMode]research.Storage
	building  map[research.StorageMode]*build
	logger    *zap.Logger
}

// build is one in-flight factory call shared by every caller of the same mode.
type build struct {
	done  chan struct{}
	store research.Storage
	err   error
}

// NewSelector returns an empty Selector.
func NewSelector(logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		factories: make(map[research.StorageMode]Factory),
		stores:    make(map[research.StorageMode]research.Storage),
		building:  make(map[research.StorageMode]*build),
		logger:    logger.Named("storage"),
	}
}

// Register installs the factory for mode, replacing any previous one.
func (s *Selector) Register(mode research.StorageMode, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[mode] = factory
	delete(s.stores, mode)
}

// Select returns the cached Storage for mode, building it on first use.
// Concurrent first calls share one build; the lock is not held while the
// backend connects, and a canceled caller stops waiting without aborting it.
func (s *Selector) Select(ctx context.Context, mode research.StorageMode) (research.Storage, error) {
	s.mu.Lock()
	if store, ok := s.stores[mode]; ok {
		s.mu.Unlock()
		return store, nil
	}
	b, inFlight := s.building[mode]
	if !inFlight {
		factory, ok := s.factories[mode]
		if !ok || factory == nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: %s", research.ErrUnsupportedStorageMode, mode)
		}
		b = &build{done: make(chan struct{})}
		s.building[mode] = b
		go s.run(context.WithoutCancel(ctx), mode, factory, b)
	}
	s.mu.Unlock()

	select {
	case <-b.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("open %s storage: %w", mode, ctx.Err())
	}
	if b.err != nil {
		return nil, fmt.Errorf("open %s storage: %w", mode, b.err)
	}
	return b.store, nil
}

func (s *Selector) run(ctx context.Context, mode research.StorageMode, factory Factory, b *build) {
	defer close(b.done)
	b.store, b.err = factory(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.building, mode)
	if b.err == nil {
		s.stores[mode] = b.store
		s.logger.Info("storage ready", zap.Stringer("mode", mode))
	}
}

// Ping resolves the store for mode and pings it when the backend supports it.
func (s *Selector) Ping(ctx context.Context, mode research.StorageMode) error {
	store, err := s.Select(ctx, mode)
	if err != nil {
		return err
	}
	if p, ok := store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases every store built so far.
func (s *Selector) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for mode, store := range s.stores {
		if c, ok := store.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s storage: %w", mode, err))
			}
		}
		delete(s.stores, mode)
	}
	return errors.Join(errs...)
}
