// Package collector maps a research strategy and target onto the collector
// registered for the target's marketplace.
package collector

import (
	"fmt"
	"strings"
	"sync"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// Constructor builds a collector for one product url.
type Constructor func(url string) research.Collector

// Selector is an explicit marketplace to constructor registry. It
// implements research.CollectorSelector.
type Selector struct {
	registry *research.Registry

	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewSelector creates an empty selector resolving names and urls through registry.
func NewSelector(registry *research.Registry) *Selector {
	if registry == nil {
		registry = research.DefaultRegistry()
	}
	return &Selector{
		registry:     registry,
		constructors: make(map[string]Constructor),
	}
}

// Register binds the web-scraping collector of marketplace, replacing any previous one.
func (s *Selector) Register(marketplace string, c Constructor) error {
	m, ok := s.registry.Lookup(marketplace)
	if !ok {
		return fmt.Errorf("%w: %s", research.ErrUnsupportedMarketplace, marketplace)
	}
	if c == nil {
		return fmt.Errorf("constructor for %s is nil", m.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.constructors[m.Name] = c
	return nil
}

// Marketplaces lists the marketplaces with a registered collector, in registry order.
func (s *Selector) Marketplaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, m := range s.registry.All() {
		if _, ok := s.constructors[m.Name]; ok {
			out = append(out, m.Name)
		}
	}
	return out
}

// Select returns the collector for url, or for marketplace when url is empty
// or matches no known marketplace.
func (s *Selector) Select(strategy research.Strategy, url, marketplace string) (research.Collector, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("%w: %d", research.ErrInvalidStrategy, int(strategy))
	}
	if strategy != research.StrategyWebScraping {
		return nil, fmt.Errorf("%w: %s", research.ErrUnsupportedStrategy, strategy)
	}

	m, ok := s.resolve(url, marketplace)
	if !ok {
		return nil, fmt.Errorf("%w: url %q marketplace %q", research.ErrUnsupportedMarketplace, url, marketplace)
	}
	s.mu.RLock()
	constructor, ok := s.constructors[m.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no collector registered for %s", research.ErrUnsupportedMarketplace, m.Name)
	}
	return constructor(strings.TrimSpace(url)), nil
}

func (s *Selector) resolve(url, marketplace string) (research.Marketplace, bool) {
	if strings.TrimSpace(url) != "" {
		if m, ok := s.registry.Match(url); ok {
			return m, true
		}
	}
	return s.registry.Lookup(marketplace)
}
