// Package memory provides an in-process research store for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/pricing-research/internal/research"
)

// Store keeps research snapshots in memory.
type Store struct {
	mu   sync.RWMutex
	rows []research.Snapshot
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Save appends a snapshot.
func (s *Store) Save(_ context.Context, snap research.Snapshot) error {
	if snap.ID == "" {
		return errors.New("snapshot id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == snap.ID {
			return errors.New("snapshot already exists")
		}
	}
	s.rows = append(s.rows, snap.Clone())
	return nil
}

// Retrieve returns copies of the matching snapshots, newest first.
func (s *Store) Retrieve(_ context.Context, criteria research.Criteria) ([]research.Snapshot, error) {
	if _, err := criteria.Columns(true); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]research.Snapshot, 0)
	for _, row := range s.rows {
		if criteria.Matches(row) {
			out = append(out, row.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConductedAt.After(out[j].ConductedAt)
	})
	return out, nil
}

// Update applies changes to every matching snapshot.
func (s *Store) Update(_ context.Context, criteria research.Criteria, changes research.Changes) (int64, error) {
	if _, err := criteria.Columns(false); err != nil {
		return 0, err
	}
	if _, err := changes.Columns(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for i := range s.rows {
		if !criteria.Matches(s.rows[i]) {
			continue
		}
		updated := s.rows[i].Clone()
		if err := changes.Apply(&updated); err != nil {
			return affected, err
		}
		s.rows[i] = updated
		affected++
	}
	return affected, nil
}

// Delete removes every matching snapshot.
func (s *Store) Delete(_ context.Context, criteria research.Criteria) (int64, error) {
	if _, err := criteria.Columns(false); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	var removed int64
	for _, row := range s.rows {
		if criteria.Matches(row) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return removed, nil
}
