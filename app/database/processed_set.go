package database

import (
	"context"
	"fmt"
)

// ProcessedSet holds the ids already published, in first-seen order. It is
// mutated in memory and only reaches its store on Persist.
type ProcessedSet struct {
	store Store
	ids   map[string]struct{}
	order []string
}

func NewProcessedSet(store Store) *ProcessedSet {
	return &ProcessedSet{
		store: store,
		ids:   make(map[string]struct{}),
	}
}

// LoadProcessedSet reads the set from store. Missing or empty stores yield an
// empty set; unreadable ones return an error wrapping ErrCorruptCache.
func LoadProcessedSet(ctx context.Context, store Store) (*ProcessedSet, error) {
	ids, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}

	set := NewProcessedSet(store)
	for _, id := range ids {
		set.MarkProcessed(id)
	}
	return set, nil
}

func (s *ProcessedSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *ProcessedSet) MarkProcessed(id string) {
	if id == "" || s.Contains(id) {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

// Clear empties the set in memory; Persist makes it durable.
func (s *ProcessedSet) Clear() {
	s.ids = make(map[string]struct{})
	s.order = nil
}

func (s *ProcessedSet) Len() int {
	return len(s.order)
}

func (s *ProcessedSet) IDs() []string {
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

// Clone returns an independent copy sharing the same store.
func (s *ProcessedSet) Clone() *ProcessedSet {
	clone := NewProcessedSet(s.store)
	for _, id := range s.order {
		clone.MarkProcessed(id)
	}
	return clone
}

func (s *ProcessedSet) Persist(ctx context.Context) error {
	if err := s.store.Save(ctx, s.IDs()); err != nil {
		return fmt.Errorf("failed to persist processed set: %w", err)
	}
	return nil
}
