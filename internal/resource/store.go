// Package resource implements the read-only backend resource services
// (users, orders, payments).
//
// Each service owns a Store built once at startup from its seed data and
// injected into the HTTP handlers. Stores never change after
// construction, so handlers share them without locking.
package resource

import (
	"fmt"

	"github.com/vyrodovalexey/avabff/internal/model"
	"github.com/vyrodovalexey/avabff/internal/util"
)

// Store is an immutable, id-indexed set of records.
type Store[T model.Keyed] struct {
	items []T
	byID  map[int]int
}

// NewStore validates records and builds a store. Records keep their
// given order; duplicate ids are rejected.
func NewStore[T model.Keyed](records []T) (*Store[T], error) {
	s := &Store[T]{
		items: make([]T, 0, len(records)),
		byID:  make(map[int]int, len(records)),
	}

	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[r.Key()]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", model.ErrInvalidRecord, r.Key())
		}
		s.byID[r.Key()] = len(s.items)
		s.items = append(s.items, r)
	}

	return s, nil
}

// List returns every record.
func (s *Store[T]) List() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the record with id, or an error wrapping util.ErrNotFound.
func (s *Store[T]) Get(id int) (T, error) {
	i, ok := s.byID[id]
	if !ok {
		var zero T
		return zero, fmt.Errorf("record %d: %w", id, util.ErrNotFound)
	}
	return s.items[i], nil
}

// Filter returns the records for which keep reports true. The result is
// never nil so it encodes as an empty JSON array.
func (s *Store[T]) Filter(keep func(T) bool) []T {
	out := make([]T, 0)
	for _, r := range s.items {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of records.
func (s *Store[T]) Len() int {
	return len(s.items)
}
