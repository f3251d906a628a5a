// Package memory keeps the marker document in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/OCAP2/mapsync/pkg/core"
)

// Store holds the collection in memory. Contents are lost on exit.
type Store struct {
	mu    sync.RWMutex
	doc   core.Collection
	saves int
}

// New creates an empty memory store.
func New() *Store {
	return &Store{doc: core.NewCollection()}
}

// NewWith creates a memory store seeded with c.
func NewWith(c core.Collection) *Store {
	c = c.Clone()
	c.Normalize()
	return &Store{doc: c}
}

// Init initializes the store
func (s *Store) Init() error {
	return nil
}

// Close cleans up resources
func (s *Store) Close() error {
	return nil
}

// Load returns a copy of the stored collection.
func (s *Store) Load(_ context.Context) (core.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), nil
}

// Save replaces the stored collection with a copy of c.
func (s *Store) Save(_ context.Context, c core.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = c.Clone()
	s.doc.Normalize()
	s.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
