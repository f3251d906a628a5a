// Package storage defines the persistence contract for the marker document.
package storage

import (
	"context"

	"github.com/OCAP2/mapsync/pkg/core"
)

// Store loads and saves the entire marker collection as one unit.
// Implementations never write part of a collection.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	// Load returns the current collection. A store that has never been
	// saved returns an empty collection, not an error.
	Load(ctx context.Context) (core.Collection, error)

	// Save replaces the persisted collection with c.
	Save(ctx context.Context, c core.Collection) error
}

// Located is an optional interface for stores that keep the document in a
// single file on disk, so it can be versioned alongside the audit trail.
type Located interface {
	DocumentPath() string
}
