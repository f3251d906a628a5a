// Package sqlite stores the marker document in a local SQLite file.
package sqlite

import (
	"fmt"

	"github.com/OCAP2/mapsync/internal/database"
	"github.com/OCAP2/mapsync/internal/storage/gormdoc"
	"github.com/rs/zerolog"
)

// Config holds configuration for the SQLite store.
type Config struct {
	// Path of the database file. Empty means a private in-memory database.
	Path string
}

// Store is a gormdoc store on a SQLite connection.
type Store struct {
	*gormdoc.Store
	cfg Config
	log zerolog.Logger
}

// New creates a SQLite store. The connection is opened by Init.
func New(cfg Config, log zerolog.Logger) *Store {
	return &Store{cfg: cfg, log: log}
}

// Init opens the database and creates the document table.
func (s *Store) Init() error {
	db, err := database.OpenSqlite(s.cfg.Path, s.log)
	if err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	s.Store = gormdoc.New(db)
	return s.Store.Init()
}

// Close closes the database if it was opened.
func (s *Store) Close() error {
	if s.Store == nil {
		return nil
	}
	return s.Store.Close()
}
