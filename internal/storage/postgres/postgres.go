// Package postgres stores the marker document in a Postgres database.
package postgres

import (
	"fmt"

	"github.com/OCAP2/mapsync/internal/config"
	"github.com/OCAP2/mapsync/internal/database"
	"github.com/OCAP2/mapsync/internal/storage/gormdoc"
	"github.com/rs/zerolog"
)

// Store is a gormdoc store on a Postgres connection.
type Store struct {
	*gormdoc.Store
	cfg config.DBConfig
	log zerolog.Logger
}

// New creates a Postgres store. The connection is opened by Init.
func New(cfg config.DBConfig, log zerolog.Logger) *Store {
	return &Store{cfg: cfg, log: log}
}

// Init connects and creates the document table.
func (s *Store) Init() error {
	db, err := database.OpenPostgres(s.cfg, s.log)
	if err != nil {
		return fmt.Errorf("postgres store: %w", err)
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
