package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/OCAP2/mapsync/internal/config"
	"github.com/OCAP2/mapsync/internal/storage"
	"github.com/OCAP2/mapsync/internal/storage/jsonfile"
	"github.com/OCAP2/mapsync/internal/storage/memory"
	pgstorage "github.com/OCAP2/mapsync/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/mapsync/internal/storage/sqlite"
)

func createStore(cfg config.StorageConfig, dbLog zerolog.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "json", "":
		Logger.Info("JSON file storage selected", "path", cfg.JSON.Path)
		return jsonfile.New(jsonfile.Config{Path: cfg.JSON.Path}), nil

	case "memory":
		Logger.Warn("Memory storage selected, markers are lost on restart")
		return memory.New(), nil

	case "sqlite":
		Logger.Info("SQLite storage selected", "path", cfg.SQLite.Path)
		return sqlitestorage.New(sqlitestorage.Config{Path: cfg.SQLite.Path}, dbLog), nil

	case "postgres":
		Logger.Info("Postgres storage selected", "host", cfg.DB.Host, "database", cfg.DB.Database)
		return pgstorage.New(cfg.DB, dbLog), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
