package main

import (
	"fmt"

	"github.com/OCAP2/mapsync/internal/audit"
	"github.com/OCAP2/mapsync/internal/config"
	"github.com/OCAP2/mapsync/internal/storage"
)

// createAuditSinks opens every enabled sink. The git sink needs a store that
// keeps its document in a file inside the repository.
func createAuditSinks(cfg config.AuditConfig, store storage.Store) ([]audit.Sink, error) {
	var sinks []audit.Sink
	fail := func(err error) ([]audit.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}

	if cfg.File.Enabled {
		s, err := audit.NewFileSink(cfg.File.Path)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Git.Enabled {
		located, ok := store.(storage.Located)
		if !ok {
			return fail(fmt.Errorf("git audit requires file storage, got %T", store))
		}
		s, err := audit.NewGitSink(cfg.Git.RepoDir, located.DocumentPath(), cfg.Git.AuthorEmail)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Gelf.Enabled {
		s, err := audit.NewGelfSink(cfg.Gelf.Address)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}

	if cfg.Influx.Enabled {
		sinks = append(sinks, audit.NewInfluxSink(cfg.Influx))
	}

	for _, s := range sinks {
		Logger.Info("Audit sink enabled", "sink", s.Name())
	}
	return sinks, nil
}
