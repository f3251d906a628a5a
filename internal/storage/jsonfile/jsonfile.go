// Package jsonfile stores the marker document as one JSON file.
//
// Saves write a temporary file next to the target and rename it into place,
// so readers see either the previous or the new document, never a mix.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/OCAP2/mapsync/pkg/core"
)

// Config holds configuration for the JSON file store.
type Config struct {
	Path string
}

// Store persists the collection to a single JSON document.
type Store struct {
	path string
}

// New creates a JSON file store.
func New(cfg Config) *Store {
	return &Store{path: cfg.Path}
}

// Init creates the parent directory of the document.
func (s *Store) Init() error {
	if s.path == "" {
		return errors.New("json store path not set")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// Close cleans up resources
func (s *Store) Close() error {
	return nil
}

// DocumentPath returns the location of the JSON document.
func (s *Store) DocumentPath() string {
	return s.path
}

// Load reads the document. A missing file yields an empty collection; a
// corrupt one is an error so it is never silently overwritten.
func (s *Store) Load(_ context.Context) (core.Collection, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return core.NewCollection(), nil
		}
		return core.Collection{}, fmt.Errorf("read file: %w", err)
	}

	var c core.Collection
	if err := json.Unmarshal(b, &c); err != nil {
		return core.Collection{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	c.Normalize()
	return c, nil
}

// Save replaces the document with c.
func (s *Store) Save(_ context.Context, c core.Collection) error {
	c.Normalize()
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
