package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/OCAP2/mapsync/internal/storage"
	"github.com/OCAP2/mapsync/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

func TestClose_BeforeInit(t *testing.T) {
	s := New(Config{}, zerolog.Nop())
	assert.NoError(t, s.Close())
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.db")
	ctx := context.Background()

	s := New(Config{Path: path}, zerolog.Nop())
	require.NoError(t, s.Init())
	c := core.Collection{Markers: []core.Marker{{ID: "1", Name: "Bob", X: 100.01, Y: 50, Type: core.TypePlayer, Color: core.ColorPlayer}}}
	require.NoError(t, s.Save(ctx, c))
	require.NoError(t, s.Close())

	reopened := New(Config{Path: path}, zerolog.Nop())
	require.NoError(t, reopened.Init())
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, got)
}
