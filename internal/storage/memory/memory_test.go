package memory

import (
	"context"
	"testing"

	"github.com/OCAP2/mapsync/internal/storage"
	"github.com/OCAP2/mapsync/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

func TestLoad_Empty(t *testing.T) {
	s := New()
	require.NoError(t, s.Init())
	defer s.Close()

	c, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, c.Markers)
	assert.Empty(t, c.Markers)
}

func TestSaveLoad(t *testing.T) {
	s := New()
	ctx := context.Background()

	c := core.NewCollection()
	c.Markers = append(c.Markers, core.Marker{ID: "a", Name: "Alpha"})
	require.NoError(t, s.Save(ctx, c))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, c, got)
	assert.Equal(t, 1, s.Saves())
}

func TestLoad_ReturnsCopy(t *testing.T) {
	s := NewWith(core.Collection{Markers: []core.Marker{{ID: "a", Name: "Alpha"}}})
	ctx := context.Background()

	c, err := s.Load(ctx)
	require.NoError(t, err)
	c.Markers[0].Name = "mutated"

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", again.Markers[0].Name)
}

func TestSave_CopiesInput(t *testing.T) {
	s := New()
	ctx := context.Background()

	c := core.Collection{Markers: []core.Marker{{ID: "a"}}}
	require.NoError(t, s.Save(ctx, c))
	c.Markers[0].ID = "changed"

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Markers[0].ID)
}
