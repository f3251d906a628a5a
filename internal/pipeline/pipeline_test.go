package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/OCAP2/mapsync/internal/audit"
	"github.com/OCAP2/mapsync/internal/storage/memory"
	"github.com/OCAP2/mapsync/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (n *recordingNotifier) Notify(e audit.Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.entries = append(n.entries, e)
	return nil
}

func (n *recordingNotifier) all() []audit.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]audit.Entry(nil), n.entries...)
}

// failingStore fails Save after the first n calls.
type failingStore struct {
	*memory.Store
	okSaves int
	saves   int
}

func (s *failingStore) Save(ctx context.Context, c core.Collection) error {
	s.saves++
	if s.saves > s.okSaves {
		return errors.New("disk full")
	}
	return s.Store.Save(ctx, c)
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestPipeline(t *testing.T, seed ...core.Marker) (*Pipeline, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.NewWith(core.Collection{Markers: seed})
	n := &recordingNotifier{}
	p, err := New(store, Options{
		Logger: testLogger,
		Audit:  n,
		Now:    func() time.Time { return time.Unix(1700000000, 0) },
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, store, n
}

func TestCreate_Defaults(t *testing.T) {
	p, store, n := newTestPipeline(t)
	ctx := context.Background()

	m, err := p.Create(ctx, core.Fields{Name: core.Ptr("Bob"), Type: core.Ptr("player"), X: core.Ptr(10.0), Y: core.Ptr(20.0)}, "alice")
	require.NoError(t, err)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Bob", m.Name)
	assert.Equal(t, core.ColorPlayer, m.Color)
	assert.Equal(t, "", m.Avatar)
	assert.Equal(t, 10.0, m.X)

	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Marker{m}, c.Markers)

	entries := n.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "Add marker Bob by alice", entries[0].Message())
}

func TestCreate_GeneratesUniqueIDs(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		m, err := p.Create(ctx, core.Fields{}, "anon")
		require.NoError(t, err)
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		assert.Equal(t, m.ID, m.Name)
	}
}

func TestCreate_ClientID(t *testing.T) {
	p, _, _ := newTestPipeline(t, core.Marker{ID: "taken", Name: "Old"})
	ctx := context.Background()

	m, err := p.Create(ctx, core.Fields{ID: core.Ptr("mine")}, "anon")
	require.NoError(t, err)
	assert.Equal(t, "mine", m.ID)

	m, err = p.Create(ctx, core.Fields{ID: core.Ptr("taken")}, "anon")
	require.NoError(t, err)
	assert.NotEqual(t, "taken", m.ID)
	assert.Equal(t, m.ID, m.Name)
}

func TestCreate_RetriesCollidingGeneratedID(t *testing.T) {
	store := memory.NewWith(core.Collection{Markers: []core.Marker{{ID: "1"}}})
	ids := []string{"1", "1", "2"}
	p, err := New(store, Options{Logger: testLogger, NewID: func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}})
	require.NoError(t, err)
	defer p.Close()

	m, err := p.Create(context.Background(), core.Fields{}, "anon")
	require.NoError(t, err)
	assert.Equal(t, "2", m.ID)
}

func TestPatch_AppliesAndRounds(t *testing.T) {
	p, store, n := newTestPipeline(t, core.Marker{ID: "c", Name: "Camp", Type: core.TypeLocation, Color: core.ColorLocation})
	ctx := context.Background()

	m, err := p.Patch(ctx, "c", core.Fields{X: core.Ptr(5.555)}, "bob")
	require.NoError(t, err)
	assert.Equal(t, 5.56, m.X)
	assert.Equal(t, "Camp", m.Name)

	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5.56, c.Markers[0].X)
	assert.Equal(t, "Update marker Camp by bob", n.all()[0].Message())
}

func TestPatch_RoundingStable(t *testing.T) {
	p, store, _ := newTestPipeline(t, core.Marker{ID: "a", Name: "A"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := p.Patch(ctx, "a", core.Fields{X: core.Ptr(100.005), Y: core.Ptr(50.004)}, "anon")
		require.NoError(t, err)
	}

	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.01, c.Markers[0].X)
	assert.Equal(t, 50.0, c.Markers[0].Y)
}

func TestPatch_AllowList(t *testing.T) {
	p, store, _ := newTestPipeline(t, core.Marker{ID: "a", Name: "A", Notes: "keep", Color: "#000"})
	ctx := context.Background()

	f, err := core.ParseFields([]byte(`{"admin":true,"id":"hijack","name":"B"}`))
	require.NoError(t, err)
	_, err = p.Patch(ctx, "a", f, "anon")
	require.NoError(t, err)

	c, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, c.Markers, 1)
	assert.Equal(t, core.Marker{ID: "a", Name: "B", Notes: "keep", Color: "#000"}, c.Markers[0])
}

func TestPatch_NotFound(t *testing.T) {
	p, store, n := newTestPipeline(t, core.Marker{ID: "a"})

	_, err := p.Patch(context.Background(), "nope", core.Fields{Name: core.Ptr("x")}, "anon")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Saves())
	assert.Empty(t, n.all())
}

func TestDelete(t *testing.T) {
	p, store, n := newTestPipeline(t, core.Marker{ID: "a", Name: "A"}, core.Marker{ID: "b", Name: "B"})
	ctx := context.Background()

	m, err := p.Delete(ctx, "a", "carol")
	require.NoError(t, err)
	assert.Equal(t, "A", m.Name)

	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.Marker{{ID: "b", Name: "B"}}, c.Markers)
	assert.Equal(t, "Delete marker A by carol", n.all()[0].Message())
}

func TestDelete_NotFound(t *testing.T) {
	p, store, _ := newTestPipeline(t, core.Marker{ID: "a"})

	_, err := p.Delete(context.Background(), "never", "anon")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, store.Saves())
}

func TestSaveFailure_NoAudit(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	n := &recordingNotifier{}
	p, err := New(store, Options{Logger: testLogger, Audit: n})
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Create(context.Background(), core.Fields{}, "anon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save collection")
	assert.Empty(t, n.all())

	c, err := p.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, c.Markers)
}

func TestAuditFailureIgnored(t *testing.T) {
	p, _, n := newTestPipeline(t)
	n.err = audit.ErrQueueFull

	_, err := p.Create(context.Background(), core.Fields{Name: core.Ptr("X")}, "anon")
	assert.NoError(t, err)
}

func TestConcurrentPatchesSameMarker(t *testing.T) {
	p, store, _ := newTestPipeline(t, core.Marker{ID: "m", Name: "base"})
	ctx := context.Background()

	names := []string{"alpha", "bravo"}
	errs := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = p.Patch(ctx, "m", core.Fields{Name: core.Ptr(name)}, "anon")
		}(i, name)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	c, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, c.Markers, 1)
	assert.Contains(t, names, c.Markers[0].Name)
}

func TestConcurrentCreatesAllPersist(t *testing.T) {
	p, store, n := newTestPipeline(t)
	ctx := context.Background()

	const workers = 32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Create(ctx, core.Fields{Name: core.Ptr(fmt.Sprintf("m%d", i))}, "anon")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	c, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, c.Markers, workers)
	assert.Len(t, n.all(), workers)
}

func TestCancelledContext(t *testing.T) {
	p, store, _ := newTestPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Create(ctx, core.Fields{}, "anon")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Saves())
}

func TestClosed(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	p.Close()

	_, err := p.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}
