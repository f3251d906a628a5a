// Package syncengine keeps a client's view of the shared marker collection
// in step with the server.
//
// The engine polls the full snapshot on a fixed interval and reconciles it
// into a MarkerRegistry. Markers the local user is dragging are guarded:
// polls may update their metadata but never their position until the drag
// ends.
package syncengine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OCAP2/mapsync/internal/api"
	"github.com/OCAP2/mapsync/internal/cache"
	"github.com/OCAP2/mapsync/pkg/core"
)

// User-facing warnings
const (
	WarnSaveFailed   = "Save failed. Refresh and try again."
	WarnCreateFailed = "Failed to create marker."
	WarnDeleteFailed = "Failed to delete marker."
)

// View renders markers. Calls are made with the engine's lock held and must
// not call back into the engine.
type View interface {
	Add(m core.Marker)
	Move(id string, x, y float64)
	Redraw(m core.Marker)
	Remove(id string)
	Warn(msg string)
}

// Transport talks to the server.
type Transport interface {
	FetchSnapshot(ctx context.Context) (core.Collection, error)
	CreateMarker(ctx context.Context, f core.Fields) (core.Marker, error)
	PatchMarker(ctx context.Context, id string, f core.Fields) (core.Marker, error)
	DeleteMarker(ctx context.Context, id string) error
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Options configures an Engine.
type Options struct {
	PollInterval time.Duration
	// RollbackOnFailure moves a marker back to its last saved position when
	// saving a drag fails. Off by default: the marker stays where it was
	// dropped until the next poll.
	RollbackOnFailure bool
	Logger            Logger
}

// Stats counts the view calls made by one reconciliation pass.
type Stats struct {
	Added   int
	Moved   int
	Redrawn int
	Removed int
}

// Changed reports whether the pass touched the view at all.
func (s Stats) Changed() bool {
	return s != Stats{}
}

// Engine owns the registry and drives the view.
type Engine struct {
	// serializes reconciliation against user actions
	mu sync.Mutex

	registry  *cache.MarkerRegistry
	saving    map[string]struct{} // ids with a drop still being saved
	transport Transport
	view      View
	opts      Options
	log       Logger
}

// New creates an engine with an empty registry.
func New(transport Transport, view View, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}
	return &Engine{
		registry:  cache.NewMarkerRegistry(),
		saving:    make(map[string]struct{}),
		transport: transport,
		view:      view,
		opts:      opts,
		log:       log,
	}
}

// Registry returns the engine's marker registry.
func (e *Engine) Registry() *cache.MarkerRegistry {
	return e.registry
}

// Run polls until ctx is cancelled. Poll failures are logged and retried on
// the next tick.
func (e *Engine) Run(ctx context.Context) {
	_ = e.Refresh(ctx)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Refresh(ctx)
		}
	}
}

// Refresh fetches the snapshot and reconciles it. On failure the registry
// is left untouched.
func (e *Engine) Refresh(ctx context.Context) error {
	snapshot, err := e.transport.FetchSnapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.log.Warn("poll failed", "error", err)
		}
		return err
	}
	stats := e.Reconcile(snapshot)
	if stats.Changed() {
		e.log.Debug("reconciled snapshot",
			"added", stats.Added, "moved", stats.Moved, "redrawn", stats.Redrawn, "removed", stats.Removed)
	}
	return nil
}

// Reconcile merges snapshot into the registry and updates the view. Running
// it twice with the same snapshot makes no changes the second time.
func (e *Engine) Reconcile(snapshot core.Collection) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats Stats
	present := make(map[string]struct{}, len(snapshot.Markers))

	for _, m := range snapshot.Markers {
		present[m.ID] = struct{}{}

		prev, known := e.registry.Get(m.ID)
		if !known {
			e.registry.Put(m)
			e.view.Add(m)
			stats.Added++
			continue
		}

		next := m
		if e.registry.IsGuarded(m.ID) {
			// the local drag owns the position
			next.X, next.Y = prev.X, prev.Y
		} else if !prev.SamePosition(m) {
			e.view.Move(m.ID, m.X, m.Y)
			stats.Moved++
		}

		if !prev.SameIdentity(next) {
			e.view.Redraw(next)
			stats.Redrawn++
		}
		if next != prev {
			e.registry.Put(next)
		}
	}

	for _, id := range e.registry.IDs() {
		if _, ok := present[id]; ok {
			continue
		}
		e.registry.Delete(id)
		e.view.Remove(id)
		stats.Removed++
	}
	return stats
}

// BeginDrag guards id against poll updates. It returns false for unknown ids
// and while the previous drop of id is still being saved.
func (e *Engine) BeginDrag(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.saving[id]; busy {
		return false
	}
	return e.registry.Guard(id)
}

// CancelDrag abandons a drag without saving and puts the pin back at its
// cached position.
func (e *Engine) CancelDrag(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry.Release(id)
	if m, ok := e.registry.Get(id); ok {
		e.view.Move(id, m.X, m.Y)
	}
}

// EndDrag saves the dropped position, rounded to two decimals. The guard is
// released whatever the outcome.
func (e *Engine) EndDrag(ctx context.Context, id string, x, y float64) (core.Marker, error) {
	m, err := e.saveDrag(ctx, id, x, y)
	if err != nil {
		return core.Marker{}, err
	}
	e.resync(ctx)
	return m, nil
}

func (e *Engine) saveDrag(ctx context.Context, id string, x, y float64) (core.Marker, error) {
	e.mu.Lock()
	e.saving[id] = struct{}{}
	e.mu.Unlock()
	defer e.release(id)

	x, y = core.RoundCoord(x), core.RoundCoord(y)
	m, err := e.transport.PatchMarker(ctx, id, core.Fields{X: &x, Y: &y})
	if err != nil {
		e.log.Error("failed to save marker position", "id", id, "error", err)

		e.mu.Lock()
		e.view.Warn(WarnSaveFailed)
		if prev, ok := e.registry.Get(id); ok {
			if e.opts.RollbackOnFailure {
				e.view.Move(id, prev.X, prev.Y)
			} else {
				// cache what is displayed so the next poll moves it back
				prev.X, prev.Y = x, y
				e.registry.Put(prev)
			}
		}
		e.mu.Unlock()
		return core.Marker{}, err
	}

	e.mu.Lock()
	e.apply(m, true)
	e.mu.Unlock()
	return m, nil
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.saving, id)
	e.registry.Release(id)
}

// Create submits a new marker. Coordinates are rounded like drags.
func (e *Engine) Create(ctx context.Context, f core.Fields) (core.Marker, error) {
	if f.X != nil {
		f.X = core.Ptr(core.RoundCoord(*f.X))
	}
	if f.Y != nil {
		f.Y = core.Ptr(core.RoundCoord(*f.Y))
	}

	m, err := e.transport.CreateMarker(ctx, f)
	if err != nil {
		e.log.Error("failed to create marker", "error", err)
		e.warn(WarnCreateFailed)
		return core.Marker{}, err
	}

	e.mu.Lock()
	e.apply(m, false)
	e.mu.Unlock()

	e.resync(ctx)
	return m, nil
}

// Update saves metadata changes such as a rename.
func (e *Engine) Update(ctx context.Context, id string, f core.Fields) (core.Marker, error) {
	m, err := e.transport.PatchMarker(ctx, id, f)
	if err != nil {
		e.log.Error("failed to update marker", "id", id, "error", err)
		e.warn(WarnSaveFailed)
		return core.Marker{}, err
	}

	e.mu.Lock()
	e.apply(m, false)
	e.mu.Unlock()

	e.resync(ctx)
	return m, nil
}

// Delete removes a marker. A marker the server no longer has is removed
// locally as well.
func (e *Engine) Delete(ctx context.Context, id string) error {
	err := e.transport.DeleteMarker(ctx, id)
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		e.log.Error("failed to delete marker", "id", id, "error", err)
		e.warn(WarnDeleteFailed)
		return err
	}

	e.mu.Lock()
	if _, ok := e.registry.Get(id); ok {
		e.registry.Delete(id)
		e.view.Remove(id)
	}
	e.mu.Unlock()

	e.resync(ctx)
	return nil
}

// apply stores the server's echo of a mutation and redraws the pin.
// Must be called with mu held.
func (e *Engine) apply(m core.Marker, forceMove bool) {
	prev, known := e.registry.Get(m.ID)
	e.registry.Put(m)
	if !known {
		e.view.Add(m)
		return
	}
	if forceMove || !prev.SamePosition(m) {
		e.view.Move(m.ID, m.X, m.Y)
	}
	e.view.Redraw(m)
}

func (e *Engine) warn(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view.Warn(msg)
}

func (e *Engine) resync(ctx context.Context) {
	_ = e.Refresh(ctx)
}
