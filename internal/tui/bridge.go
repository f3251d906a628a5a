package tui

import (
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/OCAP2/mapsync/internal/queue"
	"github.com/OCAP2/mapsync/pkg/core"
)

// maxWarnings bounds the pending warning backlog.
const maxWarnings = 8

// Pin is a marker as currently drawn. X and Y are the displayed position,
// which differs from the marker's cached position while it is being moved.
type Pin struct {
	Marker core.Marker
	X, Y   float64
}

// changedMsg tells the model the bridge has new state to draw.
type changedMsg struct{}

// Bridge is the terminal's implementation of syncengine.View. The engine
// calls it from the poll goroutine; the model reads it from the event loop.
type Bridge struct {
	mu       sync.Mutex
	pins     map[string]*Pin
	warnings *queue.Queue[string]

	// holds at most one pending wakeup
	changed chan struct{}
}

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{
		pins:     make(map[string]*Pin),
		warnings: queue.New[string](maxWarnings),
		changed:  make(chan struct{}, 1),
	}
}

func (b *Bridge) Add(m core.Marker) {
	b.mu.Lock()
	b.pins[m.ID] = &Pin{Marker: m, X: m.X, Y: m.Y}
	b.mu.Unlock()
	b.notify()
}

func (b *Bridge) Move(id string, x, y float64) {
	b.mu.Lock()
	if p, ok := b.pins[id]; ok {
		p.X, p.Y = x, y
	}
	b.mu.Unlock()
	b.notify()
}

// Redraw replaces the pin's marker and keeps the displayed position.
func (b *Bridge) Redraw(m core.Marker) {
	b.mu.Lock()
	if p, ok := b.pins[m.ID]; ok {
		p.Marker = m
	}
	b.mu.Unlock()
	b.notify()
}

func (b *Bridge) Remove(id string) {
	b.mu.Lock()
	delete(b.pins, id)
	b.mu.Unlock()
	b.notify()
}

func (b *Bridge) Warn(msg string) {
	b.warnings.Push(msg)
	b.notify()
}

// Nudge shifts the displayed position of id by dx, dy and returns where it
// ended up. The marker itself is not touched.
func (b *Bridge) Nudge(id string, dx, dy float64) (x, y float64, ok bool) {
	b.mu.Lock()
	p, ok := b.pins[id]
	if ok {
		p.X += dx
		p.Y += dy
		x, y = p.X, p.Y
	}
	b.mu.Unlock()
	if ok {
		b.notify()
	}
	return x, y, ok
}

// Position returns the displayed position of id.
func (b *Bridge) Position(id string) (x, y float64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[id]
	if !ok {
		return 0, 0, false
	}
	return p.X, p.Y, true
}

// Pins returns copies of all pins ordered by name, then id.
func (b *Bridge) Pins() []Pin {
	b.mu.Lock()
	out := make([]Pin, 0, len(b.pins))
	for _, p := range b.pins {
		out = append(out, *p)
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, c := out[i].Marker, out[j].Marker
		if a.Label() != c.Label() {
			return a.Label() < c.Label()
		}
		return a.ID < c.ID
	})
	return out
}

// Warnings drains the pending warnings, oldest first.
func (b *Bridge) Warnings() []string {
	return b.warnings.Drain()
}

// Wait returns a command that blocks until the bridge changes.
func (b *Bridge) Wait() tea.Cmd {
	return func() tea.Msg {
		<-b.changed
		return changedMsg{}
	}
}

// notify never blocks: the engine calls the view with its lock held.
func (b *Bridge) notify() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}
