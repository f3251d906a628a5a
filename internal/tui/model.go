// Package tui is a terminal front end for the sync engine. Markers are shown
// as a list; moving one nudges its displayed position until the move is
// dropped and saved.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/OCAP2/mapsync/pkg/core"
)

const (
	defaultStep = 10
	minStep     = 0.25
	maxStep     = 1000
	maxShown    = 3
)

// Engine is the part of syncengine.Engine the model drives.
type Engine interface {
	BeginDrag(id string) bool
	CancelDrag(id string)
	EndDrag(ctx context.Context, id string, x, y float64) (core.Marker, error)
	Create(ctx context.Context, f core.Fields) (core.Marker, error)
	Update(ctx context.Context, id string, f core.Fields) (core.Marker, error)
	Delete(ctx context.Context, id string) error
}

type mode int

const (
	modeBrowse mode = iota
	modeMove
	modeCreate
	modeRename
)

type keyMap struct {
	Up, Down, Left, Right key.Binding
	Move, Drop, Cancel    key.Binding
	New, Rename, Delete   key.Binding
	Faster, Slower        key.Binding
	Quit                  key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "left")),
		Right:  key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "right")),
		Move:   key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "move")),
		Drop:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "drop")),
		Cancel: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		New:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new")),
		Rename: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
		Delete: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "delete")),
		Faster: key.NewBinding(key.WithKeys("+"), key.WithHelp("+/-", "step")),
		Slower: key.NewBinding(key.WithKeys("-")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// resultMsg reports the outcome of an engine call made off the event loop.
type resultMsg struct {
	op     string
	id     string
	marker core.Marker
	err    error
}

// Model is the bubbletea model.
type Model struct {
	ctx    context.Context
	engine Engine
	bridge *Bridge
	keys   keyMap
	input  textinput.Model

	mode     mode
	selected string
	cursor   int
	step     float64

	status   string
	failed   bool
	warnings []string
}

// NewModel creates a model over engine and the bridge it renders into.
func NewModel(ctx context.Context, engine Engine, bridge *Bridge) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 120

	return Model{
		ctx:    ctx,
		engine: engine,
		bridge: bridge,
		keys:   defaultKeys(),
		input:  ti,
		step:   defaultStep,
	}
}

// Run shows the model full screen until the user quits or ctx ends.
func Run(ctx context.Context, engine Engine, bridge *Bridge) error {
	p := tea.NewProgram(NewModel(ctx, engine, bridge), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return m.bridge.Wait()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.warnings = append(m.warnings, m.bridge.Warnings()...)
		if len(m.warnings) > maxShown {
			m.warnings = m.warnings[len(m.warnings)-maxShown:]
		}
		m.syncSelection(m.bridge.Pins())
		return m, m.bridge.Wait()

	case resultMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("%s failed: %v", msg.op, msg.err), true)
			return m, nil
		}
		switch msg.op {
		case "create":
			m.selected = msg.marker.ID
			m.setStatus("added "+msg.marker.Label(), false)
		case "delete":
			m.setStatus("deleted "+msg.id, false)
		default:
			m.setStatus("saved "+msg.marker.Label(), false)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case modeMove:
			return m.updateMove(msg)
		case modeCreate, modeRename:
			return m.updateInput(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pins := m.bridge.Pins()
	m.syncSelection(pins)

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(pins, m.cursor-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(pins, m.cursor+1)
	case key.Matches(msg, m.keys.Faster):
		m.step = min(m.step*2, maxStep)
	case key.Matches(msg, m.keys.Slower):
		m.step = max(m.step/2, minStep)
	case key.Matches(msg, m.keys.New):
		m.mode = modeCreate
		m.input.SetValue("")
		m.input.Placeholder = "name [player|location|event] [x y]"
		return m, m.input.Focus()
	}

	if m.selected == "" {
		return m, nil
	}
	id := m.selected

	switch {
	case key.Matches(msg, m.keys.Move):
		if !m.engine.BeginDrag(id) {
			m.setStatus("still saving "+id, true)
			break
		}
		m.mode = modeMove
		m.setStatus("moving, enter to drop", false)
	case key.Matches(msg, m.keys.Rename):
		m.mode = modeRename
		m.input.SetValue(pins[m.cursor].Marker.Name)
		m.input.CursorEnd()
		m.input.Placeholder = "new name"
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Delete):
		return m, m.call("delete", id, func(ctx context.Context) (core.Marker, error) {
			return core.Marker{}, m.engine.Delete(ctx, id)
		})
	}
	return m, nil
}

func (m Model) updateMove(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	id := m.selected
	var dx, dy float64

	switch {
	case key.Matches(msg, m.keys.Drop):
		m.mode = modeBrowse
		x, y, ok := m.bridge.Position(id)
		if !ok {
			m.engine.CancelDrag(id)
			return m, nil
		}
		m.setStatus("saving…", false)
		return m, m.call("move", id, func(ctx context.Context) (core.Marker, error) {
			return m.engine.EndDrag(ctx, id, x, y)
		})
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Quit):
		m.mode = modeBrowse
		m.engine.CancelDrag(id)
		m.setStatus("move cancelled", false)
		return m, nil
	case key.Matches(msg, m.keys.Left):
		dx = -m.step
	case key.Matches(msg, m.keys.Right):
		dx = m.step
	case key.Matches(msg, m.keys.Up):
		dy = -m.step
	case key.Matches(msg, m.keys.Down):
		dy = m.step
	case key.Matches(msg, m.keys.Faster):
		m.step = min(m.step*2, maxStep)
	case key.Matches(msg, m.keys.Slower):
		m.step = max(m.step/2, minStep)
	}

	if dx != 0 || dy != 0 {
		if _, _, ok := m.bridge.Nudge(id, dx, dy); !ok {
			// removed by a poll mid-move
			m.mode = modeBrowse
			m.engine.CancelDrag(id)
		}
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeInput()
		return m, nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		if m.mode == modeCreate {
			f, err := parseCreate(value)
			if err != nil {
				m.setStatus(err.Error(), true)
				return m, nil
			}
			m.closeInput()
			return m, m.call("create", "", func(ctx context.Context) (core.Marker, error) {
				return m.engine.Create(ctx, f)
			})
		}

		if value == "" {
			m.setStatus("name cannot be empty", true)
			return m, nil
		}
		id := m.selected
		m.closeInput()
		return m, m.call("rename", id, func(ctx context.Context) (core.Marker, error) {
			return m.engine.Update(ctx, id, core.Fields{Name: &value})
		})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.mode = modeBrowse
	m.input.SetValue("")
	m.input.Blur()
}

func (m Model) call(op, id string, fn func(ctx context.Context) (core.Marker, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		mk, err := fn(ctx)
		return resultMsg{op: op, id: id, marker: mk, err: err}
	}
}

func (m *Model) setStatus(s string, failed bool) {
	m.status = s
	m.failed = failed
}

// syncSelection keeps the selection on the same marker when the list is
// reordered, or on the same row when the marker went away.
func (m *Model) syncSelection(pins []Pin) {
	for i, p := range pins {
		if p.Marker.ID == m.selected {
			m.cursor = i
			return
		}
	}
	m.moveCursor(pins, m.cursor)
}

func (m *Model) moveCursor(pins []Pin, i int) {
	if len(pins) == 0 {
		m.cursor, m.selected = 0, ""
		return
	}
	i = max(0, min(i, len(pins)-1))
	m.cursor, m.selected = i, pins[i].Marker.ID
}

func (m Model) View() string {
	pins := m.bridge.Pins()

	lines := []string{
		titleStyle.Render("mapsync") + "  " + accentStyle.Render(fmt.Sprintf("%d markers", len(pins))) +
			"  " + mutedStyle.Render(fmt.Sprintf("step %g", m.step)),
		"",
	}

	if len(pins) == 0 {
		lines = append(lines, mutedStyle.Render("no markers yet, press n to add one"))
	}
	for _, p := range pins {
		lines = append(lines, m.row(p))
	}

	if m.mode == modeCreate || m.mode == modeRename {
		lines = append(lines, "", m.input.View())
	}

	if len(m.warnings) > 0 {
		lines = append(lines, "")
		for _, w := range m.warnings {
			lines = append(lines, errorStyle.Render("✖ "+w))
		}
	}

	if m.status != "" {
		style := successStyle
		if m.failed {
			style = errorStyle
		}
		lines = append(lines, "", style.Render(m.status))
	}

	lines = append(lines, "", helpStyle.Render(m.help()))
	return panel(lines)
}

func (m Model) row(p Pin) string {
	selected := p.Marker.ID == m.selected
	cursor := "  "
	if selected {
		cursor = "› "
	}

	text := fmt.Sprintf("%s %s", p.Marker.Label(), mutedStyle.Render(string(p.Marker.Type)))
	if selected {
		text = selectedStyle.Render(p.Marker.Label()) + " " + mutedStyle.Render(string(p.Marker.Type))
	}

	pos := mutedStyle.Render(coords(p.X, p.Y))
	if selected && m.mode == modeMove {
		pos = pendingStyle.Render(coords(p.X, p.Y) + " moving")
	}
	return cursor + badge(p.Marker) + " " + text + " " + pos
}

func (m Model) help() string {
	var binds []key.Binding
	switch m.mode {
	case modeMove:
		binds = []key.Binding{m.keys.Left, m.keys.Right, m.keys.Up, m.keys.Down, m.keys.Faster, m.keys.Drop, m.keys.Cancel}
	case modeCreate, modeRename:
		return "enter save • esc cancel"
	default:
		binds = []key.Binding{m.keys.Up, m.keys.Down, m.keys.Move, m.keys.New, m.keys.Rename, m.keys.Delete, m.keys.Quit}
	}
	parts := make([]string, 0, len(binds))
	for _, b := range binds {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return strings.Join(parts, " • ")
}

// parseCreate reads "name [type] [x y]". The type is only taken when it
// names a known marker type; anything else stays part of the name.
func parseCreate(s string) (core.Fields, error) {
	tokens := strings.Fields(s)
	var f core.Fields

	if n := len(tokens); n >= 3 {
		x, errX := strconv.ParseFloat(tokens[n-2], 64)
		y, errY := strconv.ParseFloat(tokens[n-1], 64)
		if errX == nil && errY == nil {
			f.X, f.Y = &x, &y
			tokens = tokens[:n-2]
		}
	}

	if n := len(tokens); n >= 2 {
		last := strings.ToLower(tokens[n-1])
		if string(core.ParseMarkerType(last)) == last {
			f.Type = &last
			tokens = tokens[:n-1]
		}
	}

	name := strings.Join(tokens, " ")
	if name == "" {
		return core.Fields{}, errors.New("name cannot be empty")
	}
	f.Name = &name
	return f, nil
}
