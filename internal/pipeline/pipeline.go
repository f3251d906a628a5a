// Package pipeline applies marker mutations to the persisted collection.
//
// One owner goroutine handles every request in arrival order, so the
// load, modify and save steps of two mutations never interleave.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/OCAP2/mapsync/internal/audit"
	"github.com/OCAP2/mapsync/internal/storage"
	"github.com/OCAP2/mapsync/pkg/core"
)

const instrumentationName = "github.com/OCAP2/mapsync/internal/pipeline"

var (
	// ErrNotFound is returned when no marker has the requested id.
	ErrNotFound = errors.New("marker not found")
	// ErrStopped is returned for requests submitted after Close.
	ErrStopped = errors.New("pipeline stopped")
)

type opKind int

const (
	opSnapshot opKind = iota
	opCreate
	opPatch
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opCreate:
		return "create"
	case opPatch:
		return "patch"
	case opDelete:
		return "delete"
	default:
		return "snapshot"
	}
}

type request struct {
	ctx    context.Context
	kind   opKind
	id     string
	fields core.Fields
	actor  string
	reply  chan result
}

type result struct {
	marker     core.Marker
	collection core.Collection
	err        error
}

// Options configures a Pipeline.
type Options struct {
	Logger *slog.Logger
	// Audit receives one entry per applied mutation. Nil disables auditing.
	Audit audit.Notifier
	// NewID generates marker ids. Defaults to random UUIDs.
	NewID func() string
	// Now stamps audit entries. Defaults to time.Now.
	Now func() time.Time
}

// Pipeline serializes mutations against a Store.
type Pipeline struct {
	store  storage.Store
	audit  audit.Notifier
	logger *slog.Logger
	newID  func() string
	now    func() time.Time

	requests chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mutations metric.Int64Counter
}

// New starts the owner goroutine. Close must be called to stop it.
func New(store storage.Store, opts Options) (*Pipeline, error) {
	p := &Pipeline{
		store:    store,
		audit:    opts.Audit,
		logger:   opts.Logger,
		newID:    opts.NewID,
		now:      opts.Now,
		requests: make(chan request),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.newID == nil {
		p.newID = uuid.NewString
	}
	if p.now == nil {
		p.now = time.Now
	}

	var err error
	p.mutations, err = otel.Meter(instrumentationName).Int64Counter(
		"pipeline.mutations",
		metric.WithDescription("Total marker mutations by operation and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating mutations counter: %w", err)
	}

	go p.run()
	return p, nil
}

// Snapshot returns the current collection.
func (p *Pipeline) Snapshot(ctx context.Context) (core.Collection, error) {
	res := p.submit(ctx, request{kind: opSnapshot})
	return res.collection, res.err
}

// Create adds a marker built from f and returns the stored record.
func (p *Pipeline) Create(ctx context.Context, f core.Fields, actor string) (core.Marker, error) {
	res := p.submit(ctx, request{kind: opCreate, fields: f, actor: actor})
	return res.marker, res.err
}

// Patch applies the fields present in f to the marker with id.
func (p *Pipeline) Patch(ctx context.Context, id string, f core.Fields, actor string) (core.Marker, error) {
	res := p.submit(ctx, request{kind: opPatch, id: id, fields: f, actor: actor})
	return res.marker, res.err
}

// Delete removes the marker with id and returns it.
func (p *Pipeline) Delete(ctx context.Context, id string, actor string) (core.Marker, error) {
	res := p.submit(ctx, request{kind: opDelete, id: id, actor: actor})
	return res.marker, res.err
}

// Close stops the owner goroutine after the request in progress.
func (p *Pipeline) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

// submit hands req to the owner and waits for its reply. A request whose
// context ends after it was accepted may still be applied.
func (p *Pipeline) submit(ctx context.Context, req request) result {
	if err := ctx.Err(); err != nil {
		return result{err: err}
	}
	req.ctx = ctx
	req.reply = make(chan result, 1)

	select {
	case p.requests <- req:
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case <-p.stop:
		return result{err: ErrStopped}
	}

	select {
	case res := <-req.reply:
		return res
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case req := <-p.requests:
			req.reply <- p.handle(req)
		}
	}
}

func (p *Pipeline) handle(req request) result {
	// once accepted, a mutation runs to completion
	ctx := context.WithoutCancel(req.ctx)

	var res result
	switch req.kind {
	case opSnapshot:
		res.collection, res.err = p.store.Load(ctx)
		return res
	case opCreate:
		res = p.create(ctx, req)
	case opPatch:
		res = p.patch(ctx, req)
	case opDelete:
		res = p.delete(ctx, req)
	}
	p.record(ctx, req, res)
	return res
}

func (p *Pipeline) create(ctx context.Context, req request) result {
	c, err := p.store.Load(ctx)
	if err != nil {
		return result{err: fmt.Errorf("load collection: %w", err)}
	}

	f := req.fields
	if f.ID != nil && (*f.ID == "" || c.Has(*f.ID)) {
		f.ID = nil
	}
	id := p.newID()
	for c.Has(id) {
		id = p.newID()
	}

	m := core.NewMarker(f, id)
	c.Markers = append(c.Markers, m)
	if err := p.store.Save(ctx, c); err != nil {
		return result{err: fmt.Errorf("save collection: %w", err)}
	}

	p.notify(audit.OpAdd, m, req.actor)
	return result{marker: m}
}

func (p *Pipeline) patch(ctx context.Context, req request) result {
	c, err := p.store.Load(ctx)
	if err != nil {
		return result{err: fmt.Errorf("load collection: %w", err)}
	}

	i := c.Index(req.id)
	if i < 0 {
		return result{err: ErrNotFound}
	}
	m := c.Markers[i]
	m.Apply(req.fields)
	c.Markers[i] = m

	if err := p.store.Save(ctx, c); err != nil {
		return result{err: fmt.Errorf("save collection: %w", err)}
	}

	p.notify(audit.OpUpdate, m, req.actor)
	return result{marker: m}
}

func (p *Pipeline) delete(ctx context.Context, req request) result {
	c, err := p.store.Load(ctx)
	if err != nil {
		return result{err: fmt.Errorf("load collection: %w", err)}
	}

	m, ok := c.Remove(req.id)
	if !ok {
		return result{err: ErrNotFound}
	}
	if err := p.store.Save(ctx, c); err != nil {
		return result{err: fmt.Errorf("save collection: %w", err)}
	}

	p.notify(audit.OpDelete, m, req.actor)
	return result{marker: m}
}

func (p *Pipeline) notify(op audit.Op, m core.Marker, actor string) {
	if p.audit == nil {
		return
	}
	err := p.audit.Notify(audit.Entry{
		Op:         op,
		MarkerID:   m.ID,
		MarkerName: m.Name,
		Actor:      actor,
		Time:       p.now(),
	})
	if err != nil {
		p.logger.Debug("audit notification not queued", "op", op, "id", m.ID, "error", err)
	}
}

func (p *Pipeline) record(ctx context.Context, req request, res result) {
	outcome := "ok"
	switch {
	case errors.Is(res.err, ErrNotFound):
		outcome = "not_found"
	case res.err != nil:
		outcome = "error"
	}
	p.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", req.kind.String()),
		attribute.String("result", outcome),
	))

	switch outcome {
	case "ok":
		p.logger.Info("marker "+req.kind.String(), "id", res.marker.ID, "name", res.marker.Name, "actor", req.actor)
	case "not_found":
		p.logger.Debug("marker not found", "op", req.kind.String(), "id", req.id, "actor", req.actor)
	default:
		p.logger.Error("mutation failed", "op", req.kind.String(), "id", req.id, "actor", req.actor, "error", res.err)
	}
}
