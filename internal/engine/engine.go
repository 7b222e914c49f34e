// Package engine wires the fleet store and the phase sequencer to a tick
// scheduler and exposes the read-side views presentation layers consume.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/constellation-telemetry/fleet"
	"github.com/signalsfoundry/constellation-telemetry/internal/logging"
	"github.com/signalsfoundry/constellation-telemetry/internal/observability"
	"github.com/signalsfoundry/constellation-telemetry/model"
	"github.com/signalsfoundry/constellation-telemetry/phase"
	"github.com/signalsfoundry/constellation-telemetry/timectrl"
)

// ErrUnknownSlot indicates a selection for an orbit slot no entity occupies.
var ErrUnknownSlot = errors.New("unknown orbit slot")

// DefaultTickInterval is used when no interval option is supplied.
const DefaultTickInterval = 3 * time.Second

// SelectionHandler receives the orbit slot of an entity a consumer selected.
type SelectionHandler func(orbitSlot string)

// Summary is the derived fleet view shown in dashboard headers.
type Summary struct {
	Nominal     int    `json:"nominal"`
	Total       int    `json:"total"`
	ActivePhase string `json:"activePhase,omitempty"`
	Ticks       uint64 `json:"ticks"`
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCollector attaches Prometheus metrics.
func WithCollector(c *observability.EngineCollector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithTracer overrides the tracer used for tick spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithSource injects the random source used for latency jitter.
func WithSource(src fleet.Source) Option {
	return func(e *Engine) { e.storeOpts = append(e.storeOpts, fleet.WithSource(src)) }
}

// WithTickInterval sets the scheduler period used by Run.
func WithTickInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithSelectionHandler registers the pass-through selection callback.
func WithSelectionHandler(fn SelectionHandler) Option {
	return func(e *Engine) { e.onSelect = fn }
}

// Engine advances the fleet and the mission timeline together, one tick at a
// time. A tick either applies both steps or neither.
type Engine struct {
	runID string

	store     *fleet.Store
	sequencer *phase.Sequencer
	storeOpts []fleet.Option

	interval time.Duration
	onSelect SelectionHandler

	log     logging.Logger
	metrics *observability.EngineCollector
	tracer  trace.Tracer

	// tickMu keeps readers from seeing the fleet advanced but not the phases.
	tickMu sync.RWMutex
	ticks  uint64

	schedMu   sync.Mutex
	scheduler *timectrl.Scheduler
}

// New validates snap and builds an Engine. Any configuration error (empty
// phase list, duplicate entity IDs, malformed seed values) is returned here
// and the engine never starts.
func New(snap model.Snapshot, opts ...Option) (*Engine, error) {
	e := &Engine{
		runID:    logging.NewRunID(),
		interval: DefaultTickInterval,
		log:      logging.Noop(),
		tracer:   observability.Tracer(),
	}
	for _, opt := range opts {
		opt(e)
	}

	store, err := fleet.NewStore(snap.Entities, snap.Tasks, e.storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("build fleet store: %w", err)
	}
	seq, err := phase.NewSequencer(snap.Phases)
	if err != nil {
		return nil, fmt.Errorf("build phase sequencer: %w", err)
	}
	e.store = store
	e.sequencer = seq
	e.log = e.log.With(logging.String("run_id", e.runID))

	e.metrics.SetEntities(store.Entities())
	e.metrics.SetPhases(seq.Phases())
	return e, nil
}

// RunID identifies this engine instance in logs.
func (e *Engine) RunID() string { return e.runID }

// Tick applies one transition: every entity advances its task and jitters its
// latency, and the phase timeline moves to its next phase.
func (e *Engine) Tick(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, observability.TickSpanName)
	defer span.End()

	start := time.Now()
	e.tickMu.Lock()
	e.store.AdvanceAll()
	e.sequencer.Advance()
	e.ticks++
	tick := e.ticks
	entities := e.store.Entities()
	phases := e.sequencer.Phases()
	elapsed := time.Since(start)
	// Gauges are written under tickMu so they always match the state a
	// concurrent SetStatus leaves behind.
	e.metrics.ObserveTick(elapsed)
	e.metrics.SetEntities(entities)
	e.metrics.SetPhases(phases)
	e.tickMu.Unlock()

	active := ""
	for _, p := range phases {
		if p.IsActive {
			active = p.Name
			break
		}
	}
	span.SetAttributes(observability.TickAttributes(tick, len(entities), active)...)

	e.log.Debug(ctx, "tick applied",
		logging.Uint64("tick", tick),
		logging.String("active_phase", active),
		logging.Duration("elapsed", elapsed),
	)
}

// Run starts ticking every configured interval until ctx is cancelled or
// Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()

	if e.scheduler == nil {
		s, err := timectrl.NewScheduler(e.interval)
		if err != nil {
			return err
		}
		s.AddListener(func(ctx context.Context, _ time.Time) { e.Tick(ctx) })
		e.scheduler = s
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return err
	}
	e.log.Info(ctx, "engine started",
		logging.Duration("interval", e.scheduler.Interval()),
		logging.Int("entities", e.store.Len()),
	)
	return nil
}

// Stop halts the scheduler. When it returns, no further tick is applied.
func (e *Engine) Stop() {
	e.schedMu.Lock()
	s := e.scheduler
	e.schedMu.Unlock()
	if s == nil {
		return
	}
	s.Stop()
	e.log.Info(context.Background(), "engine stopped", logging.Uint64("ticks", e.Ticks()))
}

// Running reports whether the scheduler is active.
func (e *Engine) Running() bool {
	e.schedMu.Lock()
	defer e.schedMu.Unlock()
	return e.scheduler != nil && e.scheduler.Running()
}

// Ticks returns the number of applied ticks.
func (e *Engine) Ticks() uint64 {
	e.tickMu.RLock()
	defer e.tickMu.RUnlock()
	return e.ticks
}

// Entities returns the current fleet in seed order.
func (e *Engine) Entities() []model.Entity {
	e.tickMu.RLock()
	defer e.tickMu.RUnlock()
	return e.store.Entities()
}

// Entity returns one entity by ID.
func (e *Engine) Entity(id string) (model.Entity, bool) {
	e.tickMu.RLock()
	defer e.tickMu.RUnlock()
	return e.store.Entity(id)
}

// Phases returns the current mission timeline.
func (e *Engine) Phases() []model.Phase {
	e.tickMu.RLock()
	defer e.tickMu.RUnlock()
	return e.sequencer.Phases()
}

// Summary returns the "N of M nominal" view together with the active phase.
func (e *Engine) Summary() Summary {
	e.tickMu.RLock()
	defer e.tickMu.RUnlock()
	nominal, total := e.store.NominalCount()
	s := Summary{Nominal: nominal, Total: total, Ticks: e.ticks}
	if p, ok := e.sequencer.Active(); ok {
		s.ActivePhase = p.Name
	}
	return s
}

// SetStatus records an externally reported status for entity id.
func (e *Engine) SetStatus(ctx context.Context, id string, status model.Status) error {
	e.tickMu.Lock()
	if err := e.store.SetStatus(id, status); err != nil {
		e.tickMu.Unlock()
		return err
	}
	e.metrics.SetEntities(e.store.Entities())
	e.tickMu.Unlock()
	e.log.Info(ctx, "entity status changed",
		logging.String("id", id),
		logging.String("status", string(status)),
	)
	return nil
}

// Select forwards a consumer's interest in the entity at orbitSlot to the
// selection handler. It changes no engine state.
func (e *Engine) Select(ctx context.Context, orbitSlot string) error {
	if _, ok := e.store.FindBySlot(orbitSlot); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, orbitSlot)
	}
	e.metrics.IncSelection(orbitSlot)
	e.log.Debug(ctx, "entity selected", logging.String("orbit_slot", orbitSlot))
	if e.onSelect != nil {
		e.onSelect(orbitSlot)
	}
	return nil
}
