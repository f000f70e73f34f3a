package ecs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"
)

// System is logic polled once per tick against entities matching its
// required-component filter. An empty Requires list matches every entity.
type System interface {
	Requires() []ComponentKind
	Update(w *World, dt time.Duration, entities []*Entity)
}

type WorldConfig struct {
	TickRateHz int
	Clock      Clock
	Logger     *log.Logger
}

type namedSystem struct {
	name string
	sys  System
}

// World is a single-threaded entity/component registry. All state must be
// accessed only from the world loop goroutine; external goroutines re-enter
// through Enqueue.
type World struct {
	cfg   WorldConfig
	clock Clock
	log   *log.Logger

	entities map[string]*Entity
	order    []string

	systems []namedSystem
	byName  map[string]System

	defaults [kindCount]func(e *Entity) Component

	inbox chan func()
	stop  chan struct{}

	tick    atomic.Uint64
	running atomic.Bool

	nextEntityNum atomic.Uint64
}

func New(cfg WorldConfig) *World {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 5
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &World{
		cfg:      cfg,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		entities: map[string]*Entity{},
		byName:   map[string]System{},
		inbox:    make(chan func(), 1024),
		stop:     make(chan struct{}),
	}
}

func (w *World) Clock() Clock { return w.clock }

func (w *World) Now() time.Time { return w.clock.Now() }

func (w *World) Tick() uint64 { return w.tick.Load() }

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

// Enqueue posts a closure to be executed on the world loop before the next
// tick's systems run. Safe to call from any goroutine.
func (w *World) Enqueue(fn func()) {
	if fn == nil {
		return
	}
	select {
	case w.inbox <- fn:
	default:
		// Inbox full: drop and log rather than block a transport goroutine.
		w.log.Printf("world inbox full, dropping task")
	}
}

// RegisterDefault installs the constructor EnsureComponent uses to lazily
// materialize a component of the given kind.
func (w *World) RegisterDefault(k ComponentKind, ctor func(e *Entity) Component) {
	if k < 0 || k >= kindCount {
		return
	}
	w.defaults[k] = ctor
}

// EnsureComponent returns the entity's component of the given kind,
// constructing and attaching a default one if absent. Calling it twice
// returns the same instance. Returns nil if the entity is nil or no default
// constructor is registered for an absent kind.
func (w *World) EnsureComponent(e *Entity, k ComponentKind) Component {
	if e == nil || k < 0 || k >= kindCount {
		return nil
	}
	if c := e.components[k]; c != nil {
		return c
	}
	ctor := w.defaults[k]
	if ctor == nil {
		return nil
	}
	c := ctor(e)
	if c == nil {
		return nil
	}
	e.components[k] = c
	return c
}

// Spawn creates an entity with an explicit id, or a minted one if id is
// empty. Spawning an id that already exists returns the existing entity.
func (w *World) Spawn(id, tag, name string) *Entity {
	if id == "" {
		id = w.NewID()
	}
	if e, ok := w.entities[id]; ok {
		return e
	}
	e := &Entity{ID: id, Tag: tag, Name: name}
	w.entities[id] = e
	w.order = append(w.order, id)
	return e
}

func (w *World) NewID() string {
	n := w.nextEntityNum.Add(1)
	return fmt.Sprintf("E%06d", n)
}

// Entity returns the entity by id, or nil.
func (w *World) Entity(id string) *Entity {
	return w.entities[id]
}

// Remove destroys the entity by id. Unknown ids are a no-op.
func (w *World) Remove(id string) {
	if _, ok := w.entities[id]; !ok {
		return
	}
	delete(w.entities, id)
	for i, eid := range w.order {
		if eid == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// Entities returns a snapshot of all entities in spawn order.
func (w *World) Entities() []*Entity {
	out := make([]*Entity, 0, len(w.order))
	for _, id := range w.order {
		if e, ok := w.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// EntitiesByTag returns a snapshot of entities carrying the tag.
func (w *World) EntitiesByTag(tag string) []*Entity {
	var out []*Entity
	for _, e := range w.Entities() {
		if e.Tag == tag {
			out = append(out, e)
		}
	}
	return out
}

// EntitiesWith returns a snapshot of entities that have a component of the
// given kind attached.
func (w *World) EntitiesWith(k ComponentKind) []*Entity {
	var out []*Entity
	for _, e := range w.Entities() {
		if e.Has(k) {
			out = append(out, e)
		}
	}
	return out
}

// AddSystem registers a system under a unique name.
func (w *World) AddSystem(name string, sys System) error {
	if name == "" || sys == nil {
		return fmt.Errorf("empty system name or nil system")
	}
	if _, ok := w.byName[name]; ok {
		return fmt.Errorf("system already registered: %s", name)
	}
	w.byName[name] = sys
	w.systems = append(w.systems, namedSystem{name: name, sys: sys})
	return nil
}

// System returns the system registered under name, or nil.
func (w *World) System(name string) System {
	return w.byName[name]
}

// SystemNames returns registered system names in registration order.
func (w *World) SystemNames() []string {
	out := make([]string, 0, len(w.systems))
	for _, ns := range w.systems {
		out = append(out, ns.name)
	}
	return out
}

// Clear removes all entities and systems. It is the only teardown path and
// must run on the world loop (or while the loop is stopped).
func (w *World) Clear() {
	w.entities = map[string]*Entity{}
	w.order = nil
	w.systems = nil
	w.byName = map[string]System{}
}

// Run drives the tick loop until the context is canceled or Stop is called.
func (w *World) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("world already running")
	}
	defer w.running.Store(false)

	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case fn := <-w.inbox:
			fn()
		case <-ticker.C:
			w.StepOnce(interval)
		}
	}
}

// Start spawns the tick loop on its own goroutine. Stop ends it.
func (w *World) Start() {
	go func() { _ = w.Run(context.Background()) }()
}

func (w *World) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// StepOnce drains pending inbox tasks and advances the world by a single
// tick, running every system against its matching entity snapshot. It is the
// same path the server loop uses, exposed for deterministic tests.
func (w *World) StepOnce(dt time.Duration) {
drain:
	for {
		select {
		case fn := <-w.inbox:
			fn()
		default:
			break drain
		}
	}
	w.tick.Add(1)
	for _, ns := range w.systems {
		ents := w.matching(ns.sys.Requires())
		ns.sys.Update(w, dt, ents)
	}
}

func (w *World) matching(req []ComponentKind) []*Entity {
	if len(req) == 0 {
		return w.Entities()
	}
	var out []*Entity
	for _, e := range w.Entities() {
		ok := true
		for _, k := range req {
			if !e.Has(k) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out
}

// SortByID orders an entity snapshot by id, for callers that need stable
// iteration independent of spawn order.
func SortByID(ents []*Entity) {
	sort.Slice(ents, func(i, j int) bool { return ents[i].ID < ents[j].ID })
}
