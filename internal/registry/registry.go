package registry

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/stockroomhq/inventory-gateway/internal/storage"
)

type State int

const (
	// StateConnecting - a single connect is in flight; callers wait on it
	StateConnecting State = iota

	// StateReady - connection established, models can be compiled
	StateReady

	// StateFailed - connect failed; the entry is being removed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Registry owns one connection and one compiled-model cache per tenant
// database. At most one entry exists per database name; concurrent first
// requests share a single in-flight connect. Idle entries with no
// outstanding references are evicted by a periodic sweep.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	connect        ConnectFunc
	compile        CompileFunc
	connectTimeout time.Duration
	idleTTL        time.Duration
	sweepEvery     time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	databaseName string

	// ready is closed once the connect attempt settles; waiters then read
	// state/err, both written before the close.
	ready chan struct{}
	state State
	db    *storage.Postgres
	err   error

	// guarded by Registry.mu
	refs       int
	lastAccess time.Time

	modelMu sync.Mutex
	models  map[string]*modelEntry
}

type modelEntry struct {
	ready chan struct{}
	model *Model
	err   error
}

type Option func(*Registry)

func WithConnectTimeout(d time.Duration) Option {
	return func(r *Registry) { r.connectTimeout = d }
}

func WithIdleTTL(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) { r.sweepEvery = d }
}

func WithCompileFunc(fn CompileFunc) Option {
	return func(r *Registry) { r.compile = fn }
}

func New(connect ConnectFunc, opts ...Option) *Registry {
	r := &Registry{
		entries:        make(map[string]*entry),
		connect:        connect,
		compile:        defaultCompile,
		connectTimeout: 10 * time.Second,
		idleTTL:        30 * time.Minute,
		sweepEvery:     5 * time.Minute,
		stop:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AcquireModel returns the compiled model for (databaseName, modelName),
// establishing the tenant connection and registering the schema on first
// use. The release func must be called when the request is done with the
// model; an entry with outstanding references is never evicted.
func (r *Registry) AcquireModel(ctx context.Context, databaseName, modelName string, schema Schema) (*Model, func(), error) {
	e := r.join(databaseName)

	select {
	case <-e.ready:
	case <-ctx.Done():
		// The in-flight connect keeps running on its own deadline; its
		// eventual result is kept or discarded by the registry, never
		// left half-applied.
		r.release(e)
		return nil, nil, ctx.Err()
	}

	if e.err != nil {
		r.release(e)
		return nil, nil, e.err
	}

	m, err := r.compileOnce(ctx, e, modelName, schema)
	if err != nil {
		r.release(e)
		return nil, nil, err
	}

	r.mu.Lock()
	e.lastAccess = time.Now()
	r.mu.Unlock()

	var once sync.Once
	releaseFn := func() {
		once.Do(func() { r.release(e) })
	}

	return m, releaseFn, nil
}

// join finds or inserts the entry for databaseName and takes a reference.
// Check-and-insert happens under one lock, so two connects can never race
// for the same key.
func (r *Registry) join(databaseName string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[databaseName]
	if !ok {
		e = &entry{
			databaseName: databaseName,
			ready:        make(chan struct{}),
			state:        StateConnecting,
			models:       make(map[string]*modelEntry),
			lastAccess:   time.Now(),
		}
		r.entries[databaseName] = e
		go r.establish(e)
	}

	e.refs++
	return e
}

// establish runs the single connect for an entry. It uses a background
// context with its own deadline: a caller disconnect must not abort a
// connect that other callers are waiting on.
func (r *Registry) establish(e *entry) {
	ctx, cancel := context.WithTimeout(context.Background(), r.connectTimeout)
	defer cancel()

	db, err := r.connect(ctx, e.databaseName)

	r.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = fmt.Errorf("tenant %s: connect failed: %w", e.databaseName, err)
		// Remove entirely so the next request gets a fresh attempt.
		delete(r.entries, e.databaseName)
	} else {
		e.state = StateReady
		e.db = db
		e.lastAccess = time.Now()
	}
	r.mu.Unlock()

	if err != nil {
		log.Printf("Tenant %s: connect failed: %v", e.databaseName, err)
	}

	close(e.ready)
}

// compileOnce registers a schema exactly once per (entry, name). The
// placeholder is inserted under the entry's model lock and compiled
// outside it, so a second registration of the same name can only ever
// join the first or return its cached model.
func (r *Registry) compileOnce(ctx context.Context, e *entry, modelName string, schema Schema) (*Model, error) {
	e.modelMu.Lock()
	me, ok := e.models[modelName]
	if !ok {
		me = &modelEntry{ready: make(chan struct{})}
		e.models[modelName] = me
		e.modelMu.Unlock()

		// Compile on the registry's own deadline for the same reason
		// connects do: the result must be fully applied or fully absent.
		cctx, cancel := context.WithTimeout(context.Background(), r.connectTimeout)
		defer cancel()

		m, err := r.compile(cctx, e.db, modelName, schema)
		if err != nil {
			me.err = err
			e.modelMu.Lock()
			delete(e.models, modelName)
			e.modelMu.Unlock()
		} else {
			me.model = m
		}
		close(me.ready)
	} else {
		e.modelMu.Unlock()
	}

	select {
	case <-me.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return me.model, me.err
}

func (r *Registry) release(e *entry) {
	r.mu.Lock()
	e.refs--
	e.lastAccess = time.Now()
	r.mu.Unlock()
}

// Start begins the periodic idle-eviction sweep.
func (r *Registry) Start() {
	go func() {
		ticker := time.NewTicker(r.sweepEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the sweeper and closes every idle connection.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.CloseAll()
}

// sweep evicts Ready entries that have been idle past the TTL and have no
// outstanding references, closing the underlying connection.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*entry
	for name, e := range r.entries {
		if e.state == StateReady && e.refs == 0 && e.lastAccess.Before(cutoff) {
			delete(r.entries, name)
			evicted = append(evicted, e)
		}
	}
	r.mu.Unlock()

	for _, e := range evicted {
		if err := e.db.Close(); err != nil {
			log.Printf("Tenant %s: close after eviction: %v", e.databaseName, err)
		} else {
			log.Printf("Tenant %s: evicted after idle timeout", e.databaseName)
		}
	}
}

// CloseAll tears down every entry regardless of idle time. Entries still
// connecting are left to finish; they will be swept later.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var closing []*entry
	for name, e := range r.entries {
		if e.state == StateReady {
			delete(r.entries, name)
			closing = append(closing, e)
		}
	}
	r.mu.Unlock()

	for _, e := range closing {
		e.db.Close()
	}
}

type EntryInfo struct {
	DatabaseName   string    `json:"database_name"`
	State          string    `json:"state"`
	Models         int       `json:"models"`
	Refs           int       `json:"refs"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

func (r *Registry) Snapshot() []EntryInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EntryInfo, 0, len(r.entries))
	for _, e := range r.entries {
		e.modelMu.Lock()
		nModels := len(e.models)
		e.modelMu.Unlock()

		out = append(out, EntryInfo{
			DatabaseName:   e.databaseName,
			State:          e.state.String(),
			Models:         nModels,
			Refs:           e.refs,
			LastAccessedAt: e.lastAccess,
		})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
