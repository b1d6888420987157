// Package ember is a high-throughput structured logging engine. It
// accepts log records from producer goroutines and dispatches them to a
// configurable set of sinks (console streams, rotating files, user
// callables) with per-handler filtering, text or JSON formatting, inline
// color markup, size and time based file rotation, retention cleanup,
// optional gzip compression of rotated segments, and an optional
// asynchronous write path that never blocks the producer on I/O.
//
// The hot path is lock-free: handler mutations swap an immutable
// snapshot that emissions read with a single atomic load, and the
// min-level admission check short-circuits before any allocation.
//
//	eng := ember.New()
//	id, err := eng.AddFile("logs/app.log",
//		ember.Level("INFO"),
//		ember.Format("{time} | {level:<8} | {message}"),
//		ember.Rotation("100 MB"),
//		ember.Retention("7 days"),
//		ember.Compression(true),
//		ember.Enqueue(true),
//	)
//	...
//	eng.Info("service started on port %d", 8080)
//	eng.Shutdown()
package ember

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/emberlog/ember/pkg/level"
	"github.com/emberlog/ember/pkg/record"
)

// completeTimeout bounds every drain performed by Complete and Shutdown.
const completeTimeout = 5 * time.Second

// Engine is the process-facing pipeline: a level registry, an ordered
// handler registry, and the emission entry point. All methods are safe
// for concurrent use.
type Engine struct {
	levels *level.Registry
	start  time.Time
	now    func() time.Time

	mu     sync.Mutex // serializes handler/callback mutations
	snap   atomic.Pointer[snapshot]
	nextID atomic.Uint64
	paths  map[string]uint64 // absolute file path -> handler id

	procOnce sync.Once
	proc     *record.Process
}

// snapshot is the immutable view the hot path reads. Mutations rebuild
// the whole thing and swap it in.
type snapshot struct {
	handlers  []*handler
	callbacks []*callback
	minLevel  uint16
	reqs      record.Requirements
}

// New returns an engine with the built-in levels and no handlers.
func New() *Engine {
	e := &Engine{
		levels: level.NewRegistry(),
		start:  time.Now(),
		now:    time.Now,
		paths:  map[string]uint64{},
	}
	e.snap.Store(&snapshot{minLevel: math.MaxUint16})
	return e
}

var (
	defaultOnce sync.Once
	defaultEng  *Engine
)

// Default returns the process-wide engine. Convenience surfaces route
// through it; libraries should accept an *Engine instead.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEng = New()
	})
	return defaultEng
}

// RegisterLevel adds a custom severity. Built-ins cannot be renumbered;
// duplicate (name, no) registration is idempotent. color is a markup
// style descriptor such as "<yellow><bold>".
func (e *Engine) RegisterLevel(name string, no uint16, color, icon string) error {
	return e.levels.Register(name, no, color, icon)
}

// Level resolves a severity by display name.
func (e *Engine) Level(name string) (level.Level, bool) {
	return e.levels.ByName(name)
}

// MinLevel returns the smallest level any live handler or callback
// accepts. Emissions below it short-circuit before record construction.
func (e *Engine) MinLevel() uint16 {
	return e.snap.Load().minLevel
}

// Requirements returns the engine-wide collection requirements: the OR
// across every live handler and callback.
func (e *Engine) Requirements() record.Requirements {
	return e.snap.Load().reqs
}

// HandlerCount returns the number of live handlers.
func (e *Engine) HandlerCount() int {
	return len(e.snap.Load().handlers)
}

// Complete flushes every sync sink and drains every enqueued sink. It
// returns once all records emitted before the call are on their way to
// the kernel (or the bounded drain wait expired).
func (e *Engine) Complete() {
	snap := e.snap.Load()
	for _, h := range snap.handlers {
		h.complete()
	}
}

// Shutdown drains and tears down every handler and callback. Enqueued
// workers are joined with a bounded wait; records still in flight past
// it are dropped and counted. The engine may be reused afterwards by
// adding new handlers.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	old := e.snap.Load()
	e.snap.Store(&snapshot{minLevel: math.MaxUint16})
	e.paths = map[string]uint64{}
	e.mu.Unlock()

	for _, h := range old.handlers {
		h.teardown()
	}
}

// processInfo resolves the process identity once and caches it.
func (e *Engine) processInfo() *record.Process {
	e.procOnce.Do(func() {
		pid := os.Getpid()
		var name string
		if p, err := process.NewProcess(int32(pid)); err == nil {
			if n, err := p.Name(); err == nil {
				name = n
			}
		}
		if name == "" {
			name = filepath.Base(os.Args[0])
		}
		e.proc = &record.Process{Name: name, ID: pid}
	})
	return e.proc
}
