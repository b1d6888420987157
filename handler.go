package ember

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/emberlog/ember/internal/dispatch"
	"github.com/emberlog/ember/internal/format"
	"github.com/emberlog/ember/internal/sinks"
	"github.com/emberlog/ember/pkg/record"
)

// handler binds a level threshold, an optional filter, a compiled
// format plan and a sink. Handlers are immutable after creation and
// torn down by explicit removal or engine shutdown.
type handler struct {
	id        uint64
	label     string
	levelNo   uint16
	filter    func(*record.Record) bool
	plan      *format.Plan
	serialize bool
	reqs      record.Requirements

	sink     sinks.Sink
	queue    *dispatch.Queue // non-nil in enqueued mode
	colorize bool
}

// callback is a registered observer invoked with a read-only record
// view after handler dispatch.
type callback struct {
	id      uint64
	levelNo uint16
	reqs    record.Requirements
	fn      func(record.Record)
}

// buildHandler validates the shared options and compiles the plan.
func (e *Engine) buildHandler(label string, o handlerOptions) (*handler, error) {
	var levelNo uint16
	if o.byNo {
		l, ok := e.levels.ByNo(o.levelNo)
		if !ok {
			return nil, fmt.Errorf("unknown level no=%d", o.levelNo)
		}
		levelNo = l.No
	} else {
		l, ok := e.levels.ByName(o.level)
		if !ok {
			return nil, fmt.Errorf("unknown level %q", o.level)
		}
		levelNo = l.No
	}

	plan := format.Compile(o.format)
	reqs := plan.Requirements()
	if o.filter != nil {
		// The filter is opaque and may inspect any field.
		reqs = record.All
	}
	reqs = o.collect.apply(reqs)

	return &handler{
		id:        e.nextID.Add(1),
		label:     label,
		levelNo:   levelNo,
		filter:    o.filter,
		plan:      plan,
		serialize: o.serialize,
		reqs:      reqs,
	}, nil
}

// AddFile registers a file sink handler for path. The returned id
// removes it. Configuration problems (bad rotation spec, unknown level,
// duplicate path) surface here, never during emission.
func (e *Engine) AddFile(path string, opts ...Option) (uint64, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	h, err := e.buildHandler(path, o)
	if err != nil {
		return 0, err
	}
	rotation, err := sinks.ParseRotation(o.rotation)
	if err != nil {
		return 0, err
	}
	retention, err := sinks.ParseRetention(o.retention)
	if err != nil {
		return 0, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("invalid sink path %q: %w", path, err)
	}

	e.mu.Lock()
	if prev, dup := e.paths[abs]; dup {
		e.mu.Unlock()
		return 0, fmt.Errorf("path %q already claimed by handler %d", path, prev)
	}
	// Claim the path before the sink opens so a concurrent Add cannot
	// race two writers onto one file.
	e.paths[abs] = h.id
	e.mu.Unlock()

	fs, err := sinks.NewFileSink(sinks.FileConfig{
		Path:      path,
		Rotation:  rotation,
		Retention: retention,
		Compress:  o.compression,
		Watch:     o.watch,
		Delay:     o.delay,
		Now:       e.now,
	})
	if err != nil {
		e.mu.Lock()
		delete(e.paths, abs)
		e.mu.Unlock()
		return 0, err
	}
	h.sink = fs
	if o.enqueue {
		h.queue = dispatch.NewQueue(path, o.queueSize, fs)
	}
	e.register(h, nil)
	return h.id, nil
}

// AddConsole registers a console handler on a standard stream.
func (e *Engine) AddConsole(stream *os.File, opts ...Option) (uint64, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	h, err := e.buildHandler(stream.Name(), o)
	if err != nil {
		return 0, err
	}
	cs := sinks.NewConsoleSink(stream)
	h.sink = cs
	h.colorize = cs.Colorize(o.colorize)
	e.register(h, nil)
	return h.id, nil
}

// AddCallable registers a handler that hands each rendered line to fn.
// The line carries no trailing newline. Callable handlers never
// enqueue; ordering is the callable's own concern.
func (e *Engine) AddCallable(fn func(string), opts ...Option) (uint64, error) {
	if fn == nil {
		return 0, fmt.Errorf("callable sink needs a function")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	h, err := e.buildHandler("callable", o)
	if err != nil {
		return 0, err
	}
	h.label = fmt.Sprintf("callable-%d", h.id)
	h.sink = sinks.NewCallableSink(h.label, fn)
	e.register(h, nil)
	return h.id, nil
}

// AddCallback registers an observer invoked with a read-only view of
// every record at or above its level, after handler dispatch. Callbacks
// are opaque, so they force full field collection unless relaxed with
// WithCollect.
func (e *Engine) AddCallback(fn func(record.Record), opts ...Option) (uint64, error) {
	if fn == nil {
		return 0, fmt.Errorf("callback needs a function")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	var levelNo uint16
	if o.byNo {
		l, ok := e.levels.ByNo(o.levelNo)
		if !ok {
			return 0, fmt.Errorf("unknown level no=%d", o.levelNo)
		}
		levelNo = l.No
	} else {
		l, ok := e.levels.ByName(o.level)
		if !ok {
			return 0, fmt.Errorf("unknown level %q", o.level)
		}
		levelNo = l.No
	}
	// Callbacks are opaque and default to full collection; an explicit
	// Collect override can relax that (e.g. spy callbacks in tests).
	cb := &callback{
		id:      e.nextID.Add(1),
		levelNo: levelNo,
		reqs:    o.collect.apply(record.All),
		fn:      fn,
	}
	e.register(nil, cb)
	return cb.id, nil
}

// register appends a handler or callback and swaps in a fresh snapshot.
func (e *Engine) register(h *handler, cb *callback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.snap.Load()
	next := &snapshot{
		handlers:  append([]*handler{}, cur.handlers...),
		callbacks: append([]*callback{}, cur.callbacks...),
	}
	if h != nil {
		next.handlers = append(next.handlers, h)
	}
	if cb != nil {
		next.callbacks = append(next.callbacks, cb)
	}
	rebuild(next)
	e.snap.Store(next)
}

// Remove detaches a handler or callback by id. Removing an enqueued
// file handler drains and stops its worker before the sink closes;
// writes racing the removal are discarded.
func (e *Engine) Remove(id uint64) bool {
	e.mu.Lock()
	cur := e.snap.Load()
	var removed *handler
	next := &snapshot{}
	for _, h := range cur.handlers {
		if h.id == id {
			removed = h
			continue
		}
		next.handlers = append(next.handlers, h)
	}
	found := removed != nil
	for _, cb := range cur.callbacks {
		if cb.id == id {
			found = true
			continue
		}
		next.callbacks = append(next.callbacks, cb)
	}
	if !found {
		e.mu.Unlock()
		return false
	}
	rebuild(next)
	e.snap.Store(next)
	if removed != nil {
		if fs, ok := removed.sink.(*sinks.FileSink); ok {
			if abs, err := filepath.Abs(fs.Path()); err == nil {
				delete(e.paths, abs)
			}
		}
	}
	e.mu.Unlock()

	if removed != nil {
		removed.teardown()
	}
	return true
}

// RemoveAll detaches every handler and callback.
func (e *Engine) RemoveAll() {
	e.Shutdown()
}

// rebuild refreshes the snapshot's cached minimum level and aggregated
// collection requirements.
func rebuild(s *snapshot) {
	s.minLevel = math.MaxUint16
	s.reqs = record.Requirements{}
	for _, h := range s.handlers {
		if h.levelNo < s.minLevel {
			s.minLevel = h.levelNo
		}
		s.reqs = s.reqs.Or(h.reqs)
	}
	for _, cb := range s.callbacks {
		if cb.levelNo < s.minLevel {
			s.minLevel = cb.levelNo
		}
		s.reqs = s.reqs.Or(cb.reqs)
	}
}

// complete flushes this handler's write path.
func (h *handler) complete() {
	if h.queue != nil {
		_ = h.queue.Flush(completeTimeout)
		return
	}
	_ = h.sink.Flush()
}

// teardown drains, stops the worker if any, and closes the sink.
func (h *handler) teardown() {
	if h.queue != nil {
		h.queue.Stop(completeTimeout)
	}
	_ = h.sink.Close()
}
