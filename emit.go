package ember

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/emberlog/ember/internal/diag"
	"github.com/emberlog/ember/internal/format"
	"github.com/emberlog/ember/internal/metrics"
	"github.com/emberlog/ember/pkg/level"
	"github.com/emberlog/ember/pkg/record"
)

// Fields carries a producer's optional per-emission data. The engine
// does not introspect the stack: caller and thread identity are used
// only if the producer captured them.
type Fields struct {
	Caller    *record.Caller
	Thread    *record.Thread
	Exception string
	Extra     map[string]any
}

// bufPool recycles render buffers across emissions.
var bufPool = sync.Pool{
	New: func() any { return &bytes.Buffer{} },
}

// Emit is the entry point producers call, resolving the level by name.
// Unknown level names drop the record after a one-time report.
func (e *Engine) Emit(levelName, msg string, f *Fields) {
	l, ok := e.levels.ByName(levelName)
	if !ok {
		diag.ReportOnce("level:"+levelName, fmt.Errorf("unknown level %q", levelName),
			logrus.Fields{"level": levelName})
		return
	}
	e.emit(l, msg, f, nil)
}

// EmitNo is Emit with a numeric level.
func (e *Engine) EmitNo(no uint16, msg string, f *Fields) {
	l, ok := e.levels.ByNo(no)
	if !ok {
		diag.ReportOnce(fmt.Sprintf("levelno:%d", no), fmt.Errorf("unknown level no=%d", no),
			logrus.Fields{"level_no": no})
		return
	}
	e.emit(l, msg, f, nil)
}

// emit runs the per-record pipeline: admission, requirements-gated
// field capture, record construction, then per-handler
// filter → format → dispatch in registration order.
func (e *Engine) emit(l level.Level, msg string, f *Fields, bound map[string]any) {
	snap := e.snap.Load()
	if l.No < snap.minLevel {
		return // fast path: nothing wants this record
	}
	metrics.RecordEmitted(l.Name)

	r := record.Record{
		LevelNo:   l.No,
		LevelName: l.Name,
		Message:   msg,
		Time:      e.now(),
		Extra:     mergeExtras(bound, f),
	}
	if f != nil {
		r.Exception = f.Exception
	}
	reqs := snap.reqs
	if reqs.Elapsed {
		d := e.now().Sub(e.start)
		r.Elapsed = &d
	}
	if f != nil && reqs.Caller {
		r.Caller = f.Caller
	}
	if f != nil && reqs.Thread {
		r.Thread = f.Thread
	}
	if reqs.Process {
		r.Process = e.processInfo()
	}

	buf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(buf)

	for _, h := range snap.handlers {
		if r.LevelNo < h.levelNo {
			continue
		}
		if h.filter != nil && !safeFilter(h, &r) {
			metrics.RecordFiltered()
			continue
		}
		line := h.render(buf, &r, l)
		h.deliver(line)
	}
	for _, cb := range snap.callbacks {
		if r.LevelNo < cb.levelNo {
			continue
		}
		safeCallback(cb, r)
	}
}

// mergeExtras layers per-call extras over bound extras, discarding keys
// that collide with reserved record field names.
func mergeExtras(bound map[string]any, f *Fields) map[string]any {
	var call map[string]any
	if f != nil {
		call = f.Extra
	}
	if bound == nil && call == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(bound)+len(call))
	for k, v := range bound {
		if record.IsReserved(k) {
			reportReserved(k)
			continue
		}
		out[k] = v
	}
	for k, v := range call {
		if record.IsReserved(k) {
			reportReserved(k)
			continue
		}
		out[k] = v
	}
	return out
}

func reportReserved(key string) {
	diag.ReportOnce("extra:"+key,
		fmt.Errorf("extra key %q collides with a record field", key),
		logrus.Fields{"key": key})
}

// safeFilter evaluates a handler filter, treating a panic as rejection.
func safeFilter(h *handler, r *record.Record) (pass bool) {
	defer func() {
		if p := recover(); p != nil {
			pass = false
			diag.ReportOnce("filter:"+h.label, fmt.Errorf("filter panic: %v", p),
				logrus.Fields{"handler": h.label})
			metrics.RecordSinkError(h.label, "filter_panic")
		}
	}()
	return h.filter(r)
}

// safeCallback invokes a callback with a read-only record view,
// capturing panics at the boundary.
func safeCallback(cb *callback, r record.Record) {
	defer func() {
		if p := recover(); p != nil {
			diag.ReportOnce(fmt.Sprintf("callback:%d", cb.id),
				fmt.Errorf("callback panic: %v", p), logrus.Fields{"callback": cb.id})
		}
	}()
	cb.fn(r)
}

// render produces the handler's output line, without trailing newline.
// Formatter failures fall back to a minimal line rather than dropping
// the record silently.
func (h *handler) render(buf *bytes.Buffer, r *record.Record, l level.Level) []byte {
	if h.serialize {
		line, err := format.JSONLine(r)
		if err != nil {
			diag.ReportOnce("serialize:"+h.label, err, logrus.Fields{"handler": h.label})
			metrics.RecordSinkError(h.label, "serialize_error")
		}
		return []byte(line)
	}
	return []byte(h.plan.Render(buf, r, format.RenderOpts{
		Colorize:   h.colorize,
		LevelStyle: l.Color,
	}))
}

// deliver hands a rendered line to the sink, via the worker channel in
// enqueued mode. Sink failures are reported and swallowed; the producer
// never observes them.
func (h *handler) deliver(line []byte) {
	if h.queue != nil {
		h.queue.Push(line)
		return
	}
	if err := h.sink.Write(line); err != nil {
		diag.ReportOnce("sink:"+h.label, err, logrus.Fields{"handler": h.label})
		metrics.RecordSinkError(h.label, "write_error")
	}
}

// Trace emits at TRACE level. args, when present, are interpolated with
// fmt.Sprintf before the record is constructed.
func (e *Engine) Trace(msg string, args ...any) { e.leveled("TRACE", msg, args) }

// Debug emits at DEBUG level.
func (e *Engine) Debug(msg string, args ...any) { e.leveled("DEBUG", msg, args) }

// Info emits at INFO level.
func (e *Engine) Info(msg string, args ...any) { e.leveled("INFO", msg, args) }

// Success emits at SUCCESS level.
func (e *Engine) Success(msg string, args ...any) { e.leveled("SUCCESS", msg, args) }

// Warning emits at WARNING level.
func (e *Engine) Warning(msg string, args ...any) { e.leveled("WARNING", msg, args) }

// Error emits at ERROR level.
func (e *Engine) Error(msg string, args ...any) { e.leveled("ERROR", msg, args) }

// Fail emits at FAIL level.
func (e *Engine) Fail(msg string, args ...any) { e.leveled("FAIL", msg, args) }

// Critical emits at CRITICAL level.
func (e *Engine) Critical(msg string, args ...any) { e.leveled("CRITICAL", msg, args) }

func (e *Engine) leveled(name, msg string, args []any) {
	l, _ := e.levels.ByName(name)
	if len(args) > 0 {
		// Interpolate only past the admission check; below min-level the
		// Sprintf never runs.
		if l.No < e.snap.Load().minLevel {
			return
		}
		msg = fmt.Sprintf(msg, args...)
	}
	e.emit(l, msg, nil, nil)
}

// Bound is a producer view carrying pre-bound extras, merged beneath
// per-call extras on every emission.
type Bound struct {
	e     *Engine
	extra map[string]any
}

// With returns a producer view with extra bound to every record it
// emits. The map is copied.
func (e *Engine) With(extra map[string]any) *Bound {
	b := &Bound{e: e, extra: make(map[string]any, len(extra))}
	for k, v := range extra {
		b.extra[k] = v
	}
	return b
}

// With layers additional bound extras over b's.
func (b *Bound) With(extra map[string]any) *Bound {
	next := &Bound{e: b.e, extra: make(map[string]any, len(b.extra)+len(extra))}
	for k, v := range b.extra {
		next.extra[k] = v
	}
	for k, v := range extra {
		next.extra[k] = v
	}
	return next
}

// Emit emits through the bound view.
func (b *Bound) Emit(levelName, msg string, f *Fields) {
	l, ok := b.e.levels.ByName(levelName)
	if !ok {
		diag.ReportOnce("level:"+levelName, fmt.Errorf("unknown level %q", levelName),
			logrus.Fields{"level": levelName})
		return
	}
	b.e.emit(l, msg, f, b.extra)
}

// Trace emits at TRACE level through the bound view.
func (b *Bound) Trace(msg string, args ...any) { b.leveled("TRACE", msg, args) }

// Debug emits at DEBUG level through the bound view.
func (b *Bound) Debug(msg string, args ...any) { b.leveled("DEBUG", msg, args) }

// Info emits at INFO level through the bound view.
func (b *Bound) Info(msg string, args ...any) { b.leveled("INFO", msg, args) }

// Success emits at SUCCESS level through the bound view.
func (b *Bound) Success(msg string, args ...any) { b.leveled("SUCCESS", msg, args) }

// Warning emits at WARNING level through the bound view.
func (b *Bound) Warning(msg string, args ...any) { b.leveled("WARNING", msg, args) }

// Error emits at ERROR level through the bound view.
func (b *Bound) Error(msg string, args ...any) { b.leveled("ERROR", msg, args) }

// Fail emits at FAIL level through the bound view.
func (b *Bound) Fail(msg string, args ...any) { b.leveled("FAIL", msg, args) }

// Critical emits at CRITICAL level through the bound view.
func (b *Bound) Critical(msg string, args ...any) { b.leveled("CRITICAL", msg, args) }

func (b *Bound) leveled(name, msg string, args []any) {
	l, _ := b.e.levels.ByName(name)
	if len(args) > 0 {
		if l.No < b.e.snap.Load().minLevel {
			return
		}
		msg = fmt.Sprintf(msg, args...)
	}
	b.e.emit(l, msg, nil, b.extra)
}
