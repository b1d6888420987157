package ember

import (
	"github.com/emberlog/ember/pkg/record"
)

// DefaultFormat is the template used when a handler specifies none.
const DefaultFormat = "{time} | {level:<8} | {message}"

// defaultQueueSize is the channel capacity for enqueued file sinks.
const defaultQueueSize = 1024

// Tri is a three-valued override for one collection requirement bit.
type Tri int

const (
	// Auto keeps the value derived from the format plan and filter.
	Auto Tri = iota
	// Always forces the field to be captured.
	Always
	// Never elides the field even if the plan references it.
	Never
)

// Collect overrides the automatically derived collection requirements
// of one handler, bit by bit.
type Collect struct {
	Caller  Tri
	Thread  Tri
	Process Tri
	Elapsed Tri
}

func (c Collect) apply(r record.Requirements) record.Requirements {
	set := func(cur bool, t Tri) bool {
		switch t {
		case Always:
			return true
		case Never:
			return false
		default:
			return cur
		}
	}
	return record.Requirements{
		Caller:  set(r.Caller, c.Caller),
		Thread:  set(r.Thread, c.Thread),
		Process: set(r.Process, c.Process),
		Elapsed: set(r.Elapsed, c.Elapsed),
	}
}

// handlerOptions collects the recognized handler configuration. Every
// field maps to one documented option; validation happens at Add time
// so misconfiguration surfaces to the caller, never mid-emission.
type handlerOptions struct {
	level     string
	levelNo   uint16
	byNo      bool
	format    string
	serialize bool
	filter    func(*record.Record) bool

	rotation    string
	retention   string
	compression bool
	enqueue     bool
	queueSize   int
	watch       bool
	delay       bool

	colorize *bool // nil = auto by TTY detection

	collect Collect
}

// Option configures one handler at Add time.
type Option func(*handlerOptions)

func defaultOptions() handlerOptions {
	return handlerOptions{
		level:     "TRACE",
		format:    DefaultFormat,
		queueSize: defaultQueueSize,
	}
}

// Level sets the handler's minimum level by name.
func Level(name string) Option {
	return func(o *handlerOptions) { o.level = name; o.byNo = false }
}

// LevelNo sets the handler's minimum level by number, for custom levels
// addressed numerically.
func LevelNo(no uint16) Option {
	return func(o *handlerOptions) { o.levelNo = no; o.byNo = true }
}

// Format sets the handler's template. Recognized tokens are {time},
// {level} (with an optional width such as {level:<8}), {message},
// {name}, {function}, {line}, {file}, {elapsed}, {thread}, {process}
// and {extra[key]}; any other braced token renders empty. Ignored when
// Serialize is enabled.
func Format(template string) Option {
	return func(o *handlerOptions) { o.format = template }
}

// Serialize switches the handler to canonical one-line JSON output.
func Serialize(enabled bool) Option {
	return func(o *handlerOptions) { o.serialize = enabled }
}

// Filter installs a predicate; a record reaches the sink iff the
// predicate returns true. Filters are treated as opaque: their presence
// forces full field collection unless overridden with WithCollect.
func Filter(fn func(*record.Record) bool) Option {
	return func(o *handlerOptions) { o.filter = fn }
}

// Rotation sets the file rotation policy: "<N> <unit>" with unit in
// B/KB/MB/GB, or "daily"/"hourly". File sinks only.
func Rotation(spec string) Option {
	return func(o *handlerOptions) { o.rotation = spec }
}

// Retention sets the rotated-file cleanup policy: "<N> days" or a bare
// count. File sinks only.
func Retention(spec string) Option {
	return func(o *handlerOptions) { o.retention = spec }
}

// Compression gzips rotated segments in the background. File sinks only.
func Compression(enabled bool) Option {
	return func(o *handlerOptions) { o.compression = enabled }
}

// Enqueue routes writes through a dedicated worker fed by a bounded
// channel, so the producer never blocks on file I/O. File sinks only.
func Enqueue(enabled bool) Option {
	return func(o *handlerOptions) { o.enqueue = enabled }
}

// QueueSize sets the enqueued channel capacity.
func QueueSize(n int) Option {
	return func(o *handlerOptions) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// Watch reopens the active file if it is removed or renamed externally.
// File sinks only.
func Watch(enabled bool) Option {
	return func(o *handlerOptions) { o.watch = enabled }
}

// Delay defers file creation to the first write. File sinks only.
func Delay(enabled bool) Option {
	return func(o *handlerOptions) { o.delay = enabled }
}

// Colorize forces ANSI color on or off for a console sink. Without it,
// color is enabled iff the stream is a terminal.
func Colorize(enabled bool) Option {
	return func(o *handlerOptions) { o.colorize = &enabled }
}

// WithCollect overrides the derived collection requirements.
func WithCollect(c Collect) Option {
	return func(o *handlerOptions) { o.collect = c }
}
