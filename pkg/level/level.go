// Package level maintains the ordered set of severity levels.
//
// The registry is consulted on every emission to resolve a level name to
// its number, so lookups never take a lock: the backing maps are immutable
// and swapped atomically on mutation (copy-on-write).
package level

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Built-in severity numbers. These levels are always registered and cannot
// be removed or renumbered.
const (
	TraceNo    uint16 = 5
	DebugNo    uint16 = 10
	InfoNo     uint16 = 20
	SuccessNo  uint16 = 25
	WarningNo  uint16 = 30
	ErrorNo    uint16 = 40
	FailNo     uint16 = 45
	CriticalNo uint16 = 50
)

// Level describes one severity: a number establishing the total order, a
// display name, an optional color markup descriptor (e.g. "<red><bold>")
// applied to the level name on colorized sinks, and an optional icon.
type Level struct {
	No    uint16
	Name  string
	Color string
	Icon  string
}

// state is the immutable registry snapshot. Mutations build a new state
// and swap it in; readers load it with a single atomic operation.
type state struct {
	byName map[string]Level
	byNo   map[uint16]Level
	min    uint16
}

// Registry is a copy-on-write set of levels, pre-seeded with the
// built-ins.
type Registry struct {
	mu    sync.Mutex // serializes mutations only
	state atomic.Pointer[state]
}

var builtins = []Level{
	{No: TraceNo, Name: "TRACE", Color: "<cyan><bold>", Icon: "✏️"},
	{No: DebugNo, Name: "DEBUG", Color: "<blue><bold>", Icon: "🐞"},
	{No: InfoNo, Name: "INFO", Color: "<bold>", Icon: "ℹ️"},
	{No: SuccessNo, Name: "SUCCESS", Color: "<green><bold>", Icon: "✔️"},
	{No: WarningNo, Name: "WARNING", Color: "<yellow><bold>", Icon: "⚠️"},
	{No: ErrorNo, Name: "ERROR", Color: "<red><bold>", Icon: "❌"},
	{No: FailNo, Name: "FAIL", Color: "<magenta><bold>", Icon: "‼️"},
	{No: CriticalNo, Name: "CRITICAL", Color: "<bright_red><bold>", Icon: "☠️"},
}

// NewRegistry returns a registry holding the built-in levels.
func NewRegistry() *Registry {
	r := &Registry{}
	st := &state{byName: make(map[string]Level), byNo: make(map[uint16]Level)}
	for _, l := range builtins {
		st.byName[l.Name] = l
		st.byNo[l.No] = l
	}
	st.min = TraceNo
	r.state.Store(st)
	return r
}

// Register adds a level. Re-registering an existing (name, no) pair is
// idempotent and leaves the original color and icon in place; registering
// an existing name under a different number is rejected, as is reusing a
// number already bound to another name.
func (r *Registry) Register(name string, no uint16, color, icon string) error {
	if name == "" {
		return fmt.Errorf("level name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.state.Load()
	if existing, ok := cur.byName[name]; ok {
		if existing.No != no {
			return fmt.Errorf("level %q already registered with no=%d", name, existing.No)
		}
		return nil
	}
	if existing, ok := cur.byNo[no]; ok {
		return fmt.Errorf("level no=%d already registered as %q", no, existing.Name)
	}

	next := &state{
		byName: make(map[string]Level, len(cur.byName)+1),
		byNo:   make(map[uint16]Level, len(cur.byNo)+1),
	}
	for k, v := range cur.byName {
		next.byName[k] = v
	}
	for k, v := range cur.byNo {
		next.byNo[k] = v
	}
	l := Level{No: no, Name: name, Color: color, Icon: icon}
	next.byName[name] = l
	next.byNo[no] = l
	next.min = cur.min
	if no < next.min {
		next.min = no
	}
	r.state.Store(next)
	return nil
}

// ByName resolves a level by display name.
func (r *Registry) ByName(name string) (Level, bool) {
	l, ok := r.state.Load().byName[name]
	return l, ok
}

// ByNo resolves a level by number.
func (r *Registry) ByNo(no uint16) (Level, bool) {
	l, ok := r.state.Load().byNo[no]
	return l, ok
}

// Min returns the smallest registered level number.
func (r *Registry) Min() uint16 {
	return r.state.Load().min
}
