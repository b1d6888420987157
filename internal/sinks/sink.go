// Package sinks implements the terminal writers of the pipeline: console
// streams, rotating files, and user callables. All variants expose the
// same uniform surface so handler code stays generic over them.
package sinks

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/emberlog/ember/internal/diag"
	"github.com/emberlog/ember/internal/metrics"
)

// Sink is the uniform write surface handlers dispatch into. Write
// receives one fully rendered record. Errors surface to the caller,
// which reports and continues; the one exception is CallableSink, which
// reports a panicking callable itself and returns nil.
type Sink interface {
	Write(line []byte) error
	Flush() error
	Close() error
}

// streamLocks serializes writes to a given stream across every console
// sink attached to it, so concurrently emitted lines stay atomic even
// when two handlers share stderr.
var (
	streamLocksMu sync.Mutex
	streamLocks   = map[*os.File]*sync.Mutex{}
)

func lockFor(stream *os.File) *sync.Mutex {
	streamLocksMu.Lock()
	defer streamLocksMu.Unlock()
	if l, ok := streamLocks[stream]; ok {
		return l
	}
	l := &sync.Mutex{}
	streamLocks[stream] = l
	return l
}

// ConsoleSink writes line-terminated records to a standard stream.
type ConsoleSink struct {
	stream *os.File
	mu     *sync.Mutex
}

// NewConsoleSink wraps a standard stream.
func NewConsoleSink(stream *os.File) *ConsoleSink {
	return &ConsoleSink{stream: stream, mu: lockFor(stream)}
}

// Colorize resolves a tri-state colorize option against the stream: nil
// means "enabled iff the stream is a terminal".
func (c *ConsoleSink) Colorize(force *bool) bool {
	if force != nil {
		return *force
	}
	return isatty.IsTerminal(c.stream.Fd()) || isatty.IsCygwinTerminal(c.stream.Fd())
}

// Write appends a newline and writes the record under the per-stream
// mutex, held for the duration of a single record.
func (c *ConsoleSink) Write(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.stream.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("console write: %w", err)
	}
	return nil
}

// Flush is a no-op: console writes are unbuffered.
func (c *ConsoleSink) Flush() error { return nil }

// Close never closes the underlying standard stream.
func (c *ConsoleSink) Close() error { return nil }

// CallableSink hands each rendered record to a user-supplied function.
// The line passed to the callable carries no trailing newline; framing
// is a stream concern. Panics from the callable are captured and
// reported, never propagated to the producer.
type CallableSink struct {
	name string
	fn   func(string)
}

// NewCallableSink wraps fn. name labels diagnostics and metrics.
func NewCallableSink(name string, fn func(string)) *CallableSink {
	return &CallableSink{name: name, fn: fn}
}

// Write invokes the callable with the rendered line.
func (c *CallableSink) Write(line []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callable panic: %v", r)
			diag.ReportOnce("callable:"+c.name, err, logrus.Fields{"sink": c.name})
			metrics.RecordSinkError(c.name, "callable_panic")
			err = nil // the producer never observes sink failures
		}
	}()
	c.fn(string(line))
	return nil
}

// Flush is a no-op for callables.
func (c *CallableSink) Flush() error { return nil }

// Close is a no-op for callables.
func (c *CallableSink) Close() error { return nil }
