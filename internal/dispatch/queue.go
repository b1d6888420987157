// Package dispatch implements the asynchronous write path: a bounded
// multi-producer single-consumer channel feeding one dedicated worker
// per enqueued file sink.
//
// Producers hand off rendered bytes and never touch the sink; ordering
// within one queue is the channel's FIFO order. Flush and stop are
// modeled as sentinel items so they drain everything queued before them.
package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emberlog/ember/internal/diag"
	"github.com/emberlog/ember/internal/metrics"
)

// pushWait bounds how long a producer blocks on a full channel before
// the record is dropped and counted.
const pushWait = 500 * time.Millisecond

type itemKind int

const (
	itemWrite itemKind = iota
	itemFlush
	itemStop
)

type item struct {
	kind itemKind
	data []byte
	done chan struct{} // closed by the worker for flush/stop sentinels
}

// Writer is the synchronous write surface the worker drains into.
type Writer interface {
	Write(line []byte) error
	Flush() error
}

// Queue is the bounded MPSC channel plus its worker goroutine.
type Queue struct {
	name   string
	ch     chan item
	writer Writer

	wg          sync.WaitGroup
	stopped     atomic.Bool
	quarantined atomic.Bool
	dropped     atomic.Uint64
}

// NewQueue starts the worker and returns the queue. A non-positive
// capacity is replaced by 1024.
func NewQueue(name string, capacity int, w Writer) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	q := &Queue{
		name:   name,
		ch:     make(chan item, capacity),
		writer: w,
	}
	q.wg.Add(1)
	go q.work()
	return q
}

// Push hands rendered bytes to the worker. It blocks up to pushWait when
// the channel is full, then drops the record and counts it. Pushes after
// Stop or after a worker panic are dropped immediately.
func (q *Queue) Push(line []byte) {
	if q.stopped.Load() || q.quarantined.Load() {
		q.drop("quarantined")
		return
	}
	it := item{kind: itemWrite, data: line}
	select {
	case q.ch <- it:
		metrics.SetQueueUtilization(q.name, q.utilization())
		return
	default:
	}
	timer := time.NewTimer(pushWait)
	defer timer.Stop()
	select {
	case q.ch <- it:
		metrics.SetQueueUtilization(q.name, q.utilization())
	case <-timer.C:
		q.drop("channel_full")
	}
}

// Flush blocks until everything queued before it has been written and
// the underlying writer flushed.
func (q *Queue) Flush(timeout time.Duration) error {
	if q.stopped.Load() || q.quarantined.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case q.ch <- item{kind: itemFlush, done: done}:
	case <-time.After(timeout):
		return fmt.Errorf("queue %s: flush enqueue timed out", q.name)
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("queue %s: flush wait timed out", q.name)
	}
}

// Stop drains the queue, stops the worker and joins it with a bounded
// wait. Items still in flight past the wait are dropped and counted.
func (q *Queue) Stop(timeout time.Duration) {
	if q.stopped.Swap(true) {
		return
	}
	done := make(chan struct{})
	enqueued := true
	select {
	case q.ch <- item{kind: itemStop, done: done}:
	case <-time.After(timeout):
		enqueued = false
	}
	if enqueued {
		select {
		case <-done:
			q.wg.Wait()
			return
		case <-time.After(timeout):
		}
	}
	// The worker is stuck or the channel never accepted the sentinel.
	// Whatever is still queued will not be written.
	remaining := uint64(len(q.ch))
	if remaining > 0 {
		q.dropped.Add(remaining)
		metrics.RecordsDroppedTotal.WithLabelValues(q.name, "shutdown_timeout").Add(float64(remaining))
		diag.Report(nil, logrus.Fields{"sink": q.name, "dropped": remaining},
			"enqueued sink shut down with messages in flight")
	}
}

// Dropped returns the number of records this queue discarded.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Quarantined reports whether the worker died and the queue now drops
// every push.
func (q *Queue) Quarantined() bool {
	return q.quarantined.Load()
}

func (q *Queue) utilization() float64 {
	return float64(len(q.ch)) / float64(cap(q.ch))
}

func (q *Queue) drop(reason string) {
	q.dropped.Add(1)
	metrics.RecordDropped(q.name, reason)
	diag.ReportOnce("drop:"+q.name+":"+reason,
		fmt.Errorf("record dropped (%s)", reason),
		logrus.Fields{"sink": q.name, "reason": reason})
}

// work is the single consumer. A panic in the writer quarantines the
// sink with a sticky error instead of taking the process down.
func (q *Queue) work() {
	defer q.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			q.quarantined.Store(true)
			diag.Report(fmt.Errorf("worker panic: %v", r),
				logrus.Fields{"sink": q.name}, "enqueued sink quarantined")
			metrics.RecordSinkError(q.name, "worker_panic")
			// Unblock any pending flush/stop waiters.
			go q.drainAfterPanic()
		}
	}()

	for it := range q.ch {
		switch it.kind {
		case itemWrite:
			if err := q.writer.Write(it.data); err != nil {
				diag.ReportOnce("queue:"+q.name, err, logrus.Fields{"sink": q.name})
				metrics.RecordSinkError(q.name, "write_error")
			}
		case itemFlush:
			if err := q.writer.Flush(); err != nil {
				diag.ReportOnce("queue-flush:"+q.name, err, logrus.Fields{"sink": q.name})
				metrics.RecordSinkError(q.name, "flush_error")
			}
			close(it.done)
		case itemStop:
			if err := q.writer.Flush(); err != nil {
				metrics.RecordSinkError(q.name, "flush_error")
			}
			close(it.done)
			return
		}
	}
}

// drainAfterPanic keeps sentinel waiters from hanging once the worker is
// gone; queued writes are counted as dropped.
func (q *Queue) drainAfterPanic() {
	for it := range q.ch {
		switch it.kind {
		case itemWrite:
			q.drop("quarantined")
		case itemFlush, itemStop:
			close(it.done)
			if it.kind == itemStop {
				return
			}
		}
	}
}
