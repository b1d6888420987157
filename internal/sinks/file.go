package sinks

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/emberlog/ember/internal/diag"
	"github.com/emberlog/ember/internal/metrics"
)

const fileBufferSize = 64 * 1024

// FileConfig describes one file sink.
type FileConfig struct {
	Path      string
	Rotation  Rotation
	Retention Retention

	// Compress gzips rotated segments in a background task.
	Compress bool

	// Watch reopens the active file when it disappears underneath us
	// (external rotation or deletion).
	Watch bool

	// Delay defers creating the file until the first write.
	Delay bool

	// Now overrides the wall clock. Tests only; nil means time.Now.
	Now func() time.Time
}

// FileSink is the buffered, rotating file writer. It owns the active
// file exclusively; in sync mode the internal mutex serializes producer
// threads, in enqueued mode only the queue worker ever calls it.
type FileSink struct {
	cfg  FileConfig
	now  func() time.Time
	dir  string
	stem string
	ext  string

	mu           sync.Mutex
	file         *os.File
	buf          *bufio.Writer
	bytesWritten int64
	period       string // current wall-clock period, time-based rotation
	nextOrdinal  int    // next rotated suffix, size-based rotation
	closed       bool

	watcher *fsnotify.Watcher
	bg      sync.WaitGroup // retention and compression tasks
}

// NewFileSink opens (or, with Delay, prepares) the sink for cfg.Path.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file sink needs a path")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	dir := filepath.Dir(cfg.Path)
	base := filepath.Base(cfg.Path)
	ext := filepath.Ext(base)
	s := &FileSink{
		cfg:  cfg,
		now:  now,
		dir:  dir,
		stem: strings.TrimSuffix(base, ext),
		ext:  ext,
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	s.period = periodKey(cfg.Rotation.Kind, now())
	if cfg.Rotation.Kind == RotateSize {
		s.nextOrdinal = s.scanOrdinals() + 1
	}
	if !cfg.Delay {
		s.mu.Lock()
		err := s.openLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	if cfg.Watch {
		if err := s.startWatch(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the active file path.
func (s *FileSink) Path() string { return s.cfg.Path }

// Write renders one record to disk: evaluate rotation, then append the
// newline-terminated bytes to the buffered writer.
func (s *FileSink) Write(line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("file sink %s is closed", s.cfg.Path)
	}
	if s.file == nil {
		if err := s.openLocked(); err != nil {
			return err
		}
	}

	data := make([]byte, 0, len(line)+1)
	data = append(data, line...)
	data = append(data, '\n')

	if err := s.maybeRotateLocked(int64(len(data))); err != nil {
		// A failed rotation must not lose the record; report and keep
		// writing to the oversized active file.
		diag.ReportOnce("rotate:"+s.cfg.Path, err, logrus.Fields{"path": s.cfg.Path})
		metrics.RecordSinkError(s.cfg.Path, "rotation_error")
	}
	if s.file == nil {
		if err := s.openLocked(); err != nil {
			return err
		}
	}

	n, err := s.buf.Write(data)
	s.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("file write: %w", err)
	}
	return nil
}

// Flush drains the write buffer to the kernel.
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		return nil
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("file flush: %w", err)
	}
	return nil
}

// Close flushes, closes the active file, stops the watcher and waits
// for outstanding retention/compression tasks.
func (s *FileSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.buf != nil {
		err = s.buf.Flush()
	}
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
		s.buf = nil
	}
	watcher := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if watcher != nil {
		watcher.Close()
	}
	s.bg.Wait()
	return err
}

func (s *FileSink) openLocked() error {
	f, err := os.OpenFile(s.cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	s.file = f
	s.buf = bufio.NewWriterSize(f, fileBufferSize)
	s.bytesWritten = info.Size()
	return nil
}

// maybeRotateLocked evaluates the rotation policy for a pending write of
// incoming bytes and rolls the file over when required.
func (s *FileSink) maybeRotateLocked(incoming int64) error {
	switch s.cfg.Rotation.Kind {
	case RotateSize:
		if s.bytesWritten > 0 && s.bytesWritten+incoming >= s.cfg.Rotation.Bytes {
			return s.rotateLocked(s.sizeTag(), "size")
		}
	case RotateDaily, RotateHourly:
		key := periodKey(s.cfg.Rotation.Kind, s.now())
		if key != s.period {
			departing := s.period
			s.period = key
			if s.bytesWritten > 0 {
				return s.rotateLocked(departing, s.policyName())
			}
		}
	}
	return nil
}

func (s *FileSink) policyName() string {
	if s.cfg.Rotation.Kind == RotateHourly {
		return "hourly"
	}
	return "daily"
}

// sizeTag claims the next free ordinal. The counter survives restarts
// via scanOrdinals; collisions from concurrent processes fall through
// to the next free slot.
func (s *FileSink) sizeTag() string {
	for {
		tag := strconv.Itoa(s.nextOrdinal)
		s.nextOrdinal++
		if _, err := os.Stat(s.rotatedPath(tag)); os.IsNotExist(err) {
			if _, err := os.Stat(s.rotatedPath(tag) + ".gz"); os.IsNotExist(err) {
				return tag
			}
		}
	}
}

func (s *FileSink) rotatedPath(tag string) string {
	return filepath.Join(s.dir, s.stem+"."+tag+s.ext)
}

// rotateLocked flushes and closes the active file, renames it to its
// rotated name, reopens a fresh active file and hands retention and
// compression to a background task. The write path returns as soon as
// the raw rotated file exists.
func (s *FileSink) rotateLocked(tag, policy string) error {
	if s.buf != nil {
		if err := s.buf.Flush(); err != nil {
			return fmt.Errorf("flush before rotation: %w", err)
		}
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("close before rotation: %w", err)
		}
		s.file = nil
		s.buf = nil
	}

	rotated := s.rotatedPath(tag)
	// A leftover file under the rotated name (restart mid-rotation)
	// must not be clobbered; fall back to ordinal-style disambiguation.
	for i := 0; ; i++ {
		if _, err := os.Stat(rotated); os.IsNotExist(err) {
			break
		}
		rotated = s.rotatedPath(tag + "." + strconv.Itoa(i))
	}
	if err := os.Rename(s.cfg.Path, rotated); err != nil {
		return fmt.Errorf("rename on rollover: %w", err)
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	s.bytesWritten = 0
	metrics.RecordRotation(policy)

	s.bg.Add(1)
	go s.postRotate(rotated)
	return nil
}

// postRotate runs the deferred rotation follow-up: gzip the rotated
// segment when requested, then apply retention. Failures are reported
// and swallowed; the active file is never touched here.
func (s *FileSink) postRotate(rotated string) {
	defer s.bg.Done()
	if s.cfg.Compress {
		if err := compressFile(rotated, rotated+".gz"); err != nil {
			diag.ReportOnce("compress:"+s.cfg.Path, err, logrus.Fields{"path": rotated})
			metrics.RecordSinkError(s.cfg.Path, "compression_error")
		} else {
			metrics.RecordCompression()
		}
	}
	s.applyRetention()
}

// compressFile gzips src into dst and removes src.
func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open rotated file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create compressed file: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		gz.Close()
		return fmt.Errorf("failed to compress rotated file: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to finalize compressed file: %w", err)
	}
	if err := os.Remove(src); err != nil {
		diag.ReportOnce("compress-rm:"+src, err, logrus.Fields{"path": src})
	}
	return nil
}

// rotatedFiles lists this sink's rotated (non-active) siblings.
func (s *FileSink) rotatedFiles() []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		diag.ReportOnce("retention-list:"+s.cfg.Path, err, logrus.Fields{"dir": s.dir})
		return nil
	}
	active := filepath.Base(s.cfg.Path)
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == active || !strings.HasPrefix(name, s.stem+".") {
			continue
		}
		if strings.HasSuffix(name, s.ext) || strings.HasSuffix(name, s.ext+".gz") {
			out = append(out, filepath.Join(s.dir, name))
		}
	}
	return out
}

// applyRetention deletes rotated files past the count or age bound.
// Whole files only; deletion failures are reported, never fatal.
func (s *FileSink) applyRetention() {
	switch s.cfg.Retention.Kind {
	case RetainAll:
		return
	case RetainCount:
		files := s.rotatedFiles()
		if len(files) <= s.cfg.Retention.Count {
			return
		}
		type fileInfo struct {
			path    string
			modTime time.Time
		}
		infos := make([]fileInfo, 0, len(files))
		for _, f := range files {
			st, err := os.Stat(f)
			if err != nil {
				continue
			}
			infos = append(infos, fileInfo{path: f, modTime: st.ModTime()})
		}
		sort.Slice(infos, func(i, j int) bool {
			return infos[i].modTime.Before(infos[j].modTime)
		})
		for i := 0; i < len(infos)-s.cfg.Retention.Count; i++ {
			s.removeRotated(infos[i].path)
		}
	case RetainAge:
		cutoff := s.now().Add(-s.cfg.Retention.Age)
		for _, f := range s.rotatedFiles() {
			st, err := os.Stat(f)
			if err != nil {
				continue
			}
			if st.ModTime().Before(cutoff) {
				s.removeRotated(f)
			}
		}
	}
}

func (s *FileSink) removeRotated(path string) {
	if err := os.Remove(path); err != nil {
		diag.ReportOnce("retention-rm:"+path, err, logrus.Fields{"path": path})
		metrics.RecordSinkError(s.cfg.Path, "retention_error")
		return
	}
	metrics.RecordRetentionDelete()
}

// scanOrdinals finds the largest size-rotation ordinal already on disk,
// so a restarted process resumes numbering instead of colliding.
func (s *FileSink) scanOrdinals() int {
	max := 0
	for _, f := range s.rotatedFiles() {
		name := filepath.Base(f)
		name = strings.TrimSuffix(name, ".gz")
		name = strings.TrimSuffix(name, s.ext)
		tag := strings.TrimPrefix(name, s.stem+".")
		if n, err := strconv.Atoi(tag); err == nil && n > max {
			max = n
		}
	}
	return max
}

// startWatch reopens the active file when an external actor removes or
// renames it. The directory is watched rather than the file so the
// subscription survives the disappearance itself.
func (s *FileSink) startWatch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch log directory: %w", err)
	}
	s.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.cfg.Path {
					continue
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					s.reopenAfterLoss()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				diag.ReportOnce("watch:"+s.cfg.Path, err, logrus.Fields{"path": s.cfg.Path})
			}
		}
	}()
	return nil
}

func (s *FileSink) reopenAfterLoss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.file != nil {
		s.file.Close()
		s.file = nil
		s.buf = nil
	}
	if err := s.openLocked(); err != nil {
		diag.ReportOnce("reopen:"+s.cfg.Path, err, logrus.Fields{"path": s.cfg.Path})
		metrics.RecordSinkError(s.cfg.Path, "reopen_error")
	}
}
