// Package diag is the engine's own error channel: the stderr fallback
// that sink, filter and formatter failures are reported through. It is
// deliberately not routed back into the engine, so a broken sink can
// never recurse into the pipeline that feeds it.
package diag

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger *logrus.Logger
	once   sync.Once

	// seen tracks (site) keys already reported so each failure site is
	// surfaced once rather than once per record.
	seen sync.Map
)

// Logger returns the shared diagnostics logger, writing to stderr.
func Logger() *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: false,
			FullTimestamp:    true,
		})
		logger.SetLevel(logrus.WarnLevel)
	})
	return logger
}

// ReportOnce logs err with the given fields the first time site is seen;
// later failures at the same site are not logged. It records no metric
// itself; callers that want a count record one alongside.
func ReportOnce(site string, err error, fields logrus.Fields) {
	if _, loaded := seen.LoadOrStore(site, struct{}{}); loaded {
		return
	}
	Logger().WithError(err).WithFields(fields).Warn("log pipeline error (further occurrences suppressed)")
}

// Report logs err unconditionally. Used for lifecycle-level failures
// (worker panic quarantine, shutdown drop summaries) that should not be
// deduplicated.
func Report(err error, fields logrus.Fields, msg string) {
	Logger().WithError(err).WithFields(fields).Error(msg)
}

// Reset clears the once-per-site suppression state. Test hook.
func Reset() {
	seen = sync.Map{}
}
