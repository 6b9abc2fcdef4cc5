// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// FilePrefix names the daily log files: linemend-YYYY-MM-DD.log.
const FilePrefix = "linemend-"

// New returns a text logger at level writing to stderr and, when logDir is
// set, to the daily file in logDir. The returned closer releases the file
// and is never nil.
func New(level, logDir string) (*logrus.Logger, io.Closer, error) {
	return newAt(level, logDir, os.Stderr, time.Now())
}

func newAt(level, logDir string, stderr io.Writer, now time.Time) (*logrus.Logger, io.Closer, error) {
	lvl := logrus.InfoLevel
	if level != "" {
		l, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, nopCloser{}, fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = l
	}

	log := logrus.New()
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	log.SetOutput(stderr)

	if logDir == "" {
		return log, nopCloser{}, nil
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nopCloser{}, fmt.Errorf("create log dir %s: %w", logDir, err)
	}
	path := filepath.Join(logDir, FileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("open %s: %w", path, err)
	}
	log.SetOutput(io.MultiWriter(stderr, f))
	return log, f, nil
}

// FileName is the daily log file name for t.
func FileName(t time.Time) string {
	return FilePrefix + t.Format("2006-01-02") + ".log"
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
