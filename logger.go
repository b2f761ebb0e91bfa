package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger builds the process logger.  level is a zap level name such as
// "debug" or "info".
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// EventLogger appends timestamped device events (motion, uploads, config
// changes, restarts) to a journal file.  It is safe for concurrent use.
type EventLogger struct {
	filePath string
	mu       sync.Mutex
	now      func() time.Time
	log      *zap.Logger
}

// NewEventLogger creates a journal writing to filePath.  The directory is
// created on the first write.  An empty path disables the journal.
func NewEventLogger(filePath string, log *zap.Logger) *EventLogger {
	return &EventLogger{filePath: filePath, now: time.Now, log: log}
}

// Log writes a single event with timestamp.  Write failures are reported to
// the process logger and otherwise ignored.
func (el *EventLogger) Log(format string, args ...any) {
	if el == nil || el.filePath == "" {
		return
	}
	el.mu.Lock()
	defer el.mu.Unlock()
	line := fmt.Sprintf("%s - %s\n", el.now().Format(time.RFC3339), fmt.Sprintf(format, args...))
	if err := os.MkdirAll(filepath.Dir(el.filePath), 0o755); err != nil {
		el.log.Warn("journal directory", zap.Error(err))
		return
	}
	f, err := os.OpenFile(el.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		el.log.Warn("journal open", zap.Error(err))
		return
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		el.log.Warn("journal write", zap.Error(err))
	}
}
