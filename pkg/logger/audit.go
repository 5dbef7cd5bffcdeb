package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// NewAudit opens the append-only audit trail for one watcher instance.
// Entries are plain timestamped lines (RFC3339, no color codes) so the file
// stays greppable and survives process restarts. The caller owns Close.
func NewAudit(dataDir, instance string) (*Audit, error) {
	path := filepath.Join(dataDir, instance+"_audit.log")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log %s: %w", path, err)
	}

	writer := zerolog.ConsoleWriter{
		Out:        file,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}
	logger := zerolog.New(writer).With().Timestamp().Logger()

	return &Audit{
		logger: &Logger{logger: logger},
		file:   file,
		path:   path,
	}, nil
}

// Audit is a dedicated append-only event log, separate from the process
// logger. Cycle summaries and notification outcomes land here.
type Audit struct {
	logger *Logger
	file   *os.File
	path   string
}

// Event writes one audit line with the given fields.
func (a *Audit) Event(msg string, fields map[string]interface{}) {
	if a == nil {
		return
	}
	a.logger.WithFields(fields).Info(msg)
}

// Path returns the location of the audit file.
func (a *Audit) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

func (a *Audit) Close() error {
	if a == nil || a.file == nil {
		return nil
	}
	return a.file.Close()
}
