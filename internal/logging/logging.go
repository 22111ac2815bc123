// Package logging owns the per-run extraction log file. Each worker run
// writes to a timestamped file under the log directory in addition to
// stderr, so crashed runs leave a trail the operator can read back.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex
	current *zerolog.Logger
	logPath string
)

// Setup creates the timestamped log file under dir and returns a logger
// writing to both the file and stderr. Subsequent calls reuse the first
// logger.
func Setup(dir string) (*zerolog.Logger, error) {
	mu.Lock()
	defer mu.Unlock()

	if current != nil {
		return current, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	logPath = filepath.Join(dir, fmt.Sprintf("extraction_%s.log", time.Now().Format("20060102_150405")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	writer := io.MultiWriter(file, zerolog.ConsoleWriter{Out: os.Stderr})
	logger := zerolog.New(writer).With().Timestamp().Logger()
	current = &logger

	logger.Info().Str("path", logPath).Msg("Extraction logging initialized")
	return current, nil
}

// Get returns the extraction logger, setting it up under dir if needed.
// On setup failure it degrades to a stderr-only logger.
func Get(dir string) *zerolog.Logger {
	logger, err := Setup(dir)
	if err != nil {
		fallback := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		fallback.Warn().Err(err).Msg("Falling back to stderr-only logging")
		return &fallback
	}
	return logger
}

// Path returns the active log file path, empty before Setup.
func Path() string {
	mu.Lock()
	defer mu.Unlock()
	return logPath
}
