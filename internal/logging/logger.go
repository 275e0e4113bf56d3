// Package logging builds the file-backed loggers used by gridwatch.
// The dashboard owns stderr, so diagnostics never go to the terminal.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a JSON logger appending to the file at logPath.
// If the path is empty, returns a no-op logger.
// Creates parent directories if they don't exist.
func New(logPath string, debug bool) (*zap.Logger, error) {
	if logPath == "" {
		return zap.NewNop(), nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(f),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core), nil
}

// ForRank creates a logger in dir named after the process rank, so that many
// workers on one host never share a file. An empty dir disables logging.
func ForRank(dir string, rank int, debug bool) (*zap.Logger, error) {
	if dir == "" {
		return zap.NewNop(), nil
	}
	path := filepath.Join(dir, fmt.Sprintf("gridwatch-%d.log", rank))
	logger, err := New(path, debug)
	if err != nil {
		return nil, err
	}
	return logger.With(zap.Int("rank", rank)), nil
}

// Nop returns a no-op logger for testing or when logging is disabled.
func Nop() *zap.Logger {
	return zap.NewNop()
}
