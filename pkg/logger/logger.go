// Package logger owns the process-wide slog loggers: the application logger
// used by every component and a separate rotating audit logger for
// validation receipts and alerts.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the application and audit log outputs.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	// Process, when set, is attached to every record as "process".
	Process string
	Audit   AuditConfig
}

// AuditConfig controls the rotating audit file.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// sinks is everything one Init call produced.
type sinks struct {
	app     *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
}

func (s *sinks) close() error {
	var err error
	for _, c := range s.closers {
		err = errors.Join(err, c.Close())
	}
	s.closers = nil
	return err
}

var (
	mu      sync.RWMutex
	current *sinks
)

// Init installs new loggers and closes whatever the previous Init opened.
func Init(cfg Config) error {
	next := &sinks{}
	if err := next.build(cfg); err != nil {
		_ = next.close()
		return err
	}

	mu.Lock()
	previous := current
	current = next
	mu.Unlock()

	if previous != nil {
		_ = previous.close()
	}
	return nil
}

func (s *sinks) build(cfg Config) error {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	paths := cfg.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, p := range paths {
		w, err := s.open(p)
		if err != nil {
			return err
		}
		writers = append(writers, w)
	}
	out := io.MultiWriter(writers...)

	var handler slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(out, opts)
	}
	s.app = slog.New(handler)
	if cfg.Process != "" {
		s.app = s.app.With(slog.String("process", cfg.Process))
	}

	s.audit = s.app
	if !cfg.Audit.Enabled {
		return nil
	}
	rotating, err := rotatingFile(cfg.Audit)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, rotating)
	s.audit = slog.New(slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return nil
}

// open resolves "stdout" / "stderr" or appends to a file, creating its directory.
func (s *sinks) open(path string) (io.Writer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	s.closers = append(s.closers, f)
	return f, nil
}

func rotatingFile(cfg AuditConfig) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    positiveOr(cfg.MaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.MaxBackups, 7),
		MaxAge:     positiveOr(cfg.MaxAgeDays, 30),
	}, nil
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	switch strings.ToLower(level) {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func loaded() *sinks {
	mu.RLock()
	s := current
	mu.RUnlock()
	if s != nil {
		return s
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// L returns the application logger, initialising a stdout JSON logger on first use.
func L() *slog.Logger {
	return loaded().app
}

// Audit returns the audit logger, or the application logger when auditing is off.
func Audit() *slog.Logger {
	return loaded().audit
}

// Sync closes the files opened by the last Init. Loggers keep working on
// stdout/stderr outputs afterwards.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil
	}
	return current.close()
}

// Named returns a child logger tagged with the component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}
