package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aipop/internal/config"
)

// Category names one harness subsystem for per-category log files.
type Category string

const (
	CategoryAttack       Category = "attack"
	CategoryOrchestrator Category = "orchestrator"
	CategoryJudge        Category = "judge"
	CategoryCache        Category = "cache"
	CategoryExecutor     Category = "executor"
	CategoryLimiter      Category = "limiter"
	CategoryCost         Category = "cost"
	CategoryVerifier     Category = "verifier"
	CategoryMCP          Category = "mcp"
	CategoryMutation     Category = "mutation"
)

// Registry hands out named zap loggers per category. When the config sets a
// log directory, each category additionally writes to its own dated file
// there; otherwise Get is just Named on the base logger.
type Registry struct {
	base  *zap.Logger
	cfg   config.LoggingConfig
	level zapcore.Level

	mu      sync.Mutex
	loggers map[Category]*zap.Logger
	files   []*os.File
}

// NewRegistry builds the base logger from cfg and wraps it in a registry.
func NewRegistry(cfg config.LoggingConfig) (*Registry, error) {
	base, err := New(cfg)
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return &Registry{
		base:    base,
		cfg:     cfg,
		level:   level,
		loggers: make(map[Category]*zap.Logger),
	}, nil
}

// Base returns the shared logger.
func (r *Registry) Base() *zap.Logger { return r.base }

// Get returns the logger for one category, creating its file on first use.
func (r *Registry) Get(cat Category) *zap.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[cat]; ok {
		return l
	}

	l := r.base.Named(string(cat))
	if r.cfg.Dir != "" {
		if fileCore, f, err := r.fileCore(cat); err == nil {
			r.files = append(r.files, f)
			l = zap.New(zapcore.NewTee(r.base.Core(), fileCore)).Named(string(cat))
		} else {
			r.base.Warn("category log file unavailable",
				zap.String("category", string(cat)), zap.Error(err))
		}
	}
	r.loggers[cat] = l
	return l
}

// fileCore opens the dated per-category file under the log directory.
func (r *Registry) fileCore(cat Category) (zapcore.Core, *os.File, error) {
	if err := os.MkdirAll(r.cfg.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), cat)
	f, err := os.OpenFile(filepath.Join(r.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open category log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(f), r.level), f, nil
}

// Close syncs the base logger and closes category files.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.base.Sync()
	for _, l := range r.loggers {
		_ = l.Sync()
	}
	for _, f := range r.files {
		_ = f.Close()
	}
	r.files = nil
	r.loggers = make(map[Category]*zap.Logger)
}
