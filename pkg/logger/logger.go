package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// New builds a zap logger for the given environment ("dev", "uat", "prod").
// Unknown levels keep the config default.
func New(service, env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.InitialFields = map[string]any{"service": service}

	return cfg.Build(zap.AddCaller())
}

// Init initializes the global logger.
func Init(service, env, level string) {
	l, err := New(service, env, level)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}

	mu.Lock()
	log = l
	sugar = l.Sugar()
	mu.Unlock()

	l.Info("logger initialized",
		zap.String("env", env),
		zap.String("level", level),
	)
}

// L returns the base structured Zap logger.
func L() *zap.Logger {
	mu.RLock()
	l := log
	mu.RUnlock()
	if l == nil {
		Init("unknown", "dev", "info")
		return L()
	}
	return l
}

// S returns the Sugared logger.
func S() *zap.SugaredLogger {
	return L().Sugar()
}

// Sync flushes any buffered logs (defer this in main()).
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
