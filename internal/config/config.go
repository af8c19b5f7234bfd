package config

import (
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/Checker-Finance/login-verifier/pkg/config"
)

const (
	ModeOnce    = "once"
	ModeMonitor = "monitor"
)

// Config holds the runtime configuration for one verifier instance.
type Config struct {
	ServiceName string // e.g. "login-verifier"
	Env         string // "dev", "uat", "prod"
	LogLevel    string
	Mode        string // ModeOnce | ModeMonitor

	// Target login service
	BaseURL        string
	LoginPath      string
	RequestTimeout time.Duration
	RetryMax       int
	RateRPS        int
	RateBurst      int

	// Monitor mode
	MonitorInterval  time.Duration
	Port             int
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Result sinks; empty address disables the sink
	RedisAddr     string
	RedisDB       int
	RedisPass     string
	HistoryLimit  int
	ResultTTL     time.Duration
	NATSURL       string
	ResultSubject string
	StreamName    string

	// Credential source; empty secret keeps the fixture credentials
	AWSRegion         string
	CredentialsSecret string
	CacheTTL          time.Duration
	CleanupFreq       time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: pkgconfig.GetEnv("SERVICE_NAME", "login-verifier"),
		Env:         pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:    pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Mode:        pkgconfig.GetEnv("VERIFIER_MODE", ModeOnce),

		BaseURL:        pkgconfig.GetEnv("LOGIN_BASE_URL", "http://localhost:3000"),
		LoginPath:      pkgconfig.GetEnv("LOGIN_PATH", "/login"),
		RequestTimeout: pkgconfig.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RetryMax:       pkgconfig.GetEnvInt("RETRY_MAX", 0),
		RateRPS:        pkgconfig.GetEnvInt("RATE_RPS", 5),
		RateBurst:      pkgconfig.GetEnvInt("RATE_BURST", 5),

		MonitorInterval:  pkgconfig.GetEnvDuration("MONITOR_INTERVAL", 1*time.Minute),
		Port:             pkgconfig.GetEnvInt("PORT", 9020),
		HTTPReadTimeout:  pkgconfig.GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: pkgconfig.GetEnvDuration("HTTP_WRITE_TIMEOUT", 10*time.Second),
		HTTPIdleTimeout:  pkgconfig.GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),

		RedisAddr:     pkgconfig.GetEnv("REDIS_ADDR", ""),
		RedisDB:       pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass:     pkgconfig.GetEnv("REDIS_PASS", ""),
		HistoryLimit:  pkgconfig.GetEnvInt("HISTORY_LIMIT", 50),
		ResultTTL:     pkgconfig.GetEnvDuration("RESULT_TTL", 24*time.Hour),
		NATSURL:       pkgconfig.GetEnv("NATS_URL", ""),
		ResultSubject: pkgconfig.GetEnv("RESULT_SUBJECT", "evt.login_contract.result.v1"),
		StreamName:    pkgconfig.GetEnv("RESULT_STREAM", "LOGIN_CONTRACT"),

		AWSRegion:         pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		CredentialsSecret: pkgconfig.GetEnv("CREDENTIALS_SECRET", ""),
		CacheTTL:          pkgconfig.GetEnvDuration("CACHE_TTL", 15*time.Minute),
		CleanupFreq:       pkgconfig.GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
	}

	// tickers and timeouts need a positive period; RESULT_TTL=0 means no expiry
	cfg.RequestTimeout = positive(cfg.RequestTimeout, 30*time.Second)
	cfg.MonitorInterval = positive(cfg.MonitorInterval, time.Minute)
	cfg.HTTPReadTimeout = positive(cfg.HTTPReadTimeout, 10*time.Second)
	cfg.HTTPWriteTimeout = positive(cfg.HTTPWriteTimeout, 10*time.Second)
	cfg.HTTPIdleTimeout = positive(cfg.HTTPIdleTimeout, 60*time.Second)
	cfg.CacheTTL = positive(cfg.CacheTTL, 15*time.Minute)
	cfg.CleanupFreq = positive(cfg.CleanupFreq, 10*time.Minute)
	return cfg
}

func positive(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
