package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/api"
	"github.com/Checker-Finance/login-verifier/internal/config"
	"github.com/Checker-Finance/login-verifier/internal/credentials"
	"github.com/Checker-Finance/login-verifier/internal/httpclient"
	"github.com/Checker-Finance/login-verifier/internal/monitor"
	"github.com/Checker-Finance/login-verifier/internal/publisher"
	"github.com/Checker-Finance/login-verifier/internal/rate"
	"github.com/Checker-Finance/login-verifier/internal/store"
	"github.com/Checker-Finance/login-verifier/internal/verifier"
	"github.com/Checker-Finance/login-verifier/pkg/logger"
	"github.com/Checker-Finance/login-verifier/pkg/model"
	"github.com/Checker-Finance/login-verifier/pkg/secrets"
	"github.com/Checker-Finance/login-verifier/pkg/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()
	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.L()

	logg.Info("starting login-verifier",
		zap.String("mode", cfg.Mode),
		zap.String("base_url", utils.MaskURL(cfg.BaseURL)),
		zap.String("login_path", cfg.LoginPath))

	// --- Verifier ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateRPS,
		Burst:             cfg.RateBurst,
	})
	exec := httpclient.New(logg, rateMgr, &http.Client{Timeout: cfg.RequestTimeout}, cfg.RetryMax, "login")
	v, err := verifier.New(verifier.Config{BaseURL: cfg.BaseURL, LoginPath: cfg.LoginPath}, logg, exec)
	if err != nil {
		logg.Error("verifier.init_failed", zap.Error(err))
		return 2
	}

	// --- Credential source ---
	var resolver credentials.Resolver = credentials.NewStatic()
	stopCleaner := make(chan struct{})
	defer close(stopCleaner)
	if cfg.CredentialsSecret != "" {
		provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Error("secrets.init_failed", zap.Error(err))
			return 2
		}
		cache := secrets.NewCache[model.Credentials](cfg.CacheTTL)
		go cache.StartCleaner(cfg.CleanupFreq, stopCleaner)
		resolver = credentials.NewSecretsResolver(logg, provider, cache, cfg.CredentialsSecret)
	}

	switch cfg.Mode {
	case config.ModeOnce:
		return runOnce(ctx, logg, v, resolver)
	case config.ModeMonitor:
		return runMonitor(ctx, logg, cfg, v, resolver)
	default:
		logg.Error("unknown VERIFIER_MODE", zap.String("mode", cfg.Mode))
		return 2
	}
}

// runOnce verifies every scenario a single time. Exit code 1 when any failed.
func runOnce(ctx context.Context, logg *zap.Logger, v *verifier.Verifier, resolver credentials.Resolver) int {
	m := monitor.New(logg, v, resolver, nil, nil, time.Minute)
	results, err := m.RunOnce(ctx)
	if err != nil {
		return 2
	}

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Printf("%s\t%s\t%d\t%q\t%s\t%s\n", status, r.Scenario, r.StatusCode, r.Message, r.Latency.Round(time.Millisecond), r.Error)
	}
	if !model.AllPassed(results) {
		return 1
	}
	return 0
}

func runMonitor(ctx context.Context, logg *zap.Logger, cfg *config.Config, v *verifier.Verifier, resolver credentials.Resolver) int {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// --- Store (optional) ---
	var st *store.RedisStore
	var reader api.ResultReader
	var saver monitor.ResultSaver
	if cfg.RedisAddr != "" {
		var err error
		st, err = store.NewRedis(store.Options{
			Addr:         cfg.RedisAddr,
			DB:           cfg.RedisDB,
			Password:     cfg.RedisPass,
			HistoryLimit: cfg.HistoryLimit,
			TTL:          cfg.ResultTTL,
		}, logg)
		if err != nil {
			logg.Error("store.init_failed", zap.Error(err))
			return 2
		}
		defer func() {
			if err := st.Close(); err != nil {
				logg.Warn("store.close_failed", zap.Error(err))
			}
		}()
		reader, saver = st, st
	}

	// --- Publisher (optional) ---
	var pub *publisher.Publisher
	var broker api.ConnChecker
	var resultPub monitor.ResultPublisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Error("nats.connect_failed", zap.String("url", utils.MaskURL(cfg.NATSURL)), zap.Error(err))
			return 2
		}
		pub, err = publisher.New(nc, cfg.ResultSubject, cfg.StreamName, cfg.ServiceName, logg)
		if err != nil {
			logg.Error("publisher.init_failed", zap.Error(err))
			nc.Close()
			return 2
		}
		defer func() {
			if err := nc.Drain(); err != nil {
				logg.Warn("nats.drain_failed", zap.Error(err))
			}
		}()
		broker, resultPub = pub, pub
	}

	m := monitor.New(logg, v, resolver, saver, resultPub, cfg.MonitorInterval)
	go m.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:           cfg.HTTPReadTimeout,
		WriteTimeout:          cfg.HTTPWriteTimeout,
		IdleTimeout:           cfg.HTTPIdleTimeout,
		DisableStartupMessage: true,
	})
	api.RegisterRoutes(app, api.NewHandler(logg, m, reader, broker))

	go func() {
		logg.Info("HTTP API listening", zap.Int("port", cfg.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Error("fiber.listen_failed", zap.Error(err))
			cancelRun()
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down login-verifier")

	m.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warn("fiber.shutdown_failed", zap.Error(err))
	}
	return 0
}
