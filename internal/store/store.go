package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/pkg/model"
)

const keyPrefix = "login_verifier"

// ErrNotFound is returned when no result has been stored for a scenario.
var ErrNotFound = errors.New("result not found")

// Store keeps the latest result and a bounded history per scenario.
type Store interface {
	SaveResult(ctx context.Context, r model.Result) error
	LatestResult(ctx context.Context, scenario string) (*model.Result, error)
	LatestResults(ctx context.Context, scenarios []string) ([]model.Result, error)
	History(ctx context.Context, scenario string, limit int) ([]model.Result, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// RedisStore implements Store on Redis strings and capped lists.
type RedisStore struct {
	redis        *redis.Client
	logger       *zap.Logger
	historyLimit int
	ttl          time.Duration
}

// Options configure a RedisStore.
type Options struct {
	Addr         string
	DB           int
	Password     string
	HistoryLimit int           // entries kept per scenario; <=0 means 50
	TTL          time.Duration // expiry of latest/history keys; 0 keeps them forever
}

// NewRedis connects and pings Redis.
func NewRedis(opts Options, logger *zap.Logger) (*RedisStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		DB:       opts.DB,
		Password: opts.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisStore(rdb, opts, logger), nil
}

func newRedisStore(rdb *redis.Client, opts Options, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = 50
	}
	return &RedisStore{redis: rdb, logger: logger, historyLimit: limit, ttl: opts.TTL}
}

func latestKey(scenario string) string  { return keyPrefix + ":latest:" + scenario }
func historyKey(scenario string) string { return keyPrefix + ":history:" + scenario }

// SaveResult overwrites the latest entry and prepends to the capped history.
func (s *RedisStore) SaveResult(ctx context.Context, r model.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, latestKey(r.Scenario), data, s.ttl)
	pipe.LPush(ctx, historyKey(r.Scenario), data)
	pipe.LTrim(ctx, historyKey(r.Scenario), 0, int64(s.historyLimit-1))
	if s.ttl > 0 {
		pipe.Expire(ctx, historyKey(r.Scenario), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Error("store.redis.save_failed",
			zap.String("scenario", r.Scenario),
			zap.Error(err))
		return err
	}
	return nil
}

func (s *RedisStore) LatestResult(ctx context.Context, scenario string) (*model.Result, error) {
	data, err := s.redis.Get(ctx, latestKey(scenario)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var r model.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("corrupt result for %s: %w", scenario, err)
	}
	return &r, nil
}

// LatestResults returns the latest result of each scenario that has one, in input order.
func (s *RedisStore) LatestResults(ctx context.Context, scenarios []string) ([]model.Result, error) {
	out := make([]model.Result, 0, len(scenarios))
	for _, sc := range scenarios {
		r, err := s.LatestResult(ctx, sc)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// History returns up to limit results, newest first.
func (s *RedisStore) History(ctx context.Context, scenario string, limit int) ([]model.Result, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	raw, err := s.redis.LRange(ctx, historyKey(scenario), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Result, 0, len(raw))
	for _, item := range raw {
		var r model.Result
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			s.logger.Warn("store.redis.skip_corrupt_history",
				zap.String("scenario", scenario),
				zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
