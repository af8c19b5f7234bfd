package credentials

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/login-verifier/internal/metrics"
	"github.com/Checker-Finance/login-verifier/pkg/model"
	"github.com/Checker-Finance/login-verifier/pkg/secrets"
	"github.com/Checker-Finance/login-verifier/pkg/utils"
)

// Resolver supplies the known-good credential pair for a verification run.
type Resolver interface {
	Valid(ctx context.Context) (model.Credentials, error)
}

// Static always returns the same pair.
type Static model.Credentials

// NewStatic returns the fixture resolver (user1/password1).
func NewStatic() Static { return Static(model.DefaultCredentials()) }

func (s Static) Valid(context.Context) (model.Credentials, error) {
	return model.Credentials(s), nil
}

// SecretsResolver reads the pair from a secrets provider.
//
// Secret JSON format: {"username": "...", "password": "..."}
type SecretsResolver struct {
	logger     *zap.Logger
	provider   secrets.Provider
	cache      *secrets.Cache[model.Credentials]
	secretName string
}

// NewSecretsResolver builds a resolver over provider, caching pairs in cache.
func NewSecretsResolver(
	logger *zap.Logger,
	provider secrets.Provider,
	cache *secrets.Cache[model.Credentials],
	secretName string,
) *SecretsResolver {
	return &SecretsResolver{
		logger:     logger,
		provider:   provider,
		cache:      cache,
		secretName: secretName,
	}
}

// Valid returns the cached pair or fetches it from the provider.
func (r *SecretsResolver) Valid(ctx context.Context) (model.Credentials, error) {
	creds, hit, err := r.cache.GetOrLoad(ctx, r.secretName, r.load)
	if hit {
		metrics.IncCacheHit("hit")
		return creds, nil
	}
	metrics.IncCacheHit("miss")
	if err != nil {
		metrics.IncError("credentials", "resolve_failed")
		return model.Credentials{}, err
	}

	r.logger.Info("credentials.resolved",
		zap.String("secret", r.secretName),
		zap.String("username", creds.Username),
		zap.String("password", utils.MaskSecret(creds.Password)))
	return creds, nil
}

// Invalidate drops the cached pair so the next call refetches it.
func (r *SecretsResolver) Invalidate() {
	r.cache.Bust(r.secretName)
}

func (r *SecretsResolver) load(ctx context.Context) (model.Credentials, error) {
	raw, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		return model.Credentials{}, err
	}
	return parseCredentials(raw)
}

func parseCredentials(m map[string]string) (model.Credentials, error) {
	c := model.Credentials{Username: m["username"], Password: m["password"]}
	if c.Username == "" {
		return model.Credentials{}, fmt.Errorf("missing required field 'username'")
	}
	if c.Password == "" {
		return model.Credentials{}, fmt.Errorf("missing required field 'password'")
	}
	return c, nil
}
