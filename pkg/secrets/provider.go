package secrets

import "context"

// Provider fetches a secret stored as a flat JSON object.
type Provider interface {
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
