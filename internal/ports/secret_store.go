package ports

import "context"

// SecretStore holds the session password and the optional history API key.
// Get reports a missing key as domain.ErrSecretNotFound.
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
