package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/bnema/coplay/internal/adapters/secrets/file"
	passstore "github.com/bnema/coplay/internal/adapters/secrets/pass"
	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
)

// Store tries its backends in order. Reads and writes stop at the first
// backend that succeeds; deletes reach every backend.
type Store struct {
	backends []ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

var errNoBackends = errors.New("secret chain has no backends")

func NewStore(backends ...ports.SecretStore) (*Store, error) {
	store := &Store{}
	for _, backend := range backends {
		if backend != nil {
			store.backends = append(store.backends, backend)
		}
	}
	if len(store.backends) == 0 {
		return nil, errNoBackends
	}
	return store, nil
}

func NewPassFirstWithFileFallback(fileRoot string) (*Store, error) {
	return NewStore(passstore.NewStore(), filestore.NewStore(fileRoot))
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var errs []error
	for i, backend := range s.backends {
		value, err := backend.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if isCancellation(err) {
			return "", err
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
	}

	return "", notFoundOrJoined("get", key, errs)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	var errs []error
	for i, backend := range s.backends {
		err := backend.Put(ctx, key, value)
		if err == nil {
			return nil
		}
		if isCancellation(err) {
			return err
		}
		errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
	}

	return fmt.Errorf("put secret %q: %w", key, errors.Join(errs...))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	var errs []error
	for i, backend := range s.backends {
		if err := backend.Delete(ctx, key); err != nil {
			if isCancellation(err) {
				return err
			}
			if errors.Is(err, domain.ErrSecretNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("backend %d: %w", i, err))
		}
	}
	if len(errs) == len(s.backends) {
		return fmt.Errorf("delete secret %q: %w", key, errors.Join(errs...))
	}

	return nil
}

// notFoundOrJoined reports ErrSecretNotFound only when no backend failed for
// another reason.
func notFoundOrJoined(op, key string, errs []error) error {
	for _, err := range errs {
		if !errors.Is(err, domain.ErrSecretNotFound) {
			return fmt.Errorf("%s secret %q: %w", op, key, errors.Join(errs...))
		}
	}
	return fmt.Errorf("%s secret %q: %w", op, key, domain.ErrSecretNotFound)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
