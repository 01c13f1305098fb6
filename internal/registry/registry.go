// Package registry manages the set of known upstream providers.
package registry

import (
	"context"
	"errors"
	"fmt"

	"chat_gateway/internal/models"
	"chat_gateway/internal/storage"
)

// ErrProviderInUse is returned by Remove while an external assignment still
// references the provider.
var ErrProviderInUse = errors.New("provider is referenced by an active assignment")

// InUseFunc reports whether any external task/route assignment references
// the provider. That bookkeeping lives outside the core, so callers inject
// the check.
type InUseFunc func(ctx context.Context, providerID string) (bool, error)

// Registry validates and stores provider configurations through an injected
// repository. It holds no state of its own.
type Registry struct {
	repo          storage.ProviderRepository
	defaultPolicy models.RateLimitPolicy
}

// New creates a registry. defaultPolicy is applied to providers configured
// without an explicit rate-limit policy.
func New(repo storage.ProviderRepository, defaultPolicy models.RateLimitPolicy) *Registry {
	return &Registry{repo: repo, defaultPolicy: defaultPolicy}
}

// Get returns the provider or storage.ErrProviderNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*models.Provider, error) {
	return r.repo.GetByID(ctx, id)
}

// List returns all known providers, active or not.
func (r *Registry) List(ctx context.Context) ([]*models.Provider, error) {
	return r.repo.List(ctx)
}

// Upsert validates the configuration and creates the provider, or updates it
// when the id already exists. The id itself is immutable; an update never
// moves a configuration to a new id.
func (r *Registry) Upsert(ctx context.Context, provider *models.Provider) (*models.Provider, error) {
	if provider.RateLimit == (models.RateLimitPolicy{}) {
		provider.RateLimit = r.defaultPolicy
	}
	if err := provider.Validate(); err != nil {
		return nil, err
	}

	_, err := r.repo.GetByID(ctx, provider.ID)
	switch {
	case err == nil:
		if err := r.repo.Update(ctx, provider); err != nil {
			return nil, err
		}
	case errors.Is(err, storage.ErrProviderNotFound):
		if err := r.repo.Create(ctx, provider); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to look up provider: %w", err)
	}

	return provider, nil
}

// SetActive toggles the provider's active flag. Deactivation is the normal
// way to take a provider out of rotation without losing its configuration.
func (r *Registry) SetActive(ctx context.Context, id string, active bool) (*models.Provider, error) {
	provider, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if provider.Active == active {
		return provider, nil
	}

	provider.Active = active
	if err := r.repo.Update(ctx, provider); err != nil {
		return nil, err
	}
	return provider, nil
}

// Remove deletes the provider. It fails with ErrProviderInUse while the
// injected predicate reports an external reference; pass nil to skip the
// check (e.g. in tests).
func (r *Registry) Remove(ctx context.Context, id string, inUse InUseFunc) error {
	if _, err := r.repo.GetByID(ctx, id); err != nil {
		return err
	}

	if inUse != nil {
		used, err := inUse(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check provider assignments: %w", err)
		}
		if used {
			return fmt.Errorf("%w: %s", ErrProviderInUse, id)
		}
	}

	return r.repo.Delete(ctx, id)
}
