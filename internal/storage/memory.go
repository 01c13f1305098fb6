package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat_gateway/internal/models"
)

// MemoryProviderRepository is an in-memory ProviderRepository. It is the
// default backend; the same registry and proxy logic runs unchanged against
// the Postgres implementation.
type MemoryProviderRepository struct {
	mu        sync.RWMutex
	providers map[string]*models.Provider
}

// NewMemoryProviderRepository creates an empty in-memory provider repository
func NewMemoryProviderRepository() *MemoryProviderRepository {
	return &MemoryProviderRepository{
		providers: make(map[string]*models.Provider),
	}
}

func (r *MemoryProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[provider.ID]; ok {
		return ErrProviderExists
	}

	now := time.Now()
	provider.CreatedAt = now
	provider.UpdatedAt = now

	cp := *provider
	r.providers[provider.ID] = &cp
	return nil
}

func (r *MemoryProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.providers[provider.ID]
	if !ok {
		return ErrProviderNotFound
	}

	provider.CreatedAt = existing.CreatedAt
	provider.UpdatedAt = time.Now()

	cp := *provider
	r.providers[provider.ID] = &cp
	return nil
}

func (r *MemoryProviderRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[id]; !ok {
		return ErrProviderNotFound
	}
	delete(r.providers, id)
	return nil
}

// MemoryCredentialRepository is an in-memory CredentialRepository keeping at
// most one credential per provider.
type MemoryCredentialRepository struct {
	mu         sync.RWMutex
	byID       map[uuid.UUID]*models.Credential
	byProvider map[string]uuid.UUID
}

// NewMemoryCredentialRepository creates an empty in-memory credential repository
func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		byID:       make(map[uuid.UUID]*models.Credential),
		byProvider: make(map[string]uuid.UUID),
	}
}

func (r *MemoryCredentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byID[id]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCredentialRepository) GetByProvider(ctx context.Context, providerID string) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProvider[providerID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Rotation: drop any previous credential for this provider.
	if prev, ok := r.byProvider[cred.ProviderID]; ok {
		delete(r.byID, prev)
	}

	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}

	cp := *cred
	r.byID[cred.ID] = &cp
	r.byProvider[cred.ProviderID] = cred.ID
	return nil
}

func (r *MemoryCredentialRepository) DeleteByProvider(ctx context.Context, providerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byProvider[providerID]
	if !ok {
		return ErrCredentialNotFound
	}
	delete(r.byID, id)
	delete(r.byProvider, providerID)
	return nil
}

func (r *MemoryCredentialRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok {
		return ErrCredentialNotFound
	}
	now := time.Now()
	c.LastUsedAt = &now
	return nil
}
