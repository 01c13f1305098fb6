package storage

import (
	"context"

	"github.com/google/uuid"

	"chat_gateway/internal/models"
)

// ProviderRepository persists provider configurations. Implementations must
// return ErrProviderNotFound / ErrProviderExists as appropriate so callers
// can match with errors.Is.
type ProviderRepository interface {
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	List(ctx context.Context) ([]*models.Provider, error)
	Create(ctx context.Context, provider *models.Provider) error
	Update(ctx context.Context, provider *models.Provider) error
	Delete(ctx context.Context, id string) error
}

// CredentialRepository persists encrypted provider credentials. Plaintext
// keys never pass through this interface.
type CredentialRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Credential, error)
	GetByProvider(ctx context.Context, providerID string) (*models.Credential, error)
	// Upsert stores the credential, replacing any existing credential for
	// the same provider (key rotation).
	Upsert(ctx context.Context, cred *models.Credential) error
	DeleteByProvider(ctx context.Context, providerID string) error
	TouchLastUsed(ctx context.Context, id uuid.UUID) error
}
