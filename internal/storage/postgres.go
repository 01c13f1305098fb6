package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"chat_gateway/internal/models"
)

// PostgresProviderRepository is the Postgres-backed ProviderRepository.
type PostgresProviderRepository struct {
	db *DB
}

// NewPostgresProviderRepository creates a provider repository over db
func NewPostgresProviderRepository(db *DB) *PostgresProviderRepository {
	return &PostgresProviderRepository{db: db}
}

// providerRow maps the providers table; the rate limit policy is flattened
// into two columns and supported models into a text array.
type providerRow struct {
	ID              string         `db:"id"`
	DisplayName     string         `db:"display_name"`
	ProviderType    string         `db:"provider_type"`
	BaseEndpoint    string         `db:"base_endpoint"`
	DefaultModel    string         `db:"default_model"`
	SupportedModels pq.StringArray `db:"supported_models"`
	RateWindowMs    int64          `db:"rate_window_ms"`
	RateMaxRequests int            `db:"rate_max_requests"`
	Active          bool           `db:"active"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func (r providerRow) toModel() *models.Provider {
	return &models.Provider{
		ID:              r.ID,
		DisplayName:     r.DisplayName,
		ProviderType:    models.ProviderType(r.ProviderType),
		BaseEndpoint:    r.BaseEndpoint,
		DefaultModel:    r.DefaultModel,
		SupportedModels: r.SupportedModels,
		RateLimit: models.RateLimitPolicy{
			Window:      time.Duration(r.RateWindowMs) * time.Millisecond,
			MaxRequests: r.RateMaxRequests,
		},
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r *PostgresProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	var row providerRow
	query := `
		SELECT id, display_name, provider_type, base_endpoint, default_model,
		       supported_models, rate_window_ms, rate_max_requests, active,
		       created_at, updated_at
		FROM providers
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}

	return row.toModel(), nil
}

func (r *PostgresProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	query := `
		SELECT id, display_name, provider_type, base_endpoint, default_model,
		       supported_models, rate_window_ms, rate_max_requests, active,
		       created_at, updated_at
		FROM providers
		ORDER BY id
	`

	var rows []providerRow
	if err := r.db.conn.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	providers := make([]*models.Provider, 0, len(rows))
	for _, row := range rows {
		providers = append(providers, row.toModel())
	}
	return providers, nil
}

func (r *PostgresProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (id, display_name, provider_type, base_endpoint,
		                       default_model, supported_models, rate_window_ms,
		                       rate_max_requests, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.DisplayName, string(provider.ProviderType),
		provider.BaseEndpoint, provider.DefaultModel,
		pq.StringArray(provider.SupportedModels),
		provider.RateLimit.Window.Milliseconds(), provider.RateLimit.MaxRequests,
		provider.Active,
	).Scan(&provider.CreatedAt, &provider.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProviderExists
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}

	return nil
}

func (r *PostgresProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	query := `
		UPDATE providers
		SET display_name = $2, provider_type = $3, base_endpoint = $4,
		    default_model = $5, supported_models = $6, rate_window_ms = $7,
		    rate_max_requests = $8, active = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.conn.QueryRowxContext(
		ctx, query,
		provider.ID, provider.DisplayName, string(provider.ProviderType),
		provider.BaseEndpoint, provider.DefaultModel,
		pq.StringArray(provider.SupportedModels),
		provider.RateLimit.Window.Milliseconds(), provider.RateLimit.MaxRequests,
		provider.Active,
	).Scan(&provider.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("failed to update provider: %w", err)
	}

	return nil
}

func (r *PostgresProviderRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM providers WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete provider: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProviderNotFound
	}

	return nil
}

// PostgresCredentialRepository is the Postgres-backed CredentialRepository.
// The unique index on provider_id enforces the one-credential-per-provider
// invariant at the storage layer as well.
type PostgresCredentialRepository struct {
	db *DB
}

// NewPostgresCredentialRepository creates a credential repository over db
func NewPostgresCredentialRepository(db *DB) *PostgresCredentialRepository {
	return &PostgresCredentialRepository{db: db}
}

func (r *PostgresCredentialRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Credential, error) {
	var cred models.Credential
	query := `
		SELECT id, provider_id, ciphertext, created_at, last_used_at
		FROM credentials
		WHERE id = $1
	`

	err := r.db.conn.GetContext(ctx, &cred, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &cred, nil
}

func (r *PostgresCredentialRepository) GetByProvider(ctx context.Context, providerID string) (*models.Credential, error) {
	var cred models.Credential
	query := `
		SELECT id, provider_id, ciphertext, created_at, last_used_at
		FROM credentials
		WHERE provider_id = $1
	`

	err := r.db.conn.GetContext(ctx, &cred, query, providerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &cred, nil
}

func (r *PostgresCredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (id, provider_id, ciphertext)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_id)
		DO UPDATE SET id = $1, ciphertext = $3, created_at = now(), last_used_at = NULL
		RETURNING created_at
	`

	err := r.db.conn.QueryRowxContext(ctx, query, cred.ID, cred.ProviderID, cred.Ciphertext).
		Scan(&cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

func (r *PostgresCredentialRepository) DeleteByProvider(ctx context.Context, providerID string) error {
	result, err := r.db.conn.ExecContext(ctx, "DELETE FROM credentials WHERE provider_id = $1", providerID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrCredentialNotFound
	}

	return nil
}

func (r *PostgresCredentialRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.conn.ExecContext(ctx, "UPDATE credentials SET last_used_at = now() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to update credential last_used_at: %w", err)
	}
	return nil
}
