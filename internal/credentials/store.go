package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"chat_gateway/internal/models"
	"chat_gateway/internal/storage"
)

var (
	// ErrInvalidInput is returned when storing an empty key or a key for
	// an unknown provider
	ErrInvalidInput = errors.New("invalid credential input")

	// ErrNotFound is returned when no credential exists for the lookup
	ErrNotFound = errors.New("credential not found")

	// ErrDecryptionFailed is returned when a stored credential cannot be
	// opened (corrupt ciphertext or wrong master secret)
	ErrDecryptionFailed = errors.New("credential decryption failed")
)

// Store owns credential encryption at rest. Decrypted plaintext leaves this
// package only as a return value to the proxy engine at call time; it is
// never persisted or logged.
type Store struct {
	enc       *Encryption
	creds     storage.CredentialRepository
	providers storage.ProviderRepository

	// per-provider write locks so concurrent rotations for the same
	// provider serialize without stalling other providers
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a credential store. enc must be non-nil; the master
// secret requirement is enforced at config load time.
func NewStore(enc *Encryption, creds storage.CredentialRepository, providers storage.ProviderRepository) *Store {
	return &Store{
		enc:       enc,
		creds:     creds,
		providers: providers,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *Store) providerLock(providerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[providerID] = l
	}
	return l
}

// Store encrypts plaintextKey and persists it for the provider. A second
// call for the same provider is a rotation: the previous credential is
// replaced. Returns the new credential id.
func (s *Store) Store(ctx context.Context, providerID, plaintextKey string) (uuid.UUID, error) {
	if plaintextKey == "" {
		return uuid.Nil, fmt.Errorf("%w: empty key", ErrInvalidInput)
	}
	if _, err := s.providers.GetByID(ctx, providerID); err != nil {
		if errors.Is(err, storage.ErrProviderNotFound) {
			return uuid.Nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidInput, providerID)
		}
		return uuid.Nil, fmt.Errorf("failed to resolve provider: %w", err)
	}

	ciphertext, err := s.enc.Encrypt([]byte(plaintextKey))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	cred := &models.Credential{
		ID:         uuid.New(),
		ProviderID: providerID,
		Ciphertext: ciphertext,
	}

	lock := s.providerLock(providerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.creds.Upsert(ctx, cred); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist credential: %w", err)
	}
	return cred.ID, nil
}

// Decrypt returns the plaintext key for the credential id.
func (s *Store) Decrypt(ctx context.Context, id uuid.UUID) (string, error) {
	cred, err := s.creds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	return s.open(ctx, cred)
}

// DecryptForProvider returns the plaintext key for the provider's credential.
func (s *Store) DecryptForProvider(ctx context.Context, providerID string) (string, error) {
	cred, err := s.creds.GetByProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	return s.open(ctx, cred)
}

func (s *Store) open(ctx context.Context, cred *models.Credential) (string, error) {
	plaintext, err := s.enc.Decrypt(cred.Ciphertext)
	if err != nil {
		// Deliberately drop the cipher error detail so no key material
		// fragment can surface in messages.
		return "", ErrDecryptionFailed
	}

	// Best effort; a failed bookkeeping write must not fail the call.
	_ = s.creds.TouchLastUsed(ctx, cred.ID)

	return string(plaintext), nil
}

// FindByProvider returns the provider's credential record (ciphertext only)
// or ErrNotFound.
func (s *Store) FindByProvider(ctx context.Context, providerID string) (*models.Credential, error) {
	cred, err := s.creds.GetByProvider(ctx, providerID)
	if err != nil {
		if errors.Is(err, storage.ErrCredentialNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return cred, nil
}

// Remove deletes the provider's credential. Removing a credential that does
// not exist is not an error.
func (s *Store) Remove(ctx context.Context, providerID string) error {
	lock := s.providerLock(providerID)
	lock.Lock()
	defer lock.Unlock()

	err := s.creds.DeleteByProvider(ctx, providerID)
	if err != nil && !errors.Is(err, storage.ErrCredentialNotFound) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
