package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential is an encrypted-at-rest provider API key.
//
// Ciphertext is the AES-GCM sealed key with the nonce prepended, base64
// encoded. At most one credential exists per provider; storing a new key for
// a provider replaces the previous one (rotation).
type Credential struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	ProviderID string     `db:"provider_id" json:"provider_id"`
	Ciphertext string     `db:"ciphertext" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}
