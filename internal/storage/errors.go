package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderExists is returned when creating a provider whose id is taken
	ErrProviderExists = errors.New("provider already exists")

	// ErrCredentialNotFound is returned when a credential is not found
	ErrCredentialNotFound = errors.New("credential not found")
)
