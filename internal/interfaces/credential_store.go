package interfaces

import (
	"context"
	"errors"

	"github.com/tario-you/pollevbot/internal/models"
)

// ErrCredentialNotFound is returned when no credential is stored for a host
var ErrCredentialNotFound = errors.New("credential not found")

// CredentialStore defines operations for persisted session material,
// keyed by host. Implementations never touch the network. A store
// that is unreadable or corrupt surfaces *models.StorageError, which
// callers treat as a cache miss.
type CredentialStore interface {
	// Load retrieves the stored credential for a host, or
	// ErrCredentialNotFound
	Load(ctx context.Context, host string) (*models.StoredCredential, error)

	// Save inserts or updates the stored credential for a host
	Save(ctx context.Context, cred *models.StoredCredential) error

	// Evict removes the stored credential for a host. Evicting a
	// missing host is not an error
	Evict(ctx context.Context, host string) error
}
