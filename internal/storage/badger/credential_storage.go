package badger

import (
	"context"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tario-you/pollevbot/internal/interfaces"
	"github.com/tario-you/pollevbot/internal/models"
)

// CredentialStorage implements the CredentialStore interface for Badger
type CredentialStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCredentialStorage creates a new CredentialStorage instance
func NewCredentialStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CredentialStore {
	return &CredentialStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeHost converts a host to lowercase for case-insensitive storage
func (s *CredentialStorage) normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

// Load retrieves the stored credential for a host (case-insensitive)
func (s *CredentialStorage) Load(ctx context.Context, host string) (*models.StoredCredential, error) {
	normalizedHost := s.normalizeHost(host)
	var cred models.StoredCredential
	err := s.db.Store().Get(normalizedHost, &cred)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrCredentialNotFound
	}
	if err != nil {
		return nil, &models.StorageError{Op: "load", Err: err}
	}

	return &cred, nil
}

// Save inserts or updates the stored credential for a host
func (s *CredentialStorage) Save(ctx context.Context, cred *models.StoredCredential) error {
	normalizedHost := s.normalizeHost(cred.Host)
	now := time.Now()

	record := *cred
	record.Host = normalizedHost
	record.UpdatedAt = now
	if record.FetchedAt.IsZero() {
		record.FetchedAt = now
	}

	if err := s.db.Store().Upsert(normalizedHost, &record); err != nil {
		return &models.StorageError{Op: "save", Err: err}
	}

	s.logger.Debug().
		Str("host", normalizedHost).
		Bool("has_cookies", len(record.Cookies) > 0).
		Bool("has_token", record.Token != "").
		Msg("Stored session credential")

	return nil
}

// Evict removes the stored credential for a host. Evicting a missing
// host is not an error.
func (s *CredentialStorage) Evict(ctx context.Context, host string) error {
	normalizedHost := s.normalizeHost(host)
	err := s.db.Store().Delete(normalizedHost, &models.StoredCredential{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	if err != nil {
		return &models.StorageError{Op: "evict", Err: err}
	}

	s.logger.Info().Str("host", normalizedHost).Msg("Evicted stored credential")
	return nil
}
