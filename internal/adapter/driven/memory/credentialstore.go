// Package memory provides a volatile CredentialStore. It backs tests and
// ephemeral sessions with the same contract as the SQLite store.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialStore)(nil)

type rowKey struct {
	userID     string
	storageKey string
}

// CredentialStore is a thread-safe in-memory implementation of
// driven.CredentialStore.
type CredentialStore struct {
	mu     sync.RWMutex
	rows   map[rowKey]model.Credential
	nextID int64
	now    func() time.Time

	// failWith, when set, is returned by every call. Lets tests simulate a
	// backend outage.
	failWith error
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		rows: make(map[rowKey]model.Credential),
		now:  time.Now,
	}
}

// FailWith makes every subsequent call fail with a storage error wrapping
// err. Passing nil restores normal operation.
func (s *CredentialStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Len returns the number of stored records across all users.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Upsert inserts or replaces the record at (UserID, StorageKey).
func (s *CredentialStore) Upsert(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if err := s.check(ctx, "upsert credential"); err != nil {
		return model.Credential{}, err
	}
	if cred.UserID == "" || cred.StorageKey == "" {
		return model.Credential{}, model.NewValidationError("storage_key", "user id and storage key are required")
	}
	if !cred.Sealed.IsComplete() {
		return model.Credential{}, model.NewValidationError("sealed", "ciphertext, iv and auth tag are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	k := rowKey{cred.UserID, cred.StorageKey}
	if existing, ok := s.rows[k]; ok {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		cred.ID = s.nextID
		cred.CreatedAt = now
	}
	cred.UpdatedAt = now
	cred = clone(cred)
	s.rows[k] = cred

	return clone(cred), nil
}

// Get returns the record at (userID, storageKey), or model.ErrNotFound.
func (s *CredentialStore) Get(ctx context.Context, userID, storageKey string) (model.Credential, error) {
	if err := s.check(ctx, "get credential"); err != nil {
		return model.Credential{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cred, ok := s.rows[rowKey{userID, storageKey}]
	if !ok {
		return model.Credential{}, fmt.Errorf("get credential %q: %w", storageKey, model.ErrNotFound)
	}
	return clone(cred), nil
}

// List returns summaries of userID's records ordered by storage key.
func (s *CredentialStore) List(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	if err := s.check(ctx, "list credentials"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.CredentialSummary{}
	for k, cred := range s.rows {
		if k.userID == userID {
			out = append(out, clone(cred).Summary())
		}
	}
	slices.SortFunc(out, func(a, b model.CredentialSummary) int {
		return strings.Compare(a.StorageKey, b.StorageKey)
	})
	return out, nil
}

// Delete removes the record at (userID, storageKey), or returns model.ErrNotFound.
func (s *CredentialStore) Delete(ctx context.Context, userID, storageKey string) error {
	if err := s.check(ctx, "delete credential"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := rowKey{userID, storageKey}
	if _, ok := s.rows[k]; !ok {
		return fmt.Errorf("delete credential %q: %w", storageKey, model.ErrNotFound)
	}
	delete(s.rows, k)
	return nil
}

// Scan pages through all records ordered by ID.
func (s *CredentialStore) Scan(ctx context.Context, afterID int64, limit int) ([]model.Credential, error) {
	if err := s.check(ctx, "scan credentials"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []model.Credential
	for _, cred := range s.rows {
		if cred.ID > afterID {
			all = append(all, clone(cred))
		}
	}
	slices.SortFunc(all, func(a, b model.Credential) int {
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// SwapSealed replaces the sealed value only if it still equals old.
func (s *CredentialStore) SwapSealed(ctx context.Context, userID, storageKey string, old, replacement model.SealedValue) (bool, error) {
	if err := s.check(ctx, "swap sealed value"); err != nil {
		return false, err
	}
	if !replacement.IsComplete() {
		return false, model.NewValidationError("sealed", "ciphertext, iv and auth tag are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := rowKey{userID, storageKey}
	cred, ok := s.rows[k]
	if !ok || !sealedEqual(cred.Sealed, old) {
		return false, nil
	}
	cred.Sealed = cloneSealed(replacement)
	cred.UpdatedAt = s.now().UTC()
	s.rows[k] = cred
	return true, nil
}

// Tamper applies mutate to the stored sealed value in place. It exists so
// tests can simulate out-of-band modification of a record.
func (s *CredentialStore) Tamper(userID, storageKey string, mutate func(*model.SealedValue)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := rowKey{userID, storageKey}
	cred, ok := s.rows[k]
	if !ok {
		return false
	}
	mutate(&cred.Sealed)
	s.rows[k] = cred
	return true
}

func (s *CredentialStore) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &model.StorageError{Op: op, Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
	}

	s.mu.RLock()
	failWith := s.failWith
	s.mu.RUnlock()
	if failWith != nil {
		return &model.StorageError{Op: op, Timeout: errors.Is(failWith, context.DeadlineExceeded), Err: failWith}
	}
	return nil
}

func sealedEqual(a, b model.SealedValue) bool {
	return bytes.Equal(a.Ciphertext, b.Ciphertext) &&
		bytes.Equal(a.IV, b.IV) &&
		bytes.Equal(a.AuthTag, b.AuthTag)
}

func cloneSealed(v model.SealedValue) model.SealedValue {
	return model.SealedValue{
		Ciphertext: bytes.Clone(v.Ciphertext),
		IV:         bytes.Clone(v.IV),
		AuthTag:    bytes.Clone(v.AuthTag),
		KeyID:      v.KeyID,
	}
}

// clone deep-copies cred so callers can never alias stored state.
func clone(cred model.Credential) model.Credential {
	cred.Sealed = cloneSealed(cred.Sealed)
	if cred.Metadata != nil {
		cred.Metadata = maps.Clone(cred.Metadata)
	}
	return cred
}
