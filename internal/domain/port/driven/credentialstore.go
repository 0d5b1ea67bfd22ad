package driven

import (
	"context"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// CredentialStore defines the driven port for credential persistence. It
// stores sealed values only; encryption happens before Upsert and
// decryption after Get.
//
// Implementations must honor the context deadline on every call and report
// failures as *model.StorageError so callers can tell a timeout from any
// other backend failure. No implementation retries.
type CredentialStore interface {
	// Upsert inserts the record or, when (UserID, StorageKey) already exists,
	// replaces its sealed value and metadata in place. CreatedAt of an existing
	// row is preserved; UpdatedAt is refreshed. Returns the stored row.
	Upsert(ctx context.Context, cred model.Credential) (model.Credential, error)

	// Get returns the record at (userID, storageKey), or model.ErrNotFound.
	Get(ctx context.Context, userID, storageKey string) (model.Credential, error)

	// List returns metadata-only summaries of every record owned by userID,
	// ordered by storage key.
	List(ctx context.Context, userID string) ([]model.CredentialSummary, error)

	// Delete removes the record at (userID, storageKey), or returns
	// model.ErrNotFound if there was none.
	Delete(ctx context.Context, userID, storageKey string) error

	// Scan pages through records of all users ordered by ID, returning at most
	// limit records with ID greater than afterID. Used by key rotation.
	Scan(ctx context.Context, afterID int64, limit int) ([]model.Credential, error)

	// SwapSealed replaces the sealed value of the record at (userID,
	// storageKey) only if it still equals old. It reports whether the swap
	// happened; a false result means a concurrent write got there first.
	SwapSealed(ctx context.Context, userID, storageKey string, old, replacement model.SealedValue) (bool, error)
}
