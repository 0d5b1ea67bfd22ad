package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// DefaultOpTimeout bounds each store call whose context carries no deadline.
const DefaultOpTimeout = 5 * time.Second

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// It persists sealed values only; it never sees plaintext.
type CredentialRepo struct {
	db        *DB
	opTimeout time.Duration
	now       func() time.Time
}

// RepoOption configures a CredentialRepo.
type RepoOption func(*CredentialRepo)

// WithOpTimeout sets the per-call timeout applied when the caller's context
// has no deadline. Zero disables it.
func WithOpTimeout(d time.Duration) RepoOption {
	return func(r *CredentialRepo) { r.opTimeout = d }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) RepoOption {
	return func(r *CredentialRepo) { r.now = now }
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB, opts ...RepoOption) *CredentialRepo {
	r := &CredentialRepo{db: db, opTimeout: DefaultOpTimeout, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert inserts the credential or replaces the sealed value and metadata of
// the existing (user_id, storage_key) row. The conflict is resolved by SQLite
// in a single statement, so concurrent writers to the same key never leave a
// mixed row behind; the last write wins.
func (r *CredentialRepo) Upsert(ctx context.Context, cred model.Credential) (model.Credential, error) {
	if err := checkRecord(cred); err != nil {
		return model.Credential{}, err
	}

	meta, err := encodeMetadata(cred.Metadata)
	if err != nil {
		return model.Credential{}, err
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
		INSERT INTO credentials (user_id, storage_key, encrypted_value, iv, auth_tag, key_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, storage_key) DO UPDATE SET
			encrypted_value = excluded.encrypted_value,
			iv              = excluded.iv,
			auth_tag        = excluded.auth_tag,
			key_id          = excluded.key_id,
			metadata        = excluded.metadata,
			updated_at      = excluded.updated_at
		RETURNING id, created_at, updated_at`

	now := formatTime(r.now())
	var createdAt, updatedAt string
	err = r.db.Writer.QueryRowContext(ctx, query,
		cred.UserID, cred.StorageKey,
		cred.Sealed.Ciphertext, cred.Sealed.IV, cred.Sealed.AuthTag, cred.Sealed.KeyID,
		meta, now, now,
	).Scan(&cred.ID, &createdAt, &updatedAt)
	if err != nil {
		return model.Credential{}, storageErr(ctx, fmt.Sprintf("upsert credential %q", cred.StorageKey), err)
	}

	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Credential{}, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Credential{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return cred, nil
}

// Get retrieves the credential row at (userID, storageKey).
// Returns model.ErrNotFound if no such row exists.
func (r *CredentialRepo) Get(ctx context.Context, userID, storageKey string) (model.Credential, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
		SELECT id, user_id, storage_key, encrypted_value, iv, auth_tag, key_id, metadata, created_at, updated_at
		FROM credentials WHERE user_id = ? AND storage_key = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, userID, storageKey))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, fmt.Errorf("get credential %q: %w", storageKey, model.ErrNotFound)
	}
	if err != nil {
		return model.Credential{}, storageErr(ctx, fmt.Sprintf("get credential %q", storageKey), err)
	}
	return cred, nil
}

// List returns metadata-only summaries for every credential owned by userID,
// ordered by storage key. Secret columns are never selected.
func (r *CredentialRepo) List(ctx context.Context, userID string) ([]model.CredentialSummary, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
		SELECT id, user_id, storage_key, metadata, created_at, updated_at
		FROM credentials WHERE user_id = ? ORDER BY storage_key`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, storageErr(ctx, "list credentials", err)
	}
	defer rows.Close()

	summaries := []model.CredentialSummary{}
	for rows.Next() {
		var s model.CredentialSummary
		var meta, createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.UserID, &s.StorageKey, &meta, &createdAt, &updatedAt); err != nil {
			return nil, storageErr(ctx, "scan credential", err)
		}

		if s.Metadata, err = decodeMetadata(meta); err != nil {
			return nil, fmt.Errorf("decode metadata for %q: %w", s.StorageKey, err)
		}
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %q: %w", s.StorageKey, err)
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("parse updated_at for %q: %w", s.StorageKey, err)
		}

		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(ctx, "iterate credentials", err)
	}

	return summaries, nil
}

// Delete removes the credential row at (userID, storageKey).
// Returns model.ErrNotFound if no such row exists.
func (r *CredentialRepo) Delete(ctx context.Context, userID, storageKey string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `DELETE FROM credentials WHERE user_id = ? AND storage_key = ?`
	result, err := r.db.Writer.ExecContext(ctx, query, userID, storageKey)
	if err != nil {
		return storageErr(ctx, fmt.Sprintf("delete credential %q", storageKey), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return storageErr(ctx, "check rows affected", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete credential %q: %w", storageKey, model.ErrNotFound)
	}
	return nil
}

// Scan returns up to limit rows with id greater than afterID, across all users.
func (r *CredentialRepo) Scan(ctx context.Context, afterID int64, limit int) ([]model.Credential, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
		SELECT id, user_id, storage_key, encrypted_value, iv, auth_tag, key_id, metadata, created_at, updated_at
		FROM credentials WHERE id > ? ORDER BY id LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, storageErr(ctx, "scan credentials", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, storageErr(ctx, "scan credential", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(ctx, "iterate credentials", err)
	}
	return creds, nil
}

// SwapSealed replaces the sealed columns only when they still hold old.
func (r *CredentialRepo) SwapSealed(ctx context.Context, userID, storageKey string, old, replacement model.SealedValue) (bool, error) {
	if !replacement.IsComplete() {
		return false, model.NewValidationError("sealed", "ciphertext, iv and auth tag are required")
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()

	const query = `
		UPDATE credentials
		SET encrypted_value = ?, iv = ?, auth_tag = ?, key_id = ?, updated_at = ?
		WHERE user_id = ? AND storage_key = ? AND encrypted_value = ? AND iv = ? AND auth_tag = ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		replacement.Ciphertext, replacement.IV, replacement.AuthTag, replacement.KeyID, formatTime(r.now()),
		userID, storageKey, old.Ciphertext, old.IV, old.AuthTag,
	)
	if err != nil {
		return false, storageErr(ctx, fmt.Sprintf("swap sealed value %q", storageKey), err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, storageErr(ctx, "check rows affected", err)
	}
	return rows == 1, nil
}

// bound applies the repo's op timeout when ctx has no deadline of its own.
func (r *CredentialRepo) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (model.Credential, error) {
	var cred model.Credential
	var meta, createdAt, updatedAt string

	err := row.Scan(
		&cred.ID, &cred.UserID, &cred.StorageKey,
		&cred.Sealed.Ciphertext, &cred.Sealed.IV, &cred.Sealed.AuthTag, &cred.Sealed.KeyID,
		&meta, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Credential{}, err
	}

	if cred.Metadata, err = decodeMetadata(meta); err != nil {
		return model.Credential{}, fmt.Errorf("decode metadata: %w", err)
	}
	if cred.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Credential{}, fmt.Errorf("parse created_at: %w", err)
	}
	if cred.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Credential{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return cred, nil
}

func checkRecord(cred model.Credential) error {
	if cred.UserID == "" {
		return model.NewValidationError("user_id", "must not be empty")
	}
	if cred.StorageKey == "" {
		return model.NewValidationError("storage_key", "must not be empty")
	}
	if !cred.Sealed.IsComplete() {
		return model.NewValidationError("sealed", "ciphertext, iv and auth tag are required")
	}
	return nil
}

func encodeMetadata(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(raw string) (map[string]string, error) {
	meta := map[string]string{}
	if raw == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// storageErr classifies a database failure. A deadline on ctx marks the
// error as a timeout even when the driver reports it as an interrupt.
func storageErr(ctx context.Context, op string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &model.StorageError{Op: op, Timeout: timeout, Err: err}
}
