package model

import "time"

// SealedValue is the output of the credential cipher. Ciphertext, IV and
// AuthTag are always persisted together; a record missing any of them is
// treated as tampered.
type SealedValue struct {
	Ciphertext []byte
	IV         []byte
	AuthTag    []byte
	// KeyID identifies the key that produced the value. Used by key rotation
	// to skip records already sealed under the current key.
	KeyID string
}

// IsComplete reports whether all three cipher outputs are present.
func (s SealedValue) IsComplete() bool {
	return len(s.Ciphertext) > 0 && len(s.IV) > 0 && len(s.AuthTag) > 0
}

// Credential is a persisted credential row. UserID and StorageKey together
// form the unique identity of the row.
type Credential struct {
	ID         int64
	UserID     string
	StorageKey string
	Sealed     SealedValue
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Summary returns the metadata-only view of the record.
func (c Credential) Summary() CredentialSummary {
	return CredentialSummary{
		ID:         c.ID,
		UserID:     c.UserID,
		StorageKey: c.StorageKey,
		Metadata:   c.Metadata,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

// CredentialSummary is the bulk-enumeration view of a credential record. It
// carries no secret material, encrypted or otherwise.
type CredentialSummary struct {
	ID         int64
	UserID     string
	StorageKey string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Metadata keys written by the vault on every credential write.
const (
	MetaProvider   = "provider"
	MetaScopeKind  = "scope_kind"
	MetaSource     = "source"
	MetaClonedFrom = "cloned_from"
)
