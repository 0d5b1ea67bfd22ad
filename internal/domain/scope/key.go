package scope

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

var userIDPattern = regexp.MustCompile(`^[^:\s]{1,128}$`)

// ValidateUserID rejects empty user ids and ids containing the key separator
// or whitespace.
func ValidateUserID(userID string) error {
	if userID == "" {
		return model.NewValidationError("user_id", "must not be empty")
	}
	if !userIDPattern.MatchString(userID) {
		return model.NewValidationError("user_id", "must be at most 128 characters without ':' or whitespace")
	}
	return nil
}

// DeriveStorageKey maps (user, provider, scope) to the canonical storage key:
//
//	<user>:<provider>[:<scope>]
//
// Distinct (provider, scope) pairs never produce the same key, and the
// personal scope never shares a key with a named or project scope.
func DeriveStorageKey(userID, providerID string, s Scope) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	if err := checkSegment("provider", providerID); err != nil {
		return "", err
	}

	base := userID + Separator + providerID
	if s.Kind == KindPersonal || s.Kind == "" {
		return base, nil
	}
	return base + Separator + s.String(), nil
}

// SplitStorageKey is the inverse of DeriveStorageKey for keys owned by userID.
func SplitStorageKey(userID, key string) (providerID string, s Scope, err error) {
	prefix := userID + Separator
	if !strings.HasPrefix(key, prefix) {
		return "", Scope{}, model.NewValidationError("storage_key", fmt.Sprintf("%q is not owned by user %q", key, userID))
	}

	rest := strings.TrimPrefix(key, prefix)
	providerID, raw, _ := strings.Cut(rest, Separator)
	if err := checkSegment("provider", providerID); err != nil {
		return "", Scope{}, err
	}

	s, err = Parse(raw)
	if err != nil {
		return "", Scope{}, err
	}
	return providerID, s, nil
}
