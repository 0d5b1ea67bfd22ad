package driven

import (
	"context"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// CredentialVerifier checks a credential against the provider's live API.
// It is separate from, and never invoked by, structural validation.
type CredentialVerifier interface {
	// Provider returns the provider id this verifier serves.
	Provider() string

	// Verify authenticates with credential. A rejected credential is a
	// Verification with Valid false and a nil error; errors are reserved for
	// transport failures.
	Verify(ctx context.Context, credential string) (model.Verification, error)
}
