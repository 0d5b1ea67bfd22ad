// Package gitlab implements the CredentialVerifier port for GitLab tokens
// using the official GitLab API client.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// ProviderID is the registry id this verifier answers for.
const ProviderID = "gitlab"

// Compile-time interface satisfaction check.
var _ driven.CredentialVerifier = (*Verifier)(nil)

// Verifier checks a GitLab token by fetching the current user. BaseURL
// selects a self-hosted instance; empty means gitlab.com.
type Verifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewVerifier creates a Verifier. httpClient may be nil.
func NewVerifier(baseURL string, httpClient *http.Client) *Verifier {
	return &Verifier{baseURL: baseURL, httpClient: httpClient}
}

// Provider returns the registry id.
func (v *Verifier) Provider() string { return ProviderID }

// Verify calls GET /user with token. A 401 is a definite "invalid" answer.
func (v *Verifier) Verify(ctx context.Context, token string) (model.Verification, error) {
	opts := []gitlab.ClientOptionFunc{gitlab.WithCustomRetryMax(0)}
	if v.baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(v.baseURL))
	}
	if v.httpClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(v.httpClient))
	}

	client, err := gitlab.NewClient(token, opts...)
	if err != nil {
		return model.Verification{}, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	user, _, err := client.Users.CurrentUser(gitlab.WithContext(ctx))
	if err != nil {
		var glErr *gitlab.ErrorResponse
		if errors.As(err, &glErr) && glErr.Response != nil && glErr.Response.StatusCode == http.StatusUnauthorized {
			return model.Verification{Valid: false, Detail: "GitLab rejected the token"}, nil
		}
		return model.Verification{}, fmt.Errorf("failed to get current GitLab user: %w", err)
	}

	res := model.Verification{Valid: true, Identity: user.Username}
	if user.State != "" && user.State != "active" {
		res.Detail = "account state: " + user.State
	}
	return res, nil
}
