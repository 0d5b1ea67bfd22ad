// Package anthropic implements the CredentialVerifier port for Anthropic API
// keys using the official SDK.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// ProviderID is the registry id this verifier answers for.
const ProviderID = "anthropic"

// Compile-time interface satisfaction check.
var _ driven.CredentialVerifier = (*Verifier)(nil)

// Verifier checks an API key by listing the models it can access. Listing
// models is free and has no side effects.
type Verifier struct {
	opts []option.RequestOption
}

// NewVerifier creates a Verifier. An empty baseURL uses the public API;
// httpClient may be nil.
func NewVerifier(baseURL string, httpClient *http.Client) *Verifier {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Verifier{opts: opts}
}

// Provider returns the registry id.
func (v *Verifier) Provider() string { return ProviderID }

// Verify lists one page of models with key. 401 and 403 are definite
// "invalid" answers; anything else that fails is an error.
func (v *Verifier) Verify(ctx context.Context, key string) (model.Verification, error) {
	opts := append([]option.RequestOption{option.WithAPIKey(key)}, v.opts...)
	client := anthropic.NewClient(opts...)

	page, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(20)})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusUnauthorized:
				return model.Verification{Valid: false, Detail: "Anthropic rejected the API key"}, nil
			case http.StatusForbidden:
				return model.Verification{Valid: false, Detail: "API key lacks permission to list models"}, nil
			}
		}
		return model.Verification{}, fmt.Errorf("listing anthropic models: %w", err)
	}

	res := model.Verification{Valid: true}
	for _, m := range page.Data {
		res.Scopes = append(res.Scopes, m.ID)
	}
	if len(res.Scopes) > 0 {
		res.Detail = fmt.Sprintf("%d model(s) accessible", len(res.Scopes))
	}
	return res, nil
}
