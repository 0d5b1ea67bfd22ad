package github_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/credvault/internal/adapter/driven/github"
)

// newTestVerifier creates a Verifier backed by the given httptest handler.
func newTestVerifier(t *testing.T, handler http.Handler) *ghAdapter.Verifier {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	v, err := ghAdapter.NewVerifierWithHTTPClient(server.Client(), server.URL)
	require.NoError(t, err)
	return v
}

func TestVerify_ValidToken(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("X-OAuth-Scopes", "repo, read:org")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"login": "octocat", "id": 1})
	})

	v := newTestVerifier(t, mux)
	res, err := v.Verify(context.Background(), "ghp_testtoken")
	require.NoError(t, err)

	assert.Equal(t, "Bearer ghp_testtoken", gotAuth)
	assert.True(t, res.Valid)
	assert.Equal(t, "octocat", res.Identity)
	assert.Equal(t, []string{"repo", "read:org"}, res.Scopes)
	assert.Equal(t, "github", v.Provider())
}

func TestVerify_FineGrainedTokenHasNoScopes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login":"hubot"}`))
	})

	res, err := newTestVerifier(t, mux).Verify(context.Background(), "github_pat_x")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Nil(t, res.Scopes)
}

func TestVerify_UnauthorizedIsInvalidNotError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	})

	res, err := newTestVerifier(t, mux).Verify(context.Background(), "ghp_revoked")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Detail)
}

func TestVerify_ServerErrorIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := newTestVerifier(t, mux).Verify(context.Background(), "ghp_x")
	assert.Error(t, err)
}
