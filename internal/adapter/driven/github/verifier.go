// Package github implements the CredentialVerifier port for GitHub tokens
// using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// ProviderID is the registry id this verifier answers for.
const ProviderID = "github"

// Compile-time interface satisfaction check.
var _ driven.CredentialVerifier = (*Verifier)(nil)

// Verifier checks a GitHub token by fetching the authenticated user.
type Verifier struct {
	base     http.RoundTripper // nil uses http.DefaultTransport
	timeout  time.Duration
	baseURL  *url.URL
	newCache func() httpcache.Cache
}

// NewVerifier creates a Verifier. Each Verify call builds the stack:
//  1. httpcache (ETag-based conditional request caching, scoped to the call)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (REST client, authenticated per call)
//
// GitHub varies /user on Authorization and httpcache records the varied
// header next to the cached body, so a cache that outlived the call would
// hold the token.
func NewVerifier() *Verifier {
	return &Verifier{newCache: memoryCache}
}

// NewVerifierWithHTTPClient creates a Verifier that sends requests through
// httpClient's transport and timeout to baseURL, for GitHub Enterprise or an
// httptest server.
func NewVerifierWithHTTPClient(httpClient *http.Client, baseURL string) (*Verifier, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	return &Verifier{
		base:     httpClient.Transport,
		timeout:  httpClient.Timeout,
		baseURL:  u,
		newCache: memoryCache,
	}, nil
}

func memoryCache() httpcache.Cache { return httpcache.NewMemoryCache() }

// callCache remembers every key written during one Verify call so the
// entries can be dropped when the call returns.
type callCache struct {
	httpcache.Cache

	mu   sync.Mutex
	keys []string
}

func (c *callCache) Set(key string, resp []byte) {
	c.mu.Lock()
	c.keys = append(c.keys, key)
	c.mu.Unlock()
	c.Cache.Set(key, resp)
}

func (c *callCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.keys {
		c.Cache.Delete(k)
	}
	c.keys = nil
}

// Provider returns the registry id.
func (v *Verifier) Provider() string { return ProviderID }

// Verify calls GET /user with token. A 401 is a definite "invalid" answer and
// is not an error; transport failures and other statuses are.
func (v *Verifier) Verify(ctx context.Context, token string) (model.Verification, error) {
	cache := &callCache{Cache: v.newCache()}
	defer cache.purge()

	cacheTransport := httpcache.NewTransport(cache)
	cacheTransport.Transport = v.base
	httpClient := github_ratelimit.NewClient(cacheTransport)
	httpClient.Timeout = v.timeout

	client := gh.NewClient(httpClient).WithAuthToken(token)
	if v.baseURL != nil {
		client.BaseURL = v.baseURL
	}

	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		var ghErr *gh.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnauthorized {
			return model.Verification{Valid: false, Detail: "GitHub rejected the token"}, nil
		}
		return model.Verification{}, fmt.Errorf("fetching authenticated github user: %w", err)
	}

	logRateLimit(resp)

	return model.Verification{
		Valid:    true,
		Identity: user.GetLogin(),
		Scopes:   parseScopes(resp.Header.Get("X-OAuth-Scopes")),
	}, nil
}

// parseScopes splits the comma-separated X-OAuth-Scopes header. Fine-grained
// tokens send no header and yield nil.
func parseScopes(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	var scopes []string
	for _, s := range strings.Split(header, ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func logRateLimit(resp *gh.Response) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", "user",
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
