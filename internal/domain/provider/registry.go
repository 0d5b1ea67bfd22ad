package provider

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// UserAgent is sent by providers whose APIs require one.
const UserAgent = "credvault"

// builtin is the closed provider table in registration order. Adding a
// provider is one entry here.
var builtin = []Descriptor{
	{
		ID:       "github",
		Name:     "GitHub",
		Kind:     KindSourceHosting,
		DocsURL:  "https://docs.github.com/en/authentication/keeping-your-account-and-data-secure/managing-your-personal-access-tokens",
		TokenURL: "https://github.com/settings/tokens",
		EnvVar:   "GITHUB_TOKEN",
		Format: Format{
			Prefixes: []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"},
			Pattern:  regexp.MustCompile(`^(gh[pousr]_[A-Za-z0-9]{36,251}|github_pat_[A-Za-z0-9_]{22,244})$`),
			MaxLen:   255,
			Hint:     "ghp_ followed by 36+ alphanumerics, or github_pat_ followed by 22+ characters",
		},
		headers: func(v string) []Header {
			return []Header{
				{Name: "Authorization", Value: "Bearer " + v},
				{Name: "Accept", Value: "application/vnd.github+json"},
				{Name: "X-GitHub-Api-Version", Value: "2022-11-28"},
				{Name: "User-Agent", Value: UserAgent},
			}
		},
	},
	{
		ID:       "gitlab",
		Name:     "GitLab",
		Kind:     KindSourceHosting,
		DocsURL:  "https://docs.gitlab.com/user/profile/personal_access_tokens/",
		TokenURL: "https://gitlab.com/-/user_settings/personal_access_tokens",
		EnvVar:   "GITLAB_TOKEN",
		Format: Format{
			Prefixes: []string{"glpat-", "gldt-", "glptt-", "gloas-"},
			Pattern:  regexp.MustCompile(`^gl[a-z]{2,4}-[A-Za-z0-9_.-]{20,}$`),
			MaxLen:   255,
			Hint:     "glpat- followed by 20+ characters",
		},
		headers: func(v string) []Header {
			return []Header{
				{Name: "PRIVATE-TOKEN", Value: v},
				{Name: "User-Agent", Value: UserAgent},
			}
		},
	},
	{
		ID:       "bitbucket",
		Name:     "Bitbucket",
		Kind:     KindSourceHosting,
		DocsURL:  "https://support.atlassian.com/bitbucket-cloud/docs/access-tokens/",
		TokenURL: "https://bitbucket.org/account/settings/app-passwords/",
		EnvVar:   "BITBUCKET_TOKEN",
		Format: Format{
			Pattern: regexp.MustCompile(`^[A-Za-z0-9_=+/.-]+$`),
			MaxLen:  512,
			Hint:    "20+ characters of letters, digits and _=+/.-",
		},
		headers: func(v string) []Header {
			return []Header{
				{Name: "Authorization", Value: "Bearer " + v},
				{Name: "Accept", Value: "application/json"},
			}
		},
	},
	{
		ID:       "openai",
		Name:     "OpenAI",
		Kind:     KindAIAPI,
		DocsURL:  "https://platform.openai.com/docs/api-reference/authentication",
		TokenURL: "https://platform.openai.com/api-keys",
		EnvVar:   "OPENAI_API_KEY",
		Format: Format{
			Prefixes: []string{"sk-"},
			Excluded: []string{"sk-ant-"},
			Pattern:  regexp.MustCompile(`^sk-[A-Za-z0-9_-]+$`),
			MaxLen:   256,
			Hint:     "sk- followed by letters, digits, '_' or '-'",
		},
		headers: func(v string) []Header {
			return []Header{
				{Name: "Authorization", Value: "Bearer " + v},
				{Name: "Content-Type", Value: "application/json"},
			}
		},
	},
	{
		ID:       "anthropic",
		Name:     "Anthropic",
		Kind:     KindAIAPI,
		DocsURL:  "https://docs.anthropic.com/en/api/getting-started",
		TokenURL: "https://console.anthropic.com/settings/keys",
		EnvVar:   "ANTHROPIC_API_KEY",
		Format: Format{
			Prefixes: []string{"sk-ant-"},
			Pattern:  regexp.MustCompile(`^sk-ant-[A-Za-z0-9_-]+$`),
			MaxLen:   256,
			Hint:     "sk-ant- followed by letters, digits, '_' or '-'",
		},
		headers: func(v string) []Header {
			return []Header{
				{Name: "x-api-key", Value: v},
				{Name: "anthropic-version", Value: "2023-06-01"},
				{Name: "Content-Type", Value: "application/json"},
			}
		},
	},
	{
		ID:       "google",
		Name:     "Google Gemini",
		Kind:     KindAIAPI,
		DocsURL:  "https://ai.google.dev/gemini-api/docs/api-key",
		TokenURL: "https://aistudio.google.com/app/apikey",
		EnvVar:   "GEMINI_API_KEY",
		Format: Format{
			Prefixes: []string{"AIza"},
			Pattern:  regexp.MustCompile(`^AIza[0-9A-Za-z_-]{35}$`),
			MaxLen:   39,
			Hint:     "AIza followed by 35 characters",
		},
		headers: func(v string) []Header {
			return []Header{
				{Name: "x-goog-api-key", Value: v},
				{Name: "Content-Type", Value: "application/json"},
			}
		},
	},
}

// Registry resolves provider ids to descriptors. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byID  map[string]Descriptor
	order []string
}

// NewRegistry builds a registry from descriptors in the given order.
// Duplicate or empty ids are rejected.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byID: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("provider %q has no id", d.Name)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("provider %q registered twice", d.ID)
		}
		r.byID[d.ID] = d
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r, err := NewRegistry(builtin...)
	if err != nil {
		panic(err)
	}
	return r
})

// Default returns the built-in registry, constructed once per process.
func Default() *Registry {
	return defaultRegistry()
}

// Get returns the descriptor for id. Unknown ids fail with an error matching
// both model.ErrUnknownProvider and model.ErrValidation.
func (r *Registry) Get(id string) (Descriptor, error) {
	d, ok := r.byID[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %w", model.ErrUnknownProvider,
			model.NewValidationError("provider", fmt.Sprintf("%q is not a supported provider", id)))
	}
	return d, nil
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs returns registered provider ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// OfKind returns the descriptors of the given kind in registration order.
func (r *Registry) OfKind(kind Kind) []Descriptor {
	var out []Descriptor
	for _, id := range r.order {
		if d := r.byID[id]; d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
