package application

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/provider"
	"github.com/ericfisherdev/credvault/internal/domain/scope"
)

// ScopeSuggestion is one recommended credential placement.
type ScopeSuggestion struct {
	Provider string `json:"provider"`
	Scope    string `json:"scope"`
	Note     string `json:"note,omitempty"`
}

// Role is a common developer profile with a suggested credential layout.
type Role struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Providers   []string          `json:"providers"`
	Layout      []ScopeSuggestion `json:"layout"`
}

// ProviderInfo describes one registered provider to a user.
type ProviderInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	DocsURL    string `json:"docs_url"`
	TokenURL   string `json:"token_url"`
	EnvVar     string `json:"env_var,omitempty"`
	FormatHint string `json:"format_hint"`
}

// ProviderHelp is the help text for one provider.
type ProviderHelp struct {
	ProviderInfo
	Steps         []string `json:"steps"`
	ExampleScopes []string `json:"example_scopes"`
}

// SetupStep is one credential a quick-setup plan asks the user to store.
type SetupStep struct {
	Tool     string `json:"tool"`
	Provider string `json:"provider"`
	Scope    string `json:"scope"`
	EnvVar   string `json:"env_var,omitempty"`
	TokenURL string `json:"token_url"`
	Hint     string `json:"hint"`
}

// roleTemplates list provider ids that may or may not be registered; the
// catalog drops the ones the registry does not know.
var roleTemplates = []Role{
	{
		ID:          "fullstack",
		Name:        "Full-stack developer",
		Description: "Source hosting for every project plus an AI key per deployed environment.",
		Providers:   []string{"github", "openai", "anthropic"},
		Layout: []ScopeSuggestion{
			{Provider: "github", Scope: "", Note: "personal token for everyday work"},
			{Provider: "openai", Scope: "project:{project}", Note: "development key"},
			{Provider: "openai", Scope: "project:{project}:production", Note: "restricted production key"},
			{Provider: "anthropic", Scope: "project:{project}"},
		},
	},
	{
		ID:          "ml-engineer",
		Name:        "ML engineer",
		Description: "Several model APIs, kept apart per experiment project.",
		Providers:   []string{"openai", "anthropic", "google", "github"},
		Layout: []ScopeSuggestion{
			{Provider: "openai", Scope: "project:{project}"},
			{Provider: "anthropic", Scope: "project:{project}"},
			{Provider: "google", Scope: "project:{project}"},
			{Provider: "github", Scope: "research", Note: "named scope for the research organisation"},
		},
	},
	{
		ID:          "devops",
		Name:        "DevOps engineer",
		Description: "Automation tokens for every hosting service, one per environment.",
		Providers:   []string{"github", "gitlab", "bitbucket"},
		Layout: []ScopeSuggestion{
			{Provider: "github", Scope: "project:{project}:staging", Note: "fine-grained token limited to staging repos"},
			{Provider: "github", Scope: "project:{project}:production"},
			{Provider: "gitlab", Scope: "project:{project}"},
			{Provider: "bitbucket", Scope: "work"},
		},
	},
	{
		ID:          "open-source",
		Name:        "Open-source maintainer",
		Description: "Separate personal and organisation tokens across hosting services.",
		Providers:   []string{"github", "gitlab"},
		Layout: []ScopeSuggestion{
			{Provider: "github", Scope: ""},
			{Provider: "github", Scope: "org", Note: "token with organisation admin rights"},
			{Provider: "gitlab", Scope: ""},
		},
	},
}

// Catalog renders help and recommendations from the live registry so it
// never mentions a provider that is not registered.
type Catalog struct {
	registry *provider.Registry
	roles    []Role
}

// NewCatalog builds a catalog filtered against registry.
func NewCatalog(registry *provider.Registry) *Catalog {
	c := &Catalog{registry: registry}
	for _, tmpl := range roleTemplates {
		role := Role{ID: tmpl.ID, Name: tmpl.Name, Description: tmpl.Description}
		for _, id := range tmpl.Providers {
			if registry.Has(id) {
				role.Providers = append(role.Providers, id)
			}
		}
		for _, s := range tmpl.Layout {
			if registry.Has(s.Provider) {
				role.Layout = append(role.Layout, s)
			}
		}
		if len(role.Providers) > 0 {
			c.roles = append(c.roles, role)
		}
	}
	return c
}

// Providers describes every registered provider in registration order.
func (c *Catalog) Providers() []ProviderInfo {
	all := c.registry.All()
	out := make([]ProviderInfo, 0, len(all))
	for _, d := range all {
		out = append(out, infoOf(d))
	}
	return out
}

// Help returns setup instructions for one provider.
func (c *Catalog) Help(providerID string) (ProviderHelp, error) {
	d, err := c.registry.Get(providerID)
	if err != nil {
		return ProviderHelp{}, err
	}
	return ProviderHelp{
		ProviderInfo: infoOf(d),
		Steps: []string{
			fmt.Sprintf("Create a token at %s", d.TokenURL),
			fmt.Sprintf("Expected format: %s", d.Format.Hint),
			fmt.Sprintf("Store it with set_credential (provider %q) or set_project_credential for a project", d.ID),
			fmt.Sprintf("See %s for scopes and expiry", d.DocsURL),
		},
		ExampleScopes: []string{"", "work", "project:myapp", "project:myapp:production"},
	}, nil
}

// Roles returns every role with at least one registered provider.
func (c *Catalog) Roles() []Role {
	return slices.Clone(c.roles)
}

// Role looks a role up by id.
func (c *Catalog) Role(id string) (Role, error) {
	for _, r := range c.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return Role{}, model.NewValidationError("role", fmt.Sprintf("unknown role %q, must be one of %s", id, strings.Join(c.roleIDs(), ", ")))
}

// QuickSetup expands a role's layout into concrete steps for project.
func (c *Catalog) QuickSetup(roleID, project string) ([]SetupStep, error) {
	role, err := c.Role(roleID)
	if err != nil {
		return nil, err
	}
	if _, err := scope.Project(project, ""); err != nil {
		return nil, err
	}

	steps := make([]SetupStep, 0, len(role.Layout))
	for _, s := range role.Layout {
		d, err := c.registry.Get(s.Provider)
		if err != nil {
			return nil, err
		}

		step := SetupStep{
			Tool:     "set_credential",
			Provider: d.ID,
			Scope:    strings.ReplaceAll(s.Scope, "{project}", project),
			EnvVar:   d.EnvVar,
			TokenURL: d.TokenURL,
			Hint:     d.Format.Hint,
		}
		if strings.HasPrefix(step.Scope, "project:") {
			step.Tool = "set_project_credential"
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (c *Catalog) roleIDs() []string {
	ids := make([]string, 0, len(c.roles))
	for _, r := range c.roles {
		ids = append(ids, r.ID)
	}
	return ids
}

func infoOf(d provider.Descriptor) ProviderInfo {
	return ProviderInfo{
		ID:         d.ID,
		Name:       d.Name,
		Kind:       string(d.Kind),
		DocsURL:    d.DocsURL,
		TokenURL:   d.TokenURL,
		EnvVar:     d.EnvVar,
		FormatHint: d.Format.Hint,
	}
}

// ProviderArgs name one provider.
type ProviderArgs struct {
	Provider string `json:"provider"`
}

// RoleArgs name one role; empty lists every role.
type RoleArgs struct {
	Role string `json:"role,omitempty"`
}

// QuickSetupArgs are the flat arguments of quick_setup.
type QuickSetupArgs struct {
	Role    string `json:"role"`
	Project string `json:"project"`
}

// ProvidersResult is the payload of list_providers.
type ProvidersResult struct {
	Outcome
	Providers []ProviderInfo `json:"providers"`
}

// HelpResult is the payload of get_credential_help.
type HelpResult struct {
	Outcome
	Help *ProviderHelp `json:"help,omitempty"`
}

// RecommendationsResult is the payload of get_recommendations.
type RecommendationsResult struct {
	Outcome
	Roles []Role `json:"roles"`
}

// QuickSetupResult is the payload of quick_setup.
type QuickSetupResult struct {
	Outcome
	Role    string      `json:"role"`
	Project string      `json:"project"`
	Steps   []SetupStep `json:"steps"`
}

// ListProviders describes every registered provider.
func (c *CredentialController) ListProviders() *ProvidersResult {
	return &ProvidersResult{Outcome: ok(), Providers: c.catalog.Providers()}
}

// GetCredentialHelp returns setup instructions for a provider.
func (c *CredentialController) GetCredentialHelp(args ProviderArgs) *HelpResult {
	help, err := c.catalog.Help(args.Provider)
	if err != nil {
		return &HelpResult{Outcome: failed(CodeValidation, err.Error())}
	}
	return &HelpResult{Outcome: ok(), Help: &help}
}

// GetRecommendations returns suggested layouts for one role or all roles.
func (c *CredentialController) GetRecommendations(args RoleArgs) *RecommendationsResult {
	if args.Role == "" {
		return &RecommendationsResult{Outcome: ok(), Roles: c.catalog.Roles()}
	}
	role, err := c.catalog.Role(args.Role)
	if err != nil {
		return &RecommendationsResult{Outcome: failed(CodeValidation, err.Error()), Roles: []Role{}}
	}
	return &RecommendationsResult{Outcome: ok(), Roles: []Role{role}}
}

// QuickSetup returns the steps that set up a role's layout for a project.
// Nothing is stored.
func (c *CredentialController) QuickSetup(args QuickSetupArgs) *QuickSetupResult {
	steps, err := c.catalog.QuickSetup(args.Role, args.Project)
	if err != nil {
		return &QuickSetupResult{
			Outcome: failed(CodeValidation, err.Error()),
			Role:    args.Role,
			Project: args.Project,
			Steps:   []SetupStep{},
		}
	}
	return &QuickSetupResult{Outcome: ok(), Role: args.Role, Project: args.Project, Steps: steps}
}
