package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
	"github.com/ericfisherdev/credvault/internal/domain/provider"
	"github.com/ericfisherdev/credvault/internal/domain/scope"
)

// Result codes for negative outcomes reported in a result rather than as an
// error.
const (
	CodeValidation          = "validation_error"
	CodeNotFound            = "not_found"
	CodeClonePartial        = "clone_partial"
	CodeVerifyUnsupported   = "verification_unsupported"
	CodeVerificationFailure = "verification_failed"
)

// ResultError describes an expected negative outcome. Messages never contain
// credential material.
type ResultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Outcome is embedded in every controller result. It is carried by the
// dispatch envelope rather than serialized with the payload.
type Outcome struct {
	Success bool         `json:"-"`
	Error   *ResultError `json:"-"`
}

// Status returns the outcome itself; every result exposes it through
// embedding.
func (o Outcome) Status() Outcome { return o }

func ok() Outcome { return Outcome{Success: true} }

func failed(code, message string) Outcome {
	return Outcome{Error: &ResultError{Code: code, Message: message}}
}

// SetCredentialArgs are the flat arguments of set_credential.
type SetCredentialArgs struct {
	UserID     string            `json:"user_id"`
	Provider   string            `json:"provider"`
	Scope      string            `json:"scope,omitempty"`
	Credential string            `json:"credential"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SetProjectCredentialArgs are the flat arguments of set_project_credential.
type SetProjectCredentialArgs struct {
	UserID      string `json:"user_id"`
	Provider    string `json:"provider"`
	Project     string `json:"project"`
	Environment string `json:"environment,omitempty"`
	Credential  string `json:"credential"`
}

// CredentialRefArgs address one stored credential.
type CredentialRefArgs struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	Scope    string `json:"scope,omitempty"`
}

// ValidateCredentialArgs are the flat arguments of validate_credential.
type ValidateCredentialArgs struct {
	Provider   string `json:"provider"`
	Credential string `json:"credential"`
}

// UserArgs carry only the user id.
type UserArgs struct {
	UserID string `json:"user_id"`
}

// CloneProjectArgs are the flat arguments of clone_project.
type CloneProjectArgs struct {
	UserID        string `json:"user_id"`
	SourceProject string `json:"source_project"`
	TargetProject string `json:"target_project"`
}

// CredentialResult is the payload of set, get and delete operations.
type CredentialResult struct {
	Outcome
	Provider  string            `json:"provider,omitempty"`
	Scope     string            `json:"scope"`
	ScopeKind string            `json:"scope_kind,omitempty"`
	Masked    string            `json:"masked_credential,omitempty"`
	Valid     bool              `json:"valid"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

// ValidationResult is the payload of validate_credential.
type ValidationResult struct {
	Outcome
	Provider string `json:"provider"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

// CredentialListEntry is one row of list_credentials.
type CredentialListEntry struct {
	Provider  string            `json:"provider"`
	Scope     string            `json:"scope"`
	ScopeKind string            `json:"scope_kind"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
}

// CredentialListResult is the payload of list_credentials.
type CredentialListResult struct {
	Outcome
	Credentials []CredentialListEntry `json:"credentials"`
}

// ProjectEntry is one row of list_projects.
type ProjectEntry struct {
	Name            string   `json:"name"`
	CredentialCount int      `json:"credential_count"`
	Providers       []string `json:"providers"`
	Environments    []string `json:"environments"`
}

// ProjectsResult is the payload of list_projects.
type ProjectsResult struct {
	Outcome
	Projects []ProjectEntry `json:"projects"`
}

// CloneItemEntry is the per-record outcome of clone_project.
type CloneItemEntry struct {
	Provider    string `json:"provider"`
	Environment string `json:"environment"`
	Cloned      bool   `json:"cloned"`
	Overwritten bool   `json:"overwritten"`
	Error       string `json:"error,omitempty"`
}

// CloneProjectResult is the payload of clone_project.
type CloneProjectResult struct {
	Outcome
	OperationID   string           `json:"operation_id,omitempty"`
	SourceProject string           `json:"source_project"`
	TargetProject string           `json:"target_project"`
	Cloned        int              `json:"cloned"`
	Failed        int              `json:"failed"`
	Overwritten   int              `json:"overwritten"`
	Warning       string           `json:"warning,omitempty"`
	Message       string           `json:"message,omitempty"`
	Items         []CloneItemEntry `json:"items"`
}

// VerificationResult is the payload of verify_credential.
type VerificationResult struct {
	Outcome
	Provider string   `json:"provider"`
	Scope    string   `json:"scope"`
	Masked   string   `json:"masked_credential,omitempty"`
	Verified bool     `json:"verified"`
	Identity string   `json:"identity,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// CredentialController is the facade the tool-dispatch layer calls. It
// validates flat arguments, delegates to the CredentialManager and returns
// results that only ever contain masked credentials.
//
// Validation failures and missing records come back as results with
// Success false. Integrity and storage failures come back as errors so they
// can never be mistaken for "not found".
type CredentialController struct {
	manager   *CredentialManager
	catalog   *Catalog
	verifiers *VerifierSet
	logger    *slog.Logger
}

// NewCredentialController creates a controller over manager. Verifiers are
// keyed by the provider id they report.
func NewCredentialController(manager *CredentialManager, logger *slog.Logger, verifiers ...driven.CredentialVerifier) *CredentialController {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialController{
		manager:   manager,
		catalog:   NewCatalog(manager.Registry()),
		verifiers: NewVerifierSet(verifiers...),
		logger:    logger,
	}
}

// Verifiers returns the live verifier set.
func (c *CredentialController) Verifiers() *VerifierSet { return c.verifiers }

// Catalog returns the help and recommendation catalog.
func (c *CredentialController) Catalog() *Catalog { return c.catalog }

// SetCredential stores a credential at a personal, named or project scope.
func (c *CredentialController) SetCredential(ctx context.Context, args SetCredentialArgs) (*CredentialResult, error) {
	s, err := scope.Parse(args.Scope)
	if err != nil {
		return c.credentialFailure(args.Provider, args.Scope, err)
	}

	stored, err := c.manager.SetCredential(ctx, SetInput{
		UserID:   args.UserID,
		Provider: args.Provider,
		Scope:    s,
		Value:    args.Credential,
		Metadata: args.Metadata,
	})
	if err != nil {
		return c.credentialFailure(args.Provider, args.Scope, err)
	}
	return toCredentialResult(stored, true), nil
}

// SetProjectCredential stores a credential for a project environment. An
// empty environment means the default one.
func (c *CredentialController) SetProjectCredential(ctx context.Context, args SetProjectCredentialArgs) (*CredentialResult, error) {
	stored, err := c.manager.SetProjectCredential(ctx, args.Provider, args.Project, args.Credential, args.UserID, args.Environment)
	if err != nil {
		return c.credentialFailure(args.Provider, "project:"+args.Project, err)
	}
	return toCredentialResult(stored, true), nil
}

// GetCredential returns the masked credential stored at the given scope,
// together with whether it still passes the provider's format check.
func (c *CredentialController) GetCredential(ctx context.Context, args CredentialRefArgs) (*CredentialResult, error) {
	s, err := scope.Parse(args.Scope)
	if err != nil {
		return c.credentialFailure(args.Provider, args.Scope, err)
	}

	secret, err := c.manager.GetCredential(ctx, args.Provider, args.UserID, s)
	if err != nil {
		return c.credentialFailure(args.Provider, args.Scope, err)
	}

	desc, err := c.manager.Registry().Get(secret.Provider)
	if err != nil {
		return nil, err
	}
	valid := desc.ValidateCredential(secret.Value).Valid
	return toCredentialResult(secret.StoredCredential, valid), nil
}

// DeleteCredential removes the credential stored at the given scope.
func (c *CredentialController) DeleteCredential(ctx context.Context, args CredentialRefArgs) (*CredentialResult, error) {
	s, err := scope.Parse(args.Scope)
	if err != nil {
		return c.credentialFailure(args.Provider, args.Scope, err)
	}

	if err := c.manager.DeleteCredential(ctx, args.Provider, args.UserID, s); err != nil {
		return c.credentialFailure(args.Provider, args.Scope, err)
	}
	return &CredentialResult{
		Outcome:   ok(),
		Provider:  args.Provider,
		Scope:     s.String(),
		ScopeKind: string(s.Kind),
	}, nil
}

// ValidateCredential checks the credential's format only. Nothing is stored
// and nothing touches the store.
func (c *CredentialController) ValidateCredential(args ValidateCredentialArgs) *ValidationResult {
	desc, err := c.manager.Registry().Get(args.Provider)
	if err != nil {
		return &ValidationResult{
			Outcome:  failed(CodeValidation, err.Error()),
			Provider: args.Provider,
		}
	}

	v := desc.ValidateCredential(args.Credential)
	return &ValidationResult{
		Outcome:  ok(),
		Provider: desc.ID,
		Valid:    v.Valid,
		Reason:   v.Reason,
	}
}

// GetAuthHeaders decrypts the credential and renders the provider's request
// headers. This is the only path that exposes plaintext, and it is meant for
// in-process callers only; the dispatch layer does not expose it.
func (c *CredentialController) GetAuthHeaders(ctx context.Context, args CredentialRefArgs) ([]provider.Header, error) {
	s, err := scope.Parse(args.Scope)
	if err != nil {
		return nil, err
	}

	secret, err := c.manager.GetCredential(ctx, args.Provider, args.UserID, s)
	if err != nil {
		return nil, err
	}

	desc, err := c.manager.Registry().Get(secret.Provider)
	if err != nil {
		return nil, err
	}
	return desc.AuthHeaders(secret.Value), nil
}

// ListCredentials returns metadata for every credential the user owns.
func (c *CredentialController) ListCredentials(ctx context.Context, args UserArgs) (*CredentialListResult, error) {
	entries, err := c.manager.ListCredentials(ctx, args.UserID)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return &CredentialListResult{Outcome: failed(CodeValidation, err.Error()), Credentials: []CredentialListEntry{}}, nil
		}
		return nil, err
	}

	out := make([]CredentialListEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, CredentialListEntry{
			Provider:  e.Provider,
			Scope:     e.Scope.String(),
			ScopeKind: string(e.Scope.Kind),
			Metadata:  e.Summary.Metadata,
			CreatedAt: formatTime(e.Summary.CreatedAt),
			UpdatedAt: formatTime(e.Summary.UpdatedAt),
		})
	}
	return &CredentialListResult{Outcome: ok(), Credentials: out}, nil
}

// ListProjects returns the user's projects with credential counts.
func (c *CredentialController) ListProjects(ctx context.Context, args UserArgs) (*ProjectsResult, error) {
	projects, err := c.manager.ListProjects(ctx, args.UserID)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return &ProjectsResult{Outcome: failed(CodeValidation, err.Error()), Projects: []ProjectEntry{}}, nil
		}
		return nil, err
	}

	out := make([]ProjectEntry, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectEntry{
			Name:            p.Name,
			CredentialCount: p.CredentialCount,
			Providers:       p.Providers,
			Environments:    p.Environments,
		})
	}
	return &ProjectsResult{Outcome: ok(), Projects: out}, nil
}

// CloneProject copies every credential of the source project to the target
// project. A partial failure is reported in the result with code
// clone_partial; every item says whether it was cloned.
func (c *CredentialController) CloneProject(ctx context.Context, args CloneProjectArgs) (*CloneProjectResult, error) {
	res, err := c.manager.CloneProject(ctx, args.SourceProject, args.TargetProject, args.UserID)

	var cloneErr *model.CloneError
	switch {
	case errors.As(err, &cloneErr):
		out := toCloneProjectResult(cloneErr.Result)
		out.Outcome = failed(CodeClonePartial, err.Error())
		return out, nil
	case errors.Is(err, model.ErrValidation):
		return &CloneProjectResult{
			Outcome:       failed(CodeValidation, err.Error()),
			SourceProject: args.SourceProject,
			TargetProject: args.TargetProject,
			Items:         []CloneItemEntry{},
		}, nil
	case err != nil:
		return nil, err
	}

	return toCloneProjectResult(res), nil
}

// VerifyCredential checks a stored credential against the provider's live
// API, when a verifier for the provider is configured.
func (c *CredentialController) VerifyCredential(ctx context.Context, args CredentialRefArgs) (*VerificationResult, error) {
	s, err := scope.Parse(args.Scope)
	if err != nil {
		return &VerificationResult{Outcome: failed(CodeValidation, err.Error()), Provider: args.Provider, Scope: args.Scope}, nil
	}

	verifier, found := c.verifiers.Get(args.Provider)
	if !found {
		if _, err := c.manager.Registry().Get(args.Provider); err != nil {
			return &VerificationResult{Outcome: failed(CodeValidation, err.Error()), Provider: args.Provider, Scope: s.String()}, nil
		}
		return &VerificationResult{
			Outcome:  failed(CodeVerifyUnsupported, fmt.Sprintf("live verification is not available for %q", args.Provider)),
			Provider: args.Provider,
			Scope:    s.String(),
		}, nil
	}

	secret, err := c.manager.GetCredential(ctx, args.Provider, args.UserID, s)
	if err != nil {
		if code, negative := negativeCode(err); negative {
			return &VerificationResult{Outcome: failed(code, err.Error()), Provider: args.Provider, Scope: s.String()}, nil
		}
		return nil, err
	}

	v, err := verifier.Verify(ctx, secret.Value)
	if err != nil {
		c.logger.Warn("credential verification failed",
			"user_id", args.UserID, "provider", args.Provider, "scope", s.String(), "error", err)
		return &VerificationResult{
			Outcome:  failed(CodeVerificationFailure, "provider could not be reached"),
			Provider: args.Provider,
			Scope:    s.String(),
			Masked:   secret.Masked,
		}, nil
	}

	return &VerificationResult{
		Outcome:  ok(),
		Provider: args.Provider,
		Scope:    s.String(),
		Masked:   secret.Masked,
		Verified: v.Valid,
		Identity: v.Identity,
		Scopes:   v.Scopes,
		Detail:   v.Detail,
	}, nil
}

// credentialFailure turns validation and not-found errors into a negative
// result and passes every other error through.
func (c *CredentialController) credentialFailure(providerID, rawScope string, err error) (*CredentialResult, error) {
	code, negative := negativeCode(err)
	if !negative {
		return nil, err
	}
	c.logger.Debug("credential request rejected", "provider", providerID, "scope", rawScope, "code", code)
	return &CredentialResult{
		Outcome:  failed(code, err.Error()),
		Provider: providerID,
		Scope:    rawScope,
	}, nil
}

func negativeCode(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return CodeValidation, true
	case errors.Is(err, model.ErrNotFound):
		return CodeNotFound, true
	default:
		return "", false
	}
}

func toCredentialResult(s StoredCredential, valid bool) *CredentialResult {
	return &CredentialResult{
		Outcome:   ok(),
		Provider:  s.Provider,
		Scope:     s.Scope.String(),
		ScopeKind: string(s.Scope.Kind),
		Masked:    s.Masked,
		Valid:     valid,
		Metadata:  s.Metadata,
		CreatedAt: formatTime(s.CreatedAt),
		UpdatedAt: formatTime(s.UpdatedAt),
	}
}

func toCloneProjectResult(r *model.CloneResult) *CloneProjectResult {
	out := &CloneProjectResult{
		Outcome:       ok(),
		OperationID:   r.OperationID,
		SourceProject: r.SourceProject,
		TargetProject: r.TargetProject,
		Cloned:        r.Cloned(),
		Failed:        r.Failed(),
		Overwritten:   r.Overwritten(),
		Items:         make([]CloneItemEntry, 0, len(r.Items)),
	}

	for _, item := range r.Items {
		entry := CloneItemEntry{
			Provider:    item.Provider,
			Environment: item.Environment,
			Cloned:      item.Succeeded(),
			Overwritten: item.Overwritten,
		}
		if item.Err != nil {
			entry.Error = item.Err.Error()
		}
		out.Items = append(out.Items, entry)
	}

	if len(r.Items) == 0 {
		out.Message = fmt.Sprintf("project %q has no credentials; nothing was cloned", r.SourceProject)
	}
	if n := out.Overwritten; n > 0 {
		out.Warning = fmt.Sprintf("%d existing credential(s) in project %q were overwritten", n, r.TargetProject)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
