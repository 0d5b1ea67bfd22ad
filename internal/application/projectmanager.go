package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
	"github.com/ericfisherdev/credvault/internal/domain/provider"
	"github.com/ericfisherdev/credvault/internal/domain/scope"
)

// Write sources recorded in credential metadata.
const (
	SourceDirect  = "direct"
	SourceProject = "project"
	SourceClone   = "clone"
)

// StoredCredential describes a credential after a successful write. It
// carries only the masked form of the value.
type StoredCredential struct {
	Provider   string
	Scope      scope.Scope
	StorageKey string
	Masked     string
	Metadata   map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Secret is a decrypted credential. It must not outlive the request that
// asked for it.
type Secret struct {
	StoredCredential
	Value string
}

// CredentialEntry is one row of a user's credential listing.
type CredentialEntry struct {
	Provider string
	Scope    scope.Scope
	Summary  model.CredentialSummary
}

// SetInput is the argument set of CredentialManager.SetCredential.
type SetInput struct {
	UserID   string
	Provider string
	Scope    scope.Scope
	Value    string
	Metadata map[string]string
	Source   string
}

// CredentialManager layers the scope taxonomy over the store and cipher:
// every write is validated, sealed under the derived storage key and
// upserted; every read is fetched, opened and returned to the in-process
// caller. It holds no locks and caches nothing.
type CredentialManager struct {
	store    driven.CredentialStore
	cipher   driven.Cipher
	registry *provider.Registry
	logger   *slog.Logger
}

// NewCredentialManager creates a CredentialManager. A nil registry uses the
// built-in provider set; a nil logger uses slog.Default().
func NewCredentialManager(store driven.CredentialStore, cipher driven.Cipher, registry *provider.Registry, logger *slog.Logger) *CredentialManager {
	if registry == nil {
		registry = provider.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialManager{
		store:    store,
		cipher:   cipher,
		registry: registry,
		logger:   logger,
	}
}

// Registry returns the provider registry the manager validates against.
func (m *CredentialManager) Registry() *provider.Registry { return m.registry }

// SetCredential validates, seals and upserts a credential at the given scope.
// A value that fails the provider's format check is rejected before
// anything is encrypted or written.
func (m *CredentialManager) SetCredential(ctx context.Context, in SetInput) (StoredCredential, error) {
	desc, err := m.registry.Get(in.Provider)
	if err != nil {
		return StoredCredential{}, err
	}
	if v := desc.ValidateCredential(in.Value); !v.Valid {
		return StoredCredential{}, model.NewValidationError("credential", v.Reason)
	}

	if in.Scope.Kind == "" {
		in.Scope = scope.Personal()
	}
	key, err := scope.DeriveStorageKey(in.UserID, desc.ID, in.Scope)
	if err != nil {
		return StoredCredential{}, err
	}

	if m.cipher == nil {
		return StoredCredential{}, model.ErrEncryptionKeyNotSet
	}
	sealed, err := m.cipher.Seal([]byte(in.Value), []byte(key))
	if err != nil {
		return StoredCredential{}, fmt.Errorf("seal credential: %w", err)
	}

	source := in.Source
	if source == "" {
		source = SourceDirect
	}
	meta := maps.Clone(in.Metadata)
	if meta == nil {
		meta = make(map[string]string, 3)
	}
	meta[model.MetaProvider] = desc.ID
	meta[model.MetaScopeKind] = string(in.Scope.Kind)
	meta[model.MetaSource] = source

	row, err := m.store.Upsert(ctx, model.Credential{
		UserID:     in.UserID,
		StorageKey: key,
		Sealed:     sealed,
		Metadata:   meta,
	})
	if err != nil {
		return StoredCredential{}, err
	}

	m.logger.Info("credential stored",
		"user_id", in.UserID,
		"provider", desc.ID,
		"scope", in.Scope.String(),
		"source", source,
	)

	return StoredCredential{
		Provider:   desc.ID,
		Scope:      in.Scope,
		StorageKey: key,
		Masked:     provider.Mask(in.Value, 4),
		Metadata:   row.Metadata,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

// SetProjectCredential stores a credential under project:<project> or, for a
// non-default environment, project:<project>:<environment>.
func (m *CredentialManager) SetProjectCredential(ctx context.Context, providerID, project, value, userID, environment string) (StoredCredential, error) {
	s, err := scope.Project(project, environment)
	if err != nil {
		return StoredCredential{}, err
	}
	return m.SetCredential(ctx, SetInput{
		UserID:   userID,
		Provider: providerID,
		Scope:    s,
		Value:    value,
		Source:   SourceProject,
	})
}

// GetCredential fetches and decrypts the credential at (user, provider,
// scope). A missing record returns model.ErrNotFound; a record that fails
// authentication returns an error matching model.ErrIntegrity.
func (m *CredentialManager) GetCredential(ctx context.Context, providerID, userID string, s scope.Scope) (*Secret, error) {
	desc, err := m.registry.Get(providerID)
	if err != nil {
		return nil, err
	}
	key, err := scope.DeriveStorageKey(userID, desc.ID, s)
	if err != nil {
		return nil, err
	}

	row, err := m.store.Get(ctx, userID, key)
	if err != nil {
		return nil, err
	}

	plaintext, err := m.open(row)
	if err != nil {
		m.logger.Warn("credential failed integrity check",
			"user_id", userID,
			"provider", desc.ID,
			"scope", s.String(),
			"error", err,
		)
		return nil, err
	}
	value := string(plaintext)
	clear(plaintext)

	return &Secret{
		StoredCredential: StoredCredential{
			Provider:   desc.ID,
			Scope:      s,
			StorageKey: key,
			Masked:     provider.Mask(value, 4),
			Metadata:   row.Metadata,
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  row.UpdatedAt,
		},
		Value: value,
	}, nil
}

// DeleteCredential removes the credential at (user, provider, scope).
func (m *CredentialManager) DeleteCredential(ctx context.Context, providerID, userID string, s scope.Scope) error {
	desc, err := m.registry.Get(providerID)
	if err != nil {
		return err
	}
	key, err := scope.DeriveStorageKey(userID, desc.ID, s)
	if err != nil {
		return err
	}

	if err := m.store.Delete(ctx, userID, key); err != nil {
		return err
	}

	m.logger.Info("credential deleted", "user_id", userID, "provider", desc.ID, "scope", s.String())
	return nil
}

// ListCredentials returns metadata for every credential userID owns. Rows
// whose storage key cannot be parsed are skipped with a warning.
func (m *CredentialManager) ListCredentials(ctx context.Context, userID string) ([]CredentialEntry, error) {
	if err := scope.ValidateUserID(userID); err != nil {
		return nil, err
	}

	rows, err := m.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	entries := make([]CredentialEntry, 0, len(rows))
	for _, row := range rows {
		providerID, s, err := scope.SplitStorageKey(userID, row.StorageKey)
		if err != nil {
			m.logger.Warn("skipping credential with unparseable storage key",
				"user_id", userID, "storage_key", row.StorageKey, "error", err)
			continue
		}
		entries = append(entries, CredentialEntry{Provider: providerID, Scope: s, Summary: row})
	}
	return entries, nil
}

// ListProjects groups userID's project-scoped credentials by project name,
// folding every environment of a project into one summary.
func (m *CredentialManager) ListProjects(ctx context.Context, userID string) ([]model.ProjectSummary, error) {
	entries, err := m.ListCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*model.ProjectSummary)
	for _, e := range entries {
		if !e.Scope.IsProject() {
			continue
		}
		p, ok := byName[e.Scope.Project]
		if !ok {
			p = &model.ProjectSummary{Name: e.Scope.Project}
			byName[e.Scope.Project] = p
		}
		p.CredentialCount++
		if !slices.Contains(p.Providers, e.Provider) {
			p.Providers = append(p.Providers, e.Provider)
		}
		if env := e.Scope.EnvironmentName(); !slices.Contains(p.Environments, env) {
			p.Environments = append(p.Environments, env)
		}
	}

	out := make([]model.ProjectSummary, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		p := byName[name]
		slices.Sort(p.Providers)
		slices.Sort(p.Environments)
		out = append(out, *p)
	}
	return out, nil
}

// CloneProject copies every credential under project:<source>, including all
// environment sub-scopes, to the equivalent scope under target. Each record
// is decrypted, re-sealed with a fresh nonce under its new storage key and
// upserted on its own; the source is never modified.
//
// Existing target credentials are overwritten and flagged in the result. If
// any record fails, the result is still returned together with a
// *model.CloneError.
func (m *CredentialManager) CloneProject(ctx context.Context, source, target, userID string) (*model.CloneResult, error) {
	if _, err := scope.Project(source, ""); err != nil {
		return nil, err
	}
	if _, err := scope.Project(target, ""); err != nil {
		return nil, err
	}
	if source == target {
		return nil, model.NewValidationError("target_project", "must differ from the source project")
	}

	entries, err := m.ListCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &model.CloneResult{
		OperationID:   uuid.NewString(),
		SourceProject: source,
		TargetProject: target,
		Items:         []model.CloneItem{},
	}

	for _, e := range entries {
		if !e.Scope.IsProject() || e.Scope.Project != source {
			continue
		}
		result.Items = append(result.Items, m.cloneOne(ctx, userID, e, target, result.OperationID))
	}

	logger := m.logger.With("operation_id", result.OperationID, "user_id", userID,
		"source_project", source, "target_project", target)

	if result.Failed() > 0 {
		logger.Warn("project clone partially failed",
			"cloned", result.Cloned(), "failed", result.Failed())
		return result, &model.CloneError{Result: result}
	}

	logger.Info("project cloned", "cloned", result.Cloned(), "overwritten", result.Overwritten())
	return result, nil
}

func (m *CredentialManager) cloneOne(ctx context.Context, userID string, e CredentialEntry, target, opID string) model.CloneItem {
	item := model.CloneItem{
		Provider:    e.Provider,
		Environment: e.Scope.EnvironmentName(),
		SourceKey:   e.Summary.StorageKey,
	}

	dst, err := e.Scope.WithProject(target)
	if err != nil {
		item.Err = err
		return item
	}
	item.TargetKey, err = scope.DeriveStorageKey(userID, e.Provider, dst)
	if err != nil {
		item.Err = err
		return item
	}

	row, err := m.store.Get(ctx, userID, e.Summary.StorageKey)
	if err != nil {
		item.Err = fmt.Errorf("read source: %w", err)
		return item
	}
	plaintext, err := m.open(row)
	if err != nil {
		item.Err = fmt.Errorf("open source: %w", err)
		return item
	}
	defer clear(plaintext)

	_, err = m.store.Get(ctx, userID, item.TargetKey)
	switch {
	case err == nil:
		item.Overwritten = true
	case !errors.Is(err, model.ErrNotFound):
		item.Err = fmt.Errorf("check target: %w", err)
		return item
	}

	sealed, err := m.cipher.Seal(plaintext, []byte(item.TargetKey))
	if err != nil {
		item.Err = fmt.Errorf("seal target: %w", err)
		return item
	}

	meta := maps.Clone(row.Metadata)
	if meta == nil {
		meta = make(map[string]string, 4)
	}
	meta[model.MetaSource] = SourceClone
	meta[model.MetaClonedFrom] = e.Scope.Project
	meta["clone_operation_id"] = opID

	if _, err := m.store.Upsert(ctx, model.Credential{
		UserID:     userID,
		StorageKey: item.TargetKey,
		Sealed:     sealed,
		Metadata:   meta,
	}); err != nil {
		item.Err = fmt.Errorf("write target: %w", err)
	}
	return item
}

// open decrypts row, binding the storage key as associated data.
func (m *CredentialManager) open(row model.Credential) ([]byte, error) {
	if m.cipher == nil {
		return nil, model.ErrEncryptionKeyNotSet
	}
	plaintext, err := m.cipher.Open(row.Sealed, []byte(row.StorageKey))
	if err != nil {
		var ie *model.IntegrityError
		if errors.As(err, &ie) && ie.StorageKey == "" {
			ie.StorageKey = row.StorageKey
		}
		return nil, err
	}
	return plaintext, nil
}
