package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/provider"
)

func TestController_SetProjectThenGetMasked(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	set, err := v.ctrl.SetProjectCredential(ctx, application.SetProjectCredentialArgs{
		UserID: "alice", Provider: "github", Project: "myapp", Credential: githubToken,
	})
	require.NoError(t, err)
	require.True(t, set.Success)
	assert.Equal(t, "ghp_...aaaa", set.Masked)

	got, err := v.ctrl.GetCredential(ctx, application.CredentialRefArgs{
		UserID: "alice", Provider: "github", Scope: "project:myapp",
	})
	require.NoError(t, err)
	require.True(t, got.Success)
	assert.Nil(t, got.Error)
	assert.Equal(t, "ghp_...aaaa", got.Masked)
	assert.True(t, got.Valid)
	assert.Equal(t, "project:myapp", got.Scope)
	assert.Equal(t, "project", got.ScopeKind)
}

func TestController_EnvironmentMasksDiffer(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	for env, value := range map[string]string{"dev": openaiDev, "staging": openaiStage} {
		res, err := v.ctrl.SetProjectCredential(ctx, application.SetProjectCredentialArgs{
			UserID: "alice", Provider: "openai", Project: "myapp", Environment: env, Credential: value,
		})
		require.NoError(t, err)
		require.True(t, res.Success, env)
	}

	dev, err := v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "openai", Scope: "project:myapp:dev"})
	require.NoError(t, err)
	staging, err := v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "openai", Scope: "project:myapp:staging"})
	require.NoError(t, err)

	assert.Equal(t, "sk-d...wxyz", dev.Masked)
	assert.Equal(t, "sk-s...qrst", staging.Masked)
}

func TestController_ValidateDoesNotTouchStore(t *testing.T) {
	v := newVault(t)
	v.store.FailWith(errors.New("store must not be called"))

	res := v.ctrl.ValidateCredential(application.ValidateCredentialArgs{Provider: "openai", Credential: "invalid"})
	assert.True(t, res.Success)
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Reason)

	res = v.ctrl.ValidateCredential(application.ValidateCredentialArgs{Provider: "github", Credential: githubToken})
	assert.True(t, res.Valid)

	res = v.ctrl.ValidateCredential(application.ValidateCredentialArgs{Provider: "nope", Credential: githubToken})
	assert.False(t, res.Success)
	assert.Equal(t, application.CodeValidation, res.Error.Code)

	assert.Zero(t, v.store.Len())
}

func TestController_NegativeResults(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (*application.CredentialResult, error)
		code string
	}{
		{
			name: "missing credential",
			call: func() (*application.CredentialResult, error) {
				return v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github"})
			},
			code: application.CodeNotFound,
		},
		{
			name: "malformed scope",
			call: func() (*application.CredentialResult, error) {
				return v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github", Scope: "a:b"})
			},
			code: application.CodeValidation,
		},
		{
			name: "reserved named scope",
			call: func() (*application.CredentialResult, error) {
				return v.ctrl.SetCredential(ctx, application.SetCredentialArgs{UserID: "alice", Provider: "github", Scope: "project", Credential: githubToken})
			},
			code: application.CodeValidation,
		},
		{
			name: "bad credential format",
			call: func() (*application.CredentialResult, error) {
				return v.ctrl.SetCredential(ctx, application.SetCredentialArgs{UserID: "alice", Provider: "github", Credential: "ghp_short"})
			},
			code: application.CodeValidation,
		},
		{
			name: "delete missing",
			call: func() (*application.CredentialResult, error) {
				return v.ctrl.DeleteCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github", Scope: "work"})
			},
			code: application.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call()
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.False(t, res.Success)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.Empty(t, res.Masked)
		})
	}
}

func TestController_IntegrityAndStorageFailuresAreErrors(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	set, err := v.ctrl.SetCredential(ctx, application.SetCredentialArgs{UserID: "alice", Provider: "github", Credential: githubToken})
	require.NoError(t, err)
	require.True(t, set.Success)

	require.True(t, v.store.Tamper("alice", "alice:github", func(s *model.SealedValue) { s.IV[0] ^= 0x80 }))
	res, err := v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrIntegrity)

	v.store.FailWith(context.DeadlineExceeded)
	res, err = v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrStorageTimeout)

	list, err := v.ctrl.ListCredentials(ctx, application.UserArgs{UserID: "alice"})
	assert.Nil(t, list)
	assert.ErrorIs(t, err, model.ErrStorageTimeout)
}

func TestController_ResultsNeverContainPlaintext(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	set, err := v.ctrl.SetCredential(ctx, application.SetCredentialArgs{
		UserID: "alice", Provider: "anthropic", Scope: "project:myapp", Credential: anthropicKey,
	})
	require.NoError(t, err)
	got, err := v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "anthropic", Scope: "project:myapp"})
	require.NoError(t, err)
	list, err := v.ctrl.ListCredentials(ctx, application.UserArgs{UserID: "alice"})
	require.NoError(t, err)
	clone, err := v.ctrl.CloneProject(ctx, application.CloneProjectArgs{UserID: "alice", SourceProject: "myapp", TargetProject: "copy"})
	require.NoError(t, err)

	for _, res := range []any{set, got, list, clone} {
		data, err := json.Marshal(res)
		require.NoError(t, err)
		assert.NotContains(t, string(data), anthropicKey)
	}
}

func TestController_ListCredentialsAndProjects(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	_, err := v.ctrl.SetCredential(ctx, application.SetCredentialArgs{UserID: "alice", Provider: "github", Credential: githubToken})
	require.NoError(t, err)
	_, err = v.ctrl.SetProjectCredential(ctx, application.SetProjectCredentialArgs{
		UserID: "alice", Provider: "openai", Project: "myapp", Environment: "dev", Credential: openaiDev,
	})
	require.NoError(t, err)

	list, err := v.ctrl.ListCredentials(ctx, application.UserArgs{UserID: "alice"})
	require.NoError(t, err)
	require.True(t, list.Success)
	require.Len(t, list.Credentials, 2)
	assert.Equal(t, "personal", list.Credentials[0].ScopeKind)
	assert.Equal(t, "project:myapp:dev", list.Credentials[1].Scope)
	assert.NotEmpty(t, list.Credentials[1].CreatedAt)

	projects, err := v.ctrl.ListProjects(ctx, application.UserArgs{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, projects.Projects, 1)
	assert.Equal(t, "myapp", projects.Projects[0].Name)
	assert.Equal(t, []string{"dev"}, projects.Projects[0].Environments)

	bad, err := v.ctrl.ListProjects(ctx, application.UserArgs{UserID: ""})
	require.NoError(t, err)
	assert.False(t, bad.Success)
	assert.Equal(t, application.CodeValidation, bad.Error.Code)
}

func TestController_CloneProject(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	_, err := v.ctrl.SetProjectCredential(ctx, application.SetProjectCredentialArgs{
		UserID: "alice", Provider: "github", Project: "src", Credential: githubToken,
	})
	require.NoError(t, err)
	_, err = v.ctrl.SetProjectCredential(ctx, application.SetProjectCredentialArgs{
		UserID: "alice", Provider: "github", Project: "dst", Credential: githubToken2,
	})
	require.NoError(t, err)

	res, err := v.ctrl.CloneProject(ctx, application.CloneProjectArgs{UserID: "alice", SourceProject: "src", TargetProject: "dst"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Cloned)
	assert.Equal(t, 1, res.Overwritten)
	assert.Contains(t, res.Warning, "overwritten")
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].Cloned)
	assert.Equal(t, "default", res.Items[0].Environment)

	got, err := v.ctrl.GetCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github", Scope: "project:dst"})
	require.NoError(t, err)
	assert.Equal(t, "ghp_...aaaa", got.Masked)
}

func TestController_CloneEmptyAndInvalid(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	empty, err := v.ctrl.CloneProject(ctx, application.CloneProjectArgs{UserID: "alice", SourceProject: "ghost", TargetProject: "dst"})
	require.NoError(t, err)
	assert.True(t, empty.Success)
	assert.Zero(t, empty.Cloned)
	assert.NotEmpty(t, empty.Message)

	same, err := v.ctrl.CloneProject(ctx, application.CloneProjectArgs{UserID: "alice", SourceProject: "a", TargetProject: "a"})
	require.NoError(t, err)
	assert.False(t, same.Success)
	assert.Equal(t, application.CodeValidation, same.Error.Code)
}

func TestController_ClonePartialIsReportedAsResult(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	for env, value := range map[string]string{"dev": openaiDev, "staging": openaiStage} {
		_, err := v.ctrl.SetProjectCredential(ctx, application.SetProjectCredentialArgs{
			UserID: "alice", Provider: "openai", Project: "src", Environment: env, Credential: value,
		})
		require.NoError(t, err)
	}
	require.True(t, v.store.Tamper("alice", "alice:openai:project:src:dev", func(s *model.SealedValue) {
		s.Ciphertext[0] ^= 0x01
	}))

	res, err := v.ctrl.CloneProject(ctx, application.CloneProjectArgs{UserID: "alice", SourceProject: "src", TargetProject: "dst"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, application.CodeClonePartial, res.Error.Code)
	assert.Equal(t, 1, res.Cloned)
	assert.Equal(t, 1, res.Failed)

	byEnv := map[string]application.CloneItemEntry{}
	for _, item := range res.Items {
		byEnv[item.Environment] = item
	}
	assert.False(t, byEnv["dev"].Cloned)
	assert.NotEmpty(t, byEnv["dev"].Error)
	assert.True(t, byEnv["staging"].Cloned)
}

func TestController_GetAuthHeaders(t *testing.T) {
	v := newVault(t)
	ctx := context.Background()

	_, err := v.ctrl.SetCredential(ctx, application.SetCredentialArgs{UserID: "alice", Provider: "github", Scope: "work", Credential: githubToken})
	require.NoError(t, err)

	headers, err := v.ctrl.GetAuthHeaders(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github", Scope: "work"})
	require.NoError(t, err)
	require.NotEmpty(t, headers)
	assert.Equal(t, provider.Header{Name: "Authorization", Value: "Bearer " + githubToken}, headers[0])

	_, err = v.ctrl.GetAuthHeaders(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestController_VerifyCredential(t *testing.T) {
	verifier := &fakeVerifier{
		provider: "github",
		result:   model.Verification{Valid: true, Identity: "octocat", Scopes: []string{"repo"}},
	}
	v := newVault(t, verifier)
	ctx := context.Background()

	_, err := v.ctrl.SetCredential(ctx, application.SetCredentialArgs{UserID: "alice", Provider: "github", Credential: githubToken})
	require.NoError(t, err)

	res, err := v.ctrl.VerifyCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.True(t, res.Verified)
	assert.Equal(t, "octocat", res.Identity)
	assert.Equal(t, githubToken, verifier.got)
	assert.Equal(t, "ghp_...aaaa", res.Masked)

	verifier.err = errors.New("connection refused")
	res, err = v.ctrl.VerifyCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "github"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, application.CodeVerificationFailure, res.Error.Code)

	res, err = v.ctrl.VerifyCredential(ctx, application.CredentialRefArgs{UserID: "alice", Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, application.CodeVerifyUnsupported, res.Error.Code)

	res, err = v.ctrl.VerifyCredential(ctx, application.CredentialRefArgs{UserID: "bob", Provider: "github"})
	require.NoError(t, err)
	assert.Equal(t, application.CodeNotFound, res.Error.Code)
}
