package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/provider"
)

var (
	keyA        = strings.Repeat("a1", 32)
	keyB        = strings.Repeat("b2", 32)
	githubToken = "ghp_" + strings.Repeat("x", 36)
)

// vaultEnv points the CLI at a fresh database with keyA as the master key.
func vaultEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CREDVAULT_CONFIG", "")
	t.Setenv("CREDVAULT_SECRET_KEY", keyA)
	t.Setenv("CREDVAULT_PREVIOUS_SECRET_KEY", "")
	t.Setenv("CREDVAULT_DB_PATH", filepath.Join(t.TempDir(), "vault.db"))
	t.Setenv("CREDVAULT_STORAGE_TIMEOUT", "")
	t.Setenv("CREDVAULT_USER", "alice")
	t.Setenv("CREDVAULT_LOG_LEVEL", "error")
	t.Setenv("CREDVAULT_GITLAB_BASE_URL", "")
	t.Setenv("CREDVAULT_ANTHROPIC_BASE_URL", "")
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_SetGetListDelete(t *testing.T) {
	vaultEnv(t)

	out, err := run(t, githubToken+"\n", "set", "github", "--scope", "project:api:staging")
	require.NoError(t, err)
	assert.NotContains(t, out, githubToken)

	out, err = run(t, "", "--json", "get", "github", "--scope", "project:api:staging")
	require.NoError(t, err)
	var got application.CredentialResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "github", got.Provider)
	assert.Equal(t, "project:api:staging", got.Scope)
	assert.True(t, got.Valid)
	assert.NotContains(t, out, githubToken)

	out, err = run(t, "", "--json", "list")
	require.NoError(t, err)
	var list application.CredentialListResult
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Credentials, 1)
	assert.Equal(t, "github", list.Credentials[0].Provider)

	_, err = run(t, "", "delete", "github", "--scope", "project:api:staging")
	require.NoError(t, err)

	_, err = run(t, "", "get", "github", "--scope", "project:api:staging")
	require.Error(t, err)
	assert.Contains(t, err.Error(), application.CodeNotFound)
}

func TestCLI_SetRejectsInvalidFormat(t *testing.T) {
	vaultEnv(t)

	_, err := run(t, "not-a-github-token\n", "set", "github")
	require.Error(t, err)
	assert.Contains(t, err.Error(), application.CodeValidation)
	assert.NotContains(t, err.Error(), "not-a-github-token")
}

func TestCLI_SetWithoutKey(t *testing.T) {
	vaultEnv(t)
	t.Setenv("CREDVAULT_SECRET_KEY", "")

	_, err := run(t, githubToken+"\n", "set", "github")
	require.ErrorIs(t, err, model.ErrEncryptionKeyNotSet)
}

func TestCLI_ValidateNeedsNoVault(t *testing.T) {
	out, err := run(t, githubToken+"\n", "validate", "github")
	require.NoError(t, err)
	assert.Contains(t, out, "Valid github credential format")

	out, err = run(t, "ghp_short\n", "validate", "github")
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid github credential")
}

func TestCLI_SetProjectAndClone(t *testing.T) {
	vaultEnv(t)

	_, err := run(t, githubToken+"\n", "set-project", "github", "api", "--env", "prod")
	require.NoError(t, err)

	out, err := run(t, "", "--json", "clone", "api", "api-v2")
	require.NoError(t, err)
	var res application.CloneProjectResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 1, res.Cloned)
	assert.Equal(t, 0, res.Failed)

	out, err = run(t, "", "--json", "projects")
	require.NoError(t, err)
	var projects application.ProjectsResult
	require.NoError(t, json.Unmarshal([]byte(out), &projects))
	require.Len(t, projects.Projects, 2)
}

func TestCLI_RotateKey(t *testing.T) {
	vaultEnv(t)

	_, err := run(t, githubToken+"\n", "set", "github")
	require.NoError(t, err)

	t.Setenv("CREDVAULT_SECRET_KEY", keyB)
	_, err = run(t, "", "get", "github")
	require.Error(t, err, "record sealed under the old key must not open with the new one")

	t.Setenv("CREDVAULT_PREVIOUS_SECRET_KEY", keyA)
	out, err := run(t, "", "--json", "rotate-key")
	require.NoError(t, err)
	var report application.RotationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Rotated)

	_, err = run(t, "", "get", "github")
	require.NoError(t, err)

	out, err = run(t, "", "--json", "rotate-key")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 0, report.Rotated)
	assert.Equal(t, 1, report.Skipped)
}

func TestCLI_ToolCall(t *testing.T) {
	vaultEnv(t)

	req := `{"tool":"set_credential","args":{"user_id":"bob","provider":"github","credential":"` + githubToken + `"}}`
	out, err := run(t, req, "tool")
	require.NoError(t, err)
	assert.NotContains(t, out, githubToken)

	var env struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &env))
	assert.True(t, env.Success)

	out, err = run(t, `{"tool":"no_such_tool"}`, "tool")
	require.NoError(t, err)
	assert.Contains(t, out, "unknown_tool")
}

func TestCLI_QuickSetup(t *testing.T) {
	out, err := run(t, "", "quick-setup", "fullstack", "shop")
	require.NoError(t, err)
	assert.Contains(t, out, "credvault set-project")

	_, err = run(t, "", "quick-setup", "astronaut", "shop")
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestSetupCommand(t *testing.T) {
	tests := []struct {
		scope string
		want  string
	}{
		{"", "credvault set github"},
		{"work", "credvault set github --scope work"},
		{"project:shop", "credvault set-project github shop"},
		{"project:shop:prod", "credvault set-project github shop --env prod"},
	}
	for _, tt := range tests {
		t.Run(tt.scope, func(t *testing.T) {
			assert.Equal(t, tt.want, setupCommand(application.SetupStep{Provider: "github", Scope: tt.scope}))
		})
	}
}

func TestMaskHeaders(t *testing.T) {
	headers := []provider.Header{
		{Name: "Authorization", Value: "Bearer " + githubToken},
		{Name: "x-api-key", Value: "sk-ant-" + strings.Repeat("k", 40)},
		{Name: "anthropic-version", Value: "2023-06-01"},
	}

	masked := maskHeaders(headers)

	assert.Equal(t, "Bearer ghp_...xxxx", masked[0].Value)
	assert.Equal(t, "sk-a...kkkk", masked[1].Value)
	assert.Equal(t, "2023-06-01", masked[2].Value)
	assert.Equal(t, "Bearer "+githubToken, headers[0].Value, "input must not be modified")
}
