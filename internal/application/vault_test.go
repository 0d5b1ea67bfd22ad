package application_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credvault/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/credvault/internal/adapter/driven/memory"
	"github.com/ericfisherdev/credvault/internal/application"
	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

var (
	githubToken  = "ghp_" + strings.Repeat("a", 36)
	githubToken2 = "ghp_" + strings.Repeat("b", 36)
	openaiDev    = "sk-dev" + strings.Repeat("1", 30) + "wxyz"
	openaiStage  = "sk-stg" + strings.Repeat("2", 30) + "qrst"
	anthropicKey = "sk-ant-api03-" + strings.Repeat("k", 40)
)

func newCipher(t *testing.T, fill byte) *aesgcm.Cipher {
	t.Helper()
	key := make([]byte, aesgcm.KeySize)
	for i := range key {
		key[i] = fill
	}
	c, err := aesgcm.New(key)
	require.NoError(t, err)
	return c
}

type testVault struct {
	store   *memory.CredentialStore
	cipher  *aesgcm.Cipher
	manager *application.CredentialManager
	ctrl    *application.CredentialController
}

func newVault(t *testing.T, verifiers ...driven.CredentialVerifier) testVault {
	t.Helper()
	store := memory.NewCredentialStore()
	c := newCipher(t, 0x42)
	manager := application.NewCredentialManager(store, c, nil, nil)
	return testVault{
		store:   store,
		cipher:  c,
		manager: manager,
		ctrl:    application.NewCredentialController(manager, nil, verifiers...),
	}
}

type fakeVerifier struct {
	provider string
	result   model.Verification
	err      error
	got      string
}

func (f *fakeVerifier) Provider() string { return f.provider }

func (f *fakeVerifier) Verify(_ context.Context, credential string) (model.Verification, error) {
	f.got = credential
	return f.result, f.err
}
