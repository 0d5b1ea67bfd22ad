package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

func TestParse_Grammar(t *testing.T) {
	tests := []struct {
		raw  string
		want Scope
	}{
		{"", Scope{Kind: KindPersonal}},
		{"work", Scope{Kind: KindNamed, Name: "work"}},
		{"project:myapp", Scope{Kind: KindProject, Project: "myapp"}},
		{"project:myapp:staging", Scope{Kind: KindProjectEnvironment, Project: "myapp", Environment: "staging"}},
		{"project:myapp:default", Scope{Kind: KindProject, Project: "myapp"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_RejectsForgedScopes(t *testing.T) {
	for _, raw := range []string{
		"work:extra",
		"project",
		"project:",
		"project::dev",
		"project:a:b:c",
		"project:my app",
		"team/work",
		":",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestScope_StringRoundTrip(t *testing.T) {
	for _, raw := range []string{"", "work", "project:myapp", "project:myapp:dev"} {
		s, err := Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, s.String())
	}
}

func TestScope_EnvironmentName(t *testing.T) {
	p, err := Project("myapp", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultEnvironment, p.EnvironmentName())

	pe, err := Project("myapp", "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", pe.EnvironmentName())

	assert.Equal(t, "", Personal().EnvironmentName())
}

func TestScope_WithProject(t *testing.T) {
	src, err := Parse("project:alpha:staging")
	require.NoError(t, err)

	dst, err := src.WithProject("beta")
	require.NoError(t, err)
	assert.Equal(t, "project:beta:staging", dst.String())

	_, err = Personal().WithProject("beta")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDeriveStorageKey(t *testing.T) {
	named, _ := Named("work")
	project, _ := Project("myapp", "")
	projectEnv, _ := Project("myapp", "dev")

	tests := []struct {
		name  string
		scope Scope
		want  string
	}{
		{"personal", Personal(), "alice:github"},
		{"named", named, "alice:github:work"},
		{"project", project, "alice:github:project:myapp"},
		{"project env", projectEnv, "alice:github:project:myapp:dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveStorageKey("alice", "github", tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveStorageKey_Isolation(t *testing.T) {
	raws := []string{"", "work", "personal", "myapp", "project:myapp", "project:myapp:dev",
		"project:myapp:prod", "project:work", "project:dev"}
	providers := []string{"github", "gitlab", "openai"}

	seen := make(map[string]string)
	for _, p := range providers {
		for _, raw := range raws {
			s, err := Parse(raw)
			require.NoError(t, err)
			key, err := DeriveStorageKey("alice", p, s)
			require.NoError(t, err)

			pair := p + "|" + raw
			if prev, ok := seen[key]; ok {
				t.Fatalf("key %q shared by %q and %q", key, prev, pair)
			}
			seen[key] = pair
		}
	}
}

func TestDeriveStorageKey_RejectsBadIdentifiers(t *testing.T) {
	_, err := DeriveStorageKey("", "github", Personal())
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = DeriveStorageKey("ali:ce", "github", Personal())
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = DeriveStorageKey("alice", "git:hub", Personal())
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestSplitStorageKey(t *testing.T) {
	provider, s, err := SplitStorageKey("alice", "alice:github:project:myapp:dev")
	require.NoError(t, err)
	assert.Equal(t, "github", provider)
	assert.Equal(t, KindProjectEnvironment, s.Kind)
	assert.Equal(t, "myapp", s.Project)
	assert.Equal(t, "dev", s.Environment)

	provider, s, err = SplitStorageKey("alice", "alice:openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, KindPersonal, s.Kind)

	_, _, err = SplitStorageKey("alice", "bob:github")
	assert.ErrorIs(t, err, model.ErrValidation)
}
