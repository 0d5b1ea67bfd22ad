// Package scope parses credential scope strings and derives the storage keys
// that isolate credentials of the same user and provider from one another.
//
// Grammar (segments joined by ':'):
//
//	personal                 ""
//	named                    <name>
//	project                  project:<project>
//	project + environment    project:<project>:<environment>
//
// Every segment matches [A-Za-z0-9._-]{1,64}. The separator can never appear
// inside a segment, so a scope of one class cannot be forged from another.
package scope

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// Separator joins key and scope segments.
const Separator = ":"

// DefaultEnvironment is the environment addressed by a bare project scope.
const DefaultEnvironment = "default"

const projectPrefix = "project"

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Kind classifies a scope.
type Kind string

const (
	KindPersonal           Kind = "personal"
	KindNamed              Kind = "named"
	KindProject            Kind = "project"
	KindProjectEnvironment Kind = "project_environment"
)

// Scope is a parsed, validated credential scope. The zero value is the
// personal scope.
type Scope struct {
	Kind        Kind
	Name        string
	Project     string
	Environment string
}

// Personal returns the personal scope.
func Personal() Scope { return Scope{Kind: KindPersonal} }

// Named returns a validated named scope.
func Named(name string) (Scope, error) {
	if err := checkSegment("scope", name); err != nil {
		return Scope{}, err
	}
	if name == projectPrefix {
		return Scope{}, model.NewValidationError("scope", `"project" is reserved; use project:<name>`)
	}
	return Scope{Kind: KindNamed, Name: name}, nil
}

// Project returns a validated project scope for environment. An empty
// environment or DefaultEnvironment yields the bare project scope.
func Project(project, environment string) (Scope, error) {
	if err := checkSegment("project", project); err != nil {
		return Scope{}, err
	}
	if environment == "" || environment == DefaultEnvironment {
		return Scope{Kind: KindProject, Project: project}, nil
	}
	if err := checkSegment("environment", environment); err != nil {
		return Scope{}, err
	}
	return Scope{Kind: KindProjectEnvironment, Project: project, Environment: environment}, nil
}

// Parse validates a raw scope string. The empty string is the personal scope.
func Parse(raw string) (Scope, error) {
	if raw == "" {
		return Personal(), nil
	}

	parts := strings.Split(raw, Separator)
	switch {
	case len(parts) == 1:
		return Named(parts[0])
	case parts[0] != projectPrefix:
		return Scope{}, model.NewValidationError("scope",
			fmt.Sprintf("%q: only project scopes may contain %q", raw, Separator))
	case len(parts) == 2:
		return Project(parts[1], "")
	case len(parts) == 3:
		return Project(parts[1], parts[2])
	default:
		return Scope{}, model.NewValidationError("scope",
			fmt.Sprintf("%q: expected project:<project>[:<environment>]", raw))
	}
}

// String renders the canonical scope string accepted by Parse.
func (s Scope) String() string {
	switch s.Kind {
	case KindNamed:
		return s.Name
	case KindProject:
		return projectPrefix + Separator + s.Project
	case KindProjectEnvironment:
		return projectPrefix + Separator + s.Project + Separator + s.Environment
	default:
		return ""
	}
}

// IsProject reports whether the scope belongs to a project, with or without
// an environment.
func (s Scope) IsProject() bool {
	return s.Kind == KindProject || s.Kind == KindProjectEnvironment
}

// EnvironmentName returns the project environment, DefaultEnvironment for a
// bare project scope, and "" for non-project scopes.
func (s Scope) EnvironmentName() string {
	switch s.Kind {
	case KindProject:
		return DefaultEnvironment
	case KindProjectEnvironment:
		return s.Environment
	default:
		return ""
	}
}

// WithProject returns the same scope moved to another project. It is only
// meaningful for project scopes.
func (s Scope) WithProject(project string) (Scope, error) {
	if !s.IsProject() {
		return Scope{}, model.NewValidationError("scope", fmt.Sprintf("%q is not a project scope", s.String()))
	}
	return Project(project, s.Environment)
}

func checkSegment(field, value string) error {
	if value == "" {
		return model.NewValidationError(field, "must not be empty")
	}
	if !segmentPattern.MatchString(value) {
		return model.NewValidationError(field,
			fmt.Sprintf("%q must be 1-64 characters of letters, digits, '.', '_' or '-'", value))
	}
	return nil
}
