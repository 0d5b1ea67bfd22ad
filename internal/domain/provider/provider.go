// Package provider holds the closed set of credential providers the vault
// understands. Each descriptor knows how to validate the structure of a
// credential, how to render it into request headers, and how to describe
// itself to users. Validation is purely structural and never contacts the
// remote service.
package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind groups providers by the service they authenticate against.
type Kind string

const (
	KindSourceHosting Kind = "source_hosting"
	KindAIAPI         Kind = "ai_api"
)

// MinCredentialLength is the floor applied to every provider's credential
// format.
const MinCredentialLength = 20

// RedactionMarker replaces secrets too short to mask partially.
const RedactionMarker = "***"

// Header is one rendered request header.
type Header struct {
	Name  string
	Value string
}

// Validation is the result of a structural credential check.
type Validation struct {
	Valid  bool
	Reason string
}

// Format describes the structural shape of a provider's credentials.
type Format struct {
	// Prefixes lists accepted token prefixes. Empty accepts any prefix.
	Prefixes []string
	// Excluded lists prefixes owned by another provider that would otherwise
	// satisfy Prefixes.
	Excluded []string
	// Pattern must match the full credential when set.
	Pattern *regexp.Regexp
	MinLen  int
	MaxLen  int
	// Hint is a human-readable description of the format.
	Hint string
}

// Descriptor is the static record of one supported provider.
type Descriptor struct {
	ID       string
	Name     string
	Kind     Kind
	DocsURL  string
	TokenURL string
	// EnvVar is the conventional environment variable for this credential.
	EnvVar string
	Format Format

	headers func(value string) []Header
}

// ValidateCredential checks raw against the provider's credential format.
// The reason never echoes the credential.
func (d Descriptor) ValidateCredential(raw string) Validation {
	if raw == "" {
		return Validation{Reason: "credential is empty"}
	}
	if strings.TrimSpace(raw) != raw {
		return Validation{Reason: "credential has leading or trailing whitespace"}
	}

	minLen := max(d.Format.MinLen, MinCredentialLength)
	if len(raw) < minLen {
		return Validation{Reason: fmt.Sprintf("credential is shorter than %d characters", minLen)}
	}
	if d.Format.MaxLen > 0 && len(raw) > d.Format.MaxLen {
		return Validation{Reason: fmt.Sprintf("credential is longer than %d characters", d.Format.MaxLen)}
	}

	if len(d.Format.Prefixes) > 0 && !hasAnyPrefix(raw, d.Format.Prefixes) {
		return Validation{Reason: fmt.Sprintf("%s credentials must start with %s",
			d.Name, strings.Join(d.Format.Prefixes, ", "))}
	}

	if hasAnyPrefix(raw, d.Format.Excluded) {
		return Validation{Reason: fmt.Sprintf("credential looks like it belongs to another provider, not %s", d.Name)}
	}

	if d.Format.Pattern != nil && !d.Format.Pattern.MatchString(raw) {
		return Validation{Reason: fmt.Sprintf("credential does not match the %s format: %s", d.Name, d.Format.Hint)}
	}

	return Validation{Valid: true}
}

// AuthHeaders renders the ordered request headers for an authenticated call.
func (d Descriptor) AuthHeaders(value string) []Header {
	if d.headers == nil {
		return []Header{{Name: "Authorization", Value: "Bearer " + value}}
	}
	return d.headers(value)
}

// MaskCredential redacts value for display. See Mask.
func (d Descriptor) MaskCredential(value string, visible int) string {
	return Mask(value, visible)
}

// Mask returns first(visible) + "..." + last(visible). Values of at most
// 2*visible characters, and any non-positive visible count, yield
// RedactionMarker so neither content nor length of short secrets leaks.
func Mask(value string, visible int) string {
	runes := []rune(value)
	if visible <= 0 || len(runes) <= 2*visible {
		return RedactionMarker
	}
	return string(runes[:visible]) + "..." + string(runes[len(runes)-visible:])
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
