package application

import (
	"maps"
	"slices"
	"sync"

	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// VerifierSet holds the live credential verifiers keyed by provider id. It
// allows a verifier to be replaced at runtime, for example after the
// operator points it at a different API base URL.
type VerifierSet struct {
	mu         sync.RWMutex
	byProvider map[string]driven.CredentialVerifier
}

// NewVerifierSet creates a set holding verifiers. A later verifier for the
// same provider replaces an earlier one.
func NewVerifierSet(verifiers ...driven.CredentialVerifier) *VerifierSet {
	s := &VerifierSet{byProvider: make(map[string]driven.CredentialVerifier, len(verifiers))}
	for _, v := range verifiers {
		if v != nil {
			s.byProvider[v.Provider()] = v
		}
	}
	return s
}

// Get returns the verifier for providerID, if one is registered.
func (s *VerifierSet) Get(providerID string) (driven.CredentialVerifier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byProvider[providerID]
	return v, ok
}

// Replace installs v for the provider it reports, replacing any previous
// verifier.
func (s *VerifierSet) Replace(v driven.CredentialVerifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byProvider[v.Provider()] = v
}

// Providers returns the ids that have a verifier, sorted.
func (s *VerifierSet) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.byProvider))
}
