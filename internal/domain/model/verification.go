package model

// Verification is the outcome of a live credential check against the
// provider's API.
type Verification struct {
	Valid bool
	// Identity is the account or organization the credential authenticates
	// as, when the provider exposes one.
	Identity string
	// Scopes lists permission scopes reported by the provider, if any.
	Scopes []string
	Detail string
}
