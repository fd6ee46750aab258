package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/clinchain/backend/repository/models"
)

// ErrMissingCredential is returned when a role has no configured signing key.
var ErrMissingCredential = errors.New("missing ledger credential")

// CredentialResolver maps actor roles to their ledger signing identities. The
// key set is an injected read-only configuration object; keys are parsed once
// at construction so a malformed key fails at startup rather than mid-request.
type CredentialResolver struct {
	identities map[models.Role]*SigningIdentity
}

// NewCredentialResolver builds a resolver from role -> hex private key. Blank
// entries are dropped, so resolving such a role fails closed.
func NewCredentialResolver(keys map[models.Role]string) (*CredentialResolver, error) {
	identities := make(map[models.Role]*SigningIdentity, len(keys))
	for role, key := range keys {
		if strings.TrimSpace(key) == "" {
			continue
		}
		identity, err := NewSigningIdentity(key)
		if err != nil {
			return nil, fmt.Errorf("signing key for role %s: %w", role, err)
		}
		identities[role] = identity
	}
	return &CredentialResolver{identities: identities}, nil
}

// Resolve returns the signing identity for a role, or ErrMissingCredential.
func (r *CredentialResolver) Resolve(role models.Role) (*SigningIdentity, error) {
	identity, ok := r.identities[role]
	if !ok {
		return nil, fmt.Errorf("%w: role %s", ErrMissingCredential, role)
	}
	return identity, nil
}
