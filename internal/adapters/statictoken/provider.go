// Package statictoken maps bearer tokens to identities from a static table.
// It suits deployments where a fronting proxy already authenticates users
// and injects per-user service tokens.
package statictoken

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opswatch/alert-engine/internal/domain/auth"
	apperrors "github.com/opswatch/alert-engine/internal/errors"
)

// Provider resolves tokens against an in-memory table.
type Provider struct {
	identities map[string]auth.Identity
}

// New creates a Provider from a token → identity table.
func New(identities map[string]auth.Identity) *Provider {
	table := make(map[string]auth.Identity, len(identities))
	for token, identity := range identities {
		table[token] = identity
	}
	return &Provider{identities: table}
}

// NewFromJSON creates a Provider from a JSON object of the form
// {"token": {"user_id": "...", "role": "...", "assigned_site_ids": [...]}}.
func NewFromJSON(raw string) (*Provider, error) {
	if raw == "" {
		return New(nil), nil
	}
	var table map[string]auth.Identity
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return nil, fmt.Errorf("parse identity table: %w", err)
	}
	return New(table), nil
}

// IdentityFromToken resolves the token or fails with a validation error.
func (p *Provider) IdentityFromToken(_ context.Context, token string) (auth.Identity, error) {
	identity, ok := p.identities[token]
	if !ok || !identity.Valid() {
		return auth.Identity{}, apperrors.Validation("unknown token")
	}
	return identity, nil
}
