package validation

import (
	"context"

	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// hasTenant checks the tenant Firebase Authentication recorded for the
// user. Tokens of projects without multi-tenancy have no firebase.tenant.
type hasTenant struct {
	tenantID string
}

// HasTenant requires firebase.tenant to equal tenantID.
//
// The firebase claim must be a JSON object and its tenant member must be
// present; a tenant that is not a string never matches. Each of these
// cases is reported with its own message so callers can tell a token of
// another tenant from a token that carries no tenant at all.
func HasTenant(tenantID string) Constraint {
	return &hasTenant{tenantID: tenantID}
}

// Name implements Constraint.
func (c *hasTenant) Name() string { return "HasTenant" }

func (c *hasTenant) Assert(_ context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	raw, ok := p.Claim("firebase")
	if !ok {
		return violation(c, "`firebase` claim missing")
	}
	fb, ok := raw.(map[string]any)
	if !ok {
		return violation(c, "`firebase` claim is not an array/map")
	}
	tenant, ok := fb["tenant"]
	if !ok {
		return violation(c, "`firebase.tenant` claim missing")
	}
	if s, _ := tenant.(string); s != c.tenantID {
		return violation(c, "`firebase.tenant` claim does not match expected value")
	}
	return nil
}
