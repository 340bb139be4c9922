// Package customtoken builds the signed custom tokens a client exchanges
// for a Firebase ID token via signInWithCustomToken.
//
// A Builder is an immutable value. Every With/For method returns a new
// Builder and leaves the receiver untouched, so a base builder can be
// shared between goroutines and reused for many tokens.
//
// Example:
//
//	b := customtoken.New(sa.ClientEmail(), sa.PrivateKey(), clock.System())
//	tok, err := b.ForUser("some-uid").WithCustomClaim("admin", true).Token()
package customtoken

import (
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	"github.com/StricklySoft/firebase-jwt/pkg/credentials"
	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// Audience is the fixed aud of every custom token.
const Audience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"

// DefaultTTL is the lifetime of a token unless ExpiresAfter is used.
const DefaultTTL = 5 * time.Minute

// Claim names set by ForUser and ForTenant, and the claim that nests
// custom claims.
const (
	ClaimUID          = "uid"
	ClaimTenantID     = "tenant_id"
	ClaimCustomClaims = "claims"
)

// Builder accumulates the claims of a custom token.
type Builder struct {
	clientEmail  string
	privateKey   credentials.Secret
	clock        clock.Clock
	ttl          time.Duration
	claims       map[string]any
	customClaims map[string]any
}

// New returns a Builder that signs as clientEmail with privateKey, a PEM
// encoded RSA key. The key is only parsed when Token is called.
func New(clientEmail string, privateKey credentials.Secret, c clock.Clock) Builder {
	if c == nil {
		c = clock.System()
	}
	return Builder{
		clientEmail: clientEmail,
		privateKey:  privateKey,
		clock:       c,
		ttl:         DefaultTTL,
	}
}

// ForUser sets the uid claim.
func (b Builder) ForUser(uid string) Builder { return b.WithClaim(ClaimUID, uid) }

// RelatedToUser is an alias of ForUser.
func (b Builder) RelatedToUser(uid string) Builder { return b.ForUser(uid) }

// ForTenant sets the tenant_id claim.
func (b Builder) ForTenant(tenantID string) Builder { return b.WithClaim(ClaimTenantID, tenantID) }

// RelatedToTenant is an alias of ForTenant.
func (b Builder) RelatedToTenant(tenantID string) Builder { return b.ForTenant(tenantID) }

// WithClaim sets a top level claim. Claims set this way are written after
// the registered claims, so they can override iss, sub or exp.
func (b Builder) WithClaim(name string, value any) Builder {
	b.claims = with(b.claims, name, value)
	return b
}

// WithCustomClaim sets a claim nested under "claims", which Security
// Rules see as request.auth.token.claims.
func (b Builder) WithCustomClaim(name string, value any) Builder {
	b.customClaims = with(b.customClaims, name, value)
	return b
}

// WithCustomClaims sets several custom claims at once.
func (b Builder) WithCustomClaims(claims map[string]any) Builder {
	for name, value := range claims {
		b = b.WithCustomClaim(name, value)
	}
	return b
}

// ExpiresAfter sets the token lifetime.
func (b Builder) ExpiresAfter(ttl time.Duration) Builder {
	b.ttl = ttl
	return b
}

// TTL returns the configured lifetime.
func (b Builder) TTL() time.Duration { return b.ttl }

// Token signs the accumulated claims with RS256. The clock is read once,
// so iat, nbf and exp are coherent.
//
// A key that cannot be parsed or used fails with errors.CodeInternalSigning;
// the golang-jwt error is kept as the cause, so errors.Is against the
// jwt sentinels still works.
func (b Builder) Token() (*token.Plain, error) {
	if err := checkNames(b.claims, "claim"); err != nil {
		return nil, err
	}
	if err := checkNames(b.customClaims, "custom claim"); err != nil {
		return nil, err
	}

	now := b.clock.Now()
	claims := jwt.MapClaims{
		"iss": b.clientEmail,
		"sub": b.clientEmail,
		"aud": Audience,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(b.ttl).Unix(),
	}
	maps.Copy(claims, b.claims)
	if len(b.customClaims) > 0 {
		claims[ClaimCustomClaims] = maps.Clone(b.customClaims)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(b.privateKey.Value()))
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalSigning, "customtoken: the private key is not a PEM encoded RSA key")
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalSigning, "customtoken: signing failed")
	}
	return token.Parse(raw)
}

// with returns a copy of m with name set to value.
func with(m map[string]any, name string, value any) map[string]any {
	out := make(map[string]any, len(m)+1)
	maps.Copy(out, m)
	out[name] = value
	return out
}

func checkNames(m map[string]any, kind string) error {
	if _, ok := m[""]; ok {
		return sserr.Newf(sserr.CodeValidationRequired, "customtoken: %s name must not be empty", kind)
	}
	return nil
}
