// Package token is the parsed, unverified view of a compact RS256 JWT that
// the builder produces and the verifiers inspect.
//
// Parsing never checks the signature or any claim; that is the job of the
// validation package. Decode failures are golang-jwt errors returned as is,
// so callers can match them with errors.Is(err, jwt.ErrTokenMalformed).
package token

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---------------------------------------------------------------------------
// Token interface
// ---------------------------------------------------------------------------

// Token is an opaque JWT. Only *Plain exposes claims; constraint checks
// reject any other implementation.
type Token interface {
	// Headers returns a copy of the JOSE header.
	Headers() map[string]any

	// String returns the compact serialization.
	String() string
}

// ---------------------------------------------------------------------------
// Plain, the unverified view of a compact JWT
// ---------------------------------------------------------------------------

// Plain is a decoded, unencrypted JWT. It is immutable.
type Plain struct {
	raw          string
	headers      map[string]any
	claims       jwt.MapClaims
	signingInput string
	signature    []byte
}

var _ Token = (*Plain)(nil)

var parser = jwt.NewParser()

// Parse decodes raw without verifying it. It fails when raw does not have
// three segments, when a segment is not valid base64url or JSON, or when
// the alg header is missing or unknown.
func Parse(raw string) (*Plain, error) {
	tok, parts, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, err
	}
	sig, err := parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: could not base64 decode signature: %w", jwt.ErrTokenMalformed, err)
	}
	claims, _ := tok.Claims.(jwt.MapClaims)
	return &Plain{
		raw:          raw,
		headers:      tok.Header,
		claims:       claims,
		signingInput: parts[0] + "." + parts[1],
		signature:    sig,
	}, nil
}

// ---------------------------------------------------------------------------
// Raw parts
// ---------------------------------------------------------------------------

// String returns the compact serialization the token was parsed from.
func (p *Plain) String() string { return p.raw }

// Headers returns a copy of the JOSE header.
func (p *Plain) Headers() map[string]any { return maps.Clone(p.headers) }

// Header returns one header value.
func (p *Plain) Header(name string) (any, bool) {
	v, ok := p.headers[name]
	return v, ok
}

// Claims returns a copy of the claim set.
func (p *Plain) Claims() jwt.MapClaims { return maps.Clone(p.claims) }

// Claim returns one claim value as decoded from JSON: numbers are float64,
// objects are map[string]any.
func (p *Plain) Claim(name string) (any, bool) {
	v, ok := p.claims[name]
	return v, ok
}

// HasClaim reports whether the claim is present, even with a null value.
func (p *Plain) HasClaim(name string) bool {
	_, ok := p.claims[name]
	return ok
}

// SigningInput returns the first two segments joined by a dot, exactly as
// received. Signatures are checked over these bytes.
func (p *Plain) SigningInput() string { return p.signingInput }

// Signature returns the decoded third segment.
func (p *Plain) Signature() []byte { return slices.Clone(p.signature) }

// Algorithm returns the alg header, or "" if it is not a string.
func (p *Plain) Algorithm() string {
	alg, _ := p.headers["alg"].(string)
	return alg
}

// ---------------------------------------------------------------------------
// Registered claims
// ---------------------------------------------------------------------------

// Issuer returns the iss claim, or "" when it is absent or not a string.
func (p *Plain) Issuer() string {
	iss, _ := p.claims.GetIssuer()
	return iss
}

// Subject returns the sub claim, or "" when it is absent or not a string.
func (p *Plain) Subject() string {
	sub, _ := p.claims.GetSubject()
	return sub
}

// Audience returns the aud claim normalized to a slice.
func (p *Plain) Audience() []string {
	aud, _ := p.claims.GetAudience()
	return aud
}

// ExpiresAt returns exp, or the zero time when absent or malformed.
func (p *Plain) ExpiresAt() time.Time { return numericTime(p.claims.GetExpirationTime()) }

// IssuedAt returns iat, or the zero time when absent or malformed.
func (p *Plain) IssuedAt() time.Time { return numericTime(p.claims.GetIssuedAt()) }

// NotBefore returns nbf, or the zero time when absent or malformed.
func (p *Plain) NotBefore() time.Time { return numericTime(p.claims.GetNotBefore()) }

// ---------------------------------------------------------------------------
// Claim predicates
// ---------------------------------------------------------------------------

// IsPermittedFor reports whether audience appears in aud.
func (p *Plain) IsPermittedFor(audience string) bool {
	return slices.Contains(p.Audience(), audience)
}

// HasBeenIssuedBy reports whether iss equals one of issuers.
func (p *Plain) HasBeenIssuedBy(issuers ...string) bool {
	iss := p.Issuer()
	return iss != "" && slices.Contains(issuers, iss)
}

// IsRelatedTo reports whether sub equals subject.
func (p *Plain) IsRelatedTo(subject string) bool {
	return p.Subject() == subject
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// GoString keeps the signature and payload out of %#v output.
func (p *Plain) GoString() string {
	var b strings.Builder
	b.WriteString("token.Plain{alg: ")
	b.WriteString(p.Algorithm())
	if kid, ok := p.headers["kid"].(string); ok {
		b.WriteString(", kid: ")
		b.WriteString(kid)
	}
	b.WriteString("}")
	return b.String()
}

func numericTime(d *jwt.NumericDate, err error) time.Time {
	if err != nil || d == nil {
		return time.Time{}
	}
	return d.Time
}
