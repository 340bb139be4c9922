package validation

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
	"github.com/StricklySoft/firebase-jwt/pkg/keyset"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// signer is the only algorithm Firebase signs ID tokens, session cookies
// and custom tokens with.
var signer = jwt.SigningMethodRS256

// signedWith verifies against one known key, for callers that pinned it.
type signedWith struct {
	key keyset.Key
}

// SignedWith requires an RS256 signature that verifies with key.
//
// The alg header is checked first: a token claiming any other algorithm,
// including "none" and HS256, fails with "Token signer mismatch" before
// the key is used. A key whose contents are not an RSA public key or
// certificate fails with an errors.CodeKeySet error rather than a
// violation, since the fault lies with the key source.
func SignedWith(key keyset.Key) Constraint {
	return &signedWith{key: key}
}

// Name implements Constraint.
func (c *signedWith) Name() string { return "SignedWith" }

func (c *signedWith) Assert(_ context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	return verifySignature(c, p, c.key)
}

// signedWithOneInKeySet resolves the verification key from the token's
// kid header.
type signedWithOneInKeySet struct {
	keys keyset.KeySet
}

// SignedWithOneInKeySet resolves the kid header in keys and then checks
// the signature like SignedWith. It runs the only lookup that may touch
// the network, so it belongs at the end of a constraint list.
func SignedWithOneInKeySet(keys keyset.KeySet) Constraint {
	return &signedWithOneInKeySet{keys: keys}
}

// Name implements Constraint.
func (c *signedWithOneInKeySet) Name() string { return "SignedWithOneInKeySet" }

// Assert resolves the kid header before verifying. Key set failures other
// than an unknown id are returned unchanged.
func (c *signedWithOneInKeySet) Assert(ctx context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	raw, ok := p.Header("kid")
	if !ok {
		return violation(c, "`kid` header missing")
	}
	kid, _ := raw.(string)
	if kid == "" {
		return violation(c, "`kid` header must be a non-empty string")
	}

	key, err := c.keys.FindKeyByID(ctx, kid)
	if sserr.IsKeyNotFound(err) {
		v := violation(c, "Unknown key ID")
		v.Cause = err
		return v
	}
	if err != nil {
		return err
	}
	return verifySignature(c, p, key)
}

// verifySignature checks the algorithm, parses key and verifies the
// signature over the signing input. Violations are attributed to c.
func verifySignature(c Constraint, p *token.Plain, key keyset.Key) error {
	if p.Algorithm() != signer.Alg() {
		return violation(c, "Token signer mismatch")
	}
	pub, err := key.RSAPublicKey()
	if err != nil {
		e := sserr.KeySetf("key `%s` is not an RSA public key", key.ID())
		e.Cause = err
		return e
	}
	if err := signer.Verify(p.SigningInput(), p.Signature(), pub); err != nil {
		v := violation(c, "Token signature mismatch")
		v.Cause = err
		return v
	}
	return nil
}
