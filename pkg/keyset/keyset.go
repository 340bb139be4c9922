// Package keyset resolves the public keys that sign Firebase ID tokens and
// session cookies.
//
// [GooglePublicKeys] fetches the JSON document of key id to PEM published
// at a Google certificate URL, remembers the entry for the requested id in
// a [cache.Store], and honors the Cache-Control max-age of the response.
// [Static] is a fixed in-memory key set for tests and pinned deployments.
//
// A lookup fails with an error carrying [sserr.CodeKeyNotFound] when the
// id is absent from an otherwise valid document, and with
// [sserr.CodeKeySet] when the document cannot be obtained or parsed.
package keyset

import (
	"context"
	"crypto/rsa"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	sserr "github.com/StricklySoft/firebase-jwt/pkg/errors"
)

// Well known key endpoints.
const (
	// CertURLIDToken serves the x509 certificates that sign ID tokens.
	CertURLIDToken = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"

	// CertURLSessionCookie serves the keys that sign session cookies.
	CertURLSessionCookie = "https://www.googleapis.com/identitytoolkit/v3/relyingparty/publicKeys"
)

// KeySet finds a public key by its key id.
type KeySet interface {
	FindKeyByID(ctx context.Context, id string) (Key, error)
}

// Key is a PEM encoded public key or x509 certificate.
type Key struct {
	id       string
	contents string
}

// NewKey returns a Key with the given id and PEM contents.
func NewKey(id, contents string) Key {
	return Key{id: id, contents: contents}
}

// ID returns the key id, matched against the kid header of a token.
func (k Key) ID() string { return k.id }

// Contents returns the PEM text.
func (k Key) Contents() string { return k.contents }

// RSAPublicKey decodes the PEM. Certificates, PKIX and PKCS#1 public keys
// are accepted.
func (k Key) RSAPublicKey() (*rsa.PublicKey, error) {
	return jwt.ParseRSAPublicKeyFromPEM([]byte(k.contents))
}

// Static is an in-memory KeySet that counts lookups.
type Static struct {
	mu    sync.RWMutex
	keys  map[string]string
	calls int
}

var _ KeySet = (*Static)(nil)

// NewStatic returns a Static serving keys (key id to PEM).
func NewStatic(keys map[string]string) *Static {
	s := &Static{keys: make(map[string]string, len(keys))}
	for id, pem := range keys {
		s.keys[id] = pem
	}
	return s
}

// FindKeyByID implements KeySet. Every call is counted, including
// lookups of unknown ids, which fail with errors.CodeKeyNotFound.
func (s *Static) FindKeyByID(_ context.Context, id string) (Key, error) {
	s.mu.Lock()
	s.calls++
	pem, ok := s.keys[id]
	s.mu.Unlock()
	if !ok {
		return Key{}, sserr.KeyNotFound(id)
	}
	return NewKey(id, pem), nil
}

// Set adds or replaces a key.
func (s *Static) Set(id, pem string) {
	s.mu.Lock()
	s.keys[id] = pem
	s.mu.Unlock()
}

// Calls returns how many lookups have been made.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}
