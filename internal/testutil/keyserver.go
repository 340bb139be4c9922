package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// KeyServer is an httptest server that mimics a Google public key
// endpoint. It serves a JSON object of key id to PEM and counts requests.
type KeyServer struct {
	*httptest.Server

	mu     sync.Mutex
	keys   map[string]string
	maxAge int
	status int
	body   string
	hits   atomic.Int64
}

// NewKeyServer starts a KeyServer serving keys. The server is closed on
// test cleanup.
func NewKeyServer(t testing.TB, keys map[string]string) *KeyServer {
	t.Helper()
	ks := &KeyServer{keys: keys, maxAge: -1, status: http.StatusOK}
	ks.Server = httptest.NewServer(http.HandlerFunc(ks.serve))
	t.Cleanup(ks.Close)
	return ks
}

func (ks *KeyServer) serve(w http.ResponseWriter, _ *http.Request) {
	ks.hits.Add(1)

	ks.mu.Lock()
	status, body, maxAge := ks.status, ks.body, ks.maxAge
	var payload []byte
	if body == "" {
		payload, _ = json.Marshal(ks.keys)
	} else {
		payload = []byte(body)
	}
	ks.mu.Unlock()

	if maxAge >= 0 {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d, must-revalidate, no-transform", maxAge))
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// SetKeys replaces the served key set.
func (ks *KeyServer) SetKeys(keys map[string]string) {
	ks.mu.Lock()
	ks.keys = keys
	ks.mu.Unlock()
}

// SetMaxAge makes responses carry Cache-Control max-age=seconds. A
// negative value removes the header.
func (ks *KeyServer) SetMaxAge(seconds int) {
	ks.mu.Lock()
	ks.maxAge = seconds
	ks.mu.Unlock()
}

// SetResponse overrides the status and raw body of every response. An
// empty body restores the JSON key set.
func (ks *KeyServer) SetResponse(status int, body string) {
	ks.mu.Lock()
	ks.status = status
	ks.body = body
	ks.mu.Unlock()
}

// Hits returns the number of requests served so far.
func (ks *KeyServer) Hits() int {
	return int(ks.hits.Load())
}
