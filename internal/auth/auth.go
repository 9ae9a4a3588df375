// Package auth stores bearer credentials per (partition, scope) pair and
// acquires them from the platform's OIDC issuer. An expired credential is
// treated as absent: it is never attached to a request.
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gridbase/internal/cachescope"
)

// Key addresses one stored credential. The scope is zero-valued for the
// control partition.
type Key struct {
	Partition cachescope.Partition
	Scope     cachescope.Scope
}

// ControlKey addresses the control-plane credential.
func ControlKey() Key {
	return Key{Partition: cachescope.PartitionControl}
}

// TenantKey addresses one tenant's credential.
func TenantKey(scope cachescope.Scope) Key {
	return Key{Partition: cachescope.PartitionDashboard, Scope: scope}
}

// Credential is a bearer token with its expiry.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be sent. A zero expiry
// means the token carried no exp claim and is trusted until cleared.
func (c Credential) Valid(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// Store holds credentials per key. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	creds map[Key]Credential
	now   func() time.Time
}

// NewStore builds an empty credential store.
func NewStore() *Store {
	return &Store{creds: make(map[Key]Credential), now: time.Now}
}

// Put stores a credential, deriving its expiry from the token's exp claim
// when none was supplied.
func (s *Store) Put(key Key, cred Credential) {
	if cred.ExpiresAt.IsZero() {
		cred.ExpiresAt = TokenExpiry(cred.Token)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[key] = cred
}

// Bearer returns the token to attach for the key, or false when no
// non-expired credential exists.
func (s *Store) Bearer(key Key) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.creds[key]
	if !ok || !cred.Valid(s.now()) {
		return "", false
	}
	return cred.Token, true
}

// Lookup returns the stored credential regardless of expiry. Callers that
// only want a sendable token use Bearer.
func (s *Store) Lookup(key Key) (Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[key]
	return cred, ok
}

// Clear removes the credential for one key. Called when the platform rejects
// it as unauthorized.
func (s *Store) Clear(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, key)
}

// ClearAll removes every stored credential.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = make(map[Key]Credential)
}

// TokenExpiry extracts the exp claim from a JWT without verifying its
// signature. Expiry enforcement here is a client-side courtesy; the platform
// verifies tokens authoritatively. Returns the zero time when the token is
// not a JWT or carries no exp.
func TokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
