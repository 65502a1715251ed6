// Package auth authenticates administrative API keys and customer session
// tokens.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"

	"github.com/go-faster/errors"
)

// ScopeAdmin grants access to the back-office endpoints.
const ScopeAdmin = "admin"

var (
	// ErrKeyNotFound is returned by Repository.FindByHash for unknown or
	// revoked keys.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrUnauthorized is returned when credentials are missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when valid credentials lack a required scope.
	ErrForbidden = errors.New("forbidden")
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key was granted scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	return slices.Contains(k.Scopes, scope)
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of a raw API key under pepper. Only
// this hash is ever stored.
func HashKey(pepper []byte, rawKey string) string {
	return hex.EncodeToString(hashKey(pepper, rawKey))
}

func hashKey(pepper []byte, rawKey string) []byte {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(rawKey))
	return mac.Sum(nil)
}

// KeyAuthenticator validates raw API keys against the repository.
type KeyAuthenticator struct {
	apikeys Repository
	pepper  []byte
}

// NewKeyAuthenticator creates a KeyAuthenticator with the given API key
// repository and HMAC pepper.
func NewKeyAuthenticator(apikeys Repository, pepper []byte) *KeyAuthenticator {
	return &KeyAuthenticator{apikeys: apikeys, pepper: pepper}
}

// Authenticate hashes rawKey, looks it up and requires scope. It returns
// ErrUnauthorized for unknown keys and ErrForbidden when the scope is
// missing. Repository failures are returned wrapped.
func (a *KeyAuthenticator) Authenticate(ctx context.Context, rawKey, scope string) (*APIKeyInfo, error) {
	if rawKey == "" {
		return nil, ErrUnauthorized
	}

	hash := hashKey(a.pepper, rawKey)
	info, err := a.apikeys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find api key")
	}

	// The stored row must match what we computed.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}

	if scope != "" && !info.HasScope(scope) {
		return nil, ErrForbidden
	}
	return info, nil
}
