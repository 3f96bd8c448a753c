package core

import (
	"errors"
	"slices"
	"strings"
)

// Principal is the identity an authenticated session speaks for.
type Principal struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether role is assigned to the principal.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

var (
	// ErrInvalidCredentials is returned when username/password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPrincipalNotFound is returned for usernames the credential store does not know.
	ErrPrincipalNotFound = errors.New("principal not found")
)

// Authenticator turns a username/password pair into a Principal.
type Authenticator interface {
	Authenticate(username, password string) (Principal, error)
}

// StoreAuthenticator authenticates against a CredentialStore.
type StoreAuthenticator struct {
	store CredentialStore
}

func NewStoreAuthenticator(store CredentialStore) *StoreAuthenticator {
	return &StoreAuthenticator{store: store}
}

// Authenticate returns ErrInvalidCredentials for every failure so callers
// cannot tell unknown users from wrong passwords.
func (a *StoreAuthenticator) Authenticate(username, password string) (Principal, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}
	if !a.store.Verify(username, password) {
		return Principal{}, ErrInvalidCredentials
	}
	p, err := a.store.Principal(username)
	if err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	return p, nil
}
