package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore holds the principals allowed to log in. It is read-only
// once constructed.
type CredentialStore interface {
	Verify(username, candidate string) bool
	RolesOf(username string) ([]string, error)
	Principal(username string) (Principal, error)
}

// SeedPrincipal is a principal definition loaded at startup. Exactly one of
// Password and PasswordHash is expected; a hash wins when both are set.
type SeedPrincipal struct {
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles"`
}

type credential struct {
	principal Principal
	hash      []byte
}

// MemoryCredentialStore keeps bcrypt hashes in a map populated once.
type MemoryCredentialStore struct {
	users map[string]credential
	// compared against when the username is unknown, so lookups for
	// missing users cost the same as a wrong password
	dummyHash []byte
}

// NewMemoryCredentialStore hashes plaintext seeds with the given bcrypt cost
// (bcrypt.DefaultCost when cost is 0).
func NewMemoryCredentialStore(seeds []SeedPrincipal, cost int) (*MemoryCredentialStore, error) {
	if len(seeds) == 0 {
		return nil, errors.New("at least one principal must be seeded")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	s := &MemoryCredentialStore{users: make(map[string]credential, len(seeds))}
	for _, seed := range seeds {
		username := strings.TrimSpace(seed.Username)
		if username == "" {
			return nil, errors.New("seed principal has an empty username")
		}
		if _, dup := s.users[username]; dup {
			return nil, fmt.Errorf("duplicate seed principal %q", username)
		}

		var hash []byte
		switch {
		case seed.PasswordHash != "":
			if _, err := bcrypt.Cost([]byte(seed.PasswordHash)); err != nil {
				return nil, fmt.Errorf("principal %q: invalid password hash: %w", username, err)
			}
			hash = []byte(seed.PasswordHash)
		case seed.Password != "":
			h, err := bcrypt.GenerateFromPassword([]byte(seed.Password), cost)
			if err != nil {
				return nil, fmt.Errorf("principal %q: hash password: %w", username, err)
			}
			hash = h
		default:
			return nil, fmt.Errorf("principal %q has neither password nor password_hash", username)
		}

		roles := make([]string, 0, len(seed.Roles))
		for _, r := range seed.Roles {
			if r = strings.TrimSpace(r); r != "" && !slices.Contains(roles, r) {
				roles = append(roles, r)
			}
		}
		s.users[username] = credential{
			principal: Principal{Username: username, Roles: roles},
			hash:      hash,
		}
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("formgate-dummy-password"), cost)
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

func (s *MemoryCredentialStore) Verify(username, candidate string) bool {
	c, ok := s.users[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(candidate))
		return false
	}
	return bcrypt.CompareHashAndPassword(c.hash, []byte(candidate)) == nil
}

func (s *MemoryCredentialStore) RolesOf(username string) ([]string, error) {
	c, ok := s.users[username]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	return slices.Clone(c.principal.Roles), nil
}

func (s *MemoryCredentialStore) Principal(username string) (Principal, error) {
	c, ok := s.users[username]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return Principal{Username: c.principal.Username, Roles: slices.Clone(c.principal.Roles)}, nil
}

// Len returns the number of seeded principals.
func (s *MemoryCredentialStore) Len() int {
	return len(s.users)
}
