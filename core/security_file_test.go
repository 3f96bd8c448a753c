package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSecurityFile = `
principals:
  - username: admin
    password: "123456789"
    roles: [ADMIN]
  - username: bob
    password: bobpassword
    roles: [USER]
rules:
  - pattern: /
    require: public
  - pattern: /login
    require: public
  - pattern: /reports/**
    require: authenticated
  - pattern: /admin/**
    require: role:ADMIN
fallback: require_login
`

func TestDecodeSecurityFile(t *testing.T) {
	sf, err := DecodeSecurityFile(strings.NewReader(sampleSecurityFile))
	require.NoError(t, err)
	require.Len(t, sf.Principals, 2)
	assert.Equal(t, "admin", sf.Principals[0].Username)
	assert.Equal(t, []string{"USER"}, sf.Principals[1].Roles)
	assert.Equal(t, "require_login", sf.Fallback)

	rules, err := sf.AccessRules()
	require.NoError(t, err)
	require.Len(t, rules, 4)
	assert.Equal(t, "/reports/**", rules[2].Pattern)
	assert.Equal(t, AuthenticatedAccess(), rules[2].Requirement)
	assert.Equal(t, RoleAccess("ADMIN"), rules[3].Requirement)
}

func TestDecodeSecurityFileErrors(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"unknown key": "principals: []\nfallbackk: deny\n",
		"not yaml":    "rules: [",
	}
	for name, doc := range cases {
		_, err := DecodeSecurityFile(strings.NewReader(doc))
		assert.Error(t, err, name)
	}

	sf, err := DecodeSecurityFile(strings.NewReader("rules:\n  - pattern: /x\n    require: sometimes\n"))
	require.NoError(t, err)
	_, err = sf.AccessRules()
	assert.Error(t, err)
}

func TestLoadSecurityFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSecurityFile), 0o600))

	sf, err := LoadSecurityFile(path)
	require.NoError(t, err)
	assert.Len(t, sf.Rules, 4)

	_, err = LoadSecurityFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
