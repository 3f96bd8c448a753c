package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminPrincipal = Principal{Username: "admin", Roles: []string{"ADMIN"}}
	plainPrincipal = Principal{Username: "bob", Roles: []string{"USER"}}
)

func defaultPolicy(t *testing.T) *AccessPolicy {
	t.Helper()
	p, err := NewAccessPolicy(DefaultRules(), Forbidden)
	require.NoError(t, err)
	return p
}

func TestDecidePublicIgnoresAuthState(t *testing.T) {
	p := defaultPolicy(t)
	for _, path := range []string{"/", "/index", "/user", "/login", "/healthz", "/index/"} {
		assert.Equal(t, Permit, p.Decide(path, nil), path)
		assert.Equal(t, Permit, p.Decide(path, &plainPrincipal), path)
		assert.Equal(t, Permit, p.Decide(path, &adminPrincipal), path)
	}
}

func TestDecideRoleRule(t *testing.T) {
	p := defaultPolicy(t)
	for _, path := range []string{"/admin", "/admin/", "/admin/users", "/admin/a/b/c"} {
		assert.Equal(t, RequireLogin, p.Decide(path, nil), path)
		assert.Equal(t, Forbidden, p.Decide(path, &plainPrincipal), path)
		assert.Equal(t, Permit, p.Decide(path, &adminPrincipal), path)
	}
}

func TestDecideAuthenticatedRule(t *testing.T) {
	p, err := NewAccessPolicy([]AccessRule{
		{Pattern: "/account/**", Requirement: AuthenticatedAccess()},
	}, Forbidden)
	require.NoError(t, err)

	assert.Equal(t, RequireLogin, p.Decide("/account/profile", nil))
	assert.Equal(t, Permit, p.Decide("/account/profile", &plainPrincipal))
}

func TestDecideFirstMatchWins(t *testing.T) {
	specificFirst, err := NewAccessPolicy([]AccessRule{
		{Pattern: "/admin/status", Requirement: PublicAccess()},
		{Pattern: "/admin/**", Requirement: RoleAccess("ADMIN")},
	}, Forbidden)
	require.NoError(t, err)

	generalFirst, err := NewAccessPolicy([]AccessRule{
		{Pattern: "/admin/**", Requirement: RoleAccess("ADMIN")},
		{Pattern: "/admin/status", Requirement: PublicAccess()},
	}, Forbidden)
	require.NoError(t, err)

	assert.Equal(t, Permit, specificFirst.Decide("/admin/status", nil))
	assert.Equal(t, RequireLogin, generalFirst.Decide("/admin/status", nil))

	rule, ok := generalFirst.Match("/admin/status")
	require.True(t, ok)
	assert.Equal(t, "/admin/**", rule.Pattern)
}

func TestDecideFallback(t *testing.T) {
	p := defaultPolicy(t)
	assert.Equal(t, Forbidden, p.Decide("/unknown", nil))
	assert.Equal(t, Forbidden, p.Decide("/unknown", &adminPrincipal))

	open, err := NewAccessPolicy(DefaultRules(), RequireLogin)
	require.NoError(t, err)
	assert.Equal(t, RequireLogin, open.Decide("/unknown", nil))

	empty, err := NewAccessPolicy(nil, Forbidden)
	require.NoError(t, err)
	assert.Equal(t, Forbidden, empty.Decide("/", nil))
}

func TestDecideCleansDotSegments(t *testing.T) {
	p := defaultPolicy(t)
	assert.Equal(t, RequireLogin, p.Decide("/index/../admin", nil))
	assert.Equal(t, RequireLogin, p.Decide("//admin", nil))
	assert.Equal(t, RequireLogin, p.Decide("/./admin/./x", nil))
}

func TestPatternWildcards(t *testing.T) {
	p, err := NewAccessPolicy([]AccessRule{
		{Pattern: "/files/*.txt", Requirement: PublicAccess()},
		{Pattern: "/v?/status", Requirement: PublicAccess()},
		{Pattern: "/docs/**/edit", Requirement: AuthenticatedAccess()},
	}, Forbidden)
	require.NoError(t, err)

	cases := map[string]Decision{
		"/files/a.txt":     Permit,
		"/files/a.pdf":     Forbidden,
		"/files/sub/a.txt": Forbidden,
		"/v1/status":       Permit,
		"/v10/status":      Forbidden,
		"/docs/edit":       RequireLogin,
		"/docs/a/b/edit":   RequireLogin,
		"/docs/a/b/view":   Forbidden,
	}
	for path, want := range cases {
		assert.Equal(t, want, p.Decide(path, nil), path)
	}
}

func TestNewAccessPolicyRejectsBadRules(t *testing.T) {
	cases := map[string][]AccessRule{
		"relative":          {{Pattern: "admin", Requirement: PublicAccess()}},
		"empty role":        {{Pattern: "/admin", Requirement: RoleAccess(" ")}},
		"star pair in name": {{Pattern: "/a**b", Requirement: PublicAccess()}},
		"bad glob":          {{Pattern: "/[", Requirement: PublicAccess()}},
	}
	for name, rules := range cases {
		_, err := NewAccessPolicy(rules, Forbidden)
		assert.Error(t, err, name)
	}

	_, err := NewAccessPolicy(DefaultRules(), Decision(42))
	assert.Error(t, err)
}

func TestRulesReturnsCopy(t *testing.T) {
	p := defaultPolicy(t)
	rules := p.Rules()
	rules[0].Requirement = RoleAccess("NOBODY")
	assert.Equal(t, Permit, p.Decide("/", nil))
}

func TestParseRequirement(t *testing.T) {
	r, err := ParseRequirement("role:ADMIN")
	require.NoError(t, err)
	assert.Equal(t, RoleAccess("ADMIN"), r)

	r, err = ParseRequirement("authenticated")
	require.NoError(t, err)
	assert.Equal(t, AuthenticatedAccess(), r)

	r, err = ParseRequirement("public")
	require.NoError(t, err)
	assert.Equal(t, PublicAccess(), r)

	for _, bad := range []string{"", "role:", "admin", "role"} {
		_, err := ParseRequirement(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDecision(t *testing.T) {
	for in, want := range map[string]Decision{
		"permit":        Permit,
		"require_login": RequireLogin,
		"forbidden":     Forbidden,
		"deny":          Forbidden,
	} {
		got, err := ParseDecision(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDecision("maybe")
	assert.Error(t, err)
}
