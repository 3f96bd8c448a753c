package core

import (
	"fmt"
	"path"
	"strings"
)

// Decision is the outcome of checking a request against an AccessPolicy.
type Decision int

const (
	Permit Decision = iota
	RequireLogin
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Permit:
		return "permit"
	case RequireLogin:
		return "require_login"
	case Forbidden:
		return "forbidden"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ParseDecision is the inverse of Decision.String.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "permit":
		return Permit, nil
	case "require_login":
		return RequireLogin, nil
	case "forbidden", "deny":
		return Forbidden, nil
	default:
		return Forbidden, fmt.Errorf("unknown decision %q", s)
	}
}

// RequirementKind says what a matching request must bring.
type RequirementKind int

const (
	Public RequirementKind = iota
	Authenticated
	Role
)

// Requirement is what an AccessRule demands of the current principal.
type Requirement struct {
	Kind RequirementKind
	Role string // only for Kind == Role
}

func PublicAccess() Requirement        { return Requirement{Kind: Public} }
func AuthenticatedAccess() Requirement { return Requirement{Kind: Authenticated} }
func RoleAccess(role string) Requirement {
	return Requirement{Kind: Role, Role: role}
}

func (r Requirement) String() string {
	switch r.Kind {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case Role:
		return "role:" + r.Role
	default:
		return "unknown"
	}
}

// ParseRequirement accepts "public", "authenticated" or "role:NAME".
func ParseRequirement(s string) (Requirement, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "public":
		return PublicAccess(), nil
	case "authenticated":
		return AuthenticatedAccess(), nil
	}
	if len(s) > len("role:") && strings.EqualFold(s[:len("role:")], "role:") {
		return RoleAccess(strings.TrimSpace(s[len("role:"):])), nil
	}
	return Requirement{}, fmt.Errorf("unknown requirement %q", s)
}

// AccessRule binds a path pattern to a requirement.
//
// Patterns are Ant-style: "?" matches one character and "*" any run of
// characters within a segment, "**" matches zero or more whole segments.
type AccessRule struct {
	Pattern     string
	Requirement Requirement
}

// DefaultRules is the rule list used when no security file provides one.
func DefaultRules() []AccessRule {
	return []AccessRule{
		{Pattern: "/", Requirement: PublicAccess()},
		{Pattern: "/index", Requirement: PublicAccess()},
		{Pattern: "/user", Requirement: PublicAccess()},
		{Pattern: "/login", Requirement: PublicAccess()},
		{Pattern: "/healthz", Requirement: PublicAccess()},
		{Pattern: "/admin", Requirement: RoleAccess("ADMIN")},
		{Pattern: "/admin/**", Requirement: RoleAccess("ADMIN")},
	}
}

// AccessPolicy is an ordered rule list; the first matching rule decides.
// It is immutable and safe for concurrent use.
type AccessPolicy struct {
	rules    []compiledRule
	fallback Decision
}

type compiledRule struct {
	AccessRule
	segments []string
}

// NewAccessPolicy validates and copies rules. fallback is returned for
// paths no rule matches.
func NewAccessPolicy(rules []AccessRule, fallback Decision) (*AccessPolicy, error) {
	if fallback < Permit || fallback > Forbidden {
		return nil, fmt.Errorf("invalid fallback decision %d", int(fallback))
	}
	p := &AccessPolicy{fallback: fallback, rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("rule %d: pattern %q must start with /", i, r.Pattern)
		}
		switch r.Requirement.Kind {
		case Public, Authenticated:
		case Role:
			if strings.TrimSpace(r.Requirement.Role) == "" {
				return nil, fmt.Errorf("rule %d: role requirement without a role", i)
			}
		default:
			return nil, fmt.Errorf("rule %d: unknown requirement kind %d", i, int(r.Requirement.Kind))
		}
		segs := splitPath(r.Pattern)
		for _, s := range segs {
			if s == "**" {
				continue
			}
			if strings.Contains(s, "**") {
				return nil, fmt.Errorf("rule %d: ** must be a whole segment in %q", i, r.Pattern)
			}
			if _, err := path.Match(s, ""); err != nil {
				return nil, fmt.Errorf("rule %d: bad pattern %q: %w", i, r.Pattern, err)
			}
		}
		p.rules = append(p.rules, compiledRule{AccessRule: r, segments: segs})
	}
	return p, nil
}

// Decide evaluates requestPath for principal p (nil when anonymous).
func (p *AccessPolicy) Decide(requestPath string, principal *Principal) Decision {
	rule, ok := p.match(requestPath)
	if !ok {
		return p.fallback
	}
	switch rule.Requirement.Kind {
	case Public:
		return Permit
	case Authenticated:
		if principal == nil {
			return RequireLogin
		}
		return Permit
	case Role:
		if principal == nil {
			return RequireLogin
		}
		if principal.HasRole(rule.Requirement.Role) {
			return Permit
		}
		return Forbidden
	}
	return Forbidden
}

// Match returns the rule that decides requestPath, if any.
func (p *AccessPolicy) Match(requestPath string) (AccessRule, bool) {
	r, ok := p.match(requestPath)
	return r.AccessRule, ok
}

func (p *AccessPolicy) match(requestPath string) (compiledRule, bool) {
	segs := splitPath(cleanRequestPath(requestPath))
	for _, r := range p.rules {
		if matchSegments(r.segments, segs) {
			return r, true
		}
	}
	return compiledRule{}, false
}

// Rules returns a copy of the rules in evaluation order.
func (p *AccessPolicy) Rules() []AccessRule {
	out := make([]AccessRule, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.AccessRule
	}
	return out
}

// Fallback returns the decision for unmatched paths.
func (p *AccessPolicy) Fallback() Decision {
	return p.fallback
}

// cleanRequestPath resolves dot segments so "/public/../admin" cannot slip
// past a rule for "/admin".
func cleanRequestPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(segs); i++ {
				if matchSegments(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], segs[0])
		if err != nil || !ok {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
