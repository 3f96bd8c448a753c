package core

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// SecurityFile is the YAML document that seeds principals and access rules.
//
//	principals:
//	  - username: admin
//	    password_hash: $2a$10$...
//	    roles: [ADMIN]
//	rules:
//	  - pattern: /
//	    require: public
//	  - pattern: /admin/**
//	    require: role:ADMIN
//	fallback: forbidden
type SecurityFile struct {
	Principals []SeedPrincipal `yaml:"principals"`
	Rules      []RuleSpec      `yaml:"rules"`
	Fallback   string          `yaml:"fallback"`
}

// RuleSpec is the YAML form of an AccessRule.
type RuleSpec struct {
	Pattern string `yaml:"pattern"`
	Require string `yaml:"require"`
}

// LoadSecurityFile reads and strictly decodes path; unknown keys are errors.
func LoadSecurityFile(path string) (SecurityFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return SecurityFile{}, fmt.Errorf("open security file: %w", err)
	}
	defer f.Close()
	return DecodeSecurityFile(f)
}

// DecodeSecurityFile decodes a security document from r.
func DecodeSecurityFile(r io.Reader) (SecurityFile, error) {
	var sf SecurityFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		if errors.Is(err, io.EOF) {
			return SecurityFile{}, errors.New("security file is empty")
		}
		return SecurityFile{}, fmt.Errorf("decode security file: %w", err)
	}
	return sf, nil
}

// AccessRules converts the rule entries, keeping their order.
func (sf SecurityFile) AccessRules() ([]AccessRule, error) {
	rules := make([]AccessRule, 0, len(sf.Rules))
	for i, entry := range sf.Rules {
		req, err := ParseRequirement(entry.Require)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, entry.Pattern, err)
		}
		rules = append(rules, AccessRule{Pattern: entry.Pattern, Requirement: req})
	}
	return rules, nil
}
