package core

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Security is everything loaded at startup that the gate depends on.
type Security struct {
	Principals []SeedPrincipal
	Policy     *AccessPolicy
}

// LoadSecurity builds the seed principals and access policy from the
// security file when configured, falling back to the admin principal from
// cfg and DefaultRules. Any error here must abort startup.
func LoadSecurity(cfg Config, logger *zap.Logger) (Security, error) {
	var sf SecurityFile
	if cfg.SecurityFile != "" {
		loaded, err := LoadSecurityFile(cfg.SecurityFile)
		if err != nil {
			return Security{}, err
		}
		sf = loaded
		logger.Info("security file loaded",
			zap.String("path", cfg.SecurityFile),
			zap.Int("principals", len(sf.Principals)),
			zap.Int("rules", len(sf.Rules)))
	}

	principals := sf.Principals
	if len(principals) == 0 {
		admin, err := adminSeed(cfg, logger)
		if err != nil {
			return Security{}, err
		}
		principals = []SeedPrincipal{admin}
	}

	rules := DefaultRules()
	if len(sf.Rules) > 0 {
		r, err := sf.AccessRules()
		if err != nil {
			return Security{}, err
		}
		rules = r
	}

	fallback, err := ParseDecision(firstNonEmpty(sf.Fallback, cfg.FallbackDecision))
	if err != nil {
		return Security{}, fmt.Errorf("fallback: %w", err)
	}
	policy, err := NewAccessPolicy(rules, fallback)
	if err != nil {
		return Security{}, err
	}
	return Security{Principals: principals, Policy: policy}, nil
}

// adminSeed returns the single configured admin principal. Without a
// password or hash it generates one when allowed, writing it to
// InitialAdminPasswordPath (or the log when that is empty).
func adminSeed(cfg Config, logger *zap.Logger) (SeedPrincipal, error) {
	seed := SeedPrincipal{
		Username:     cfg.AdminUsername,
		Password:     cfg.AdminPassword,
		PasswordHash: cfg.AdminPasswordHash,
		Roles:        cfg.AdminRoles,
	}
	if seed.Username == "" {
		return SeedPrincipal{}, errors.New("admin_username is required when no security file defines principals")
	}
	if seed.Password != "" || seed.PasswordHash != "" {
		return seed, nil
	}
	if !cfg.GenerateAdminPassword {
		return SeedPrincipal{}, errors.New("no admin password configured: set admin_password, admin_password_hash or generate_admin_password")
	}

	password, err := generatePassword(24)
	if err != nil {
		return SeedPrincipal{}, err
	}
	seed.Password = password

	if cfg.InitialAdminPasswordPath != "" {
		if err := os.WriteFile(cfg.InitialAdminPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return SeedPrincipal{}, fmt.Errorf("write initial admin password: %w", err)
		}
		logger.Info("initial admin password generated",
			zap.String("username", seed.Username),
			zap.String("written_to", cfg.InitialAdminPasswordPath))
	} else {
		logger.Warn("initial admin password generated",
			zap.String("username", seed.Username),
			zap.String("password", password))
	}
	return seed, nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
