package core

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "FORMGATE_"

// Session backends accepted by Config.SessionBackend.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

const defaultSessionKey = "change-this-session-key-please-32b"

// Config holds runtime settings for the API process.
type Config struct {
	Port           string        `koanf:"port"`            // HTTP listen port (e.g., "8080")
	MetricsAddr    string        `koanf:"metrics_addr"`    // Prometheus listener; empty disables it
	SessionKey     string        `koanf:"session_key"`     // Cookie signing key
	SessionIDKey   string        `koanf:"session_id_key"`  // HMAC key for session IDs; random per process when empty
	CookieName     string        `koanf:"cookie_name"`     // Session cookie name
	CookieSecure   bool          `koanf:"cookie_secure"`   // Whether to set Secure flag on session cookie
	CookieSameSite string        `koanf:"cookie_samesite"` // SameSite policy: Strict/Lax/None
	SessionBackend string        `koanf:"session_backend"` // memory | redis | postgres
	SessionTTL     time.Duration `koanf:"session_ttl"`     // 0 keeps sessions until logout
	SweepInterval  time.Duration `koanf:"sweep_interval"`  // how often expired sessions are purged
	RedisURL       string        `koanf:"redis_url"`       // Redis URL (redis://host:port/db)
	DatabaseURL    string        `koanf:"database_url"`    // PostgreSQL DSN
	LogDir         string        `koanf:"log_dir"`         // Directory to write application logs; empty logs to stdout only
	LogLevel       string        `koanf:"log_level"`       // debug | info | warn | error
	LogFormat      string        `koanf:"log_format"`      // json | console

	SecurityFile             string   `koanf:"security_file"`               // YAML file with principals and rules
	AdminUsername            string   `koanf:"admin_username"`              // seed principal when no security file is given
	AdminPassword            string   `koanf:"admin_password"`              // plaintext, hashed at startup
	AdminPasswordHash        string   `koanf:"admin_password_hash"`         // precomputed bcrypt hash
	AdminRoles               []string `koanf:"admin_roles"`                 // roles of the seed principal
	GenerateAdminPassword    bool     `koanf:"generate_admin_password"`     // generate a password when none is configured
	InitialAdminPasswordPath string   `koanf:"initial_admin_password_path"` // where to write generated admin password (if empty -> log output)
	BcryptCost               int      `koanf:"bcrypt_cost"`

	LoginPath        string   `koanf:"login_path"`
	LogoutPath       string   `koanf:"logout_path"`
	DefaultLanding   string   `koanf:"default_landing"`
	FallbackDecision string   `koanf:"fallback_decision"` // decision for paths no rule matches
	AllowedOrigins   []string `koanf:"allowed_origins"`   // extra origins allowed to POST login/logout
	LoginRateLimit   float64  `koanf:"login_rate_limit"`  // login submissions per minute per client; 0 disables
	LoginBurst       int      `koanf:"login_burst"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		Port:             "8080",
		MetricsAddr:      ":9090",
		SessionKey:       defaultSessionKey,
		CookieName:       "formgate_session",
		CookieSecure:     false,
		CookieSameSite:   "Lax",
		SessionBackend:   BackendMemory,
		SessionTTL:       0,
		SweepInterval:    time.Minute,
		RedisURL:         "redis://localhost:6379/0",
		LogLevel:         "info",
		LogFormat:        "json",
		AdminUsername:    "admin",
		AdminRoles:       []string{"ADMIN"},
		BcryptCost:       10,
		LoginPath:        "/login",
		LogoutPath:       "/logout",
		DefaultLanding:   "/",
		FallbackDecision: "forbidden",
		LoginRateLimit:   5,
		LoginBurst:       10,
	}
}

// Load populates Config from defaults, an optional YAML file and
// FORMGATE_* environment variables, in increasing priority.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return Config{}, fmt.Errorf("config file %s not found: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Keys are flat, so FORMGATE_SESSION_BACKEND maps to session_backend.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.AdminRoles = parseCSV(strings.Join(cfg.AdminRoles, ","))
	cfg.AllowedOrigins = parseCSV(strings.Join(cfg.AllowedOrigins, ","))

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if len(c.SessionKey) < 32 {
		return errors.New("session_key must be at least 32 bytes")
	}
	if c.CookieName == "" {
		return errors.New("cookie_name is required")
	}
	switch strings.ToLower(c.CookieSameSite) {
	case "strict", "lax", "none":
	default:
		return fmt.Errorf("cookie_samesite %q must be Strict, Lax or None", c.CookieSameSite)
	}
	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url is required for the redis session backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required for the postgres session backend")
		}
	default:
		return fmt.Errorf("unknown session_backend %q", c.SessionBackend)
	}
	if c.SessionTTL < 0 {
		return errors.New("session_ttl must not be negative")
	}
	if c.SessionTTL > 0 && c.SweepInterval <= 0 {
		return errors.New("sweep_interval must be positive when session_ttl is set")
	}
	for name, p := range map[string]string{
		"login_path":      c.LoginPath,
		"logout_path":     c.LogoutPath,
		"default_landing": c.DefaultLanding,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s %q must be an absolute path", name, p)
		}
	}
	if c.LoginPath == c.LogoutPath {
		return errors.New("login_path and logout_path must differ")
	}
	if _, err := ParseDecision(c.FallbackDecision); err != nil {
		return fmt.Errorf("fallback_decision: %w", err)
	}
	if c.LoginRateLimit < 0 || c.LoginBurst < 0 {
		return errors.New("login_rate_limit and login_burst must not be negative")
	}
	return nil
}

// UsesDefaultSessionKey reports whether the shipped placeholder key is in use.
func (c Config) UsesDefaultSessionKey() bool {
	return c.SessionKey == defaultSessionKey
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseCSV splits comma-separated list and trims spaces; empty entries are skipped.
func parseCSV(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
