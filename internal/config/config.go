// ABOUTME: Configuration loading and parsing for the portal services
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/2389/portal-core/internal/auth"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Validation modes for auth.validation.
const (
	ValidationLocal     = "local"
	ValidationDelegated = "delegated"
)

// Config represents the complete portal configuration. One file describes
// every service; each portald process reads the sections it serves.
type Config struct {
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Identity   IdentityConfig   `yaml:"identity" toml:"identity"`
	Catalog    CatalogConfig    `yaml:"catalog" toml:"catalog"`
	Enrollment EnrollmentConfig `yaml:"enrollment" toml:"enrollment"`
	Grading    GradingConfig    `yaml:"grading" toml:"grading"`
}

// AuthConfig holds token configuration shared by every service.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret" toml:"jwt_secret"`
	Validation   string `yaml:"validation" toml:"validation"`
	IdentityAddr string `yaml:"identity_addr" toml:"identity_addr"`

	ValidateTimeout    time.Duration `yaml:"-" toml:"-"`
	ValidateTimeoutRaw string        `yaml:"validate_timeout" toml:"validate_timeout"`
}

// ServerConfig tunes the gRPC servers and outgoing calls.
type ServerConfig struct {
	MaxConcurrentStreams uint32 `yaml:"max_concurrent_streams" toml:"max_concurrent_streams"`
	Workers              uint32 `yaml:"workers" toml:"workers"`

	RequestTimeout  time.Duration `yaml:"-" toml:"-"`
	CallTimeout     time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw  string `yaml:"request_timeout" toml:"request_timeout"`
	CallTimeoutRaw     string `yaml:"call_timeout" toml:"call_timeout"`
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// DatabaseConfig selects a store backend.
type DatabaseConfig struct {
	Driver       string `yaml:"driver" toml:"driver"`
	DSN          string `yaml:"dsn" toml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns" toml:"max_open_conns"`
}

// IdentityConfig configures the identity service.
type IdentityConfig struct {
	GRPCAddr   string         `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr   string         `yaml:"http_addr" toml:"http_addr"`
	Database   DatabaseConfig `yaml:"database" toml:"database"`
	BcryptCost int            `yaml:"bcrypt_cost" toml:"bcrypt_cost"`

	TokenTTL    time.Duration `yaml:"-" toml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
}

// CourseSeed is a course inserted at catalog startup when missing.
type CourseSeed struct {
	ID              string `yaml:"id" toml:"id"`
	Name            string `yaml:"name" toml:"name"`
	Capacity        int    `yaml:"capacity" toml:"capacity"`
	Enrolled        int    `yaml:"enrolled" toml:"enrolled"`
	Open            bool   `yaml:"open" toml:"open"`
	FacultyID       string `yaml:"faculty_id" toml:"faculty_id"`
	FacultyUsername string `yaml:"faculty_username" toml:"faculty_username"`
}

// CatalogConfig configures the catalog service and its course seed.
type CatalogConfig struct {
	GRPCAddr string         `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string         `yaml:"http_addr" toml:"http_addr"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Courses  []CourseSeed   `yaml:"courses" toml:"courses"`
}

// EnrollmentConfig configures the enrollment service. Its database defaults
// to the catalog's because enrollments and course counters change together.
type EnrollmentConfig struct {
	GRPCAddr string         `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string         `yaml:"http_addr" toml:"http_addr"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
}

// GradingConfig configures the grading service. EnrollmentDatabase is the
// catalog+enrollment store read for the upload precheck; EnrollmentAddr is
// the enrollment service used to build transcripts.
type GradingConfig struct {
	GRPCAddr           string         `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr           string         `yaml:"http_addr" toml:"http_addr"`
	Database           DatabaseConfig `yaml:"database" toml:"database"`
	EnrollmentDatabase DatabaseConfig `yaml:"enrollment_database" toml:"enrollment_database"`
	EnrollmentAddr     string         `yaml:"enrollment_addr" toml:"enrollment_addr"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(string(data), strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration text, applies defaults and validates it.
func Parse(text string, isTOML bool) (*Config, error) {
	// Expand environment variables in the raw content
	expanded := expandEnvVars(text)

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied and the given
// secret. Used by tests and by portald when no config file exists.
func Default(secret string) (*Config, error) {
	cfg := &Config{Auth: AuthConfig{JWTSecret: secret}}
	cfg.applyDefaults()
	if err := parseDurations(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	setDefault(&c.Auth.Validation, ValidationLocal)
	setDefault(&c.Auth.IdentityAddr, "localhost:50051")
	setDefault(&c.Auth.ValidateTimeoutRaw, "3s")

	setDefault(&c.Server.RequestTimeoutRaw, "10s")
	setDefault(&c.Server.CallTimeoutRaw, "5s")
	setDefault(&c.Server.ShutdownTimeoutRaw, "10s")
	if c.Server.MaxConcurrentStreams == 0 {
		c.Server.MaxConcurrentStreams = 100
	}

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "text")

	setDefault(&c.Identity.GRPCAddr, ":50051")
	setDefault(&c.Identity.HTTPAddr, ":8081")
	setDefault(&c.Identity.TokenTTLRaw, "24h")
	defaultDatabase(&c.Identity.Database, "./data/identity.db")

	setDefault(&c.Catalog.GRPCAddr, ":50052")
	setDefault(&c.Catalog.HTTPAddr, ":8082")
	defaultDatabase(&c.Catalog.Database, "./data/catalog.db")
	if c.Catalog.Courses == nil {
		c.Catalog.Courses = DefaultCourses()
	}

	setDefault(&c.Enrollment.GRPCAddr, ":50053")
	setDefault(&c.Enrollment.HTTPAddr, ":8083")
	if c.Enrollment.Database.DSN == "" {
		c.Enrollment.Database = c.Catalog.Database
	}

	setDefault(&c.Grading.GRPCAddr, ":50054")
	setDefault(&c.Grading.HTTPAddr, ":8084")
	setDefault(&c.Grading.EnrollmentAddr, "localhost:50053")
	defaultDatabase(&c.Grading.Database, "./data/grades.db")
	if c.Grading.EnrollmentDatabase.DSN == "" {
		c.Grading.EnrollmentDatabase = c.Catalog.Database
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func defaultDatabase(db *DatabaseConfig, path string) {
	setDefault(&db.Driver, "sqlite")
	setDefault(&db.DSN, path)
}

// DefaultCourses is the catalog seeded when the configuration lists none.
func DefaultCourses() []CourseSeed {
	return []CourseSeed{
		{ID: "CS101", Name: "Introduction to Computer Science", Capacity: 30, Enrolled: 15, Open: true},
		{ID: "MA202", Name: "Linear Algebra", Capacity: 25, Enrolled: 25, Open: true},
		{ID: "PH301", Name: "Quantum Mechanics", Capacity: 20, Enrolled: 0, Open: false},
		{ID: "HI105", Name: "World History", Capacity: 40, Enrolled: 0, Open: true,
			FacultyID: "b947c0a8-b615-4309-8473-b2649a3c9454", FacultyUsername: "prof_a"},
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", auth.MinSecretLength)
	}

	switch c.Auth.Validation {
	case ValidationLocal:
	case ValidationDelegated:
		if c.Auth.IdentityAddr == "" {
			return fmt.Errorf("auth.identity_addr is required for delegated validation")
		}
	default:
		return fmt.Errorf("auth.validation must be %q or %q, got %q", ValidationLocal, ValidationDelegated, c.Auth.Validation)
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	for name, db := range map[string]DatabaseConfig{
		"identity.database":           c.Identity.Database,
		"catalog.database":            c.Catalog.Database,
		"enrollment.database":         c.Enrollment.Database,
		"grading.database":            c.Grading.Database,
		"grading.enrollment_database": c.Grading.EnrollmentDatabase,
	} {
		switch db.Driver {
		case "sqlite", "sqlite3", "pgx", "postgres":
		default:
			return fmt.Errorf("%s.driver %q is not supported", name, db.Driver)
		}
	}

	seen := make(map[string]bool, len(c.Catalog.Courses))
	for _, course := range c.Catalog.Courses {
		if course.ID == "" {
			return fmt.Errorf("catalog.courses: id is required")
		}
		if seen[course.ID] {
			return fmt.Errorf("catalog.courses: duplicate id %s", course.ID)
		}
		seen[course.ID] = true
		if course.Capacity <= 0 {
			return fmt.Errorf("catalog.courses %s: capacity must be positive", course.ID)
		}
		if course.Enrolled < 0 || course.Enrolled > course.Capacity {
			return fmt.Errorf("catalog.courses %s: enrolled must be between 0 and capacity", course.ID)
		}
	}

	if c.Identity.TokenTTL <= 0 {
		return fmt.Errorf("identity.token_ttl must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.validate_timeout", cfg.Auth.ValidateTimeoutRaw, &cfg.Auth.ValidateTimeout},
		{"server.request_timeout", cfg.Server.RequestTimeoutRaw, &cfg.Server.RequestTimeout},
		{"server.call_timeout", cfg.Server.CallTimeoutRaw, &cfg.Server.CallTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"identity.token_ttl", cfg.Identity.TokenTTLRaw, &cfg.Identity.TokenTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
