package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/lexgate-core/internal/envelope"
)

// Config is the root configuration structure for LexGate Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Session   SessionConfig   `yaml:"session"`
	Identity  IdentityConfig  `yaml:"identity"`
	IdP       IdPConfig       `yaml:"idp"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// EncryptionKey protects secrets stored at rest (IdP tokens).
	// Accepted as base64, hex, or 32 raw characters.
	EncryptionKey string `yaml:"encryption_key"`
}

// JWTConfig contains access-token signing settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`

	// AccessTokenTTL is the access-token lifetime in seconds.
	AccessTokenTTL int `yaml:"access_token_ttl"`

	// RefreshTokenTTL is the refresh-token lifetime in days.
	RefreshTokenTTL int `yaml:"refresh_token_ttl"`
}

// RateLimitConfig contains per-IP limits for credential endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`

	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For header is
	// believed. Empty means the peer address is always the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// SessionConfig contains cookie and edge-routing settings.
type SessionConfig struct {
	// SecureCookies sets the Secure attribute. Only disable for local HTTP development.
	SecureCookies bool `yaml:"secure_cookies"`

	LoginRoute     string   `yaml:"login_route"`
	DashboardRoute string   `yaml:"dashboard_route"`
	PublicPrefixes []string `yaml:"public_prefixes"`
}

// IdentityConfig contains profile-resolution settings.
type IdentityConfig struct {
	// ResolveTimeout bounds a single profile lookup.
	ResolveTimeout time.Duration `yaml:"resolve_timeout"`

	// LookupRetries is how many extra attempts a caller makes on retryable store errors.
	LookupRetries int `yaml:"lookup_retries"`
}

// BootstrapConfig seeds the first owner on an empty database.
type BootstrapConfig struct {
	OwnerEmail       string `yaml:"owner_email"`
	OrganizationName string `yaml:"organization_name"`
}

// IdPConfig contains the external identity provider's OAuth2 settings.
type IdPConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Provider     string        `yaml:"provider"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	AuthURL      string        `yaml:"auth_url"`
	TokenURL     string        `yaml:"token_url"`
	UserInfoURL  string        `yaml:"userinfo_url"`
	RedirectURL  string        `yaml:"redirect_url"`
	Scopes       []string      `yaml:"scopes"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Upper bounds on request-level timeouts.
const (
	maxResolveTimeout = 5 * time.Second
	maxIdPTimeout     = 10 * time.Second
)

// Load builds the configuration in three layers: defaults, then the YAML
// file at path, then LEXGATE_* environment variables. Unknown YAML keys
// are rejected so a misspelt security setting cannot silently fall back
// to its default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "lexgate-001",
			Name: "LexGate",
		},
		Database: DatabaseConfig{
			Path:        "./data/lexgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "lexgate-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  3600,
				RefreshTokenTTL: 30,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
		},
		Session: SessionConfig{
			SecureCookies:  true,
			LoginRoute:     "/login",
			DashboardRoute: "/dashboard",
			PublicPrefixes: []string{"/login", "/auth/", "/api/auth/", "/api/health", "/metrics"},
		},
		Identity: IdentityConfig{
			ResolveTimeout: maxResolveTimeout,
			LookupRetries:  2,
		},
		IdP: IdPConfig{
			Provider: "oidc",
			Scopes:   []string{"openid", "email", "profile"},
			Timeout:  maxIdPTimeout,
		},
		Bootstrap: BootstrapConfig{
			OwnerEmail:       "owner@lexgate.local",
			OrganizationName: "LexGate Practice",
		},
	}
}

// envStrings maps LEXGATE_* variables onto string settings. Secrets are
// expected to come from here rather than the file.
func envStrings(cfg *Config) map[string]*string {
	return map[string]*string{
		"LEXGATE_DATABASE_PATH":         &cfg.Database.Path,
		"LEXGATE_MQTT_HOST":             &cfg.MQTT.Broker.Host,
		"LEXGATE_MQTT_USERNAME":         &cfg.MQTT.Auth.Username,
		"LEXGATE_MQTT_PASSWORD":         &cfg.MQTT.Auth.Password,
		"LEXGATE_API_HOST":              &cfg.API.Host,
		"LEXGATE_INFLUXDB_TOKEN":        &cfg.InfluxDB.Token,
		"LEXGATE_JWT_SECRET":            &cfg.Security.JWT.Secret,
		"LEXGATE_ENCRYPTION_KEY":        &cfg.Security.EncryptionKey,
		"LEXGATE_IDP_CLIENT_ID":         &cfg.IdP.ClientID,
		"LEXGATE_IDP_CLIENT_SECRET":     &cfg.IdP.ClientSecret,
		"LEXGATE_BOOTSTRAP_OWNER_EMAIL": &cfg.Bootstrap.OwnerEmail,
	}
}

// applyEnvOverrides copies set, non-empty LEXGATE_* variables over cfg.
// A malformed LEXGATE_API_PORT is ignored and the file value kept.
func applyEnvOverrides(cfg *Config) {
	for name, field := range envStrings(cfg) {
		if v := os.Getenv(name); v != "" {
			*field = v
		}
	}
	if port, err := strconv.Atoi(os.Getenv("LEXGATE_API_PORT")); err == nil {
		cfg.API.Port = port
	}
}

const minJWTSecretLength = 32

// Validate reports every problem found, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(c.Service.ID != "", "service.id is required")
	check(c.Database.Path != "", "database.path is required")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	check(c.API.Port >= 1 && c.API.Port <= 65535, "api.port must be between 1 and 65535")

	// Access tokens are trusted on signature alone.
	switch {
	case c.Security.JWT.Secret == "":
		errs = append(errs, errors.New("security.jwt.secret is required (set LEXGATE_JWT_SECRET)"))
	case len(c.Security.JWT.Secret) < minJWTSecretLength:
		errs = append(errs, fmt.Errorf("security.jwt.secret must be at least %d characters", minJWTSecretLength))
	}

	switch {
	case c.Security.EncryptionKey != "":
		if _, err := envelope.ParseKey(c.Security.EncryptionKey); err != nil {
			errs = append(errs, errors.New("security.encryption_key must be 32 bytes as base64, hex, or raw text"))
		}
	case c.IdP.Enabled:
		errs = append(errs, errors.New("security.encryption_key is required when idp is enabled (set LEXGATE_ENCRYPTION_KEY)"))
	}

	check(strings.HasPrefix(c.Session.LoginRoute, "/"), "session.login_route must be an absolute path")
	check(strings.HasPrefix(c.Session.DashboardRoute, "/"), "session.dashboard_route must be an absolute path")

	check(c.Identity.ResolveTimeout > 0 && c.Identity.ResolveTimeout <= maxResolveTimeout,
		"identity.resolve_timeout must be between 0 and 5s")
	check(c.Identity.LookupRetries >= 0, "identity.lookup_retries must not be negative")

	if c.IdP.Enabled {
		check(c.IdP.ClientID != "", "idp.client_id is required when idp is enabled")
		check(c.IdP.AuthURL != "" && c.IdP.TokenURL != "" && c.IdP.UserInfoURL != "",
			"idp.auth_url, idp.token_url and idp.userinfo_url are required when idp is enabled")
		check(c.IdP.RedirectURL != "", "idp.redirect_url is required when idp is enabled")
		check(c.IdP.Timeout > 0 && c.IdP.Timeout <= maxIdPTimeout, "idp.timeout must be between 0 and 10s")
	}

	return errors.Join(errs...)
}

// ReadTimeout is the HTTP read and header timeout.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout is the HTTP write timeout.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout is the keep-alive idle timeout.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}

// AccessTTL returns the access-token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	if j.AccessTokenTTL <= 0 {
		return time.Hour
	}
	return time.Duration(j.AccessTokenTTL) * time.Second
}

// RefreshTTL returns the refresh-token lifetime.
func (j JWTConfig) RefreshTTL() time.Duration {
	if j.RefreshTokenTTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(j.RefreshTokenTTL) * 24 * time.Hour
}
