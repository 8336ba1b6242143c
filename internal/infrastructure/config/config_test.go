package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// validConfig returns a minimal configuration that passes validation.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
service:
  id: "test-gate"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    access_token_ttl: 900
session:
  secure_cookies: false
identity:
  resolve_timeout: 3s
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.ID != "test-gate" {
		t.Errorf("Service.ID = %q, want %q", cfg.Service.ID, "test-gate")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Security.JWT.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL() = %v, want 15m", cfg.Security.JWT.AccessTTL())
	}
	if cfg.Session.SecureCookies {
		t.Error("Session.SecureCookies = true, want false")
	}
	if cfg.Identity.ResolveTimeout != 3*time.Second {
		t.Errorf("Identity.ResolveTimeout = %v, want 3s", cfg.Identity.ResolveTimeout)
	}
	// Defaults survive a partial file.
	if cfg.Session.DashboardRoute != "/dashboard" {
		t.Errorf("Session.DashboardRoute = %q, want /dashboard", cfg.Session.DashboardRoute)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	t.Setenv("LEXGATE_JWT_SECRET", validJWTSecret)
	configPath := writeConfig(t, `
session:
  secure_cookie: false
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "secure_cookie") {
		t.Errorf("Load() error = %v, want unknown field secure_cookie", err)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	t.Setenv("LEXGATE_JWT_SECRET", validJWTSecret)
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 8080 || !cfg.Session.SecureCookies {
		t.Errorf("defaults not applied: port=%d secure=%v", cfg.API.Port, cfg.Session.SecureCookies)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ID = ""
	cfg.API.Port = 0
	cfg.Security.JWT.Secret = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil")
	}
	for _, want := range []string{"service.id", "api.port", "security.jwt.secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
service:
  id: ""
database:
  path: "/tmp/test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty service.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	hexKey := hex.EncodeToString(make([]byte, 32))

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing service ID", mutate: func(c *Config) { c.Service.ID = "" }, wantErr: "service.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "jwt.secret is required"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "at least 32"},
		{name: "valid encryption key", mutate: func(c *Config) { c.Security.EncryptionKey = hexKey }},
		{name: "bad encryption key", mutate: func(c *Config) { c.Security.EncryptionKey = "nope" }, wantErr: "encryption_key"},
		{name: "relative login route", mutate: func(c *Config) { c.Session.LoginRoute = "login" }, wantErr: "login_route"},
		{name: "resolve timeout too long", mutate: func(c *Config) { c.Identity.ResolveTimeout = 6 * time.Second }, wantErr: "resolve_timeout"},
		{
			name: "idp enabled without key",
			mutate: func(c *Config) {
				c.IdP.Enabled = true
				c.IdP.ClientID = "client"
				c.IdP.AuthURL, c.IdP.TokenURL, c.IdP.UserInfoURL = "https://idp/auth", "https://idp/token", "https://idp/userinfo"
				c.IdP.RedirectURL = "https://app/auth/callback"
			},
			wantErr: "encryption_key is required",
		},
		{
			name: "idp incomplete",
			mutate: func(c *Config) {
				c.IdP.Enabled = true
				c.Security.EncryptionKey = hexKey
			},
			wantErr: "idp.client_id",
		},
		{
			name: "idp timeout too long",
			mutate: func(c *Config) {
				c.IdP.Enabled = true
				c.Security.EncryptionKey = hexKey
				c.IdP.ClientID = "client"
				c.IdP.AuthURL, c.IdP.TokenURL, c.IdP.UserInfoURL = "https://idp/auth", "https://idp/token", "https://idp/userinfo"
				c.IdP.RedirectURL = "https://app/auth/callback"
				c.IdP.Timeout = 30 * time.Second
			},
			wantErr: "idp.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	to := cfg.API.Timeouts
	if got := to.ReadTimeout().Seconds(); got != 30 {
		t.Errorf("ReadTimeout() = %v, want 30", got)
	}
	if got := to.WriteTimeout().Seconds(); got != 45 {
		t.Errorf("WriteTimeout() = %v, want 45", got)
	}
	if got := to.IdleTimeout().Seconds(); got != 60 {
		t.Errorf("IdleTimeout() = %v, want 60", got)
	}
}

func TestJWTConfig_TTLDefaults(t *testing.T) {
	var j JWTConfig
	if j.AccessTTL() != time.Hour {
		t.Errorf("AccessTTL() = %v, want 1h", j.AccessTTL())
	}
	if j.RefreshTTL() != 30*24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 720h", j.RefreshTTL())
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LEXGATE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LEXGATE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LEXGATE_MQTT_USERNAME", "testuser")
	t.Setenv("LEXGATE_MQTT_PASSWORD", "testpass")
	t.Setenv("LEXGATE_API_HOST", "192.168.1.1")
	t.Setenv("LEXGATE_API_PORT", "9090")
	t.Setenv("LEXGATE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("LEXGATE_JWT_SECRET", "jwt-secret")
	t.Setenv("LEXGATE_ENCRYPTION_KEY", "enc-key")
	t.Setenv("LEXGATE_IDP_CLIENT_ID", "client-id")
	t.Setenv("LEXGATE_IDP_CLIENT_SECRET", "client-secret")
	t.Setenv("LEXGATE_BOOTSTRAP_OWNER_EMAIL", "founder@firm.test")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   string
		want  string
	}{
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Security.JWT.Secret", cfg.Security.JWT.Secret, "jwt-secret"},
		{"Security.EncryptionKey", cfg.Security.EncryptionKey, "enc-key"},
		{"IdP.ClientID", cfg.IdP.ClientID, "client-id"},
		{"IdP.ClientSecret", cfg.IdP.ClientSecret, "client-secret"},
		{"Bootstrap.OwnerEmail", cfg.Bootstrap.OwnerEmail, "founder@firm.test"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.ID == "" {
		t.Error("defaultConfig should have non-empty Service.ID")
	}
	if !cfg.Session.SecureCookies {
		t.Error("defaultConfig should enable secure cookies")
	}
	if len(cfg.Session.PublicPrefixes) == 0 {
		t.Error("defaultConfig should have public prefixes")
	}
	if cfg.Identity.ResolveTimeout != 5*time.Second {
		t.Errorf("defaultConfig Identity.ResolveTimeout = %v, want 5s", cfg.Identity.ResolveTimeout)
	}
	if cfg.IdP.Timeout != 10*time.Second {
		t.Errorf("defaultConfig IdP.Timeout = %v, want 10s", cfg.IdP.Timeout)
	}
	if cfg.Bootstrap.OrganizationName == "" {
		t.Error("defaultConfig should name the bootstrap organization")
	}
}
