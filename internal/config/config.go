package config

import (
	"fmt"
	"time"
)

// Config holds the application's configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Activation  ActivationConfig  `mapstructure:"activation"`
	HostBridge  HostBridgeConfig  `mapstructure:"host_bridge"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	OAuth       OAuthConfig       `mapstructure:"oauth"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Vault       VaultConfig       `mapstructure:"vault"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig configures the local HTTP surface.
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int      `mapstructure:"write_timeout"` // in seconds
	Debug        bool     `mapstructure:"debug"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// IdentityConfig points at the identity provider.
type IdentityConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // in seconds
}

// ActivationConfig points at the activation key service.
type ActivationConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // in seconds
}

// HostBridgeConfig points at the desktop shell's local command endpoint.
type HostBridgeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Enabled bool   `mapstructure:"enabled"`
}

// SecretsConfig selects and configures the secure secret store backend.
type SecretsConfig struct {
	Backend string `mapstructure:"backend"` // "file" or "vault"
	Dir     string `mapstructure:"dir"`     // file backend: directory for encrypted records
	// MasterKeyEnv names the environment variable carrying the base64 master
	// key. The key itself is never placed in the config file.
	MasterKeyEnv string `mapstructure:"master_key_env"`
}

// OAuthProviderConfig describes one third-party integration provider.
type OAuthProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	AuthURL      string   `mapstructure:"auth_url"`
	TokenURL     string   `mapstructure:"token_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// OAuthConfig configures the integration broker.
type OAuthConfig struct {
	StateStore string                         `mapstructure:"state_store"` // "memory" or "redis"
	Providers  map[string]OAuthProviderConfig `mapstructure:"providers"`
}

// RedisConfig configures the Redis state store used in hosted deployments.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// VaultConfig configures the Vault secret-store backend.
type VaultConfig struct {
	Address   string `mapstructure:"address"`
	Token     string `mapstructure:"token"`
	MountPath string `mapstructure:"mount_path"`
	BasePath  string `mapstructure:"base_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// IdentityTimeout returns the bounded per-call timeout for identity calls.
func (c *IdentityConfig) IdentityTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// ActivationTimeout returns the bounded per-call timeout for activation calls.
func (c *ActivationConfig) ActivationTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Identity.BaseURL == "" {
		return fmt.Errorf("identity.base_url is required")
	}
	if c.Activation.BaseURL == "" {
		return fmt.Errorf("activation.base_url is required")
	}
	switch c.Secrets.Backend {
	case "file", "vault":
	default:
		return fmt.Errorf("secrets.backend must be \"file\" or \"vault\", got %q", c.Secrets.Backend)
	}
	if c.Secrets.Backend == "vault" && c.Vault.Address == "" {
		return fmt.Errorf("vault.address is required when secrets.backend is \"vault\"")
	}
	switch c.OAuth.StateStore {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("oauth.state_store must be \"memory\" or \"redis\", got %q", c.OAuth.StateStore)
	}
	if c.OAuth.StateStore == "redis" && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when oauth.state_store is \"redis\"")
	}
	for name, p := range c.OAuth.Providers {
		if p.ClientID == "" || p.AuthURL == "" || p.TokenURL == "" {
			return fmt.Errorf("oauth provider %q is missing client_id, auth_url, or token_url", name)
		}
	}
	return nil
}
