package config

import (
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads the configuration from file and environment variables.
// Lookup order: explicit path (if given), ./config.yaml, ~/.config/goodhang/,
// then GOODHANG_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/goodhang")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	v.SetEnvPrefix("GOODHANG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8391)
	v.SetDefault("server.read_timeout", 15)
	v.SetDefault("server.write_timeout", 15)
	v.SetDefault("server.cors_origins", []string{"tauri://localhost"})
	v.SetDefault("identity.base_url", "https://goodhang-staging.vercel.app")
	v.SetDefault("identity.timeout", 10)
	v.SetDefault("activation.base_url", "https://api.goodhang.com")
	v.SetDefault("activation.timeout", 10)
	v.SetDefault("host_bridge.enabled", false)
	v.SetDefault("secrets.backend", "file")
	v.SetDefault("secrets.dir", "$HOME/.config/goodhang/secrets")
	v.SetDefault("secrets.master_key_env", "GOODHANG_MASTER_KEY")
	v.SetDefault("oauth.state_store", "memory")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.base_path", "goodhang/desktop")
	v.SetDefault("log.level", "info")
}
