package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  Database
	Mint      Mint
	Import    Import
	Reconcile Reconcile
}

// Database holds sqlite settings.
type Database struct {
	Path string
}

// Mint holds upstream API settings.
type Mint struct {
	BaseURL string `mapstructure:"base_url"`
	// Login is the mint account (login identity) rows are tagged with.
	Login string
}

// Import holds fetch-window settings.
type Import struct {
	// LookbackDays is the fudge factor subtracted from the first pending
	// transaction's date when computing the fetch window start.
	LookbackDays int `mapstructure:"lookback_days"`
	// PageSize is the paged-fetch chunk size.
	PageSize int `mapstructure:"page_size"`
}

// Reconcile holds the sentinel tag names that encode the cleared and
// reconciled markers upstream. Both empty disables the feature.
type Reconcile struct {
	ClearedTag    string `mapstructure:"cleared_tag"`
	ReconciledTag string `mapstructure:"reconciled_tag"`
}

// Load reads configuration from file and env. Env var overrides use prefix MOJITO_.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "mojito", "mojito.db"))
	v.SetDefault("mint.base_url", "https://mint.intuit.com")
	v.SetDefault("mint.login", "")
	v.SetDefault("import.lookback_days", 14)
	v.SetDefault("import.page_size", 200)
	v.SetDefault("reconcile.cleared_tag", "")
	v.SetDefault("reconcile.reconciled_tag", "")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("MOJITO_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "mojito"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("MOJITO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if
// needed.
func Save(cfg Config) error {
	path := os.Getenv("MOJITO_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "mojito", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("mint.base_url", cfg.Mint.BaseURL)
	v.Set("mint.login", cfg.Mint.Login)
	v.Set("import.lookback_days", cfg.Import.LookbackDays)
	v.Set("import.page_size", cfg.Import.PageSize)
	v.Set("reconcile.cleared_tag", cfg.Reconcile.ClearedTag)
	v.Set("reconcile.reconciled_tag", cfg.Reconcile.ReconciledTag)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
