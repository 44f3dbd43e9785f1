// Package config provides a reusable loader for Pippin's host configuration
// files and environment variables. It is versioned so that embedding
// applications can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/pippin-db/pippin/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for one Pippin repo instance: which
// partitions it opens, where their files live, how eagerly they snapshot,
// and how the process logs.
type Config struct {
	Repo struct {
		Path           string   `mapstructure:"path" json:"path"`
		Name           string   `mapstructure:"name" json:"name"`
		Partitions     []string `mapstructure:"partitions" json:"partitions"`
		ReadOnly       bool     `mapstructure:"read_only" json:"read_only"`
		CacheEntries   int      `mapstructure:"cache_entries" json:"cache_entries"`
	} `mapstructure:"repo" json:"repo"`

	Snapshot struct {
		EveryCommits int `mapstructure:"every_commits" json:"every_commits"`
		EveryChanges int `mapstructure:"every_changes" json:"every_changes"`
	} `mapstructure:"snapshot" json:"snapshot"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled" json:"enabled"`
		Addr    string `mapstructure:"addr" json:"addr"`
	} `mapstructure:"metrics" json:"metrics"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. It first loads a .env file (if present) so PIPPIN_* variables
// set there are visible to viper.AutomaticEnv, then reads cmd/config or
// config for the base "default" file, optionally merging an env-named
// override file over it. The resulting configuration is stored in AppConfig
// and returned.
func Load(env string) (*Config, error) {
	_ = godotenv.Load() // optional: absence of .env is not an error

	viper.SetEnvPrefix("PIPPIN")
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the PIPPIN_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("PIPPIN_ENV", ""))
}
