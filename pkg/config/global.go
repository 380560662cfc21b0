package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"

	"github.com/arkforge/arkforge/pkg/types"
)

// PluginTimeoutEnvVar overrides every configured plugin timeout when
// set to a positive number of seconds.
const PluginTimeoutEnvVar = "ARKFORGE_PLUGIN_TIMEOUT"

// LoadGlobalConfig reads the global configuration document
// (<configDir>/config.yaml) through viper, falling back to defaults
// when the file is absent.
func LoadGlobalConfig(configDir string) (*types.GlobalConfig, error) {
	cfg := types.DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("ARKFORGE")
	v.AutomaticEnv()

	v.SetDefault("bcasl_enabled", cfg.PipelineEnabled)
	v.SetDefault("plugin_timeout", cfg.PluginTimeout)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	cfg.PipelineEnabled = v.GetBool("bcasl_enabled")
	cfg.PluginTimeout = v.GetFloat64("plugin_timeout")
	return &cfg, nil
}

// GlobalConfigPath returns the location of the global configuration
// document under configDir.
func GlobalConfigPath(configDir string) string {
	return filepath.Join(configDir, "config.yaml")
}

// EnvPluginTimeout reads the plugin timeout override from the
// environment. It returns 0 when unset, empty or not a positive
// number.
func EnvPluginTimeout() float64 {
	raw := os.Getenv(PluginTimeoutEnvVar)
	if raw == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return secs
}
