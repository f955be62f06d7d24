// Package config builds the immutable configuration value the service boots
// from. Config is assembled once, in main, and passed down explicitly —
// there is no mutable package-level singleton.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the fully resolved, immutable runtime configuration.
type Config struct {
	AppName     string
	ListenAddr  string
	ToolServer  string
	AWSRegion   string
	DBSecretID  string
	DBHost      string
	DBName      string
	DBPort      string
}

// Load builds a Config from environment variables, failing fast when a
// required value is missing.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_NAME", "workflow-agent")
	v.SetDefault("LISTEN_ADDR", "0.0.0.0:8080")
	v.SetDefault("DB_PORT", "5432")

	cfg := Config{
		AppName:    v.GetString("APP_NAME"),
		ListenAddr: v.GetString("LISTEN_ADDR"),
		ToolServer: v.GetString("TOOL_SERVER_URL"),
		AWSRegion:  v.GetString("AWS_REGION"),
		DBSecretID: v.GetString("DB_SECRET_ID"),
		DBHost:     v.GetString("DB_HOST"),
		DBName:     v.GetString("DB_NAME"),
		DBPort:     v.GetString("DB_PORT"),
	}

	var missing []string
	if cfg.ToolServer == "" {
		missing = append(missing, "TOOL_SERVER_URL")
	}
	if cfg.DBHost == "" {
		missing = append(missing, "DB_HOST")
	}
	if cfg.DBName == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}
