package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("TOOL_SERVER_URL", "http://tools.internal")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "workflows")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "workflow-agent", cfg.AppName)
	require.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	require.Equal(t, "5432", cfg.DBPort)
	require.Equal(t, "http://tools.internal", cfg.ToolServer)
}

func TestLoadFailsFastOnMissingRequiredVars(t *testing.T) {
	t.Setenv("TOOL_SERVER_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "TOOL_SERVER_URL")
	require.Contains(t, err.Error(), "DB_HOST")
	require.Contains(t, err.Error(), "DB_NAME")
}
