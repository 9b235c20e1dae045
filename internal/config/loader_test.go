package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolatedLoader(t *testing.T) *Loader {
	t.Helper()
	return NewLoader().WithSearchDirs(t.TempDir())
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := isolatedLoader(t).Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "auto", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.State.Backend)
	assert.Equal(t, filepath.Join(".teamflow", "state", "teamflow.db"), cfg.State.Path)
	assert.False(t, cfg.Nodes.StrictAgentTypes)
	assert.Equal(t, 2*time.Minute, cfg.Run.NodeTimeout)
	assert.Equal(t, 1, cfg.Run.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Run.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Run.MaxDelay)
	assert.Equal(t, "local", cfg.Capability.Mode)
	assert.Equal(t, 90*time.Second, cfg.Capability.Timeout)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 100, cfg.Events.BufferSize)

	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoader_EnvOverride(t *testing.T) {
	t.Setenv("TEAMFLOW_LOG_LEVEL", "debug")
	t.Setenv("TEAMFLOW_RUN_NODE_TIMEOUT", "45s")
	t.Setenv("TEAMFLOW_RUN_MAX_ATTEMPTS", "3")
	t.Setenv("TEAMFLOW_CAPABILITY_TOKEN", "secret")

	cfg, err := isolatedLoader(t).Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 45*time.Second, cfg.Run.NodeTimeout)
	assert.Equal(t, 3, cfg.Run.MaxAttempts)
	assert.Equal(t, "secret", cfg.Capability.Token)
}

func TestLoader_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	content := `
log:
  level: warn
  format: json
state:
  backend: json
  path: /tmp/teamflow-graphs
run:
  node_timeout: 0s
capability:
  mode: http
  base_url: https://agents.example.com
server:
  port: 9090
  cors_origins: ["*"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	loader := isolatedLoader(t).WithConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, path, loader.ConfigFile())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "json", cfg.State.Backend)
	assert.Equal(t, time.Duration(0), cfg.Run.NodeTimeout)
	assert.Equal(t, "https://agents.example.com", cfg.Capability.BaseURL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	// Unset keys keep their defaults.
	assert.Equal(t, 100, cfg.Events.BufferSize)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoader_SearchDirsFirstFoundWins(t *testing.T) {
	project := t.TempDir()
	user := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "config.yaml"), []byte("log:\n  level: error\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(user, "config.yaml"), []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := NewLoader().WithSearchDirs(project, user).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoader_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 7000\n"), 0o600))
	t.Setenv("TEAMFLOW_SERVER_PORT", "7100")

	cfg, err := NewLoader().WithSearchDirs(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
}

func TestLoader_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unclosed"), 0o600))

	_, err := isolatedLoader(t).WithConfigFile(path).Load()
	assert.Error(t, err)
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	_, err := isolatedLoader(t).WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.Error(t, err)
}

func TestLoader_AccessorsAndFlagOverride(t *testing.T) {
	loader := isolatedLoader(t)
	loader.Set("log.level", "error")
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	assert.True(t, loader.IsSet("log.level"))
	assert.Equal(t, "error", loader.Get("log.level"))
	assert.Contains(t, loader.AllSettings(), "server")
	assert.NotNil(t, loader.Viper())
}

func TestDefaultConfigYAML_MatchesLoaderDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(DefaultConfigYAML), 0o600))

	fromFile, err := isolatedLoader(t).WithConfigFile(path).Load()
	require.NoError(t, err)
	defaults, err := isolatedLoader(t).Load()
	require.NoError(t, err)

	assert.Equal(t, defaults, fromFile)
}
