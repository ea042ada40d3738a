package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "odatactl.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[instance]
base_url = "https://org.crm.dynamics.com"
token_env = "ODATACTL_TEST_TOKEN"

[http]
timeout = "10s"
max_batch_size = 200

[log]
level = "debug"
format = "json"
`)
	t.Setenv("ODATACTL_TEST_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://org.crm.dynamics.com", cfg.Instance.BaseURL)
	assert.Equal(t, "/api/data/v9.2", cfg.Instance.APIPath, "unset keys keep defaults")
	assert.Equal(t, 200, cfg.HTTP.MaxBatchSize)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "from-env", cfg.Instance.BearerToken())

	timeout, err := cfg.HTTP.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, `
[instance]
base_url = "https://file.example.com"
token = "file-token"
`)
	t.Setenv("ODATACTL_INSTANCE_BASE_URL", "https://env.example.com")
	t.Setenv("ODATACTL_HTTP_MAX_BATCH_SIZE", "50")
	t.Setenv("ODATACTL_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Instance.BaseURL)
	assert.Equal(t, 50, cfg.HTTP.MaxBatchSize)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "file-token", cfg.Instance.BearerToken())
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("ODATACTL_INSTANCE_BASE_URL", "https://env.example.com")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.HTTP.MaxBatchSize)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "missing base url", content: `[log]
level = "info"`, want: "instance.base_url is required"},
		{name: "relative base url", content: `[instance]
base_url = "org.example.com"`, want: "not an absolute URL"},
		{name: "bad timeout", content: `[instance]
base_url = "https://org.example.com"
[http]
timeout = "soon"`, want: "http.timeout"},
		{name: "zero batch size", content: `[instance]
base_url = "https://org.example.com"
[http]
max_batch_size = 0`, want: "http.max_batch_size"},
		{name: "bad format", content: `[instance]
base_url = "https://org.example.com"
[log]
format = "xml"`, want: "log.format"},
		{name: "invalid toml", content: `[instance`, want: "config parse failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorContains(t, err, "config not found")
}

func TestWriteRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Instance.BaseURL = "https://org.example.com"
	cfg.HTTP.PageSize = 500

	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, Write(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
