package rasteriser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvAPIUsername, "")
	t.Setenv(EnvAPIPassword, "")
	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rasteriser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  url: http://localhost:8080/api/data
  username: file-user
  password: file-pass
data_dir: /srv/rasteriser
resolve_timeout: 30s
workers: 4
log:
  level: debug
  encoding: json
`), 0o644))

	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvAPIUsername, "env-user")
	t.Setenv(EnvAPIPassword, "")
	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/data", s.API.URL)
	assert.Equal(t, "env-user", s.API.Username, "environment wins")
	assert.Equal(t, "file-pass", s.API.Password)
	assert.Equal(t, "/srv/rasteriser", s.DataDir)
	assert.Equal(t, 30*time.Second, s.ResolveTimeout)
	assert.Equal(t, 4, s.Workers)
	assert.Equal(t, BoundaryYear, s.BoundaryYear)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Encoding)
}

func TestLoadSettingsErrors(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [1, 2"), 0o644))
	_, err = LoadSettings(path)
	assert.Error(t, err)
}

func TestLoadSettingsClampsTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rasteriser.yaml")
	require.NoError(t, os.WriteFile(path, []byte("resolve_timeout: -1s\nboundary_year: 0\n"), 0o644))
	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultResolveTimeout, s.ResolveTimeout)
	assert.Equal(t, BoundaryYear, s.BoundaryYear)
}
