package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Log.Level)
	assert.Equal(t, 375000, cfg.Map.Scale)
	assert.Equal(t, "Map 1", cfg.Document.MapLabel)
	assert.Equal(t, 3, cfg.Request.Retries)
	assert.Equal(t, Day, time.Duration(cfg.Scheduler.Interval))
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlaspdf.yaml")
	content := `
log:
  level: DEBUG
scheduler:
  interval: 6h
map:
  scale: 500000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.Equal(t, 6*time.Hour, time.Duration(cfg.Scheduler.Interval))
	assert.Equal(t, 500000, cfg.Map.Scale)
	// Untouched sections keep defaults.
	assert.Equal(t, "Map 1", cfg.Document.MapLabel)
}

func TestLoad_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero retries", "request:\n  retries: 0\n"},
		{"negative scale", "map:\n  scale: -1\n"},
		{"empty provider", "map:\n  provider_url: \"\"\n"},
		{"zero interval", "scheduler:\n  interval: 0s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configs", "atlaspdf.yaml")

	require.NoError(t, GenerateDefault(path))
	require.FileExists(t, path)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Map.ProviderURL, cfg.Map.ProviderURL)

	// Second call must not clobber an existing file.
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: ERROR\n"), 0o644))
	require.NoError(t, GenerateDefault(path))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ERROR", cfg.Log.Level)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"90s", 90 * time.Second, false},
		{"1d", Day, false},
		{"2d12h", 60 * time.Hour, false},
		{"1w", Week, false},
		{"", 0, false},
		{"bogus", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
