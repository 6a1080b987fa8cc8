package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"jwt_secret": "test-secret",
		"database": {"dsn": "postgres://localhost/docuchat"},
		"ai": {"providers": [{"provider": "gemini", "model": "gemini-2.0-flash"}]}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 72, cfg.JWTTTLHours)
	require.Equal(t, "local", cfg.FileStore.Type)
	require.Equal(t, 4, cfg.Ingest.Workers)
	require.Equal(t, 1000, cfg.Ingest.TargetSize)
	require.NotNil(t, cfg.Ingest.Overlap)
	require.Equal(t, 100, *cfg.Ingest.Overlap)
	require.Equal(t, 5, cfg.Chat.TopK)
}

func TestLoadExplicitZeroOverlap(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"jwt_secret": "test-secret",
		"database": {"dsn": "postgres://localhost/docuchat"},
		"ai": {"providers": [{"provider": "gemini", "model": "gemini-2.0-flash"}]},
		"ingest": {"overlap": 0}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Ingest.Overlap)
	require.Equal(t, 0, *cfg.Ingest.Overlap, "explicit zero overlap must survive defaulting")
}

func TestLoadOverlapExceedsTargetSize(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"jwt_secret": "test-secret",
		"database": {"dsn": "postgres://localhost/docuchat"},
		"ai": {"providers": [{"provider": "gemini", "model": "gemini-2.0-flash"}]},
		"ingest": {"target_size": 200, "overlap": 200}
	}`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ingest.overlap")
}

func TestLoadMissingRequiredFields(t *testing.T) {
	for name, body := range map[string]string{
		"no jwt secret": `{"port": 8080, "database": {"dsn": "x"}, "ai": {"providers": [{"provider": "gemini"}]}}`,
		"no port":       `{"jwt_secret": "s", "database": {"dsn": "x"}, "ai": {"providers": [{"provider": "gemini"}]}}`,
		"no database":   `{"port": 8080, "jwt_secret": "s", "ai": {"providers": [{"provider": "gemini"}]}}`,
		"no providers":  `{"port": 8080, "jwt_secret": "s", "database": {"dsn": "x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
