package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  name: diagnostics-server
database:
  dsn: postgres://localhost/logdiag
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 2, cfg.Ingest.Workers)
	require.Equal(t, int64(50<<20), cfg.Ingest.MaxUploadSize)
	require.Equal(t, "logfile.parse", cfg.Ingest.QueueSubject)
	require.Equal(t, "parsers", cfg.Ingest.QueueGroup)
}

func TestLoadWorkerCap(t *testing.T) {
	path := writeConfig(t, `
ingest:
  workers: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Ingest.Workers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/db")
	t.Setenv("LOG_AES_KEY", "000102030405060708090a0b0c0d0e0f")
	t.Setenv("LOG_AES_IV", "0f0e0d0c0b0a09080706050403020100")

	path := writeConfig(t, `
database:
  dsn: postgres://file/db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://override/db", cfg.Database.DSN)

	key, err := cfg.Decoder.KeyBytes()
	require.NoError(t, err)
	require.Len(t, key, 16)
}

func TestLoadRejectsHalfConfiguredDecoder(t *testing.T) {
	path := writeConfig(t, `
decoder:
  aes_key: "000102030405060708090a0b0c0d0e0f"
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestDecoderRejectsShortKey(t *testing.T) {
	cfg := DecoderConfig{AESKey: "0001"}
	_, err := cfg.KeyBytes()
	require.Error(t, err)
}
