package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, ".", cfg.DataDir)
	assert.Equal(t, SessionFile, cfg.Session.Driver)
	assert.Equal(t, ExportDisk, cfg.Export.Target)
	assert.Equal(t, "export", cfg.Export.Dir)
	assert.Equal(t, 500, cfg.AuditCap)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.False(t, cfg.Preview)
}

func TestOverridesAndDriverDetection(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"LOOTFORGE_DATA_DIR":    "/packs/mine",
		"LOOTFORGE_SESSION":     "state/session.sqlite",
		"LOOTFORGE_AUDIT_CAP":   "20",
		"LOOTFORGE_LOG_LEVEL":   "DEBUG",
		"LOOTFORGE_PREVIEW":     "true",
		"LOOTFORGE_PARSE_CACHE": "not-a-number",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/packs/mine", cfg.DataDir)
	assert.Equal(t, SessionSQLite, cfg.Session.Driver)
	assert.Equal(t, 20, cfg.AuditCap)
	assert.Equal(t, 512, cfg.ParseCache)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.True(t, cfg.Preview)

	assert.Equal(t, SessionPostgres, SessionDriverFor("", "postgres://u@h/db"))
}

func TestValidation(t *testing.T) {
	_, err := FromEnv(env(map[string]string{"LOOTFORGE_LOG_LEVEL": "loud"}))
	assert.Error(t, err)

	_, err = FromEnv(env(map[string]string{"LOOTFORGE_AUDIT_CAP": "0"}))
	assert.Error(t, err)

	_, err = FromEnv(env(map[string]string{"LOOTFORGE_SESSION_DRIVER": "postgres"}))
	assert.Error(t, err, "postgres needs a dsn")

	_, err = FromEnv(env(map[string]string{"LOOTFORGE_EXPORT_TARGET": "s3"}))
	assert.Error(t, err, "s3 needs an endpoint and credentials")

	cfg, err := FromEnv(env(map[string]string{
		"LOOTFORGE_EXPORT_TARGET": "s3",
		"EXPORT_S3_ENDPOINT":      "localhost:9000",
		"MINIO_ROOT_USER":         "minio",
		"MINIO_ROOT_PASSWORD":     "secret",
	}))
	require.NoError(t, err)
	assert.Equal(t, "minio", cfg.Export.S3.AccessKey)
	assert.Equal(t, "lootforge-exports", cfg.Export.S3.Bucket)
}
