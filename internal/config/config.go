package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"lootforge/internal/editor"
	"lootforge/internal/export"
)

const (
	SessionFile     = "file"
	SessionSQLite   = "sqlite"
	SessionPostgres = "postgres"

	ExportDisk   = "disk"
	ExportS3     = "s3"
	ExportMemory = "memory"
)

type Config struct {
	DataDir   string `validate:"required"`
	LinkRules string

	Session SessionConfig
	Export  ExportConfig

	AuditCap   int    `validate:"gte=1"`
	ParseCache int    `validate:"gte=1"`
	LogLevel   string `validate:"oneof=debug info warn error"`
	Preview    bool
}

type SessionConfig struct {
	Driver string `validate:"oneof=file sqlite postgres"`
	// Path is the JSON file or SQLite database; DSN is used for PostgreSQL.
	Path string `validate:"required_unless=Driver postgres"`
	DSN  string `validate:"required_if=Driver postgres"`
}

type ExportConfig struct {
	Target string          `validate:"oneof=disk s3 memory"`
	Dir    string          `validate:"required_if=Target disk"`
	S3     export.S3Config `validate:"-"`
}

var validate = validator.New()

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key string) string { return strings.TrimSpace(getenv(key)) }

	cfg := &Config{
		DataDir:    firstNonEmpty(get("LOOTFORGE_DATA_DIR"), "."),
		LinkRules:  get("LOOTFORGE_LINK_RULES"),
		AuditCap:   intOr(get("LOOTFORGE_AUDIT_CAP"), editor.DefaultAuditCap),
		ParseCache: intOr(get("LOOTFORGE_PARSE_CACHE"), 512),
		LogLevel:   strings.ToLower(firstNonEmpty(get("LOOTFORGE_LOG_LEVEL"), "info")),
		Preview:    boolOr(get("LOOTFORGE_PREVIEW"), false),
	}
	cfg.Session = SessionConfig{
		Path: firstNonEmpty(get("LOOTFORGE_SESSION"), filepath.Join(".lootforge", "session.json")),
		DSN:  get("LOOTFORGE_SESSION_DSN"),
	}
	cfg.Session.Driver = strings.ToLower(firstNonEmpty(get("LOOTFORGE_SESSION_DRIVER"), SessionDriverFor(cfg.Session.Path, cfg.Session.DSN)))
	cfg.Export = ExportConfig{
		Target: strings.ToLower(firstNonEmpty(get("LOOTFORGE_EXPORT_TARGET"), ExportDisk)),
		Dir:    firstNonEmpty(get("LOOTFORGE_EXPORT_DIR"), "export"),
		S3: export.S3Config{
			Endpoint:  get("EXPORT_S3_ENDPOINT"),
			Region:    firstNonEmpty(get("EXPORT_S3_REGION"), "us-east-1"),
			AccessKey: firstNonEmpty(get("EXPORT_S3_ACCESS_KEY"), get("MINIO_ROOT_USER")),
			SecretKey: firstNonEmpty(get("EXPORT_S3_SECRET_KEY"), get("MINIO_ROOT_PASSWORD")),
			Bucket:    firstNonEmpty(get("EXPORT_S3_BUCKET"), "lootforge-exports"),
			Prefix:    get("EXPORT_S3_PREFIX"),
			UseSSL:    boolOr(get("EXPORT_S3_USE_SSL"), true),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags, plus the S3 settings when S3 is the export target.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Export.Target == ExportS3 {
		if err := validate.Struct(c.Export.S3); err != nil {
			return fmt.Errorf("invalid s3 export config: %w", err)
		}
	}
	return nil
}

// SessionDriverFor guesses the backend: a DSN means PostgreSQL, a .db/.sqlite
// path means SQLite, anything else a JSON file.
func SessionDriverFor(path, dsn string) string {
	if dsn != "" {
		return SessionPostgres
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return SessionSQLite
	}
	return SessionFile
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func intOr(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func boolOr(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
