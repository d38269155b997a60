package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lherron/importlink/internal/identity"
	"github.com/lherron/importlink/internal/policy"
	"github.com/lherron/importlink/internal/relation"
)

// Config represents the application configuration
type Config struct {
	DBPath    string `yaml:"db_path"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	IdentityBackend string   `yaml:"identity_backend"`
	RedisURL        string   `yaml:"redis_url"`
	EtcdEndpoints   []string `yaml:"etcd_endpoints"`

	RelationsFile    string            `yaml:"relations_file"`
	ForceImport      map[string]string `yaml:"force_import"`
	DeleteMismatched bool              `yaml:"delete_mismatched"`
	StripEmpty       bool              `yaml:"strip_empty"`
	EmptyExempt      []string          `yaml:"empty_exempt"`

	RetryUnresolved bool `yaml:"retry_unresolved"`
	Jobs            int  `yaml:"jobs"`

	WebhookURLs []string `yaml:"webhook_urls"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "text",
		IdentityBackend:  identity.BackendAttribute,
		DeleteMismatched: true,
		StripEmpty:       true,
	}
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/importlink/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := Default()

	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	// YAML config is optional
	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.DBPath == "" {
		if _, err := os.Stat(".importlink/importlink.db"); err == nil {
			cfg.DBPath = ".importlink/importlink.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "importlink", "importlink.db")
		}
	}

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) error {
	if dbPath := getEnvOrFile("IMPORTLINK_DB_PATH", "IMPORTLINK_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if v := os.Getenv("IMPORTLINK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("IMPORTLINK_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("IMPORTLINK_IDENTITY_BACKEND"); v != "" {
		cfg.IdentityBackend = v
	}
	if v := getEnvOrFile("IMPORTLINK_REDIS_URL", "IMPORTLINK_REDIS_URL_FILE"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("IMPORTLINK_ETCD_ENDPOINTS"); v != "" {
		cfg.EtcdEndpoints = splitList(v)
	}
	if v := os.Getenv("IMPORTLINK_RELATIONS_FILE"); v != "" {
		cfg.RelationsFile = v
	}
	if v := os.Getenv("IMPORTLINK_EMPTY_EXEMPT"); v != "" {
		cfg.EmptyExempt = splitList(v)
	}
	if v := os.Getenv("IMPORTLINK_WEBHOOK_URLS"); v != "" {
		cfg.WebhookURLs = splitList(v)
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"IMPORTLINK_DELETE_MISMATCHED", &cfg.DeleteMismatched},
		{"IMPORTLINK_STRIP_EMPTY", &cfg.StripEmpty},
		{"IMPORTLINK_RETRY_UNRESOLVED", &cfg.RetryUnresolved},
	}
	for _, b := range bools {
		v := os.Getenv(b.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.env, err)
		}
		*b.dst = parsed
	}

	if v := os.Getenv("IMPORTLINK_JOBS"); v != "" {
		jobs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IMPORTLINK_JOBS: %w", err)
		}
		cfg.Jobs = jobs
	}
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.IdentityBackend {
	case identity.BackendAttribute, identity.BackendRedis, identity.BackendEtcd:
	default:
		return fmt.Errorf("identity_backend: unknown backend %q", c.IdentityBackend)
	}
	if c.IdentityBackend == identity.BackendRedis && c.RedisURL == "" {
		return fmt.Errorf("identity_backend redis requires redis_url")
	}
	if c.IdentityBackend == identity.BackendEtcd && len(c.EtcdEndpoints) == 0 {
		return fmt.Errorf("identity_backend etcd requires etcd_endpoints")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format: want text or json, got %q", c.LogFormat)
	}
	if c.Jobs < 0 {
		return fmt.Errorf("jobs cannot be negative")
	}
	return nil
}

// Policy compiles the policy section.
func (c *Config) Policy(logger *slog.Logger) (*policy.Rules, error) {
	return policy.New(policy.Config{
		ForceImport:      c.ForceImport,
		DeleteMismatched: c.DeleteMismatched,
		StripEmpty:       c.StripEmpty,
		EmptyExempt:      c.EmptyExempt,
	}, logger)
}

// Relations returns the relation table, merged with relations_file when set.
func (c *Config) Relations() (*relation.Table, error) {
	if c.RelationsFile == "" {
		return relation.Default(), nil
	}
	return relation.Load(c.RelationsFile)
}

// IdentityOptions selects the identity backend.
func (c *Config) IdentityOptions() identity.Options {
	return identity.Options{
		Backend: c.IdentityBackend,
		Redis:   identity.RedisOptions{URL: c.RedisURL},
		Etcd:    identity.EtcdOptions{Endpoints: c.EtcdEndpoints},
	}
}

// Logger builds the structured logger writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// loadYAMLConfig loads configuration from ~/.config/importlink/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "importlink", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", configPath, err)
	}
	return nil
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		if dir == homeDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
