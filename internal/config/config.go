package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/presentation-params/pkg/icron"
	"github.com/MimeLyc/presentation-params/pkg/log"
)

// Config holds the configuration for the params server and the sync client.
// Values are resolved in order: built-in defaults, the YAML file named by
// PARAMS_CONFIG_FILE, environment variables, then Options.
//
// Environment Variables:
// Server:
// - HTTP_ADDR: listen address (default: ":" + PORT)
// - PORT: listen port when HTTP_ADDR is unset (default: 8000)
// - STATIC_DIR: directory served for non-API requests (default: .)
// - ALLOW_ORIGIN: Access-Control-Allow-Origin value (default: *)
// - PARAMS_DIR: directory holding the params document (default: STATIC_DIR)
// - PARAMS_FILE: params document file name (default: presentation_params.json)
//
// Sync client:
// - SYNC_SERVER_URL: base URL of the params server (default: http://localhost:8000)
// - SYNC_RETRY_SCHEDULE: cron spec for retrying a pending save (default: @every 5s)
// - SYNC_PUSH_TIMEOUT: timeout of one push, Go duration (default: 10s)
// - SYNC_CACHE_DB: SQLite file for the local cache (default: paramsync.db)
//
// Catalog:
// - CATALOG_ROOT: root that image directory keys are relative to (default: .)
// - CATALOG_DIRS: comma separated image directories to seed
// - CATALOG_LOCALE: collation locale for catalog ordering (default: zh)
//
// - LOG_LEVEL: debug, info, warn, error (default: info)
type Config struct {
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Sync    SyncConfig    `json:"sync" yaml:"sync"`
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

type HTTPConfig struct {
	Addr        string `json:"addr" yaml:"addr"`
	StaticDir   string `json:"static_dir" yaml:"static_dir"`
	AllowOrigin string `json:"allow_origin" yaml:"allow_origin"`
}

type StoreConfig struct {
	Dir      string `json:"dir" yaml:"dir"`
	FileName string `json:"file_name" yaml:"file_name"`
}

type SyncConfig struct {
	ServerURL     string        `json:"server_url" yaml:"server_url"`
	RetrySchedule string        `json:"retry_schedule" yaml:"retry_schedule"`
	PushTimeout   time.Duration `json:"push_timeout" yaml:"push_timeout"`
	CacheDB       string        `json:"cache_db" yaml:"cache_db"`
}

type CatalogConfig struct {
	Root   string   `json:"root" yaml:"root"`
	Dirs   []string `json:"dirs" yaml:"dirs"`
	Locale string   `json:"locale" yaml:"locale"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// Option is a function type for configuring Config
type Option func(*Config)

func WithServerURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.Sync.ServerURL = url
		}
	}
}

func WithCacheDB(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.Sync.CacheDB = path
		}
	}
}

func WithCatalogDirs(dirs ...string) Option {
	return func(c *Config) {
		if len(dirs) > 0 {
			c.Catalog.Dirs = dirs
		}
	}
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:        ":8000",
			StaticDir:   ".",
			AllowOrigin: "*",
		},
		Store: StoreConfig{
			FileName: "presentation_params.json",
		},
		Sync: SyncConfig{
			ServerURL:     "http://localhost:8000",
			RetrySchedule: "@every 5s",
			PushTimeout:   10 * time.Second,
			CacheDB:       "paramsync.db",
		},
		Catalog: CatalogConfig{
			Root:   ".",
			Locale: "zh",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := defaults()

	if path := getEnvString("PARAMS_CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path, config); err != nil {
			return nil, err
		}
	}

	addr := config.HTTP.Addr
	if port := getEnvInt("PORT", 0); port > 0 {
		addr = ":" + strconv.Itoa(port)
	}
	config.HTTP.Addr = getEnvString("HTTP_ADDR", addr)
	config.HTTP.StaticDir = getEnvString("STATIC_DIR", config.HTTP.StaticDir)
	config.HTTP.AllowOrigin = getEnvString("ALLOW_ORIGIN", config.HTTP.AllowOrigin)
	config.Store.Dir = getEnvString("PARAMS_DIR", config.Store.Dir)
	config.Store.FileName = getEnvString("PARAMS_FILE", config.Store.FileName)
	config.Sync.ServerURL = getEnvString("SYNC_SERVER_URL", config.Sync.ServerURL)
	config.Sync.RetrySchedule = getEnvString("SYNC_RETRY_SCHEDULE", config.Sync.RetrySchedule)
	config.Sync.PushTimeout = getEnvDuration("SYNC_PUSH_TIMEOUT", config.Sync.PushTimeout)
	config.Sync.CacheDB = getEnvString("SYNC_CACHE_DB", config.Sync.CacheDB)
	config.Catalog.Root = getEnvString("CATALOG_ROOT", config.Catalog.Root)
	config.Catalog.Dirs = getEnvList("CATALOG_DIRS", config.Catalog.Dirs)
	config.Catalog.Locale = getEnvString("CATALOG_LOCALE", config.Catalog.Locale)
	config.Log.Level = getEnvString("LOG_LEVEL", config.Log.Level)

	for _, opt := range opts {
		opt(config)
	}

	if config.Store.Dir == "" {
		config.Store.Dir = config.HTTP.StaticDir
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Debug("Config: %+v", *config)
	return config, nil
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// DocumentPath is where the server keeps the params document.
func (c *Config) DocumentPath() string {
	return filepath.Join(c.Store.Dir, c.Store.FileName)
}

// LocaleTag returns the catalog collation locale, falling back to Chinese.
func (c *Config) LocaleTag() language.Tag {
	tag, err := language.Parse(c.Catalog.Locale)
	if err != nil {
		return language.Chinese
	}
	return tag
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.Store.FileName == "" || strings.ContainsAny(c.Store.FileName, `/\`) {
		return fmt.Errorf("PARAMS_FILE must be a plain file name, got %q", c.Store.FileName)
	}
	if _, err := icron.ParseSchedule(c.Sync.RetrySchedule); err != nil {
		return fmt.Errorf("invalid SYNC_RETRY_SCHEDULE: %w", err)
	}
	if c.Sync.PushTimeout <= 0 {
		return fmt.Errorf("SYNC_PUSH_TIMEOUT must be positive")
	}
	if _, err := language.Parse(c.Catalog.Locale); err != nil {
		return fmt.Errorf("invalid CATALOG_LOCALE: %w", err)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("10s") or whole seconds ("10").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
