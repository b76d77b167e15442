// Package config loads Aphrodite's bootstrap configuration: the handful of
// settings needed before the Config Store (internal/configstore) can open
// its own database — storage paths, the catalog connection, and the server
// listener. Everything else (API keys, badge styles, schedules) lives in the
// persisted, runtime-editable Config Store.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/aphrodite-badges/aphrodite/internal/apperr"
)

// Config is the bootstrap configuration for a single Aphrodite process.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Storage    StorageConfig    `koanf:"storage"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	JobEngine  JobEngineConfig  `koanf:"job_engine"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Control    ControlConfig    `koanf:"control"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

type StorageConfig struct {
	// DataDir holds the DuckDB database file and the posters/ tree.
	DataDir string `koanf:"data_dir"`
	// DatabaseFile is relative to DataDir unless absolute.
	DatabaseFile string `koanf:"database_file"`
}

type CatalogConfig struct {
	BaseURL string  `koanf:"base_url"`
	APIKey  string  `koanf:"api_key"`
	UserID  string  `koanf:"user_id"`
	Tag     string  `koanf:"tag"`
	RPS     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

type JobEngineConfig struct {
	Workers       int `koanf:"workers"`
	QueueSize     int `koanf:"queue_size"`
	MaxAttempts   int `koanf:"max_attempts"`
	ItemTimeoutS  int `koanf:"item_timeout_seconds"`
}

type SchedulerConfig struct {
	CheckIntervalS int `koanf:"check_interval_seconds"`
}

type ControlConfig struct {
	ListenAddr  string   `koanf:"listen_addr"`
	CORSOrigins []string `koanf:"cors_origins"`
}

// DefaultConfig mirrors the shape of a freshly installed Aphrodite instance.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "json", Caller: false},
		Storage: StorageConfig{DataDir: "./data", DatabaseFile: "aphrodite.duckdb"},
		Catalog: CatalogConfig{Tag: "aphrodite-overlay", RPS: 5, Burst: 10},
		JobEngine: JobEngineConfig{
			Workers:      4,
			QueueSize:    256,
			MaxAttempts:  3,
			ItemTimeoutS: 60,
		},
		Scheduler: SchedulerConfig{CheckIntervalS: 60},
		Control:   ControlConfig{ListenAddr: ":2424"},
	}
}

// envTransform maps APHRODITE_FOO_BAR style env vars onto the koanf
// dot-path foo.bar, matching the bootstrap config's field names.
var envTransform = map[string]string{
	"APHRODITE_LOGGING_LEVEL":           "logging.level",
	"APHRODITE_LOGGING_FORMAT":          "logging.format",
	"APHRODITE_LOGGING_CALLER":          "logging.caller",
	"APHRODITE_STORAGE_DATA_DIR":        "storage.data_dir",
	"APHRODITE_STORAGE_DATABASE_FILE":   "storage.database_file",
	"APHRODITE_CATALOG_BASE_URL":        "catalog.base_url",
	"APHRODITE_CATALOG_API_KEY":         "catalog.api_key",
	"APHRODITE_CATALOG_USER_ID":         "catalog.user_id",
	"APHRODITE_CATALOG_TAG":             "catalog.tag",
	"APHRODITE_JOB_ENGINE_WORKERS":      "job_engine.workers",
	"APHRODITE_JOB_ENGINE_QUEUE_SIZE":   "job_engine.queue_size",
	"APHRODITE_JOB_ENGINE_MAX_ATTEMPTS": "job_engine.max_attempts",
	"APHRODITE_JOB_ENGINE_ITEM_TIMEOUT_SECONDS": "job_engine.item_timeout_seconds",
	"APHRODITE_SCHEDULER_CHECK_INTERVAL_SECONDS": "scheduler.check_interval_seconds",
	"APHRODITE_CONTROL_LISTEN_ADDR":              "control.listen_addr",
}

func envTransformFunc(key string) string {
	if mapped, ok := envTransform[key]; ok {
		return mapped
	}
	return ""
}

// Load builds the bootstrap Config by layering, in increasing precedence:
// compiled-in defaults, an optional YAML file, then environment variables.
func Load(configPath string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, apperr.New("config.Load", apperr.ConfigInvalid, err)
	}

	if configPath == "" {
		configPath = findConfigFile()
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return Config{}, apperr.New("config.Load", apperr.ConfigInvalid, fmt.Errorf("reading %s: %w", configPath, err))
			}
		}
	}

	if err := k.Load(env.Provider("APHRODITE_", ".", envTransformFunc), nil); err != nil {
		return Config{}, apperr.New("config.Load", apperr.ConfigInvalid, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, apperr.New("config.Load", apperr.ConfigInvalid, err)
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Storage.DataDir == "" {
		return apperr.New("config.validate", apperr.ConfigMissing, fmt.Errorf("storage.data_dir is required"))
	}
	if cfg.JobEngine.Workers <= 0 {
		return apperr.New("config.validate", apperr.ConfigInvalid, fmt.Errorf("job_engine.workers must be positive"))
	}
	return nil
}

func findConfigFile() string {
	candidates := []string{
		"aphrodite.yaml",
		"aphrodite.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "aphrodite", "aphrodite.yaml"),
		"/etc/aphrodite/aphrodite.yaml",
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// DatabasePath resolves the configured database file to an absolute path
// rooted at DataDir.
func (c Config) DatabasePath() string {
	if filepath.IsAbs(c.Storage.DatabaseFile) {
		return c.Storage.DatabaseFile
	}
	return filepath.Join(c.Storage.DataDir, c.Storage.DatabaseFile)
}

// PosterRoot is the root of the three poster buckets.
func (c Config) PosterRoot() string {
	return filepath.Join(c.Storage.DataDir, "posters")
}

// AssetsRoot is the root directory badge overlay images are loaded from.
func (c Config) AssetsRoot() string {
	return filepath.Join(c.Storage.DataDir, "assets")
}

// FontsRoot is the root directory badge text fonts are searched in.
func (c Config) FontsRoot() string {
	return filepath.Join(c.Storage.DataDir, "fonts")
}
