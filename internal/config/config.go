// Package config provides configuration management for intervue.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultWorkerPort is the default HTTP port of the worker.
	DefaultWorkerPort = 37790
	// DefaultWorkerHost binds the worker to loopback only.
	DefaultWorkerHost = "127.0.0.1"
	// DefaultModel is the default generation model.
	DefaultModel = "gemini-2.5-flash"
	// DefaultNamespace is the persistence key of the roster.
	DefaultNamespace = "intervue:roster"

	DefaultTickIntervalMS     = 100
	DefaultGenerationTimeout  = 30
	DefaultResumeTokenBudget  = 3000
	DefaultMaxConns           = 4
	DefaultLogLevel           = "info"
	dataDirName               = ".intervue"
	settingsFileName          = "settings.json"
	dbFileName                = "intervue.db"
	stateDirName              = "state"
	envPrefix                 = "INTERVUE_"
	geminiKeyFallbackVariable = "GEMINI_API_KEY"
)

// Storage drivers accepted by StorageDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
	DriverMemory   = "memory"
)

// StorageDrivers lists every accepted storage driver.
var StorageDrivers = []string{DriverSQLite, DriverPostgres, DriverFile, DriverMemory}

// Config holds all runtime settings.
type Config struct {
	WorkerHost        string   `json:"INTERVUE_WORKER_HOST"`
	Model             string   `json:"INTERVUE_MODEL"`
	GeminiAPIKey      string   `json:"-"`
	StorageDriver     string   `json:"INTERVUE_STORAGE_DRIVER"`
	PostgresDSN       string   `json:"INTERVUE_POSTGRES_DSN,omitempty"`
	Namespace         string   `json:"INTERVUE_NAMESPACE"`
	QuestionBankPath  string   `json:"INTERVUE_QUESTION_BANK,omitempty"`
	LogLevel          string   `json:"INTERVUE_LOG_LEVEL"`
	CORSOrigins       []string `json:"-"`
	WorkerPort        int      `json:"INTERVUE_WORKER_PORT"`
	MaxConns          int      `json:"INTERVUE_MAX_CONNS"`
	TickIntervalMS    int      `json:"INTERVUE_TICK_INTERVAL_MS"`
	GenerationTimeout int      `json:"INTERVUE_GENERATION_TIMEOUT"`
	ResumeTokenBudget int      `json:"INTERVUE_RESUME_TOKEN_BUDGET"`
	WatchState        bool     `json:"INTERVUE_WATCH_STATE"`
}

var (
	globalOnce sync.Once
	global     *Config
)

// Default returns the configuration used when no settings exist.
func Default() *Config {
	return &Config{
		WorkerHost:        DefaultWorkerHost,
		WorkerPort:        DefaultWorkerPort,
		Model:             DefaultModel,
		StorageDriver:     DriverSQLite,
		Namespace:         DefaultNamespace,
		LogLevel:          DefaultLogLevel,
		CORSOrigins:       []string{"*"},
		MaxConns:          DefaultMaxConns,
		TickIntervalMS:    DefaultTickIntervalMS,
		GenerationTimeout: DefaultGenerationTimeout,
		ResumeTokenBudget: DefaultResumeTokenBudget,
		WatchState:        true,
	}
}

// DataDir returns the data directory, ~/.intervue unless INTERVUE_DATA_DIR is set.
func DataDir() string {
	if dir := os.Getenv(envPrefix + "DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, dataDirName)
}

// DBPath returns the SQLite database path.
func DBPath() string {
	return filepath.Join(DataDir(), dbFileName)
}

// StatePath returns the directory used by the file storage driver.
func StatePath() string {
	return filepath.Join(DataDir(), stateDirName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), settingsFileName)
}

// EnsureDataDir creates the data directory if needed.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// EnsureAll creates the data directory and the default settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads the settings file and applies environment overrides.
// A missing or unparsable settings file yields defaults.
func Load() (*Config, error) {
	cfg := Default()

	settings := map[string]any{}
	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			log.Warn().Err(err).Str("path", SettingsPath()).Msg("Invalid settings file, using defaults")
			settings = map[string]any{}
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			return v, true
		}
		raw, ok := settings[envPrefix+key]
		if !ok || raw == nil {
			return "", false
		}
		switch v := raw.(type) {
		case string:
			return v, true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		case bool:
			return strconv.FormatBool(v), true
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				if s, ok := p.(string); ok {
					parts = append(parts, s)
				}
			}
			return strings.Join(parts, ","), true
		}
		return "", false
	}

	setString(lookup, "WORKER_HOST", &cfg.WorkerHost)
	setString(lookup, "MODEL", &cfg.Model)
	setString(lookup, "GEMINI_API_KEY", &cfg.GeminiAPIKey)
	setString(lookup, "STORAGE_DRIVER", &cfg.StorageDriver)
	setString(lookup, "POSTGRES_DSN", &cfg.PostgresDSN)
	setString(lookup, "NAMESPACE", &cfg.Namespace)
	setString(lookup, "QUESTION_BANK", &cfg.QuestionBankPath)
	setString(lookup, "LOG_LEVEL", &cfg.LogLevel)
	setInt(lookup, "WORKER_PORT", &cfg.WorkerPort)
	setInt(lookup, "MAX_CONNS", &cfg.MaxConns)
	setInt(lookup, "TICK_INTERVAL_MS", &cfg.TickIntervalMS)
	setInt(lookup, "GENERATION_TIMEOUT", &cfg.GenerationTimeout)
	setInt(lookup, "RESUME_TOKEN_BUDGET", &cfg.ResumeTokenBudget)
	setBool(lookup, "WATCH_STATE", &cfg.WatchState)
	if v, ok := lookup("CORS_ORIGINS"); ok {
		if origins := splitTrim(v); len(origins) > 0 {
			cfg.CORSOrigins = origins
		}
	}

	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv(geminiKeyFallbackVariable)
	}

	cfg.normalize()
	return cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// GetWorkerPort returns INTERVUE_WORKER_PORT when it is a valid port,
// otherwise the configured port.
func GetWorkerPort() int {
	if v := os.Getenv(envPrefix + "WORKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port < 65536 {
			return port
		}
	}
	return Get().WorkerPort
}

// TickInterval returns the display tick as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// GenerationTimeoutDuration returns the per-call generation timeout.
func (c *Config) GenerationTimeoutDuration() time.Duration {
	return time.Duration(c.GenerationTimeout) * time.Second
}

// normalize replaces out-of-range values with defaults.
func (c *Config) normalize() {
	def := Default()
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	valid := false
	for _, d := range StorageDrivers {
		if c.StorageDriver == d {
			valid = true
			break
		}
	}
	if !valid {
		log.Warn().Str("driver", c.StorageDriver).Msg("Unknown storage driver, using sqlite")
		c.StorageDriver = DriverSQLite
	}
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		c.WorkerPort = def.WorkerPort
	}
	if c.MaxConns <= 0 {
		c.MaxConns = def.MaxConns
	}
	if c.TickIntervalMS < 10 {
		c.TickIntervalMS = def.TickIntervalMS
	}
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = def.GenerationTimeout
	}
	if c.ResumeTokenBudget <= 0 {
		c.ResumeTokenBudget = def.ResumeTokenBudget
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.Namespace == "" {
		c.Namespace = def.Namespace
	}
	if c.WorkerHost == "" {
		c.WorkerHost = def.WorkerHost
	}
}

func setString(lookup func(string) (string, bool), key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(lookup func(string) (string, bool), key string, dst *int) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("key", envPrefix+key).Str("value", v).Msg("Ignoring non-numeric setting")
		return
	}
	*dst = n
}

func setBool(lookup func(string) (string, bool), key string, dst *bool) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = b
}

// splitTrim splits a comma-separated list, dropping empty entries.
func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
