// Package config provides configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cristianoliveira/freshshell/internal/colors"
	"github.com/pelletier/go-toml/v2"
)

// File permission constants
const (
	// FileModeDir is the permission for directories (rwxr-xr-x)
	FileModeDir os.FileMode = 0755
	// FileModeFile is the permission for data files (rw-r--r--)
	FileModeFile os.FileMode = 0644

	// FileExtTOML is the file extension for TOML configuration files.
	FileExtTOML = ".toml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FRESHSHELL_"
	// EnvConfigPath points at an explicit configuration file.
	EnvConfigPath = EnvPrefix + "CONFIG_PATH"
)

var (
	config     map[string]string
	configMap  map[string]string
	configPath string
	mu         sync.RWMutex
)

func init() {
	initValidators()
}

// Load initializes configuration.
func Load() {
	mu.Lock()
	defer mu.Unlock()

	config = make(map[string]string)
	configMap = make(map[string]string)
	configPath = ""

	setDefaults()
	loadFromEnv()
	loadFromFile()
	// Re-apply environment variable overrides so env wins
	loadFromEnv()
	validate()
}

// setDefaults populates config with default values.
func setDefaults() {
	home, _ := os.UserHomeDir()
	xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfigHome == "" {
		xdgConfigHome = filepath.Join(home, ".config")
	}
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		xdgStateHome = filepath.Join(home, ".local", "state")
	}

	configDir := filepath.Join(xdgConfigHome, "freshshell")
	stateDir := filepath.Join(xdgStateHome, "freshshell")

	setDefault("config_dir", configDir)
	setDefault("state_dir", stateDir)
	setDefault("origin", "http://localhost:3000")
	setDefault("listen", "127.0.0.1:8787")
	setDefault("cache_backend", "sqlite")
	setDefault("cache_db", filepath.Join(stateDir, "cache.db"))
	setDefault("redis_addr", "127.0.0.1:6379")
	setDefault("poll_interval_seconds", "60")
	setDefault("navigation_timeout_seconds", "3")
	setDefault("notification_duration_ms", "4000")
	setDefault("database_hosts", "firestore.googleapis.com")
	setDefault("stylesheet_hosts", "fonts.googleapis.com,fonts.gstatic.com")
	setDefault("precache_globs", "")
	setDefault("version", "")
	setDefault("hooks_dir", filepath.Join(configDir, "hooks"))
	setDefault("hooks_enabled", "true")
	setDefault("hooks_failure_mode", "warn")
	setDefault("hooks_async", "false")
	setDefault("hooks_async_timeout_seconds", "30")
	setDefault("hooks_max_async", "10")
	setDefault("debug", "false")
	setDefault("logging_enabled", "false")
	setDefault("logging_level", "info")
	setDefault("logging_max_files", "10")
}

func setDefault(key, value string) {
	config[key] = value
	configMap[key] = value
}

// resolveConfigPath returns the explicit path or the default one when it exists.
func resolveConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	configDir := config["config_dir"]
	if configDir == "" {
		return ""
	}
	p := filepath.Join(configDir, "config"+FileExtTOML)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// loadFromFile reads configuration from a file.
func loadFromFile() {
	path := resolveConfigPath()
	if path == "" {
		return
	}
	if strings.ToLower(filepath.Ext(path)) != FileExtTOML {
		colors.Warning(fmt.Sprintf("unsupported config file extension %s, expected %s", path, FileExtTOML))
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		colors.Debug(fmt.Sprintf("unable to read config file %s: %v", path, err))
		return
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		colors.Warning(fmt.Sprintf("unable to parse config file %s: %v", path, err))
		return
	}
	configPath = path

	for k, v := range raw {
		key := strings.ToLower(k)
		// Policy tables are parsed separately by the policy package.
		if key == "policies" {
			continue
		}
		converted, ok := coerceConfigValue(v)
		if !ok {
			colors.Warning(fmt.Sprintf("unsupported config value type for %s: %T", key, v))
			continue
		}
		config[key] = converted
	}
}

// coerceConfigValue converts a configuration value to its string representation.
// Arrays of scalars are joined with commas.
func coerceConfigValue(value interface{}) (string, bool) {
	switch typed := value.(type) {
	case string:
		return typed, true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	case []interface{}:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			s, ok := coerceConfigValue(item)
			if !ok || strings.Contains(s, ",") {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}

// loadFromEnv applies environment variable overrides.
func loadFromEnv() {
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, EnvPrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(parts[0], EnvPrefix))
		if key == "config_path" {
			continue
		}
		config[key] = parts[1]
	}
}

// validate checks and normalizes configuration values using registered validators.
func validate() {
	for key, value := range config {
		validator := getValidator(key)
		if validator == nil {
			continue
		}
		defaultValue := configMap[key]
		normalizedValue, err := validator(key, value, defaultValue)
		if err != nil {
			colors.Warning(fmt.Sprintf("validation error for %s: %v, using default: %s", key, err, defaultValue))
			config[key] = defaultValue
			continue
		}
		config[key] = normalizedValue
	}
}

// Path returns the configuration file that was loaded, or "" when none was.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// Get returns a configuration value or default.
func Get(key, defaultValue string) string {
	mu.RLock()
	defer mu.RUnlock()
	if val, ok := config[key]; ok {
		return val
	}
	return defaultValue
}

// GetInt returns a configuration value as integer, or default.
func GetInt(key string, defaultValue int) int {
	mu.RLock()
	defer mu.RUnlock()
	val, ok := config[key]
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return n
}

// GetBool returns a configuration value as boolean, or default.
func GetBool(key string, defaultValue bool) bool {
	mu.RLock()
	defer mu.RUnlock()
	val, ok := config[key]
	if !ok {
		return defaultValue
	}
	switch normalizeBool(val) {
	case "true":
		return true
	case "false":
		return false
	default:
		return defaultValue
	}
}

// GetList returns a comma separated value as a trimmed list without empty items.
func GetList(key string) []string {
	raw := Get(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GetSeconds reads an integer number of seconds as a duration.
func GetSeconds(key string, defaultValue time.Duration) time.Duration {
	n := GetInt(key, -1)
	if n <= 0 {
		return defaultValue
	}
	return time.Duration(n) * time.Second
}

// GetMillis reads an integer number of milliseconds as a duration.
func GetMillis(key string, defaultValue time.Duration) time.Duration {
	n := GetInt(key, -1)
	if n <= 0 {
		return defaultValue
	}
	return time.Duration(n) * time.Millisecond
}

// Set overrides a value after Load, used by command line flags.
func Set(key, value string) {
	mu.Lock()
	defer mu.Unlock()
	if config == nil {
		config = make(map[string]string)
	}
	config[key] = value
}
