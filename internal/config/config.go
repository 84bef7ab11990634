package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Duplicate policies.
const (
	PolicyOff   = "off"
	PolicyWarn  = "warn"
	PolicyBlock = "block"
)

// Config holds application configuration.
type Config struct {
	// Profile discriminates local profiles sharing the same storage backends.
	// All persisted keys are namespaced by KeyPrefix and Profile.
	Profile string `json:"profile,omitempty"`

	// KeyPrefix is the fixed namespace prefix for every persisted key.
	KeyPrefix string `json:"key_prefix,omitempty"`

	// RedisURL enables the roaming settings tier when set.
	RedisURL string `json:"redis_url,omitempty"`

	// RoamingMaxValueBytes is the per-value ceiling of the roaming tier.
	// Values above it are silently dropped by that tier.
	RoamingMaxValueBytes int `json:"roaming_max_value_bytes,omitempty"`

	// DisableRuntimeStore skips the SQLite tier during backend probing.
	DisableRuntimeStore bool `json:"disable_runtime_store,omitempty"`

	// DisableLocalStore skips the bbolt tier during backend probing.
	DisableLocalStore bool `json:"disable_local_store,omitempty"`

	// CacheMaxEntries caps the filed-status cache. 0 derives the cap from the
	// active backend (20 for the roaming tier, 100 otherwise).
	CacheMaxEntries int `json:"cache_max_entries,omitempty"`

	HistoryMaxConversations  int `json:"history_max_conversations,omitempty"`
	HistoryMaxSenders        int `json:"history_max_senders,omitempty"`
	HistoryMaxDomains        int `json:"history_max_domains,omitempty"`
	HistoryMaxCasesPerEntity int `json:"history_max_cases_per_entity,omitempty"`
	HistoryMaxRecent         int `json:"history_max_recent,omitempty"`

	// DuplicatePolicy is one of off, warn, block.
	DuplicatePolicy string `json:"duplicate_policy,omitempty"`

	// RemoteURL is the base URL of the case-management API. Empty means offline.
	RemoteURL string `json:"remote_url,omitempty"`

	// RemoteToken is the bearer token for the case-management API.
	RemoteToken string `json:"remote_token,omitempty"`

	RemoteTimeoutMS int `json:"remote_timeout_ms,omitempty"`

	// PollIntervalMS is the fixed poll interval of the watch loop.
	PollIntervalMS int `json:"poll_interval_ms,omitempty"`

	// LabelVerifyAttempts bounds the label read-back loop.
	LabelVerifyAttempts int `json:"label_verify_attempts,omitempty"`
	LabelVerifyDelayMS  int `json:"label_verify_delay_ms,omitempty"`

	AutoSelectThreshold int `json:"auto_select_threshold,omitempty"`
	MinConfidence       int `json:"min_confidence,omitempty"`
	TopK                int `json:"top_k,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// If set to 1, all database access is serialized (reduces "database is locked" errors).
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "filing", "history". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Profile:                  "default",
		KeyPrefix:                "casefile",
		RoamingMaxValueBytes:     32 * 1024,
		HistoryMaxConversations:  500,
		HistoryMaxSenders:        300,
		HistoryMaxDomains:        200,
		HistoryMaxCasesPerEntity: 10,
		HistoryMaxRecent:         30,
		DuplicatePolicy:          PolicyWarn,
		RemoteTimeoutMS:          8000,
		PollIntervalMS:           500,
		LabelVerifyAttempts:      5,
		LabelVerifyDelayMS:       250,
		AutoSelectThreshold:      70,
		MinConfidence:            10,
		TopK:                     5,
		LogLevel:                 "info",
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.DuplicatePolicy {
	case PolicyOff, PolicyWarn, PolicyBlock:
	default:
		return errors.New("duplicate_policy must be one of: off, warn, block")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("log_level must be one of: debug, info, warn, error")
	}
	return nil
}

// Load loads configuration from baseDir/config.json, then applies environment
// overrides (after loading baseDir/.env if present).
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.casefile.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg, filepath.Join(baseDir, ".env")); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadWithRepo loads configuration from both global (~/.casefile) and repo (.casefile) directories.
// Repo config is found by walking upward from startDir to find the nearest .casefile/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := ApplyEnv(cfg, filepath.Join(globalDir, ".env")); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// FindRepoConfig walks upward from startDir to find the nearest .casefile/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".casefile", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// envOverrides maps environment variables to the config fields they set.
var envOverrides = map[string]func(*Config, string){
	"CASEFILE_PROFILE":      func(c *Config, v string) { c.Profile = v },
	"CASEFILE_REDIS_URL":    func(c *Config, v string) { c.RedisURL = v },
	"CASEFILE_REMOTE_URL":   func(c *Config, v string) { c.RemoteURL = v },
	"CASEFILE_REMOTE_TOKEN": func(c *Config, v string) { c.RemoteToken = v },
	"CASEFILE_LOG_LEVEL":    func(c *Config, v string) { c.LogLevel = strings.ToLower(v) },
}

// ApplyEnv loads envFile (if it exists) into the process environment without
// overriding variables that are already set, then applies CASEFILE_* overrides.
func ApplyEnv(cfg *Config, envFile string) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return err
			}
		}
	}
	for name, apply := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			apply(cfg, v)
		}
	}
	return nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		Profile:                  pickString(overlay.Profile, base.Profile),
		KeyPrefix:                pickString(overlay.KeyPrefix, base.KeyPrefix),
		RedisURL:                 pickString(overlay.RedisURL, base.RedisURL),
		RoamingMaxValueBytes:     pickInt(overlay.RoamingMaxValueBytes, base.RoamingMaxValueBytes),
		CacheMaxEntries:          pickInt(overlay.CacheMaxEntries, base.CacheMaxEntries),
		HistoryMaxConversations:  pickInt(overlay.HistoryMaxConversations, base.HistoryMaxConversations),
		HistoryMaxSenders:        pickInt(overlay.HistoryMaxSenders, base.HistoryMaxSenders),
		HistoryMaxDomains:        pickInt(overlay.HistoryMaxDomains, base.HistoryMaxDomains),
		HistoryMaxCasesPerEntity: pickInt(overlay.HistoryMaxCasesPerEntity, base.HistoryMaxCasesPerEntity),
		HistoryMaxRecent:         pickInt(overlay.HistoryMaxRecent, base.HistoryMaxRecent),
		DuplicatePolicy:          pickString(overlay.DuplicatePolicy, base.DuplicatePolicy),
		RemoteURL:                pickString(overlay.RemoteURL, base.RemoteURL),
		RemoteToken:              pickString(overlay.RemoteToken, base.RemoteToken),
		RemoteTimeoutMS:          pickInt(overlay.RemoteTimeoutMS, base.RemoteTimeoutMS),
		PollIntervalMS:           pickInt(overlay.PollIntervalMS, base.PollIntervalMS),
		LabelVerifyAttempts:      pickInt(overlay.LabelVerifyAttempts, base.LabelVerifyAttempts),
		LabelVerifyDelayMS:       pickInt(overlay.LabelVerifyDelayMS, base.LabelVerifyDelayMS),
		AutoSelectThreshold:      pickInt(overlay.AutoSelectThreshold, base.AutoSelectThreshold),
		MinConfidence:            pickInt(overlay.MinConfidence, base.MinConfidence),
		TopK:                     pickInt(overlay.TopK, base.TopK),
		LogLevel:                 pickString(overlay.LogLevel, base.LogLevel),
		DBMaxOpenConns:           pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:           pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	// Booleans: overlay wins if true, else base
	result.DisableRuntimeStore = base.DisableRuntimeStore || overlay.DisableRuntimeStore
	result.DisableLocalStore = base.DisableLocalStore || overlay.DisableLocalStore

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
