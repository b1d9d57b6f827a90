package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Detector    DetectorConfig  `toml:"detector"`
	Browser     BrowserConfig   `toml:"browser"`
	Session     SessionConfig   `toml:"session"`
	Vault       VaultConfig     `toml:"vault"`
	Download    DownloadConfig  `toml:"download"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// DetectorConfig controls auth-requirement classification
type DetectorConfig struct {
	ProbeEnabled    bool          `toml:"probe_enabled"`    // Allow the network probe stage
	ProbeTimeout    time.Duration `toml:"probe_timeout"`    // HTTP probe timeout
	ProbeRateLimit  time.Duration `toml:"probe_rate_limit"` // Minimum interval between probes per process
	FollowRedirects bool          `toml:"follow_redirects"` // Follow redirects during probing
	UserAgent       string        `toml:"user_agent"`       // Probe user agent string
}

// BrowserConfig controls the visible browser instance arena
type BrowserConfig struct {
	MaxInstances  int           `toml:"max_instances"`  // Concurrent visible browser cap
	Headless      bool          `toml:"headless"`       // Headless mode (login flows need false)
	ChromePath    string        `toml:"chrome_path"`    // Optional explicit Chrome binary path
	WindowWidth   int64         `toml:"window_width"`   // Initial window width
	WindowHeight  int64         `toml:"window_height"`  // Initial window height
	StartupCheck  bool          `toml:"startup_check"`  // Verify instance with a blank navigation on acquire
	AcquireWait   time.Duration `toml:"acquire_wait"`   // Max wait for an arena slot
	UserDataDir   string        `toml:"user_data_dir"`  // Optional persistent profile directory
	DisableImages bool          `toml:"disable_images"` // Skip image loading in login windows
}

// SessionConfig controls interactive login sessions
type SessionConfig struct {
	Timeout       time.Duration `toml:"timeout"`        // Wall-clock deadline for a login attempt
	PollInterval  time.Duration `toml:"poll_interval"`  // Login detection poll cadence
	ShowBanner    bool          `toml:"show_banner"`    // Inject the instruction banner into login pages
	AutoContinue  bool          `toml:"auto_continue"`  // Click common continue/next buttons automatically
	SweepInterval time.Duration `toml:"sweep_interval"` // Expired session sweep cadence (in-process fallback)
}

// VaultConfig controls encrypted cookie storage
type VaultConfig struct {
	EncryptionKey string        `toml:"encryption_key" validate:"omitempty,min=32"` // Key material, min 32 chars
	CookieTTL     time.Duration `toml:"cookie_ttl"`                                 // Stored cookie lifetime
}

// DownloadConfig controls the acquisition orchestrator
type DownloadConfig struct {
	UtilityPath    string        `toml:"utility_path"`    // yt-dlp binary (name or absolute path)
	OutputDir      string        `toml:"output_dir"`      // Directory for downloaded media
	OutputTemplate string        `toml:"output_template"` // yt-dlp output template
	MaxAttempts    int           `toml:"max_attempts"`    // Attempts per cookie context
	BackoffBase    time.Duration `toml:"backoff_base"`    // First retry delay; doubles per attempt
	Timeout        time.Duration `toml:"timeout"`         // Per-invocation utility timeout
	Quality        string        `toml:"quality"`         // Default format selector
	MaxFileSize    string        `toml:"max_file_size"`   // yt-dlp size bound, e.g. "2G"
}

// SchedulerConfig controls periodic maintenance
type SchedulerConfig struct {
	Enabled         bool   `toml:"enabled"`
	SessionSweep    string `toml:"session_sweep"`    // Cron schedule for expired session cleanup
	StorageGCSweep  string `toml:"storage_gc_sweep"` // Cron schedule for badger value-log GC
	HistoryRetained int    `toml:"history_retained"` // Max download records kept per user (0 = unlimited)
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in capto.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Detector: DetectorConfig{
			ProbeEnabled:    true,
			ProbeTimeout:    10 * time.Second,
			ProbeRateLimit:  500 * time.Millisecond,
			FollowRedirects: true,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
		Browser: BrowserConfig{
			MaxInstances: 3,     // Visible windows are expensive; keep the arena small
			Headless:     false, // Login flows need a window the user can interact with
			WindowWidth:  1280,
			WindowHeight: 800,
			StartupCheck: true,
			AcquireWait:  10 * time.Second,
		},
		Session: SessionConfig{
			Timeout:       5 * time.Minute,
			PollInterval:  2 * time.Second,
			ShowBanner:    true,
			AutoContinue:  false, // Opt-in; clicking through consent screens is site-specific
			SweepInterval: time.Minute,
		},
		Vault: VaultConfig{
			CookieTTL: 24 * time.Hour,
		},
		Download: DownloadConfig{
			UtilityPath:    "yt-dlp",
			OutputDir:      "./downloads",
			OutputTemplate: "%(title)s.%(ext)s",
			MaxAttempts:    3,
			BackoffBase:    2 * time.Second,
			Timeout:        15 * time.Minute,
			Quality:        "best",
			MaxFileSize:    "2G",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			SessionSweep:    "0 * * * * *",   // Every minute
			StorageGCSweep:  "0 0 */6 * * *", // Every 6 hours
			HistoryRetained: 1000,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI. Later files override
// earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.ensureEncryptionKey(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("CAPTO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CAPTO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CAPTO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("CAPTO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("CAPTO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CAPTO_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CAPTO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Detector configuration
	if probeEnabled := os.Getenv("CAPTO_DETECTOR_PROBE_ENABLED"); probeEnabled != "" {
		if pe, err := strconv.ParseBool(probeEnabled); err == nil {
			config.Detector.ProbeEnabled = pe
		}
	}
	if probeTimeout := os.Getenv("CAPTO_DETECTOR_PROBE_TIMEOUT"); probeTimeout != "" {
		if pt, err := time.ParseDuration(probeTimeout); err == nil {
			config.Detector.ProbeTimeout = pt
		}
	}
	if userAgent := os.Getenv("CAPTO_DETECTOR_USER_AGENT"); userAgent != "" {
		config.Detector.UserAgent = userAgent
	}

	// Browser configuration
	if maxInstances := os.Getenv("CAPTO_BROWSER_MAX_INSTANCES"); maxInstances != "" {
		if mi, err := strconv.Atoi(maxInstances); err == nil {
			config.Browser.MaxInstances = mi
		}
	}
	if headless := os.Getenv("CAPTO_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if chromePath := os.Getenv("CAPTO_BROWSER_CHROME_PATH"); chromePath != "" {
		config.Browser.ChromePath = chromePath
	}

	// Session configuration
	if timeout := os.Getenv("CAPTO_SESSION_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			config.Session.Timeout = t
		}
	}
	if pollInterval := os.Getenv("CAPTO_SESSION_POLL_INTERVAL"); pollInterval != "" {
		if pi, err := time.ParseDuration(pollInterval); err == nil {
			config.Session.PollInterval = pi
		}
	}

	// Vault configuration
	if key := os.Getenv("CAPTO_VAULT_ENCRYPTION_KEY"); key != "" {
		config.Vault.EncryptionKey = key
	}
	if cookieTTL := os.Getenv("CAPTO_VAULT_COOKIE_TTL"); cookieTTL != "" {
		if ttl, err := time.ParseDuration(cookieTTL); err == nil {
			config.Vault.CookieTTL = ttl
		}
	}

	// Download configuration
	if utilityPath := os.Getenv("CAPTO_DOWNLOAD_UTILITY_PATH"); utilityPath != "" {
		config.Download.UtilityPath = utilityPath
	}
	if outputDir := os.Getenv("CAPTO_DOWNLOAD_OUTPUT_DIR"); outputDir != "" {
		config.Download.OutputDir = outputDir
	}
	if maxFileSize := os.Getenv("CAPTO_DOWNLOAD_MAX_FILE_SIZE"); maxFileSize != "" {
		config.Download.MaxFileSize = maxFileSize
	}
	if maxAttempts := os.Getenv("CAPTO_DOWNLOAD_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Download.MaxAttempts = ma
		}
	}
	if backoffBase := os.Getenv("CAPTO_DOWNLOAD_BACKOFF_BASE"); backoffBase != "" {
		if bb, err := time.ParseDuration(backoffBase); err == nil {
			config.Download.BackoffBase = bb
		}
	}
	if timeout := os.Getenv("CAPTO_DOWNLOAD_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			config.Download.Timeout = t
		}
	}
}

// ApplyFlagOverrides applies CLI flag values on top of file and env config.
// Zero values mean the flag was not set.
func (c *Config) ApplyFlagOverrides(host string, port int) {
	if host != "" {
		c.Server.Host = host
	}
	if port > 0 {
		c.Server.Port = port
	}
}

// ensureEncryptionKey enforces the vault key policy: required in production,
// auto-generated with a loud warning in development.
func (c *Config) ensureEncryptionKey() error {
	if c.Vault.EncryptionKey != "" {
		if len(c.Vault.EncryptionKey) < 32 {
			return fmt.Errorf("vault encryption key must be at least 32 characters, got %d", len(c.Vault.EncryptionKey))
		}
		return nil
	}

	if c.IsProduction() {
		return fmt.Errorf("vault encryption key is required in production (set CAPTO_VAULT_ENCRYPTION_KEY or vault.encryption_key)")
	}

	// Development convenience: generate an ephemeral key. Stored cookies
	// will not survive a restart.
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("failed to generate development encryption key: %w", err)
	}
	c.Vault.EncryptionKey = hex.EncodeToString(buf)
	fmt.Fprintln(os.Stderr, "WARNING: no vault encryption key configured; generated an ephemeral key. Stored cookies will not survive a restart.")
	return nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download.max_attempts must be at least 1, got %d", c.Download.MaxAttempts)
	}
	if c.Browser.MaxInstances < 1 {
		return fmt.Errorf("browser.max_instances must be at least 1, got %d", c.Browser.MaxInstances)
	}
	if c.Vault.CookieTTL <= 0 {
		return fmt.Errorf("vault.cookie_ttl must be positive, got %s", c.Vault.CookieTTL)
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be positive, got %s", c.Session.Timeout)
	}
	return nil
}

// IsProduction returns true when running in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
