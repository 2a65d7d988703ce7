package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for artsync
type Config struct {
	Site          SiteConfig         `yaml:"site" json:"site"`
	Network       NetworkConfig      `yaml:"network" json:"network"`
	Output        OutputConfig       `yaml:"output" json:"output"`
	Filter        FilterConfig       `yaml:"filter" json:"filter"`
	Traversal     TraversalConfig    `yaml:"traversal" json:"traversal"`
	Storage       StorageConfig      `yaml:"storage" json:"storage"`
	Metrics       MetricsConfig      `yaml:"metrics" json:"metrics"`
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" json:"logging"`
}

// SiteConfig describes the remote site and the session used against it
type SiteConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	Cookie    string `yaml:"cookie" json:"-"`
	R18Mode   bool   `yaml:"r18_mode" json:"r18_mode"`
	// LargePages switches account pages to 50 items and tag pages to 50 items
	LargePages bool `yaml:"large_pages" json:"large_pages"`
}

// NetworkConfig holds transport and retry settings
type NetworkConfig struct {
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	Retry             int           `yaml:"retry" json:"retry"`
	RetryWait         time.Duration `yaml:"retry_wait" json:"retry_wait"`
	DownloadDelay     time.Duration `yaml:"download_delay" json:"download_delay"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// OutputConfig controls naming and what gets written next to each artifact
type OutputConfig struct {
	RootDirectory       string `yaml:"root_directory" json:"root_directory"`
	FilenameFormat      string `yaml:"filename_format" json:"filename_format"`
	FilenameMangaFormat string `yaml:"filename_manga_format" json:"filename_manga_format"`
	FilenameInfoFormat  string `yaml:"filename_info_format" json:"filename_info_format"`
	TagsSeparator       string `yaml:"tags_separator" json:"tags_separator"`
	TagsLimit           int    `yaml:"tags_limit" json:"tags_limit"`
	CreateMangaDir      bool   `yaml:"create_manga_dir" json:"create_manga_dir"`
	UseTagsAsDir        bool   `yaml:"use_tags_as_dir" json:"use_tags_as_dir"`
	Overwrite           bool   `yaml:"overwrite" json:"overwrite"`
	BackupOldFile       bool   `yaml:"backup_old_file" json:"backup_old_file"`
	SetLastModified     bool   `yaml:"set_last_modified" json:"set_last_modified"`
	VerifyImage         bool   `yaml:"verify_image" json:"verify_image"`
	WriteImageInfo      bool   `yaml:"write_image_info" json:"write_image_info"`
	WriteImageJSON      bool   `yaml:"write_image_json" json:"write_image_json"`
	CreateDownloadLists bool   `yaml:"create_download_lists" json:"create_download_lists"`
	DumpDirectory       string `yaml:"dump_directory" json:"dump_directory"`
}

// FilterConfig holds the dedup filters
type FilterConfig struct {
	DateDiff            int      `yaml:"date_diff" json:"date_diff"`
	UseBlacklistTags    bool     `yaml:"use_blacklist_tags" json:"use_blacklist_tags"`
	BlacklistTags       []string `yaml:"blacklist_tags" json:"blacklist_tags"`
	UseBlacklistMembers bool     `yaml:"use_blacklist_members" json:"use_blacklist_members"`
	BlacklistMembers    []string `yaml:"blacklist_members" json:"blacklist_members"`
	UseSuppressTags     bool     `yaml:"use_suppress_tags" json:"use_suppress_tags"`
	SuppressTags        []string `yaml:"suppress_tags" json:"suppress_tags"`
}

// TraversalConfig holds pagination and incremental-resume settings
type TraversalConfig struct {
	NumberOfPage          int    `yaml:"number_of_page" json:"number_of_page"`
	CheckUpdatedLimit     int    `yaml:"check_updated_limit" json:"check_updated_limit"`
	AlwaysCheckFileSize   bool   `yaml:"always_check_file_size" json:"always_check_file_size"`
	AlwaysCheckFileExists bool   `yaml:"always_check_file_exists" json:"always_check_file_exists"`
	EnableInfiniteLoop    bool   `yaml:"enable_infinite_loop" json:"enable_infinite_loop"`
	DayLastUpdated        int    `yaml:"day_last_updated" json:"day_last_updated"`
	IgnoreList            string `yaml:"ignore_list" json:"ignore_list"`
}

// StorageConfig selects the artifact store backend
type StorageConfig struct {
	Driver    string        `yaml:"driver" json:"driver"`
	Path      string        `yaml:"path" json:"path"`
	DSN       string        `yaml:"dsn" json:"-"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr"`
	RedisTTL  time.Duration `yaml:"redis_ttl" json:"redis_ttl"`
}

// MetricsConfig enables the prometheus endpoint
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			BaseURL:   "https://www.pixiv.net",
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Network: NetworkConfig{
			Timeout:           60 * time.Second,
			Retry:             3,
			RetryWait:         5 * time.Second,
			DownloadDelay:     2 * time.Second,
			RequestsPerMinute: 60,
		},
		Output: OutputConfig{
			RootDirectory:       "./downloads",
			FilenameFormat:      "%member_token% (%member_id%)/%urlFilename% - %title%",
			FilenameMangaFormat: "%member_token% (%member_id%)/%urlFilename% - %title%",
			FilenameInfoFormat:  "%member_token% (%member_id%)/%urlFilename% - %title%",
			TagsSeparator:       ", ",
			TagsLimit:           -1,
			CreateMangaDir:      false,
			VerifyImage:         true,
			SetLastModified:     true,
			DumpDirectory:       "dumps",
		},
		Traversal: TraversalConfig{
			CheckUpdatedLimit: 0,
			DayLastUpdated:    7,
			IgnoreList:        "ignore_list.txt",
		},
		Storage: StorageConfig{
			Driver:   "sqlite",
			Path:     filepath.Join(dataDirectory(), "artsync.db"),
			RedisTTL: 10 * time.Minute,
		},
		Metrics: MetricsConfig{
			ListenAddress: "127.0.0.1:9464",
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// dataDirectory returns the per-user data directory for the database
func dataDirectory() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "artsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "artsync")
}

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

func envString(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func envInt(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("expected integer, got %q", v)
		}
		*dst(c) = n
		return nil
	}
}

func envBool(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("expected boolean, got %q", v)
		}
		*dst(c) = b
		return nil
	}
}

func envDuration(dst func(c *Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("expected duration, got %q", v)
		}
		*dst(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"ARTSYNC_BASE_URL", envString(func(c *Config) *string { return &c.Site.BaseURL })},
	{"ARTSYNC_USER_AGENT", envString(func(c *Config) *string { return &c.Site.UserAgent })},
	{"ARTSYNC_COOKIE", envString(func(c *Config) *string { return &c.Site.Cookie })},
	{"ARTSYNC_RETRY", envInt(func(c *Config) *int { return &c.Network.Retry })},
	{"ARTSYNC_RETRY_WAIT", envDuration(func(c *Config) *time.Duration { return &c.Network.RetryWait })},
	{"ARTSYNC_DOWNLOAD_DELAY", envDuration(func(c *Config) *time.Duration { return &c.Network.DownloadDelay })},
	{"ARTSYNC_REQUESTS_PER_MINUTE", envInt(func(c *Config) *int { return &c.Network.RequestsPerMinute })},
	{"ARTSYNC_OUTPUT_DIR", envString(func(c *Config) *string { return &c.Output.RootDirectory })},
	{"ARTSYNC_OVERWRITE", envBool(func(c *Config) *bool { return &c.Output.Overwrite })},
	{"ARTSYNC_DATE_DIFF", envInt(func(c *Config) *int { return &c.Filter.DateDiff })},
	{"ARTSYNC_CHECK_UPDATED_LIMIT", envInt(func(c *Config) *int { return &c.Traversal.CheckUpdatedLimit })},
	{"ARTSYNC_DB_DRIVER", envString(func(c *Config) *string { return &c.Storage.Driver })},
	{"ARTSYNC_DB_PATH", envString(func(c *Config) *string { return &c.Storage.Path })},
	{"ARTSYNC_DB_DSN", envString(func(c *Config) *string { return &c.Storage.DSN })},
	{"ARTSYNC_REDIS_ADDR", envString(func(c *Config) *string { return &c.Storage.RedisAddr })},
	{"ARTSYNC_METRICS_ENABLED", envBool(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"ARTSYNC_NOTIFICATIONS_ENABLED", envBool(func(c *Config) *bool { return &c.Notifications.Enabled })},
	{"ARTSYNC_LOG_LEVEL", envString(func(c *Config) *string { return &c.Logging.Level })},
	{"ARTSYNC_LOG_FILE", envString(func(c *Config) *string { return &c.Logging.File })},
}

// LoadFromEnv loads configuration from ARTSYNC_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.name)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.name, err))
		}
	}
	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".artsync.yaml",
		".artsync.yml",
		filepath.Join(home, ".config", "artsync", "config.yaml"),
		filepath.Join(home, ".config", "artsync", "config.yml"),
		filepath.Join(home, ".artsync.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Site.BaseURL == "" {
		errs = append(errs, errors.New("site base URL is required"))
	}
	if c.Network.Retry < 0 {
		errs = append(errs, errors.New("retry cannot be negative"))
	}
	if c.Network.RetryWait < 0 || c.Network.DownloadDelay < 0 {
		errs = append(errs, errors.New("retry wait and download delay cannot be negative"))
	}
	if c.Network.Timeout <= 0 {
		errs = append(errs, errors.New("network timeout must be positive"))
	}
	if c.Network.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Output.RootDirectory == "" {
		errs = append(errs, errors.New("output root directory is required"))
	}
	if c.Output.FilenameFormat == "" || c.Output.FilenameMangaFormat == "" {
		errs = append(errs, errors.New("filename formats are required"))
	}

	if c.Filter.DateDiff < 0 {
		errs = append(errs, errors.New("date diff cannot be negative"))
	}
	if c.Traversal.NumberOfPage < 0 || c.Traversal.CheckUpdatedLimit < 0 {
		errs = append(errs, errors.New("number of page and check updated limit cannot be negative"))
	}

	switch strings.ToLower(c.Storage.Driver) {
	case "sqlite":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("sqlite storage requires a path"))
		}
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("postgres storage requires a dsn"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		errs = append(errs, errors.New("metrics listen address is required when metrics are enabled"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeCommandLineFlags applies flags that were explicitly set on the command line
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.RootDirectory = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
	if v, ok := flags["no-color"].(bool); ok && v {
		c.Logging.NoColor = true
	}
	if v, ok := flags["db"].(string); ok && v != "" {
		c.Storage.Path = v
	}
	if v, ok := flags["overwrite"].(bool); ok && v {
		c.Output.Overwrite = true
	}
	if v, ok := flags["retry"].(int); ok && v >= 0 {
		c.Network.Retry = v
	}
	if v, ok := flags["delay"].(time.Duration); ok && v >= 0 {
		c.Network.DownloadDelay = v
	}
	if v, ok := flags["check-updated-limit"].(int); ok && v >= 0 {
		c.Traversal.CheckUpdatedLimit = v
	}
	if v, ok := flags["date-diff"].(int); ok && v >= 0 {
		c.Filter.DateDiff = v
	}
	if v, ok := flags["metrics"].(bool); ok && v {
		c.Metrics.Enabled = true
	}
}

// Load loads configuration from all sources with proper precedence.
// Flags > environment > .env files > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	home, _ := os.UserHomeDir()
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(home, ".artsync.env"))

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
