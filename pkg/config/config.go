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

// Config holds all configuration options for the timeline archiver
type Config struct {
	// Timeline API access
	Twitter TwitterConfig `yaml:"twitter" json:"twitter"`

	// Polling schedule and failure policy
	Poll PollConfig `yaml:"poll" json:"poll"`

	// Output layout
	Output OutputConfig `yaml:"output" json:"output"`

	// Media download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Post page scraping
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// Final page rendering
	Render RenderConfig `yaml:"render" json:"render"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`

	// Optional HTTP endpoint for health, metrics and live preview
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// TwitterConfig holds the OAuth1 user-context credentials and endpoints
type TwitterConfig struct {
	Account           string `yaml:"account" json:"account"`
	ConsumerKey       string `yaml:"consumer_key" json:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret" json:"consumer_secret"`
	AccessToken       string `yaml:"access_token" json:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret" json:"access_token_secret"`
	APIBaseURL        string `yaml:"api_base_url" json:"api_base_url"`
	WebBaseURL        string `yaml:"web_base_url" json:"web_base_url"`
	UserAgent         string `yaml:"user_agent" json:"user_agent"`
}

// PollConfig holds the polling schedule.
// One request per Interval with Count posts matches the home timeline rate
// limit of 15 requests per 15 minutes.
type PollConfig struct {
	Interval        time.Duration `yaml:"interval" json:"interval"`
	Count           int           `yaml:"count" json:"count"`
	MaxRetries      int           `yaml:"max_retries" json:"max_retries"`
	SkipOverlapping bool          `yaml:"skip_overlapping" json:"skip_overlapping"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory    string `yaml:"base_directory" json:"base_directory"`
	ProfileImagesDir string `yaml:"profile_images_dir" json:"profile_images_dir"`
	TweetImagesDir   string `yaml:"tweet_images_dir" json:"tweet_images_dir"`
	AppendBatch      bool   `yaml:"append_batch" json:"append_batch"`
	Resume           bool   `yaml:"resume" json:"resume"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	ConcurrentDownloads  int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout      time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts        int           `yaml:"retry_attempts" json:"retry_attempts"`
	RequestsPerMinute    int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxFileSize          int64         `yaml:"max_file_size" json:"max_file_size"`
	BlockPrivateNetworks bool          `yaml:"block_private_networks" json:"block_private_networks"`
}

// ScrapeConfig holds post page scraping configuration
type ScrapeConfig struct {
	Enabled             bool          `yaml:"enabled" json:"enabled"`
	PreferMediaEntities bool          `yaml:"prefer_media_entities" json:"prefer_media_entities"`
	FailureThreshold    uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	OpenTimeout         time.Duration `yaml:"open_timeout" json:"open_timeout"`
}

// RenderConfig holds final page rendering configuration
type RenderConfig struct {
	Stylesheet       string        `yaml:"stylesheet" json:"stylesheet"`
	MediaGracePeriod time.Duration `yaml:"media_grace_period" json:"media_grace_period"`
	OnFatal          bool          `yaml:"on_fatal" json:"on_fatal"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	// NoConsole keeps log lines off stdout, e.g. while a full-screen UI owns
	// the terminal
	NoConsole bool `yaml:"-" json:"-"`
}

// MetricsConfig holds the optional HTTP listener configuration
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			APIBaseURL: "https://api.twitter.com/1.1",
			WebBaseURL: "https://twitter.com",
			UserAgent:  "twarchive/1.0",
		},
		Poll: PollConfig{
			Interval:        time.Minute,
			Count:           15,
			MaxRetries:      0,
			SkipOverlapping: false,
		},
		Output: OutputConfig{
			BaseDirectory:    ".",
			ProfileImagesDir: "profile_images",
			TweetImagesDir:   "tweet_images",
			AppendBatch:      true,
			Resume:           false,
		},
		Download: DownloadConfig{
			ConcurrentDownloads:  4,
			DownloadTimeout:      30 * time.Second,
			RetryAttempts:        1,
			RequestsPerMinute:    120,
			MaxFileSize:          0, // 0 means no limit
			BlockPrivateNetworks: true,
		},
		Scrape: ScrapeConfig{
			Enabled:             true,
			PreferMediaEntities: false,
			FailureThreshold:    5,
			OpenTimeout:         2 * time.Minute,
		},
		Render: RenderConfig{
			Stylesheet:       "style.css",
			MediaGracePeriod: 0,
			OnFatal:          false,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// Legacy credential names first so TWARCHIVE_* wins when both are set
	setString(&c.Twitter.ConsumerKey, "twit_client_consumer_key")
	setString(&c.Twitter.ConsumerSecret, "twit_client_consumer_secret")
	setString(&c.Twitter.AccessToken, "twit_client_access_token")
	setString(&c.Twitter.AccessTokenSecret, "twit_client_access_token_secret")

	setString(&c.Twitter.ConsumerKey, "TWARCHIVE_CONSUMER_KEY")
	setString(&c.Twitter.ConsumerSecret, "TWARCHIVE_CONSUMER_SECRET")
	setString(&c.Twitter.AccessToken, "TWARCHIVE_ACCESS_TOKEN")
	setString(&c.Twitter.AccessTokenSecret, "TWARCHIVE_ACCESS_TOKEN_SECRET")
	setString(&c.Twitter.Account, "TWARCHIVE_ACCOUNT")
	setString(&c.Twitter.APIBaseURL, "TWARCHIVE_API_BASE_URL")
	setString(&c.Twitter.WebBaseURL, "TWARCHIVE_WEB_BASE_URL")

	var errs []error

	if v := os.Getenv("TWARCHIVE_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TWARCHIVE_POLL_INTERVAL: %w", err))
		} else {
			c.Poll.Interval = d
		}
	}
	if v := os.Getenv("TWARCHIVE_POLL_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TWARCHIVE_POLL_COUNT: %w", err))
		} else {
			c.Poll.Count = n
		}
	}
	if v := os.Getenv("TWARCHIVE_CONCURRENT_DOWNLOADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TWARCHIVE_CONCURRENT_DOWNLOADS: %w", err))
		} else {
			c.Download.ConcurrentDownloads = n
		}
	}
	if v := os.Getenv("TWARCHIVE_RESUME"); v != "" {
		c.Output.Resume = strings.ToLower(v) == "true"
	}

	setString(&c.Output.BaseDirectory, "TWARCHIVE_OUTPUT_DIR")
	setString(&c.Logging.Level, "TWARCHIVE_LOG_LEVEL")
	setString(&c.Logging.File, "TWARCHIVE_LOG_FILE")
	setString(&c.Metrics.ListenAddr, "TWARCHIVE_METRICS_ADDR")

	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".twarchive.yaml",
		".twarchive.yml",
		filepath.Join(home, ".config", "twarchive", "config.yaml"),
		filepath.Join(home, ".config", "twarchive", "config.yml"),
		filepath.Join(home, ".twarchive.yaml"),
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

	if c.Twitter.APIBaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}
	if c.Twitter.WebBaseURL == "" {
		errs = append(errs, errors.New("web base URL is required"))
	}

	if c.Poll.Interval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.Poll.Count <= 0 || c.Poll.Count > 200 {
		errs = append(errs, errors.New("poll count must be between 1 and 200"))
	}
	if c.Poll.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.ProfileImagesDir == "" || c.Output.TweetImagesDir == "" {
		errs = append(errs, errors.New("image directories are required"))
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 32 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 32"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}
	if c.Download.RetryAttempts < 0 {
		errs = append(errs, errors.New("retry attempts cannot be negative"))
	}
	if c.Download.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}

	if c.Scrape.Enabled && c.Scrape.FailureThreshold == 0 {
		errs = append(errs, errors.New("scrape failure threshold must be positive"))
	}

	if c.Render.MediaGracePeriod < 0 {
		errs = append(errs, errors.New("media grace period cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// HasCredentials reports whether all four OAuth1 secrets are present
func (t *TwitterConfig) HasCredentials() bool {
	return t.ConsumerKey != "" && t.ConsumerSecret != "" &&
		t.AccessToken != "" && t.AccessTokenSecret != ""
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if account, ok := flags["account"].(string); ok && account != "" {
		c.Twitter.Account = account
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if interval, ok := flags["interval"].(time.Duration); ok && interval > 0 {
		c.Poll.Interval = interval
	}
	if count, ok := flags["count"].(int); ok && count > 0 {
		c.Poll.Count = count
	}
	if retries, ok := flags["max-retries"].(int); ok && retries >= 0 {
		c.Poll.MaxRetries = retries
	}
	if concurrent, ok := flags["concurrent"].(int); ok && concurrent > 0 {
		c.Download.ConcurrentDownloads = concurrent
	}
	if resume, ok := flags["resume"].(bool); ok {
		c.Output.Resume = resume
	}
	if grace, ok := flags["media-grace"].(time.Duration); ok && grace >= 0 {
		c.Render.MediaGracePeriod = grace
	}
	if addr, ok := flags["metrics-addr"].(string); ok && addr != "" {
		c.Metrics.ListenAddr = addr
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".twarchive.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
