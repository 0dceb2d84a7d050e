package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the igvault service.
type Config struct {
	// HTTP server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Instagram session and API settings
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Media relay settings
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Batch download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Post pagination settings
	Posts PostsConfig `yaml:"posts" json:"posts"`

	// Image optimizer settings
	Optimizer OptimizerConfig `yaml:"optimizer" json:"optimizer"`

	// Upstream rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen       string        `yaml:"listen" json:"listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	FrontendDir  string        `yaml:"frontend_dir" json:"frontend_dir"`
	DBFile       string        `yaml:"db_file" json:"db_file"`
}

// InstagramConfig holds Instagram session configuration.
type InstagramConfig struct {
	SessionID         string        `yaml:"session_id" json:"session_id"`
	CSRFToken         string        `yaml:"csrf_token" json:"csrf_token"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	APITimeout        time.Duration `yaml:"api_timeout" json:"api_timeout"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" json:"keepalive_interval"`
}

// ProxyConfig holds media relay configuration.
type ProxyConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	AllowedHosts []string      `yaml:"allowed_hosts" json:"allowed_hosts"`
}

// DownloadConfig holds sequential batch download configuration.
type DownloadConfig struct {
	ItemDelay       time.Duration `yaml:"item_delay" json:"item_delay"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	OutputDir       string        `yaml:"output_dir" json:"output_dir"`
}

// PostsConfig holds post pagination configuration.
type PostsConfig struct {
	PageSize     int           `yaml:"page_size" json:"page_size"`
	DefaultCount int           `yaml:"default_count" json:"default_count"`
	MaxCount     int           `yaml:"max_count" json:"max_count"`
	PageDelay    time.Duration `yaml:"page_delay" json:"page_delay"`
	FetchBudget  time.Duration `yaml:"fetch_budget" json:"fetch_budget"`
}

// OptimizerConfig holds image optimizer configuration.
type OptimizerConfig struct {
	Quality      int   `yaml:"quality" json:"quality"`
	MaxFiles     int   `yaml:"max_files" json:"max_files"`
	MaxFileSize  int64 `yaml:"max_file_size" json:"max_file_size"`
	MaxDimension int   `yaml:"max_dimension" json:"max_dimension"`
}

// RateLimitConfig holds upstream rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:       "0.0.0.0:8000",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			FrontendDir:  "",
			DBFile:       "igvault.db",
		},
		Instagram: InstagramConfig{
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
			APITimeout:        15 * time.Second,
			KeepaliveInterval: 30 * time.Minute,
		},
		Proxy: ProxyConfig{
			Timeout:      30 * time.Second,
			AllowedHosts: []string{"scontent", "instagram", "cdninstagram", "fbcdn"},
		},
		Download: DownloadConfig{
			ItemDelay:       500 * time.Millisecond,
			DownloadTimeout: 60 * time.Second,
			OutputDir:       "./downloads",
		},
		Posts: PostsConfig{
			PageSize:     12,
			DefaultCount: 200,
			MaxCount:     500,
			PageDelay:    500 * time.Millisecond,
			FetchBudget:  120 * time.Second,
		},
		Optimizer: OptimizerConfig{
			Quality:      80,
			MaxFiles:     20,
			MaxFileSize:  50 * 1024 * 1024,
			MaxDimension: 16384,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if sessionID := os.Getenv("IGVAULT_SESSION_ID"); sessionID != "" {
		c.Instagram.SessionID = sessionID
	}
	if csrfToken := os.Getenv("IGVAULT_CSRF_TOKEN"); csrfToken != "" {
		c.Instagram.CSRFToken = csrfToken
	}
	if userAgent := os.Getenv("IGVAULT_USER_AGENT"); userAgent != "" {
		c.Instagram.UserAgent = userAgent
	}
	if listen := os.Getenv("IGVAULT_LISTEN"); listen != "" {
		c.Server.Listen = listen
	}
	if frontend := os.Getenv("IGVAULT_FRONTEND_DIR"); frontend != "" {
		c.Server.FrontendDir = frontend
	}
	if dbFile := os.Getenv("IGVAULT_DB_FILE"); dbFile != "" {
		c.Server.DBFile = dbFile
	}
	if outputDir := os.Getenv("IGVAULT_OUTPUT_DIR"); outputDir != "" {
		c.Download.OutputDir = outputDir
	}
	if rpm := os.Getenv("IGVAULT_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if logLevel := os.Getenv("IGVAULT_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file.
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

// findConfigFile searches for config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".igvault.yaml",
		".igvault.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "igvault", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "igvault", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".igvault.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server listen address is required"))
	}

	if c.Instagram.APITimeout <= 0 {
		errs = append(errs, errors.New("instagram API timeout must be positive"))
	}
	if c.Proxy.Timeout <= 0 {
		errs = append(errs, errors.New("proxy timeout must be positive"))
	}
	if len(c.Proxy.AllowedHosts) == 0 {
		errs = append(errs, errors.New("proxy allowed hosts must not be empty"))
	}

	if c.Download.ItemDelay < 0 {
		errs = append(errs, errors.New("download item delay cannot be negative"))
	}
	if c.Download.OutputDir == "" {
		errs = append(errs, errors.New("download output directory is required"))
	}

	if c.Posts.PageSize <= 0 {
		errs = append(errs, errors.New("posts page size must be positive"))
	}
	if c.Posts.MaxCount <= 0 {
		errs = append(errs, errors.New("posts max count must be positive"))
	}
	if c.Posts.DefaultCount > c.Posts.MaxCount {
		errs = append(errs, errors.New("posts default count cannot exceed max count"))
	}

	if c.Optimizer.Quality < 1 || c.Optimizer.Quality > 100 {
		errs = append(errs, errors.New("optimizer quality must be between 1 and 100"))
	}
	if c.Optimizer.MaxFiles <= 0 {
		errs = append(errs, errors.New("optimizer max files must be positive"))
	}
	if c.Optimizer.MaxFileSize <= 0 {
		errs = append(errs, errors.New("optimizer max file size must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
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

// Save saves the configuration to a file.
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

// MergeCommandLineFlags merges command line flags into the configuration.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if listen, ok := flags["listen"].(string); ok && listen != "" {
		c.Server.Listen = listen
	}
	if sessionID, ok := flags["session-id"].(string); ok && sessionID != "" {
		c.Instagram.SessionID = sessionID
	}
	if csrfToken, ok := flags["csrf-token"].(string); ok && csrfToken != "" {
		c.Instagram.CSRFToken = csrfToken
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Download.OutputDir = outputDir
	}
	if frontend, ok := flags["frontend"].(string); ok && frontend != "" {
		c.Server.FrontendDir = frontend
	}
	if dbFile, ok := flags["db"].(string); ok && dbFile != "" {
		c.Server.DBFile = dbFile
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igvault.env"))

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
