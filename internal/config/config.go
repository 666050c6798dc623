// Package config loads application configuration from file, environment and
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Indexer  IndexerConfig  `mapstructure:"indexer"`
	Search   SearchConfig   `mapstructure:"search"`
	Download DownloadConfig `mapstructure:"download"`
	Importer ImporterConfig `mapstructure:"importer"`
	Dvr      DvrConfig      `mapstructure:"dvr"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ServerConfig holds the health/status HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// IndexerConfig holds indexer client settings.
type IndexerConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"` // Default: 100
	MaxResults     int `mapstructure:"max_results"`     // Default: 100
}

// SearchConfig holds the discovery and search planner cadences.
type SearchConfig struct {
	RssIntervalMinutes   int `mapstructure:"rss_interval_minutes"`   // Default: 15
	SearchIntervalMinutes int `mapstructure:"search_interval_minutes"` // Default: 60
	BroadcastWindowHours int `mapstructure:"broadcast_window_hours"` // Default: 4
	FanOutLimit          int `mapstructure:"fanout_limit"`           // Default: 3
}

// DownloadConfig holds the download lifecycle monitor settings.
type DownloadConfig struct {
	PollIntervalSeconds   int  `mapstructure:"poll_interval_seconds"`  // Default: 30
	StallThresholdMinutes int  `mapstructure:"stall_threshold_minutes"` // Default: 10
	RemoveCompleted       bool `mapstructure:"remove_completed"`
	RemoveFailed          bool `mapstructure:"remove_failed"`
	RedownloadFailed      bool `mapstructure:"redownload_failed"`
}

// ImporterConfig holds the library import settings.
type ImporterConfig struct {
	RootFolder   string `mapstructure:"root_folder"`
	UseHardlinks bool   `mapstructure:"use_hardlinks"`
}

// DvrConfig holds the DVR scheduler settings.
type DvrConfig struct {
	IntervalMinutes    int    `mapstructure:"interval_minutes"`     // Default: 15
	WindowDays         int    `mapstructure:"window_days"`          // Default: 14
	PrePaddingMinutes  int    `mapstructure:"pre_padding_minutes"`  // Default: 5
	PostPaddingMinutes int    `mapstructure:"post_padding_minutes"` // Default: 30
	RecordingDir       string `mapstructure:"recording_dir"`
}

// CacheConfig holds the release cache settings.
type CacheConfig struct {
	TTLDays              int `mapstructure:"ttl_days"`               // Default: 7
	CleanupIntervalHours int `mapstructure:"cleanup_interval_hours"` // Default: 6
}

// Duration helpers, SlipStream style.

// Timeout returns the indexer request deadline.
func (c *IndexerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RssInterval returns the RSS sync cadence.
func (c *SearchConfig) RssInterval() time.Duration {
	return time.Duration(c.RssIntervalMinutes) * time.Minute
}

// SearchInterval returns the search planner cadence.
func (c *SearchConfig) SearchInterval() time.Duration {
	return time.Duration(c.SearchIntervalMinutes) * time.Minute
}

// BroadcastWindow returns how close to broadcast time external searches are
// allowed to start.
func (c *SearchConfig) BroadcastWindow() time.Duration {
	return time.Duration(c.BroadcastWindowHours) * time.Hour
}

// PollInterval returns the queue monitor cadence.
func (c *DownloadConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// StallThreshold returns the minimum age before a download counts as stalled.
func (c *DownloadConfig) StallThreshold() time.Duration {
	return time.Duration(c.StallThresholdMinutes) * time.Minute
}

// Interval returns the DVR scheduler cadence.
func (c *DvrConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Window returns the DVR scheduling look-ahead.
func (c *DvrConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// PrePadding returns the recording lead time.
func (c *DvrConfig) PrePadding() time.Duration {
	return time.Duration(c.PrePaddingMinutes) * time.Minute
}

// PostPadding returns the recording tail time.
func (c *DvrConfig) PostPadding() time.Duration {
	return time.Duration(c.PostPaddingMinutes) * time.Minute
}

// TTL returns the release cache TTL.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// CleanupInterval returns the cache sweep cadence.
func (c *CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > .env file > config file > defaults.
func Load(configPath string) (*Config, error) {
	for _, envFile := range []string{".env", "configs/.env"} {
		if _, err := os.Stat(envFile); err == nil {
			_ = godotenv.Load(envFile)
			break
		}
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(dataDir())
	}

	v.SetEnvPrefix("SPORTARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	dir := dataDir()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8989)

	v.SetDefault("database.path", filepath.Join(dir, "sportarr.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", filepath.Join(dir, "logs"))
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("indexer.timeout_seconds", 100)
	v.SetDefault("indexer.max_results", 100)

	v.SetDefault("search.rss_interval_minutes", 15)
	v.SetDefault("search.search_interval_minutes", 60)
	v.SetDefault("search.broadcast_window_hours", 4)
	v.SetDefault("search.fanout_limit", 3)

	v.SetDefault("download.poll_interval_seconds", 30)
	v.SetDefault("download.stall_threshold_minutes", 10)
	v.SetDefault("download.remove_completed", true)
	v.SetDefault("download.remove_failed", true)
	v.SetDefault("download.redownload_failed", true)

	v.SetDefault("importer.root_folder", filepath.Join(dir, "library"))
	v.SetDefault("importer.use_hardlinks", true)

	v.SetDefault("dvr.interval_minutes", 15)
	v.SetDefault("dvr.window_days", 14)
	v.SetDefault("dvr.pre_padding_minutes", 5)
	v.SetDefault("dvr.post_padding_minutes", 30)
	v.SetDefault("dvr.recording_dir", filepath.Join(dir, "recordings"))

	v.SetDefault("cache.ttl_days", 7)
	v.SetDefault("cache.cleanup_interval_hours", 6)
}

// dataDir returns the platform-specific data directory.
func dataDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Sportarr")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", "Sportarr")
		}
	default:
		configHome := os.Getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			if home, err := os.UserHomeDir(); err == nil {
				configHome = filepath.Join(home, ".config")
			}
		}
		if configHome != "" {
			return filepath.Join(configHome, "sportarr")
		}
	}
	return "./data"
}
