package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/sizes"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	DBPath    string `mapstructure:"db-path"`
	FSMDBPath string `mapstructure:"fsm-db-path"`

	// Where fetched archives and scratch mounts live
	ArchiveDir string `mapstructure:"archive-dir"`
	WorkDir    string `mapstructure:"work-dir"`

	// S3 configuration for s3:// mirrors
	S3Region string `mapstructure:"s3-region"`

	// Partition layout
	BootSize string `mapstructure:"boot-size"`

	// Free space required before the download and populate stages
	DownloadHeadroom string `mapstructure:"download-headroom"`
	PopulateHeadroom string `mapstructure:"populate-headroom"`

	// HTTP transfer retries
	HTTPRetryMax int `mapstructure:"http-retry-max"`

	// Extra mirrors (id -> URL) merged over the built-in registry
	Mirrors map[string]string `mapstructure:"mirrors"`

	// Install hint overrides (tool -> command) merged over the platform
	// defaults
	ToolHints map[string]string `mapstructure:"tool-hints"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("db-path", ".artifacts/builds.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("archive-dir", ".")
	viper.SetDefault("work-dir", "/tmp/alarmimg")
	viper.SetDefault("s3-region", "us-east-1")
	viper.SetDefault("boot-size", "300M")
	viper.SetDefault("download-headroom", "2G")
	viper.SetDefault("populate-headroom", "4G")
	viper.SetDefault("http-retry-max", 4)
	viper.SetDefault("mirrors", map[string]string{})
	viper.SetDefault("tool-hints", map[string]string{})

	// Environment variables (will be ALARMIMG_DB_PATH, etc.)
	viper.SetEnvPrefix("ALARMIMG")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.alarmimg")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.ArchiveDir == "" {
		return fmt.Errorf("archive-dir cannot be empty")
	}
	if c.WorkDir == "" {
		return fmt.Errorf("work-dir cannot be empty")
	}
	if _, err := sizes.Parse(c.BootSize); err != nil {
		return fmt.Errorf("boot-size invalid: %w", err)
	}
	if _, err := sizes.Parse(c.DownloadHeadroom); err != nil {
		return fmt.Errorf("download-headroom invalid: %w", err)
	}
	if _, err := sizes.Parse(c.PopulateHeadroom); err != nil {
		return fmt.Errorf("populate-headroom invalid: %w", err)
	}
	if c.HTTPRetryMax < 0 {
		return fmt.Errorf("http-retry-max must be non-negative")
	}
	return nil
}
