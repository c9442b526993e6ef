package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"

	"image-optimizer-go/internal/logger"
)

// DefaultOutputDirName is the subfolder of the source directory that receives optimized copies.
const DefaultOutputDirName = "optimizadas"

// Config represents the main configuration structure
type Config struct {
	SourceDirectory     string            `mapstructure:"source_directory"`
	OutputDirName       string            `mapstructure:"output_dir_name"`
	Quality             int               `mapstructure:"quality"`
	MaxWidth            int               `mapstructure:"max_width"`
	SupportedExtensions []string          `mapstructure:"supported_extensions"`
	ExcludePatterns     []string          `mapstructure:"exclude_patterns"`
	Performance         PerformanceConfig `mapstructure:"performance"`
	Security            SecurityConfig    `mapstructure:"security"`
	Logging             LoggingConfig     `mapstructure:"logging"`
	Web                 WebConfig         `mapstructure:"web"`
}

// PerformanceConfig contains performance tuning settings
type PerformanceConfig struct {
	// Workers is the number of files optimized at once. 1 keeps the batch strictly sequential.
	Workers int `mapstructure:"workers"`
}

// SecurityConfig contains security and safety settings
type SecurityConfig struct {
	DryRun bool `mapstructure:"dry_run"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
	Compress   bool   `mapstructure:"compress"`
}

// WebConfig contains settings for the serve command
type WebConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	logDefaults := logger.DefaultConfig()
	return &Config{
		OutputDirName: DefaultOutputDirName,
		Quality:       80,
		MaxWidth:      1920,
		SupportedExtensions: []string{
			".jpg", ".jpeg", ".png", ".bmp", ".webp",
		},
		ExcludePatterns: []string{},
		Performance: PerformanceConfig{
			Workers: 1,
		},
		Security: SecurityConfig{
			DryRun: false,
		},
		Logging: LoggingConfig{
			Level:      logDefaults.Level,
			FilePath:   logDefaults.FilePath,
			MaxSize:    logDefaults.MaxSize,
			MaxBackups: logDefaults.MaxBackups,
			MaxAge:     logDefaults.MaxAge,
			Compress:   logDefaults.Compress,
		},
		Web: WebConfig{
			Port: 8080,
		},
	}
}

// LoadConfig loads configuration from file and environment variables.
// An empty configPath searches the default locations; a missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	config := DefaultConfig()
	setDefaults(v, config)

	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.image-optimizer")
		v.AddConfigPath("/etc/image-optimizer")
	}

	v.SetEnvPrefix("IMAGE_OPTIMIZER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// setDefaults registers every key with viper so environment overrides apply on Unmarshal.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("source_directory", c.SourceDirectory)
	v.SetDefault("output_dir_name", c.OutputDirName)
	v.SetDefault("quality", c.Quality)
	v.SetDefault("max_width", c.MaxWidth)
	v.SetDefault("supported_extensions", c.SupportedExtensions)
	v.SetDefault("exclude_patterns", c.ExcludePatterns)
	v.SetDefault("performance.workers", c.Performance.Workers)
	v.SetDefault("security.dry_run", c.Security.DryRun)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.file_path", c.Logging.FilePath)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.compress", c.Logging.Compress)
	v.SetDefault("web.port", c.Web.Port)
}

// Validate normalizes the configuration and rejects settings that cannot work.
// Quality is passed through untouched; the encoder decides what it accepts.
// Source directory existence is checked by the optimizer at run time.
func (c *Config) Validate() error {
	if c.OutputDirName == "" {
		c.OutputDirName = DefaultOutputDirName
	}
	if strings.ContainsAny(c.OutputDirName, `/\`) {
		return fmt.Errorf("output_dir_name must be a plain folder name: %s", c.OutputDirName)
	}

	if c.MaxWidth <= 0 {
		c.MaxWidth = 1920
	}

	if len(c.SupportedExtensions) == 0 {
		c.SupportedExtensions = DefaultConfig().SupportedExtensions
	}
	c.SupportedExtensions = normalizeExtensions(c.SupportedExtensions)

	for _, pattern := range c.ExcludePatterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid exclude pattern: %s", pattern)
		}
	}

	if c.Performance.Workers <= 0 {
		c.Performance.Workers = 1
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		c.Web.Port = 8080
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

func normalizeExtensions(extensions []string) []string {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized[i] = ext
	}
	return normalized
}
