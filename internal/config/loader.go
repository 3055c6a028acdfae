package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// EnvPrefix prefixes environment overrides, e.g. INVBACKUP_DATABASE_PATH.
const EnvPrefix = "INVBACKUP"

// Config represents the top-level YAML configuration file.
type Config struct {
	Include  []string       `mapstructure:"include"  yaml:"include,omitempty"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Backup   BackupConfig   `mapstructure:"backup"   yaml:"backup"`
	Server   ServerConfig   `mapstructure:"server"   yaml:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Log      LogConfig      `mapstructure:"log"      yaml:"log"`
}

// DatabaseConfig locates the live database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// BackupConfig contains global backup options.
type BackupConfig struct {
	Directory       string        `mapstructure:"directory"        yaml:"directory"`
	LogFile         string        `mapstructure:"log_file"         yaml:"log_file,omitempty"`
	Compress        bool          `mapstructure:"compress"         yaml:"compress"`
	Verify          bool          `mapstructure:"verify"           yaml:"verify"`
	VerifyTimeout   time.Duration `mapstructure:"verify_timeout"   yaml:"verify_timeout"`
	TimestampFormat string        `mapstructure:"timestamp_format" yaml:"timestamp_format"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Address         string        `mapstructure:"address"          yaml:"address"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ScheduleConfig holds optional cron expressions per backup kind. Empty
// entries are not scheduled.
type ScheduleConfig struct {
	Full         string `mapstructure:"full"         yaml:"full,omitempty"`
	Incremental  string `mapstructure:"incremental"  yaml:"incremental,omitempty"`
	Differential string `mapstructure:"differential" yaml:"differential,omitempty"`
}

// LogConfig controls the application logger.
type LogConfig struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "database.db")
	v.SetDefault("backup.directory", "backups")
	v.SetDefault("backup.log_file", "")
	v.SetDefault("backup.compress", false)
	v.SetDefault("backup.verify", false)
	v.SetDefault("backup.verify_timeout", "30s")
	v.SetDefault("backup.timestamp_format", "20060102_150405")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.request_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("schedule.full", "")
	v.SetDefault("schedule.incremental", "")
	v.SetDefault("schedule.differential", "")
	v.SetDefault("log.debug", false)
}

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, applies INVBACKUP_* environment overrides and
// unmarshals into the Config struct. An empty path loads defaults only.
func (c *Config) Load(path string) error {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
		}

		for _, inc := range v.GetStringSlice("include") {
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(path), inc)
			}
			data, err := os.ReadFile(inc)
			if err != nil {
				return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
			}
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
			}
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.UnmarshalExact(c, hook); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	return c.Validate()
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Backup.Directory == "" {
		errs = append(errs, errors.New("backup.directory is required"))
	}
	if c.Backup.TimestampFormat == "" {
		errs = append(errs, errors.New("backup.timestamp_format is required"))
	} else if strings.ContainsAny(time.Now().Format(c.Backup.TimestampFormat), `/\`) {
		errs = append(errs, fmt.Errorf("backup.timestamp_format %q produces path separators", c.Backup.TimestampFormat))
	}
	if c.Backup.VerifyTimeout < 0 {
		errs = append(errs, errors.New("backup.verify_timeout must not be negative"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidateConfig, errors.Join(errs...))
	}
	return nil
}

// LogFilePath returns the configured backup log location, defaulting to
// backup_log.json inside the backup directory.
func (c *Config) LogFilePath() string {
	if c.Backup.LogFile != "" {
		return c.Backup.LogFile
	}
	return filepath.Join(c.Backup.Directory, "backup_log.json")
}
