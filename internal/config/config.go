// Package config loads batchforge configuration from files and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/batchforge/batchforge/internal/models"
)

// Config errors.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidConfig  = errors.New("invalid config")
)

// Config holds all batchforge settings.
type Config struct {
	// Database is the path to the SQLite database.
	Database string `mapstructure:"database"`

	// SkeletonDirs are extra skeleton directories searched before the
	// standard locations.
	SkeletonDirs []string `mapstructure:"skeleton_dirs"`

	Remote Remote `mapstructure:"remote"`
	Slurm  Slurm  `mapstructure:"slurm"`
	Watch  Watch  `mapstructure:"watch"`
	Run    Run    `mapstructure:"run"`
	Log    Log    `mapstructure:"log"`
}

// Remote describes the SSH submission host. An empty host means jobs are
// submitted on the local machine.
type Remote struct {
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	User       string        `mapstructure:"user"`
	KeyPath    string        `mapstructure:"key_path"`
	ProxyJump  string        `mapstructure:"proxy_jump"`
	WorkDir    string        `mapstructure:"workdir"`
	Timeout    time.Duration `mapstructure:"timeout"`
	KnownHosts []string      `mapstructure:"known_hosts"`
}

// Slurm holds scheduler command paths, for clusters where the binaries are
// not on the default PATH.
type Slurm struct {
	Sbatch  string `mapstructure:"sbatch"`
	Scancel string `mapstructure:"scancel"`
	Squeue  string `mapstructure:"squeue"`
	Sacct   string `mapstructure:"sacct"`
}

// Watch controls state polling.
type Watch struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Run controls maker runs.
type Run struct {
	MaxFailures int `mapstructure:"max_failures"`
}

// Log controls logging output.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: defaultDatabasePath(),
		Remote: Remote{
			Port:    22,
			WorkDir: "~/.batchforge/scripts",
			Timeout: 30 * time.Second,
		},
		Watch: Watch{
			PollInterval: 30 * time.Second,
		},
		Run: Run{
			MaxFailures: 3,
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from the given file, or from the standard search
// paths when path is empty. Environment variables prefixed with BATCHFORGE_
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := DefaultConfig()
	v.SetDefault("database", defaults.Database)
	v.SetDefault("remote.port", defaults.Remote.Port)
	v.SetDefault("remote.workdir", defaults.Remote.WorkDir)
	v.SetDefault("remote.timeout", defaults.Remote.Timeout)
	v.SetDefault("watch.poll_interval", defaults.Watch.PollInterval)
	v.SetDefault("run.max_failures", defaults.Run.MaxFailures)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix("BATCHFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so bind the keys that
	// have no default explicitly.
	for _, key := range []string{
		"skeleton_dirs",
		"remote.host", "remote.user", "remote.key_path", "remote.proxy_jump", "remote.known_hosts",
		"slurm.sbatch", "slurm.scancel", "slurm.squeue", "slurm.sacct",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		for _, dir := range searchDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// No config file is fine; defaults plus environment apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	validation := &models.ValidationErrors{}

	if strings.TrimSpace(c.Database) == "" {
		validation.AddMessage("database", "database path is required")
	}
	if c.Remote.Port < 0 || c.Remote.Port > 65535 {
		validation.AddMessage("remote.port", fmt.Sprintf("invalid port %d", c.Remote.Port))
	}
	if c.Watch.PollInterval < time.Second {
		validation.AddMessage("watch.poll_interval", "poll interval must be at least 1s")
	}
	if c.Run.MaxFailures < 0 {
		validation.AddMessage("run.max_failures", "max failures cannot be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "":
	default:
		validation.AddMessage("log.level", "unknown log level "+c.Log.Level)
	}

	if err := validation.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// RemoteEnabled reports whether jobs are submitted over SSH.
func (c *Config) RemoteEnabled() bool {
	return strings.TrimSpace(c.Remote.Host) != ""
}

func searchDirs() []string {
	dirs := []string{filepath.Join(".", ".batchforge")}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "batchforge"))
	}
	dirs = append(dirs, "/etc/batchforge")
	return dirs
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "batchforge.db"
	}
	return filepath.Join(home, ".local", "share", "batchforge", "batchforge.db")
}
