// Package config loads photosync settings from an optional YAML file
// and PHOTOSYNC_* environment variables. CLI flags override anything
// loaded here.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the CLI can read from a file or the
// environment.
type Config struct {
	Src         string        `mapstructure:"src"`
	Dst         string        `mapstructure:"dst"`
	Mode        string        `mapstructure:"mode"`
	Layout      string        `mapstructure:"layout"`
	Policy      string        `mapstructure:"policy"`
	Algo        string        `mapstructure:"algo"`
	Workers     int           `mapstructure:"workers"`
	HashWorkers int           `mapstructure:"hash_workers"`
	BWLimit     string        `mapstructure:"bwlimit"`
	MinSize     string        `mapstructure:"min_size"`
	Exclude     []string      `mapstructure:"exclude"`
	Include     []string      `mapstructure:"include"`
	IgnoreDirs  []string      `mapstructure:"ignore_dirs"`
	DryRun      bool          `mapstructure:"dry_run"`
	NoCache     bool          `mapstructure:"no_cache"`
	StateDir    string        `mapstructure:"state_dir"`
	LogFile     string        `mapstructure:"log_file"`
	Debounce    time.Duration `mapstructure:"debounce"`
}

// Default is the configuration used when no file and no environment
// variables are present.
var Default = Config{
	Mode:     "copy",
	Layout:   "date",
	Policy:   "alias",
	Algo:     "xxh64",
	Workers:  4,
	Debounce: 2 * time.Second,
}

// Dir returns the directory searched for photosync.yaml.
func Dir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "photosync")
}

// Load reads photosync.yaml from the config directory plus PHOTOSYNC_*
// environment variables. A missing file is not an error; the config is
// always optional.
func Load() (Config, error) {
	return load(Dir())
}

func load(dir string) (Config, error) {
	v := viper.New()
	v.SetConfigName("photosync")
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}

	v.SetDefault("src", Default.Src)
	v.SetDefault("dst", Default.Dst)
	v.SetDefault("mode", Default.Mode)
	v.SetDefault("layout", Default.Layout)
	v.SetDefault("policy", Default.Policy)
	v.SetDefault("algo", Default.Algo)
	v.SetDefault("workers", Default.Workers)
	v.SetDefault("hash_workers", Default.HashWorkers)
	v.SetDefault("bwlimit", Default.BWLimit)
	v.SetDefault("min_size", Default.MinSize)
	v.SetDefault("exclude", Default.Exclude)
	v.SetDefault("include", Default.Include)
	v.SetDefault("ignore_dirs", Default.IgnoreDirs)
	v.SetDefault("dry_run", Default.DryRun)
	v.SetDefault("no_cache", Default.NoCache)
	v.SetDefault("state_dir", Default.StateDir)
	v.SetDefault("log_file", Default.LogFile)
	v.SetDefault("debounce", Default.Debounce)

	v.SetEnvPrefix("PHOTOSYNC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
