// Package config loads taskport settings from defaults, an optional taskport.yaml, a
// .env file and TASKPORT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "TASKPORT"
	FileName  = "taskport"
)

// Keys
const (
	KeyIncludeMetadata = "export.include_metadata"
	KeyIncludeDeleted  = "export.include_deleted"
	KeyPretty          = "export.pretty"
	KeySource          = "export.source"
	KeySkipInvalid     = "import.skip_invalid"
	KeyMappingCache    = "import.mapping_cache"
	KeyConcurrency     = "import.concurrency"
	KeyLogLevel        = "log.level"
	KeyLogFormat       = "log.format"
	KeyOutputDir       = "output.dir"
)

var ErrInvalid = errors.New("invalid config")

type Export struct {
	IncludeMetadata bool   `mapstructure:"include_metadata"`
	IncludeDeleted  bool   `mapstructure:"include_deleted"`
	Pretty          bool   `mapstructure:"pretty"`
	Source          string `mapstructure:"source"`
}

type Import struct {
	SkipInvalid  bool `mapstructure:"skip_invalid"`
	MappingCache int  `mapstructure:"mapping_cache"`
	Concurrency  int  `mapstructure:"concurrency"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Output struct {
	Dir string `mapstructure:"dir"`
}

type Config struct {
	Export Export `mapstructure:"export"`
	Import Import `mapstructure:"import"`
	Log    Log    `mapstructure:"log"`
	Output Output `mapstructure:"output"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyIncludeMetadata, true)
	v.SetDefault(KeyIncludeDeleted, false)
	v.SetDefault(KeyPretty, true)
	v.SetDefault(KeySource, "taskport")
	v.SetDefault(KeySkipInvalid, false)
	v.SetDefault(KeyMappingCache, 128)
	v.SetDefault(KeyConcurrency, 4)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyOutputDir, "exports")
}

// Options controls where Load looks. Zero values use the working directory and
// $HOME/.config/taskport.
type Options struct {
	// ConfigFile, when set, is the only config file read and must exist.
	ConfigFile string
	// SearchPaths replaces the default directories searched for taskport.yaml.
	SearchPaths []string
	// EnvFile is loaded into the process environment before reading. Empty means
	// ".env"; a missing file is ignored.
	EnvFile string
}

// New returns a viper instance with defaults, file search paths and env binding set up,
// without reading anything.
func New(opts Options) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		return v
	}
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	paths := opts.SearchPaths
	if paths == nil {
		paths = defaultSearchPaths()
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	return v
}

func defaultSearchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "taskport"))
	}
	return paths
}

// Load reads the configuration. A missing taskport.yaml is not an error unless
// ConfigFile names it explicitly.
func Load(opts Options) (*Config, *viper.Viper, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrInvalid, envFile, err)
	}

	v := New(opts)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return &cfg, v, nil
}

func (c *Config) Validate() error {
	if c.Import.MappingCache < 0 {
		return fmt.Errorf("%w: %s must not be negative", ErrInvalid, KeyMappingCache)
	}
	if c.Import.Concurrency < 1 {
		return fmt.Errorf("%w: %s must be at least 1", ErrInvalid, KeyConcurrency)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalid, KeyOutputDir)
	}
	return nil
}
