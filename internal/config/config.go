package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Store   StoreConfig   `mapstructure:"store"`
	Output  OutputConfig  `mapstructure:"output"`
	Mapper  MapperConfig  `mapstructure:"mapper"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string `mapstructure:"port"`
	Host            string `mapstructure:"host"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

// Addr is the listen address of the API server.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig holds the job store configuration
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// OutputConfig holds table export configuration
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	Format      string `mapstructure:"format"`
	WriteHeader bool   `mapstructure:"write_header"`
	Manifest    bool   `mapstructure:"manifest"`
}

// MapperConfig holds mapper defaults
type MapperConfig struct {
	RootTable string `mapstructure:"root_table"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Textfile, when set, receives the metrics of a CLI run in the
	// node_exporter textfile format.
	Textfile string `mapstructure:"textfile"`
}

// Output formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"output":           "output.dir",
	"format":           "output.format",
	"manifest":         "output.manifest",
	"table":            "mapper.root_table",
	"log-level":        "logging.level",
	"log-format":       "logging.format",
	"port":             "server.port",
	"host":             "server.host",
	"db":               "store.path",
	"metrics-textfile": "metrics.textfile",
}

// LoadConfig loads configuration from defaults, an optional config file,
// CSVMAP_* environment variables and flags, in increasing priority.
// flags may be nil.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.shutdown_timeout", 10)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("store.path", "./csvmap.db")
	v.SetDefault("output.dir", "./output")
	v.SetDefault("output.format", FormatCSV)
	v.SetDefault("output.write_header", true)
	v.SetDefault("output.manifest", false)
	v.SetDefault("mapper.root_table", "root")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.textfile", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("csvmap")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("no-header"); f != nil && f.Changed {
			v.Set("output.write_header", f.Value.String() != "true")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects values the application cannot run with.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatCSV, FormatSQLite:
	default:
		return fmt.Errorf("unsupported output format %q", c.Output.Format)
	}
	if c.Mapper.RootTable == "" {
		return errors.New("mapper.root_table must not be empty")
	}
	return nil
}
