// Package config loads the command line tool configuration from defaults, an
// optional yaml file, CREXPLACE_* environment variables and bound flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/giannisaf2/crexdata-public/internal/logger"
	"github.com/giannisaf2/crexdata-public/internal/nats"
	"github.com/giannisaf2/crexdata-public/internal/tracing"
	"github.com/giannisaf2/crexdata-public/pkg/optimizer"
	"github.com/giannisaf2/crexdata-public/pkg/pipeline"
)

const (
	// AppName is the application name used for config file lookup
	AppName = "crexplace"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "CREXPLACE"
)

// Storage providers for debug dumps.
const (
	StorageFile  = "file"
	StorageAzure = "azure"
)

// Config holds the application configuration
type Config struct {
	Log       logger.Config         `mapstructure:"log"`
	NATS      nats.ConnectionConfig `mapstructure:"nats"`
	Optimizer OptimizerConfig       `mapstructure:"optimizer"`
	Pipeline  pipeline.Config       `mapstructure:"pipeline"`
	Sites     []pipeline.Site       `mapstructure:"sites"`
	Dump      optimizer.DumpPaths   `mapstructure:"dump"`
	Storage   StorageConfig         `mapstructure:"storage"`
	Tracing   tracing.TracingConfig `mapstructure:"tracing"`
	Sentry    SentryConfig          `mapstructure:"sentry"`
}

// OptimizerConfig configures the optimizer session.
type OptimizerConfig struct {
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PollingTimeout time.Duration `mapstructure:"polling_timeout"`
	StopInterval   time.Duration `mapstructure:"stop_interval"`
	QueueCapacity  int           `mapstructure:"queue_capacity"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

// StorageConfig selects where debug documents are written.
type StorageConfig struct {
	Provider string `mapstructure:"provider"` // file or azure
	Root     string `mapstructure:"root"`

	Azure struct {
		ConnectionString string `mapstructure:"connection_string"`
		Container        string `mapstructure:"container"`
		Prefix           string `mapstructure:"prefix"`
	} `mapstructure:"azure"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// New returns a viper instance with defaults and environment lookup in place.
// Flags are bound to it before Load is called.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.format", logger.FormatHuman)
	v.SetDefault("log.debug", false)

	natsDefaults := nats.DefaultConnectionConfig("nats://127.0.0.1:4222")
	v.SetDefault("nats.url", natsDefaults.URL)
	v.SetDefault("nats.name", natsDefaults.Name)
	v.SetDefault("nats.max_reconnects", natsDefaults.MaxReconnects)
	v.SetDefault("nats.reconnect_wait", natsDefaults.ReconnectWait)
	v.SetDefault("nats.timeout", natsDefaults.Timeout)

	v.SetDefault("optimizer.topic_prefix", "optimizer.")
	v.SetDefault("optimizer.connect_timeout", optimizer.DefaultConnectTimeout)
	v.SetDefault("optimizer.polling_timeout", optimizer.DefaultPollingTimeout)
	v.SetDefault("optimizer.stop_interval", optimizer.DefaultStopInterval)
	v.SetDefault("optimizer.queue_capacity", optimizer.DefaultQueueCapacity)

	v.SetDefault("pipeline.network_name", "network")
	v.SetDefault("pipeline.dictionary_name", "dictionary")
	v.SetDefault("pipeline.algorithm", string(optimizer.AlgorithmGreedy))
	v.SetDefault("pipeline.number_of_plans", 1)
	v.SetDefault("pipeline.connection_entry", "/connections/kafka")

	v.SetDefault("storage.provider", StorageFile)
	v.SetDefault("storage.root", ".")

	tracingDefaults := tracing.DefaultConfig(AppName)
	v.SetDefault("tracing.enabled", tracingDefaults.Enabled)
	v.SetDefault("tracing.service_name", tracingDefaults.ServiceName)
	v.SetDefault("tracing.service_version", tracingDefaults.ServiceVersion)
	v.SetDefault("tracing.environment", tracingDefaults.Environment)
	v.SetDefault("tracing.otlp_endpoint", tracingDefaults.OTLPEndpoint)
	v.SetDefault("tracing.insecure", tracingDefaults.Insecure)
	v.SetDefault("tracing.sample_ratio", tracingDefaults.SampleRatio)
}

// Load reads cfgFile, or crexplace.yaml from the working directory when
// cfgFile is empty, and unmarshals the merged settings. A missing default
// file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable fallback.
func (c *Config) Validate() error {
	algorithm, err := optimizer.ParseAlgorithm(string(c.Pipeline.Algorithm))
	if err != nil {
		return err
	}
	c.Pipeline.Algorithm = algorithm

	switch c.Storage.Provider {
	case StorageFile, "":
	case StorageAzure:
		if c.Storage.Azure.ConnectionString == "" || c.Storage.Azure.Container == "" {
			return fmt.Errorf("azure storage needs a connection string and a container")
		}
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}

	if c.Optimizer.QueueCapacity <= 0 {
		return fmt.Errorf("optimizer queue capacity must be positive, got %d", c.Optimizer.QueueCapacity)
	}
	for _, site := range c.Sites {
		if site.Name == "" {
			return fmt.Errorf("site without a name")
		}
	}
	return nil
}
