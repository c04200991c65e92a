// Package config loads application configuration from a YAML file and
// HYDRO_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/lehydrosys/hydrobridge/pkg/bridge"
	"github.com/lehydrosys/hydrobridge/pkg/ingest"
	"github.com/lehydrosys/hydrobridge/pkg/query"
	"github.com/lehydrosys/hydrobridge/pkg/relay"
	"github.com/lehydrosys/hydrobridge/pkg/store"
)

// Config holds application-wide configuration.
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   store.Config  `mapstructure:"store"`
	Broker  bridge.Config `mapstructure:"broker"`
	Topics  TopicsConfig  `mapstructure:"topics"`
	Ingest  ingest.Config `mapstructure:"ingest"`
	Command CommandConfig `mapstructure:"command"`
	Query   QueryConfig   `mapstructure:"query"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type HTTPConfig struct {
	ListenAddr string `mapstructure:"listenAddr"`
}

// TopicsConfig names the broker topics; they are configured, never
// negotiated.
type TopicsConfig struct {
	Telemetry string `mapstructure:"telemetry"`
	Command   string `mapstructure:"command"`
}

type CommandConfig struct {
	Vocabulary []string `mapstructure:"vocabulary"`
}

type QueryConfig struct {
	DefaultLimit int `mapstructure:"defaultLimit"`
	MaxLimit     int `mapstructure:"maxLimit"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Default returns the configuration used when nothing is provided: a local
// Postgres and MQTT broker, the stock two-relay controller vocabulary, and
// the topics the ESP32 firmware publishes on.
func Default() Config {
	return Config{
		HTTP:   HTTPConfig{ListenAddr: ":8080"},
		Store:  store.DefaultConfig(),
		Broker: bridge.DefaultConfig(),
		Topics: TopicsConfig{
			Telemetry: "esp32/sensors",
			Command:   "esp32/relay",
		},
		Ingest:  ingest.DefaultConfig(),
		Command: CommandConfig{Vocabulary: relay.DefaultVocabulary},
		Query:   QueryConfig{DefaultLimit: query.DefaultLimit, MaxLimit: query.MaxLimit},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9100"},
	}
}

// Load reads config from file or environment. A missing config file is not
// an error; defaults and env vars apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("hydrobridge")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("HYDRO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Default()
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Store.ConnString == "" {
		return nil, fmt.Errorf("store.connString is required (HYDRO_STORE_CONNSTRING)")
	}
	return &cfg, nil
}

// setDefaults mirrors Default so env-only overrides see every key.
func setDefaults(v *viper.Viper) {
	def := Default()

	v.SetDefault("http.listenAddr", def.HTTP.ListenAddr)
	// Registered with an empty default so the env override is visible to
	// Unmarshal even without a config file.
	v.SetDefault("store.connString", "")
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("store.poolSize", def.Store.PoolSize)
	v.SetDefault("store.acquireTimeout", def.Store.AcquireTimeout)
	v.SetDefault("store.retryDelay", def.Store.RetryDelay)
	v.SetDefault("broker.driver", def.Broker.Driver)
	v.SetDefault("broker.url", def.Broker.URL)
	v.SetDefault("broker.clientID", def.Broker.ClientID)
	v.SetDefault("broker.retryDelay", def.Broker.RetryDelay)
	v.SetDefault("topics.telemetry", def.Topics.Telemetry)
	v.SetDefault("topics.command", def.Topics.Command)
	v.SetDefault("ingest.queueSize", def.Ingest.QueueSize)
	v.SetDefault("ingest.workers", def.Ingest.Workers)
	v.SetDefault("ingest.writeTimeout", def.Ingest.WriteTimeout)
	v.SetDefault("command.vocabulary", def.Command.Vocabulary)
	v.SetDefault("query.defaultLimit", def.Query.DefaultLimit)
	v.SetDefault("query.maxLimit", def.Query.MaxLimit)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.addr", def.Metrics.Addr)
}
