// Package config loads application configuration from file and
// environment, and owns global logger setup.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Audit  AuditConfig  `yaml:"audit" mapstructure:"audit"`
	Graph  GraphConfig  `yaml:"graph" mapstructure:"graph"`
	Places PlacesConfig `yaml:"places" mapstructure:"places"`
	Enrich EnrichConfig `yaml:"enrich" mapstructure:"enrich"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AuditConfig configures the website audit sweep.
type AuditConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxBytes    int `yaml:"max_bytes" mapstructure:"max_bytes"`
	DelayMillis int `yaml:"delay_millis" mapstructure:"delay_millis"`
	BatchLimit  int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// GraphConfig holds Meta Graph API credentials.
type GraphConfig struct {
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
	IGUserID    string `yaml:"ig_user_id" mapstructure:"ig_user_id"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
}

// PlacesConfig holds Google Places API credentials.
type PlacesConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// EnrichConfig configures website email enrichment.
type EnrichConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Workers     int  `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leads.db")
	// Credential keys default to empty so env-only values still bind.
	v.SetDefault("store.database_url", "")
	v.SetDefault("graph.access_token", "")
	v.SetDefault("graph.ig_user_id", "")
	v.SetDefault("graph.base_url", "")
	v.SetDefault("places.key", "")
	v.SetDefault("places.base_url", "")
	v.SetDefault("audit.timeout_secs", 10)
	v.SetDefault("audit.max_bytes", 450_000)
	v.SetDefault("audit.delay_millis", 1000)
	v.SetDefault("audit.batch_limit", 25)
	v.SetDefault("enrich.enabled", true)
	v.SetDefault("enrich.timeout_secs", 8)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// WriteDefault writes a starter config file with the default values.
// Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return eris.Errorf("config: %s already exists", path)
	}

	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return eris.Wrap(err, "config: unmarshal defaults")
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return eris.Wrap(err, "config: marshal yaml")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "config: write file")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
