// Package config loads the service settings from settings.toml, the
// environment and the command line.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StorageInMemory = "in-memory"
	StoragePostgres = "postgres"
	StorageMongo    = "mongo"
)

// Config holds the settings the server is started with.
type Config struct {
	Port string

	StorageType   string
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string
	StoreTimeout  time.Duration
	MockData      bool

	LogLevel string

	CacheEnabled    bool
	CacheMaxEntries int64
	CacheTTL        time.Duration

	SweeperSchedule string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("storage.type", StorageInMemory)
	v.SetDefault("storage.mock_data", true)
	v.SetDefault("mongo.database", "community")
	v.SetDefault("store.timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.max_entries", 10000)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("sweeper.schedule", "@every 60m")
}

// Load reads settings.toml from the working directory or its parent, a
// .env file, CONTENT_* environment variables and the flags in args, each
// overriding the one before. A missing settings file or .env is fine.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.SetConfigName("settings")
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	v.SetEnvPrefix("CONTENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT and DATABASE_URL are still honoured for older deployments.
	if err := v.BindEnv("port", "CONTENT_PORT", "PORT"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("postgres.dsn", "CONTENT_POSTGRES_DSN", "DATABASE_URL"); err != nil {
		return nil, err
	}

	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.String("storage", StorageInMemory, "Storage type (in-memory, postgres or mongo)")
	flags.String("port", "8080", "HTTP port")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("storage.type", flags.Lookup("storage")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("port", flags.Lookup("port")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:            v.GetString("port"),
		StorageType:     v.GetString("storage.type"),
		PostgresDSN:     v.GetString("postgres.dsn"),
		MongoURI:        v.GetString("mongo.uri"),
		MongoDatabase:   v.GetString("mongo.database"),
		StoreTimeout:    v.GetDuration("store.timeout"),
		MockData:        v.GetBool("storage.mock_data"),
		LogLevel:        v.GetString("log.level"),
		CacheEnabled:    v.GetBool("cache.enabled"),
		CacheMaxEntries: v.GetInt64("cache.max_entries"),
		CacheTTL:        v.GetDuration("cache.ttl"),
		SweeperSchedule: v.GetString("sweeper.schedule"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageType {
	case StorageInMemory:
	case StoragePostgres:
		if c.PostgresDSN == "" {
			return errors.New("postgres.dsn (or DATABASE_URL) must be set for postgres storage")
		}
	case StorageMongo:
		if c.MongoURI == "" {
			return errors.New("mongo.uri must be set for mongo storage")
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.StorageType)
	}
	if c.CacheEnabled && c.CacheMaxEntries <= 0 {
		return errors.New("cache.max_entries must be positive")
	}
	return nil
}
