package config

import (
	"fmt"
	"log"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds the environment-derived settings for the match engine: the
// document-store connection, worker pool sizing, and the path to the
// trial/collection key-mapping document consumed by internal/match/transform.
type Config struct {
	Env             string `mapstructure:"ENV"`
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDatabase   string `mapstructure:"MONGO_DATABASE"`
	MappingsFile    string `mapstructure:"MAPPINGS_FILE"`
	Workers         int    `mapstructure:"WORKERS"`
	MatchOnClosed   bool   `mapstructure:"MATCH_ON_CLOSED"`
	MatchOnDeceased bool   `mapstructure:"MATCH_ON_DECEASED"`
	QueryTimeoutMS  int    `mapstructure:"QUERY_TIMEOUT_MS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("MONGO_DATABASE", "matchminer")
	v.SetDefault("MAPPINGS_FILE", "config/mappings.json")
	v.SetDefault("WORKERS", defaultWorkerCount())
	v.SetDefault("MATCH_ON_CLOSED", false)
	v.SetDefault("MATCH_ON_DECEASED", false)
	v.SetDefault("QUERY_TIMEOUT_MS", 30000)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("MONGO_URI")
	v.BindEnv("MONGO_DATABASE")
	v.BindEnv("MAPPINGS_FILE")
	v.BindEnv("WORKERS")
	v.BindEnv("MATCH_ON_CLOSED")
	v.BindEnv("MATCH_ON_DECEASED")
	v.BindEnv("QUERY_TIMEOUT_MS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Match engine is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Logs use the human-readable console writer; do not use in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

// defaultWorkerCount mirrors the CLI surface's documented default of
// 5 * CPU count, used when -workers/WORKERS is unset.
func defaultWorkerCount() int {
	return 5 * runtime.NumCPU()
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI must be set")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	}
	if c.QueryTimeoutMS <= 0 {
		return fmt.Errorf("QUERY_TIMEOUT_MS must be positive, got %d", c.QueryTimeoutMS)
	}
	return nil
}
