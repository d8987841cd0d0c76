package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	MusicBrainz MusicBrainzConfig `yaml:"musicbrainz" mapstructure:"musicbrainz"`
	Artwork     ArtworkConfig     `yaml:"artwork" mapstructure:"artwork"`
	Scan        ScanConfig        `yaml:"scan" mapstructure:"scan"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the session event log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// CacheConfig configures the enrichment cache backend.
type CacheConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// MusicBrainzConfig holds MusicBrainz API settings.
type MusicBrainzConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ArtworkConfig holds the cover art lookup settings.
type ArtworkConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	PlaceholderURL string `yaml:"placeholder_url" mapstructure:"placeholder_url"`
}

// ScanConfig configures pipeline behavior for a scan session.
type ScanConfig struct {
	Tier1TimeoutSecs   int  `yaml:"tier1_timeout_secs" mapstructure:"tier1_timeout_secs"`
	Tier2TimeoutSecs   int  `yaml:"tier2_timeout_secs" mapstructure:"tier2_timeout_secs"`
	EnrichTimeoutSecs  int  `yaml:"enrich_timeout_secs" mapstructure:"enrich_timeout_secs"`
	ConfirmationHoldMS int  `yaml:"confirmation_hold_ms" mapstructure:"confirmation_hold_ms"`
	CooldownHours      int  `yaml:"cooldown_hours" mapstructure:"cooldown_hours"`
	Premium            bool `yaml:"premium" mapstructure:"premium"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("SLEEVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "sleeve-events.db")
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.sqlite_path", "sleeve-cache.db")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("musicbrainz.base_url", "https://musicbrainz.org/ws/2")
	v.SetDefault("musicbrainz.user_agent", "sleeve/1.0 (https://github.com/crateside/sleeve)")
	v.SetDefault("musicbrainz.rate_limit", 1.0)
	v.SetDefault("artwork.base_url", "https://itunes.apple.com")
	v.SetDefault("artwork.placeholder_url", "/static/placeholder-sleeve.png")
	v.SetDefault("scan.tier1_timeout_secs", 20)
	v.SetDefault("scan.tier2_timeout_secs", 45)
	v.SetDefault("scan.enrich_timeout_secs", 60)
	v.SetDefault("scan.confirmation_hold_ms", 400)
	v.SetDefault("scan.cooldown_hours", 24)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
