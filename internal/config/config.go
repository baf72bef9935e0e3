// Package config loads service configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the API service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Fees      FeeConfig       `yaml:"fees"`
	Feed      FeedConfig      `yaml:"feed"`
	Platforms PlatformsConfig `yaml:"platforms"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig controls Postgres connectivity. An empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig controls the optional feed snapshot cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig mirrors pkg/logger configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// FeeConfig controls the embedded platform fee.
type FeeConfig struct {
	KalshiFeeAccount string `yaml:"kalshi_fee_account"`
	KalshiFeeBps     int    `yaml:"kalshi_fee_bps"`
	EVMFeeAccount    string `yaml:"evm_fee_account"`
	EVMFeeBps        int    `yaml:"evm_fee_bps"`
}

// FeedConfig controls the realtime feed subsystem.
type FeedConfig struct {
	CanaryEnabled       bool `yaml:"canary_enabled"`
	CanaryIntervalSecs  int  `yaml:"canary_interval_seconds"`
	BroadcastIntervalMS int  `yaml:"broadcast_interval_ms"`
	SnapshotTTLSecs     int  `yaml:"snapshot_ttl_seconds"`
}

// PlatformsConfig carries per-platform endpoints and credentials.
type PlatformsConfig struct {
	DFlow      DFlowConfig      `yaml:"dflow"`
	Polymarket PolymarketConfig `yaml:"polymarket"`
	Opinion    OpinionConfig    `yaml:"opinion"`
	Limitless  LimitlessConfig  `yaml:"limitless"`
	Myriad     MyriadConfig     `yaml:"myriad"`
}

// DFlowConfig configures the Kalshi adapter (traded through DFlow).
type DFlowConfig struct {
	APIKey      string `yaml:"api_key"`
	QuoteURL    string `yaml:"quote_url"`
	MetadataURL string `yaml:"metadata_url"`
}

// PolymarketConfig configures the Polymarket adapter.
type PolymarketConfig struct {
	CLOBURL  string `yaml:"clob_url"`
	GammaURL string `yaml:"gamma_url"`
}

// OpinionConfig configures the Opinion Labs adapter.
type OpinionConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// LimitlessConfig configures the Limitless adapter.
type LimitlessConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// MyriadConfig configures the Myriad adapter.
type MyriadConfig struct {
	APIURL       string `yaml:"api_url"`
	APIKey       string `yaml:"api_key"`
	ReferralCode string `yaml:"referral_code"`
	NetworkID    int64  `yaml:"network_id"`
}

// Default returns configuration matching the public endpoints of each
// platform so the service runs without a config file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Fees: FeeConfig{
			KalshiFeeBps: 50,
			EVMFeeBps:    50,
		},
		Feed: FeedConfig{
			CanaryEnabled:       true,
			CanaryIntervalSecs:  60,
			BroadcastIntervalMS: 5000,
			SnapshotTTLSecs:     30,
		},
		Platforms: PlatformsConfig{
			DFlow: DFlowConfig{
				QuoteURL:    "https://c.quote-api.dflow.net",
				MetadataURL: "https://c.prediction-markets-api.dflow.net",
			},
			Polymarket: PolymarketConfig{
				CLOBURL:  "https://clob.polymarket.com",
				GammaURL: "https://gamma-api.polymarket.com",
			},
			Opinion: OpinionConfig{
				APIURL: "https://proxy.opinion.trade:8443",
			},
			Limitless: LimitlessConfig{
				APIURL: "https://api.limitless.exchange",
			},
			Myriad: MyriadConfig{
				APIURL:    "https://api-v2.myriadprotocol.com",
				NetworkID: 2741,
			},
		},
	}
}

// Load reads config.yaml when present, then applies environment overrides.
func Load() (*Config, error) {
	return LoadFromPath(os.Getenv("CONFIG_PATH"))
}

// LoadFromPath loads configuration from a specific file path. An empty path
// tries config.yaml and tolerates its absence.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = "config.yaml"
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// No file is fine; defaults plus env cover local use.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")
	setString(&c.Server.Host, "SERVER_HOST")
	setInt(&c.Server.Port, "SERVER_PORT")

	setString(&c.Platforms.DFlow.APIKey, "DFLOW_API_KEY")
	setString(&c.Platforms.DFlow.QuoteURL, "DFLOW_API_BASE_URL")
	setString(&c.Platforms.DFlow.MetadataURL, "DFLOW_METADATA_URL")
	setString(&c.Platforms.Polymarket.CLOBURL, "POLYMARKET_API_URL")
	setString(&c.Platforms.Opinion.APIURL, "OPINION_API_URL")
	setString(&c.Platforms.Opinion.APIKey, "OPINION_API_KEY")
	setString(&c.Platforms.Limitless.APIURL, "LIMITLESS_API_URL")
	setString(&c.Platforms.Limitless.APIKey, "LIMITLESS_API_KEY")
	setString(&c.Platforms.Myriad.APIURL, "MYRIAD_API_URL")
	setString(&c.Platforms.Myriad.APIKey, "MYRIAD_API_KEY")
	setString(&c.Platforms.Myriad.ReferralCode, "MYRIAD_REFERRAL_CODE")
	setInt64(&c.Platforms.Myriad.NetworkID, "MYRIAD_NETWORK_ID")

	setString(&c.Fees.KalshiFeeAccount, "KALSHI_FEE_ACCOUNT")
	setInt(&c.Fees.KalshiFeeBps, "KALSHI_FEE_BPS")
	setString(&c.Fees.EVMFeeAccount, "EVM_FEE_ACCOUNT")
	setInt(&c.Fees.EVMFeeBps, "EVM_FEE_BPS")

	if v, ok := os.LookupEnv("FEED_CANARY_ENABLED"); ok {
		c.Feed.CanaryEnabled = strings.EqualFold(v, "true") || v == "1"
	}
}

func setString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
