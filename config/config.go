package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top level application configuration loaded from YAML.
type Config struct {
	Synthetics SyntheticsConfig `yaml:"synthetics"`
	Chain      ChainConfig      `yaml:"chain"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Keeper     KeeperConfig     `yaml:"keeper"`
	API        APIConfig        `yaml:"api"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type SyntheticsConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ChainConfig selects the network profile and drives the simulated block
// clock used to pin deposits to a creation block.
type ChainConfig struct {
	Network       string        `yaml:"network"`
	BlockInterval time.Duration `yaml:"block_interval"`
	TokensFile    string        `yaml:"tokens_file"`
	MarketsFile   string        `yaml:"markets_file"`
}

type ChannelsConfig struct {
	SettlementBuffer int `yaml:"settlement_buffer"`
}

// OracleConfig configures the price sources feeding the keeper's price
// cache and the validity window applied to observations.
type OracleConfig struct {
	MaxPriceAge time.Duration     `yaml:"max_price_age"`
	Binance     PriceSourceConfig `yaml:"binance"`
	Bybit       PriceSourceConfig `yaml:"bybit"`
	Kucoin      PriceSourceConfig `yaml:"kucoin"`
}

// PriceSourceConfig configures a single exchange price source. Streaming
// sources use URL and ReconnectDelay; polling sources use URL and Interval.
type PriceSourceConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	URL            string               `yaml:"url"`
	Interval       time.Duration        `yaml:"interval"`
	ReconnectDelay time.Duration        `yaml:"reconnect_delay"`
	Symbols        []string             `yaml:"symbols"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Timeout        time.Duration        `yaml:"timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

// KeeperConfig drives the execution keeper loop.
type KeeperConfig struct {
	Enabled      bool            `yaml:"enabled"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	BatchSize    int             `yaml:"batch_size"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// APIConfig configures the HTTP surface used to create, inspect and cancel
// deposits.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// ArchiveConfig configures where settlement records are written. When S3 is
// disabled batches are written to LocalDir instead.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	LocalDir      string        `yaml:"local_dir"`
	S3            S3Config      `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch    bool   `yaml:"cloudwatch"`
	Namespace     string `yaml:"namespace"`
	Region        string `yaml:"region"`
	DashboardName string `yaml:"dashboard_name"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and validates the application configuration. AWS
// credentials and region may be overridden from the environment so deployed
// instances never keep secrets in the config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Channels: ChannelsConfig{SettlementBuffer: 256},
		Keeper: KeeperConfig{
			PollInterval: time.Second,
			BatchSize:    16,
		},
		Oracle: OracleConfig{MaxPriceAge: 30 * time.Second},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Archive.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Archive.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Archive.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Archive.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Archive.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Archive.S3.Bucket = strings.TrimSpace(config.Archive.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Synthetics.Name == "" {
		return fmt.Errorf("synthetics.name is required")
	}
	if cfg.Synthetics.Version == "" {
		return fmt.Errorf("synthetics.version is required")
	}

	if cfg.Chain.Network == "" {
		return fmt.Errorf("chain.network is required")
	}
	if !IsKnownNetwork(cfg.Chain.Network) {
		return fmt.Errorf("chain.network '%s' is not a known network", cfg.Chain.Network)
	}
	if cfg.Chain.BlockInterval <= 0 {
		return fmt.Errorf("chain.block_interval must be greater than 0")
	}

	if cfg.Channels.SettlementBuffer <= 0 {
		return fmt.Errorf("channels.settlement_buffer must be greater than 0")
	}

	if cfg.Keeper.Enabled {
		if cfg.Keeper.PollInterval <= 0 {
			return fmt.Errorf("keeper.poll_interval must be greater than 0")
		}
		if cfg.Keeper.BatchSize <= 0 {
			return fmt.Errorf("keeper.batch_size must be greater than 0")
		}
	}

	if cfg.API.Enabled && cfg.API.Address == "" {
		return fmt.Errorf("api.address is required when the api is enabled")
	}

	if cfg.Oracle.MaxPriceAge <= 0 {
		return fmt.Errorf("oracle.max_price_age must be greater than 0")
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.BatchSize <= 0 {
			return fmt.Errorf("archive.batch_size must be greater than 0")
		}
		if cfg.Archive.FlushInterval <= 0 {
			return fmt.Errorf("archive.flush_interval must be greater than 0")
		}
		if !cfg.Archive.S3.Enabled && cfg.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required when S3 is disabled")
		}
	}

	if cfg.Archive.S3.Enabled {
		if cfg.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when S3 is enabled")
		}
		if cfg.Archive.S3.Region == "" {
			return fmt.Errorf("archive.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Archive.S3.Bucket) {
			return fmt.Errorf("archive.s3.bucket '%s' is invalid", cfg.Archive.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
