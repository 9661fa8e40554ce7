package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	GlobalConfigCallback ConfigCallback[GlobalConfig] = ConfigCallback[GlobalConfig]{}
	CfgFlag                                           = flag.String("config", "config.toml", "Configuration file (toml format)")

	BackoffMaxElapsedTime time.Duration = 5 * time.Minute
	Timeout               time.Duration = 1000 * time.Millisecond
)

type GlobalConfig interface {
	LoggerConfig() LoggerConfig
	ChainConfig() ChainConfig
}

type Config struct {
	DB        DBConfig        `toml:"db"`
	Logger    LoggerConfig    `toml:"logger"`
	Chain     ChainConfig     `toml:"chain"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Contracts ContractsConfig `toml:"contracts"`
}

type LoggerConfig struct {
	Level       string `toml:"level"` // valid values are: DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL (zap)
	File        string `toml:"file"`
	MaxFileSize int    `toml:"max_file_size"` // In megabytes
	Console     bool   `toml:"console"`
}

type DBConfig struct {
	Host             string `toml:"host" envconfig:"DB_HOST"`
	Port             int    `toml:"port" envconfig:"DB_PORT"`
	Database         string `toml:"database" envconfig:"DB_DATABASE"`
	Username         string `toml:"username" envconfig:"DB_USERNAME"`
	Password         string `toml:"password" envconfig:"DB_PASSWORD"`
	LogQueries       bool   `toml:"log_queries"`
	DropTableAtStart bool   `toml:"drop_table_at_start"`
}

type ChainConfig struct {
	NodeURL string `toml:"node_url" envconfig:"NODE_URL"`
	APIKey  string `toml:"api_key" envconfig:"NODE_API_KEY"`
}

type IndexerConfig struct {
	BatchSize           uint64 `toml:"batch_size"`
	StartIndex          uint64 `toml:"start_index"`
	StopIndex           uint64 `toml:"stop_index"`
	NumParallelReq      int    `toml:"num_parallel_req"`
	LogRange            uint64 `toml:"log_range"`
	NewBlockCheckMillis int    `toml:"new_block_check_millis"`
	Confirmations       uint64 `toml:"confirmations"`
}

// ContractsConfig holds the addresses of the contracts whose logs are
// collected: the delegation manager emitting permission and execution
// events, and the payment token emitting ERC-20 transfers.
type ContractsConfig struct {
	DelegationManager string `toml:"delegation_manager" envconfig:"DELEGATION_MANAGER_ADDRESS"`
	Token             string `toml:"token" envconfig:"TOKEN_ADDRESS"`
}

func newConfig() *Config {
	return &Config{}
}

func BuildConfig() (*Config, error) {
	cfgFileName := *CfgFlag

	cfg := newConfig()
	err := ParseConfigFile(cfg, cfgFileName)
	if err != nil {
		return nil, err
	}
	err = ReadEnv(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	_, err = toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func ReadEnv(cfg interface{}) error {
	// Optional .env file for local development, ignored when absent.
	_ = godotenv.Load()

	err := envconfig.Process("", cfg)
	if err != nil {
		return fmt.Errorf("error reading env config: %w", err)
	}
	return nil
}

func (c Config) LoggerConfig() LoggerConfig {
	return c.Logger
}

func (c Config) ChainConfig() ChainConfig {
	return c.Chain
}

// FullNodeURL returns the node URL with the API key attached as a query
// parameter when one is configured.
func (c ChainConfig) FullNodeURL() (*url.URL, error) {
	u, err := url.Parse(c.NodeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid node url: %w", err)
	}

	if c.APIKey != "" {
		q := u.Query()
		q.Set("x-apikey", c.APIKey)
		u.RawQuery = q.Encode()
	}

	return u, nil
}
