package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Chain struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	// FaucetAdmin is the only address allowed to submit faucet actions.
	// Empty disables the faucet.
	FaucetAdmin string `yaml:"faucet_admin"`
}

type Node struct {
	DataDir string `yaml:"data_dir"`
	// MinBlockTime is the interval between block finalizations. Empty blocks
	// are skipped, so an idle node does not grow its block log.
	MinBlockTime time.Duration `yaml:"min_block_time"`
	MaxTxBytes   int           `yaml:"max_tx_bytes"` // per-block byte budget for the mempool
	MempoolSize  int           `yaml:"mempool_size"`
}

type API struct {
	Addr string `yaml:"addr"`
}

type P2P struct {
	Listen    string   `yaml:"listen"` // empty disables gossip
	Bootstrap []string `yaml:"bootstrap"`
	Topic     string   `yaml:"topic"`
}

type Kafka struct {
	Brokers       []string `yaml:"brokers"` // empty disables both producers
	Topic         string   `yaml:"topic"`
	RegistryTopic string   `yaml:"registry_topic"`
}

type Journal struct {
	Path string `yaml:"path"` // SQLite file; empty disables the journal
}

type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

type Config struct {
	Chain   Chain   `yaml:"chain"`
	Node    Node    `yaml:"node"`
	API     API     `yaml:"api"`
	P2P     P2P     `yaml:"p2p"`
	Kafka   Kafka   `yaml:"kafka"`
	Journal Journal `yaml:"journal"`
	Log     Log     `yaml:"log"`
}

func Default() Config {
	return Config{
		Chain: Chain{
			ID:   1337,
			Name: "escrowd",
		},
		Node: Node{
			DataDir:      "./data",
			MinBlockTime: 200 * time.Millisecond,
			MaxTxBytes:   1 << 20,
			MempoolSize:  10_000,
		},
		API: API{Addr: ":8080"},
		P2P: P2P{Topic: "escrowd/events/1"},
		Kafka: Kafka{
			Topic:         "escrow.events",
			RegistryTopic: "escrow.catalog",
		},
		Log: Log{Level: "info"},
	}
}

// Load builds the configuration.
// Priority: ENV > .env file > YAML file > defaults
func Load(configFile, envPath string) (Config, error) {
	cfg := Default()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg, envPath)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()
	applyEnv(&cfg, envPath)
	return cfg
}

func applyEnv(cfg *Config, envPath string) {
	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	cfg.Chain.FaucetAdmin = getEnv("FAUCET_ADMIN", cfg.Chain.FaucetAdmin)
	cfg.Kafka.Topic = getEnv("KAFKA_TOPIC", cfg.Kafka.Topic)
	cfg.Journal.Path = getEnv("JOURNAL_PATH", cfg.Journal.Path)
	cfg.P2P.Listen = getEnv("P2P_LISTEN", cfg.P2P.Listen)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if id := os.Getenv("CHAIN_ID"); id != "" {
		if n, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chain.ID = n
		}
	}
	if minBlock := os.Getenv("MIN_BLOCK_TIME_MS"); minBlock != "" {
		if ms, err := strconv.Atoi(minBlock); err == nil {
			cfg.Node.MinBlockTime = time.Duration(ms) * time.Millisecond
		}
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitList(brokers)
	}
	if peers := os.Getenv("P2P_BOOTSTRAP"); peers != "" {
		cfg.P2P.Bootstrap = splitList(peers)
	}
}

// Validate checks configuration validity
func (c Config) Validate() error {
	if c.Chain.ID <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	if c.Node.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Node.MinBlockTime <= 0 {
		return fmt.Errorf("min block time must be positive")
	}
	if c.Node.MaxTxBytes <= 0 {
		return fmt.Errorf("max tx bytes must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
