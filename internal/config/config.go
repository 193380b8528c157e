package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/hazyhaar/proofledger/internal/ledger"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Auth     AuthConfig     `toml:"auth"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Chain    ChainConfig    `toml:"chain"`
	MCP      MCPConfig      `toml:"mcp"`
	Log      LogConfig      `toml:"log"`
	Audit    AuditConfig    `toml:"audit"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
	// HTTP3Addr enables the QUIC listener when set.
	HTTP3Addr string `toml:"http3_addr"`
	CertFile  string `toml:"cert_file"`
	KeyFile   string `toml:"key_file"`
}

type StoreConfig struct {
	// Backend is one of "sqlite", "memory", "redis", "postgres".
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	LockKey  string `toml:"lock_key"`
	LeaseSec int    `toml:"lease_sec"`
}

type PostgresConfig struct {
	URL string `toml:"url"`
}

type Principal struct {
	Identity     string `toml:"identity"`
	PasswordHash string `toml:"password_hash"`
}

type AuthConfig struct {
	JWTSecret      string      `toml:"jwt_secret"`
	TokenExpiryMin int         `toml:"token_expiry_min"`
	Principals     []Principal `toml:"principals"`
}

// LedgerConfig holds the genesis parameters written on first start. Later
// changes go through the owner-gated setters, not this file.
type LedgerConfig struct {
	ledger.Params
}

type ChainConfig struct {
	// Genesis is RFC 3339. Empty means the Unix epoch.
	Genesis       string `toml:"genesis"`
	BlockInterval string `toml:"block_interval"`
}

type MCPConfig struct {
	// Identity is the principal MCP tool calls act as.
	Identity string `toml:"identity"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type AuditConfig struct {
	Enabled  bool `toml:"enabled"`
	TraceSQL bool `toml:"trace_sql"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "data/ledger.db",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			LockKey:  "proofledger:lock",
			LeaseSec: 10,
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 1440, // 24h
		},
		Ledger: LedgerConfig{Params: ledger.DefaultParams("ST1TEST")},
		Chain: ChainConfig{
			BlockInterval: "10m",
		},
		MCP: MCPConfig{
			Identity: "ST1TEST",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// The oracle follows the owner unless the file names one.
	if md.IsDefined("ledger", "owner") && !md.IsDefined("ledger", "oracle") {
		cfg.Ledger.Oracle = cfg.Ledger.Owner
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite", "memory", "redis", "postgres":
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is required for the postgres backend")
	}
	if _, err := c.Chain.Interval(); err != nil {
		return err
	}
	if _, err := c.Chain.GenesisTime(); err != nil {
		return err
	}
	return nil
}

func (c ChainConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.BlockInterval)
	if err != nil {
		return 0, fmt.Errorf("chain.block_interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("chain.block_interval must be positive")
	}
	return d, nil
}

func (c ChainConfig) GenesisTime() (time.Time, error) {
	if c.Genesis == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, c.Genesis)
	if err != nil {
		return time.Time{}, fmt.Errorf("chain.genesis: %w", err)
	}
	return t, nil
}

func (r RedisConfig) Lease() time.Duration {
	return time.Duration(r.LeaseSec) * time.Second
}
