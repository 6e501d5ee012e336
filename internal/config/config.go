// Package config loads the wallet's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"solana-wallet/internal/domain"
	"solana-wallet/internal/units"
)

// Config is the top-level configuration structure.
type Config struct {
	Network  string                   `yaml:"network"`
	Logging  LoggingConfig            `yaml:"logging"`
	Ledger   LedgerConfig             `yaml:"ledger"`
	Networks map[string]NetworkConfig `yaml:"networks"`
	Tokens   []TokenConfig            `yaml:"tokens"`
	Storage  StorageConfig            `yaml:"storage"`
	Refresh  RefreshConfig            `yaml:"refresh"`
	Metrics  MetricsConfig            `yaml:"metrics"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// LedgerConfig holds ledger client timing.
type LedgerConfig struct {
	AttemptTimeout      time.Duration `yaml:"attemptTimeout"`
	BroadcastMaxRetries uint          `yaml:"broadcastMaxRetries"`
	ConfirmPollInterval time.Duration `yaml:"confirmPollInterval"`
	ConfirmTimeout      time.Duration `yaml:"confirmTimeout"`
	// SubscribeWait bounds the websocket confirmation attempt before polling.
	// Zero disables the websocket path.
	SubscribeWait time.Duration `yaml:"subscribeWait"`
	DecimalsTTL   time.Duration `yaml:"decimalsTTL"`
}

// NetworkConfig lists a network's endpoints.
type NetworkConfig struct {
	Primary   EndpointConfig   `yaml:"primary"`
	Fallbacks []EndpointConfig `yaml:"fallbacks"`
}

// EndpointConfig is one RPC endpoint.
type EndpointConfig struct {
	URL               string  `yaml:"url"`
	WSURL             string  `yaml:"wsURL"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// TokenConfig is a statically known token. Mints maps network name to mint.
type TokenConfig struct {
	Symbol   string            `yaml:"symbol"`
	Decimals uint8             `yaml:"decimals"`
	Mints    map[string]string `yaml:"mints"`
}

// StorageConfig selects the persistence backends. Empty DSNs select memory.
type StorageConfig struct {
	SecretFile    string `yaml:"secretFile"`
	PostgresDSN   string `yaml:"postgresDSN"`
	ClickHouseDSN string `yaml:"clickhouseDSN"`
}

// RefreshConfig configures the watch loop.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Defaults.
const (
	DefaultAttemptTimeout      = 10 * time.Second
	DefaultBroadcastMaxRetries = 3
	DefaultConfirmPollInterval = 1 * time.Second
	DefaultConfirmTimeout      = 60 * time.Second
	DefaultRefreshInterval     = 30 * time.Second
	DefaultMetricsAddr         = ":9090"
)

// Default returns the built-in configuration: public endpoints for mainnet
// and devnet and the USDC/USDT token table.
func Default() *Config {
	return &Config{
		Network: string(domain.Devnet),
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Ledger: LedgerConfig{
			AttemptTimeout:      DefaultAttemptTimeout,
			BroadcastMaxRetries: DefaultBroadcastMaxRetries,
			ConfirmPollInterval: DefaultConfirmPollInterval,
			ConfirmTimeout:      DefaultConfirmTimeout,
		},
		Networks: map[string]NetworkConfig{
			string(domain.Mainnet): {
				Primary: EndpointConfig{URL: "https://api.mainnet-beta.solana.com", WSURL: "wss://api.mainnet-beta.solana.com"},
				Fallbacks: []EndpointConfig{
					{URL: "https://solana-rpc.publicnode.com"},
					{URL: "https://solana.drpc.org"},
				},
			},
			string(domain.Devnet): {
				Primary: EndpointConfig{URL: "https://api.devnet.solana.com", WSURL: "wss://api.devnet.solana.com"},
			},
		},
		Tokens: []TokenConfig{
			{
				Symbol:   "USDC",
				Decimals: 6,
				Mints: map[string]string{
					string(domain.Mainnet): "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
					string(domain.Devnet):  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
				},
			},
			{
				Symbol:   "USDT",
				Decimals: 6,
				Mints: map[string]string{
					string(domain.Mainnet): "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB",
				},
			},
		},
		Refresh: RefreshConfig{Interval: DefaultRefreshInterval},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
	}
}

// Load reads the YAML file at path over the built-in defaults. Sections the
// file omits keep their defaults; every default applied is logged. An empty
// path returns the defaults.
func Load(path string, logger *zap.Logger) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}

	logger.Info("loading configuration", zap.String("path", path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	cfg.applyDefaults(logger)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(logger *zap.Logger) {
	def := Default()

	if c.Network == "" {
		c.Network = def.Network
		logger.Info("network not set, using default", zap.String("network", c.Network))
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Ledger.AttemptTimeout <= 0 {
		c.Ledger.AttemptTimeout = DefaultAttemptTimeout
		logger.Info("ledger.attemptTimeout not set, using default", zap.Duration("value", c.Ledger.AttemptTimeout))
	}
	if c.Ledger.BroadcastMaxRetries == 0 {
		c.Ledger.BroadcastMaxRetries = DefaultBroadcastMaxRetries
		logger.Info("ledger.broadcastMaxRetries not set, using default", zap.Uint("value", c.Ledger.BroadcastMaxRetries))
	}
	if c.Ledger.ConfirmPollInterval <= 0 {
		c.Ledger.ConfirmPollInterval = DefaultConfirmPollInterval
		logger.Info("ledger.confirmPollInterval not set, using default", zap.Duration("value", c.Ledger.ConfirmPollInterval))
	}
	if c.Ledger.ConfirmTimeout <= 0 {
		c.Ledger.ConfirmTimeout = DefaultConfirmTimeout
		logger.Info("ledger.confirmTimeout not set, using default", zap.Duration("value", c.Ledger.ConfirmTimeout))
	}
	if len(c.Networks) == 0 {
		c.Networks = def.Networks
		logger.Info("no networks configured, using public endpoints")
	}
	if c.Tokens == nil {
		c.Tokens = def.Tokens
		logger.Info("no tokens configured, using built-in token table", zap.Int("tokens", len(c.Tokens)))
	}
	if c.Refresh.Interval <= 0 {
		c.Refresh.Interval = DefaultRefreshInterval
		logger.Info("refresh.interval not set, using default", zap.Duration("value", c.Refresh.Interval))
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	active, err := domain.ParseNetwork(c.Network)
	if err != nil {
		errs = append(errs, err)
	}

	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	activeConfigured := false
	for _, name := range names {
		n, err := domain.ParseNetwork(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("networks: %w", err))
			continue
		}
		if n == active {
			activeConfigured = true
		}
		nc := c.Networks[name]
		if nc.Primary.URL == "" {
			errs = append(errs, fmt.Errorf("networks.%s: primary endpoint url is required", name))
		}
		for i, fb := range nc.Fallbacks {
			if fb.URL == "" {
				errs = append(errs, fmt.Errorf("networks.%s.fallbacks[%d]: url is required", name, i))
			}
		}
	}
	if active != "" && !activeConfigured {
		errs = append(errs, fmt.Errorf("network %s has no endpoints configured", active))
	}

	for i, tok := range c.Tokens {
		if strings.TrimSpace(tok.Symbol) == "" {
			errs = append(errs, fmt.Errorf("tokens[%d]: symbol is required", i))
		}
		if tok.Decimals > units.MaxDecimals {
			errs = append(errs, fmt.Errorf("tokens[%d] %s: decimals %d exceeds %d", i, tok.Symbol, tok.Decimals, units.MaxDecimals))
		}
		for network := range tok.Mints {
			if _, err := domain.ParseNetwork(network); err != nil {
				errs = append(errs, fmt.Errorf("tokens[%d] %s: %w", i, tok.Symbol, err))
			}
		}
	}

	return errors.Join(errs...)
}

// ActiveNetwork returns the parsed active network.
func (c *Config) ActiveNetwork() domain.Network {
	n, _ := domain.ParseNetwork(c.Network)
	return n
}

// Endpoints flattens every configured network into pool entries: the
// primary at priority 0, then fallbacks in file order.
func (c *Config) Endpoints() []domain.Endpoint {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []domain.Endpoint
	for _, name := range names {
		n, err := domain.ParseNetwork(name)
		if err != nil {
			continue
		}
		nc := c.Networks[name]
		out = append(out, nc.Primary.endpoint(n, 0, domain.RolePrimary))
		for i, fb := range nc.Fallbacks {
			out = append(out, fb.endpoint(n, i+1, domain.RoleFallback))
		}
	}
	return out
}

func (e EndpointConfig) endpoint(n domain.Network, priority int, role domain.EndpointRole) domain.Endpoint {
	return domain.Endpoint{
		Network:           n,
		URL:               e.URL,
		WSURL:             e.WSURL,
		Priority:          priority,
		Role:              role,
		RequestsPerSecond: e.RequestsPerSecond,
		Burst:             e.Burst,
	}
}

// TokenRegistry builds the static token table.
func (c *Config) TokenRegistry() *domain.TokenRegistry {
	reg := domain.NewTokenRegistry()
	for _, tok := range c.Tokens {
		for network, mint := range tok.Mints {
			n, err := domain.ParseNetwork(network)
			if err != nil || mint == "" {
				continue
			}
			reg.Add(n, domain.TokenDescriptor{Symbol: tok.Symbol, Mint: mint, Decimals: tok.Decimals})
		}
	}
	return reg
}
