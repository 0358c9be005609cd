// Package config loads runtime settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tip-settlement/internal/address"
	"tip-settlement/internal/domain"
)

// Config captures the runtime settings shared by the binaries.
type Config struct {
	HTTPAddr        string            `yaml:"http_addr"`
	LogLevel        string            `yaml:"log_level"`
	UseMemory       bool              `yaml:"use_memory"`
	PostgresDSN     string            `yaml:"postgres_dsn"`
	ClickHouseDSN   string            `yaml:"clickhouse_dsn"`
	PlatformFeeBps  int64             `yaml:"platform_fee_bps"`
	PlatformWallets map[string]string `yaml:"platform_wallets"`
	Solana          SolanaConfig      `yaml:"solana"`
	Auth            AuthConfig        `yaml:"auth"`
	AllowedOrigins  []string          `yaml:"allowed_origins"`
}

// SolanaConfig points the watcher at an RPC node and the tip program.
type SolanaConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
	WSEndpoint  string `yaml:"ws_endpoint"`
	ProgramID   string `yaml:"program_id"`
}

// AuthConfig holds the HMAC key and expected claims for bearer tokens.
type AuthConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		LogLevel:       "info",
		PlatformFeeBps: domain.DefaultPlatformFeeBps,
	}
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the optional YAML file at path, applies environment
// overrides, then overrides (command-line flags), and validates the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	for _, override := range overrides {
		override(&cfg)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("POSTGRES_DSN", &cfg.PostgresDSN)
	str("CLICKHOUSE_DSN", &cfg.ClickHouseDSN)
	str("SOLANA_RPC_ENDPOINT", &cfg.Solana.RPCEndpoint)
	str("SOLANA_WS_ENDPOINT", &cfg.Solana.WSEndpoint)
	str("SOLANA_PROGRAM_ID", &cfg.Solana.ProgramID)
	str("JWT_HMAC_SECRET", &cfg.Auth.HMACSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_AUDIENCE", &cfg.Auth.Audience)

	if v, ok := lookup("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}

	if v, ok := lookup("USE_MEMORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("USE_MEMORY: %w", err)
		}
		cfg.UseMemory = b
	}
	if v, ok := lookup("PLATFORM_FEE_BPS"); ok && v != "" {
		bps, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PLATFORM_FEE_BPS: %w", err)
		}
		cfg.PlatformFeeBps = bps
	}

	for _, n := range domain.Networks() {
		key := "PLATFORM_WALLET_" + strings.ToUpper(string(n))
		if v, ok := lookup(key); ok && v != "" {
			if cfg.PlatformWallets == nil {
				cfg.PlatformWallets = make(map[string]string)
			}
			cfg.PlatformWallets[string(n)] = v
		}
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.PostgresDSN = strings.TrimSpace(cfg.PostgresDSN)
	cfg.ClickHouseDSN = strings.TrimSpace(cfg.ClickHouseDSN)
	cfg.Solana.ProgramID = strings.TrimSpace(cfg.Solana.ProgramID)

	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	cfg.AllowedOrigins = origins
}

// Validate rejects an out-of-range platform fee and malformed platform
// wallets. Wallet addresses are rewritten to their canonical form.
func (cfg *Config) Validate() error {
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps >= domain.FeeDenominator {
		return fmt.Errorf("platform_fee_bps %d out of range [0, %d)", cfg.PlatformFeeBps, domain.FeeDenominator)
	}

	wallets := make(map[string]string, len(cfg.PlatformWallets))
	for key, addr := range cfg.PlatformWallets {
		n, err := domain.ParseNetwork(key)
		if err != nil {
			return fmt.Errorf("platform_wallets: %w", err)
		}
		canonical, err := address.Normalize(n, strings.TrimSpace(addr))
		if err != nil {
			return fmt.Errorf("platform_wallets.%s: %w", n, err)
		}
		wallets[string(n)] = canonical
	}
	cfg.PlatformWallets = wallets

	if !cfg.UseMemory && cfg.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required unless use_memory=true")
	}
	if cfg.Solana.ProgramID != "" {
		if _, err := address.Normalize(domain.NetworkSolana, cfg.Solana.ProgramID); err != nil {
			return fmt.Errorf("solana.program_id: %w", err)
		}
	}
	return nil
}

// Wallets returns the platform wallet per network.
func (cfg Config) Wallets() map[domain.Network]string {
	out := make(map[domain.Network]string, len(cfg.PlatformWallets))
	for k, v := range cfg.PlatformWallets {
		out[domain.Network(k)] = v
	}
	return out
}
