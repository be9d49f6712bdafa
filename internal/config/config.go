package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultHouseWallet = "J9jajCmn8JRbF2E2Je5HPLJgjExFyf6Zf93B2CE146wV"
	DefaultSpinFee     = "0.1"
)

// RPC endpoints per cluster. A custom endpoint can still be set with RPC_URL.
var ClusterEndpoints = map[string]string{
	"mainnet-beta": "https://api.mainnet-beta.solana.com",
	"testnet":      "https://api.testnet.solana.com",
	"devnet":       "https://api.devnet.solana.com",
}

type Config struct {
	Env  string
	Port string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string
	JWTExpiry time.Duration

	LogLevel string
	LogFile  string

	Cluster      string
	RPCURL       string
	RPCRateLimit float64

	HouseWallet        string
	SpinFee            decimal.Decimal
	MaxSpinsPerSession int
	WinThreshold       float64
	WheelConfigPath    string

	TxMaxAttempts       int
	TxBaseDelay         time.Duration
	TxAttemptTimeout    time.Duration
	ConfirmPollInterval time.Duration
	SignTimeout         time.Duration

	DevSignerKeypair string
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		RedisURL:         getEnv("REDIS_URL", "localhost:6379"),
		RedisPass:        os.Getenv("REDIS_PASSWORD"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
		Cluster:          getEnv("SOLANA_CLUSTER", "mainnet-beta"),
		RPCURL:           os.Getenv("RPC_URL"),
		HouseWallet:      getEnv("HOUSE_WALLET", DefaultHouseWallet),
		WheelConfigPath:  os.Getenv("WHEEL_CONFIG"),
		DevSignerKeypair: os.Getenv("DEV_SIGNER_KEYPAIR"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.JWTExpiry, err = getDuration("JWT_EXPIRY", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RPCRateLimit, err = getFloat("RPC_RATE_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.MaxSpinsPerSession, err = getInt("MAX_SPINS_PER_SESSION", 10); err != nil {
		return nil, err
	}
	if cfg.WinThreshold, err = getFloat("WIN_THRESHOLD", 0.2); err != nil {
		return nil, err
	}
	if cfg.TxMaxAttempts, err = getInt("TX_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.TxBaseDelay, err = getDuration("TX_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.TxAttemptTimeout, err = getDuration("TX_ATTEMPT_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.ConfirmPollInterval, err = getDuration("CONFIRM_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.SignTimeout, err = getDuration("SIGN_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}

	fee, err := decimal.NewFromString(getEnv("SPIN_FEE", DefaultSpinFee))
	if err != nil {
		return nil, fmt.Errorf("invalid SPIN_FEE: %w", err)
	}
	cfg.SpinFee = fee

	if cfg.RPCURL == "" {
		endpoint, ok := ClusterEndpoints[cfg.Cluster]
		if !ok {
			return nil, fmt.Errorf("unknown SOLANA_CLUSTER %q", cfg.Cluster)
		}
		cfg.RPCURL = endpoint
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.Env == "production" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	if !c.SpinFee.IsPositive() {
		return fmt.Errorf("SPIN_FEE must be positive, got %s", c.SpinFee)
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1, got %d", c.TxMaxAttempts)
	}
	if c.TxBaseDelay < 0 {
		return fmt.Errorf("TX_BASE_DELAY must not be negative")
	}
	if c.WinThreshold < 0 || c.WinThreshold > 1 {
		return fmt.Errorf("WIN_THRESHOLD must be within [0,1], got %v", c.WinThreshold)
	}
	if c.MaxSpinsPerSession < 1 {
		return fmt.Errorf("MAX_SPINS_PER_SESSION must be at least 1")
	}
	if strings.TrimSpace(c.HouseWallet) == "" {
		return fmt.Errorf("HOUSE_WALLET must be set")
	}
	return nil
}

// IsMainnet reports whether explorer links need a cluster suffix.
func (c *Config) IsMainnet() bool {
	return c.Cluster == "mainnet-beta"
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

// SpinLockTTL covers the slowest possible paid spin: every attempt waiting
// out the signature and confirmation, plus the linear waits between them.
func (c *Config) SpinLockTTL() time.Duration {
	perAttempt := c.TxAttemptTimeout
	if perAttempt <= 0 {
		perAttempt = c.SignTimeout + 2*time.Minute
	}
	n := time.Duration(c.TxMaxAttempts)
	waits := c.TxBaseDelay * n * (n - 1) / 2
	return n*perAttempt + waits + 30*time.Second
}
