package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claimant"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/price"
)

const (
	DefaultListenAddr         = "0.0.0.0:8080"
	DefaultRPCURL             = "https://api.mainnet-beta.solana.com"
	DefaultRateLimitPerMinute = 120
	DefaultRateBurst          = 20
)

// Config holds the airdrop API configuration.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	SolanaRPCURL   string
	EligibilityURL string
	HermesURL      string
	JupiterURL     string

	ProgramID solana.PublicKey
	// Directory filters; zero keys list every distributor of the program.
	MintFilter  solana.PublicKey
	AdminFilter solana.PublicKey

	DirectoryRefresh   time.Duration
	DistributorTTL     time.Duration
	AllowedOrigins     []string
	RateLimitPerMinute int
	RateBurst          int

	SentryDSN         string
	SentryEnvironment string
}

// LoadDotenv loads variables from the given .env files that exist. Variables
// already set in the environment are not overridden.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// LoadFromEnv reads configuration from environment variables via getenv.
func LoadFromEnv(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := &Config{
		ListenAddr:         orDefault(getenv("LISTEN_ADDR"), DefaultListenAddr),
		MetricsAddr:        getenv("METRICS_ADDR"),
		SolanaRPCURL:       orDefault(getenv("SOLANA_RPC_URL"), DefaultRPCURL),
		EligibilityURL:     orDefault(getenv("ELIGIBILITY_API_URL"), claimant.DefaultBaseURL),
		HermesURL:          orDefault(getenv("PYTH_HERMES_URL"), price.DefaultHermesURL),
		JupiterURL:         orDefault(getenv("JUPITER_API_URL"), price.DefaultJupiterURL),
		ProgramID:          distributor.DefaultProgramID,
		DirectoryRefresh:   claims.DefaultRefreshInterval,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
		RateBurst:          DefaultRateBurst,
		SentryDSN:          getenv("SENTRY_DSN"),
		SentryEnvironment:  orDefault(getenv("SENTRY_ENVIRONMENT"), "development"),
	}

	var err error
	if cfg.ProgramID, err = parseKey(getenv, "DISTRIBUTOR_PROGRAM_ID", cfg.ProgramID); err != nil {
		return nil, err
	}
	if cfg.MintFilter, err = parseKey(getenv, "DIRECTORY_MINT", solana.PublicKey{}); err != nil {
		return nil, err
	}
	if cfg.AdminFilter, err = parseKey(getenv, "DIRECTORY_ADMIN", solana.PublicKey{}); err != nil {
		return nil, err
	}
	if cfg.DirectoryRefresh, err = parseDuration(getenv, "DIRECTORY_REFRESH_INTERVAL", cfg.DirectoryRefresh); err != nil {
		return nil, err
	}
	if cfg.DistributorTTL, err = parseDuration(getenv, "DISTRIBUTOR_CACHE_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = parseInt(getenv, "RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = parseInt(getenv, "RATE_LIMIT_BURST", cfg.RateBurst); err != nil {
		return nil, err
	}

	if v := getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}
	return cfg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseKey(getenv func(string) string, name string, def solana.PublicKey) (solana.PublicKey, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	key, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s is not a valid public key: %w", name, err)
	}
	return key, nil
}

func parseDuration(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration, got %q", name, v)
	}
	return d, nil
}

func parseInt(getenv func(string) string, name string, def int) (int, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, v)
	}
	return n, nil
}
