package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/price"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
	"golang.org/x/time/rate"
)

// ClaimService assembles claim state for recipients.
type ClaimService interface {
	Distributor(ctx context.Context, id solana.PublicKey) (*distributor.Distributor, error)
	ClaimData(ctx context.Context, id, recipient solana.PublicKey) (*claims.ClaimData, error)
}

// DistributorDirectory lists every known distributor.
type DistributorDirectory interface {
	List(search string, limit, offset int) claims.Page
	Ready() bool
	LastRefresh() time.Time
}

// TokenResolver returns display info for token mints.
type TokenResolver interface {
	Resolve(ctx context.Context, mint solana.PublicKey) (*token.Info, error)
}

// PriceFeed returns USD quotes for tokens.
type PriceFeed interface {
	Lookup(ctx context.Context, symbol, mint string) (*price.Quote, error)
}

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

type Config struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	Claims    ClaimService
	Directory DistributorDirectory
	Tokens    TokenResolver
	Prices    PriceFeed
	Build     BuildInfo

	// AllowedOrigins are the CORS origins; empty allows any origin.
	AllowedOrigins []string
	// RateLimit and RateBurst bound requests per client IP. Zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
	// SentryEnabled adds the Sentry HTTP middleware.
	SentryEnabled bool
	// RequestTimeout bounds each request. Defaults to 30s.
	RequestTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Claims == nil {
		return errors.New("claim service is required")
	}
	if cfg.Directory == nil {
		return errors.New("directory is required")
	}
	if cfg.Tokens == nil {
		return errors.New("token resolver is required")
	}
	if cfg.Prices == nil {
		return errors.New("price feed is required")
	}
	if cfg.RateLimit < 0 || cfg.RateBurst < 0 {
		return errors.New("rate limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst == 0 {
		cfg.RateBurst = 1
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Build.Version == "" {
		cfg.Build.Version = "dev"
	}
	return nil
}

// Handlers serves the airdrop HTTP API.
type Handlers struct {
	log     *slog.Logger
	cfg     Config
	limiter *RateLimiter
}

func New(cfg Config) (*Handlers, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	h := &Handlers{
		log: cfg.Logger,
		cfg: cfg,
	}
	if cfg.RateLimit > 0 {
		h.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Clock)
	}
	return h, nil
}

// Start runs background maintenance until ctx is done.
func (h *Handlers) Start(ctx context.Context) {
	if h.limiter != nil {
		h.limiter.Start(ctx)
	}
}
