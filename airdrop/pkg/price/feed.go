// Package price looks up USD token prices from Pyth Hermes by symbol and from
// Jupiter by mint.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/malbeclabs/airdrop/airdrop/pkg/metrics"
	"github.com/malbeclabs/airdrop/utils/pkg/cache"
	"github.com/malbeclabs/airdrop/utils/pkg/retry"
	"github.com/shopspring/decimal"
)

const (
	DefaultHermesURL  = "https://hermes.pyth.network"
	DefaultJupiterURL = "https://lite-api.jup.ag"
	DefaultCacheTTL   = 30 * time.Second
)

// ErrNoFeed is returned when Hermes has no USD feed for a symbol.
var ErrNoFeed = errors.New("no price feed for symbol")

// Source names the feed a quote came from. The zero value encodes as null.
type Source string

const (
	SourceNone    Source = ""
	SourcePyth    Source = "pyth"
	SourceJupiter Source = "jupiter"
)

func (s Source) MarshalJSON() ([]byte, error) {
	if s == SourceNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// Quote is a USD price. Price is nil when the feed has no price.
type Quote struct {
	PriceFeed Source           `json:"priceFeed"`
	Price     *decimal.Decimal `json:"price"`
}

// Value returns amount multiplied by the quoted price, or false without a price.
func (q *Quote) Value(amount decimal.Decimal) (decimal.Decimal, bool) {
	if q == nil || q.Price == nil {
		return decimal.Zero, false
	}
	return amount.Mul(*q.Price), true
}

type statusError struct {
	service string
	code    int
	body    string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.service, e.code, e.body)
}

func (e *statusError) StatusCode() int { return e.code }

type FeedConfig struct {
	Logger     *slog.Logger
	HermesURL  string
	JupiterURL string
	HTTPClient *http.Client
	CacheTTL   time.Duration
	Retry      retry.Config
}

func (cfg *FeedConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.HermesURL == "" {
		cfg.HermesURL = DefaultHermesURL
	}
	if cfg.JupiterURL == "" {
		cfg.JupiterURL = DefaultJupiterURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.CacheTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type Feed struct {
	log    *slog.Logger
	cfg    FeedConfig
	quotes *cache.Cache[*Quote]
	// Hermes feed ids do not change; they are kept until restart.
	feedIDs *cache.Cache[string]
}

func NewFeed(cfg FeedConfig) (*Feed, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Feed{log: cfg.Logger, cfg: cfg}

	var err error
	f.quotes, err = cache.New(cache.Config[*Quote]{
		Name:     "price_quotes",
		TTL:      cfg.CacheTTL,
		Load:     f.loadQuote,
		OnLookup: metrics.RecordCacheLookup,
	})
	if err != nil {
		return nil, err
	}
	f.feedIDs, err = cache.New(cache.Config[string]{
		Name:     "pyth_feed_ids",
		Load:     f.loadFeedID,
		OnLookup: metrics.RecordCacheLookup,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Lookup prices a token by symbol through Pyth when a symbol is known, and by
// mint through Jupiter otherwise or when Pyth has no feed for the symbol.
// With neither, the quote is empty.
func (f *Feed) Lookup(ctx context.Context, symbol, mint string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	mint = strings.TrimSpace(mint)

	if symbol != "" {
		q, err := f.quotes.Get(ctx, "pyth:"+symbol)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, ErrNoFeed) || mint == "" {
			return nil, err
		}
		f.log.Debug("price: no pyth feed, falling back to jupiter", "symbol", symbol, "mint", mint)
	}
	if mint != "" {
		return f.quotes.Get(ctx, "jupiter:"+mint)
	}
	return &Quote{}, nil
}

func (f *Feed) loadQuote(ctx context.Context, key string) (*Quote, error) {
	source, arg, _ := strings.Cut(key, ":")
	switch Source(source) {
	case SourcePyth:
		id, err := f.feedIDs.Get(ctx, arg)
		if err != nil {
			return nil, err
		}
		p, err := f.pythPrice(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Quote{PriceFeed: SourcePyth, Price: p}, nil
	case SourceJupiter:
		p, err := f.jupiterPrice(ctx, arg)
		if err != nil {
			return nil, err
		}
		return &Quote{PriceFeed: SourceJupiter, Price: p}, nil
	default:
		return nil, fmt.Errorf("unknown price source %q", source)
	}
}

type hermesFeed struct {
	ID         string `json:"id"`
	Attributes struct {
		Base          string `json:"base"`
		QuoteCurrency string `json:"quote_currency"`
		Symbol        string `json:"symbol"`
	} `json:"attributes"`
}

func (f *Feed) loadFeedID(ctx context.Context, symbol string) (string, error) {
	q := url.Values{"query": {symbol}, "asset_type": {"crypto"}}
	var feeds []hermesFeed
	if err := f.getJSON(ctx, "pyth", f.cfg.HermesURL+"/v2/price_feeds?"+q.Encode(), &feeds); err != nil {
		return "", err
	}

	want := "CRYPTO." + symbol + "/USD"
	for _, feed := range feeds {
		if strings.EqualFold(feed.Attributes.Symbol, want) {
			return feed.ID, nil
		}
	}
	for _, feed := range feeds {
		if strings.EqualFold(feed.Attributes.Base, symbol) && strings.EqualFold(feed.Attributes.QuoteCurrency, "USD") {
			return feed.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoFeed, symbol)
}

type hermesLatest struct {
	Parsed []struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"parsed"`
}

func (f *Feed) pythPrice(ctx context.Context, feedID string) (*decimal.Decimal, error) {
	q := url.Values{"ids[]": {feedID}, "parsed": {"true"}}
	var latest hermesLatest
	if err := f.getJSON(ctx, "pyth", f.cfg.HermesURL+"/v2/updates/price/latest?"+q.Encode(), &latest); err != nil {
		return nil, err
	}
	if len(latest.Parsed) == 0 {
		return nil, nil
	}
	mantissa, err := decimal.NewFromString(latest.Parsed[0].Price.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid pyth price %q: %w", latest.Parsed[0].Price.Price, err)
	}
	p := mantissa.Shift(latest.Parsed[0].Price.Expo)
	return &p, nil
}

type jupiterResponse struct {
	Data map[string]*struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Price string `json:"price"`
	} `json:"data"`
}

func (f *Feed) jupiterPrice(ctx context.Context, mint string) (*decimal.Decimal, error) {
	q := url.Values{"ids": {mint}}
	var resp jupiterResponse
	if err := f.getJSON(ctx, "jupiter", f.cfg.JupiterURL+"/price/v2?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	entry := resp.Data[mint]
	if entry == nil || entry.Price == "" {
		return nil, nil
	}
	p, err := decimal.NewFromString(entry.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid jupiter price %q: %w", entry.Price, err)
	}
	return &p, nil
}

func (f *Feed) getJSON(ctx context.Context, service, endpoint string, out any) error {
	start := time.Now()
	err := retry.Do(ctx, f.cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &statusError{service: service, code: resp.StatusCode, body: string(body)}
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("failed to decode %s response: %w", service, err))
		}
		return nil
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordExternal(service, time.Since(start), status)
	return err
}
