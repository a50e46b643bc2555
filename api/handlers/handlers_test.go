package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/price"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
	"github.com/malbeclabs/airdrop/airdrop/pkg/vesting"
	"github.com/malbeclabs/airdrop/api/handlers"
	airdroptesting "github.com/malbeclabs/airdrop/utils/pkg/testing"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type mockClaims struct {
	distributorFunc func(context.Context, solana.PublicKey) (*distributor.Distributor, error)
	claimDataFunc   func(context.Context, solana.PublicKey, solana.PublicKey) (*claims.ClaimData, error)
}

func (m *mockClaims) Distributor(ctx context.Context, id solana.PublicKey) (*distributor.Distributor, error) {
	if m.distributorFunc != nil {
		return m.distributorFunc(ctx, id)
	}
	return nil, claims.ErrDistributorNotFound
}

func (m *mockClaims) ClaimData(ctx context.Context, id, recipient solana.PublicKey) (*claims.ClaimData, error) {
	if m.claimDataFunc != nil {
		return m.claimDataFunc(ctx, id, recipient)
	}
	return nil, claims.ErrNotEligible
}

type mockDirectory struct {
	ready    atomic.Bool
	listFunc func(string, int, int) claims.Page
	last     time.Time
}

func (m *mockDirectory) List(search string, limit, offset int) claims.Page {
	if m.listFunc != nil {
		return m.listFunc(search, limit, offset)
	}
	return claims.Page{Items: []claims.Row{}}
}

func (m *mockDirectory) Ready() bool            { return m.ready.Load() }
func (m *mockDirectory) LastRefresh() time.Time { return m.last }

type mockTokens struct {
	resolveFunc func(context.Context, solana.PublicKey) (*token.Info, error)
}

func (m *mockTokens) Resolve(ctx context.Context, mint solana.PublicKey) (*token.Info, error) {
	if m.resolveFunc != nil {
		return m.resolveFunc(ctx, mint)
	}
	return nil, token.ErrMintNotFound
}

type mockPrices struct {
	lookupFunc func(context.Context, string, string) (*price.Quote, error)
}

func (m *mockPrices) Lookup(ctx context.Context, symbol, mint string) (*price.Quote, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, symbol, mint)
	}
	return &price.Quote{}, nil
}

type fixture struct {
	claims    *mockClaims
	directory *mockDirectory
	tokens    *mockTokens
	prices    *mockPrices
	clock     *clockwork.FakeClock
	cfg       handlers.Config
}

func newFixture() *fixture {
	f := &fixture{
		claims:    &mockClaims{},
		directory: &mockDirectory{},
		tokens:    &mockTokens{},
		prices:    &mockPrices{},
		clock:     clockwork.NewFakeClockAt(time.Unix(2500, 0)),
	}
	f.directory.ready.Store(true)
	f.cfg = handlers.Config{
		Logger:    airdroptesting.NewLogger(),
		Clock:     f.clock,
		Claims:    f.claims,
		Directory: f.directory,
		Tokens:    f.tokens,
		Prices:    f.prices,
		Build:     handlers.BuildInfo{Version: "1.2.3", Commit: "abc123", Date: "2026-01-01"},
	}
	return f
}

func (f *fixture) server(t *testing.T) *httptest.Server {
	t.Helper()
	h, err := handlers.New(f.cfg)
	require.NoError(t, err)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAirdrop_API_ConfigValidate(t *testing.T) {
	t.Parallel()

	_, err := handlers.New(handlers.Config{})
	require.EqualError(t, err, "logger is required")

	f := newFixture()
	cfg := f.cfg
	cfg.Prices = nil
	_, err = handlers.New(cfg)
	require.EqualError(t, err, "price feed is required")

	cfg = f.cfg
	cfg.RateLimit = 5
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.RateBurst)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestAirdrop_API_Health(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.directory.ready.Store(false)
	f.directory.last = time.Unix(2400, 0)
	srv := f.server(t)

	var health handlers.HealthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &health))
	assert.Equal(t, "ok", health.Status)

	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/readyz", &health))
	assert.Equal(t, "loading", health.Status)

	f.directory.ready.Store(true)
	health = handlers.HealthResponse{}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/readyz", &health))
	require.NotNil(t, health.LastRefresh)
	assert.True(t, health.LastRefresh.Equal(time.Unix(2400, 0)))

	var build handlers.BuildInfo
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/version", &build))
	assert.Equal(t, f.cfg.Build, build)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAirdrop_API_ListAirdrops(t *testing.T) {
	t.Parallel()

	f := newFixture()
	var (
		mu                  sync.Mutex
		gotSearch           string
		gotLimit, gotOffset int
	)
	f.directory.listFunc = func(search string, limit, offset int) claims.Page {
		mu.Lock()
		defer mu.Unlock()
		gotSearch, gotLimit, gotOffset = search, limit, offset
		return claims.Page{Total: 42, Items: []claims.Row{{Distributor: "abc", Type: "Vested"}}}
	}
	srv := f.server(t)

	var page handlers.PaginatedResponse[claims.Row]
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/airdrops?search=ab&limit=500&offset=10", &page))
	mu.Lock()
	assert.Equal(t, "ab", gotSearch)
	assert.Equal(t, handlers.MaxLimit, gotLimit)
	assert.Equal(t, 10, gotOffset)
	mu.Unlock()
	assert.Equal(t, 42, page.Total)
	assert.Equal(t, handlers.MaxLimit, page.Limit)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "abc", page.Items[0].Distributor)

	getJSON(t, srv.URL+"/api/airdrops?limit=-3", &page)
	mu.Lock()
	assert.Equal(t, handlers.DefaultLimit, gotLimit)
	assert.Equal(t, 0, gotOffset)
	mu.Unlock()

	f.directory.ready.Store(false)
	var errResp handlers.ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/api/airdrops", &errResp))
	assert.Equal(t, "directory_not_ready", errResp.Error)
}

func TestAirdrop_API_GetAirdrop(t *testing.T) {
	t.Parallel()

	f := newFixture()
	d := &distributor.Distributor{
		Address:      solana.NewWallet().PublicKey(),
		Mint:         solana.NewWallet().PublicKey(),
		StartTs:      1000,
		EndTs:        5000,
		UnlockPeriod: 1000,
		Version:      2,
	}
	f.claims.distributorFunc = func(_ context.Context, id solana.PublicKey) (*distributor.Distributor, error) {
		switch id {
		case d.Address:
			return d, nil
		case solana.SystemProgramID:
			return nil, &claims.FetchError{Source: "distributor", Err: errors.New("rpc down")}
		default:
			return nil, claims.ErrDistributorNotFound
		}
	}
	srv := f.server(t)

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/airdrops/"+d.Address.String(), &body))
	assert.Equal(t, d.Address.String(), body["address"])
	assert.Equal(t, d.Mint.String(), body["mint"])
	assert.Equal(t, "Vested", body["type"])
	assert.Equal(t, "active", body["phase"])
	assert.EqualValues(t, 2, body["version"])

	var errResp handlers.ErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/airdrops/"+solana.NewWallet().PublicKey().String(), &errResp))
	assert.Equal(t, "distributor_not_found", errResp.Error)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/airdrops/not-a-key", &errResp))
	assert.Equal(t, "invalid_address", errResp.Error)

	assert.Equal(t, http.StatusBadGateway, getJSON(t, srv.URL+"/api/airdrops/"+solana.SystemProgramID.String(), &errResp))
	assert.Equal(t, "upstream_unavailable", errResp.Error)
}

func eligibleClaimData(id, recipient, mint solana.PublicKey) *claims.ClaimData {
	next := time.Unix(3000, 0).UTC()
	var node [32]byte
	node[0] = 0xAB
	huge, _ := new(big.Int).SetString("18446744073709551616", 10)
	return &claims.ClaimData{
		Distributor: &distributor.Distributor{Address: id, Mint: mint},
		Recipient:   recipient,
		Claim:       vesting.NoClaim{},
		Result: vesting.Result{
			Proof:           [][32]byte{node},
			AmountUnlocked:  big.NewInt(0),
			AmountLocked:    huge,
			TotalUnlocked:   big.NewInt(1_500_000_000),
			TotalLocked:     big.NewInt(2_500_000_000),
			TotalClaimed:    big.NewInt(0),
			UnlockPerPeriod: big.NewInt(250_000_000),
			NextClaimPeriod: &next,
			CanClaim:        true,
			Phase:           vesting.PhaseActive,
			Kind:            vesting.KindVested,
			State:           "none",
		},
	}
}

func TestAirdrop_API_GetClaimantEligible(t *testing.T) {
	t.Parallel()

	f := newFixture()
	id := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	f.claims.claimDataFunc = func(_ context.Context, gotID, gotRecipient solana.PublicKey) (*claims.ClaimData, error) {
		assert.Equal(t, id, gotID)
		assert.Equal(t, recipient, gotRecipient)
		return eligibleClaimData(id, recipient, mint), nil
	}
	f.tokens.resolveFunc = func(_ context.Context, m solana.PublicKey) (*token.Info, error) {
		return &token.Info{Mint: m.String(), Symbol: "AIR", Decimals: 9}, nil
	}
	f.prices.lookupFunc = func(_ context.Context, symbol, gotMint string) (*price.Quote, error) {
		assert.Equal(t, "AIR", symbol)
		assert.Equal(t, mint.String(), gotMint)
		p := decimal.NewFromInt(2)
		return &price.Quote{PriceFeed: price.SourcePyth, Price: &p}, nil
	}
	srv := f.server(t)

	var resp handlers.EligibilityResponse
	url := fmt.Sprintf("%s/api/airdrops/%s/claimants/%s", srv.URL, id, recipient)
	require.Equal(t, http.StatusOK, getJSON(t, url, &resp))
	assert.Equal(t, handlers.StatusEligible, resp.Status)
	require.NotNil(t, resp.Claim)

	c := resp.Claim
	assert.Equal(t, id.String(), c.Distributor)
	assert.Equal(t, recipient.String(), c.Recipient)
	assert.Equal(t, mint.String(), c.Mint)
	assert.Equal(t, "Vested", c.Type)
	assert.Equal(t, "active", c.Phase)
	assert.Equal(t, "none", c.State)
	assert.Equal(t, "0", c.AmountUnlocked)
	assert.Equal(t, "18446744073709551616", c.AmountLocked, "amounts beyond u64 survive as strings")
	assert.Equal(t, "1500000000", c.TotalUnlocked)
	assert.Equal(t, "250000000", c.UnlockPerPeriod)
	assert.True(t, c.CanClaim)
	require.NotNil(t, c.NextClaimPeriod)
	assert.Equal(t, "1970-01-01T00:50:00Z", *c.NextClaimPeriod)

	require.Len(t, c.Proof, 1)
	raw, err := base58.Decode(c.Proof[0])
	require.NoError(t, err)
	require.Len(t, raw, 32)
	assert.Equal(t, byte(0xAB), raw[0])

	require.NotNil(t, c.Token)
	assert.Equal(t, "AIR", c.Token.Symbol)
	assert.Equal(t, "1.5", c.Formatted["totalUnlocked"])
	assert.Equal(t, "0.25", c.Formatted["unlockPerPeriod"])

	assert.Equal(t, map[string]string{
		"total":    "36893488147.42",
		"unlocked": "3.00",
		"claimed":  "0.00",
		"locked":   "5.00",
	}, c.USD)
}

func TestAirdrop_API_GetClaimantWithoutPrice(t *testing.T) {
	t.Parallel()

	for name, lookup := range map[string]func(context.Context, string, string) (*price.Quote, error){
		"no quote": func(context.Context, string, string) (*price.Quote, error) {
			return &price.Quote{}, nil
		},
		"feed down": func(context.Context, string, string) (*price.Quote, error) {
			return nil, errors.New("hermes unavailable")
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.claims.claimDataFunc = func(_ context.Context, id, recipient solana.PublicKey) (*claims.ClaimData, error) {
				return eligibleClaimData(id, recipient, solana.NewWallet().PublicKey()), nil
			}
			f.tokens.resolveFunc = func(_ context.Context, m solana.PublicKey) (*token.Info, error) {
				return &token.Info{Mint: m.String(), Symbol: "AIR", Decimals: 9}, nil
			}
			f.prices.lookupFunc = lookup
			srv := f.server(t)

			var body map[string]map[string]any
			url := fmt.Sprintf("%s/api/airdrops/%s/claimants/%s", srv.URL, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
			require.Equal(t, http.StatusOK, getJSON(t, url, &body))
			assert.Contains(t, body["claim"], "formatted")
			assert.NotContains(t, body["claim"], "usd")
		})
	}
}

func TestAirdrop_API_GetClaimantWithoutTokenInfo(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.claims.claimDataFunc = func(_ context.Context, id, recipient solana.PublicKey) (*claims.ClaimData, error) {
		data := eligibleClaimData(id, recipient, solana.NewWallet().PublicKey())
		data.NextClaimPeriod = nil
		data.CanClaim = false
		return data, nil
	}
	f.tokens.resolveFunc = func(context.Context, solana.PublicKey) (*token.Info, error) {
		return nil, errors.New("rpc down")
	}
	srv := f.server(t)

	var body map[string]map[string]any
	url := fmt.Sprintf("%s/api/airdrops/%s/claimants/%s", srv.URL, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	require.Equal(t, http.StatusOK, getJSON(t, url, &body))

	claim := body["claim"]
	assert.Contains(t, claim, "nextClaimPeriod")
	assert.Nil(t, claim["nextClaimPeriod"], "no further period is an explicit null")
	assert.NotContains(t, claim, "token")
	assert.NotContains(t, claim, "formatted")
	assert.Equal(t, false, claim["canClaim"])
}

func TestAirdrop_API_GetClaimantErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantStatus string
		wantError  string
	}{
		{
			name:       "not eligible",
			err:        claims.ErrNotEligible,
			wantCode:   http.StatusOK,
			wantStatus: handlers.StatusNotEligible,
		},
		{
			name:       "distributor not found",
			err:        claims.ErrDistributorNotFound,
			wantCode:   http.StatusNotFound,
			wantStatus: handlers.StatusUnknown,
			wantError:  "distributor_not_found",
		},
		{
			name:       "fetch failure is unknown, not ineligible",
			err:        &claims.FetchError{Source: "allocation", Err: errors.New("503")},
			wantCode:   http.StatusBadGateway,
			wantStatus: handlers.StatusUnknown,
			wantError:  "upstream_unavailable",
		},
		{
			name:       "malformed schedule",
			err:        &vesting.ConfigError{StartTs: 1000, EndTs: 1500, UnlockPeriod: 1000, Reason: "unlock period exceeds vesting duration"},
			wantCode:   http.StatusUnprocessableEntity,
			wantStatus: handlers.StatusUnknown,
			wantError:  "invalid_distributor_schedule",
		},
		{
			name:       "unexpected",
			err:        errors.New("boom"),
			wantCode:   http.StatusInternalServerError,
			wantStatus: handlers.StatusUnknown,
			wantError:  "internal_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			f.claims.claimDataFunc = func(context.Context, solana.PublicKey, solana.PublicKey) (*claims.ClaimData, error) {
				return nil, tt.err
			}
			srv := f.server(t)

			var resp handlers.EligibilityResponse
			url := fmt.Sprintf("%s/api/airdrops/%s/claimants/%s", srv.URL, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
			assert.Equal(t, tt.wantCode, getJSON(t, url, &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantError, resp.Error)
			assert.Nil(t, resp.Claim)
		})
	}
}

func TestAirdrop_API_GetClaimantInvalidAddress(t *testing.T) {
	t.Parallel()

	f := newFixture()
	var called atomic.Bool
	f.claims.claimDataFunc = func(context.Context, solana.PublicKey, solana.PublicKey) (*claims.ClaimData, error) {
		called.Store(true)
		return nil, claims.ErrNotEligible
	}
	srv := f.server(t)

	var errResp handlers.ErrorResponse
	url := fmt.Sprintf("%s/api/airdrops/%s/claimants/nope", srv.URL, solana.NewWallet().PublicKey())
	assert.Equal(t, http.StatusBadRequest, getJSON(t, url, &errResp))
	assert.Equal(t, "invalid_address", errResp.Error)
	assert.False(t, called.Load())
}

func TestAirdrop_API_GetToken(t *testing.T) {
	t.Parallel()

	f := newFixture()
	known := solana.NewWallet().PublicKey()
	f.tokens.resolveFunc = func(_ context.Context, m solana.PublicKey) (*token.Info, error) {
		if m == known {
			return &token.Info{Mint: m.String(), Name: "Airdrop", Symbol: "AIR", Decimals: 6}, nil
		}
		return nil, token.ErrMintNotFound
	}
	srv := f.server(t)

	var info token.Info
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/tokens/"+known.String(), &info))
	assert.Equal(t, uint8(6), info.Decimals)
	assert.Equal(t, "Airdrop", info.Name)

	var errResp handlers.ErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/tokens/"+solana.NewWallet().PublicKey().String(), &errResp))
	assert.Equal(t, "mint_not_found", errResp.Error)
}

func TestAirdrop_API_GetPrice(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.prices.lookupFunc = func(_ context.Context, symbol, mint string) (*price.Quote, error) {
		switch symbol {
		case "SOL":
			p := decimal.RequireFromString("145.23")
			return &price.Quote{PriceFeed: price.SourcePyth, Price: &p}, nil
		case "NOFEED":
			return nil, price.ErrNoFeed
		default:
			return nil, errors.New("hermes unavailable")
		}
	}
	srv := f.server(t)

	var body map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/prices?symbol=SOL", &body))
	assert.Equal(t, "pyth", body["priceFeed"])
	assert.Equal(t, "145.23", body["price"])

	body = nil
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/prices?symbol=NOFEED", &body))
	assert.Contains(t, body, "priceFeed")
	assert.Nil(t, body["priceFeed"])
	assert.Nil(t, body["price"])

	var errResp handlers.ErrorResponse
	assert.Equal(t, http.StatusBadGateway, getJSON(t, srv.URL+"/api/prices?symbol=BAD", &errResp))
}

func TestAirdrop_API_RouterRateLimit(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.RateLimit = rate.Limit(1)
	f.cfg.RateBurst = 2
	srv := f.server(t)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL + "/api/prices")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := http.Get(srv.URL + "/api/prices")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Health endpoints are not limited.
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAirdrop_API_CORS(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.cfg.AllowedOrigins = []string{"https://app.example.com"}
	srv := f.server(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
