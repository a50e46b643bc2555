package price

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/malbeclabs/airdrop/utils/pkg/retry"
	airdroptesting "github.com/malbeclabs/airdrop/utils/pkg/testing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solFeedID = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"

type fakeFeeds struct {
	hermes  *httptest.Server
	jupiter *httptest.Server

	hermesCalls  atomic.Int64
	jupiterCalls atomic.Int64
	hermesStatus atomic.Int64
}

func newFakeFeeds(t *testing.T) *fakeFeeds {
	t.Helper()
	f := &fakeFeeds{}

	hermes := http.NewServeMux()
	hermes.HandleFunc("/v2/price_feeds", func(w http.ResponseWriter, r *http.Request) {
		f.hermesCalls.Add(1)
		if code := f.hermesStatus.Load(); code != 0 {
			w.WriteHeader(int(code))
			return
		}
		assert.Equal(t, "crypto", r.URL.Query().Get("asset_type"))
		feeds := []map[string]any{}
		if r.URL.Query().Get("query") == "SOL" {
			feeds = append(feeds,
				map[string]any{"id": "other", "attributes": map[string]any{"base": "SOL", "quote_currency": "EUR", "symbol": "Crypto.SOL/EUR"}},
				map[string]any{"id": solFeedID, "attributes": map[string]any{"base": "SOL", "quote_currency": "USD", "symbol": "Crypto.SOL/USD"}},
			)
		}
		_ = json.NewEncoder(w).Encode(feeds)
	})
	hermes.HandleFunc("/v2/updates/price/latest", func(w http.ResponseWriter, r *http.Request) {
		f.hermesCalls.Add(1)
		assert.Equal(t, solFeedID, r.URL.Query().Get("ids[]"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"parsed": []map[string]any{{
				"id":    solFeedID,
				"price": map[string]any{"price": "14523000000", "conf": "100", "expo": -8, "publish_time": 1700000000},
			}},
		})
	})
	f.hermes = httptest.NewServer(hermes)
	t.Cleanup(f.hermes.Close)

	f.jupiter = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.jupiterCalls.Add(1)
		assert.Equal(t, "/price/v2", r.URL.Path)
		mint := r.URL.Query().Get("ids")
		data := map[string]any{mint: nil}
		if mint == "KnownMint" {
			data[mint] = map[string]any{"id": mint, "type": "derivedPrice", "price": "0.0421"}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(f.jupiter.Close)
	return f
}

func newTestFeed(t *testing.T, f *fakeFeeds) *Feed {
	t.Helper()
	feed, err := NewFeed(FeedConfig{
		Logger:     airdroptesting.NewLogger(),
		HermesURL:  f.hermes.URL,
		JupiterURL: f.jupiter.URL,
		Retry:      retry.Config{MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return feed
}

func TestAirdrop_Price_Pyth(t *testing.T) {
	t.Parallel()

	fakes := newFakeFeeds(t)
	feed := newTestFeed(t, fakes)

	q, err := feed.Lookup(context.Background(), "sol", "KnownMint")
	require.NoError(t, err)
	assert.Equal(t, SourcePyth, q.PriceFeed)
	require.NotNil(t, q.Price)
	assert.Equal(t, "145.23", q.Price.String())
	assert.Equal(t, int64(0), fakes.jupiterCalls.Load())

	// Cached for the TTL.
	_, err = feed.Lookup(context.Background(), "SOL", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), fakes.hermesCalls.Load())

	value, ok := q.Value(decimal.RequireFromString("2"))
	assert.True(t, ok)
	assert.Equal(t, "290.46", value.String())
}

func TestAirdrop_Price_Jupiter(t *testing.T) {
	t.Parallel()

	fakes := newFakeFeeds(t)
	feed := newTestFeed(t, fakes)

	q, err := feed.Lookup(context.Background(), "", "KnownMint")
	require.NoError(t, err)
	assert.Equal(t, SourceJupiter, q.PriceFeed)
	require.NotNil(t, q.Price)
	assert.Equal(t, "0.0421", q.Price.String())

	q, err = feed.Lookup(context.Background(), "", "UnknownMint")
	require.NoError(t, err)
	assert.Equal(t, SourceJupiter, q.PriceFeed)
	assert.Nil(t, q.Price)
	_, ok := q.Value(decimal.NewFromInt(1))
	assert.False(t, ok)
}

func TestAirdrop_Price_UnknownSymbolFallsBackToMint(t *testing.T) {
	t.Parallel()

	fakes := newFakeFeeds(t)
	feed := newTestFeed(t, fakes)

	q, err := feed.Lookup(context.Background(), "NOPE", "KnownMint")
	require.NoError(t, err)
	assert.Equal(t, SourceJupiter, q.PriceFeed)

	_, err = feed.Lookup(context.Background(), "NOPE", "")
	require.ErrorIs(t, err, ErrNoFeed)
}

func TestAirdrop_Price_EmptyLookup(t *testing.T) {
	t.Parallel()

	fakes := newFakeFeeds(t)
	feed := newTestFeed(t, fakes)

	q, err := feed.Lookup(context.Background(), " ", "")
	require.NoError(t, err)
	assert.Equal(t, SourceNone, q.PriceFeed)
	assert.Nil(t, q.Price)

	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, `{"priceFeed":null,"price":null}`, string(b))
	assert.Equal(t, int64(0), fakes.hermesCalls.Load()+fakes.jupiterCalls.Load())
}

func TestAirdrop_Price_UpstreamFailure(t *testing.T) {
	t.Parallel()

	fakes := newFakeFeeds(t)
	fakes.hermesStatus.Store(http.StatusBadGateway)
	feed := newTestFeed(t, fakes)

	_, err := feed.Lookup(context.Background(), "SOL", "KnownMint")
	require.Error(t, err)
	assert.Equal(t, int64(2), fakes.hermesCalls.Load(), "5xx is retried")
	assert.Equal(t, int64(0), fakes.jupiterCalls.Load(), "transport errors do not fall back")
}

func TestAirdrop_Price_QuoteJSON(t *testing.T) {
	t.Parallel()

	p := decimal.RequireFromString("1.5")
	b, err := json.Marshal(&Quote{PriceFeed: SourcePyth, Price: &p})
	require.NoError(t, err)
	assert.JSONEq(t, `{"priceFeed":"pyth","price":"1.5"}`, string(b))
}
