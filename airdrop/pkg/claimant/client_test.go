package claimant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/airdrop/utils/pkg/retry"
	airdroptesting "github.com/malbeclabs/airdrop/utils/pkg/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Logger:  airdroptesting.NewLogger(),
		BaseURL: srv.URL,
		Retry:   retry.Config{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return c
}

func proofJSON(nodes ...byte) [][]int {
	out := make([][]int, 0, len(nodes))
	for _, b := range nodes {
		node := make([]int, 32)
		node[0] = int(b)
		node[31] = 255
		out = append(out, node)
	}
	return out
}

func TestAirdrop_Claimant_ConfigValidate(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.EqualError(t, err, "logger is required")

	cfg := Config{Logger: airdroptesting.NewLogger()}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.NotNil(t, cfg.HTTPClient)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestAirdrop_Claimant_GetAllocation(t *testing.T) {
	t.Parallel()

	distributor := solana.NewWallet().PublicKey().String()
	recipient := solana.NewWallet().PublicKey().String()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/api/airdrops/"+distributor+"/claimants/"+recipient, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chain":              "SOLANA",
			"distributorAddress": distributor,
			"address":            recipient,
			"amountUnlocked":     "100",
			"amountLocked":       "36893488147419103232",
			"amountClaimed":      "0",
			"proof":              proofJSON(1, 2),
		})
	})

	alloc, err := c.GetAllocation(context.Background(), distributor, recipient)
	require.NoError(t, err)
	assert.Equal(t, "SOLANA", alloc.Chain)
	assert.Equal(t, recipient, alloc.Address)
	assert.Equal(t, "100", alloc.AmountUnlocked.String())
	assert.Equal(t, "36893488147419103232", alloc.AmountLocked.String())
	assert.Equal(t, "0", alloc.AmountClaimed.String())
	require.Len(t, alloc.Proof, 2)
	assert.Equal(t, byte(1), alloc.Proof[0][0])
	assert.Equal(t, byte(2), alloc.Proof[1][0])
	assert.Equal(t, byte(255), alloc.Proof[1][31])

	v := alloc.Vesting()
	assert.Equal(t, "36893488147419103332", v.Total().String())
}

func TestAirdrop_Claimant_NotFoundIsNotEligible(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	})

	_, err := c.GetAllocation(context.Background(), solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String())
	require.ErrorIs(t, err, ErrNotEligible)
	assert.Equal(t, int64(1), calls.Load(), "404 is not retried")
}

func TestAirdrop_Claimant_ServerErrorsAreRetriedThenReported(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})

	_, err := c.GetAllocation(context.Background(), solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotEligible))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode())
	assert.Equal(t, int64(3), calls.Load())
}

func TestAirdrop_Claimant_RecoversAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"amountUnlocked": "5",
			"amountLocked":   "0",
			"proof":          [][]int{},
		})
	})

	alloc, err := c.GetAllocation(context.Background(), solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String())
	require.NoError(t, err)
	assert.Equal(t, "5", alloc.AmountUnlocked.String())
	assert.Equal(t, "0", alloc.AmountClaimed.String())
	assert.Empty(t, alloc.Proof)
}

func TestAirdrop_Claimant_MalformedPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body map[string]any
	}{
		{"non-numeric amount", map[string]any{"amountUnlocked": "ten", "amountLocked": "0"}},
		{"negative amount", map[string]any{"amountUnlocked": "1", "amountLocked": "-1"}},
		{"short proof node", map[string]any{"amountUnlocked": "1", "amountLocked": "0", "proof": [][]int{{1, 2, 3}}}},
		{"proof byte out of range", map[string]any{"amountUnlocked": "1", "amountLocked": "0", "proof": [][]int{append(make([]int, 31), 256)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.body)
			})
			_, err := c.GetAllocation(context.Background(), solana.NewWallet().PublicKey().String(), solana.NewWallet().PublicKey().String())
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrNotEligible))
		})
	}
}

func TestAirdrop_Claimant_RejectsInvalidAddresses(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.GetAllocation(context.Background(), "not-base58-0OIl", solana.NewWallet().PublicKey().String())
	require.Error(t, err)
	_, err = c.GetAllocation(context.Background(), solana.NewWallet().PublicKey().String(), "abc")
	require.Error(t, err)
	assert.Equal(t, int64(0), calls.Load())
}
