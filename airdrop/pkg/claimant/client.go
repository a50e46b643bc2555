// Package claimant is a client for the off-chain eligibility API that serves
// each recipient's Merkle allocation and proof.
package claimant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/malbeclabs/airdrop/airdrop/pkg/metrics"
	"github.com/malbeclabs/airdrop/airdrop/pkg/vesting"
	"github.com/malbeclabs/airdrop/utils/pkg/retry"
	"github.com/mr-tron/base58"
)

const DefaultBaseURL = "https://staging-api-public.streamflow.finance"

// ErrNotEligible is returned when the API has no allocation for the recipient.
var ErrNotEligible = errors.New("recipient not eligible")

// StatusError is a non-success, non-404 response from the eligibility API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("eligibility api returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) StatusCode() int { return e.Code }

// Allocation is a recipient's entry in the airdrop Merkle tree.
type Allocation struct {
	Chain              string
	DistributorAddress string
	Address            string
	AmountUnlocked     *big.Int
	AmountLocked       *big.Int
	AmountClaimed      *big.Int
	Proof              [][32]byte
}

// Vesting returns the allocation in the form the vesting core consumes.
func (a *Allocation) Vesting() vesting.Allocation {
	return vesting.Allocation{
		AmountUnlocked: a.AmountUnlocked,
		AmountLocked:   a.AmountLocked,
		Proof:          a.Proof,
	}
}

type allocationResponse struct {
	Chain              string          `json:"chain"`
	DistributorAddress string          `json:"distributorAddress"`
	Address            json.RawMessage `json:"address"`
	AmountUnlocked     string          `json:"amountUnlocked"`
	AmountLocked       string          `json:"amountLocked"`
	AmountClaimed      string          `json:"amountClaimed"`
	Proof              [][]int         `json:"proof"`
}

type Config struct {
	Logger     *slog.Logger
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Config
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type Client struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{log: cfg.Logger, cfg: cfg}, nil
}

// GetAllocation fetches the allocation of recipient in distributor. A 404 is
// ErrNotEligible; every other failure is returned as an error so callers can
// tell "not eligible" from "could not tell".
func (c *Client) GetAllocation(ctx context.Context, distributor, recipient string) (*Allocation, error) {
	if err := validateAddress(distributor); err != nil {
		return nil, fmt.Errorf("invalid distributor address: %w", err)
	}
	if err := validateAddress(recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}

	endpoint, err := url.JoinPath(c.cfg.BaseURL, "v2", "api", "airdrops", distributor, "claimants", recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to build url: %w", err)
	}

	start := time.Now()
	resp, err := retry.DoValue(ctx, c.cfg.Retry, func() (*allocationResponse, error) {
		return c.fetch(ctx, endpoint)
	})
	status := "success"
	switch {
	case errors.Is(err, ErrNotEligible):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	metrics.RecordExternal("eligibility", time.Since(start), status)
	if err != nil {
		if !errors.Is(err, ErrNotEligible) {
			c.log.Warn("claimant: allocation fetch failed", "distributor", distributor, "recipient", recipient, "error", err)
		}
		return nil, err
	}

	alloc, err := resp.toAllocation()
	if err != nil {
		return nil, fmt.Errorf("invalid allocation for %s: %w", recipient, err)
	}
	if alloc.Address == "" {
		alloc.Address = recipient
	}
	return alloc, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*allocationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, retry.Permanent(ErrNotEligible)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var out allocationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return &out, nil
}

func (r *allocationResponse) toAllocation() (*Allocation, error) {
	unlocked, err := parseAmount("amountUnlocked", r.AmountUnlocked)
	if err != nil {
		return nil, err
	}
	locked, err := parseAmount("amountLocked", r.AmountLocked)
	if err != nil {
		return nil, err
	}
	claimed := new(big.Int)
	if r.AmountClaimed != "" {
		if claimed, err = parseAmount("amountClaimed", r.AmountClaimed); err != nil {
			return nil, err
		}
	}

	proof := make([][32]byte, 0, len(r.Proof))
	for i, node := range r.Proof {
		if len(node) != 32 {
			return nil, fmt.Errorf("proof node %d has %d bytes", i, len(node))
		}
		var n [32]byte
		for j, b := range node {
			if b < 0 || b > 255 {
				return nil, fmt.Errorf("proof node %d byte %d out of range: %d", i, j, b)
			}
			n[j] = byte(b)
		}
		proof = append(proof, n)
	}

	// The API has served the address both as a string and as a number.
	var address string
	_ = json.Unmarshal(r.Address, &address)

	return &Allocation{
		Chain:              r.Chain,
		DistributorAddress: r.DistributorAddress,
		Address:            address,
		AmountUnlocked:     unlocked,
		AmountLocked:       locked,
		AmountClaimed:      claimed,
		Proof:              proof,
	}, nil
}

func parseAmount(field, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s is not an integer: %q", field, s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%s is negative: %s", field, s)
	}
	return v, nil
}

func validateAddress(addr string) error {
	b, err := base58.Decode(addr)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	return nil
}
