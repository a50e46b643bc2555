package distributor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/malbeclabs/airdrop/airdrop/pkg/metrics"
	"github.com/malbeclabs/airdrop/airdrop/pkg/vesting"
	"github.com/malbeclabs/airdrop/utils/pkg/retry"
)

// ErrNotFound is returned when a distributor account does not exist.
var ErrNotFound = errors.New("distributor not found")

// RPCClient is the subset of *rpc.Client used by the reader.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solanarpc.GetAccountInfoResult, error)
	GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*solanarpc.GetMultipleAccountsResult, error)
	GetProgramAccountsWithOpts(ctx context.Context, program solana.PublicKey, opts *solanarpc.GetProgramAccountsOpts) (solanarpc.GetProgramAccountsResult, error)
}

type ReaderConfig struct {
	Logger    *slog.Logger
	RPC       RPCClient
	ProgramID solana.PublicKey
	Retry     retry.Config
}

func (cfg *ReaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Reader reads distributor and claim accounts from a Solana RPC node.
type Reader struct {
	log *slog.Logger
	cfg ReaderConfig
}

func NewReader(cfg ReaderConfig) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reader{log: cfg.Logger, cfg: cfg}, nil
}

func (r *Reader) ProgramID() solana.PublicKey {
	return r.cfg.ProgramID
}

// GetDistributor fetches and decodes one MerkleDistributor account.
func (r *Reader) GetDistributor(ctx context.Context, address solana.PublicKey) (*Distributor, error) {
	res, err := callRPC(ctx, r.cfg.Retry, "getAccountInfo", func() (*solanarpc.GetAccountInfoResult, error) {
		res, err := r.cfg.RPC.GetAccountInfo(ctx, address)
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return res, err
	})
	if errors.Is(err, solanarpc.ErrNotFound) || (err == nil && (res == nil || res.Value == nil)) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get distributor %s: %w", address, err)
	}
	if res.Value.Owner != r.cfg.ProgramID {
		return nil, ErrNotFound
	}

	d, err := DecodeDistributor(res.Value.Data.GetBinary())
	if err != nil {
		if errors.Is(err, errInvalidDiscriminator) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to decode distributor %s: %w", address, err)
	}
	d.Address = address
	return d, nil
}

// Filter narrows SearchDistributors. Zero keys match everything.
type Filter struct {
	Mint  solana.PublicKey
	Admin solana.PublicKey
}

// SearchDistributors lists every MerkleDistributor account owned by the
// program that matches filter. Accounts that fail to decode are skipped.
func (r *Reader) SearchDistributors(ctx context.Context, filter Filter) ([]*Distributor, error) {
	filters := []solanarpc.RPCFilter{
		{Memcmp: &solanarpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(merkleDistributorDiscriminator[:])}},
	}
	if !filter.Mint.IsZero() {
		filters = append(filters, solanarpc.RPCFilter{
			Memcmp: &solanarpc.RPCFilterMemcmp{Offset: mintOffset, Bytes: solana.Base58(filter.Mint.Bytes())},
		})
	}
	if !filter.Admin.IsZero() {
		filters = append(filters, solanarpc.RPCFilter{
			Memcmp: &solanarpc.RPCFilterMemcmp{Offset: adminOffset, Bytes: solana.Base58(filter.Admin.Bytes())},
		})
	}

	accounts, err := callRPC(ctx, r.cfg.Retry, "getProgramAccounts", func() (solanarpc.GetProgramAccountsResult, error) {
		return r.cfg.RPC.GetProgramAccountsWithOpts(ctx, r.cfg.ProgramID, &solanarpc.GetProgramAccountsOpts{
			Encoding: solana.EncodingBase64,
			Filters:  filters,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list distributors: %w", err)
	}

	out := make([]*Distributor, 0, len(accounts))
	for _, acct := range accounts {
		if acct == nil || acct.Account == nil {
			continue
		}
		d, err := DecodeDistributor(acct.Account.Data.GetBinary())
		if err != nil {
			r.log.Warn("distributor: skipping undecodable account", "address", acct.Pubkey, "error", err)
			continue
		}
		d.Address = acct.Pubkey
		out = append(out, d)
	}
	return out, nil
}

// GetClaimState reads both claim PDAs of claimant in one request and maps
// them onto the vesting claim-state union.
func (r *Reader) GetClaimState(ctx context.Context, distributor, claimant solana.PublicKey) (vesting.ClaimState, error) {
	statusAddr, err := ClaimStatusAddress(r.cfg.ProgramID, distributor, claimant)
	if err != nil {
		return nil, err
	}
	compressedAddr, err := CompressedClaimStatusAddress(r.cfg.ProgramID, distributor, claimant)
	if err != nil {
		return nil, err
	}

	res, err := callRPC(ctx, r.cfg.Retry, "getMultipleAccounts", func() (*solanarpc.GetMultipleAccountsResult, error) {
		return r.cfg.RPC.GetMultipleAccounts(ctx, statusAddr, compressedAddr)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get claim accounts for %s: %w", claimant, err)
	}
	if res == nil || len(res.Value) != 2 {
		return nil, fmt.Errorf("unexpected claim accounts response for %s", claimant)
	}

	if acct := res.Value[0]; acct != nil && acct.Data != nil {
		cs, err := DecodeClaimStatus(acct.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("failed to decode claim status %s: %w", statusAddr, err)
		}
		return cs.ClaimState(), nil
	}
	if acct := res.Value[1]; acct != nil && acct.Data != nil && isCompressedClaimStatus(acct.Data.GetBinary()) {
		return vesting.CompressedClaim{}, nil
	}
	return vesting.NoClaim{}, nil
}

func callRPC[T any](ctx context.Context, cfg retry.Config, method string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := retry.DoValue(ctx, cfg, fn)
	metrics.RecordRPC(method, time.Since(start), err)
	return v, err
}
