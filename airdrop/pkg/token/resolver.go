package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	splToken "github.com/gagliardetto/solana-go/programs/token"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/malbeclabs/airdrop/airdrop/pkg/metrics"
	"github.com/malbeclabs/airdrop/utils/pkg/cache"
	"github.com/malbeclabs/airdrop/utils/pkg/retry"
)

// DefaultDecimals is used for display when a mint cannot be resolved.
const DefaultDecimals = 9

// maxAccountsPerRequest is the getMultipleAccounts limit of public RPC nodes.
const maxAccountsPerRequest = 100

// MetadataProgramID is the Metaplex token metadata program.
var MetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// ErrMintNotFound is returned when the mint account does not exist.
var ErrMintNotFound = errors.New("mint not found")

// Info describes a token mint for display.
type Info struct {
	Mint     string `json:"mint"`
	Name     string `json:"name,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals uint8  `json:"decimals"`
}

// RPCClient is the subset of *rpc.Client used by the resolver.
type RPCClient interface {
	GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*solanarpc.GetMultipleAccountsResult, error)
}

type ResolverConfig struct {
	Logger   *slog.Logger
	RPC      RPCClient
	CacheTTL time.Duration
	Retry    retry.Config
}

func (cfg *ResolverConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.CacheTTL < 0 {
		return errors.New("cache ttl must not be negative")
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Resolver looks up mint decimals and Metaplex name/symbol, memoized per mint.
type Resolver struct {
	log   *slog.Logger
	cfg   ResolverConfig
	cache *cache.Cache[*Info]
}

func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Resolver{log: cfg.Logger, cfg: cfg}
	c, err := cache.New(cache.Config[*Info]{
		Name:     "token_info",
		TTL:      cfg.CacheTTL,
		Load:     r.load,
		OnLookup: metrics.RecordCacheLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token cache: %w", err)
	}
	r.cache = c
	return r, nil
}

// Resolve returns token info for mint.
func (r *Resolver) Resolve(ctx context.Context, mint solana.PublicKey) (*Info, error) {
	return r.cache.Get(ctx, mint.String())
}

// Decimals returns the mint decimals, or DefaultDecimals when the mint cannot
// be resolved.
func (r *Resolver) Decimals(ctx context.Context, mint solana.PublicKey) uint8 {
	info, err := r.Resolve(ctx, mint)
	if err != nil {
		r.log.Debug("token: falling back to default decimals", "mint", mint, "error", err)
		return DefaultDecimals
	}
	return info.Decimals
}

// Evict drops the cached entry for mint.
func (r *Resolver) Evict(mint solana.PublicKey) {
	r.cache.Evict(mint.String())
}

// Prefetch resolves every uncached mint in batched requests. Mints that fail
// to resolve are left uncached.
func (r *Resolver) Prefetch(ctx context.Context, mints []solana.PublicKey) error {
	seen := make(map[solana.PublicKey]struct{}, len(mints))
	var missing []solana.PublicKey
	for _, m := range mints {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		if _, ok := r.cache.Peek(m.String()); !ok {
			missing = append(missing, m)
		}
	}

	const perRequest = maxAccountsPerRequest / 2
	for start := 0; start < len(missing); start += perRequest {
		end := min(start+perRequest, len(missing))
		infos, err := r.fetch(ctx, missing[start:end])
		if err != nil {
			return err
		}
		for _, info := range infos {
			r.cache.Set(info.Mint, info)
		}
	}
	return nil
}

func (r *Resolver) load(ctx context.Context, key string) (*Info, error) {
	mint, err := solana.PublicKeyFromBase58(key)
	if err != nil {
		return nil, fmt.Errorf("invalid mint %q: %w", key, err)
	}
	infos, err := r.fetch(ctx, []solana.PublicKey{mint})
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMintNotFound, mint)
	}
	return infos[0], nil
}

// fetch reads the metadata PDA and mint account for each mint in one request.
func (r *Resolver) fetch(ctx context.Context, mints []solana.PublicKey) ([]*Info, error) {
	keys := make([]solana.PublicKey, 0, 2*len(mints))
	for _, m := range mints {
		md, err := MetadataAddress(m)
		if err != nil {
			return nil, err
		}
		keys = append(keys, m, md)
	}

	start := time.Now()
	res, err := retry.DoValue(ctx, r.cfg.Retry, func() (*solanarpc.GetMultipleAccountsResult, error) {
		return r.cfg.RPC.GetMultipleAccounts(ctx, keys...)
	})
	metrics.RecordRPC("getMultipleAccounts", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get mint accounts: %w", err)
	}
	if res == nil || len(res.Value) != len(keys) {
		return nil, errors.New("unexpected mint accounts response")
	}

	out := make([]*Info, 0, len(mints))
	for i, m := range mints {
		mintAcct, mdAcct := res.Value[2*i], res.Value[2*i+1]
		if mintAcct == nil || mintAcct.Data == nil {
			continue
		}
		var mint splToken.Mint
		if err := bin.NewBinDecoder(mintAcct.Data.GetBinary()).Decode(&mint); err != nil {
			r.log.Warn("token: failed to decode mint", "mint", m, "error", err)
			continue
		}
		info := &Info{Mint: m.String(), Decimals: mint.Decimals}
		if mdAcct != nil && mdAcct.Data != nil {
			if md, err := DecodeMetadata(mdAcct.Data.GetBinary()); err == nil {
				info.Name, info.Symbol = md.Name, md.Symbol
			} else {
				r.log.Debug("token: ignoring undecodable metadata", "mint", m, "error", err)
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// MetadataAddress derives the Metaplex metadata PDA of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), MetadataProgramID.Bytes(), mint.Bytes()},
		MetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata address: %w", err)
	}
	return addr, nil
}

// Metadata is the prefix of a Metaplex metadata account.
type Metadata struct {
	UpdateAuthority solana.PublicKey
	Mint            solana.PublicKey
	Name            string
	Symbol          string
	URI             string
}

const metadataKeyV1 = 4

// DecodeMetadata decodes the fixed prefix of a Metaplex metadata account.
// Names and symbols are stored zero-padded.
func DecodeMetadata(data []byte) (*Metadata, error) {
	dec := bin.NewBorshDecoder(data)
	key, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	if key != metadataKeyV1 {
		return nil, fmt.Errorf("unexpected metadata key %d", key)
	}

	md := &Metadata{}
	ua, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	md.UpdateAuthority = solana.PublicKeyFromBytes(ua)
	mint, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	md.Mint = solana.PublicKeyFromBytes(mint)

	for _, dst := range []*string{&md.Name, &md.Symbol, &md.URI} {
		s, err := dec.ReadRustString()
		if err != nil {
			return nil, err
		}
		*dst = strings.TrimRight(s, "\x00")
	}
	return md, nil
}
