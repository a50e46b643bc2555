package claims

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claimant"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/metrics"
	"github.com/malbeclabs/airdrop/airdrop/pkg/vesting"
	"github.com/malbeclabs/airdrop/utils/pkg/cache"
)

// DistributorReader reads distributor accounts.
type DistributorReader interface {
	GetDistributor(ctx context.Context, address solana.PublicKey) (*distributor.Distributor, error)
	SearchDistributors(ctx context.Context, filter distributor.Filter) ([]*distributor.Distributor, error)
}

// ClaimStatusReader reads a recipient's on-chain claim state.
type ClaimStatusReader interface {
	GetClaimState(ctx context.Context, distributor, claimant solana.PublicKey) (vesting.ClaimState, error)
}

// AllocationSource serves Merkle allocations. It returns
// claimant.ErrNotEligible when the recipient has none.
type AllocationSource interface {
	GetAllocation(ctx context.Context, distributor, recipient string) (*claimant.Allocation, error)
}

// Submitter sends claim transactions.
type Submitter interface {
	SubmitClaim(ctx context.Context, req distributor.ClaimRequest) (solana.Signature, error)
}

type Config struct {
	Logger       *slog.Logger
	Clock        clockwork.Clock
	Distributors DistributorReader
	ClaimStates  ClaimStatusReader
	Allocations  AllocationSource
	// Submitter is optional; without it Claim is unavailable.
	Submitter Submitter
	// DistributorTTL bounds how long a fetched distributor is reused.
	DistributorTTL time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Distributors == nil {
		return errors.New("distributor reader is required")
	}
	if cfg.ClaimStates == nil {
		return errors.New("claim status reader is required")
	}
	if cfg.Allocations == nil {
		return errors.New("allocation source is required")
	}
	if cfg.DistributorTTL < 0 {
		return errors.New("distributor ttl must not be negative")
	}
	if cfg.DistributorTTL == 0 {
		cfg.DistributorTTL = 30 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// ClaimData is the assembled claim state of one recipient.
type ClaimData struct {
	Distributor *distributor.Distributor
	Recipient   solana.PublicKey
	Allocation  *claimant.Allocation
	Claim       vesting.ClaimState
	vesting.Result
}

// Receipt identifies a submitted claim.
type Receipt struct {
	AttemptID string
	Signature solana.Signature
}

type Service struct {
	log          *slog.Logger
	cfg          Config
	distributors *cache.Cache[*distributor.Distributor]

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		log:      cfg.Logger,
		cfg:      cfg,
		inFlight: make(map[string]struct{}),
	}
	c, err := cache.New(cache.Config[*distributor.Distributor]{
		Name:     "distributors",
		TTL:      cfg.DistributorTTL,
		Clock:    cfg.Clock,
		Load:     s.loadDistributor,
		OnLookup: metrics.RecordCacheLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create distributor cache: %w", err)
	}
	s.distributors = c
	return s, nil
}

func (s *Service) loadDistributor(ctx context.Context, key string) (*distributor.Distributor, error) {
	addr, err := solana.PublicKeyFromBase58(key)
	if err != nil {
		return nil, err
	}
	return s.cfg.Distributors.GetDistributor(ctx, addr)
}

// Distributor returns one distributor, ErrDistributorNotFound when absent.
func (s *Service) Distributor(ctx context.Context, id solana.PublicKey) (*distributor.Distributor, error) {
	d, err := s.distributors.Get(ctx, id.String())
	if errors.Is(err, distributor.ErrNotFound) {
		return nil, ErrDistributorNotFound
	}
	if err != nil {
		return nil, &FetchError{Source: "distributor", Err: err}
	}
	return d, nil
}

// Invalidate drops cached state for a distributor.
func (s *Service) Invalidate(id solana.PublicKey) {
	s.distributors.Evict(id.String())
}

// ClaimData fetches the distributor, the recipient's allocation and claim
// state concurrently and assembles them once all three have resolved.
//
// Errors are classified in order: ErrDistributorNotFound, ErrNotEligible,
// then *FetchError for any other fetch failure.
func (s *Service) ClaimData(ctx context.Context, id, recipient solana.PublicKey) (*ClaimData, error) {
	var (
		dist  *distributor.Distributor
		alloc *claimant.Allocation
		state vesting.ClaimState

		distErr, allocErr, stateErr error
	)

	// Each fetch keeps its own error; none cancels the others, so every
	// outcome is available for classification.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		dist, distErr = s.Distributor(ctx, id)
	}()
	go func() {
		defer wg.Done()
		alloc, allocErr = s.cfg.Allocations.GetAllocation(ctx, id.String(), recipient.String())
	}()
	go func() {
		defer wg.Done()
		state, stateErr = s.cfg.ClaimStates.GetClaimState(ctx, id, recipient)
	}()
	wg.Wait()

	switch {
	case errors.Is(distErr, ErrDistributorNotFound):
		s.observe("unknown", "distributor_not_found")
		return nil, ErrDistributorNotFound
	case errors.Is(allocErr, claimant.ErrNotEligible):
		s.observe("unknown", "not_eligible")
		return nil, ErrNotEligible
	case distErr != nil:
		s.observe("unknown", "fetch_error")
		return nil, distErr
	case allocErr != nil:
		s.observe("unknown", "fetch_error")
		return nil, &FetchError{Source: "allocation", Err: allocErr}
	case stateErr != nil:
		s.observe("unknown", "fetch_error")
		return nil, &FetchError{Source: "claim status", Err: stateErr}
	}

	now := s.cfg.Clock.Now().Unix()
	res, err := vesting.Assemble(now, dist.Schedule(), alloc.Vesting(), state)
	if err != nil {
		s.observe(vesting.StateName(state), "config_error")
		s.log.Warn("claims: malformed distributor schedule", "distributor", id, "error", err)
		return nil, err
	}
	s.observe(res.State, "ok")

	return &ClaimData{
		Distributor: dist,
		Recipient:   recipient,
		Allocation:  alloc,
		Claim:       state,
		Result:      res,
	}, nil
}

// Claim submits a claim for the signer against distributor id. At most one
// claim per recipient and distributor is in flight; a second call returns
// ErrClaimInFlight. Submission failures are returned as *ClaimRejectedError
// and not retried. Cached distributor state is dropped afterwards on every
// outcome.
func (s *Service) Claim(ctx context.Context, id solana.PublicKey, signer solana.PrivateKey) (*Receipt, error) {
	if s.cfg.Submitter == nil {
		return nil, errors.New("claim submission is not configured")
	}
	recipient := signer.PublicKey()
	key := id.String() + ":" + recipient.String()

	s.mu.Lock()
	if _, busy := s.inFlight[key]; busy {
		s.mu.Unlock()
		metrics.ClaimSubmissionsTotal.WithLabelValues("in_flight").Inc()
		return nil, ErrClaimInFlight
	}
	s.inFlight[key] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.Invalidate(id)
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}()

	attemptID := uuid.NewString()
	log := s.log.With("attempt_id", attemptID, "distributor", id, "recipient", recipient)

	data, err := s.ClaimData(ctx, id, recipient)
	if err != nil {
		return nil, err
	}
	if !data.CanClaim {
		metrics.ClaimSubmissionsTotal.WithLabelValues("nothing_to_claim").Inc()
		return nil, ErrNothingToClaim
	}

	req, err := claimRequest(data, signer)
	if err != nil {
		return nil, err
	}

	log.Info("claims: submitting claim", "first_claim", req.FirstClaim)
	sig, err := s.cfg.Submitter.SubmitClaim(ctx, req)
	if err != nil {
		metrics.ClaimSubmissionsTotal.WithLabelValues("rejected").Inc()
		log.Warn("claims: claim rejected", "error", err)
		return nil, &ClaimRejectedError{AttemptID: attemptID, Err: err}
	}
	metrics.ClaimSubmissionsTotal.WithLabelValues("submitted").Inc()
	log.Info("claims: claim submitted", "signature", sig)

	return &Receipt{AttemptID: attemptID, Signature: sig}, nil
}

func claimRequest(data *ClaimData, signer solana.PrivateKey) (distributor.ClaimRequest, error) {
	unlocked, locked := data.Allocation.AmountUnlocked, data.Allocation.AmountLocked
	if !unlocked.IsUint64() || !locked.IsUint64() {
		return distributor.ClaimRequest{}, fmt.Errorf("allocation exceeds u64: unlocked=%s locked=%s", unlocked, locked)
	}
	_, first := data.Claim.(vesting.NoClaim)
	return distributor.ClaimRequest{
		Distributor:    data.Distributor,
		Signer:         signer,
		AmountUnlocked: unlocked.Uint64(),
		AmountLocked:   locked.Uint64(),
		Proof:          data.Allocation.Proof,
		FirstClaim:     first,
	}, nil
}

func (s *Service) observe(state, outcome string) {
	metrics.ClaimDataTotal.WithLabelValues(state, outcome).Inc()
}
