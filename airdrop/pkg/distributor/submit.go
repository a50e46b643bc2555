package distributor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/malbeclabs/airdrop/airdrop/pkg/metrics"
	"github.com/malbeclabs/airdrop/utils/pkg/retry"
)

var (
	newClaimDiscriminator    = instructionDiscriminator("new_claim")
	claimLockedDiscriminator = instructionDiscriminator("claim_locked")
)

func instructionDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// ClaimRequest is one claim by the owner of Signer against Distributor.
// FirstClaim selects new_claim, which opens the claim status account and
// verifies the proof; later claims use claim_locked.
type ClaimRequest struct {
	Distributor    *Distributor
	Signer         solana.PrivateKey
	AmountUnlocked uint64
	AmountLocked   uint64
	Proof          [][32]byte
	FirstClaim     bool
}

// SenderRPCClient is the subset of *rpc.Client used to submit claims.
type SenderRPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*solanarpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
}

type SenderConfig struct {
	Logger    *slog.Logger
	RPC       SenderRPCClient
	ProgramID solana.PublicKey
	Retry     retry.Config
}

func (cfg *SenderConfig) Validate() error {
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

// Sender builds, signs and sends claim transactions. Sending is never retried;
// only the reads that precede it are.
type Sender struct {
	log *slog.Logger
	cfg SenderConfig
}

func NewSender(cfg SenderConfig) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sender{log: cfg.Logger, cfg: cfg}, nil
}

// SubmitClaim sends the claim transaction and returns its signature.
func (s *Sender) SubmitClaim(ctx context.Context, req ClaimRequest) (solana.Signature, error) {
	if req.Distributor == nil {
		return solana.Signature{}, errors.New("distributor is required")
	}
	if len(req.Signer) == 0 {
		return solana.Signature{}, errors.New("signer is required")
	}
	claimant := req.Signer.PublicKey()

	ata, _, err := solana.FindAssociatedTokenAddress(claimant, req.Distributor.Mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to derive token account: %w", err)
	}

	var instructions []solana.Instruction
	exists, err := s.accountExists(ctx, ata)
	if err != nil {
		return solana.Signature{}, err
	}
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(claimant, claimant, req.Distributor.Mint).Build())
	}

	ix, err := s.claimInstruction(req, claimant, ata)
	if err != nil {
		return solana.Signature{}, err
	}
	instructions = append(instructions, ix)

	blockhash, err := callRPC(ctx, s.cfg.Retry, "getLatestBlockhash", func() (*solanarpc.GetLatestBlockhashResult, error) {
		return s.cfg.RPC.GetLatestBlockhash(ctx, solanarpc.CommitmentFinalized)
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if blockhash == nil || blockhash.Value == nil {
		return solana.Signature{}, errors.New("empty latest blockhash response")
	}

	tx, err := solana.NewTransaction(instructions, blockhash.Value.Blockhash, solana.TransactionPayer(claimant))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(claimant) {
			return &req.Signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	start := time.Now()
	sig, err := s.cfg.RPC.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		PreflightCommitment: solanarpc.CommitmentConfirmed,
	})
	metrics.RecordRPC("sendTransaction", time.Since(start), err)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send claim transaction: %w", err)
	}

	s.log.Info("distributor: claim submitted",
		"distributor", req.Distributor.Address,
		"claimant", claimant,
		"first_claim", req.FirstClaim,
		"signature", sig)
	return sig, nil
}

func (s *Sender) accountExists(ctx context.Context, key solana.PublicKey) (bool, error) {
	_, err := callRPC(ctx, s.cfg.Retry, "getAccountInfo", func() (*solanarpc.GetAccountInfoResult, error) {
		res, err := s.cfg.RPC.GetAccountInfo(ctx, key)
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, retry.Permanent(err)
		}
		return res, err
	})
	if errors.Is(err, solanarpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get account %s: %w", key, err)
	}
	return true, nil
}

func (s *Sender) claimInstruction(req ClaimRequest, claimant, ata solana.PublicKey) (solana.Instruction, error) {
	d := req.Distributor
	status, err := ClaimStatusAddress(s.cfg.ProgramID, d.Address, claimant)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		solana.Meta(d.Address).WRITE(),
		solana.Meta(status).WRITE(),
		solana.Meta(d.TokenVault).WRITE(),
		solana.Meta(ata).WRITE(),
		solana.Meta(claimant).WRITE().SIGNER(),
		solana.Meta(d.Mint),
		solana.Meta(solana.TokenProgramID),
	}
	if req.FirstClaim {
		accounts = append(accounts, solana.Meta(solana.SystemProgramID))
	}

	data, err := encodeClaimData(req)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(s.cfg.ProgramID, accounts, data), nil
}

func encodeClaimData(req ClaimRequest) ([]byte, error) {
	if !req.FirstClaim {
		return claimLockedDiscriminator[:], nil
	}

	buf := new(bytes.Buffer)
	buf.Write(newClaimDiscriminator[:])
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteUint64(req.AmountUnlocked, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(req.AmountLocked, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint32(uint32(len(req.Proof)), bin.LE); err != nil {
		return nil, err
	}
	for _, node := range req.Proof {
		if err := enc.WriteBytes(node[:], false); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
