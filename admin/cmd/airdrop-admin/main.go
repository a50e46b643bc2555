package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/airdrop/admin/internal/admin"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claimant"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/distributor"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
	"github.com/malbeclabs/airdrop/api/config"
	"github.com/malbeclabs/airdrop/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "dotenv file to load when present")
	rpcURLFlag := flag.String("rpc-url", "", "Solana RPC URL (or set SOLANA_RPC_URL env var)")
	timeoutFlag := flag.Duration("timeout", 60*time.Second, "overall command timeout")

	// Commands
	listFlag := flag.Bool("list", false, "List distributors of the program")
	claimFlag := flag.Bool("claim", false, "Submit a claim for the keypair owner (requires --distributor and --keypair)")

	// Options
	distributorFlag := flag.String("distributor", "", "Distributor account address")
	recipientFlag := flag.String("recipient", "", "Recipient wallet address to show claim state for")
	keypairFlag := flag.String("keypair", "", "Path to a solana-keygen JSON keypair that signs the claim")
	searchFlag := flag.String("search", "", "Filter --list by distributor address substring")
	limitFlag := flag.Int("limit", 50, "Maximum rows printed by --list")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show the claim without submitting it")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	flag.Parse()

	// Commands print to stdout; logs go to stderr.
	log := logger.NewWithWriter(os.Stderr, *verboseFlag)

	if err := config.LoadDotenv(*envFileFlag); err != nil {
		return err
	}
	cfg, err := config.LoadFromEnv(os.Getenv)
	if err != nil {
		return err
	}
	if *rpcURLFlag != "" {
		cfg.SolanaRPCURL = *rpcURLFlag
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	rpcClient := rpc.New(cfg.SolanaRPCURL)
	reader, err := distributor.NewReader(distributor.ReaderConfig{
		Logger:    log,
		RPC:       rpcClient,
		ProgramID: cfg.ProgramID,
	})
	if err != nil {
		return fmt.Errorf("failed to create distributor reader: %w", err)
	}
	tokens, err := token.NewResolver(token.ResolverConfig{Logger: log, RPC: rpcClient})
	if err != nil {
		return fmt.Errorf("failed to create token resolver: %w", err)
	}

	if *listFlag {
		dir, err := claims.NewDirectory(claims.DirectoryConfig{
			Logger:       log,
			Distributors: reader,
			Filter:       distributor.Filter{Mint: cfg.MintFilter, Admin: cfg.AdminFilter},
		})
		if err != nil {
			return err
		}
		return admin.ListDistributors(ctx, os.Stdout, dir, admin.ListDistributorsConfig{
			Search: *searchFlag,
			Limit:  *limitFlag,
		})
	}

	if *distributorFlag == "" {
		return fmt.Errorf("--distributor is required (or use --list)")
	}
	id, err := solana.PublicKeyFromBase58(*distributorFlag)
	if err != nil {
		return fmt.Errorf("invalid --distributor: %w", err)
	}

	allocations, err := claimant.New(claimant.Config{Logger: log, BaseURL: cfg.EligibilityURL})
	if err != nil {
		return fmt.Errorf("failed to create eligibility client: %w", err)
	}
	svcCfg := claims.Config{
		Logger:       log,
		Distributors: reader,
		ClaimStates:  reader,
		Allocations:  allocations,
	}

	if *claimFlag {
		if *keypairFlag == "" {
			return fmt.Errorf("--keypair is required for --claim")
		}
		signer, err := solana.PrivateKeyFromSolanaKeygenFile(*keypairFlag)
		if err != nil {
			return fmt.Errorf("failed to load keypair: %w", err)
		}
		sender, err := distributor.NewSender(distributor.SenderConfig{
			Logger:    log,
			RPC:       rpcClient,
			ProgramID: cfg.ProgramID,
		})
		if err != nil {
			return fmt.Errorf("failed to create claim sender: %w", err)
		}
		svcCfg.Submitter = sender
		svc, err := claims.New(svcCfg)
		if err != nil {
			return err
		}
		return admin.SubmitClaim(ctx, os.Stdout, svc, tokens, admin.SubmitClaimConfig{
			Distributor: id,
			Signer:      signer,
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
		})
	}

	if *recipientFlag == "" {
		return fmt.Errorf("--recipient is required to show claim state")
	}
	recipient, err := solana.PublicKeyFromBase58(*recipientFlag)
	if err != nil {
		return fmt.Errorf("invalid --recipient: %w", err)
	}
	svc, err := claims.New(svcCfg)
	if err != nil {
		return err
	}
	return admin.ShowClaim(ctx, os.Stdout, svc, tokens, id, recipient)
}
