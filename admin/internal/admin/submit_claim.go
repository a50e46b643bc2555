package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
)

type SubmitClaimConfig struct {
	Distributor solana.PublicKey
	Signer      solana.PrivateKey
	DryRun      bool
	SkipConfirm bool
	// Confirm is read for the confirmation prompt. Defaults to stdin.
	Confirm io.Reader
}

// SubmitClaim shows the signer's claim state and, once confirmed, submits a
// claim for it.
func SubmitClaim(ctx context.Context, w io.Writer, svc ClaimService, tokens TokenDecimals, cfg SubmitClaimConfig) error {
	recipient := cfg.Signer.PublicKey()
	data, err := svc.ClaimData(ctx, cfg.Distributor, recipient)
	if errors.Is(err, claims.ErrNotEligible) {
		fmt.Fprintf(w, "Recipient %s is not eligible for distributor %s\n", recipient, cfg.Distributor)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get claim data: %w", err)
	}
	printClaim(w, data, tokens.Decimals(ctx, data.Distributor.Mint))

	if !data.CanClaim {
		fmt.Fprintln(w, "\nNothing to claim right now")
		return nil
	}
	if cfg.DryRun {
		fmt.Fprintln(w, "\n[DRY RUN] Would submit a claim for the above")
		return nil
	}

	if !cfg.SkipConfirm {
		fmt.Fprintf(w, "\nThis sends a transaction signed by %s.\n", recipient)
		fmt.Fprint(w, "Type 'yes' to confirm: ")

		in := cfg.Confirm
		if in == nil {
			in = os.Stdin
		}
		response, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Fprintln(w, "\nConfirmation failed. Claim cancelled.")
			return nil
		}
		fmt.Fprintln(w)
	}

	receipt, err := svc.Claim(ctx, cfg.Distributor, cfg.Signer)
	if err != nil {
		return fmt.Errorf("failed to submit claim: %w", err)
	}
	fmt.Fprintf(w, "Claim submitted\n  signature:  %s\n  attempt id: %s\n", receipt.Signature, receipt.AttemptID)
	return nil
}
