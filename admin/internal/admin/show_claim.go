package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"text/tabwriter"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
)

// ClaimService is the subset of *claims.Service used by the admin commands.
type ClaimService interface {
	ClaimData(ctx context.Context, id, recipient solana.PublicKey) (*claims.ClaimData, error)
	Claim(ctx context.Context, id solana.PublicKey, signer solana.PrivateKey) (*claims.Receipt, error)
}

// TokenDecimals resolves mint decimals, falling back to a default.
type TokenDecimals interface {
	Decimals(ctx context.Context, mint solana.PublicKey) uint8
}

// ShowClaim prints the assembled claim state of recipient in distributor id.
// An ineligible recipient is reported, not returned as an error.
func ShowClaim(ctx context.Context, w io.Writer, svc ClaimService, tokens TokenDecimals, id, recipient solana.PublicKey) error {
	data, err := svc.ClaimData(ctx, id, recipient)
	if errors.Is(err, claims.ErrNotEligible) {
		fmt.Fprintf(w, "Recipient %s is not eligible for distributor %s\n", recipient, id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get claim data: %w", err)
	}
	printClaim(w, data, tokens.Decimals(ctx, data.Distributor.Mint))
	return nil
}

func printClaim(w io.Writer, data *claims.ClaimData, decimals uint8) {
	amount := func(v *big.Int) string { return token.FormatAmount(v, decimals) }

	next := "-"
	if data.NextClaimPeriod != nil {
		next = data.NextClaimPeriod.UTC().Format(time.RFC3339)
	}
	total := new(big.Int)
	for _, v := range []*big.Int{data.AmountUnlocked, data.AmountLocked} {
		if v != nil {
			total.Add(total, v)
		}
	}
	canClaim := "no"
	if data.CanClaim {
		canClaim = "yes"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Distributor:\t%s\n", data.Distributor.Address)
	fmt.Fprintf(tw, "Mint:\t%s\n", data.Distributor.Mint)
	fmt.Fprintf(tw, "Recipient:\t%s\n", data.Recipient)
	fmt.Fprintf(tw, "Type:\t%s\n", data.Kind)
	fmt.Fprintf(tw, "Phase:\t%s\n", data.Phase)
	fmt.Fprintf(tw, "Claim state:\t%s\n", data.State)
	fmt.Fprintf(tw, "Allocation:\t%s (unlocked %s, locked %s)\n", amount(total), amount(data.AmountUnlocked), amount(data.AmountLocked))
	fmt.Fprintf(tw, "Total unlocked:\t%s\n", amount(data.TotalUnlocked))
	fmt.Fprintf(tw, "Total locked:\t%s\n", amount(data.TotalLocked))
	fmt.Fprintf(tw, "Total claimed:\t%s\n", amount(data.TotalClaimed))
	fmt.Fprintf(tw, "Unlock per period:\t%s\n", amount(data.UnlockPerPeriod))
	fmt.Fprintf(tw, "Claims count:\t%d\n", data.ClaimsCount)
	fmt.Fprintf(tw, "Next claim period:\t%s\n", next)
	fmt.Fprintf(tw, "Can claim:\t%s\n", canClaim)
	_ = tw.Flush()
}
