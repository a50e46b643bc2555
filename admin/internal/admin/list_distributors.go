package admin

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/malbeclabs/airdrop/airdrop/pkg/claims"
	"github.com/malbeclabs/airdrop/airdrop/pkg/token"
)

// Directory is the subset of *claims.Directory used to list distributors.
type Directory interface {
	Refresh(ctx context.Context) error
	List(search string, limit, offset int) claims.Page
}

type ListDistributorsConfig struct {
	Search string
	Limit  int
	Offset int
}

// ListDistributors loads the directory once and prints one page of it. Mints
// are masked; distributor addresses are printed in full for use with
// --distributor.
func ListDistributors(ctx context.Context, w io.Writer, dir Directory, cfg ListDistributorsConfig) error {
	if err := dir.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load distributors: %w", err)
	}
	page := dir.List(cfg.Search, cfg.Limit, cfg.Offset)
	if page.Total == 0 {
		fmt.Fprintln(w, "No distributors found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DISTRIBUTOR\tTYPE\tRECIPIENTS\tTOKENS\tMINT\tVERSION")
	for _, r := range page.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s/%s\t%s/%s\t%s\t%d\n",
			r.Distributor, r.Type,
			r.Recipients.Claimed, r.Recipients.Total,
			r.Tokens.Claimed, r.Tokens.Total,
			token.MaskAddress(r.Mint), r.Version)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nShowing %d of %d distributor(s)\n", len(page.Items), page.Total)
	return nil
}
