package distributor

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ClaimStatusAddress derives the ClaimStatus PDA for a claimant.
func ClaimStatusAddress(programID, distributor, claimant solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("ClaimStatus"), claimant.Bytes(), distributor.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive claim status address: %w", err)
	}
	return addr, nil
}

// CompressedClaimStatusAddress derives the CompressedClaimStatus PDA for a claimant.
func CompressedClaimStatusAddress(programID, distributor, claimant solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("CompressedClaimStatus"), claimant.Bytes(), distributor.Bytes()},
		programID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive compressed claim status address: %w", err)
	}
	return addr, nil
}
