package vesting

import (
	"math/big"
)

// TotalClaimed returns the amount the recipient has withdrawn so far.
func TotalClaimed(cs ClaimStatus) *big.Int {
	if cs.ClaimsCount == 0 {
		return new(big.Int)
	}
	withdrawn := orZero(cs.LockedAmountWithdrawn)
	if withdrawn.Sign() == 0 {
		// Only the cliff has been claimed.
		return new(big.Int).Set(orZero(cs.UnlockedAmount))
	}
	return new(big.Int).Add(withdrawn, orZero(cs.UnlockedAmount))
}

// CanClaimNow predicts whether the program would accept a claim at now.
// hasNext is false when there is no next claim period.
func CanClaimNow(now, nextClaimPeriod int64, hasNext bool, claimsCount, claimsLimit uint16, clawedBack bool) bool {
	if clawedBack {
		return false
	}
	if hasNext && now < nextClaimPeriod {
		return false
	}
	if claimsLimit > 0 && claimsCount >= claimsLimit {
		return false
	}
	return true
}
