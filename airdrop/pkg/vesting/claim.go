package vesting

import (
	"fmt"
	"math/big"
	"time"
)

// Assemble reconciles the schedule, the recipient's allocation and the
// on-chain claim state into a single Result at now (unix seconds).
//
//   - NoClaim: amounts from the allocation, nothing claimed, claimable unless clawed back.
//   - CompressedClaim: amounts from the allocation, everything claimed, not claimable.
//   - VestedClaim: amounts and cadence from the on-chain account, eligibility from
//     the next period boundary, the claims limit and the claw-back flag.
func Assemble(now int64, sched Schedule, alloc Allocation, state ClaimState) (Result, error) {
	if err := sched.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{
		Proof: alloc.Proof,
		Phase: ClassifyPhase(now, sched.StartTs, sched.EndTs),
		Kind:  sched.Kind(),
		State: StateName(state),
	}

	switch s := state.(type) {
	case NoClaim:
		return assembleFromAllocation(now, sched, alloc, res, false)
	case *NoClaim:
		return assembleFromAllocation(now, sched, alloc, res, false)
	case CompressedClaim:
		return assembleFromAllocation(now, sched, alloc, res, true)
	case *CompressedClaim:
		return assembleFromAllocation(now, sched, alloc, res, true)
	case VestedClaim:
		return assembleVested(now, sched, s.Status, res)
	case *VestedClaim:
		return assembleVested(now, sched, s.Status, res)
	default:
		return Result{}, fmt.Errorf("unsupported claim state %T", state)
	}
}

func assembleFromAllocation(now int64, sched Schedule, alloc Allocation, res Result, compressed bool) (Result, error) {
	total := alloc.Total()
	cliff := orZero(alloc.AmountUnlocked)

	unlocked, locked, err := UnlockedAndLocked(total, cliff, sched.StartTs, sched.EndTs, sched.UnlockPeriod, now)
	if err != nil {
		return Result{}, err
	}
	perPeriod, err := AmountUnlockedPerPeriod(total, cliff, sched.StartTs, sched.EndTs, sched.UnlockPeriod)
	if err != nil {
		return Result{}, err
	}

	res.AmountUnlocked = new(big.Int).Set(cliff)
	res.AmountLocked = new(big.Int).Set(orZero(alloc.AmountLocked))
	res.TotalUnlocked = unlocked
	res.TotalLocked = locked
	res.UnlockPerPeriod = perPeriod

	if compressed {
		res.TotalClaimed = total
		res.CanClaim = false
		return res, nil
	}

	start := time.Unix(sched.StartTs, 0).UTC()
	res.TotalClaimed = new(big.Int)
	res.NextClaimPeriod = &start
	res.CanClaim = !sched.ClawedBack
	return res, nil
}

func assembleVested(now int64, sched Schedule, cs ClaimStatus, res Result) (Result, error) {
	cliff := orZero(cs.UnlockedAmount)
	total := new(big.Int).Add(cliff, orZero(cs.LockedAmount))

	unlocked, locked, err := UnlockedAndLocked(total, cliff, sched.StartTs, sched.EndTs, sched.UnlockPeriod, now)
	if err != nil {
		return Result{}, err
	}

	next, hasNext := NextUnlockInstant(now, sched.StartTs, sched.EndTs, sched.UnlockPeriod, cs.LastClaimTs)
	if hasNext {
		t := time.Unix(next, 0).UTC()
		res.NextClaimPeriod = &t
	}

	res.AmountUnlocked = new(big.Int).Set(cliff)
	res.AmountLocked = new(big.Int).Set(orZero(cs.LockedAmount))
	res.TotalUnlocked = unlocked
	res.TotalLocked = locked
	res.TotalClaimed = TotalClaimed(cs)
	// The on-chain cadence is fixed when the account is created.
	res.UnlockPerPeriod = new(big.Int).Set(orZero(cs.LastAmountPerUnlock))
	res.ClaimsCount = cs.ClaimsCount
	res.CanClaim = CanClaimNow(now, next, hasNext, cs.ClaimsCount, sched.ClaimsLimit, sched.ClawedBack)
	return res, nil
}
