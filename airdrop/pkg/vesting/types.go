package vesting

import (
	"math/big"
	"time"
)

// Schedule is the global vesting schedule of one distributor.
type Schedule struct {
	StartTs      int64
	EndTs        int64
	UnlockPeriod int64
	ClaimsLimit  uint16 // 0 means unlimited
	ClawedBack   bool
}

// Kind reports whether the schedule is an instant or a linear (vested) airdrop.
func (s Schedule) Kind() Kind {
	if s.StartTs == s.EndTs {
		return KindInstant
	}
	return KindVested
}

// TotalPeriods returns the number of whole unlock periods in the vesting window.
func (s Schedule) TotalPeriods() int64 {
	if s.UnlockPeriod <= 0 {
		return 0
	}
	return (s.EndTs - s.StartTs) / s.UnlockPeriod
}

// Validate rejects schedules that cannot be vested.
func (s Schedule) Validate() error {
	if s.StartTs > s.EndTs {
		return &ConfigError{StartTs: s.StartTs, EndTs: s.EndTs, UnlockPeriod: s.UnlockPeriod, Reason: "start is after end"}
	}
	if s.Kind() == KindInstant {
		return nil
	}
	if s.UnlockPeriod <= 0 {
		return &ConfigError{StartTs: s.StartTs, EndTs: s.EndTs, UnlockPeriod: s.UnlockPeriod, Reason: "unlock period must be positive"}
	}
	if s.TotalPeriods() == 0 {
		return &ConfigError{StartTs: s.StartTs, EndTs: s.EndTs, UnlockPeriod: s.UnlockPeriod, Reason: "unlock period exceeds vesting duration"}
	}
	return nil
}

type Kind int

const (
	KindInstant Kind = iota
	KindVested
)

func (k Kind) String() string {
	switch k {
	case KindInstant:
		return "Instant"
	case KindVested:
		return "Vested"
	default:
		return "Unknown"
	}
}

// Allocation is a recipient's Merkle-proof allocation from the eligibility API.
type Allocation struct {
	AmountUnlocked *big.Int
	AmountLocked   *big.Int
	Proof          [][32]byte
}

// Total returns AmountUnlocked + AmountLocked.
func (a Allocation) Total() *big.Int {
	return new(big.Int).Add(orZero(a.AmountUnlocked), orZero(a.AmountLocked))
}

// ClaimStatus mirrors an open on-chain claim-status account.
type ClaimStatus struct {
	UnlockedAmount        *big.Int
	LockedAmount          *big.Int
	LockedAmountWithdrawn *big.Int
	LastClaimTs           int64
	LastAmountPerUnlock   *big.Int
	ClaimsCount           uint16
}

// ClaimState is one of NoClaim, CompressedClaim or VestedClaim.
type ClaimState interface {
	isClaimState()
}

// NoClaim means the recipient has never claimed and no claim-status account exists.
type NoClaim struct{}

// CompressedClaim means the claim-status account was closed after a full claim.
type CompressedClaim struct {
	ClosedTs int64
}

// VestedClaim means the claim-status account is open and still accruing.
type VestedClaim struct {
	Status ClaimStatus
}

func (NoClaim) isClaimState()         {}
func (CompressedClaim) isClaimState() {}
func (VestedClaim) isClaimState()     {}

// StateName returns a stable label for a claim state.
func StateName(s ClaimState) string {
	switch s.(type) {
	case NoClaim, *NoClaim:
		return "none"
	case CompressedClaim, *CompressedClaim:
		return "compressed"
	case VestedClaim, *VestedClaim:
		return "vested"
	default:
		return "unknown"
	}
}

// Result is the point-in-time claim view of one recipient.
type Result struct {
	Proof          [][32]byte
	AmountUnlocked *big.Int
	AmountLocked   *big.Int

	TotalUnlocked   *big.Int
	TotalLocked     *big.Int
	TotalClaimed    *big.Int
	UnlockPerPeriod *big.Int

	// NextClaimPeriod is nil when no further claim window remains.
	NextClaimPeriod *time.Time
	CanClaim        bool
	ClaimsCount     uint16

	Phase Phase
	Kind  Kind
	State string
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
