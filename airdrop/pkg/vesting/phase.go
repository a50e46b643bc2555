// Package vesting computes locked, unlocked and claimed balances of a Merkle
// distributor recipient under a linear, period-stepped vesting schedule, and
// predicts whether a claim submitted now would be accepted.
//
// All functions are pure. Callers pass the current time explicitly; every
// comparison against it goes through ClassifyPhase.
package vesting

type Phase int

const (
	PhaseBefore Phase = iota
	PhaseActive
	PhaseAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseActive:
		return "active"
	case PhaseAfter:
		return "after"
	default:
		return "unknown"
	}
}

// ClassifyPhase places now relative to the [startTs, endTs) vesting window.
// An instant schedule (startTs == endTs) is never Active.
func ClassifyPhase(now, startTs, endTs int64) Phase {
	if now < startTs {
		return PhaseBefore
	}
	if now >= endTs {
		return PhaseAfter
	}
	return PhaseActive
}

// NextUnlockInstant returns the next period boundary at which a claim becomes
// possible. The boolean is false when no boundary remains in the schedule.
//
// Claims happen only on boundaries: a recipient who last claimed mid-period
// waits for the following boundary.
func NextUnlockInstant(now, startTs, endTs, unlockPeriod, lastClaimTs int64) (int64, bool) {
	switch ClassifyPhase(now, startTs, endTs) {
	case PhaseBefore:
		return startTs, true
	case PhaseAfter:
		return 0, false
	}

	if unlockPeriod <= 0 {
		return 0, false
	}

	next := startTs
	if lastClaimTs >= startTs {
		periodsSinceStart := (lastClaimTs-startTs)/unlockPeriod + 1
		next = startTs + unlockPeriod*periodsSinceStart
	}
	if next > endTs {
		return 0, false
	}
	return next, true
}

// elapsedPeriods returns the number of whole unlock periods since startTs.
// Callers classify the phase first and only call it while Active, so
// now >= startTs.
func elapsedPeriods(now, startTs, unlockPeriod int64) int64 {
	if unlockPeriod <= 0 {
		return 0
	}
	return (now - startTs) / unlockPeriod
}
