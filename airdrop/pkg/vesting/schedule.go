package vesting

import (
	"math/big"
)

// AmountUnlockedPerPeriod returns ceil((total - initialUnlocked) / periods).
//
// Rounding up guarantees the allocation is fully unlocked on or before endTs.
// A vested window that holds no whole period is a *ConfigError.
func AmountUnlockedPerPeriod(total, initialUnlocked *big.Int, startTs, endTs, unlockPeriod int64) (*big.Int, error) {
	s := Schedule{StartTs: startTs, EndTs: endTs, UnlockPeriod: unlockPeriod}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Kind() == KindInstant {
		return new(big.Int).Set(orZero(initialUnlocked)), nil
	}

	toVest := new(big.Int).Sub(orZero(total), orZero(initialUnlocked))
	if toVest.Sign() <= 0 {
		return new(big.Int), nil
	}

	periods := big.NewInt(s.TotalPeriods())
	perPeriod := new(big.Int).Add(toVest, new(big.Int).Sub(periods, big.NewInt(1)))
	return perPeriod.Quo(perPeriod, periods), nil
}

// UnlockedAndLocked splits total into unlocked and locked amounts at now.
// locked is always total - unlocked, so the two sum to total exactly.
func UnlockedAndLocked(total, initialUnlocked *big.Int, startTs, endTs, unlockPeriod, now int64) (unlocked, locked *big.Int, err error) {
	total = orZero(total)
	initialUnlocked = orZero(initialUnlocked)

	switch ClassifyPhase(now, startTs, endTs) {
	case PhaseBefore:
		unlocked = minInt(initialUnlocked, total)
	case PhaseAfter:
		unlocked = new(big.Int).Set(total)
	default:
		perPeriod, err := AmountUnlockedPerPeriod(total, initialUnlocked, startTs, endTs, unlockPeriod)
		if err != nil {
			return nil, nil, err
		}
		toVest := new(big.Int).Sub(total, initialUnlocked)
		if toVest.Sign() < 0 {
			toVest.SetInt64(0)
		}
		vested := new(big.Int).Mul(perPeriod, big.NewInt(elapsedPeriods(now, startTs, unlockPeriod)))
		vested = minInt(vested, toVest)
		unlocked = new(big.Int).Add(minInt(initialUnlocked, total), vested)
	}

	locked = new(big.Int).Sub(total, unlocked)
	return unlocked, locked, nil
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
