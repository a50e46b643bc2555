package vesting

import (
	"errors"
	"fmt"
)

// ErrConfig matches any *ConfigError via errors.Is.
var ErrConfig = errors.New("invalid distributor schedule")

// ConfigError reports a distributor whose unlock period does not divide the
// vesting window into at least one period. It describes a malformed
// distributor, not a recipient state.
type ConfigError struct {
	StartTs      int64
	EndTs        int64
	UnlockPeriod int64
	Reason       string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (start=%d end=%d unlock_period=%d)", ErrConfig, e.Reason, e.StartTs, e.EndTs, e.UnlockPeriod)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
