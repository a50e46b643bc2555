package claims

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEligible is a terminal state: the recipient has no allocation.
	ErrNotEligible = errors.New("recipient not eligible")
	// ErrDistributorNotFound means the distributor account does not exist.
	ErrDistributorNotFound = errors.New("distributor not found")
	// ErrClaimInFlight is returned while a claim for the same recipient and
	// distributor is being submitted.
	ErrClaimInFlight = errors.New("claim already in flight")
	// ErrNothingToClaim is returned when a claim is requested while the
	// recipient cannot claim.
	ErrNothingToClaim = errors.New("nothing to claim")
)

// FetchError is a network or API failure while fetching claim inputs. The
// result is unknown, not ineligible; callers retry on the next poll.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClaimRejectedError wraps a failed claim submission. It is not retried.
type ClaimRejectedError struct {
	AttemptID string
	Err       error
}

func (e *ClaimRejectedError) Error() string {
	return fmt.Sprintf("claim %s rejected: %v", e.AttemptID, e.Err)
}

func (e *ClaimRejectedError) Unwrap() error { return e.Err }
