package engine

import "errors"

// ErrStoreUnavailable marks an evaluation that failed because the policy
// store could not be read. The call is not allowed, but the condition is an
// infrastructure fault, not a policy denial: callers may retry it.
var ErrStoreUnavailable = errors.New("policy store unavailable")

// IsRetryable reports whether an evaluation error is a transient
// infrastructure fault rather than a decision.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
