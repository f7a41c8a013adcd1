package domain

import "errors"

// Error taxonomy for the scoring pipeline.
//
// ErrInvalidRule rejects malformed rules at write time; at evaluation time
// the offending rule is skipped with a warning instead. ErrStoreUnavailable
// is fatal to the single request it hits and is never converted into a
// "not fraud" verdict. ErrNotFound on deactivation is non-fatal to callers.
// ErrAlertDeliveryFailed is logged and dropped, never surfaced.
var (
	ErrInvalidRule         = errors.New("invalid rule")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrNotFound            = errors.New("not found")
	ErrAlertDeliveryFailed = errors.New("alert delivery failed")
)
