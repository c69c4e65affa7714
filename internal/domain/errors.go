package domain

import "errors"

// Error taxonomy for the metered proxy. Sentinels are matched with
// errors.Is across package boundaries.
var (
	// ErrInvalidRequest indicates a malformed request body, rejected
	// before any side effect.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnauthenticated indicates no usable identity in strict mode.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInsufficientCredit indicates the preflight balance check
	// failed: balance is zero or below, or the user has no ledger row.
	ErrInsufficientCredit = errors.New("insufficient credit")

	// ErrUpstreamFailure indicates a provider error, timeout, or
	// invalid model while streaming.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrLedgerWrite indicates a post-stream decrement or usage log
	// append failed. Never surfaced to the caller.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrUserNotFound indicates no credit balance row exists for the
	// user. Callers treat this as insufficient funds, not a crash.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUsage indicates negative token counts or a negative
	// debit amount; these are programmer errors.
	ErrInvalidUsage = errors.New("invalid usage")

	// ErrUnknownModel indicates no exact or prefix pricing match and
	// no default entry configured.
	ErrUnknownModel = errors.New("unknown model")
)
