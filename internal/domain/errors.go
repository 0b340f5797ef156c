package domain

import "errors"

// Sentinel errors distinguishing the taxonomy every layer checks with
// errors.Is/errors.As: a malformed protocol response, a startup
// configuration fault, and the three gate-miss outcomes that are normal
// results, not faults, but still need to be told apart by callers that log
// or count them differently from a real failure.
var (
	// ErrProtocolDecode marks a non-retryable malformed protocol response:
	// a view call returned fewer words than expected or ABI-unpacking failed.
	ErrProtocolDecode = errors.New("domain: protocol decode error")

	// ErrConfiguration marks a fatal startup configuration fault: a missing
	// signer, a malformed address, an empty required field.
	ErrConfiguration = errors.New("domain: configuration error")

	// ErrCircuitBreakerOpen marks a liquidation attempt skipped because the
	// circuit breaker was not in a state that allows attempts.
	ErrCircuitBreakerOpen = errors.New("domain: circuit breaker open")

	// ErrBelowDust marks a position skipped because the debt a liquidation
	// would cover is below the dust floor, not worth the gas to liquidate.
	ErrBelowDust = errors.New("domain: position below dust floor")

	// ErrNoAdmissiblePair marks a position skipped because none of its held
	// collateral/debt reserve combinations passed the eligibility filter.
	ErrNoAdmissiblePair = errors.New("domain: no admissible liquidation pair")
)
