package types

import "errors"

// Error taxonomy for the core. Transient collaborator failures skip the
// affected candidate for the current cycle; gate precondition failures are
// deliberate skips, not faults.
var (
	// ErrUnavailable marks a transient chain/venue call failure or timeout.
	ErrUnavailable = errors.New("unavailable")

	// ErrPriceUnavailable marks an oracle failure with no cached fallback.
	// Callers must skip the candidate, never substitute a zero price.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrRPCUnavailable marks a failed fresh read from the chain node.
	ErrRPCUnavailable = errors.New("rpc unavailable")

	// ErrGasTooHigh is a gate precondition skip: current gas price exceeds
	// the configured ceiling.
	ErrGasTooHigh = errors.New("gas price above ceiling")

	// ErrNotProfitable is a gate precondition skip: the candidate's net
	// profit is not positive.
	ErrNotProfitable = errors.New("not profitable")

	// ErrExecutionInFlight rejects a second authorization for a token whose
	// prior execution has not settled.
	ErrExecutionInFlight = errors.New("execution already in flight for token")

	// ErrExecutionFailed marks a reverted or failed swap. The attempt may be
	// partial: earlier hops in the same path may have already settled.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrShutdown rejects work after the component has been stopped.
	ErrShutdown = errors.New("shutting down")

	// ErrConfigInvalid marks rejected configuration values.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrNoVenues means the registry is empty or holds no verified venue.
	ErrNoVenues = errors.New("no verified venues")

	ErrVenueNotFound = errors.New("venue not found")
	ErrVenueExists   = errors.New("venue already registered")
)
