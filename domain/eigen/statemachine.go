package eigen

import (
	svcerrors "github.com/OffGrid0xDAO/EigenSwarm-Monad-sub002/infrastructure/errors"
)

// allowedTransitions enumerates the status graph. It contains no cycle
// through a terminal state.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPendingFunding: {StatusActive: true, StatusTerminated: true},
	StatusPendingLP:      {StatusActive: true, StatusTerminated: true},
	StatusActive:         {StatusSuspended: true, StatusLiquidating: true},
	StatusSuspended:      {StatusActive: true, StatusLiquidating: true, StatusTerminated: true},
	StatusLiquidating:    {StatusLiquidated: true, StatusTerminated: true},
	StatusLiquidated:     {StatusTerminated: true},
	StatusTerminated:     {StatusClosed: true},
	StatusClosed:         {},
}

// CanTransition reports whether moving from `from` to `to` is legal.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// ValidateTransition returns a structured error when the transition is
// illegal, so callers can return 409 with a stable machine-readable code.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return svcerrors.InvalidTransition(string(from), string(to))
	}
	return nil
}

// String satisfies fmt.Stringer for logging.
func (s Status) String() string { return string(s) }
