package consensus

import "fmt"

// ProtocolError marks a violation of the publisher/solver command-event
// protocol: an unexpected event, or a result tagged with a stale job id.
// It is fatal to the current candidate but is returned rather than
// panicked, leaving the reaction (log and move on, or abort) to the
// caller.
type ProtocolError struct {
	Solver string
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("consensus: protocol error on %s: %s", e.Solver, e.Detail)
}

// ErrNotPoWBlock marks a non-PoW block presented where a PoW block was
// required and no consensus-mode-switch exception applies.
var ErrNotPoWBlock = fmt.Errorf("consensus: not a PoW block")

// ErrStaleEvent names a solver event whose job id doesn't match the
// caller's current candidate. The publisher does not return it: a stale
// result is reported as a ProtocolError.
var ErrStaleEvent = fmt.Errorf("consensus: stale solver event")
