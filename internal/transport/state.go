package transport

import (
	"fmt"
	"time"
)

// StateKind enumerates the connection-health states.
type StateKind int

// Connection-health states.
const (
	// StateDisconnected is the initial state before Open.
	StateDisconnected StateKind = iota
	// StateConnected means the subscription is live.
	StateConnected
	// StateReconnecting means the connection was lost and a retry is
	// scheduled. Attempt and NextDelay describe the retry in flight.
	StateReconnecting
	// StateDegraded means reconnection keeps failing past the degraded
	// threshold but retries continue at the capped delay.
	StateDegraded
	// StateFailed means the bounded attempt budget is exhausted and no
	// further reconnection will be attempted until Open is called again.
	StateFailed
)

// String returns the state name for logs and the status API.
func (k StateKind) String() string {
	switch k {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDegraded:
		return "degraded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// State is an observable snapshot of connection health.
type State struct {
	Kind StateKind
	// Attempt is the consecutive failed reconnect count, reset to zero on a
	// successful connect. Meaningful for reconnecting/degraded/failed.
	Attempt int
	// NextDelay is the backoff delay before the next attempt, when one is
	// scheduled.
	NextDelay time.Duration
	// Err is the most recent connection error, if any.
	Err error
}

// StateListener receives state transitions. Listeners are invoked from the
// connection's dispatch goroutine and must not block.
type StateListener func(State)
