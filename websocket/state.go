package websocket

// ConnectionState is one of the five lifecycle states a Conn moves
// through (spec.md Section 4.6). A flat enum with a central transition
// table, rather than a polymorphic per-state object, keeps the legal
// transitions auditable in one place and avoids a heap allocation per
// state change.
type ConnectionState int

const (
	// StateNeedHandshake is the initial state: Handshake has not been
	// called yet.
	StateNeedHandshake ConnectionState = iota

	// StateMidHandshake is entered as soon as Handshake starts, before
	// it has succeeded or failed.
	StateMidHandshake

	// StateConnected is entered once the handshake response has been
	// written successfully; Receive/Send* are only valid here.
	StateConnected

	// StateFailed is terminal: an unrecoverable protocol or I/O error
	// occurred.
	StateFailed

	// StateClosed is terminal: a Close frame was exchanged, or the
	// owner called Close explicitly.
	StateClosed
)

// String returns a lowercase name for the state, for logging.
func (s ConnectionState) String() string {
	switch s {
	case StateNeedHandshake:
		return "need_handshake"
	case StateMidHandshake:
		return "mid_handshake"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// transitions enumerates every legal (from, to) pair. Any pair absent
// from this table is rejected by transition as an invalid-state error;
// Failed and Closed are terminal and have no outgoing entries, so any
// transition attempted from them also fails. The explicit "Any ->
// Closed" rule (an owner calling Close regardless of current state) is
// special-cased at the top of transition, since a single map entry
// can't express "any source state".
var transitions = map[ConnectionState]map[ConnectionState]bool{
	StateNeedHandshake: {StateMidHandshake: true},
	StateMidHandshake:  {StateConnected: true, StateFailed: true},
	StateConnected:     {StateClosed: true, StateFailed: true},
}

// transition moves from one state to another if the pair is legal,
// reporting ErrInvalidState otherwise.
func transition(from, to ConnectionState) error {
	if to == StateClosed {
		return nil // Any -> Closed is always legal (explicit close()).
	}
	if allowed, ok := transitions[from]; ok && allowed[to] {
		return nil
	}
	return newError(KindInvalidState, "transition "+from.String()+" -> "+to.String(), ErrInvalidState)
}
