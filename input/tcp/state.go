package tcp

// State is the connection manager's lifecycle state.
type State int32

const (
	// StateDisconnected means no connection and no background loop.
	StateDisconnected State = iota
	// StateConnecting means the initial handshake is in progress.
	StateConnecting
	// StateStreaming means frames are being read.
	StateStreaming
	// StateReconnecting means the stream failed and handshakes are being retried.
	StateReconnecting
	// StateGivenUp is terminal: the reconnect ceiling was crossed.
	StateGivenUp
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// IsConnected reports whether s is StateStreaming.
func (s State) IsConnected() bool {
	return s == StateStreaming
}

// IsTerminal reports whether no further transitions can happen.
func (s State) IsTerminal() bool {
	return s == StateGivenUp
}
