package upstream

// EventKind enumerates the lifecycle events a Session publishes to the Registry.
type EventKind int

const (
	// EventSessionReady fires once after a successful start(): the handshake completed and
	// the initial tools/resources/prompts lists were fetched.
	EventSessionReady EventKind = iota
	// EventCapabilitiesChanged fires whenever a list_changed notification triggers a re-list
	// of the affected kind.
	EventCapabilitiesChanged
	// EventSessionLost fires when the transport closes unexpectedly or the handshake fails
	// terminally; the Registry evicts the session's namespace entries and asks the
	// Supervisor to relaunch.
	EventSessionLost
)

// Event is one lifecycle notification a Session emits on its Events channel.
type Event struct {
	Kind         EventKind
	SessionName  string
	Capabilities Capabilities
	Err          error
}
