package interfaces

// Connection is an outbound sink for one live client
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details keeps
// the registry and broadcaster testable with in-memory sinks
type Connection interface {
	// ID returns the opaque connection identifier used as the registry key
	ID() string

	// WriteJSON queues v for delivery. Implementations must be safe for
	// concurrent callers and must not block on a slow peer.
	WriteJSON(v interface{}) error

	// Close releases transport resources; repeated calls are no-ops
	Close() error
}
