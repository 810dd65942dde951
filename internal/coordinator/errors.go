package coordinator

// DisallowedError is returned when a registration is rejected outright —
// not in the include list, or the node's identity could not be resolved —
// and state is never mutated on that path. A heartbeat from a descriptor
// marked disallowed also returns it, after forcing that descriptor dead.
type DisallowedError struct {
	Reason string // "unresolved" or "not-included" (registration), "excluded" (heartbeat)
}

func (e *DisallowedError) Error() string {
	return "disallowed: " + e.Reason
}

// UnregisteredError means a heartbeat's storage ID matched a descriptor but
// the transfer address diverged. The heartbeat responder does not return
// it: on a diverged address it answers with a single CommandRegister entry
// instead, so nothing reaches the wire as an error.
type UnregisteredError struct {
	StorageID string
}

func (e *UnregisteredError) Error() string {
	return "unregistered: " + e.StorageID
}
