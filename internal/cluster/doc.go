// Package cluster defines the wire-level types exchanged between a datanode
// and the coordinator's Datanode Manager, plus small HTTP helpers for
// sending and receiving JSON request/response bodies.
//
// Every pair here mirrors one RPC of the registration/heartbeat protocol:
// RegisterRequest/RegisterResponse for admission, HeartbeatRequest/
// HeartbeatResponse for the periodic ping, and Command for the ordered work
// list a heartbeat response carries. The transport is plain HTTP/JSON; there
// is no persisted state on either side of the wire.
package cluster
