// Package coordinator implements the Datanode Manager: the authoritative
// registry and lifecycle controller for storage nodes in the cluster.
//
// # Overview
//
// The Manager is the intersection of four concerns that must stay mutually
// consistent under continuous RPC load: a membership map keyed by opaque
// storage identifiers, a network-topology tree used to rank candidates for
// reads and writes, an include/exclude host policy governing admission and
// decommissioning, and a heartbeat-driven command channel that piggybacks
// lease recovery, replication, invalidation, caching, and bandwidth commands
// onto each node's periodic ping.
//
// # Core types
//
//   - Descriptor (descriptor.go): per-node mutable record.
//   - hostIndex (hostindex.go): host → descriptor-set secondary index.
//   - Topology (topology.go): rack-path tree.
//   - Registry (registry.go): primary storageID → Descriptor map, keeping
//     hostIndex and Topology in lockstep.
//   - decommissionMonitor (decommission.go): periodic state-machine sweep.
//   - Manager (manager.go): wires the above together and exposes
//     RegisterDatanode, Heartbeat, the reporting queries, and the admin
//     actions (refreshNodes, setBalancerBandwidth).
//
// # External collaborators
//
// BlockManager, HostFileReader, and SwitchResolver are referenced by
// interface only (blockmanager.go, hosts.go, resolver.go); HeartbeatStats
// (heartbeatstats.go) is a concrete type the Manager holds directly. The
// Manager owns no persisted state —
// membership is reconstructed entirely from registrations after a restart.
package coordinator
