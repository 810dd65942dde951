package coordinator

import "github.com/sirupsen/logrus"

// CommandKind enumerates the work items a heartbeat response can carry.
type CommandKind string

const (
	CmdTransfer   CommandKind = "TRANSFER"
	CmdInvalidate CommandKind = "INVALIDATE"
	CmdCache      CommandKind = "CACHE"
	CmdUncache    CommandKind = "UNCACHE"
	CmdKeyUpdate  CommandKind = "KEY_UPDATE"
	CmdBandwidth  CommandKind = "BANDWIDTH"
	CmdRecovery   CommandKind = "RECOVERY"
	CmdRegister   CommandKind = "REGISTER"
)

// Command is one entry of the ordered list a heartbeat response returns.
type Command struct {
	Kind      CommandKind
	Block     string
	Blocks    []string
	Targets   []string
	Locations []string
	Bandwidth int64
}

// HeartbeatInput is the Manager-facing form of a heartbeat RPC: the
// claimed identity (used to detect a diverged registration), capacity
// counters, and the per-heartbeat transfer cap.
type HeartbeatInput struct {
	StorageID    string
	IPAddr       string
	XferPort     int
	Capacity     HeartbeatCapacity
	MaxTransfers int
}

// HeartbeatResult is the explicit result variant replacing exceptions as
// control flow: either a command list, or an error describing why the
// node was refused.
type HeartbeatResult struct {
	Commands []Command
	Err      error
}

// Heartbeat runs C7's eight-step algorithm.
func (m *Manager) Heartbeat(in HeartbeatInput) HeartbeatResult {
	m.metrics.HeartbeatsTotal.Inc()
	d := m.registry.Get(in.StorageID)

	if d != nil {
		ip, port := d.XferAddr()
		if ip != in.IPAddr || port != in.XferPort {
			logrus.WithField("storage_id", in.StorageID).
				Error("heartbeat transfer address diverged from registration; forcing re-register")
			return HeartbeatResult{Commands: []Command{{Kind: CmdRegister}}}
		}
	}

	if d != nil && d.Snapshot().Disallowed {
		d.ForceDead()
		return HeartbeatResult{Err: &DisallowedError{Reason: "excluded"}}
	}

	if d == nil || !d.Snapshot().IsAlive {
		return HeartbeatResult{Commands: []Command{{Kind: CmdRegister}}}
	}

	d.UpdateCapacity(in.Capacity)
	d.SetAlive(nowMillis())
	m.stats.Register(d)

	if m.safeMode.Load() {
		return HeartbeatResult{}
	}

	if recoveries := d.DrainLeaseRecovery(); len(recoveries) > 0 {
		return HeartbeatResult{Commands: m.buildRecoveryCommands(recoveries)}
	}

	var cmds []Command
	for _, pr := range d.DrainReplicas(in.MaxTransfers) {
		cmds = append(cmds, Command{Kind: CmdTransfer, Block: pr.block, Targets: pr.targets})
	}
	if blocks := d.DrainInvalidate(m.cfg.BlockInvalidateLimit); len(blocks) > 0 {
		cmds = append(cmds, Command{Kind: CmdInvalidate, Blocks: blocks})
	}
	if blocks := d.DrainCache(); len(blocks) > 0 && m.sendCachingCommands {
		cmds = append(cmds, Command{Kind: CmdCache, Blocks: blocks})
	}
	if blocks := d.DrainUncache(); len(blocks) > 0 && m.sendCachingCommands {
		cmds = append(cmds, Command{Kind: CmdUncache, Blocks: blocks})
	}
	if keys := m.blockMgr.EnqueueKeyUpdate(d.StorageID); len(keys) > 0 {
		cmds = append(cmds, Command{Kind: CmdKeyUpdate, Blocks: keys})
	}
	if bw := d.TakeBandwidth(); bw > 0 {
		cmds = append(cmds, Command{Kind: CmdBandwidth, Bandwidth: bw})
	}
	return HeartbeatResult{Commands: cmds}
}

// buildRecoveryCommands implements the lease-recovery dispatch rule: when
// more than one expected location is not stale, recover to those; otherwise
// recover to the full original set and let the primary replica drive error
// handling.
func (m *Manager) buildRecoveryCommands(recoveries []pendingRecovery) []Command {
	now := nowMillis()
	staleIntervalMillis := m.cfg.effectiveStaleIntervalMillis()

	cmds := make([]Command, 0, len(recoveries))
	for _, r := range recoveries {
		var nonStale []string
		for _, loc := range r.locations {
			ld := m.registry.Get(loc)
			if ld == nil || !ld.IsStale(now, staleIntervalMillis) {
				nonStale = append(nonStale, loc)
			}
		}

		locations := r.locations
		if len(nonStale) > 1 {
			skipped := len(r.locations) - len(nonStale)
			if skipped > 0 {
				logrus.WithFields(logrus.Fields{"block": r.block, "skipped_stale": skipped}).
					Info("skipped stale locations for lease recovery")
			}
			locations = nonStale
		}
		cmds = append(cmds, Command{Kind: CmdRecovery, Block: r.block, Locations: locations})
	}
	return cmds
}
