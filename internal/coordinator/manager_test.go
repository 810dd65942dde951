package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() *Manager {
	cfg := DefaultConfig()
	return NewManager(cfg, nil, nil, nil)
}

func TestManager_RegisterNewNodeAssignsStorageID(t *testing.T) {
	m := newTestManager()
	id, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	d := m.registry.Get(id)
	require.NotNil(t, d)
	assert.True(t, d.Snapshot().IsAlive)
}

func TestManager_RegisterThenHeartbeat(t *testing.T) {
	m := newTestManager()
	id, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	res := m.Heartbeat(HeartbeatInput{StorageID: id, IPAddr: "10.0.0.1", XferPort: 50010})
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Commands)
}

func TestManager_HeartbeatUnknownStorageIDAsksToRegister(t *testing.T) {
	m := newTestManager()
	res := m.Heartbeat(HeartbeatInput{StorageID: "DS-nope", IPAddr: "10.0.0.1", XferPort: 50010})
	require.Len(t, res.Commands, 1)
	assert.Equal(t, CmdRegister, res.Commands[0].Kind)
}

func TestManager_HeartbeatAddressDivergenceAsksToRegister(t *testing.T) {
	m := newTestManager()
	id, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	res := m.Heartbeat(HeartbeatInput{StorageID: id, IPAddr: "10.0.0.99", XferPort: 50010})
	require.Len(t, res.Commands, 1)
	assert.Equal(t, CmdRegister, res.Commands[0].Kind)
}

func TestManager_SafeModeSuppressesCommands(t *testing.T) {
	m := newTestManager()
	id, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	d := m.registry.Get(id)
	d.EnqueueInvalidate([]string{"blk1"}, 1000)

	m.SetSafeMode(true)
	res := m.Heartbeat(HeartbeatInput{StorageID: id, IPAddr: "10.0.0.1", XferPort: 50010})
	assert.Empty(t, res.Commands)
}

func TestManager_RegistrationRejectedWhenNotIncluded(t *testing.T) {
	reader, err := NewFileHostReader("", "")
	require.NoError(t, err)
	reader.includes = []HostEntry{{IPAddress: "10.0.0.1"}}

	m := NewManager(DefaultConfig(), nil, reader, nil)
	_, err = m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.9", HostName: "host-z", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.Error(t, err)
	var disallowed *DisallowedError
	assert.ErrorAs(t, err, &disallowed)
}

func TestManager_SetBalancerBandwidthBroadcasts(t *testing.T) {
	m := newTestManager()
	id, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "10.0.0.1", HostName: "host-a", Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	m.SetBalancerBandwidth(99)
	res := m.Heartbeat(HeartbeatInput{StorageID: id, IPAddr: "10.0.0.1", XferPort: 50010})
	require.Len(t, res.Commands, 1)
	assert.Equal(t, CmdBandwidth, res.Commands[0].Kind)
	assert.Equal(t, int64(99), res.Commands[0].Bandwidth)
}
