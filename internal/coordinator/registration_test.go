package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDatanode_UpdatePathPreservesStorageID(t *testing.T) {
	m := newTestManager()
	id, err := m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-fixed", IPAddr: "10.0.0.1", HostName: "host-a",
		Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "DS-fixed", id)

	id2, err := m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-fixed", IPAddr: "10.0.0.1", HostName: "host-a",
		Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.1",
	})
	require.NoError(t, err)
	assert.Equal(t, "DS-fixed", id2)

	d := m.registry.Get("DS-fixed")
	require.NotNil(t, d)
	assert.Equal(t, "1.1", d.Snapshot().SoftwareVersion)
}

func TestRegisterDatanode_OrphanEvictedOnAddressCollision(t *testing.T) {
	m := newTestManager()
	_, err := m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-old", IPAddr: "10.0.0.1", HostName: "host-a",
		Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	_, err = m.RegisterDatanode(RegistrationInput{
		StorageID: "DS-new", IPAddr: "10.0.0.1", HostName: "host-a",
		Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	assert.Nil(t, m.registry.Get("DS-old"))
	assert.NotNil(t, m.registry.Get("DS-new"))
}

func TestRegisterDatanode_RemoteAddrOverridesIPAddr(t *testing.T) {
	m := newTestManager()
	id, err := m.RegisterDatanode(RegistrationInput{
		IPAddr: "claimed-but-wrong", RemoteAddr: "10.0.0.5", HostName: "host-a",
		Ports: Ports{Xfer: 50010}, SoftwareVersion: "1.0",
	})
	require.NoError(t, err)

	d := m.registry.Get(id)
	require.NotNil(t, d)
	assert.Equal(t, "10.0.0.5", d.Snapshot().IPAddr)
}
