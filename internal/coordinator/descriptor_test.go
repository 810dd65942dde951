package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor_LivenessAndStaleness(t *testing.T) {
	d := NewDescriptor("DS-1", "10.0.0.1", "host1", "", Ports{Xfer: 50010}, "1.0")

	d.SetAlive(1000)
	assert.True(t, d.IsAlive)
	assert.False(t, d.IsDead(1500, 10000))
	assert.True(t, d.IsDead(20000, 10000))

	assert.False(t, d.IsStale(1500, 1000))
	assert.True(t, d.IsStale(3000, 1000))

	d.ForceDead()
	assert.False(t, d.IsAlive)
	assert.Equal(t, int64(0), d.LastUpdate)
}

func TestDescriptor_Queues(t *testing.T) {
	d := NewDescriptor("DS-1", "10.0.0.1", "host1", "", Ports{Xfer: 50010}, "1.0")

	d.EnqueueReplica("b1", []string{"DS-2"})
	d.EnqueueReplica("b2", []string{"DS-3"})
	got := d.DrainReplicas(1)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].block)
	got = d.DrainReplicas(10)
	require.Len(t, got, 1)
	assert.Equal(t, "b2", got[0].block)
	assert.Empty(t, d.DrainReplicas(10))

	d.EnqueueInvalidate([]string{"a", "b", "c"}, 2)
	assert.Len(t, d.invalidateBlocks, 2)

	d.EnqueueCache([]string{"x"})
	d.EnqueueUncache([]string{"y"})
	assert.Equal(t, []string{"x"}, d.DrainCache())
	assert.Equal(t, []string{"y"}, d.DrainUncache())
	assert.Empty(t, d.DrainCache())

	d.SetBandwidth(42)
	assert.Equal(t, int64(42), d.TakeBandwidth())
	assert.Equal(t, int64(0), d.TakeBandwidth())
}

func TestDescriptor_VersionCountedOnce(t *testing.T) {
	d := NewDescriptor("DS-1", "10.0.0.1", "host1", "", Ports{Xfer: 50010}, "1.0")
	assert.True(t, d.markVersionCounted())
	assert.False(t, d.markVersionCounted())
	assert.True(t, d.unmarkVersionCounted())
	assert.False(t, d.unmarkVersionCounted())
}
