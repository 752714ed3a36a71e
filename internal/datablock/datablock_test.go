package datablock

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyfs/segfs/internal/layout"
)

func TestAllocateWriteReadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())

	id, err := store.Allocate()
	require.Nil(t, err)

	payload := bytes.Repeat([]byte{0xAB}, 100)
	require.Nil(t, store.WriteBlock(id, payload))

	raw, err := store.ReadBlock(id)
	require.Nil(t, err)
	require.Len(t, raw, layout.BlockSize)
	assert.Equal(t, payload, raw[:100])
	for _, b := range raw[100:] {
		assert.Zero(t, b)
	}
}

func TestWriteBlockRejectsOversizedPayload(t *testing.T) {
	store := NewStore(t.TempDir())
	id, err := store.Allocate()
	require.Nil(t, err)

	tooBig := make([]byte, layout.BlockSize+1)
	assert.NotNil(t, store.WriteBlock(id, tooBig))
}

func TestFreeBlockClearsAllocation(t *testing.T) {
	store := NewStore(t.TempDir())
	id, err := store.Allocate()
	require.Nil(t, err)

	require.Nil(t, store.FreeBlock(id))

	allocated, err := store.IsAllocated(id)
	require.Nil(t, err)
	assert.False(t, allocated)
}

func TestAllocateReusesFreedBlock(t *testing.T) {
	store := NewStore(t.TempDir())
	id, err := store.Allocate()
	require.Nil(t, err)
	require.Nil(t, store.FreeBlock(id))

	id2, err := store.Allocate()
	require.Nil(t, err)
	assert.Equal(t, id, id2)
}

func TestAllocateSpansMultipleSegments(t *testing.T) {
	store := NewStore(t.TempDir())

	var last layout.BlockID
	for i := 0; i < layout.RecordsPerSegment+3; i++ {
		id, err := store.Allocate()
		require.Nil(t, err)
		last = id
	}
	assert.GreaterOrEqual(t, int(last), layout.RecordsPerSegment)

	total, used, err := store.Stat()
	require.Nil(t, err)
	assert.GreaterOrEqual(t, total, uint64(2*layout.RecordsPerSegment))
	assert.Equal(t, uint64(layout.RecordsPerSegment+3), used)
}
