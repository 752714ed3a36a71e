package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyfs/segfs/internal/layout"
)

func TestEnsureRootBootstrapsRootDirectory(t *testing.T) {
	table := NewTable(t.TempDir())
	require.Nil(t, table.EnsureRoot())

	rec, err := table.ReadInode(layout.RootInode)
	require.Nil(t, err)
	assert.Equal(t, TypeDirectory, rec.Type)
	assert.True(t, rec.IsAllocated())

	allocated, err := table.IsAllocated(layout.RootInode)
	require.Nil(t, err)
	assert.True(t, allocated)
}

func TestEnsureRootIsIdempotent(t *testing.T) {
	table := NewTable(t.TempDir())
	require.Nil(t, table.EnsureRoot())
	require.Nil(t, table.EnsureRoot())

	rec, err := table.ReadInode(layout.RootInode)
	require.Nil(t, err)
	assert.Equal(t, TypeDirectory, rec.Type)
}

func TestAllocateInodeAssignsSequentialNumbers(t *testing.T) {
	table := NewTable(t.TempDir())
	require.Nil(t, table.EnsureRoot())

	id1, err := table.AllocateInode(TypeFile)
	require.Nil(t, err)
	id2, err := table.AllocateInode(TypeDirectory)
	require.Nil(t, err)

	assert.NotEqual(t, id1, id2)
	assert.NotEqual(t, layout.RootInode, id1)
	assert.NotEqual(t, layout.RootInode, id2)

	rec1, err := table.ReadInode(id1)
	require.Nil(t, err)
	assert.Equal(t, TypeFile, rec1.Type)

	rec2, err := table.ReadInode(id2)
	require.Nil(t, err)
	assert.Equal(t, TypeDirectory, rec2.Type)
}

func TestFreeInodeClearsAllocation(t *testing.T) {
	table := NewTable(t.TempDir())
	require.Nil(t, table.EnsureRoot())

	id, err := table.AllocateInode(TypeFile)
	require.Nil(t, err)

	require.Nil(t, table.FreeInode(id))

	allocated, err := table.IsAllocated(id)
	require.Nil(t, err)
	assert.False(t, allocated)
}

func TestAllocateInodeReusesFreedSlot(t *testing.T) {
	table := NewTable(t.TempDir())
	require.Nil(t, table.EnsureRoot())

	id, err := table.AllocateInode(TypeFile)
	require.Nil(t, err)
	require.Nil(t, table.FreeInode(id))

	id2, err := table.AllocateInode(TypeDirectory)
	require.Nil(t, err)
	assert.Equal(t, id, id2)
}

func TestAllocateInodeSpansMultipleSegments(t *testing.T) {
	table := NewTable(t.TempDir())
	require.Nil(t, table.EnsureRoot())

	var last layout.InodeID
	for i := 0; i < layout.RecordsPerSegment+5; i++ {
		id, err := table.AllocateInode(TypeFile)
		require.Nil(t, err)
		last = id
	}
	assert.GreaterOrEqual(t, int(last), layout.RecordsPerSegment)

	total, used, err := table.Stat()
	require.Nil(t, err)
	assert.GreaterOrEqual(t, total, uint64(2*layout.RecordsPerSegment))
	assert.Equal(t, uint64(layout.RecordsPerSegment+5+1), used) // +1 for root
}

func TestWriteInodeRoundTrip(t *testing.T) {
	table := NewTable(t.TempDir())
	require.Nil(t, table.EnsureRoot())

	id, err := table.AllocateInode(TypeFile)
	require.Nil(t, err)

	rec, err := table.ReadInode(id)
	require.Nil(t, err)
	rec.Size = 12345
	rec.NumDirect = 2
	rec.Direct[0] = 7
	rec.Direct[1] = 8

	require.Nil(t, table.WriteInode(id, rec))

	reread, err := table.ReadInode(id)
	require.Nil(t, err)
	assert.EqualValues(t, 12345, reread.Size)
	assert.EqualValues(t, 2, reread.NumDirect)
	assert.EqualValues(t, 7, reread.Direct[0])
	assert.EqualValues(t, 8, reread.Direct[1])
}
