// Package layout holds the on-disk geometry constants and identifier types
// shared by every layer of the core: the inode table, the data block store,
// the directory layer, and the file block map. Keeping them in one leaf
// package avoids import cycles between those layers.
package layout

// InodeID is a global inode number: segment_index * RecordsPerSegment +
// slot_index.
type InodeID int32

// NoInode is the sentinel used for an empty directory entry slot.
const NoInode InodeID = -1

// BlockID is a global data block id: segment_index * RecordsPerSegment +
// slot_index. Block id 0 is a legitimate block (the first block of data
// segment 0); NoBlock is only ever used as a sentinel inside an inode's
// indirect-pointer fields, never inside an indirect block's slot array.
type BlockID int32

// NoBlock is the sentinel for "this inode has no such indirect block".
const NoBlock BlockID = -1

// ZeroSlot is the sentinel used inside an indirect block for "no block
// referenced by this slot". It coexists with NoBlock: block id 0 is a real,
// allocatable block, so the indirect-block slot sentinel must be distinct
// from a valid id. Block 0 is always the first block the filesystem
// allocates, which is either a directory content block or a file's first
// direct block, so 0 never appears as a live indirect-block slot.
const ZeroSlot BlockID = 0

const (
	// RecordSize is the fixed, on-disk size of one inode record, in bytes.
	// It equals BlockSize, a deliberate coincidence of the layout: a type
	// tag (4B) + size (8B) + direct count (4B) + 1017 direct ids (4068B) +
	// 3 indirect pointers (12B) = 4096B.
	RecordSize = 4096

	// BlockSize is the size of one data block and one indirect block.
	BlockSize = 4096

	// BitmapSize is the size of a segment's bitmap block.
	BitmapSize = 4096

	// SegmentSize is the fixed size of every segment container file.
	SegmentSize = 1 << 20

	// RecordsPerSegment is the number of fixed-stride records (inode
	// segments) or blocks (data segments) following the bitmap. Both kinds
	// of segment happen to have the same capacity because RecordSize ==
	// BlockSize.
	RecordsPerSegment = (SegmentSize - BitmapSize) / RecordSize

	// DirectBlocks is the number of direct block id slots in an inode.
	DirectBlocks = 1017

	// PointersPerIndirect is the number of block ids (or pointers to the
	// next indirection level) an indirect block holds.
	PointersPerIndirect = BlockSize / 4

	// NameSize is the fixed width of a directory entry's name field,
	// including the mandatory null terminator.
	NameSize = 256

	// DirentSize is the fixed on-disk size of one directory entry: a
	// NameSize-byte name plus a 4-byte inode number.
	DirentSize = NameSize + 4

	// EntriesPerDirBlock is the number of directory entries packed into one
	// data block used as a directory content block.
	EntriesPerDirBlock = BlockSize / DirentSize

	// RootInode is the inode number of the filesystem's root directory.
	RootInode = InodeID(0)

	// MaxPathComponents and MaxComponentLength bound a single path (see the
	// path splitter).
	MaxPathComponents  = 32
	MaxComponentLength = 255
)

// Capacity of each indirection level, expressed in logical blocks.
const (
	SingleIndirectCapacity = PointersPerIndirect
	DoubleIndirectCapacity = PointersPerIndirect * PointersPerIndirect
	TripleIndirectCapacity = PointersPerIndirect * PointersPerIndirect * PointersPerIndirect
)
