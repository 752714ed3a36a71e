// Package inode implements the inode table: fixed-size inode records packed
// into inode segments, addressed through the bitmap allocator.
package inode

import (
	"bytes"
	"encoding/binary"

	"github.com/tinyfs/segfs/internal/layout"
)

// Type is the inode's type tag.
type Type int32

const (
	TypeFree      Type = 0
	TypeFile      Type = 1
	TypeDirectory Type = 2
)

// Record is the fixed-layout, on-disk inode record. Field order matches the
// wire format exactly and must not change without bumping the on-disk
// format: type tag, file size, direct block count, the direct block array,
// and the three indirect pointers.
type Record struct {
	Type           Type
	Size           uint64
	NumDirect      int32
	Direct         [layout.DirectBlocks]int32
	Indirect       int32
	DoubleIndirect int32
	TripleIndirect int32
}

// newRecord returns a zeroed record of the given type with every indirect
// pointer set to the "no block" sentinel, per the on-disk invariant that
// unused block-id fields always hold -1.
func newRecord(t Type) Record {
	return Record{
		Type:           t,
		Indirect:       int32(layout.NoBlock),
		DoubleIndirect: int32(layout.NoBlock),
		TripleIndirect: int32(layout.NoBlock),
	}
}

// IsAllocated reports whether this record's type tag is file or directory.
// FreeInode does not rewrite a freed record, so a freed slot keeps its old
// type tag and still reports true here; the bitmap decides liveness.
func (r Record) IsAllocated() bool {
	return r.Type == TypeFile || r.Type == TypeDirectory
}

// marshal encodes r into exactly layout.RecordSize bytes.
func marshal(r Record) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, layout.RecordSize))
	// binary.Write on a fixed-size struct of fixed-size fields can't fail.
	_ = binary.Write(buf, binary.LittleEndian, r)
	out := buf.Bytes()
	if len(out) != layout.RecordSize {
		panic("inode: encoded record size drifted from layout.RecordSize")
	}
	return out
}

// unmarshal decodes exactly layout.RecordSize bytes into a Record.
func unmarshal(data []byte) Record {
	var r Record
	reader := bytes.NewReader(data)
	// Same as above: a fixed-layout struct read from a correctly sized
	// buffer cannot fail.
	_ = binary.Read(reader, binary.LittleEndian, &r)
	return r
}
