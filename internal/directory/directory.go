// Package directory treats selected data blocks as arrays of fixed-size
// directory entries and implements lookup, insertion, and per-entry
// clearing on top of them.
package directory

import (
	"bytes"
	"encoding/binary"

	"github.com/noxer/bytewriter"

	"github.com/tinyfs/segfs/internal/datablock"
	"github.com/tinyfs/segfs/internal/inode"
	"github.com/tinyfs/segfs/internal/layout"

	ferrors "github.com/tinyfs/segfs/errors"
)

// Entry is a decoded (name, inode number) directory entry.
type Entry struct {
	Name  string
	Inode layout.InodeID
}

// IsFree reports whether this entry is an unused slot.
func (e Entry) IsFree() bool {
	return e.Inode == layout.NoInode
}

type rawEntry struct {
	Name  [layout.NameSize]byte
	Inode int32
}

func encodeName(name string) [layout.NameSize]byte {
	var b [layout.NameSize]byte
	n := copy(b[:], name)
	if n == layout.NameSize {
		// Name filled the whole field; force the mandatory null terminator,
		// lossy-truncating the name by one byte.
		b[layout.NameSize-1] = 0
	}
	return b
}

func decodeName(b [layout.NameSize]byte) string {
	end := bytes.IndexByte(b[:], 0)
	if end < 0 {
		end = len(b)
	}
	return string(b[:end])
}

// LoadEntries reads the full data block at blockID and decodes its
// EntriesPerDirBlock directory entries.
func LoadEntries(blocks *datablock.Store, blockID layout.BlockID) ([]Entry, ferrors.DriverError) {
	raw, err := blocks.ReadBlock(blockID)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, layout.EntriesPerDirBlock)
	reader := bytes.NewReader(raw)
	for i := 0; i < layout.EntriesPerDirBlock; i++ {
		var re rawEntry
		if readErr := binary.Read(reader, binary.LittleEndian, &re); readErr != nil {
			return nil, ferrors.ErrFileSystemCorrupted.WithMessage("decoding directory block").WrapError(readErr)
		}
		entries[i] = Entry{Name: decodeName(re.Name), Inode: layout.InodeID(re.Inode)}
	}
	return entries, nil
}

// SaveEntries zero-pads a fresh block buffer, encodes entries into its
// prefix, and writes the full block back. The entries never fill a whole
// block (EntriesPerDirBlock * DirentSize < BlockSize), so the buffer is
// preallocated at the full block size and written through bytewriter,
// leaving the untouched tail zero.
func SaveEntries(blocks *datablock.Store, blockID layout.BlockID, entries []Entry) ferrors.DriverError {
	buf := make([]byte, layout.BlockSize)
	w := bytewriter.New(buf)
	for _, e := range entries {
		re := rawEntry{Name: encodeName(e.Name), Inode: int32(e.Inode)}
		_ = binary.Write(w, binary.LittleEndian, re)
	}
	return blocks.WriteBlock(blockID, buf)
}

// NewEmptyEntries returns a full block's worth of free directory entries.
func NewEmptyEntries() []Entry {
	entries := make([]Entry, layout.EntriesPerDirBlock)
	for i := range entries {
		entries[i] = Entry{Inode: layout.NoInode}
	}
	return entries
}

// Find looks up name among dir's direct blocks. It returns layout.NoInode if
// the name isn't present, and rejects non-directory inodes.
func Find(blocks *datablock.Store, dir inode.Record, name string) (layout.InodeID, ferrors.DriverError) {
	if dir.Type != inode.TypeDirectory {
		return layout.NoInode, ferrors.ErrNotADirectory
	}

	for i := int32(0); i < dir.NumDirect; i++ {
		entries, err := LoadEntries(blocks, layout.BlockID(dir.Direct[i]))
		if err != nil {
			return layout.NoInode, err
		}
		for _, e := range entries {
			if !e.IsFree() && e.Name == name {
				return e.Inode, nil
			}
		}
	}
	return layout.NoInode, nil
}

// AddEntry links childInode into dirRecord under name. dirRecord is
// mutated in place; the caller is responsible for persisting dirRecord via
// the inode table after AddEntry returns.
func AddEntry(
	blocks *datablock.Store,
	dirRecord *inode.Record,
	name string,
	childInode layout.InodeID,
) ferrors.DriverError {
	if dirRecord.Type != inode.TypeDirectory {
		return ferrors.ErrNotADirectory
	}

	existing, err := Find(blocks, *dirRecord, name)
	if err != nil {
		return err
	}
	if existing != layout.NoInode {
		return ferrors.ErrExists
	}

	// Look for a free slot in an existing direct block first.
	for i := int32(0); i < dirRecord.NumDirect; i++ {
		blockID := layout.BlockID(dirRecord.Direct[i])
		entries, loadErr := LoadEntries(blocks, blockID)
		if loadErr != nil {
			return loadErr
		}

		for slot := range entries {
			if entries[slot].IsFree() {
				entries[slot] = Entry{Name: name, Inode: childInode}
				return SaveEntries(blocks, blockID, entries)
			}
		}
	}

	// No free slot in any existing block. Allocate a new one, if the
	// directory's direct fan-out isn't exhausted.
	if dirRecord.NumDirect >= layout.DirectBlocks {
		return ferrors.ErrDirectoryFull
	}

	blockID, allocErr := blocks.Allocate()
	if allocErr != nil {
		return allocErr
	}

	entries := NewEmptyEntries()
	entries[0] = Entry{Name: name, Inode: childInode}
	if saveErr := SaveEntries(blocks, blockID, entries); saveErr != nil {
		return saveErr
	}

	dirRecord.Direct[dirRecord.NumDirect] = int32(blockID)
	dirRecord.NumDirect++
	dirRecord.Size += layout.BlockSize
	return nil
}

// ClearEntry scans dir's direct blocks for the first live entry pointing at
// target and frees that slot (sets its inode number to NoInode, clears its
// name). It is a no-op, returning false, if target isn't found.
func ClearEntry(blocks *datablock.Store, dir inode.Record, target layout.InodeID) (bool, ferrors.DriverError) {
	for i := int32(0); i < dir.NumDirect; i++ {
		blockID := layout.BlockID(dir.Direct[i])
		entries, err := LoadEntries(blocks, blockID)
		if err != nil {
			return false, err
		}

		for slot := range entries {
			if !entries[slot].IsFree() && entries[slot].Inode == target {
				entries[slot] = Entry{Inode: layout.NoInode}
				if saveErr := SaveEntries(blocks, blockID, entries); saveErr != nil {
					return false, saveErr
				}
				return true, nil
			}
		}
	}
	return false, nil
}
