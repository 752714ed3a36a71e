// Package datablock implements the 4 KiB data block store: allocation,
// reading, writing, and freeing of data blocks across an unbounded sequence
// of data segments. It is a structural mirror of the inode table (package
// inode), parameterized for 255 blocks of 4096 bytes per segment instead of
// fixed-size inode records.
package datablock

import (
	"github.com/tinyfs/segfs/internal/bitmap"
	"github.com/tinyfs/segfs/internal/layout"
	"github.com/tinyfs/segfs/internal/segment"

	ferrors "github.com/tinyfs/segfs/errors"
)

// Store allocates, reads, writes, and frees data blocks.
type Store struct {
	store *segment.Store
}

// NewStore returns a Store backed by data segments inside dir.
func NewStore(dir string) *Store {
	return &Store{store: segment.NewStore(dir, segment.Data)}
}

func decompose(id layout.BlockID) (segIndex, slot int) {
	return int(id) / layout.RecordsPerSegment, int(id) % layout.RecordsPerSegment
}

func blockOffset(slot int) int64 {
	return int64(layout.BitmapSize + slot*layout.BlockSize)
}

// Allocate finds the lowest free block id, marks it allocated, and returns
// it. The block's bytes are left whatever they were (usually zero, from
// segment creation); callers that need zeroed content should write it
// themselves. The search extends the data address space by creating new
// segments on demand.
func (s *Store) Allocate() (layout.BlockID, ferrors.DriverError) {
	for segIndex := 0; ; segIndex++ {
		f, _, err := s.store.OpenOrCreate(segIndex)
		if err != nil {
			return 0, err
		}

		bm, err := bitmap.ReadBitmap(f)
		if err != nil {
			f.Close()
			return 0, err
		}

		slot := bm.FindFreeBit(layout.RecordsPerSegment)
		if slot < 0 {
			f.Close()
			continue
		}

		bm.SetBit(slot)
		writeErr := bitmap.WriteBitmap(f, bm)
		f.Close()
		if writeErr != nil {
			return 0, writeErr
		}

		return layout.BlockID(segIndex*layout.RecordsPerSegment + slot), nil
	}
}

// ReadBlock reads the full layout.BlockSize-byte content of block id.
func (s *Store) ReadBlock(id layout.BlockID) ([]byte, ferrors.DriverError) {
	segIndex, slot := decompose(id)
	f, err := s.store.Open(segIndex)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, layout.BlockSize)
	if _, readErr := f.ReadAt(buf, blockOffset(slot)); readErr != nil {
		return nil, ferrors.ErrSegmentIO.WithMessage("reading data block").WrapError(readErr)
	}
	return buf, nil
}

// WriteBlock writes exactly layout.BlockSize bytes of data to block id. If
// data is shorter, the remainder of the block is zero-padded; data must not
// be longer than layout.BlockSize.
func (s *Store) WriteBlock(id layout.BlockID, data []byte) ferrors.DriverError {
	if len(data) > layout.BlockSize {
		return ferrors.ErrInvalidArgument.WithMessage("data block payload exceeds block size")
	}

	segIndex, slot := decompose(id)
	f, err := s.store.Open(segIndex)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, layout.BlockSize)
	copy(buf, data)
	if _, writeErr := f.WriteAt(buf, blockOffset(slot)); writeErr != nil {
		return ferrors.ErrSegmentIO.WithMessage("writing data block").WrapError(writeErr)
	}
	return nil
}

// FreeBlock clears the bitmap bit owning block id.
func (s *Store) FreeBlock(id layout.BlockID) ferrors.DriverError {
	segIndex, slot := decompose(id)
	f, err := s.store.Open(segIndex)
	if err != nil {
		return err
	}
	defer f.Close()

	bm, err := bitmap.ReadBitmap(f)
	if err != nil {
		return err
	}
	bm.ClearBit(slot)
	return bitmap.WriteBitmap(f, bm)
}

// IsAllocated reports whether block id's bitmap bit is currently set.
func (s *Store) IsAllocated(id layout.BlockID) (bool, ferrors.DriverError) {
	segIndex, slot := decompose(id)
	if !s.store.Exists(segIndex) {
		return false, nil
	}
	f, err := s.store.Open(segIndex)
	if err != nil {
		return false, err
	}
	defer f.Close()

	bm, err := bitmap.ReadBitmap(f)
	if err != nil {
		return false, err
	}
	return bm.IsSet(slot), nil
}

// Stat walks every data segment created so far and reports how many of its
// blocks are allocated.
func (s *Store) Stat() (total, used uint64, err ferrors.DriverError) {
	for segIndex := 0; s.store.Exists(segIndex); segIndex++ {
		f, openErr := s.store.Open(segIndex)
		if openErr != nil {
			return 0, 0, openErr
		}
		bm, readErr := bitmap.ReadBitmap(f)
		f.Close()
		if readErr != nil {
			return 0, 0, readErr
		}

		total += layout.RecordsPerSegment
		for i := 0; i < layout.RecordsPerSegment; i++ {
			if bm.IsSet(i) {
				used++
			}
		}
	}
	return total, used, nil
}
