// Package bitmap implements the free-space bitmap allocator shared by the
// inode table and the data block store: each segment's first 4 KiB is a
// little-endian, LSB-first bit vector over that segment's records, where a
// set bit means "allocated".
package bitmap

import (
	"io"
	"os"

	bm "github.com/boljen/go-bitmap"
	ferrors "github.com/tinyfs/segfs/errors"
)

// Size is the fixed length of a bitmap block, in bytes (32768 bits).
const Size = 4096

// Bitmap is a segment's allocation bitmap. It is backed by a plain byte
// slice using boljen/go-bitmap's LSB-first convention, which matches the
// on-disk layout exactly: bit i lives at byte i/8, position i mod 8.
type Bitmap struct {
	bits bm.Bitmap
}

// ReadBitmap reads the bitmap block from the start of f into memory.
func ReadBitmap(f *os.File) (Bitmap, ferrors.DriverError) {
	buf := make([]byte, Size)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return Bitmap{}, ferrors.ErrSegmentIO.WithMessage("reading bitmap block").WrapError(err)
	}
	return Bitmap{bits: bm.Bitmap(buf)}, nil
}

// WriteBitmap persists the bitmap block back to the start of f.
func WriteBitmap(f *os.File, b Bitmap) ferrors.DriverError {
	if _, err := f.WriteAt(b.bits, 0); err != nil {
		return ferrors.ErrSegmentIO.WithMessage("writing bitmap block").WrapError(err)
	}
	return nil
}

// FindFreeBit returns the lowest-indexed clear bit in [0, nBits), or -1 if
// every bit in that range is set.
func (b Bitmap) FindFreeBit(nBits int) int {
	for i := 0; i < nBits; i++ {
		if !b.bits.Get(i) {
			return i
		}
	}
	return -1
}

// IsSet reports whether bit i is allocated.
func (b Bitmap) IsSet(i int) bool {
	return b.bits.Get(i)
}

// SetBit marks bit i allocated.
func (b Bitmap) SetBit(i int) {
	b.bits.Set(i, true)
}

// ClearBit marks bit i free.
func (b Bitmap) ClearBit(i int) {
	b.bits.Set(i, false)
}
