// Package segment implements the fixed-size container files ("segments")
// that back both the inode space and the data block space. A segment is
// always exactly Size bytes: a BitmapSize-byte allocation bitmap followed by
// a run of fixed-stride records or blocks.
package segment

import (
	"fmt"
	"os"
	"path/filepath"

	ferrors "github.com/tinyfs/segfs/errors"
)

// Size is the fixed size of every segment container file, in bytes.
const Size = 1 << 20 // 1 MiB

// BitmapSize is the size of the allocation bitmap occupying the first bytes
// of every segment.
const BitmapSize = 4096

// PayloadSize is the number of bytes available for records/blocks after the
// bitmap.
const PayloadSize = Size - BitmapSize

// Kind distinguishes the two parallel segment spaces.
type Kind int

const (
	Inode Kind = iota
	Data
)

func (k Kind) prefix() string {
	switch k {
	case Inode:
		return "inode_seg_"
	case Data:
		return "data_seg_"
	default:
		panic(fmt.Sprintf("segment: unknown kind %d", k))
	}
}

func (k Kind) String() string {
	switch k {
	case Inode:
		return "inode"
	case Data:
		return "data"
	default:
		return "unknown"
	}
}

// Store opens and creates segment container files of one kind inside a host
// directory.
type Store struct {
	dir  string
	kind Kind
}

// NewStore returns a Store that manages segments of the given kind inside
// dir. dir must already exist.
func NewStore(dir string, kind Kind) *Store {
	return &Store{dir: dir, kind: kind}
}

// Kind returns the segment kind this store manages.
func (s *Store) Kind() Kind {
	return s.kind
}

func (s *Store) Path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d", s.kind.prefix(), index))
}

// Exists reports whether the segment at index has already been created.
func (s *Store) Exists(index int) bool {
	_, err := os.Stat(s.Path(index))
	return err == nil
}

// Open opens an existing segment for reading and writing. It fails if the
// segment hasn't been created yet.
func (s *Store) Open(index int) (*os.File, ferrors.DriverError) {
	f, err := os.OpenFile(s.Path(index), os.O_RDWR, 0o644)
	if err != nil {
		return nil, ferrors.ErrSegmentIO.WrapError(err)
	}
	return f, nil
}

// Create creates a brand new, zero-filled segment at index and returns a
// handle to it positioned at offset 0. It is an error to call Create on a
// segment index that already exists.
func (s *Store) Create(index int) (*os.File, ferrors.DriverError) {
	f, err := os.OpenFile(s.Path(index), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, ferrors.ErrSegmentIO.WithMessage(
			fmt.Sprintf("create %s segment %d", s.kind, index)).WrapError(err)
	}

	if err := zeroFill(f); err != nil {
		f.Close()
		os.Remove(s.Path(index))
		return nil, ferrors.ErrSegmentIO.WithMessage("zero-initializing segment").WrapError(err)
	}

	if _, err := f.Seek(0, os.SEEK_SET); err != nil {
		f.Close()
		return nil, ferrors.ErrSegmentIO.WrapError(err)
	}
	return f, nil
}

// OpenOrCreate opens the segment at index if it exists, or creates it (zero
// filled) if it doesn't. The second return value reports whether the segment
// was freshly created.
func (s *Store) OpenOrCreate(index int) (*os.File, bool, ferrors.DriverError) {
	if s.Exists(index) {
		f, err := s.Open(index)
		return f, false, err
	}
	f, err := s.Create(index)
	return f, true, err
}

func zeroFill(f *os.File) error {
	zero := make([]byte, 32*1024)
	remaining := Size
	for remaining > 0 {
		n := len(zero)
		if remaining < n {
			n = remaining
		}
		written, err := f.Write(zero[:n])
		if err != nil {
			return err
		}
		remaining -= written
	}
	return f.Sync()
}
