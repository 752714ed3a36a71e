package inode

import (
	"os"

	"github.com/tinyfs/segfs/internal/bitmap"
	"github.com/tinyfs/segfs/internal/layout"
	"github.com/tinyfs/segfs/internal/segment"

	ferrors "github.com/tinyfs/segfs/errors"
)

// Table allocates, reads, writes, and frees fixed-size inode records across
// an unbounded sequence of inode segments.
type Table struct {
	store *segment.Store
}

// NewTable returns a Table backed by inode segments inside dir.
func NewTable(dir string) *Table {
	return &Table{store: segment.NewStore(dir, segment.Inode)}
}

func decompose(id layout.InodeID) (segIndex, slot int) {
	return int(id) / layout.RecordsPerSegment, int(id) % layout.RecordsPerSegment
}

func recordOffset(slot int) int64 {
	return int64(layout.BitmapSize + slot*layout.RecordSize)
}

func readRecordAt(f *os.File, slot int) (Record, ferrors.DriverError) {
	buf := make([]byte, layout.RecordSize)
	if _, err := f.ReadAt(buf, recordOffset(slot)); err != nil {
		return Record{}, ferrors.ErrSegmentIO.WithMessage("reading inode record").WrapError(err)
	}
	return unmarshal(buf), nil
}

func writeRecordAt(f *os.File, slot int, r Record) ferrors.DriverError {
	if _, err := f.WriteAt(marshal(r), recordOffset(slot)); err != nil {
		return ferrors.ErrSegmentIO.WithMessage("writing inode record").WrapError(err)
	}
	return nil
}

// openOrCreateSegment opens the inode segment at index, creating it if
// necessary. Creating inode segment 0 for the first time also bootstraps the
// root directory inode at slot 0, per the segment store's contract.
func (t *Table) openOrCreateSegment(index int) (*os.File, ferrors.DriverError) {
	f, created, err := t.store.OpenOrCreate(index)
	if err != nil {
		return nil, err
	}
	if created && index == 0 {
		if err := bootstrapRoot(f); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// bootstrapRoot marks inode 0 allocated and writes an empty root directory
// record into it. Called exactly once, the first time inode segment 0 is
// created.
func bootstrapRoot(f *os.File) ferrors.DriverError {
	bm, err := bitmap.ReadBitmap(f)
	if err != nil {
		return err
	}
	bm.SetBit(0)
	if err := bitmap.WriteBitmap(f, bm); err != nil {
		return err
	}
	return writeRecordAt(f, 0, newRecord(TypeDirectory))
}

// AllocateInode finds the lowest free inode number, marks it allocated, and
// writes a freshly zeroed record of the given type into it. The search
// extends the inode address space by creating new segments on demand; it
// never fails to find room.
func (t *Table) AllocateInode(kind Type) (layout.InodeID, ferrors.DriverError) {
	for segIndex := 0; ; segIndex++ {
		f, err := t.openOrCreateSegment(segIndex)
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
		if err := bitmap.WriteBitmap(f, bm); err != nil {
			f.Close()
			return 0, err
		}

		if err := writeRecordAt(f, slot, newRecord(kind)); err != nil {
			f.Close()
			return 0, err
		}
		f.Close()

		return layout.InodeID(segIndex*layout.RecordsPerSegment + slot), nil
	}
}

// ReadInode reads the record for inode number id.
func (t *Table) ReadInode(id layout.InodeID) (Record, ferrors.DriverError) {
	segIndex, slot := decompose(id)
	f, err := t.store.Open(segIndex)
	if err != nil {
		return Record{}, err
	}
	defer f.Close()
	return readRecordAt(f, slot)
}

// WriteInode overwrites the record for inode number id in place.
func (t *Table) WriteInode(id layout.InodeID, r Record) ferrors.DriverError {
	segIndex, slot := decompose(id)
	f, err := t.store.Open(segIndex)
	if err != nil {
		return err
	}
	defer f.Close()
	return writeRecordAt(f, slot, r)
}

// FreeInode clears the bitmap bit for id. The record's bytes are left as
// they were; the bitmap is the sole source of truth for liveness.
func (t *Table) FreeInode(id layout.InodeID) ferrors.DriverError {
	segIndex, slot := decompose(id)
	f, err := t.store.Open(segIndex)
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

// IsAllocated reports whether id's bitmap bit is currently set.
func (t *Table) IsAllocated(id layout.InodeID) (bool, ferrors.DriverError) {
	segIndex, slot := decompose(id)
	if !t.store.Exists(segIndex) {
		return false, nil
	}
	f, err := t.store.Open(segIndex)
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

// Stat walks every inode segment created so far and reports how many of its
// records are allocated.
func (t *Table) Stat() (total, used uint64, err ferrors.DriverError) {
	for segIndex := 0; t.store.Exists(segIndex); segIndex++ {
		f, openErr := t.store.Open(segIndex)
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

// EnsureRoot guarantees the root directory inode exists, creating inode
// segment 0 (and bootstrapping inode 0) if this is the very first use of the
// filesystem directory.
func (t *Table) EnsureRoot() ferrors.DriverError {
	f, err := t.openOrCreateSegment(0)
	if err != nil {
		return err
	}
	if closeErr := f.Close(); closeErr != nil {
		return ferrors.ErrSegmentIO.WrapError(closeErr)
	}
	return nil
}
