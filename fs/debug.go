package fs

import (
	"github.com/tinyfs/segfs/internal/blockmap"
	"github.com/tinyfs/segfs/internal/datablock"
	"github.com/tinyfs/segfs/internal/directory"
	"github.com/tinyfs/segfs/internal/inode"
	"github.com/tinyfs/segfs/internal/layout"

	ferrors "github.com/tinyfs/segfs/errors"
)

// DebugDirLevel is the live entry listing of one directory along a debugged
// path, labeled with the path prefix that resolves to it.
type DebugDirLevel struct {
	Label   string
	Entries []directory.Entry
}

// DebugFileInfo summarizes the block map of a file at the end of a debugged
// path.
type DebugFileInfo struct {
	InodeID layout.InodeID
	Size    uint64
	Counts  blockmap.Counts
}

// DebugReport is the structured result of a Debug call: the live entries of
// the root and of every directory along fsPath, plus block-map detail for a
// file at the end of the path, if any.
type DebugReport struct {
	Levels []DebugDirLevel
	File   *DebugFileInfo
}

func collectLiveEntries(blocks *datablock.Store, rec inode.Record) ([]directory.Entry, ferrors.DriverError) {
	var live []directory.Entry
	for i := int32(0); i < rec.NumDirect; i++ {
		entries, err := directory.LoadEntries(blocks, layout.BlockID(rec.Direct[i]))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsFree() {
				live = append(live, e)
			}
		}
	}
	return live, nil
}

// Debug walks fsPath from the root, reporting the live directory entries of
// the root and of every directory component along the way. If fsPath
// resolves to a file, its block map is summarized instead of listed as a
// directory level.
func (f *Filesystem) Debug(fsPath string) (DebugReport, ferrors.DriverError) {
	components, err := splitPath(fsPath)
	if err != nil {
		return DebugReport{}, err
	}

	var report DebugReport

	rootRec, err := f.inodes.ReadInode(layout.RootInode)
	if err != nil {
		return DebugReport{}, err
	}
	rootEntries, err := collectLiveEntries(f.blocks, rootRec)
	if err != nil {
		return DebugReport{}, err
	}
	report.Levels = append(report.Levels, DebugDirLevel{Label: "/", Entries: rootEntries})

	current := layout.RootInode
	prefix := ""
	for i, name := range components {
		rec, err := f.inodes.ReadInode(current)
		if err != nil {
			return DebugReport{}, err
		}
		child, err := directory.Find(f.blocks, rec, name)
		if err != nil {
			return DebugReport{}, err
		}
		if child == layout.NoInode {
			return DebugReport{}, ferrors.ErrNotFound
		}
		prefix += "/" + name

		childRec, err := f.inodes.ReadInode(child)
		if err != nil {
			return DebugReport{}, err
		}

		if childRec.Type == inode.TypeDirectory {
			entries, err := collectLiveEntries(f.blocks, childRec)
			if err != nil {
				return DebugReport{}, err
			}
			report.Levels = append(report.Levels, DebugDirLevel{Label: prefix, Entries: entries})
			current = child
			continue
		}

		if i != len(components)-1 {
			return DebugReport{}, ferrors.ErrNotADirectory
		}
		counts, err := blockmap.Count(f.blocks, childRec)
		if err != nil {
			return DebugReport{}, err
		}
		report.File = &DebugFileInfo{InodeID: child, Size: childRec.Size, Counts: counts}
	}

	return report, nil
}
