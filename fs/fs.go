// Package fs implements the path resolver and tree operations on top of the
// inode table, data block store, directory layer, and file block map: it is
// the only package that knows how a path turns into an inode number and how
// a subtree gets walked or torn down.
package fs

import (
	"io"

	"github.com/hashicorp/go-multierror"

	"github.com/tinyfs/segfs/internal/blockmap"
	"github.com/tinyfs/segfs/internal/datablock"
	"github.com/tinyfs/segfs/internal/directory"
	"github.com/tinyfs/segfs/internal/inode"
	"github.com/tinyfs/segfs/internal/layout"

	ferrors "github.com/tinyfs/segfs/errors"
)

// Filesystem is a handle to a segfs image: a directory on the host
// filesystem holding one or more inode_seg_* and data_seg_* segment files.
type Filesystem struct {
	inodes *inode.Table
	blocks *datablock.Store
}

// Open returns a handle to the segfs image rooted at dir, creating the root
// directory inode if this is the first time dir has been used.
func Open(dir string) (*Filesystem, ferrors.DriverError) {
	fsys := &Filesystem{
		inodes: inode.NewTable(dir),
		blocks: datablock.NewStore(dir),
	}
	if err := fsys.inodes.EnsureRoot(); err != nil {
		return nil, err
	}
	return fsys, nil
}

// walkCreateDirs resolves a sequence of directory name components starting
// from the root, creating any missing intermediate directory along the way.
// It fails if any component names an existing non-directory object.
func (f *Filesystem) walkCreateDirs(components []string) (layout.InodeID, ferrors.DriverError) {
	current := layout.RootInode

	for _, name := range components {
		rec, err := f.inodes.ReadInode(current)
		if err != nil {
			return 0, err
		}

		child, err := directory.Find(f.blocks, rec, name)
		if err != nil {
			return 0, err
		}

		if child == layout.NoInode {
			newID, err := f.inodes.AllocateInode(inode.TypeDirectory)
			if err != nil {
				return 0, err
			}
			if err := directory.AddEntry(f.blocks, &rec, name, newID); err != nil {
				return 0, err
			}
			if err := f.inodes.WriteInode(current, rec); err != nil {
				return 0, err
			}
			current = newID
		} else {
			current = child
		}
	}
	return current, nil
}

// resolvePath walks a sequence of existing name components starting from
// the root, failing with ErrNotFound the moment one is missing.
func (f *Filesystem) resolvePath(components []string) (layout.InodeID, ferrors.DriverError) {
	current := layout.RootInode

	for _, name := range components {
		rec, err := f.inodes.ReadInode(current)
		if err != nil {
			return 0, err
		}
		child, err := directory.Find(f.blocks, rec, name)
		if err != nil {
			return 0, err
		}
		if child == layout.NoInode {
			return 0, ferrors.ErrNotFound
		}
		current = child
	}
	return current, nil
}

// Add streams source into a new file at fsPath, creating any missing
// intermediate directories. It fails if fsPath already exists or if any
// intermediate component names a non-directory object.
func (f *Filesystem) Add(fsPath string, source io.Reader) ferrors.DriverError {
	components, err := splitPath(fsPath)
	if err != nil {
		return err
	}
	if len(components) == 0 {
		return ferrors.ErrInvalidPath.WithMessage("cannot add the root directory")
	}

	parentID, err := f.walkCreateDirs(components[:len(components)-1])
	if err != nil {
		return err
	}
	name := components[len(components)-1]

	parentRec, err := f.inodes.ReadInode(parentID)
	if err != nil {
		return err
	}

	existing, err := directory.Find(f.blocks, parentRec, name)
	if err != nil {
		return err
	}
	if existing != layout.NoInode {
		return ferrors.ErrExists
	}

	fileID, err := f.inodes.AllocateInode(inode.TypeFile)
	if err != nil {
		return err
	}
	fileRec, err := f.inodes.ReadInode(fileID)
	if err != nil {
		return err
	}

	writer := blockmap.NewWriter(f.blocks, &fileRec)
	var size uint64
	buf := make([]byte, layout.BlockSize)
	for {
		n, readErr := io.ReadFull(source, buf)
		if n > 0 {
			if wErr := writer.Append(buf[:n]); wErr != nil {
				return wErr
			}
			size += uint64(n)
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return ferrors.ErrSegmentIO.WithMessage("reading local file").WrapError(readErr)
		}
	}

	fileRec.Size = size
	if err := f.inodes.WriteInode(fileID, fileRec); err != nil {
		return err
	}

	if err := directory.AddEntry(f.blocks, &parentRec, name, fileID); err != nil {
		return err
	}
	return f.inodes.WriteInode(parentID, parentRec)
}

// Remove deletes the file or subtree at fsPath. For a directory, every
// descendant is removed recursively before the directory itself is freed;
// a failure partway through a multi-child subtree doesn't stop the rest of
// the subtree from being cleaned up (see removeTree).
func (f *Filesystem) Remove(fsPath string) ferrors.DriverError {
	components, err := splitPath(fsPath)
	if err != nil {
		return err
	}
	if len(components) == 0 {
		return ferrors.ErrInvalidPath.WithMessage("cannot remove the root directory")
	}

	parentID, err := f.resolvePath(components[:len(components)-1])
	if err != nil {
		return err
	}
	name := components[len(components)-1]

	parentRec, err := f.inodes.ReadInode(parentID)
	if err != nil {
		return err
	}

	targetID, err := directory.Find(f.blocks, parentRec, name)
	if err != nil {
		return err
	}
	if targetID == layout.NoInode {
		return ferrors.ErrNotFound
	}

	if err := f.removeTree(targetID); err != nil {
		return err
	}

	_, err = directory.ClearEntry(f.blocks, parentRec, targetID)
	return err
}

// removeTree recursively frees a file or directory subtree, finally
// freeing the inode itself. Errors freeing individual children are
// aggregated so a single bad child doesn't prevent its siblings from being
// cleaned up, consistent with the no-rollback error policy.
func (f *Filesystem) removeTree(id layout.InodeID) ferrors.DriverError {
	rec, err := f.inodes.ReadInode(id)
	if err != nil {
		return err
	}

	switch rec.Type {
	case inode.TypeFile:
		if err := blockmap.Free(f.blocks, rec); err != nil {
			return err
		}

	case inode.TypeDirectory:
		var errs *multierror.Error
		for i := int32(0); i < rec.NumDirect; i++ {
			blockID := layout.BlockID(rec.Direct[i])
			entries, loadErr := directory.LoadEntries(f.blocks, blockID)
			if loadErr != nil {
				errs = multierror.Append(errs, loadErr)
				continue
			}
			for _, e := range entries {
				if e.IsFree() {
					continue
				}
				if childErr := f.removeTree(e.Inode); childErr != nil {
					errs = multierror.Append(errs, childErr)
				}
			}
			if freeErr := f.blocks.FreeBlock(blockID); freeErr != nil {
				errs = multierror.Append(errs, freeErr)
			}
		}
		if errs != nil {
			return ferrors.ErrSegmentIO.WithMessage("removing directory subtree").WrapError(errs)
		}
	}

	return f.inodes.FreeInode(id)
}

// Extract returns the full contents of the file at fsPath.
func (f *Filesystem) Extract(fsPath string) ([]byte, ferrors.DriverError) {
	components, err := splitPath(fsPath)
	if err != nil {
		return nil, err
	}

	id, err := f.resolvePath(components)
	if err != nil {
		return nil, err
	}

	rec, err := f.inodes.ReadInode(id)
	if err != nil {
		return nil, err
	}
	if rec.Type != inode.TypeFile {
		return nil, ferrors.ErrIsADirectory
	}
	return blockmap.ReadAll(f.blocks, rec)
}

// TreeEntry is one line of a recursive directory listing.
type TreeEntry struct {
	Depth int
	Name  string
	IsDir bool
}

// List performs a recursive depth-first traversal from the root, returning
// one TreeEntry per live directory entry encountered, in directory-block
// scan order. The root itself is not included; callers that want to print
// it do so themselves (it has no name of its own).
func (f *Filesystem) List() ([]TreeEntry, ferrors.DriverError) {
	var out []TreeEntry

	var walk func(id layout.InodeID, depth int) ferrors.DriverError
	walk = func(id layout.InodeID, depth int) ferrors.DriverError {
		rec, err := f.inodes.ReadInode(id)
		if err != nil {
			return err
		}

		for i := int32(0); i < rec.NumDirect; i++ {
			entries, err := directory.LoadEntries(f.blocks, layout.BlockID(rec.Direct[i]))
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.IsFree() {
					continue
				}
				childRec, err := f.inodes.ReadInode(e.Inode)
				if err != nil {
					return err
				}
				isDir := childRec.Type == inode.TypeDirectory
				out = append(out, TreeEntry{Depth: depth, Name: e.Name, IsDir: isDir})
				if isDir {
					if err := walk(e.Inode, depth+1); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}

	if err := walk(layout.RootInode, 1); err != nil {
		return nil, err
	}
	return out, nil
}

// Stat reports aggregate inode and data block usage across every segment
// created so far.
type Stat struct {
	TotalInodes, UsedInodes uint64
	TotalBlocks, UsedBlocks uint64
}

func (f *Filesystem) Stat() (Stat, ferrors.DriverError) {
	ti, ui, err := f.inodes.Stat()
	if err != nil {
		return Stat{}, err
	}
	tb, ub, err := f.blocks.Stat()
	if err != nil {
		return Stat{}, err
	}
	return Stat{TotalInodes: ti, UsedInodes: ui, TotalBlocks: tb, UsedBlocks: ub}, nil
}
