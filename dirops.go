package fatvol

import (
	"errors"

	"github.com/nilsrao/fatvol/dirent"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/name8dot3"
)

// Content is an unattached directory entry built by CreateObject, ready to
// be placed into a directory with Put. It carries no cluster of its own
// yet; Put's call into the directory engine allocates that.
type Content struct {
	entry dirent.Entry
}

// CreateObject builds a new, unattached file or subdirectory entry named
// name (validated and encoded to the 8.3 form). The archive attribute is
// set for files, the directory attribute for subdirectories; every other
// field is left zero until Put stamps timestamps and allocates a data
// cluster.
func (e *Engine) CreateObject(name string, isDir bool) (*Content, error) {
	if name8dot3.Validate(name) != 0 {
		return nil, ferrors.New(ferrors.InvalidName)
	}

	var entry dirent.Entry
	entry.Name = name8dot3.Encode(name)
	if isDir {
		entry.Attr = dirent.AttrDirectory
	} else {
		entry.Attr = dirent.AttrArchive
	}
	return &Content{entry: entry}, nil
}

// Put inserts content into the directory at parentPath (the empty string
// means the volume root), rejecting a name collision with
// ferrors.Exists. The entry's first data cluster, freshly allocated by the
// directory engine, is zero-filled before Put returns so a directory's
// first entry reads back as end-of-stream and a new file reads back as
// all zeros.
func (e *Engine) Put(parentPath string, content *Content) error {
	parentCluster, err := e.resolveDir(parentPath)
	if err != nil {
		return err
	}

	if _, err := e.dir.Search(parentCluster, content.entry.Name); err == nil {
		return ferrors.New(ferrors.Exists)
	} else if !errors.Is(err, ferrors.NotFound) {
		return err
	}

	dataCluster, err := e.dir.Insert(parentCluster, content.entry)
	if err != nil {
		return err
	}
	return e.cio.ZeroFill(dataCluster)
}

// Delete frees every cluster in path's chain, then marks its slot in the
// parent directory reusable. Deleting a directory does not check whether
// it's empty; callers are expected to have already removed its contents.
func (e *Engine) Delete(path string) error {
	entry, parentCluster, name11, err := e.walk(path)
	if err != nil {
		return err
	}

	chain, err := e.table.Chain(entry.Cluster())
	if err != nil {
		return err
	}
	for _, c := range chain {
		if err := e.table.Free(c); err != nil {
			return err
		}
	}

	return e.dir.MarkFree(parentCluster, name11)
}

// RenameMeta changes the name of the entry at path to newName, carrying
// forward the parent cluster found by the walk rather than recomputing it
// from scratch, so a rename is always applied against the directory the
// entry actually lives in even if an ancestor directory has itself moved
// since path was last resolved elsewhere.
func (e *Engine) RenameMeta(path string, newName string) error {
	_, parentCluster, oldName11, err := e.walk(path)
	if err != nil {
		return err
	}
	if name8dot3.Validate(newName) != 0 {
		return ferrors.New(ferrors.InvalidName)
	}
	newName11 := name8dot3.Encode(newName)

	if _, err := e.dir.Search(parentCluster, newName11); err == nil {
		return ferrors.New(ferrors.Exists)
	} else if !errors.Is(err, ferrors.NotFound) {
		return err
	}

	return e.dir.Rename(parentCluster, oldName11, newName11)
}
