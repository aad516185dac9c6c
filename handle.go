package fatvol

import (
	"github.com/nilsrao/fatvol/dirent"
	"github.com/nilsrao/fatvol/ferrors"
)

// MaxHandles bounds the handle table, per spec.md §4.H.
const MaxHandles = 50

// HandleKind distinguishes an open file from an open directory.
type HandleKind int

const (
	KindFile HandleKind = iota
	KindDirectory
)

// handle is the in-memory state tracked for one open path. Its zero value
// is never valid; handles are only ever constructed by OpenPath.
type handle struct {
	kind HandleKind

	// parentCluster is the first cluster of the directory this entry's
	// slot lives in, as found by the walk at open time. CloseHandle flushes
	// the entry into this cluster rather than re-resolving the path, so a
	// later rename of that directory does not affect the flush.
	parentCluster uint32
	name11        [11]byte
	meta          dirent.Entry

	// chain is the full, materialized cluster chain for a file handle.
	// Directories don't carry one; their traversal is re-walked fresh by
	// the directory engine on every access.
	chain []uint32
}

// handleTable is a fixed-size slot table; the slot index is the handle ID
// returned to callers.
type handleTable struct {
	slots [MaxHandles]*handle
}

func (t *handleTable) init() {
	for i := range t.slots {
		t.slots[i] = nil
	}
}

func (t *handleTable) alloc(h *handle) (int, error) {
	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = h
			return i, nil
		}
	}
	return 0, ferrors.New(ferrors.TableFull)
}

func (t *handleTable) get(id int) (*handle, error) {
	if id < 0 || id >= len(t.slots) || t.slots[id] == nil {
		return nil, ferrors.NotFound.WithMessage("no such open handle")
	}
	return t.slots[id], nil
}

func (t *handleTable) release(id int) error {
	if _, err := t.get(id); err != nil {
		return err
	}
	t.slots[id] = nil
	return nil
}
