// Package directory walks 32-byte directory entry streams across a
// cluster chain: search, insert, rename, and free-mark, per spec.md §4.G.
package directory

import (
	"github.com/nilsrao/fatvol/cluster"
	"github.com/nilsrao/fatvol/dirent"
	"github.com/nilsrao/fatvol/fat"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/timeutil"
)

// Engine walks and mutates directory entry streams. It holds no
// directory-specific state of its own; every operation is parameterized
// by the first cluster of the directory being operated on.
type Engine struct {
	clusterIO *cluster.IO
	table     *fat.Table
}

// New constructs a directory engine over an already-opened volume.
func New(clusterIO *cluster.IO, table *fat.Table) *Engine {
	return &Engine{clusterIO: clusterIO, table: table}
}

// entriesPerCluster returns how many 32-byte slots fit in one cluster.
func (e *Engine) entriesPerCluster(clusterBytes uint32) int {
	return int(clusterBytes) / dirent.Size
}

// Search walks the directory rooted at firstCluster, cluster by cluster
// and entry by entry within each cluster, looking for name11 (the raw
// 11-byte padded 8.3 name). Per spec.md §4.G: a first byte of 0x00 ends
// the stream (NotFound); 0xE5 or an LFN-fragment attribute mask is
// skipped; '.'/'..' entries are skipped; otherwise the 11 raw bytes are
// compared directly.
func (e *Engine) Search(firstCluster uint32, name11 [11]byte) (dirent.Entry, error) {
	cluster := firstCluster
	for {
		clusterBytes, err := e.clusterIO.ReadFull(cluster)
		if err != nil {
			return dirent.Entry{}, err
		}

		perCluster := e.entriesPerCluster(uint32(len(clusterBytes)))
		for i := 0; i < perCluster; i++ {
			raw := clusterBytes[i*dirent.Size : (i+1)*dirent.Size]
			ent := dirent.Decode(raw)

			if ent.IsEnd() {
				return dirent.Entry{}, ferrors.New(ferrors.NotFound)
			}
			if ent.IsFree() || ent.IsLFNFragment() {
				continue
			}
			if isDotEntry(ent.Name) {
				continue
			}
			if ent.Name == name11 {
				return ent, nil
			}
		}

		next, err := e.table.ReadEntry(cluster)
		if err != nil {
			return dirent.Entry{}, err
		}
		kind, nextCluster := fat.Classify(next)
		if kind != fat.KindNext {
			return dirent.Entry{}, ferrors.New(ferrors.NotFound)
		}
		cluster = nextCluster
	}
}

func isDotEntry(name [11]byte) bool {
	dot := [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotdot := [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	return name == dot || name == dotdot
}

// Insert places entry into the first free slot (first byte 0x00 or 0xE5)
// found by walking the chain rooted at firstCluster. If no such slot
// exists in the current chain, the chain is extended by one cluster
// (zero-filled) and the entry is placed in that new cluster's first slot.
// Before writing, the timestamps are stamped and a fresh cluster is
// allocated for the new entry's own payload (its first data cluster, for
// a new file or new subdirectory), split into entry.ClusterHigh/Low, per
// spec.md §4.G. The allocated cluster is returned so the caller (which
// may need to zero-fill it for a new, empty file, or seed it with "."/
// ".." for a new subdirectory) can finish initializing it.
func (e *Engine) Insert(firstCluster uint32, entry dirent.Entry) (uint32, error) {
	now := timeNow()
	entry.CreatedDate = now.date
	entry.CreatedTime = now.time
	entry.CreatedTenths = 0
	entry.LastAccessedDate = now.date
	entry.LastWriteDate = now.date
	entry.LastWriteTime = now.time

	dataCluster, err := e.table.Allocate()
	if err != nil {
		return 0, err
	}
	entry.SetCluster(dataCluster)

	if err := e.insertEntry(firstCluster, entry); err != nil {
		return 0, err
	}
	return dataCluster, nil
}

func (e *Engine) insertEntry(firstCluster uint32, entry dirent.Entry) error {
	cluster := firstCluster
	for {
		clusterBytes, err := e.clusterIO.ReadFull(cluster)
		if err != nil {
			return err
		}

		perCluster := e.entriesPerCluster(uint32(len(clusterBytes)))
		for i := 0; i < perCluster; i++ {
			raw := clusterBytes[i*dirent.Size : (i+1)*dirent.Size]
			ent := dirent.Decode(raw)
			if ent.IsFree() || ent.IsEnd() {
				copy(raw, entry.Encode())
				return e.clusterIO.WriteFull(cluster, clusterBytes)
			}
		}

		fatEntry, err := e.table.ReadEntry(cluster)
		if err != nil {
			return err
		}
		kind, nextCluster := fat.Classify(fatEntry)
		if kind == fat.KindNext {
			cluster = nextCluster
			continue
		}

		// End of chain with no free slot: extend it and zero-fill the
		// new cluster before placing the entry in its first slot.
		newCluster, err := e.table.Extend(cluster)
		if err != nil {
			return err
		}
		if err := e.clusterIO.ZeroFill(newCluster); err != nil {
			return err
		}

		newClusterBytes := make([]byte, e.clusterIO.ClusterBytes())
		copy(newClusterBytes[0:dirent.Size], entry.Encode())
		if err := e.clusterIO.WriteFull(newCluster, newClusterBytes); err != nil {
			return err
		}
		return nil
	}
}

// Rename searches for old11, and on a hit overwrites the 11-byte name in
// place (updating access/modification timestamps) and writes the cluster
// back.
func (e *Engine) Rename(firstCluster uint32, old11, new11 [11]byte) error {
	return e.mutateMatching(firstCluster, old11, func(ent *dirent.Entry) {
		now := timeNow()
		ent.LastAccessedDate = now.date
		ent.LastWriteDate = now.date
		ent.LastWriteTime = now.time
		ent.Name = new11
	})
}

// MarkFree searches for name11, and on a hit sets the first byte of its
// name to 0xE5, marking the slot reusable. It does not touch the FAT
// chain referenced by the entry; that is the caller's responsibility.
func (e *Engine) MarkFree(firstCluster uint32, name11 [11]byte) error {
	return e.mutateMatching(firstCluster, name11, func(ent *dirent.Entry) {
		ent.Name[0] = dirent.SentinelFree
	})
}

// UpdateEntry overwrites the full entry matching name11 with updated,
// keeping the name field as-is. It is how a closed file handle's accrued
// file_size and timestamp changes get flushed back to its directory
// entry, per spec.md §4.H's close semantics.
func (e *Engine) UpdateEntry(firstCluster uint32, name11 [11]byte, updated dirent.Entry) error {
	return e.mutateMatching(firstCluster, name11, func(ent *dirent.Entry) {
		name := ent.Name
		*ent = updated
		ent.Name = name
	})
}

// mutateMatching walks the chain looking for matchName11, applies mutate
// to the decoded entry, re-encodes it in place, and writes the owning
// cluster back. Returns ferrors.NotFound if the stream ends first.
func (e *Engine) mutateMatching(firstCluster uint32, matchName11 [11]byte, mutate func(*dirent.Entry)) error {
	cluster := firstCluster
	for {
		clusterBytes, err := e.clusterIO.ReadFull(cluster)
		if err != nil {
			return err
		}

		perCluster := e.entriesPerCluster(uint32(len(clusterBytes)))
		for i := 0; i < perCluster; i++ {
			raw := clusterBytes[i*dirent.Size : (i+1)*dirent.Size]
			ent := dirent.Decode(raw)
			if ent.IsEnd() {
				return ferrors.New(ferrors.NotFound)
			}
			if ent.Name == matchName11 {
				mutate(&ent)
				copy(raw, ent.Encode())
				return e.clusterIO.WriteFull(cluster, clusterBytes)
			}
		}

		fatEntry, err := e.table.ReadEntry(cluster)
		if err != nil {
			return err
		}
		kind, nextCluster := fat.Classify(fatEntry)
		if kind != fat.KindNext {
			return ferrors.New(ferrors.NotFound)
		}
		cluster = nextCluster
	}
}

type stampedTime struct {
	date uint16
	time uint16
}

// timeNow is a package-level indirection point so tests can pin the clock
// if ever needed; production code always calls through to timeutil.
var timeNow = func() stampedTime {
	return stampedTime{date: timeutil.NowDate(), time: timeutil.NowTime()}
}
