package fatvol

import (
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/name8dot3"
	"github.com/nilsrao/fatvol/timeutil"
)

// OpenPath resolves path to a directory entry and materializes a handle
// for it: a file's full cluster chain is walked eagerly so Read/Write
// never re-walk the FAT per call, while a directory's traversal is left
// to the directory engine. Returns a handle ID for use with the other
// per-handle operations, per spec.md §4.H.
func (e *Engine) OpenPath(path string) (int, error) {
	entry, parentCluster, name11, err := e.walk(path)
	if err != nil {
		return 0, err
	}

	h := &handle{parentCluster: parentCluster, name11: name11, meta: entry}
	if entry.IsDirectory() {
		h.kind = KindDirectory
	} else {
		h.kind = KindFile
		chain, err := e.table.Chain(entry.Cluster())
		if err != nil {
			return 0, err
		}
		h.chain = chain
	}

	return e.handles.alloc(h)
}

// CloseHandle flushes a file handle's accrued size/timestamp changes back
// to its directory entry, then releases the slot. Closing a directory
// handle is just a release, since directories carry no handle-local state
// to flush.
func (e *Engine) CloseHandle(id int) error {
	h, err := e.handles.get(id)
	if err != nil {
		return err
	}
	if h.kind == KindFile {
		if err := e.dir.UpdateEntry(h.parentCluster, h.name11, h.meta); err != nil {
			return err
		}
	}
	return e.handles.release(id)
}

// FileStat is the metadata snapshot returned by Stat.
type FileStat struct {
	Name             string
	IsDir            bool
	Size             uint32
	Attr             uint8
	CreatedDate      uint16
	CreatedTime      uint16
	LastWriteDate    uint16
	LastWriteTime    uint16
	LastAccessedDate uint16
}

// Stat reports the metadata of an open handle.
func (e *Engine) Stat(id int) (FileStat, error) {
	h, err := e.handles.get(id)
	if err != nil {
		return FileStat{}, err
	}
	return FileStat{
		Name:             name8dot3.Decode(h.name11),
		IsDir:            h.kind == KindDirectory,
		Size:             h.meta.FileSize,
		Attr:             h.meta.Attr,
		CreatedDate:      h.meta.CreatedDate,
		CreatedTime:      h.meta.CreatedTime,
		LastWriteDate:    h.meta.LastWriteDate,
		LastWriteTime:    h.meta.LastWriteTime,
		LastAccessedDate: h.meta.LastAccessedDate,
	}, nil
}

// Read copies up to len(buf) bytes starting at offset into buf, bounded by
// the handle's recorded file size; reading at or beyond the end of the
// file returns (0, nil) rather than an error, per spec.md §4.H.
func (e *Engine) Read(id int, buf []byte, offset uint64) (int, error) {
	h, err := e.handles.get(id)
	if err != nil {
		return 0, err
	}
	if h.kind != KindFile {
		return 0, ferrors.New(ferrors.NotADirectory)
	}

	fileSize := uint64(h.meta.FileSize)
	if offset >= fileSize {
		return 0, nil
	}
	toRead := uint64(len(buf))
	if offset+toRead > fileSize {
		toRead = fileSize - offset
	}

	clusterBytes := uint64(e.cio.ClusterBytes())
	clusterIdx := offset / clusterBytes
	inOff := uint32(offset % clusterBytes)

	var read uint64
	for read < toRead {
		if clusterIdx >= uint64(len(h.chain)) {
			break
		}
		chunk := clusterBytes - uint64(inOff)
		if remaining := toRead - read; chunk > remaining {
			chunk = remaining
		}

		data, err := e.cio.ReadRange(h.chain[clusterIdx], inOff, uint32(chunk))
		if err != nil {
			return int(read), err
		}
		copy(buf[read:], data)

		read += chunk
		clusterIdx++
		inOff = 0
	}

	h.meta.LastAccessedDate = timeutil.NowDate()
	return int(read), nil
}

// Write copies buf into the file starting at offset, auto-extending the
// cluster chain (zero-filling each new cluster) whenever offset+len(buf)
// runs past the clusters already materialized. The handle's in-memory
// file size grows to cover the write; it is not persisted to the
// directory entry until CloseHandle, per spec.md §4.H.
func (e *Engine) Write(id int, buf []byte, offset uint64) (int, error) {
	h, err := e.handles.get(id)
	if err != nil {
		return 0, err
	}
	if h.kind != KindFile {
		return 0, ferrors.New(ferrors.NotADirectory)
	}
	if len(buf) == 0 {
		return 0, nil
	}

	clusterBytes := uint64(e.cio.ClusterBytes())
	clusterIdx := offset / clusterBytes
	inOff := uint32(offset % clusterBytes)

	var written uint64
	for written < uint64(len(buf)) {
		for clusterIdx >= uint64(len(h.chain)) {
			tail := h.chain[len(h.chain)-1]
			newCluster, err := e.table.Extend(tail)
			if err != nil {
				return int(written), err
			}
			if err := e.cio.ZeroFill(newCluster); err != nil {
				return int(written), err
			}
			h.chain = append(h.chain, newCluster)
		}

		chunk := clusterBytes - uint64(inOff)
		if remaining := uint64(len(buf)) - written; chunk > remaining {
			chunk = remaining
		}

		if err := e.cio.WriteRange(h.chain[clusterIdx], inOff, buf[written:written+chunk]); err != nil {
			return int(written), err
		}

		written += chunk
		clusterIdx++
		inOff = 0
	}

	if newSize := offset + written; newSize > uint64(h.meta.FileSize) {
		h.meta.FileSize = uint32(newSize)
	}
	now := timeutil.NowDate()
	nowTime := timeutil.NowTime()
	h.meta.LastWriteDate = now
	h.meta.LastWriteTime = nowTime
	h.meta.LastAccessedDate = now

	return int(written), nil
}
