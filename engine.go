// Package fatvol is the public surface of the engine: it resolves paths,
// builds in-memory handles, and exposes stat/read/write/create/delete/
// rename, per spec.md §4.H. It is the one place that ties together
// geometry probing, the FAT engine, cluster I/O, and the directory
// engine.
//
// The engine is single-threaded and not reentrant, per spec.md §5: the
// geometry record, the allocation hint, and the handle table are all
// owned exclusively by one *Engine for the duration of any public call.
// Callers must serialize access themselves.
package fatvol

import (
	"io"
	"os"

	"github.com/nilsrao/fatvol/cluster"
	"github.com/nilsrao/fatvol/directory"
	"github.com/nilsrao/fatvol/fat"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/geometry"

	"github.com/nilsrao/fatvol/blockio"
)

// PathSeparator is the only path separator the core recognizes, per
// spec.md §6. Forward slashes are a harness concern, not a core one.
const PathSeparator = '\\'

// imageBacking is what Engine needs from the thing holding the image
// bytes: positioned reads and writes, plus a way to release it. A real
// *os.File satisfies this directly; tests can satisfy it with any
// io.ReaderAt/io.WriterAt, such as one built over bytesextra's in-memory
// seeker by fstest.
type imageBacking interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Engine is the FAT32 volume engine. Construct one with Open or
// OpenDevice.
type Engine struct {
	image imageBacking
	dev   *blockio.Device
	geo   *geometry.Geometry
	table *fat.Table
	cio   *cluster.IO
	dir   *directory.Engine

	handles handleTable
}

// Open reads sector 0 of the image at imagePath (parsing the BPB directly
// or via an MBR partition, per spec.md §4.D), derives the volume geometry,
// and returns a ready-to-use Engine. This is spec.md §6's "initialize"
// operation.
func Open(imagePath string) (*Engine, error) {
	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return nil, ferrors.IOError.Wrap(err)
	}
	return OpenDevice(f)
}

// OpenDevice probes and mounts a volume already open on backing, without
// going through the filesystem. This is what lets fstest build synthetic
// volumes entirely in memory.
func OpenDevice(backing imageBacking) (*Engine, error) {
	dev := blockio.New(backing, 512)
	geo, err := geometry.Probe(dev)
	if err != nil {
		backing.Close()
		return nil, err
	}

	table := fat.NewTable(dev, geo)
	cio := cluster.New(dev, geo)

	e := &Engine{
		image: backing,
		dev:   dev,
		geo:   geo,
		table: table,
		cio:   cio,
		dir:   directory.New(cio, table),
	}
	e.handles.init()
	return e, nil
}

// Close releases the engine's image backing. Any handles left open in the
// handle table are not implicitly flushed; callers should Close them
// first via CloseHandle.
func (e *Engine) Close() error {
	if err := e.image.Close(); err != nil {
		return ferrors.IOError.Wrap(err)
	}
	return nil
}

// Geometry exposes the probed volume geometry, mainly for diagnostics and
// the CLI/benchmark harness.
func (e *Engine) Geometry() geometry.Geometry { return *e.geo }
