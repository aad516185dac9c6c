// Package cluster converts (cluster, in-cluster offset, length) addressing
// into absolute LBA ranges and performs the reads/writes, per spec.md
// §4.F.
package cluster

import (
	"github.com/nilsrao/fatvol/blockio"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/geometry"
)

// IO is the cluster-level read/write layer sitting directly on top of
// blockio.Device.
type IO struct {
	dev *blockio.Device
	geo *geometry.Geometry
}

// New constructs a cluster I/O layer over an already-probed volume.
func New(dev *blockio.Device, geo *geometry.Geometry) *IO {
	return &IO{dev: dev, geo: geo}
}

// ClusterBytes returns the size of one cluster, in bytes.
func (io *IO) ClusterBytes() uint32 { return io.geo.ClusterBytes }

// LBA returns the first sector of the given cluster. Cluster indices
// start at 2.
func (io *IO) LBA(cluster uint32) uint64 {
	return io.geo.FirstDataSector + uint64(cluster-2)*uint64(io.geo.SectorsPerCluster)
}

// ReadFull reads an entire cluster's worth of bytes.
func (io *IO) ReadFull(cluster uint32) ([]byte, error) {
	return io.ReadRange(cluster, 0, io.geo.ClusterBytes)
}

// ReadRange reads length bytes starting inOff bytes into cluster. Per
// spec.md §4.F, inOff+length must not exceed the cluster size.
func (io *IO) ReadRange(cluster uint32, inOff uint32, length uint32) ([]byte, error) {
	if inOff+length > io.geo.ClusterBytes {
		return nil, ferrors.IOError.WithMessagef(
			"read range [%d, %d) exceeds cluster size %d", inOff, inOff+length, io.geo.ClusterBytes)
	}

	firstSector := inOff / io.geo.BytesPerSector
	lastSectorExclusive := (inOff + length + io.geo.BytesPerSector - 1) / io.geo.BytesPerSector
	sectorCount := lastSectorExclusive - firstSector

	window, err := io.dev.ReadAt(
		io.LBA(cluster)+uint64(firstSector),
		inOff-firstSector*io.geo.BytesPerSector,
		sectorCount,
		length)
	if err != nil {
		return nil, err
	}
	return window, nil
}

// WriteFull writes an entire cluster's worth of bytes.
func (io *IO) WriteFull(cluster uint32, data []byte) error {
	return io.WriteRange(cluster, 0, data)
}

// WriteRange writes data starting inOff bytes into cluster, using a
// positioned write of the exact byte window; no read-modify-write of the
// surrounding sector is needed since the block layer is given the
// absolute byte offset.
func (io *IO) WriteRange(cluster uint32, inOff uint32, data []byte) error {
	if inOff+uint32(len(data)) > io.geo.ClusterBytes {
		return ferrors.IOError.WithMessagef(
			"write range [%d, %d) exceeds cluster size %d", inOff, inOff+uint32(len(data)), io.geo.ClusterBytes)
	}
	return io.dev.WriteAt(io.LBA(cluster), inOff, data)
}

// ZeroFill writes a cluster's worth of zero bytes. New clusters added to a
// chain must be zero-filled before being exposed to readers, so that a
// reader at an offset beyond file_size but within the allocated chain
// sees zeros rather than stale disk content.
func (io *IO) ZeroFill(cluster uint32) error {
	return io.WriteFull(cluster, make([]byte, io.geo.ClusterBytes))
}
