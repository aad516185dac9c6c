// Package fat implements the File Allocation Table as an on-disk
// singly-linked list of data clusters, per spec.md §4.E: reading entries,
// allocating with rotating first-fit, freeing, extending chains, and
// walking them.
package fat

import (
	"github.com/boljen/go-bitmap"
	multierror "github.com/hashicorp/go-multierror"

	"github.com/nilsrao/fatvol/blockio"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/geometry"
)

// Entry classifications, per spec.md §3.
const (
	Free uint32 = 0x00000000
	Bad  uint32 = 0x0FFFFFF7
	// EndMin is the lowest value classified as an end-of-chain marker;
	// any value >= this is END.
	EndMin uint32 = 0x0FFFFFF8
	// End is the canonical value written to terminate a chain.
	End uint32 = 0x0FFFFFFF

	entryMask uint32 = 0x0FFFFFFF
)

// Kind is the result of classifying a raw 32-bit FAT entry.
type Kind int

const (
	KindFree Kind = iota
	KindBad
	KindEnd
	KindNext
)

// Classify sorts a masked 28-bit FAT entry value into one of Free, Bad,
// End, or "points at another cluster".
func Classify(value uint32) (Kind, uint32) {
	switch {
	case value == Free:
		return KindFree, 0
	case value == Bad:
		return KindBad, 0
	case value >= EndMin:
		return KindEnd, 0
	default:
		return KindNext, value
	}
}

// Table is the FAT engine: it knows how to locate and mutate entries
// across every FAT copy, classify them, and allocate/free/extend/walk
// cluster chains. One Table is built per mounted volume.
type Table struct {
	dev *blockio.Device
	geo *geometry.Geometry

	// hint is the next cluster to examine for rotating first-fit
	// allocation. Cluster indices start at 2, per spec.md §9's resolved
	// open question.
	hint uint32

	// live mirrors cluster liveness (bit set == not FREE) so that once
	// the hint has wrapped once, subsequent allocations don't re-scan
	// clusters that are known to still be in use. It is an accelerator
	// only; read_fat/write_fat/classify remain authoritative and the
	// bitmap is rebuilt lazily from the FAT, never trusted blindly.
	live      bitmap.Bitmap
	liveBuilt bool
}

// NewTable constructs a FAT engine over an already-probed volume.
func NewTable(dev *blockio.Device, geo *geometry.Geometry) *Table {
	return &Table{dev: dev, geo: geo, hint: 2}
}

// entryLocation returns, for a given cluster, the FAT sector holding its
// entry (relative to the start of FAT copy 0) and the byte offset of the
// entry within that sector.
func (t *Table) entryLocation(cluster uint32) (sectorOffset uint64, entryByte uint32) {
	fatOffset := uint64(cluster) * 4
	sectorOffset = fatOffset / uint64(t.geo.BytesPerSector)
	entryByte = uint32(fatOffset % uint64(t.geo.BytesPerSector))
	return
}

// readEntryAt reads the raw (unmasked) 32-bit entry for `cluster` from the
// given FAT copy's base sector.
func (t *Table) readEntryAt(copyBaseSector uint64, cluster uint32) (uint32, error) {
	sectorOffset, entryByte := t.entryLocation(cluster)
	sector := copyBaseSector + sectorOffset

	// An entry never straddles a sector boundary in FAT32 (4-byte
	// entries, sector sizes are all >= 512 and multiples of 4), but
	// reading two sectors when it's near the boundary keeps the
	// implementation honest against unusual sector sizes without extra
	// branches.
	count := uint32(2)
	if entryByte+4 <= t.geo.BytesPerSector {
		count = 1
	}

	raw, err := t.dev.ReadAt(sector, 0, count, count*t.geo.BytesPerSector)
	if err != nil {
		return 0, err
	}
	return le32(raw[entryByte : entryByte+4]), nil
}

// ReadEntry reads a FAT entry from copy 0 and masks it to the low 28 bits,
// per spec.md §4.E.
func (t *Table) ReadEntry(cluster uint32) (uint32, error) {
	raw, err := t.readEntryAt(t.geo.FirstFATSector, cluster)
	if err != nil {
		return 0, err
	}
	return raw & entryMask, nil
}

// WriteEntry writes a 28-bit payload to every FAT copy, preserving each
// copy's top 4 reserved bits, per spec.md §4.E. If any copy fails, the
// caller must treat the FAT as possibly inconsistent; the returned error
// aggregates every copy that failed.
func (t *Table) WriteEntry(cluster uint32, value uint32) error {
	var failures *multierror.Error

	for i := uint32(0); i < t.geo.FATCount; i++ {
		copyBase := t.geo.FirstFATSector + uint64(i)*uint64(t.geo.FATSizeSectors)

		existing, err := t.readEntryAt(copyBase, cluster)
		if err != nil {
			failures = multierror.Append(failures, err)
			continue
		}

		payload := (existing &^ entryMask) | (value & entryMask)

		sectorOffset, entryByte := t.entryLocation(cluster)
		sector := copyBase + sectorOffset

		buf := make([]byte, 4)
		putLE32(buf, payload)
		if err := t.dev.WriteAt(sector, entryByte, buf); err != nil {
			failures = multierror.Append(failures, err)
			continue
		}
	}

	if failures != nil && failures.Len() > 0 {
		return ferrors.MirrorFailure(cluster, failures)
	}
	t.setLive(cluster, value != Free)
	return nil
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// ---------------------------------------------------------------------
// Allocation bitmap accelerator (spec.md §4.K of SPEC_FULL.md).

func (t *Table) ensureLiveBuilt() error {
	if t.liveBuilt {
		return nil
	}
	t.live = bitmap.New(int(t.geo.TotalClusters) + 2)
	for c := uint32(2); c < t.geo.TotalClusters+2; c++ {
		entry, err := t.ReadEntry(c)
		if err != nil {
			return err
		}
		t.live.Set(int(c), entry != Free)
	}
	t.liveBuilt = true
	return nil
}

func (t *Table) setLive(cluster uint32, inUse bool) {
	if !t.liveBuilt {
		return
	}
	if int(cluster) >= t.live.Len() {
		return
	}
	t.live.Set(int(cluster), inUse)
}

// ---------------------------------------------------------------------

// Allocate finds a free cluster with a rotating first-fit scan: it scans
// [hint, totalClusters+2), then wraps to [2, hint). The first FREE cluster
// found is written as End and returned; the hint advances to cluster+1
// (wrapping to 2). It returns ferrors.VolumeFull if the volume is full
// after one full wrap of the scan, per spec.md §4.E/§7.
func (t *Table) Allocate() (uint32, error) {
	if err := t.ensureLiveBuilt(); err != nil {
		return 0, err
	}

	limit := t.geo.TotalClusters + 2
	candidate, found, err := t.scanFrom(t.hint, limit)
	if err != nil {
		return 0, err
	}
	if !found {
		candidate, found, err = t.scanFrom(2, t.hint)
		if err != nil {
			return 0, err
		}
	}
	if !found {
		return 0, ferrors.New(ferrors.VolumeFull)
	}

	if err := t.WriteEntry(candidate, End); err != nil {
		return 0, err
	}
	t.hint = candidate + 1
	if t.hint >= limit {
		t.hint = 2
	}
	return candidate, nil
}

// scanFrom looks for the first cluster in [from, to) that is FREE,
// consulting the liveness bitmap to skip known-occupied clusters without
// hitting the FAT, and falling back to ReadEntry only to confirm a
// candidate the bitmap claims is free (the bitmap could be stale if this
// Table instance didn't perform the mutation, e.g. a fresh volume it just
// opened — ensureLiveBuilt already primed it from the FAT, so this is
// belt-and-suspenders).
func (t *Table) scanFrom(from, to uint32) (uint32, bool, error) {
	for c := from; c < to; c++ {
		if t.live.Get(int(c)) {
			continue
		}
		entry, err := t.ReadEntry(c)
		if err != nil {
			return 0, false, err
		}
		if entry == Free {
			return c, true, nil
		}
		t.setLive(c, true)
	}
	return 0, false, nil
}

// Free marks a cluster FREE. Freeing an already-free cluster is a no-op.
func (t *Table) Free(cluster uint32) error {
	entry, err := t.ReadEntry(cluster)
	if err != nil {
		return err
	}
	if entry == Free {
		return nil
	}
	return t.WriteEntry(cluster, Free)
}

// Extend allocates a new cluster, links tailCluster to it, and marks the
// new cluster End, per spec.md §4.E. FAT writes happen before any
// directory-entry write that will reference the new cluster, per spec.md
// §5's crash-ordering rule: a crash here leaks a cluster rather than
// producing a dangling directory entry.
func (t *Table) Extend(tailCluster uint32) (uint32, error) {
	newCluster, err := t.Allocate()
	if err != nil {
		return 0, err
	}
	if err := t.WriteEntry(tailCluster, newCluster); err != nil {
		return 0, err
	}
	return newCluster, nil
}

// Chain follows NEXT links from start until End, returning the ordered
// list of clusters visited (including start). A Bad cluster or a cycle
// (a cluster repeating within the same walk) aborts with ferrors.BadVolume.
func (t *Table) Chain(start uint32) ([]uint32, error) {
	seen := map[uint32]bool{}
	var chain []uint32

	cur := start
	for {
		if seen[cur] {
			return chain, ferrors.BadVolume.WithMessagef(
				"cluster chain cycle detected at cluster %d", cur)
		}
		seen[cur] = true
		chain = append(chain, cur)

		entry, err := t.ReadEntry(cur)
		if err != nil {
			return chain, err
		}

		kind, next := Classify(entry)
		switch kind {
		case KindEnd:
			return chain, nil
		case KindBad:
			return chain, ferrors.BadVolume.WithMessagef(
				"chain from %d hit a BAD cluster at %d", start, cur)
		case KindFree:
			return chain, ferrors.BadVolume.WithMessagef(
				"chain from %d hit an unexpectedly free cluster at %d", start, cur)
		default:
			cur = next
		}
	}
}
