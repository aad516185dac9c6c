// Package geometry parses the BIOS Parameter Block, either directly from
// sector 0 or indirectly via an MBR partition table, and derives the
// geometry figures every later layer needs for addressing, per spec.md
// §4.D.
package geometry

import (
	"encoding/binary"

	"github.com/nilsrao/fatvol/blockio"
	"github.com/nilsrao/fatvol/ferrors"
)

// Geometry is the immutable-after-initialization volume layout described
// in spec.md §3.
type Geometry struct {
	BytesPerSector    uint32
	SectorsPerCluster uint32
	ClusterBytes      uint32

	ReservedSectors uint32
	FATCount        uint32
	FATSizeSectors  uint32
	TotalSectors    uint64
	TotalClusters   uint32

	FirstFATSector  uint64
	FirstDataSector uint64
	RootCluster     uint32

	// BootLBA is 0 if the BPB sits at LBA 0, otherwise the partition's
	// starting LBA as found in the MBR.
	BootLBA uint64
}

// mbrPartitionType values the engine recognizes as FAT32.
const (
	mbrTypeFAT32LBA  = 0x0C
	mbrTypeFAT32CHS  = 0x0B
	mbrPartitionTable = 446
	mbrSignatureOff  = 510
)

// Probe reads sector 0 of dev, and if it doesn't look like a valid BPB,
// falls back to the MBR's first partition slot, then derives and returns
// the full Geometry.
func Probe(dev *blockio.Device) (*Geometry, error) {
	sector0 := make([]byte, 512)
	dev.SetBytesPerSector(512)
	if err := dev.Read(0, sector0); err != nil {
		return nil, err
	}

	if g, err := parseBPB(sector0, 0); err == nil {
		dev.SetBytesPerSector(g.BytesPerSector)
		return g, nil
	}

	bootLBA, ok := findMBRPartition(sector0)
	if !ok {
		return nil, ferrors.BadVolume.WithMessage(
			"sector 0 is not a valid BPB and no usable MBR partition was found")
	}

	partitionSector := make([]byte, 512)
	if err := dev.Read(bootLBA, partitionSector); err != nil {
		return nil, err
	}

	g, err := parseBPB(partitionSector, bootLBA)
	if err != nil {
		return nil, err
	}
	dev.SetBytesPerSector(g.BytesPerSector)
	return g, nil
}

// findMBRPartition looks at the first MBR partition slot (offset 446). If
// its type is 0x0B or 0x0C and its starting LBA is non-zero, that LBA is
// returned.
func findMBRPartition(sector []byte) (uint64, bool) {
	if len(sector) < 512 {
		return 0, false
	}
	if sector[mbrSignatureOff] != 0x55 || sector[mbrSignatureOff+1] != 0xAA {
		return 0, false
	}

	entry := sector[mbrPartitionTable : mbrPartitionTable+16]
	partitionType := entry[4]
	startLBA := binary.LittleEndian.Uint32(entry[8:12])

	if (partitionType == mbrTypeFAT32LBA || partitionType == mbrTypeFAT32CHS) && startLBA != 0 {
		return uint64(startLBA), true
	}
	return 0, false
}

func isValidBytesPerSector(v uint16) bool {
	switch v {
	case 512, 1024, 2048, 4096:
		return true
	}
	return false
}

func isValidSectorsPerCluster(v uint8) bool {
	if v == 0 {
		return false
	}
	// Power of two in [1, 128].
	return v <= 128 && (v&(v-1)) == 0
}

// parseBPB reads the BPB fields from a 512-byte sector buffer, applies the
// sanity checks from spec.md §4.D step 1, and on success (treating the
// volume as FAT32 per step 3) derives the rest of the geometry.
func parseBPB(sector []byte, bootLBA uint64) (*Geometry, error) {
	if len(sector) < 90 {
		return nil, ferrors.BadVolume.WithMessage("sector too short to hold a BPB")
	}

	bytesPerSector := binary.LittleEndian.Uint16(sector[11:13])
	sectorsPerCluster := sector[13]
	reservedSectors := binary.LittleEndian.Uint16(sector[14:16])
	numFATs := sector[16]
	rootEntryCount := binary.LittleEndian.Uint16(sector[17:19])
	totalSectors16 := binary.LittleEndian.Uint16(sector[19:21])
	fatSize16 := binary.LittleEndian.Uint16(sector[22:24])
	totalSectors32 := binary.LittleEndian.Uint32(sector[32:36])

	if !isValidBytesPerSector(bytesPerSector) {
		return nil, ferrors.BadVolume.WithMessagef(
			"bad BytesPerSector %d, need 512/1024/2048/4096", bytesPerSector)
	}
	if !isValidSectorsPerCluster(sectorsPerCluster) {
		return nil, ferrors.BadVolume.WithMessagef(
			"bad SectorsPerCluster %d, need a power of two in [1,128]", sectorsPerCluster)
	}
	if reservedSectors < 1 {
		return nil, ferrors.BadVolume.WithMessage("ReservedSectors must be at least 1")
	}
	if numFATs < 1 || numFATs > 4 {
		return nil, ferrors.BadVolume.WithMessagef("bad NumFATs %d, need 1-4", numFATs)
	}

	// FAT32 extended BPB, starting at offset 36.
	fatSize32 := binary.LittleEndian.Uint32(sector[36:40])
	rootCluster := binary.LittleEndian.Uint32(sector[44:48])

	fatSizeSectors := uint32(fatSize16)
	if fatSizeSectors == 0 {
		fatSizeSectors = fatSize32
	}
	if fatSizeSectors == 0 {
		return nil, ferrors.BadVolume.WithMessage("FAT size is zero")
	}

	totalSectors := uint64(totalSectors16)
	if totalSectors == 0 {
		totalSectors = uint64(totalSectors32)
	}
	if totalSectors == 0 {
		return nil, ferrors.BadVolume.WithMessage("total sector count is zero")
	}

	rootDirSectors := uint32(0)
	if rootEntryCount != 0 {
		// Nonzero here means this is a FAT12/16 volume (FAT32 always
		// stores the root directory as an ordinary cluster chain).
		rootDirSectors = (uint32(rootEntryCount)*32 + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
	}

	totalFATSectors := uint32(numFATs) * fatSizeSectors
	dataSectors := uint32(totalSectors) - uint32(reservedSectors) - totalFATSectors - rootDirSectors
	clusterBytes := uint32(bytesPerSector) * uint32(sectorsPerCluster)
	totalClusters := dataSectors / uint32(sectorsPerCluster)

	if fatVersion(totalClusters) != 32 {
		return nil, ferrors.BadVolume.WithMessage(
			"volume has a FAT12/FAT16 cluster count; only FAT32 is supported")
	}
	if rootCluster < 2 {
		return nil, ferrors.BadVolume.WithMessage("FAT32 root cluster must be >= 2")
	}

	g := &Geometry{
		BytesPerSector:    uint32(bytesPerSector),
		SectorsPerCluster: uint32(sectorsPerCluster),
		ClusterBytes:      clusterBytes,
		ReservedSectors:   uint32(reservedSectors),
		FATCount:          uint32(numFATs),
		FATSizeSectors:    fatSizeSectors,
		TotalSectors:      totalSectors,
		TotalClusters:     totalClusters,
		FirstFATSector:    bootLBA + uint64(reservedSectors),
		FirstDataSector:   bootLBA + uint64(reservedSectors) + uint64(totalFATSectors) + uint64(rootDirSectors),
		RootCluster:       rootCluster,
		BootLBA:           bootLBA,
	}
	return g, nil
}

// fatVersion mirrors the teacher's DetermineFATVersion: cluster counts
// below 4085 are FAT12, below 65525 are FAT16, anything else is FAT32.
// These thresholds come directly from Microsoft's FAT specification.
func fatVersion(totalClusters uint32) int {
	if totalClusters < 4085 {
		return 12
	}
	if totalClusters < 65525 {
		return 16
	}
	return 32
}
