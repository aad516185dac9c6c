package fatvol

import (
	"encoding/binary"
	"os"

	"github.com/nilsrao/fatvol/blockio"
	"github.com/nilsrao/fatvol/fat"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/volpreset"
)

// fatSizeSectors computes the number of sectors one FAT copy needs to
// cover totalSectors-reservedSectors data+FAT sectors at the given
// cluster size, using the same fixed-point approximation Microsoft's
// FAT32 filesystem specification (fatgen103) derives for mkfs-style
// tools: it avoids the circularity of "FAT size depends on cluster
// count, which depends on FAT size" by folding the FAT's own footprint
// into the divisor.
func fatSizeSectors(totalSectors uint64, reservedSectors, sectorsPerCluster, fatCount uint32) uint32 {
	tmp1 := totalSectors - uint64(reservedSectors)
	tmp2 := uint64(256*sectorsPerCluster+fatCount) / 2
	return uint32((tmp1 + tmp2 - 1) / tmp2)
}

// Format writes a fresh FAT32 volume to imagePath: a BPB (plus backup) at
// the front, fatCount identical FAT copies with cluster 2 (the root
// directory) pre-allocated as a one-cluster chain, and a zero-filled root
// directory cluster. imagePath is created or truncated to exactly hold
// preset's geometry.
func Format(imagePath string, preset volpreset.Preset) error {
	f, err := os.Create(imagePath)
	if err != nil {
		return ferrors.IOError.Wrap(err)
	}
	defer f.Close()

	if err := f.Truncate(preset.TotalSizeBytes()); err != nil {
		return ferrors.IOError.Wrap(err)
	}

	return FormatDevice(blockio.New(f, preset.BytesPerSector), preset)
}

// FormatDevice performs the same layout as Format, against an
// already-open, already-sized block device rather than a path. fstest
// uses this directly to build synthetic volumes entirely in memory.
func FormatDevice(dev *blockio.Device, preset volpreset.Preset) error {
	fatSize := fatSizeSectors(preset.TotalSectors, preset.ReservedSectors, preset.SectorsPerCluster, preset.FATCount)
	dataSectors := uint32(preset.TotalSectors) - preset.ReservedSectors - preset.FATCount*fatSize
	totalClusters := dataSectors / preset.SectorsPerCluster
	if totalClusters < 65525 {
		return ferrors.BadVolume.WithMessagef(
			"preset %q yields only %d clusters, too few for FAT32", preset.Slug, totalClusters)
	}

	bpb := buildBPB(preset, fatSize)

	if err := dev.Write(0, bpb); err != nil {
		return err
	}
	// Backup boot sector, per the BPB's BkBootSec field below.
	if err := dev.Write(6, bpb); err != nil {
		return err
	}

	if err := writeInitialFATs(dev, preset, fatSize); err != nil {
		return err
	}

	rootLBA := uint64(preset.ReservedSectors) + uint64(preset.FATCount)*uint64(fatSize)
	zeroCluster := make([]byte, preset.SectorsPerCluster*preset.BytesPerSector)
	return dev.Write(rootLBA, zeroCluster)
}

func buildBPB(preset volpreset.Preset, fatSize uint32) []byte {
	b := make([]byte, preset.BytesPerSector)

	b[0], b[1], b[2] = 0xEB, 0x00, 0x90
	copy(b[3:11], "FATVOL  ")
	binary.LittleEndian.PutUint16(b[11:13], uint16(preset.BytesPerSector))
	b[13] = byte(preset.SectorsPerCluster)
	binary.LittleEndian.PutUint16(b[14:16], uint16(preset.ReservedSectors))
	b[16] = byte(preset.FATCount)
	// RootEntryCount, TotalSectors16, FATSize16 all stay 0: FAT32 markers.
	b[21] = 0xF8 // media descriptor: fixed disk
	binary.LittleEndian.PutUint32(b[32:36], uint32(preset.TotalSectors))
	binary.LittleEndian.PutUint32(b[36:40], fatSize)
	binary.LittleEndian.PutUint32(b[44:48], 2) // root cluster
	binary.LittleEndian.PutUint16(b[48:50], 1) // FSInfo sector
	binary.LittleEndian.PutUint16(b[50:52], 6) // backup boot sector
	b[64] = 0x80                               // drive number
	b[66] = 0x29                                // boot signature
	copy(b[71:82], "NO NAME    ")
	copy(b[82:90], "FAT32   ")
	b[510], b[511] = 0x55, 0xAA

	return b
}

// writeInitialFATs writes every FAT copy's first three entries (the
// reserved media-descriptor entry, the reserved end-of-chain marker, and
// cluster 2's end-of-chain marker for the one-cluster root directory);
// every remaining entry is left FREE (the buffer is already zeroed).
func writeInitialFATs(dev *blockio.Device, preset volpreset.Preset, fatSize uint32) error {
	fatBytes := make([]byte, fatSize*preset.BytesPerSector)
	binary.LittleEndian.PutUint32(fatBytes[0:4], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fatBytes[4:8], fat.End)
	binary.LittleEndian.PutUint32(fatBytes[8:12], fat.End)

	for i := uint32(0); i < preset.FATCount; i++ {
		lba := uint64(preset.ReservedSectors) + uint64(i)*uint64(fatSize)
		if err := dev.Write(lba, fatBytes); err != nil {
			return err
		}
	}
	return nil
}
