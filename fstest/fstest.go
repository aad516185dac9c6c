// Package fstest builds synthetic FAT32 volumes entirely in memory for
// use in package tests, the way the teacher's testing package hands
// drivers an in-memory stream via bytesextra instead of a real disk
// image.
package fstest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nilsrao/fatvol"
	"github.com/nilsrao/fatvol/blockio"
	"github.com/nilsrao/fatvol/internal/memblock"
	"github.com/nilsrao/fatvol/volpreset"
)

// NewImage allocates a zero-filled in-memory volume sized for preset and
// formats it, returning the formatted backing store so a test (or Open)
// can mount it.
func NewImage(t *testing.T, preset volpreset.Preset) *memblock.Backing {
	t.Helper()
	raw := make([]byte, preset.TotalSizeBytes())
	backing := memblock.NewBacking(raw)

	dev := blockio.New(backing, preset.BytesPerSector)
	require.NoError(t, fatvol.FormatDevice(dev, preset))

	return backing
}

// Open formats a fresh preset-sized volume and mounts it, returning a
// ready-to-use *fatvol.Engine. The caller is responsible for calling
// Close when done.
func Open(t *testing.T, preset volpreset.Preset) *fatvol.Engine {
	t.Helper()
	backing := NewImage(t, preset)

	engine, err := fatvol.OpenDevice(backing)
	require.NoError(t, err)
	return engine
}
