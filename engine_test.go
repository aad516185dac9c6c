package fatvol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsrao/fatvol"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/fstest"
	"github.com/nilsrao/fatvol/volpreset"
)

func smallPreset(t *testing.T) volpreset.Preset {
	t.Helper()
	preset, err := volpreset.Lookup("singlefat_98mb")
	require.NoError(t, err)
	return preset
}

func TestPutCreatesAFindableFile(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))

	assert.True(t, engine.Exists("ASD.TXT"))
}

func TestPutRejectsDuplicateNames(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))

	content2, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	err = engine.Put("", content2)
	assert.ErrorIs(t, err, ferrors.Exists)
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))

	id, err := engine.OpenPath("ASD.TXT")
	require.NoError(t, err)

	payload := []byte("hello, FAT32 world")
	n, err := engine.Write(id, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = engine.Read(id, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)

	require.NoError(t, engine.CloseHandle(id))

	stat, err := reopenAndStat(t, engine, "ASD.TXT")
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), stat.Size)
}

func TestWriteSpanningMultipleClusters(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("BIG.BIN", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))

	id, err := engine.OpenPath("BIG.BIN")
	require.NoError(t, err)

	geo := engine.Geometry()
	payload := make([]byte, geo.ClusterBytes*3+17)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	n, err := engine.Write(id, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = engine.Read(id, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
}

func TestReadBeyondFileSizeReturnsZero(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))

	id, err := engine.OpenPath("ASD.TXT")
	require.NoError(t, err)

	buf := make([]byte, 10)
	n, err := engine.Read(id, buf, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteFreesTheEntry(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))
	require.True(t, engine.Exists("ASD.TXT"))

	require.NoError(t, engine.Delete("ASD.TXT"))
	assert.False(t, engine.Exists("ASD.TXT"))
}

func TestRenameMetaChangesTheName(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("OLD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))

	require.NoError(t, engine.RenameMeta("OLD.TXT", "NEW.TXT"))
	assert.False(t, engine.Exists("OLD.TXT"))
	assert.True(t, engine.Exists("NEW.TXT"))
}

func TestSubdirectoryPathResolution(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	dir, err := engine.CreateObject("SUBDIR", true)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", dir))

	content, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("SUBDIR", content))

	assert.True(t, engine.Exists("SUBDIR\\ASD.TXT"))
}

func TestOpenPathOnAFileUnderAFileIsNotADirectory(t *testing.T) {
	engine := fstest.Open(t, smallPreset(t))
	defer engine.Close()

	content, err := engine.CreateObject("ASD.TXT", false)
	require.NoError(t, err)
	require.NoError(t, engine.Put("", content))

	_, err = engine.OpenPath("ASD.TXT\\NESTED.TXT")
	assert.ErrorIs(t, err, ferrors.NotADirectory)
}

func reopenAndStat(t *testing.T, engine *fatvol.Engine, path string) (fatvol.FileStat, error) {
	t.Helper()
	id, err := engine.OpenPath(path)
	require.NoError(t, err)
	defer engine.CloseHandle(id)
	return engine.Stat(id)
}

