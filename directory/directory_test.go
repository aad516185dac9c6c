package directory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nilsrao/fatvol/cluster"
	"github.com/nilsrao/fatvol/dirent"
	"github.com/nilsrao/fatvol/directory"
	"github.com/nilsrao/fatvol/fat"
	"github.com/nilsrao/fatvol/geometry"
	"github.com/nilsrao/fatvol/internal/memblock"
	"github.com/nilsrao/fatvol/name8dot3"
)

func newEngine(t *testing.T) (*directory.Engine, *cluster.IO, *fat.Table, uint32) {
	t.Helper()
	geo := &geometry.Geometry{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ClusterBytes:      512,
		ReservedSectors:   1,
		FATCount:          1,
		FATSizeSectors:    1,
		TotalClusters:     100,
		FirstFATSector:    1,
		FirstDataSector:   3,
		RootCluster:       2,
	}
	dev, _ := memblock.New(t, 200*512, geo.BytesPerSector)
	table := fat.NewTable(dev, geo)
	cio := cluster.New(dev, geo)

	rootCluster, err := table.Allocate()
	require.NoError(t, err)
	require.NoError(t, cio.ZeroFill(rootCluster))

	return directory.New(cio, table), cio, table, rootCluster
}

func TestSearchNotFoundOnEmptyDirectory(t *testing.T) {
	eng, _, _, root := newEngine(t)

	_, err := eng.Search(root, name8dot3.Encode("MISSING.TXT"))
	assert.Error(t, err)
}

func TestInsertThenSearch(t *testing.T) {
	eng, _, _, root := newEngine(t)

	var entry dirent.Entry
	entry.Name = name8dot3.Encode("ASD.TXT")
	entry.Attr = dirent.AttrArchive

	dataCluster, err := eng.Insert(root, entry)
	require.NoError(t, err)
	assert.NotZero(t, dataCluster)

	found, err := eng.Search(root, name8dot3.Encode("ASD.TXT"))
	require.NoError(t, err)
	assert.Equal(t, dataCluster, found.Cluster())
	assert.Equal(t, dirent.AttrArchive, found.Attr)
}

func TestInsertExtendsDirectoryWhenFull(t *testing.T) {
	eng, _, _, root := newEngine(t)

	perCluster := 512 / dirent.Size
	for i := 0; i < perCluster+1; i++ {
		var entry dirent.Entry
		entry.Name = name8dot3.Encode(nameForIndex(i))
		_, err := eng.Insert(root, entry)
		require.NoError(t, err)
	}

	// The (perCluster+1)th entry only fits after the directory's chain was
	// extended by one cluster; confirm it's still found.
	found, err := eng.Search(root, name8dot3.Encode(nameForIndex(perCluster)))
	require.NoError(t, err)
	assert.False(t, found.IsFree())
}

func TestRename(t *testing.T) {
	eng, _, _, root := newEngine(t)

	var entry dirent.Entry
	entry.Name = name8dot3.Encode("OLD.TXT")
	_, err := eng.Insert(root, entry)
	require.NoError(t, err)

	require.NoError(t, eng.Rename(root, name8dot3.Encode("OLD.TXT"), name8dot3.Encode("NEW.TXT")))

	_, err = eng.Search(root, name8dot3.Encode("OLD.TXT"))
	assert.Error(t, err)

	found, err := eng.Search(root, name8dot3.Encode("NEW.TXT"))
	require.NoError(t, err)
	assert.Equal(t, name8dot3.Encode("NEW.TXT"), found.Name)
}

func TestMarkFree(t *testing.T) {
	eng, _, _, root := newEngine(t)

	var entry dirent.Entry
	entry.Name = name8dot3.Encode("GONE.TXT")
	_, err := eng.Insert(root, entry)
	require.NoError(t, err)

	require.NoError(t, eng.MarkFree(root, name8dot3.Encode("GONE.TXT")))

	_, err = eng.Search(root, name8dot3.Encode("GONE.TXT"))
	assert.Error(t, err)
}

func nameForIndex(i int) string {
	return "F" + string(rune('A'+i%26)) + string(rune('A'+(i/26)%26)) + ".BIN"
}
