// Package volpreset gives a small, named table of FAT32-formattable volume
// geometries, the way disks.go's DiskGeometry table names floppy and disk
// form factors: looking one up by slug avoids having to spell out sector
// size, cluster size, reserved sector count, and FAT copy count by hand
// every time a volume gets formatted or benchmarked.
package volpreset

import (
	_ "embed"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset is one row of the named geometry table: everything fatvol.Format
// needs to lay out a fresh FAT32 volume, plus a couple of descriptive
// fields for humans.
type Preset struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	BytesPerSector    uint32 `csv:"bytes_per_sector"`
	SectorsPerCluster uint32 `csv:"sectors_per_cluster"`
	ReservedSectors   uint32 `csv:"reserved_sectors"`
	FATCount          uint32 `csv:"fat_count"`
	TotalSectors      uint64 `csv:"total_sectors"`
	Notes             string `csv:"notes"`
}

// TotalSizeBytes gives the minimum image file size a formatted volume
// using this preset needs.
func (p *Preset) TotalSizeBytes() int64 {
	return int64(p.TotalSectors) * int64(p.BytesPerSector)
}

//go:embed presets.csv
var presetsRawCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// Lookup returns the preset registered under slug.
func Lookup(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined volume geometry exists with slug %q", slug)
	}
	return preset, nil
}

// Slugs returns every registered preset slug, for a CLI's help text.
func Slugs() []string {
	out := make([]string, 0, len(presets))
	for slug := range presets {
		out = append(out, slug)
	}
	return out
}
