package fatvol

import (
	"strings"

	"github.com/nilsrao/fatvol/dirent"
	"github.com/nilsrao/fatvol/ferrors"
	"github.com/nilsrao/fatvol/name8dot3"
)

// splitPath breaks a backslash-delimited path into its segments, dropping
// empty ones so a leading or trailing separator doesn't change the
// result, per spec.md §6.
func splitPath(path string) []string {
	raw := strings.Split(path, string(PathSeparator))
	segments := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

// walk resolves path one segment at a time from the root directory,
// requiring every non-final segment to be a directory. It returns the
// final segment's entry, the cluster of the directory that holds its
// slot, and the raw 11-byte name used to find it there.
func (e *Engine) walk(path string) (entry dirent.Entry, parentCluster uint32, name11 [11]byte, err error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return dirent.Entry{}, 0, [11]byte{}, ferrors.New(ferrors.NotFound)
	}

	cluster := e.geo.RootCluster
	for i, seg := range segments {
		if name8dot3.Validate(seg) != 0 {
			return dirent.Entry{}, 0, [11]byte{}, ferrors.New(ferrors.InvalidName)
		}
		seg11 := name8dot3.Encode(seg)

		found, ferr := e.dir.Search(cluster, seg11)
		if ferr != nil {
			return dirent.Entry{}, 0, [11]byte{}, ferr
		}

		if i == len(segments)-1 {
			return found, cluster, seg11, nil
		}
		if !found.IsDirectory() {
			return dirent.Entry{}, 0, [11]byte{}, ferrors.New(ferrors.NotADirectory)
		}
		cluster = found.Cluster()
	}

	// Unreachable: the loop above always returns on its last iteration.
	return dirent.Entry{}, 0, [11]byte{}, ferrors.New(ferrors.NotFound)
}

// resolveDir walks path and requires the result to be a directory,
// returning its first cluster. An empty path means the volume root.
func (e *Engine) resolveDir(path string) (uint32, error) {
	if len(splitPath(path)) == 0 {
		return e.geo.RootCluster, nil
	}
	entry, _, _, err := e.walk(path)
	if err != nil {
		return 0, err
	}
	if !entry.IsDirectory() {
		return 0, ferrors.New(ferrors.NotADirectory)
	}
	return entry.Cluster(), nil
}

// Exists reports whether path resolves to a directory entry.
func (e *Engine) Exists(path string) bool {
	_, _, _, err := e.walk(path)
	return err == nil
}
