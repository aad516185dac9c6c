// Package memblock builds an in-memory blockio.Device for package tests
// of the engine's lower layers (fat, cluster, directory), the same role
// bytesextra plays for the teacher's own driver tests, factored out so
// those packages and fstest share one small helper. The blockio and
// geometry tests define their own ReaderAt/WriterAt adapter instead.
package memblock

import (
	"io"
	"sync"
	"testing"

	"github.com/xaionaro-go/bytesextra"

	"github.com/nilsrao/fatvol/blockio"
)

// Backing adapts bytesextra's io.ReadWriteSeeker to the
// io.ReaderAt/io.WriterAt/io.Closer set blockio.Device (and fatvol.Engine)
// require.
type Backing struct {
	mu     sync.Mutex
	stream io.ReadWriteSeeker
}

// NewBacking wraps raw in a bytesextra seeker and returns the adapter.
func NewBacking(raw []byte) *Backing {
	return &Backing{stream: bytesextra.NewReadWriteSeeker(raw)}
}

func (s *Backing) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(s.stream, p)
}

func (s *Backing) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.stream.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.stream.Write(p)
}

// Close is a no-op; there is no real resource to release.
func (s *Backing) Close() error { return nil }

// New allocates a zero-filled sizeBytes in-memory image and wraps it in a
// blockio.Device with the given sector size. The backing slice is
// returned too, so a test can assert on raw bytes directly.
func New(t *testing.T, sizeBytes int, bytesPerSector uint32) (*blockio.Device, []byte) {
	t.Helper()
	raw := make([]byte, sizeBytes)
	return blockio.New(NewBacking(raw), bytesPerSector), raw
}
