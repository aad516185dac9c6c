// Package blockio is the lowest layer of the engine: positioned,
// sector-granular read/write over one open disk image (a regular file or a
// raw device node), per spec.md §4.A. Every other layer — geometry probing,
// the FAT engine, cluster I/O, the directory engine — eventually bottoms
// out in a call to this package.
package blockio

import (
	"io"

	"github.com/nilsrao/fatvol/ferrors"
)

// Device is a sector-addressable view onto an open image. It never
// interprets the bytes it moves; that's every other package's job.
//
// Device owns no file handle of its own. The caller supplies anything
// satisfying io.ReaderAt/io.WriterAt (an *os.File, or in tests an
// in-memory buffer from bytesextra), so Device works identically against a
// real disk image and a synthetic one.
type Device struct {
	backing        io.ReaderAt
	writableBacking io.WriterAt
	bytesPerSector uint32
}

// New wraps an already-open image. bytesPerSector must be one of the
// values geometry probing will have validated (512/1024/2048/4096) by the
// time any read/write is attempted; Device itself does not enforce this,
// since during geometry probing the sector size is not yet known and the
// very first read (of sector 0) must still go through this type.
func New(backing io.ReaderAt, bytesPerSector uint32) *Device {
	d := &Device{backing: backing, bytesPerSector: bytesPerSector}
	if w, ok := backing.(io.WriterAt); ok {
		d.writableBacking = w
	}
	return d
}

// BytesPerSector reports the sector size this device was constructed with.
func (d *Device) BytesPerSector() uint32 { return d.bytesPerSector }

// SetBytesPerSector updates the sector size once geometry probing has
// determined the volume's real value; before that point New is called
// with a provisional size just large enough to read sector 0.
func (d *Device) SetBytesPerSector(n uint32) { d.bytesPerSector = n }

func (d *Device) absoluteOffset(lba uint64, byteOff uint32) int64 {
	return int64(lba)*int64(d.bytesPerSector) + int64(byteOff)
}

// Read fills buf (whose length must be an exact multiple of the sector
// size) with `len(buf)/BytesPerSector` whole sectors starting at lba. It
// loops on short reads and retries errors that report themselves as
// temporary (see isRetryable); any other failure, or a zero-length read,
// is reported as ferrors.IOError
// and the caller never observes a partially filled buffer.
func (d *Device) Read(lba uint64, buf []byte) error {
	return d.readAt(d.absoluteOffset(lba, 0), buf)
}

// ReadAt reads count sectors starting at lba, then returns the byteLen
// bytes beginning byteOff into that sector window. This is the primitive
// cluster I/O uses to read a sub-cluster range without the caller having
// to round up to whole sectors itself.
func (d *Device) ReadAt(lba uint64, byteOff uint32, count uint32, byteLen uint32) ([]byte, error) {
	window := make([]byte, int(count)*int(d.bytesPerSector))
	if err := d.readAt(d.absoluteOffset(lba, 0), window); err != nil {
		return nil, err
	}
	if uint32(len(window)) < byteOff+byteLen {
		return nil, ferrors.IOError.WithMessage("requested byte range exceeds sector window read")
	}
	return window[byteOff : byteOff+byteLen], nil
}

func (d *Device) readAt(offset int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	total := 0
	for total < len(buf) {
		n, err := d.backing.ReadAt(buf[total:], offset+int64(total))
		if n == 0 && err == nil {
			// A zero-length return with no error is a short-read failure:
			// the device isn't making progress.
			return ferrors.IOError.WithMessage("short read: zero bytes transferred")
		}
		total += n
		if err != nil {
			if err == io.EOF && total == len(buf) {
				break
			}
			if isRetryable(err) {
				continue
			}
			return ferrors.IOError.Wrap(err)
		}
	}
	return nil
}

// Write writes buf (an exact multiple of the sector size) starting at lba.
func (d *Device) Write(lba uint64, buf []byte) error {
	return d.writeAt(d.absoluteOffset(lba, 0), buf)
}

// WriteAt writes byteLen bytes from data starting byteOff bytes into the
// sector at lba, without disturbing the rest of that sector: the absolute
// byte offset is handed directly to the backing store, so no
// read-modify-write of the surrounding sector is needed here (the block
// layer is given the exact byte window).
func (d *Device) WriteAt(lba uint64, byteOff uint32, data []byte) error {
	return d.writeAt(d.absoluteOffset(lba, byteOff), data)
}

func (d *Device) writeAt(offset int64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if d.writableBacking == nil {
		return ferrors.IOError.WithMessage("backing image is not writable")
	}
	total := 0
	for total < len(buf) {
		n, err := d.writableBacking.WriteAt(buf[total:], offset+int64(total))
		if n == 0 && err == nil {
			return ferrors.IOError.WithMessage("short write: zero bytes transferred")
		}
		total += n
		if err != nil {
			if isRetryable(err) {
				continue
			}
			return ferrors.IOError.Wrap(err)
		}
	}
	return nil
}

// Copy copies count whole sectors from srcLBA to dstLBA.
func (d *Device) Copy(srcLBA, dstLBA uint64, count uint32) error {
	buf := make([]byte, int(count)*int(d.bytesPerSector))
	if err := d.Read(srcLBA, buf); err != nil {
		return err
	}
	return d.Write(dstLBA, buf)
}

// isRetryable reports whether an I/O error represents a transient
// interruption (EINTR-equivalent) that should simply be retried rather
// than surfaced to the caller. The standard library's PathError/SyscallError
// wrapping means very few errors satisfy this on the platforms Go runs on
// today, but the hook exists so a platform-specific retryable error can be
// recognized without touching every call site.
func isRetryable(err error) bool {
	type temporary interface{ Temporary() bool }
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}
	return false
}
