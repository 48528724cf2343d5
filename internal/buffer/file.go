package buffer

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// FileBuffer is an os.File-backed Buffer. Writes grow the file as needed;
// reads past the end of the file return a short count, matching the
// io.ReaderAt contract loosened per spec (no error on short read).
type FileBuffer struct {
	f *os.File
}

// OpenFile opens (creating if necessary) the file at path as a FileBuffer.
func OpenFile(path string) (*FileBuffer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, newErr("open_file", CodeIO, err)
	}
	return &FileBuffer{f: f}, nil
}

func (b *FileBuffer) ReadAt(p []byte, off uint64) (uint64, error) {
	n, err := b.f.ReadAt(p, int64(off))
	if err != nil {
		if err == io.EOF {
			return uint64(n), nil
		}
		return uint64(n), newErr("read_at", CodeIO, err)
	}
	return uint64(n), nil
}

func (b *FileBuffer) WriteAt(p []byte, off uint64) error {
	if _, err := b.f.WriteAt(p, int64(off)); err != nil {
		return newErr("write_at", CodeIO, err)
	}
	return nil
}

func (b *FileBuffer) Size() (uint64, error) {
	info, err := b.f.Stat()
	if err != nil {
		return 0, newErr("size", CodeIO, err)
	}
	return uint64(info.Size()), nil
}

func (b *FileBuffer) Resize(newSize uint64) error {
	if err := b.f.Truncate(int64(newSize)); err != nil {
		return newErr("resize", CodeIO, err)
	}
	return nil
}

// Sync flushes the file's contents and metadata to stable storage. The
// log queue does not call it; durability beyond the OS page cache is left
// to whoever holds the buffer.
func (b *FileBuffer) Sync() error {
	if err := b.f.Sync(); err != nil {
		return newErr("sync", CodeIO, err)
	}
	return nil
}

// Lock takes an advisory exclusive lock on the file. The queue's Switch
// holds it on a newly created segment file while writing that file's
// reserved first block.
func (b *FileBuffer) Lock() error {
	if err := unix.Flock(int(b.f.Fd()), unix.LOCK_EX); err != nil {
		return newErr("lock", CodeIO, err)
	}
	return nil
}

// Unlock releases a lock taken by Lock.
func (b *FileBuffer) Unlock() error {
	if err := unix.Flock(int(b.f.Fd()), unix.LOCK_UN); err != nil {
		return newErr("unlock", CodeIO, err)
	}
	return nil
}

func (b *FileBuffer) Close() error {
	if err := b.f.Close(); err != nil {
		return newErr("close", CodeIO, err)
	}
	return nil
}
