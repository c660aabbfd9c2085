package ext4

import (
	"fmt"
	"io"
	"os"
)

// fileBackend implements imageBackend over a regular file or block
// device opened read-only.
type fileBackend struct {
	f      *os.File
	length int64
}

var _ imageBackend = (*fileBackend)(nil)

func newFileBackend(path string) (*fileBackend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("image open error: %w", err)
	}

	length, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("image size error: %w", err)
	}

	return &fileBackend{f: f, length: length}, nil
}

func (fb *fileBackend) readAt(p []byte, off int64) error {
	if _, err := fb.f.ReadAt(p, off); err != nil {
		return fmt.Errorf("image read error: %w", err)
	}

	return nil
}

func (fb *fileBackend) size() int64 {
	return fb.length
}

func (fb *fileBackend) close() error {
	if err := fb.f.Close(); err != nil {
		return fmt.Errorf("image close error: %w", err)
	}

	return nil
}

// readerBackend adapts an arbitrary io.ReaderAt of known length, for
// images embedded in archives or served over custom transports.
type readerBackend struct {
	r      io.ReaderAt
	length int64
}

var _ imageBackend = (*readerBackend)(nil)

func (rb *readerBackend) readAt(p []byte, off int64) error {
	if _, err := rb.r.ReadAt(p, off); err != nil {
		return fmt.Errorf("image read error: %w", err)
	}

	return nil
}

func (rb *readerBackend) size() int64 {
	return rb.length
}
