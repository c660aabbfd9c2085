package ext4

import "fmt"

// memoryBackend implements imageBackend over a byte slice. Used for
// ramdisk images and throughout the tests.
type memoryBackend struct {
	data []byte
}

var _ imageBackend = (*memoryBackend)(nil)

func (m *memoryBackend) readAt(p []byte, off int64) error {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return fmt.Errorf("image read error: offset %d out of range (size %d)", off, len(m.data))
	}
	copy(p, m.data[off:])
	return nil
}

func (m *memoryBackend) size() int64 {
	return int64(len(m.data))
}
