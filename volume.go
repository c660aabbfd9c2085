package ext4

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Volume is a read-only view of an ext4 filesystem inside an image.
// It is safe for concurrent use once opened.
type Volume struct {
	backend imageBackend
	offset  int64

	ignoreMagic bool
	ignoreFlags bool

	sb     *Superblock
	groups []groupDesc

	closer func() error
}

// Open interprets an ext4 filesystem served by r. The size is the
// total length of the image in bytes.
//
// Example:
//
//	vol, err := ext4.Open(f, fi.Size(), ext4.WithOffset(1048576))
//	if err != nil {
//	    return err
//	}
//	root, err := vol.Root()
func Open(r io.ReaderAt, size int64, opts ...Option) (*Volume, error) {
	return open(&readerBackend{r: r, length: size}, opts...)
}

// OpenFile opens an image file or block device read-only. Close
// releases the file handle.
func OpenFile(path string, opts ...Option) (*Volume, error) {
	fb, err := newFileBackend(path)
	if err != nil {
		return nil, err
	}

	v, err := open(fb, opts...)
	if err != nil {
		_ = fb.close()
		return nil, err
	}

	v.closer = fb.close
	return v, nil
}

// OpenBytes interprets an ext4 filesystem held entirely in memory.
func OpenBytes(data []byte, opts ...Option) (*Volume, error) {
	return open(&memoryBackend{data: data}, opts...)
}

func open(backend imageBackend, opts ...Option) (*Volume, error) {
	v := &Volume{backend: backend}
	for _, opt := range opts {
		opt(v)
	}

	if v.offset < 0 || v.offset+superblockOffset+1024 > backend.size() {
		return nil, fmt.Errorf("%w: image too small for a superblock at offset %d", ErrCorruptSuperblock, v.offset)
	}

	buf := make([]byte, 1024)
	if err := v.readAt(buf, superblockOffset); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSuperblock, err)
	}

	sb, err := decodeSuperblock(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSuperblock, err)
	}

	if !v.ignoreMagic {
		if err := sb.checkMagic(); err != nil {
			return nil, err
		}
	}
	if err := sb.validate(); err != nil {
		return nil, err
	}
	if !v.ignoreFlags {
		if err := sb.checkFeatures(); err != nil {
			return nil, err
		}
	}

	v.sb = sb
	if err := v.readGroupTable(); err != nil {
		return nil, err
	}

	return v, nil
}

// Close releases the underlying storage when the Volume owns it.
func (v *Volume) Close() error {
	if v.closer == nil {
		return nil
	}
	return v.closer()
}

// Superblock returns the decoded superblock.
func (v *Volume) Superblock() *Superblock {
	return v.sb
}

// BlockSize returns the filesystem block size in bytes.
func (v *Volume) BlockSize() int64 {
	return v.sb.BlockSize()
}

// UUID returns the volume UUID.
func (v *Volume) UUID() uuid.UUID {
	return v.sb.UUID()
}

// readAt reads from the filesystem, translating through the base
// offset of the image.
func (v *Volume) readAt(p []byte, off int64) error {
	return v.backend.readAt(p, v.offset+off)
}

// readBlock reads one filesystem block after bounds-checking the
// block number against the volume size.
func (v *Volume) readBlock(block uint64) ([]byte, error) {
	if block >= v.sb.BlocksCount() {
		return nil, fmt.Errorf("block %d out of volume (%d blocks)", block, v.sb.BlocksCount())
	}

	buf := make([]byte, v.sb.BlockSize())
	if err := v.readAt(buf, int64(block)*v.sb.BlockSize()); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetInode loads the inode with the given 1-based index. The root
// directory is RootInode (2).
func (v *Volume) GetInode(idx uint32) (*Inode, error) {
	if idx == 0 || idx > v.sb.InodesCount() {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidInode, idx, v.sb.InodesCount())
	}

	groupIdx := uint64(idx-1) / uint64(v.sb.InodesPerGroup())
	local := uint64(idx-1) % uint64(v.sb.InodesPerGroup())

	gd, err := v.group(groupIdx)
	if err != nil {
		return nil, err
	}

	off := int64(gd.inodeTable)*v.sb.BlockSize() + int64(local)*int64(v.sb.InodeSize())
	return v.readInode(idx, off)
}

// Root returns the root directory inode.
func (v *Volume) Root() (*Inode, error) {
	return v.GetInode(RootInode)
}

// GetInodeByPath resolves an absolute slash-separated path from the
// root directory. Leading and doubled slashes are tolerated.
func (v *Volume) GetInodeByPath(path string) (*Inode, error) {
	root, err := v.Root()
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}

	return root.GetInode(parts...)
}
