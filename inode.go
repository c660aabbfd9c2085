package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Inode is one decoded inode together with the volume it came from.
type Inode struct {
	vol *Volume
	num uint32
	raw rawInode

	// offset of the inode record inside the filesystem, kept for the
	// in-inode extended attribute region
	offset int64
}

// readInode decodes the inode record at the given filesystem offset.
// Filesystems with an inode size below 160 bytes store a truncated
// record; the missing tail decodes as zeros.
func (v *Volume) readInode(idx uint32, off int64) (*Inode, error) {
	recSize := int(v.sb.InodeSize())
	buf := make([]byte, recSize)
	if err := v.readAt(buf, off); err != nil {
		return nil, fmt.Errorf("%w: inode %d: %v", ErrInvalidInode, idx, err)
	}

	ino := &Inode{vol: v, num: idx, offset: off}
	full := buf
	if recSize < 160 {
		full = make([]byte, 160)
		copy(full, buf)
	}
	if err := binary.Read(bytes.NewReader(full[:160]), binary.LittleEndian, &ino.raw); err != nil {
		return nil, fmt.Errorf("%w: inode %d: %v", ErrInvalidInode, idx, err)
	}

	return ino, nil
}

// Num returns the 1-based inode index.
func (ino *Inode) Num() uint32 {
	return ino.num
}

// Mode returns the raw mode word: file type in the top nibble,
// permission bits below.
func (ino *Inode) Mode() uint16 {
	return ino.raw.Mode
}

// Flags returns the inode flag bitmap.
func (ino *Inode) Flags() uint32 {
	return ino.raw.Flags
}

// Size returns the file size in bytes.
func (ino *Inode) Size() int64 {
	return int64(ino.raw.SizeLo) | int64(ino.raw.SizeHi)<<32
}

// LinksCount returns the hard link count.
func (ino *Inode) LinksCount() uint16 {
	return ino.raw.LinksCount
}

// UID returns the 32-bit owner user id.
func (ino *Inode) UID() uint32 {
	return uint32(ino.raw.UID) | uint32(ino.raw.UIDHi)<<16
}

// GID returns the 32-bit owner group id.
func (ino *Inode) GID() uint32 {
	return uint32(ino.raw.GID) | uint32(ino.raw.GIDHi)<<16
}

// ModTime returns the modification time.
func (ino *Inode) ModTime() time.Time {
	return time.Unix(int64(ino.raw.Mtime), 0)
}

// AccessTime returns the last access time.
func (ino *Inode) AccessTime() time.Time {
	return time.Unix(int64(ino.raw.Atime), 0)
}

// ChangeTime returns the last inode change time.
func (ino *Inode) ChangeTime() time.Time {
	return time.Unix(int64(ino.raw.Ctime), 0)
}

func (ino *Inode) fileType() uint16 {
	return ino.raw.Mode & 0xF000
}

// IsDir reports whether the inode is a directory.
func (ino *Inode) IsDir() bool {
	return ino.fileType() == s_IFDIR
}

// IsRegular reports whether the inode is a regular file.
func (ino *Inode) IsRegular() bool {
	return ino.fileType() == s_IFREG
}

// IsSymlink reports whether the inode is a symbolic link.
func (ino *Inode) IsSymlink() bool {
	return ino.fileType() == s_IFLNK
}

// hasExtents reports whether block mapping uses an extent tree rather
// than the legacy indirect pointers.
func (ino *Inode) hasExtents() bool {
	return ino.raw.Flags&inodeFlagExtents != 0
}

// hasInlineData reports whether the payload lives inside the inode.
func (ino *Inode) hasInlineData() bool {
	return ino.raw.Flags&inodeFlagInlineData != 0
}

// InUse reports whether the inode's bit is set in its group's inode
// bitmap. Reserved inodes below s_first_ino are always considered in
// use by the kernel but are reported as the bitmap says.
func (ino *Inode) InUse() (bool, error) {
	v := ino.vol
	groupIdx := uint64(ino.num-1) / uint64(v.sb.InodesPerGroup())
	local := uint64(ino.num-1) % uint64(v.sb.InodesPerGroup())

	gd, err := v.group(groupIdx)
	if err != nil {
		return false, err
	}

	var b [1]byte
	off := int64(gd.inodeBitmap)*v.sb.BlockSize() + int64(local/8)
	if err := v.readAt(b[:], off); err != nil {
		return false, err
	}

	return b[0]&(1<<(local%8)) != 0, nil
}

// GetInode resolves a relative path, one component per argument,
// starting from this inode. Each component is found by a linear scan
// of the parent's entries; hashed directory indexes are not consulted.
func (ino *Inode) GetInode(parts ...string) (*Inode, error) {
	current := ino
	for i, part := range parts {
		if !current.IsDir() && !current.vol.ignoreFlags {
			return nil, fmt.Errorf("%w: %q", ErrNotADirectory, joinParts(parts[:i]))
		}

		next, err := current.lookup(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", err, joinParts(parts[:i+1]))
		}
		current = next
	}

	return current, nil
}

// lookup finds one directory entry by exact name.
func (ino *Inode) lookup(name string) (*Inode, error) {
	it, err := ino.OpenDir()
	if err != nil {
		return nil, err
	}

	for it.Next() {
		if it.Entry().Name == name {
			return ino.vol.GetInode(it.Entry().Inode)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	return nil, ErrPathNotFound
}

func joinParts(parts []string) string {
	s := ""
	for _, p := range parts {
		s += "/" + p
	}
	if s == "" {
		s = "/"
	}
	return s
}

// Target returns the target path of a symbolic link. Targets shorter
// than 60 bytes live directly in the block pointer area; longer ones
// occupy a data block.
func (ino *Inode) Target() (string, error) {
	if !ino.IsSymlink() && !ino.vol.ignoreFlags {
		return "", fmt.Errorf("inode %d is not a symlink", ino.num)
	}

	size := ino.Size()
	if size < inlineDataSize && !ino.hasExtents() && !ino.hasInlineData() {
		return string(ino.raw.Block[:size]), nil
	}

	r, err := ino.Open()
	if err != nil {
		return "", err
	}
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return "", err
	}
	return string(buf), nil
}
