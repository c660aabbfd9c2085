package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Xattr is one decoded extended attribute. Name carries the namespace
// prefix the attribute's index maps to.
type Xattr struct {
	Name  string
	Value []byte
}

// xattrPrefix maps an on-disk namespace index to the name prefix the
// kernel strips when storing. Indexes 2 and 3 encode the whole name.
func xattrPrefix(index uint8) string {
	switch index {
	case xattrIndexNone:
		return ""
	case xattrIndexUser:
		return "user."
	case xattrIndexPosixACLAccess:
		return "system.posix_acl_access"
	case xattrIndexPosixACLDefault:
		return "system.posix_acl_default"
	case xattrIndexTrusted:
		return "trusted."
	case xattrIndexSecurity:
		return "security."
	case xattrIndexSystem:
		return "system."
	case xattrIndexRichACL:
		return "system.richacl"
	default:
		return fmt.Sprintf("unknown(%d).", index)
	}
}

// Xattrs decodes the inode's extended attributes: first the region
// inside the inode record, then the shared external block, in that
// order.
func (ino *Inode) Xattrs() ([]Xattr, error) {
	attrs, err := ino.ibodyXattrs()
	if err != nil {
		return nil, err
	}

	blockAttrs, err := ino.blockXattrs()
	if err != nil {
		return nil, err
	}

	return append(attrs, blockAttrs...), nil
}

// ibodyXattrs decodes the attribute region between the end of the
// inode record proper (128 + i_extra_isize) and the end of the inode
// slot. An absent or unmagiced region simply means no attributes.
func (ino *Inode) ibodyXattrs() ([]Xattr, error) {
	v := ino.vol
	start := int64(inodeCoreSize) + int64(ino.raw.ExtraIsize)
	regionLen := int64(v.sb.InodeSize()) - start
	if regionLen < xattrIbodyHeaderSize+xattrEntryHeaderSize {
		return nil, nil
	}

	region := make([]byte, regionLen)
	if err := v.readAt(region, ino.offset+start); err != nil {
		return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptXattrBlock, ino.num, err)
	}

	if binary.LittleEndian.Uint32(region) != xattrMagic {
		return nil, nil
	}

	// Value offsets are relative to the first entry, right after the
	// four magic bytes.
	body := region[xattrIbodyHeaderSize:]
	return ino.parseXattrEntries(body, body)
}

// blockXattrs decodes the external attribute block at i_file_acl. The
// block may be shared between inodes and always spans exactly one
// filesystem block.
func (ino *Inode) blockXattrs() ([]Xattr, error) {
	v := ino.vol
	acl := uint64(ino.raw.FileACLLo) | uint64(ino.raw.FileACLHi)<<32
	if acl == 0 {
		return nil, nil
	}

	block, err := v.readBlock(acl)
	if err != nil {
		return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptXattrBlock, ino.num, err)
	}

	var hdr xattrBlockHeader
	if err := binary.Read(bytes.NewReader(block[:xattrBlockHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptXattrBlock, ino.num, err)
	}

	if hdr.Magic != xattrMagic && !v.ignoreMagic {
		return nil, fmt.Errorf("%w: inode %d: block magic 0x%08X", ErrCorruptXattrBlock, ino.num, hdr.Magic)
	}
	if hdr.Blocks != 1 {
		return nil, fmt.Errorf("%w: inode %d: attribute block spans %d blocks", ErrCorruptXattrBlock, ino.num, hdr.Blocks)
	}

	// Value offsets are relative to the start of the block.
	return ino.parseXattrEntries(block[xattrBlockHeaderSize:], block)
}

// parseXattrEntries walks a packed entry list. Each record is a
// 16-byte header plus the name, padded to 4 bytes; the list ends at
// four zero bytes or the end of the region. Value offsets index into
// values.
func (ino *Inode) parseXattrEntries(entries, values []byte) ([]Xattr, error) {
	var attrs []Xattr
	off := 0
	for off+4 <= len(entries) {
		if binary.LittleEndian.Uint32(entries[off:]) == 0 {
			break
		}
		if off+xattrEntryHeaderSize > len(entries) {
			return nil, fmt.Errorf("%w: inode %d: truncated entry at offset %d", ErrCorruptXattrBlock, ino.num, off)
		}

		var ent xattrEntry
		if err := binary.Read(bytes.NewReader(entries[off:off+xattrEntryHeaderSize]), binary.LittleEndian, &ent); err != nil {
			return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptXattrBlock, ino.num, err)
		}

		nameEnd := off + xattrEntryHeaderSize + int(ent.NameLen)
		if nameEnd > len(entries) {
			return nil, fmt.Errorf("%w: inode %d: name overruns the region", ErrCorruptXattrBlock, ino.num)
		}
		name := xattrPrefix(ent.NameIndex) + string(entries[off+xattrEntryHeaderSize:nameEnd])

		value, err := ino.xattrValue(&ent, values)
		if err != nil {
			return nil, err
		}

		attrs = append(attrs, Xattr{Name: name, Value: value})
		off = align4(nameEnd)
	}

	return attrs, nil
}

func (ino *Inode) xattrValue(ent *xattrEntry, values []byte) ([]byte, error) {
	// Large values live in a dedicated inode and go through the
	// ordinary content read path.
	if ent.ValueInum != 0 {
		ea, err := ino.vol.GetInode(ent.ValueInum)
		if err != nil {
			return nil, err
		}
		if int64(ent.ValueSize) > ea.Size() {
			return nil, fmt.Errorf("%w: inode %d: value of %d bytes exceeds attribute inode %d",
				ErrCorruptXattrBlock, ino.num, ent.ValueSize, ent.ValueInum)
		}
		r, err := ea.Open()
		if err != nil {
			return nil, err
		}
		value := make([]byte, ent.ValueSize)
		if len(value) > 0 {
			if _, err := r.ReadAt(value, 0); err != nil {
				return nil, err
			}
		}
		return value, nil
	}

	end := int(ent.ValueOffs) + int(ent.ValueSize)
	if end > len(values) {
		return nil, fmt.Errorf("%w: inode %d: value %d+%d overruns the region",
			ErrCorruptXattrBlock, ino.num, ent.ValueOffs, ent.ValueSize)
	}

	value := make([]byte, ent.ValueSize)
	copy(value, values[ent.ValueOffs:end])
	return value, nil
}

// inlineExtra returns the tail of an inline-data payload, stored as
// the system.data attribute inside the inode.
func (ino *Inode) inlineExtra() ([]byte, error) {
	attrs, err := ino.ibodyXattrs()
	if err != nil {
		return nil, err
	}

	for _, a := range attrs {
		if a.Name == "system.data" {
			return a.Value, nil
		}
	}
	return nil, nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
