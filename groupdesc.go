package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// groupDesc is the normalized form of a block group descriptor with
// the lo/hi halves already assembled.
type groupDesc struct {
	blockBitmap uint64
	inodeBitmap uint64
	inodeTable  uint64
	flags       uint16
}

// readGroupTable loads the descriptor table, which starts at the
// block after the superblock's block.
func (v *Volume) readGroupTable() error {
	descSize := v.sb.DescSize()
	count := v.sb.GroupCount()

	// Cap the count before any arithmetic on it: a forged 64-bit
	// block count can otherwise overflow tableLen and slip past the
	// bounds check below.
	if count > uint64(v.backend.size())/uint64(descSize) {
		return fmt.Errorf("%w: %d descriptors of %d bytes exceed the image", ErrCorruptGroupTable, count, descSize)
	}

	tableOffset := int64(v.sb.FirstDataBlock()+1) * v.sb.BlockSize()
	tableLen := int64(count) * int64(descSize)
	if tableOffset+tableLen > v.backend.size()-v.offset {
		return fmt.Errorf("%w: %d descriptors of %d bytes exceed the image", ErrCorruptGroupTable, count, descSize)
	}

	buf := make([]byte, tableLen)
	if err := v.readAt(buf, tableOffset); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptGroupTable, err)
	}

	v.groups = make([]groupDesc, count)
	for i := range v.groups {
		raw := buf[int64(i)*int64(descSize):]
		if descSize >= 64 {
			var gd groupDesc64
			if err := binary.Read(bytes.NewReader(raw[:64]), binary.LittleEndian, &gd); err != nil {
				return fmt.Errorf("%w: descriptor %d: %v", ErrCorruptGroupTable, i, err)
			}
			v.groups[i] = groupDesc{
				blockBitmap: uint64(gd.BlockBitmapLo) | uint64(gd.BlockBitmapHi)<<32,
				inodeBitmap: uint64(gd.InodeBitmapLo) | uint64(gd.InodeBitmapHi)<<32,
				inodeTable:  uint64(gd.InodeTableLo) | uint64(gd.InodeTableHi)<<32,
				flags:       gd.Flags,
			}
			continue
		}

		var gd groupDesc32
		if err := binary.Read(bytes.NewReader(raw[:32]), binary.LittleEndian, &gd); err != nil {
			return fmt.Errorf("%w: descriptor %d: %v", ErrCorruptGroupTable, i, err)
		}
		v.groups[i] = groupDesc{
			blockBitmap: uint64(gd.BlockBitmapLo),
			inodeBitmap: uint64(gd.InodeBitmapLo),
			inodeTable:  uint64(gd.InodeTableLo),
			flags:       gd.Flags,
		}
	}

	return nil
}

func (v *Volume) group(idx uint64) (*groupDesc, error) {
	if idx >= uint64(len(v.groups)) {
		return nil, fmt.Errorf("%w: group %d of %d", ErrCorruptGroupTable, idx, len(v.groups))
	}
	return &v.groups[idx], nil
}
