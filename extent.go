package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// mapping is one contiguous run of logical file blocks backed by
// physical disk blocks. Logical ranges not covered by any mapping are
// holes and read as zeros.
type mapping struct {
	fileBlock uint64
	diskBlock uint64
	count     uint64
}

const extentHeaderSize = 12
const extentEntrySize = 12

// mappings resolves the inode's block map, through either the extent
// tree or the legacy indirect pointers. The result is sorted by
// logical block with adjacent runs merged.
func (ino *Inode) mappings() ([]mapping, error) {
	if ino.hasInlineData() {
		return nil, nil
	}

	var maps []mapping
	var err error
	if ino.hasExtents() {
		maps, err = ino.extentMappings()
	} else {
		maps, err = ino.indirectMappings()
	}
	if err != nil {
		return nil, err
	}

	return optimizeMappings(maps), nil
}

// extentNode is one tree node pending traversal, with the depth its
// header must declare.
type extentNode struct {
	data  []byte
	depth uint16
}

func (ino *Inode) extentMappings() ([]mapping, error) {
	v := ino.vol

	root := make([]byte, inlineDataSize)
	copy(root, ino.raw.Block[:])

	rootHdr, err := ino.parseExtentHeader(root)
	if err != nil {
		return nil, err
	}
	if rootHdr.Depth > maxExtentDepth {
		return nil, fmt.Errorf("%w: inode %d: depth %d", ErrCorruptExtentTree, ino.num, rootHdr.Depth)
	}

	var maps []mapping
	work := []extentNode{{data: root, depth: rootHdr.Depth}}
	for len(work) > 0 {
		node := work[len(work)-1]
		work = work[:len(work)-1]

		hdr, err := ino.parseExtentHeader(node.data)
		if err != nil {
			return nil, err
		}
		if hdr.Depth != node.depth {
			return nil, fmt.Errorf("%w: inode %d: node depth %d, want %d", ErrCorruptExtentTree, ino.num, hdr.Depth, node.depth)
		}
		if extentHeaderSize+int(hdr.Entries)*extentEntrySize > len(node.data) {
			return nil, fmt.Errorf("%w: inode %d: %d entries overflow the node", ErrCorruptExtentTree, ino.num, hdr.Entries)
		}

		entries := node.data[extentHeaderSize:]
		for i := 0; i < int(hdr.Entries); i++ {
			raw := entries[i*extentEntrySize : (i+1)*extentEntrySize]

			if hdr.Depth == 0 {
				var leaf extentLeaf
				if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &leaf); err != nil {
					return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptExtentTree, ino.num, err)
				}

				length := uint64(leaf.Len)
				if length > 32768 {
					// Uninitialized extent: allocated but never
					// written, so it reads as zeros. Leaving it
					// unmapped gives the same bytes.
					continue
				}

				start := uint64(leaf.StartLo) | uint64(leaf.StartHi)<<32
				if start+length > v.sb.BlocksCount() {
					return nil, fmt.Errorf("%w: inode %d: extent %d+%d out of volume", ErrCorruptExtentTree, ino.num, start, length)
				}

				maps = append(maps, mapping{
					fileBlock: uint64(leaf.Block),
					diskBlock: start,
					count:     length,
				})
				continue
			}

			var idx extentIdx
			if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &idx); err != nil {
				return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptExtentTree, ino.num, err)
			}

			child := uint64(idx.LeafLo) | uint64(idx.LeafHi)<<32
			data, err := v.readBlock(child)
			if err != nil {
				return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptExtentTree, ino.num, err)
			}
			work = append(work, extentNode{data: data, depth: hdr.Depth - 1})
		}
	}

	return maps, nil
}

func (ino *Inode) parseExtentHeader(data []byte) (*extentHeader, error) {
	if len(data) < extentHeaderSize {
		return nil, fmt.Errorf("%w: inode %d: short node", ErrCorruptExtentTree, ino.num)
	}

	var hdr extentHeader
	if err := binary.Read(bytes.NewReader(data[:extentHeaderSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: inode %d: %v", ErrCorruptExtentTree, ino.num, err)
	}

	if hdr.Magic != extentMagic && !ino.vol.ignoreMagic {
		return nil, fmt.Errorf("%w: inode %d: node magic 0x%04X", ErrCorruptExtentTree, ino.num, hdr.Magic)
	}
	if hdr.Entries > hdr.Max {
		return nil, fmt.Errorf("%w: inode %d: %d entries exceed max %d", ErrCorruptExtentTree, ino.num, hdr.Entries, hdr.Max)
	}

	return &hdr, nil
}

// indirectMappings walks the pre-extents block map: 12 direct
// pointers followed by single, double and triple indirect blocks.
// Zero pointers at any level are holes.
func (ino *Inode) indirectMappings() ([]mapping, error) {
	v := ino.vol
	bs := uint64(v.sb.BlockSize())
	ptrsPerBlock := bs / 4

	total := (uint64(ino.Size()) + bs - 1) / bs
	var maps []mapping
	var logical uint64

	appendPtr := func(ptr uint64) error {
		if ptr != 0 {
			if ptr >= v.sb.BlocksCount() {
				return fmt.Errorf("%w: inode %d: block pointer %d out of volume", ErrCorruptExtentTree, ino.num, ptr)
			}
			maps = append(maps, mapping{fileBlock: logical, diskBlock: ptr, count: 1})
		}
		logical++
		return nil
	}

	// span returns the number of file blocks addressed through one
	// pointer at the given indirection level.
	span := func(level int) uint64 {
		n := uint64(1)
		for i := 0; i < level; i++ {
			n *= ptrsPerBlock
		}
		return n
	}

	var walk func(ptr uint64, level int) error
	walk = func(ptr uint64, level int) error {
		if logical >= total {
			return nil
		}
		if level == 0 {
			return appendPtr(ptr)
		}
		if ptr == 0 {
			logical += span(level)
			return nil
		}
		if ptr >= v.sb.BlocksCount() {
			return fmt.Errorf("%w: inode %d: indirect block %d out of volume", ErrCorruptExtentTree, ino.num, ptr)
		}

		data, err := v.readBlock(ptr)
		if err != nil {
			return fmt.Errorf("%w: inode %d: %v", ErrCorruptExtentTree, ino.num, err)
		}
		for i := uint64(0); i < ptrsPerBlock && logical < total; i++ {
			child := uint64(binary.LittleEndian.Uint32(data[i*4:]))
			if err := walk(child, level-1); err != nil {
				return err
			}
		}
		return nil
	}

	for i := 0; i < 12 && logical < total; i++ {
		ptr := uint64(binary.LittleEndian.Uint32(ino.raw.Block[i*4:]))
		if err := appendPtr(ptr); err != nil {
			return nil, err
		}
	}
	for level := 1; level <= 3; level++ {
		if logical >= total {
			break
		}
		ptr := uint64(binary.LittleEndian.Uint32(ino.raw.Block[(11+level)*4:]))
		if err := walk(ptr, level); err != nil {
			return nil, err
		}
	}

	return maps, nil
}

// optimizeMappings sorts runs by logical block and stitches together
// runs that are contiguous both logically and physically.
func optimizeMappings(maps []mapping) []mapping {
	if len(maps) < 2 {
		return maps
	}

	sort.Slice(maps, func(i, j int) bool {
		return maps[i].fileBlock < maps[j].fileBlock
	})

	out := maps[:1]
	for _, m := range maps[1:] {
		last := &out[len(out)-1]
		if last.fileBlock+last.count == m.fileBlock && last.diskBlock+last.count == m.diskBlock {
			last.count += m.count
			continue
		}
		out = append(out, m)
	}

	return out
}
