package ext4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
)

// Test fixture geometry: 1 KiB blocks, a single block group, 256-byte
// inode slots. The inode table spans blocks 5-36; data starts at 37.
const (
	tBlockSize      = 1024
	tTotalBlocks    = 512
	tBlocksPerGroup = 8192
	tInodesPerGroup = 128
	tInodeSize      = 256
	tBlockBitmap    = 3
	tInodeBitmap    = 4
	tInodeTable     = 5
	tFirstDataBlock = 37
)

var tVolumeUUID = uuid.MustParse("3C09AE31-A105-45F9-80D0-6062DABDA0EE")

// extentRun describes one leaf entry for fixture inodes.
type extentRun struct {
	logical  uint32
	physical uint32
	length   uint16
}

type testDirent struct {
	name  string
	inode uint32
	ftype uint8
}

// imageBuilder assembles a minimal but well-formed filesystem image
// in memory. Children are created first; finalize writes the root
// directory, superblock and group descriptor, and returns the image.
type imageBuilder struct {
	t    *testing.T
	data []byte

	nextBlock   uint64
	nextInode   uint32
	rootEntries []testDirent
}

func newImageBuilder(t *testing.T) *imageBuilder {
	b := &imageBuilder{
		t:         t,
		data:      make([]byte, tTotalBlocks*tBlockSize),
		nextBlock: tFirstDataBlock,
		nextInode: 11,
	}

	// Reserved inodes 1-10 plus the root are always allocated.
	for i := uint32(1); i <= 10; i++ {
		b.markInode(i)
	}
	for blk := uint64(0); blk < tFirstDataBlock; blk++ {
		b.markBlock(blk)
	}

	return b
}

func (b *imageBuilder) markInode(num uint32) {
	bit := num - 1
	b.data[tInodeBitmap*tBlockSize+bit/8] |= 1 << (bit % 8)
}

func (b *imageBuilder) markBlock(num uint64) {
	b.data[tBlockBitmap*tBlockSize+num/8] |= 1 << (num % 8)
}

func (b *imageBuilder) allocBlock() uint64 {
	n := b.nextBlock
	b.nextBlock++
	b.markBlock(n)
	return n
}

func (b *imageBuilder) allocInode() uint32 {
	n := b.nextInode
	b.nextInode++
	b.markInode(n)
	return n
}

func (b *imageBuilder) writeBlock(num uint64, data []byte) {
	copy(b.data[num*tBlockSize:], data)
}

func inodeOffset(num uint32) int64 {
	return tInodeTable*tBlockSize + int64(num-1)*tInodeSize
}

func (b *imageBuilder) writeRawInode(num uint32, ino *rawInode) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, ino); err != nil {
		b.t.Fatalf("encode inode %d: %v", num, err)
	}
	copy(b.data[inodeOffset(num):], buf.Bytes())
}

func makeTestInode(mode uint16, flags uint32, size uint64, links uint16) *rawInode {
	return &rawInode{
		Mode:       mode,
		SizeLo:     uint32(size),
		SizeHi:     uint32(size >> 32),
		LinksCount: links,
		Flags:      flags,
		Mtime:      1600000000,
		Atime:      1600000000,
		Ctime:      1600000000,
		ExtraIsize: 32,
	}
}

// setExtents writes a depth-0 extent node with up to 4 entries into
// the inode's block area.
func setExtents(ino *rawInode, runs []extentRun) {
	blk := ino.Block[:]
	binary.LittleEndian.PutUint16(blk[0:], extentMagic)
	binary.LittleEndian.PutUint16(blk[2:], uint16(len(runs)))
	binary.LittleEndian.PutUint16(blk[4:], 4)
	binary.LittleEndian.PutUint16(blk[6:], 0)
	for i, run := range runs {
		off := 12 + i*12
		binary.LittleEndian.PutUint32(blk[off:], run.logical)
		binary.LittleEndian.PutUint16(blk[off+4:], run.length)
		binary.LittleEndian.PutUint16(blk[off+6:], 0)
		binary.LittleEndian.PutUint32(blk[off+8:], run.physical)
	}
}

// setExtentIndex turns the inode's block area into a depth-1 index
// node pointing at a single leaf block.
func setExtentIndex(ino *rawInode, leafBlock uint64) {
	blk := ino.Block[:]
	for i := range blk {
		blk[i] = 0
	}
	binary.LittleEndian.PutUint16(blk[0:], extentMagic)
	binary.LittleEndian.PutUint16(blk[2:], 1)
	binary.LittleEndian.PutUint16(blk[4:], 4)
	binary.LittleEndian.PutUint16(blk[6:], 1)
	binary.LittleEndian.PutUint32(blk[12:], 0)
	binary.LittleEndian.PutUint32(blk[16:], uint32(leafBlock))
	binary.LittleEndian.PutUint16(blk[20:], uint16(leafBlock>>32))
}

// encodeLeafBlock renders a full-block depth-0 extent node.
func encodeLeafBlock(runs []extentRun) []byte {
	leaf := make([]byte, tBlockSize)
	binary.LittleEndian.PutUint16(leaf[0:], extentMagic)
	binary.LittleEndian.PutUint16(leaf[2:], uint16(len(runs)))
	binary.LittleEndian.PutUint16(leaf[4:], (tBlockSize-12)/12)
	binary.LittleEndian.PutUint16(leaf[6:], 0)
	for i, run := range runs {
		off := 12 + i*12
		binary.LittleEndian.PutUint32(leaf[off:], run.logical)
		binary.LittleEndian.PutUint16(leaf[off+4:], run.length)
		binary.LittleEndian.PutUint16(leaf[off+6:], 0)
		binary.LittleEndian.PutUint32(leaf[off+8:], run.physical)
	}
	return leaf
}

// newFileInode stores content in freshly allocated contiguous blocks
// behind a single extent. No directory entry is added.
func (b *imageBuilder) newFileInode(content []byte) uint32 {
	num := b.allocInode()
	ino := makeTestInode(s_IFREG|0o644, inodeFlagExtents, uint64(len(content)), 1)

	nblocks := (len(content) + tBlockSize - 1) / tBlockSize
	if nblocks > 0 {
		first := b.allocBlock()
		for i := 1; i < nblocks; i++ {
			b.allocBlock()
		}
		b.writeBlock(first, content)
		setExtents(ino, []extentRun{{logical: 0, physical: uint32(first), length: uint16(nblocks)}})
	} else {
		setExtents(ino, nil)
	}

	b.writeRawInode(num, ino)
	return num
}

// newDirInode writes one directory block holding ".", ".." and the
// given entries.
func (b *imageBuilder) newDirInode(parent uint32, entries []testDirent) uint32 {
	num := b.allocInode()
	blk := b.allocBlock()

	all := append([]testDirent{
		{name: ".", inode: num, ftype: FTDir},
		{name: "..", inode: parent, ftype: FTDir},
	}, entries...)
	b.writeBlock(blk, encodeDirents(all))

	ino := makeTestInode(s_IFDIR|0o755, inodeFlagExtents, tBlockSize, 2)
	setExtents(ino, []extentRun{{logical: 0, physical: uint32(blk), length: 1}})
	b.writeRawInode(num, ino)
	return num
}

// newDirInodeRaw writes the given bytes as a directory's single data
// block without any validation, for malformed-block cases.
func (b *imageBuilder) newDirInodeRaw(block []byte) uint32 {
	num := b.allocInode()
	blk := b.allocBlock()
	b.writeBlock(blk, block)

	ino := makeTestInode(s_IFDIR|0o755, inodeFlagExtents, tBlockSize, 2)
	setExtents(ino, []extentRun{{logical: 0, physical: uint32(blk), length: 1}})
	b.writeRawInode(num, ino)
	return num
}

func (b *imageBuilder) addRootEntry(name string, inode uint32, ftype uint8) {
	b.rootEntries = append(b.rootEntries, testDirent{name: name, inode: inode, ftype: ftype})
}

func (b *imageBuilder) addFile(name string, content []byte) uint32 {
	num := b.newFileInode(content)
	b.addRootEntry(name, num, FTRegFile)
	return num
}

func (b *imageBuilder) addDir(name string, entries []testDirent) uint32 {
	num := b.newDirInode(RootInode, entries)
	b.addRootEntry(name, num, FTDir)
	return num
}

// encodeDirents packs entries into one block; the last record is
// stretched to the block end so the records tile the block exactly.
func encodeDirents(entries []testDirent) []byte {
	blk := make([]byte, tBlockSize)
	off := 0
	for i, e := range entries {
		recLen := align4(8 + len(e.name))
		if i == len(entries)-1 {
			recLen = tBlockSize - off
		}
		binary.LittleEndian.PutUint32(blk[off:], e.inode)
		binary.LittleEndian.PutUint16(blk[off+4:], uint16(recLen))
		blk[off+6] = uint8(len(e.name))
		blk[off+7] = e.ftype
		copy(blk[off+8:], e.name)
		off += recLen
	}
	return blk
}

// setIbodyXattr writes one attribute into the inode's in-record
// region, after the 128+32 byte inode proper.
func (b *imageBuilder) setIbodyXattr(num uint32, index uint8, name string, value []byte) {
	base := inodeOffset(num) + inodeCoreSize + 32
	binary.LittleEndian.PutUint32(b.data[base:], xattrMagic)

	body := b.data[base+xattrIbodyHeaderSize : inodeOffset(num)+tInodeSize]
	valueOff := len(body) - len(value)
	copy(body[valueOff:], value)

	body[0] = uint8(len(name))
	body[1] = index
	binary.LittleEndian.PutUint16(body[2:], uint16(valueOff))
	binary.LittleEndian.PutUint32(body[4:], 0)
	binary.LittleEndian.PutUint32(body[8:], uint32(len(value)))
	copy(body[16:], name)
}

// setIbodyXattrInum writes an in-record attribute whose value lives
// in a separate inode.
func (b *imageBuilder) setIbodyXattrInum(num uint32, index uint8, name string, valueInode uint32, valueSize uint32) {
	base := inodeOffset(num) + inodeCoreSize + 32
	binary.LittleEndian.PutUint32(b.data[base:], xattrMagic)

	body := b.data[base+xattrIbodyHeaderSize : inodeOffset(num)+tInodeSize]
	body[0] = uint8(len(name))
	body[1] = index
	binary.LittleEndian.PutUint32(body[4:], valueInode)
	binary.LittleEndian.PutUint32(body[8:], valueSize)
	copy(body[16:], name)
}

// setBlockXattr allocates an external attribute block with a single
// attribute and points the inode's i_file_acl at it.
func (b *imageBuilder) setBlockXattr(num uint32, index uint8, name string, value []byte) uint64 {
	blk := b.allocBlock()
	block := b.data[blk*tBlockSize : (blk+1)*tBlockSize]

	binary.LittleEndian.PutUint32(block[0:], xattrMagic)
	binary.LittleEndian.PutUint32(block[4:], 1) // refcount
	binary.LittleEndian.PutUint32(block[8:], 1) // blocks

	valueOff := tBlockSize - len(value)
	copy(block[valueOff:], value)

	ent := block[xattrBlockHeaderSize:]
	ent[0] = uint8(len(name))
	ent[1] = index
	binary.LittleEndian.PutUint16(ent[2:], uint16(valueOff))
	binary.LittleEndian.PutUint32(ent[8:], uint32(len(value)))
	copy(ent[16:], name)

	binary.LittleEndian.PutUint32(b.data[inodeOffset(num)+0x68:], uint32(blk))
	return blk
}

// finalize writes the root directory, superblock and group
// descriptor, and returns the finished image.
func (b *imageBuilder) finalize() []byte {
	b.markInode(RootInode)
	rootBlk := b.allocBlock()

	all := append([]testDirent{
		{name: ".", inode: RootInode, ftype: FTDir},
		{name: "..", inode: RootInode, ftype: FTDir},
	}, b.rootEntries...)
	b.writeBlock(rootBlk, encodeDirents(all))

	root := makeTestInode(s_IFDIR|0o755, inodeFlagExtents, tBlockSize, 3)
	setExtents(root, []extentRun{{logical: 0, physical: uint32(rootBlk), length: 1}})
	b.writeRawInode(RootInode, root)

	b.writeSuperblock()
	b.writeGroupDesc()
	return b.data
}

func (b *imageBuilder) writeSuperblock() {
	sb := b.data[superblockOffset:]
	binary.LittleEndian.PutUint32(sb[0x00:], tInodesPerGroup) // inodes count
	binary.LittleEndian.PutUint32(sb[0x04:], tTotalBlocks)
	binary.LittleEndian.PutUint32(sb[0x14:], 1) // first data block
	binary.LittleEndian.PutUint32(sb[0x18:], 0) // log block size
	binary.LittleEndian.PutUint32(sb[0x20:], tBlocksPerGroup)
	binary.LittleEndian.PutUint32(sb[0x28:], tInodesPerGroup)
	binary.LittleEndian.PutUint16(sb[0x38:], ext4Magic)
	binary.LittleEndian.PutUint32(sb[0x4C:], 1) // rev level
	binary.LittleEndian.PutUint32(sb[0x54:], 11)
	binary.LittleEndian.PutUint16(sb[0x58:], tInodeSize)
	binary.LittleEndian.PutUint32(sb[0x60:], incompatFileType|incompatExtents)
	copy(sb[0x68:], tVolumeUUID[:])
	copy(sb[0x78:], "fixture")
}

func (b *imageBuilder) writeGroupDesc() {
	gd := b.data[2*tBlockSize:]
	binary.LittleEndian.PutUint32(gd[0x00:], tBlockBitmap)
	binary.LittleEndian.PutUint32(gd[0x04:], tInodeBitmap)
	binary.LittleEndian.PutUint32(gd[0x08:], tInodeTable)
}

// openFixture builds the image and opens it through the public API.
func openFixture(t *testing.T, b *imageBuilder, opts ...Option) *Volume {
	t.Helper()
	vol, err := OpenBytes(b.finalize(), opts...)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	return vol
}
