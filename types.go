package ext4

const (
	// Superblock is always at byte offset 1024 from the filesystem start
	superblockOffset = 1024

	// Magic numbers
	ext4Magic   = 0xEF53
	extentMagic = 0xF30A
	xattrMagic  = 0xEA020000

	// RootInode is the fixed inode index of the root directory.
	RootInode = 2

	// Extent trees store their depth in the node header. A conforming
	// tree is at most 5 levels deep; anything deeper is corrupt.
	maxExtentDepth = 5

	// A fast symlink or inline-data inode stores its payload in the
	// 60-byte i_block area.
	inlineDataSize = 60

	// Directory entry file types
	FTUnknown  = 0
	FTRegFile  = 1
	FTDir      = 2
	FTChrDev   = 3
	FTBlkDev   = 4
	FTFifo     = 5
	FTSock     = 6
	FTSymlink  = 7
	ftChecksum = 0xDE // fake dirent carrying the tail checksum

	// Inode mode bits
	s_IXOTH  = 0o0001
	s_IWOTH  = 0o0002
	s_IROTH  = 0o0004
	s_IXGRP  = 0o0010
	s_IWGRP  = 0o0020
	s_IRGRP  = 0o0040
	s_IXUSR  = 0o0100
	s_IWUSR  = 0o0200
	s_IRUSR  = 0o0400
	s_ISVTX  = 0o1000
	s_ISGID  = 0o2000
	s_ISUID  = 0o4000
	s_IFIFO  = 0x1000
	s_IFCHR  = 0x2000
	s_IFDIR  = 0x4000
	s_IFBLK  = 0x6000
	s_IFREG  = 0x8000
	s_IFLNK  = 0xA000
	s_IFSOCK = 0xC000

	// Inode flags
	inodeFlagIndex      = 0x00001000 // directory uses hashed indexes
	inodeFlagExtents    = 0x00080000
	inodeFlagEAInode    = 0x00200000 // inode holds a large xattr value
	inodeFlagInlineData = 0x10000000

	// Incompatible feature flags
	incompatFileType   = 0x0002
	incompatRecover    = 0x0004
	incompatJournalDev = 0x0008
	incompatExtents    = 0x0040
	incompat64Bit      = 0x0080
	incompatMMP        = 0x0100
	incompatFlexBG     = 0x0200
	incompatEAInode    = 0x0400
	incompatCsumSeed   = 0x2000
	incompatLargeDir   = 0x4000
	incompatInlineData = 0x8000

	// Compatible features (informational only for a reader)
	compatExtAttr  = 0x0008
	compatDirIndex = 0x0020

	// Read-only compatible features
	roCompatSparseSuper = 0x0001
	roCompatLargeFile   = 0x0002
	roCompatExtraIsize  = 0x0040

	// Xattr name indexes (namespaces)
	xattrIndexNone            = 0
	xattrIndexUser            = 1
	xattrIndexPosixACLAccess  = 2
	xattrIndexPosixACLDefault = 3
	xattrIndexTrusted         = 4
	xattrIndexSecurity        = 6
	xattrIndexSystem          = 7
	xattrIndexRichACL         = 8

	// Xattr layout
	xattrBlockHeaderSize = 32
	xattrIbodyHeaderSize = 4
	xattrEntryHeaderSize = 16

	// Size of the fixed (rev 0) inode record; extended fields follow it
	inodeCoreSize = 128
)

// incompat features this reader actually understands. Anything else is
// rejected at open time unless WithIgnoreFlags is set.
const supportedIncompat = incompatFileType | incompatRecover | incompatJournalDev |
	incompatExtents | incompat64Bit | incompatMMP | incompatFlexBG |
	incompatEAInode | incompatCsumSeed | incompatLargeDir | incompatInlineData

// ============================================================================
// On-disk structures (must match the kernel layout exactly)
// ============================================================================

// rawSuperblock is the ext4 superblock (1024 bytes) as defined by the
// kernel's struct ext4_super_block. Decoded little-endian at byte
// offset 1024 of the filesystem.
type rawSuperblock struct {
	InodesCount       uint32     // 0x00
	BlocksCountLo     uint32     // 0x04
	RBlocksCountLo    uint32     // 0x08
	FreeBlocksCountLo uint32     // 0x0C
	FreeInodesCount   uint32     // 0x10
	FirstDataBlock    uint32     // 0x14
	LogBlockSize      uint32     // 0x18: block_size = 1024 << log_block_size
	LogClusterSize    uint32     // 0x1C
	BlocksPerGroup    uint32     // 0x20
	ClustersPerGroup  uint32     // 0x24
	InodesPerGroup    uint32     // 0x28
	MTime             uint32     // 0x2C
	WTime             uint32     // 0x30
	MntCount          uint16     // 0x34
	MaxMntCount       uint16     // 0x36
	Magic             uint16     // 0x38: 0xEF53
	State             uint16     // 0x3A
	Errors            uint16     // 0x3C
	MinorRevLevel     uint16     // 0x3E
	LastCheck         uint32     // 0x40
	CheckInterval     uint32     // 0x44
	CreatorOS         uint32     // 0x48
	RevLevel          uint32     // 0x4C: 0 = good old, 1 = dynamic
	DefResUID         uint16     // 0x50
	DefResGID         uint16     // 0x52
	FirstInode        uint32     // 0x54
	InodeSize         uint16     // 0x58
	BlockGroupNr      uint16     // 0x5A
	FeatureCompat     uint32     // 0x5C
	FeatureIncompat   uint32     // 0x60
	FeatureROCompat   uint32     // 0x64
	UUID              [16]byte   // 0x68
	VolumeName        [16]byte   // 0x78
	LastMounted       [64]byte   // 0x88
	AlgorithmUsageBmp uint32     // 0xC8
	PreallocBlocks    uint8      // 0xCC
	PreallocDirBlocks uint8      // 0xCD
	ReservedGDTBlocks uint16     // 0xCE
	JournalUUID       [16]byte   // 0xD0
	JournalInum       uint32     // 0xE0
	JournalDev        uint32     // 0xE4
	LastOrphan        uint32     // 0xE8
	HashSeed          [4]uint32  // 0xEC
	DefHashVersion    uint8      // 0xFC
	JnlBackupType     uint8      // 0xFD
	DescSize          uint16     // 0xFE: group descriptor size, 64-bit mode only
	DefaultMountOpts  uint32     // 0x100
	FirstMetaBg       uint32     // 0x104
	MkfsTime          uint32     // 0x108
	JnlBlocks         [17]uint32 // 0x10C
	BlocksCountHi     uint32     // 0x150
	RBlocksCountHi    uint32     // 0x154
	FreeBlocksCountHi uint32     // 0x158
	MinExtraIsize     uint16     // 0x15C
	WantExtraIsize    uint16     // 0x15E
	Flags             uint32     // 0x160
	RaidStride        uint16     // 0x164
	MmpInterval       uint16     // 0x166
	MmpBlock          uint64     // 0x168
	RaidStripeWidth   uint32     // 0x170
	LogGroupsPerFlex  uint8      // 0x174
	ChecksumType      uint8      // 0x175
	ReservedPad       uint16     // 0x176
	KBytesWritten     uint64     // 0x178
	SnapshotInum      uint32     // 0x180
	SnapshotID        uint32     // 0x184
	SnapshotRBlksCnt  uint64     // 0x188
	SnapshotList      uint32     // 0x190
	ErrorCount        uint32     // 0x194
	FirstErrorTime    uint32     // 0x198
	FirstErrorIno     uint32     // 0x19C
	FirstErrorBlock   uint64     // 0x1A0
	FirstErrorFunc    [32]byte   // 0x1A8
	FirstErrorLine    uint32     // 0x1C8
	LastErrorTime     uint32     // 0x1CC
	LastErrorIno      uint32     // 0x1D0
	LastErrorLine     uint32     // 0x1D4
	LastErrorBlock    uint64     // 0x1D8
	LastErrorFunc     [32]byte   // 0x1E0
	MountOpts         [64]byte   // 0x200
	UsrQuotaInum      uint32     // 0x240
	GrpQuotaInum      uint32     // 0x244
	OverheadBlocks    uint32     // 0x248
	BackupBgs         [2]uint32  // 0x24C
	EncryptAlgos      [4]uint8   // 0x254
	EncryptPwSalt     [16]byte   // 0x258
	LpfIno            uint32     // 0x268
	PrjQuotaInum      uint32     // 0x26C
	ChecksumSeed      uint32     // 0x270
	WtimeHi           uint8      // 0x274
	MtimeHi           uint8      // 0x275
	MkfsTimeHi        uint8      // 0x276
	LastcheckHi       uint8      // 0x277
	FirstErrorTimeHi  uint8      // 0x278
	LastErrorTimeHi   uint8      // 0x279
	ErrorTimePad      [2]uint8   // 0x27A
	Encoding          uint16     // 0x27C
	EncodingFlags     uint16     // 0x27E
	OrphanFileInum    uint32     // 0x280
	Reserved          [94]uint32 // 0x284
	Checksum          uint32     // 0x3FC
}

// groupDesc32 is the 32-byte block group descriptor used by
// filesystems without the 64-bit feature.
type groupDesc32 struct {
	BlockBitmapLo     uint32 // 0x00
	InodeBitmapLo     uint32 // 0x04
	InodeTableLo      uint32 // 0x08
	FreeBlocksCountLo uint16 // 0x0C
	FreeInodesCountLo uint16 // 0x0E
	UsedDirsCountLo   uint16 // 0x10
	Flags             uint16 // 0x12
	ExcludeBitmapLo   uint32 // 0x14
	BlockBitmapCsumLo uint16 // 0x18
	InodeBitmapCsumLo uint16 // 0x1A
	ItableUnusedLo    uint16 // 0x1C
	Checksum          uint16 // 0x1E
}

// groupDesc64 is the 64-byte descriptor used when INCOMPAT_64BIT is
// set; the first 32 bytes repeat the groupDesc32 layout.
type groupDesc64 struct {
	groupDesc32
	BlockBitmapHi     uint32 // 0x20
	InodeBitmapHi     uint32 // 0x24
	InodeTableHi      uint32 // 0x28
	FreeBlocksCountHi uint16 // 0x2C
	FreeInodesCountHi uint16 // 0x2E
	UsedDirsCountHi   uint16 // 0x30
	ItableUnusedHi    uint16 // 0x32
	ExcludeBitmapHi   uint32 // 0x34
	BlockBitmapCsumHi uint16 // 0x38
	InodeBitmapCsumHi uint16 // 0x3A
	Reserved          uint32 // 0x3C
}

// rawInode is the ext4 inode record (160 bytes including the extended
// fields). Filesystems with a smaller inode size simply truncate it;
// the decoder zero-fills the missing tail.
type rawInode struct {
	Mode        uint16   // 0x00
	UID         uint16   // 0x02
	SizeLo      uint32   // 0x04
	Atime       uint32   // 0x08
	Ctime       uint32   // 0x0C
	Mtime       uint32   // 0x10
	Dtime       uint32   // 0x14
	GID         uint16   // 0x18
	LinksCount  uint16   // 0x1A
	BlocksLo    uint32   // 0x1C: in 512-byte units
	Flags       uint32   // 0x20
	Version     uint32   // 0x24: osd1
	Block       [60]byte // 0x28: block pointers / extent tree / inline payload
	Generation  uint32   // 0x64
	FileACLLo   uint32   // 0x68: xattr block
	SizeHi      uint32   // 0x6C
	ObsoFAddr   uint32   // 0x70
	BlocksHi    uint16   // 0x74: osd2
	FileACLHi   uint16   // 0x76
	UIDHi       uint16   // 0x78
	GIDHi       uint16   // 0x7A
	ChecksumLo  uint16   // 0x7C
	ReservedPad uint16   // 0x7E
	ExtraIsize  uint16   // 0x80
	ChecksumHi  uint16   // 0x82
	CtimeExtra  uint32   // 0x84
	MtimeExtra  uint32   // 0x88
	AtimeExtra  uint32   // 0x8C
	Crtime      uint32   // 0x90
	CrtimeExtra uint32   // 0x94
	VersionHi   uint32   // 0x98
	Projid      uint32   // 0x9C
}

// extentHeader heads every extent tree node, whether embedded in the
// inode or occupying a full block.
type extentHeader struct {
	Magic      uint16 // 0x00: 0xF30A
	Entries    uint16 // 0x02
	Max        uint16 // 0x04
	Depth      uint16 // 0x06
	Generation uint32 // 0x08
}

// extentLeaf is one leaf entry: a contiguous logical-to-physical run.
type extentLeaf struct {
	Block   uint32 // 0x00: first logical block covered
	Len     uint16 // 0x04: > 32768 marks the extent uninitialized
	StartHi uint16 // 0x06
	StartLo uint32 // 0x08
}

// extentIdx is one internal-node entry pointing at a child node block.
type extentIdx struct {
	Block  uint32 // 0x00: first logical block covered by the child
	LeafLo uint32 // 0x04
	LeafHi uint16 // 0x08
	Unused uint16 // 0x0A
}

// xattrBlockHeader prefixes a dedicated extended-attribute block. The
// block may be shared by several inodes (RefCount > 1) and is never
// written by this package.
type xattrBlockHeader struct {
	Magic    uint32    // 0x00: 0xEA020000
	RefCount uint32    // 0x04
	Blocks   uint32    // 0x08: must be 1
	Hash     uint32    // 0x0C
	Checksum uint32    // 0x10
	Reserved [3]uint32 // 0x14
}

// xattrEntry is the fixed part of one attribute entry; the name
// follows it and the whole record is padded to 4 bytes.
type xattrEntry struct {
	NameLen   uint8  // 0x00
	NameIndex uint8  // 0x01
	ValueOffs uint16 // 0x02
	ValueInum uint32 // 0x04: non-zero when the value lives in an EA inode
	ValueSize uint32 // 0x08
	Hash      uint32 // 0x0C
}
