package ext4

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Superblock exposes the decoded filesystem geometry. All accessors
// assemble the 64-bit values from their lo/hi halves when the 64-bit
// feature is active.
type Superblock struct {
	raw rawSuperblock
}

func decodeSuperblock(buf []byte) (*Superblock, error) {
	sb := &Superblock{}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &sb.raw); err != nil {
		return nil, fmt.Errorf("superblock decode error: %w", err)
	}

	return sb, nil
}

// validate performs the structural checks that every later read
// depends on. Magic and feature checks are separate because they can
// be suppressed by options.
func (sb *Superblock) validate() error {
	if sb.raw.LogBlockSize > 6 {
		return fmt.Errorf("%w: log block size %d", ErrCorruptSuperblock, sb.raw.LogBlockSize)
	}
	if sb.raw.BlocksPerGroup == 0 {
		return fmt.Errorf("%w: zero blocks per group", ErrCorruptSuperblock)
	}
	if sb.raw.InodesPerGroup == 0 {
		return fmt.Errorf("%w: zero inodes per group", ErrCorruptSuperblock)
	}
	if sb.InodeSize() < inodeCoreSize {
		return fmt.Errorf("%w: inode size %d", ErrCorruptSuperblock, sb.InodeSize())
	}
	if sb.Has64Bit() && sb.raw.DescSize != 0 && sb.raw.DescSize < 64 {
		return fmt.Errorf("%w: descriptor size %d with 64bit feature", ErrCorruptSuperblock, sb.raw.DescSize)
	}

	return nil
}

func (sb *Superblock) checkMagic() error {
	if sb.raw.Magic != ext4Magic {
		return fmt.Errorf("%w: magic 0x%04X, want 0x%04X", ErrCorruptSuperblock, sb.raw.Magic, ext4Magic)
	}

	return nil
}

func (sb *Superblock) checkFeatures() error {
	if unknown := sb.raw.FeatureIncompat &^ supportedIncompat; unknown != 0 {
		return fmt.Errorf("%w: unsupported incompat features 0x%X", ErrCorruptSuperblock, unknown)
	}

	return nil
}

// BlockSize returns the filesystem block size in bytes.
func (sb *Superblock) BlockSize() int64 {
	return 1024 << sb.raw.LogBlockSize
}

// BlocksCount returns the total number of blocks in the filesystem.
func (sb *Superblock) BlocksCount() uint64 {
	n := uint64(sb.raw.BlocksCountLo)
	if sb.Has64Bit() {
		n |= uint64(sb.raw.BlocksCountHi) << 32
	}
	return n
}

// InodesCount returns the total number of inodes, used and free.
func (sb *Superblock) InodesCount() uint32 {
	return sb.raw.InodesCount
}

// InodeSize returns the on-disk inode record size. Revision 0
// filesystems predate the field and always use 128 bytes.
func (sb *Superblock) InodeSize() uint16 {
	if sb.raw.RevLevel == 0 {
		return inodeCoreSize
	}
	return sb.raw.InodeSize
}

// BlocksPerGroup returns the number of blocks per block group.
func (sb *Superblock) BlocksPerGroup() uint32 {
	return sb.raw.BlocksPerGroup
}

// InodesPerGroup returns the number of inodes per block group.
func (sb *Superblock) InodesPerGroup() uint32 {
	return sb.raw.InodesPerGroup
}

// FirstDataBlock is 1 on 1 KiB block filesystems and 0 otherwise.
func (sb *Superblock) FirstDataBlock() uint32 {
	return sb.raw.FirstDataBlock
}

// Has64Bit reports whether the 64-bit feature is active, which widens
// block numbers and group descriptors.
func (sb *Superblock) Has64Bit() bool {
	return sb.raw.FeatureIncompat&incompat64Bit != 0
}

// DescSize returns the group descriptor record size: 32 bytes
// classically, 64 (or more) with the 64-bit feature.
func (sb *Superblock) DescSize() uint32 {
	if sb.Has64Bit() && sb.raw.DescSize >= 64 {
		return uint32(sb.raw.DescSize)
	}
	return 32
}

// GroupCount returns the number of block groups.
func (sb *Superblock) GroupCount() uint64 {
	blocks := sb.BlocksCount() - uint64(sb.raw.FirstDataBlock)
	per := uint64(sb.raw.BlocksPerGroup)
	return (blocks + per - 1) / per
}

// UUID returns the volume UUID.
func (sb *Superblock) UUID() uuid.UUID {
	return uuid.UUID(sb.raw.UUID)
}

// VolumeName returns the volume label, which may be empty.
func (sb *Superblock) VolumeName() string {
	return strings.TrimRight(string(sb.raw.VolumeName[:]), "\x00")
}

// FeatureIncompat returns the raw incompatible feature bitmap.
func (sb *Superblock) FeatureIncompat() uint32 {
	return sb.raw.FeatureIncompat
}

// FeatureCompat returns the raw compatible feature bitmap.
func (sb *Superblock) FeatureCompat() uint32 {
	return sb.raw.FeatureCompat
}

// FeatureROCompat returns the raw read-only compatible feature bitmap.
func (sb *Superblock) FeatureROCompat() uint32 {
	return sb.raw.FeatureROCompat
}
