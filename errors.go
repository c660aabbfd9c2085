package ext4

import "errors"

// Sentinel errors returned by the decoder. Call sites wrap them with
// fmt.Errorf("...: %w", ...) so callers can match with errors.Is while
// still seeing where the failure happened.
var (
	// ErrCorruptSuperblock reports a superblock that fails magic or
	// feature validation, or one that lies outside the image.
	ErrCorruptSuperblock = errors.New("corrupt superblock")

	// ErrCorruptGroupTable reports a block group descriptor table that
	// does not fit inside the image.
	ErrCorruptGroupTable = errors.New("corrupt block group descriptor table")

	// ErrInvalidInode reports an inode index of zero or one beyond the
	// inode count of the filesystem.
	ErrInvalidInode = errors.New("invalid inode index")

	// ErrCorruptExtentTree reports a malformed extent tree: bad magic,
	// impossible depth, entry overflow or a block outside the volume.
	ErrCorruptExtentTree = errors.New("corrupt extent tree")

	// ErrCorruptDirectoryBlock reports a directory block whose record
	// lengths do not tile the block.
	ErrCorruptDirectoryBlock = errors.New("corrupt directory block")

	// ErrCorruptXattrBlock reports an extended attribute block or
	// in-inode region with a bad magic or a malformed entry list.
	ErrCorruptXattrBlock = errors.New("corrupt extended attribute block")

	// ErrInlineDataOverrun reports an inline-data inode whose recorded
	// size exceeds the data actually stored in the inode.
	ErrInlineDataOverrun = errors.New("inline data overrun")

	// ErrPathNotFound reports a path component missing from its
	// parent directory.
	ErrPathNotFound = errors.New("path not found")

	// ErrNotADirectory reports an attempt to descend through an inode
	// that is not a directory.
	ErrNotADirectory = errors.New("not a directory")
)
