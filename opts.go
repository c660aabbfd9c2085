package ext4

// Option is a functional option for configuring how a Volume is
// opened.
type Option func(*Volume)

// WithOffset sets the byte offset of the filesystem inside the image,
// for images carrying a partition table in front of the filesystem.
func WithOffset(offset int64) Option {
	return func(v *Volume) {
		v.offset = offset
	}
}

// WithIgnoreMagic disables magic number validation of the superblock
// and of extent tree nodes and extended attribute blocks. Useful for
// partially overwritten or damaged images.
func WithIgnoreMagic() Option {
	return func(v *Volume) {
		v.ignoreMagic = true
	}
}

// WithIgnoreFlags disables the incompatible-feature check at open time
// and the directory-type check during path resolution.
func WithIgnoreFlags() Option {
	return func(v *Volume) {
		v.ignoreFlags = true
	}
}
