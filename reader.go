package ext4

import (
	"fmt"
	"io"
)

// FileReader streams the content of an inode. It implements
// io.Reader, io.Seeker and io.ReaderAt over exactly Size() bytes;
// holes in the block map read as zeros.
//
// A FileReader is cheap: opening one resolves the block map once and
// reads data blocks lazily. The Seeker state makes a single reader
// unsafe for concurrent use; ReadAt alone is safe.
type FileReader struct {
	ino  *Inode
	size int64
	pos  int64

	maps []mapping

	// inline payload and how much of it is actually stored; set only
	// for inline-data inodes
	inline []byte
	stored int64
}

// Open returns a reader over the inode's content. Works for regular
// files, symlinks and raw directory data alike.
func (ino *Inode) Open() (*FileReader, error) {
	fr := &FileReader{ino: ino, size: ino.Size()}

	if ino.hasInlineData() {
		payload := make([]byte, 0, inlineDataSize)
		payload = append(payload, ino.raw.Block[:]...)
		if fr.size > inlineDataSize {
			extra, err := ino.inlineExtra()
			if err != nil {
				return nil, err
			}
			payload = append(payload, extra...)
		}

		fr.stored = int64(len(payload))
		if fr.stored > fr.size {
			fr.stored = fr.size
		}
		fr.inline = payload[:fr.stored]
		return fr, nil
	}

	maps, err := ino.mappings()
	if err != nil {
		return nil, err
	}
	fr.maps = maps
	return fr, nil
}

// Size returns the total length of the stream.
func (fr *FileReader) Size() int64 {
	return fr.size
}

func (fr *FileReader) Read(p []byte) (int, error) {
	n, err := fr.ReadAt(p, fr.pos)
	fr.pos += int64(n)
	return n, err
}

func (fr *FileReader) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = fr.pos + offset
	case io.SeekEnd:
		pos = fr.size + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}

	if pos < 0 {
		return 0, fmt.Errorf("negative seek position %d", pos)
	}
	fr.pos = pos
	return pos, nil
}

func (fr *FileReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative read offset %d", off)
	}
	if off >= fr.size {
		return 0, io.EOF
	}

	n := len(p)
	short := false
	if int64(n) > fr.size-off {
		n = int(fr.size - off)
		short = true
	}
	p = p[:n]

	if fr.ino.hasInlineData() {
		m, err := fr.readInlineAt(p, off)
		if err != nil {
			return m, err
		}
	} else if err := fr.readMappedAt(p, off); err != nil {
		return 0, err
	}

	if short {
		return n, io.EOF
	}
	return n, nil
}

func (fr *FileReader) readInlineAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > fr.stored {
		n := 0
		if off < fr.stored {
			n = copy(p, fr.inline[off:])
		}
		return n, fmt.Errorf("%w: inode %d: %d bytes past %d stored",
			ErrInlineDataOverrun, fr.ino.num, off+int64(len(p))-fr.stored, fr.stored)
	}

	return copy(p, fr.inline[off:]), nil
}

func (fr *FileReader) readMappedAt(p []byte, off int64) error {
	// Unmapped ranges are holes. Zero everything first, then overlay
	// the mapped runs.
	for i := range p {
		p[i] = 0
	}

	bs := fr.ino.vol.BlockSize()
	end := off + int64(len(p))

	for _, m := range fr.maps {
		mStart := int64(m.fileBlock) * bs
		mEnd := mStart + int64(m.count)*bs
		if mEnd <= off || mStart >= end {
			continue
		}

		lo, hi := mStart, mEnd
		if lo < off {
			lo = off
		}
		if hi > end {
			hi = end
		}

		diskOff := int64(m.diskBlock)*bs + (lo - mStart)
		if err := fr.ino.vol.readAt(p[lo-off:hi-off], diskOff); err != nil {
			return err
		}
	}

	return nil
}
