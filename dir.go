package ext4

import (
	"encoding/binary"
	"fmt"
)

// DirEntry is one directory entry as stored on disk.
type DirEntry struct {
	Name     string
	Inode    uint32
	FileType uint8 // one of the FT* constants
}

// DirIterator walks a directory's entries in on-disk order, loading
// one block at a time. Entries with a zero inode and the fake
// checksum entries the kernel appends to indexed directories are
// skipped. Reset rewinds to the first entry.
type DirIterator struct {
	ino *Inode
	r   *FileReader

	synth []DirEntry // inline directories: implicit "." and ".."
	chunk []byte
	next  int64 // file offset of the next chunk to load
	off   int

	cur DirEntry
	err error
}

// OpenDir returns an iterator over the inode's directory entries.
// Directories are always enumerated by linear scan; hashed indexes
// are never consulted.
func (ino *Inode) OpenDir() (*DirIterator, error) {
	if !ino.IsDir() && !ino.vol.ignoreFlags {
		return nil, fmt.Errorf("%w: inode %d", ErrNotADirectory, ino.num)
	}

	r, err := ino.Open()
	if err != nil {
		return nil, err
	}

	it := &DirIterator{ino: ino, r: r}
	if err := it.Reset(); err != nil {
		return nil, err
	}
	return it, nil
}

// Reset rewinds the iterator to the first entry.
func (it *DirIterator) Reset() error {
	it.synth = nil
	it.chunk = nil
	it.next = 0
	it.off = 0
	it.cur = DirEntry{}
	it.err = nil

	if !it.ino.hasInlineData() {
		return nil
	}

	// Inline directories store the parent inode in the first four
	// bytes and omit the dot entries; synthesize them.
	size := it.r.Size()
	if size < 4 {
		return fmt.Errorf("%w: inode %d: inline directory of %d bytes", ErrCorruptDirectoryBlock, it.ino.num, size)
	}

	payload := make([]byte, size)
	if _, err := it.r.ReadAt(payload, 0); err != nil {
		return err
	}

	parent := binary.LittleEndian.Uint32(payload)
	it.synth = []DirEntry{
		{Name: ".", Inode: it.ino.num, FileType: FTDir},
		{Name: "..", Inode: parent, FileType: FTDir},
	}
	it.chunk = payload[4:]
	it.next = size
	return nil
}

// Next advances to the next entry. It returns false at the end of the
// directory or on error; check Err afterwards.
func (it *DirIterator) Next() bool {
	if it.err != nil {
		return false
	}

	if len(it.synth) > 0 {
		it.cur = it.synth[0]
		it.synth = it.synth[1:]
		return true
	}

	for {
		if it.off >= len(it.chunk) {
			if !it.loadChunk() {
				return false
			}
		}

		entry, ok := it.parseEntry()
		if it.err != nil {
			return false
		}
		if ok {
			it.cur = entry
			return true
		}
	}
}

// Entry returns the entry Next advanced to.
func (it *DirIterator) Entry() DirEntry {
	return it.cur
}

// Err returns the error that stopped iteration, if any.
func (it *DirIterator) Err() error {
	return it.err
}

func (it *DirIterator) loadChunk() bool {
	size := it.r.Size()
	if it.next >= size {
		return false
	}

	n := it.ino.vol.BlockSize()
	if n > size-it.next {
		n = size - it.next
	}

	chunk := make([]byte, n)
	if _, err := it.r.ReadAt(chunk, it.next); err != nil {
		it.err = err
		return false
	}

	it.chunk = chunk
	it.next += n
	it.off = 0
	return true
}

// parseEntry decodes the record at it.off and advances past it. The
// second return is false for skipped records (unused or checksum).
func (it *DirIterator) parseEntry() (DirEntry, bool) {
	if len(it.chunk)-it.off < 8 {
		it.err = fmt.Errorf("%w: inode %d: truncated entry at offset %d", ErrCorruptDirectoryBlock, it.ino.num, it.off)
		return DirEntry{}, false
	}

	rec := it.chunk[it.off:]
	inode := binary.LittleEndian.Uint32(rec)
	recLen := int(binary.LittleEndian.Uint16(rec[4:]))
	nameLen := int(rec[6])
	fileType := rec[7]

	if recLen < 8 || it.off+recLen > len(it.chunk) {
		it.err = fmt.Errorf("%w: inode %d: record length %d at offset %d", ErrCorruptDirectoryBlock, it.ino.num, recLen, it.off)
		return DirEntry{}, false
	}
	if 8+nameLen > recLen {
		it.err = fmt.Errorf("%w: inode %d: name length %d exceeds record %d", ErrCorruptDirectoryBlock, it.ino.num, nameLen, recLen)
		return DirEntry{}, false
	}

	it.off += recLen

	if inode == 0 || fileType == ftChecksum {
		return DirEntry{}, false
	}

	return DirEntry{
		Name:     string(rec[8 : 8+nameLen]),
		Inode:    inode,
		FileType: fileType,
	}, true
}

// ReadDir collects all entries of a directory inode in on-disk order.
func (ino *Inode) ReadDir() ([]DirEntry, error) {
	it, err := ino.OpenDir()
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	for it.Next() {
		entries = append(entries, it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
