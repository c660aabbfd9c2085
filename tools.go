package ext4

import (
	"fmt"
	"sort"
	"strings"
)

// ModeString renders a mode word the way ls does, including the
// setuid, setgid and sticky letters.
func ModeString(mode uint16) string {
	var b strings.Builder

	switch mode & 0xF000 {
	case s_IFIFO:
		b.WriteByte('p')
	case s_IFCHR:
		b.WriteByte('c')
	case s_IFDIR:
		b.WriteByte('d')
	case s_IFBLK:
		b.WriteByte('b')
	case s_IFLNK:
		b.WriteByte('l')
	case s_IFSOCK:
		b.WriteByte('s')
	default:
		b.WriteByte('-')
	}

	rwx := func(r, w, x uint16, special uint16, setLower, setUpper byte) {
		if mode&r != 0 {
			b.WriteByte('r')
		} else {
			b.WriteByte('-')
		}
		if mode&w != 0 {
			b.WriteByte('w')
		} else {
			b.WriteByte('-')
		}
		switch {
		case mode&special != 0 && mode&x != 0:
			b.WriteByte(setLower)
		case mode&special != 0:
			b.WriteByte(setUpper)
		case mode&x != 0:
			b.WriteByte('x')
		default:
			b.WriteByte('-')
		}
	}

	rwx(s_IRUSR, s_IWUSR, s_IXUSR, s_ISUID, 's', 'S')
	rwx(s_IRGRP, s_IWGRP, s_IXGRP, s_ISGID, 's', 'S')
	rwx(s_IROTH, s_IWOTH, s_IXOTH, s_ISVTX, 't', 'T')

	return b.String()
}

// ReadableSize renders a byte count in binary units.
func ReadableSize(size int64) string {
	if size < 1024 {
		return fmt.Sprintf("%d bytes", size)
	}

	units := []string{"KiB", "MiB", "GiB", "TiB", "PiB", "EiB", "ZiB", "YiB"}
	value := float64(size)
	unit := ""
	for _, unit = range units {
		value /= 1024
		if value < 1024 {
			break
		}
	}

	return fmt.Sprintf("%.2f %s", value, unit)
}

// ListDir returns a directory's entries ordered for presentation:
// directories first, then everything else, each group sorted without
// regard to case.
func ListDir(ino *Inode) ([]DirEntry, error) {
	entries, err := ino.ReadDir()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].FileType == FTDir, entries[j].FileType == FTDir
		if di != dj {
			return di
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})

	return entries, nil
}
