package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	ext4 "github.com/cubinator/ext4"
)

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	offset := fs.Int64("offset", 0, "byte offset of the filesystem inside the image")
	ignoreMagic := fs.Bool("ignore-magic", false, "skip magic number validation")
	ignoreFlags := fs.Bool("ignore-flags", false, "skip incompatible feature validation")
	long := fs.Bool("l", false, "long listing (ls only)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	imagePath := fs.Arg(0)
	fsPath := "/"
	if fs.NArg() > 1 {
		fsPath = fs.Arg(1)
	}

	var opts []ext4.Option
	if *offset != 0 {
		opts = append(opts, ext4.WithOffset(*offset))
	}
	if *ignoreMagic {
		opts = append(opts, ext4.WithIgnoreMagic())
	}
	if *ignoreFlags {
		opts = append(opts, ext4.WithIgnoreFlags())
	}

	vol, err := ext4.OpenFile(imagePath, opts...)
	if err != nil {
		log.Fatalf("open %s: %v", imagePath, err)
	}
	defer vol.Close()

	switch cmd {
	case "ls":
		err = runLs(vol, fsPath, *long)
	case "cat":
		err = runCat(vol, fsPath)
	case "stat":
		err = runStat(vol, fsPath)
	case "xattrs":
		err = runXattrs(vol, fsPath)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func usage() {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "usage: %s [ls|cat|stat|xattrs] [flags] <image> [path]\n", prog)
}

func runLs(vol *ext4.Volume, fsPath string, long bool) error {
	ino, err := vol.GetInodeByPath(fsPath)
	if err != nil {
		return err
	}

	if !ino.IsDir() {
		printEntry(ino, filepath.Base(fsPath), long)
		return nil
	}

	entries, err := ext4.ListDir(ino)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		child, err := vol.GetInode(e.Inode)
		if err != nil {
			return err
		}
		printEntry(child, e.Name, long)
	}

	return nil
}

func printEntry(ino *ext4.Inode, name string, long bool) {
	if ino.IsDir() {
		name += "/"
	}
	if !long {
		fmt.Println(name)
		return
	}

	fmt.Printf("%8d %s %12d %s %s\n",
		ino.Num(), ext4.ModeString(ino.Mode()), ino.Size(),
		ino.ModTime().Format("Jan _2 15:04"), name)
}

func runCat(vol *ext4.Volume, fsPath string) error {
	ino, err := vol.GetInodeByPath(fsPath)
	if err != nil {
		return err
	}
	if ino.IsDir() {
		return fmt.Errorf("%s: is a directory", fsPath)
	}

	r, err := ino.Open()
	if err != nil {
		return err
	}

	_, err = io.Copy(os.Stdout, r)
	return err
}

func runStat(vol *ext4.Volume, fsPath string) error {
	ino, err := vol.GetInodeByPath(fsPath)
	if err != nil {
		return err
	}

	fmt.Printf("  File: %s\n", fsPath)
	fmt.Printf(" Inode: %d\n", ino.Num())
	fmt.Printf("  Size: %d (%s)\n", ino.Size(), ext4.ReadableSize(ino.Size()))
	fmt.Printf("  Mode: %s\n", ext4.ModeString(ino.Mode()))
	fmt.Printf(" Links: %d\n", ino.LinksCount())
	fmt.Printf(" Owner: %d:%d\n", ino.UID(), ino.GID())
	fmt.Printf("Modify: %s\n", ino.ModTime())
	fmt.Printf("Volume: %s\n", vol.UUID())

	if ino.IsSymlink() {
		target, err := ino.Target()
		if err != nil {
			return err
		}
		fmt.Printf("Target: %s\n", target)
	}

	return nil
}

func runXattrs(vol *ext4.Volume, fsPath string) error {
	ino, err := vol.GetInodeByPath(fsPath)
	if err != nil {
		return err
	}

	attrs, err := ino.Xattrs()
	if err != nil {
		return err
	}

	for _, a := range attrs {
		fmt.Printf("%s=%q\n", a.Name, a.Value)
	}

	return nil
}
