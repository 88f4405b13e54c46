// Package fsutil implements crash-safe whole-file replacement and mmap-backed
// reading of database snapshot files.
//
// WriteFileAtomic never leaves the destination path without a complete file:
//
//  1. The new contents are written to "<path>.tmp" and synced with Fdatasync.
//  2. The current file, if any, is renamed to "<path>.bak".
//  3. The temporary file is renamed to path.
//  4. The backup is removed.
//
// If step 3 fails, the backup is renamed back. A crash between steps 2 and 3
// leaves only the backup in place, which is why readers should fall back to
// BackupPath(path) when path is missing or unreadable.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	tempSuffix   = ".tmp"
	backupSuffix = ".bak"
)

func BackupPath(path string) string {
	return path + backupSuffix
}

func TempPath(path string) string {
	return path + tempSuffix
}

// WriteFileAtomic replaces the file at path with data, keeping the previous
// version around until the new one is fully in place.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp := TempPath(path)
	err := writeSynced(tmp, data, perm)
	if err != nil {
		os.Remove(tmp)
		return err
	}

	bak := BackupPath(path)
	hasOld := true
	err = os.Rename(path, bak)
	if errors.Is(err, fs.ErrNotExist) {
		hasOld = false
	} else if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("backing up %s: %w", filepath.Base(path), err)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		if hasOld {
			if rerr := os.Rename(bak, path); rerr != nil {
				return fmt.Errorf("installing %s: %w (restoring backup also failed: %v)", filepath.Base(path), err, rerr)
			}
		}
		os.Remove(tmp)
		return fmt.Errorf("installing %s: %w", filepath.Base(path), err)
	}

	syncDir(filepath.Dir(path))

	if hasOld {
		err = os.Remove(bak)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing backup of %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func writeSynced(path string, data []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = Fdatasync(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// syncDir makes renames durable on file systems that need it. Errors are
// ignored, some platforms can't open directories for syncing.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	f.Sync()
	f.Close()
}

// ReadFile returns the contents of the file, memory-mapped where supported.
// The returned slice is valid until release is called. An empty file yields
// a nil slice.
func ReadFile(path string) (data []byte, release func(), err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := st.Size()
	if size == 0 {
		return nil, func() {}, nil
	}
	if size > maxMapSize {
		return nil, nil, fmt.Errorf("%s: file too large (%d bytes)", filepath.Base(path), size)
	}
	return mapFile(f, int(size))
}

// Fdatasync flushes the file's data (but not necessarily its metadata) to
// stable storage.
//
// Errors returned by Fdatasync are not recoverable: many file systems mark
// dirty pages as clean after a failed sync, so the on-disk state is unknown.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}
