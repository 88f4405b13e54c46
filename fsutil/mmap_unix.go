//go:build unix

package fsutil

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int) ([]byte, func(), error) {
	b, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, os.NewSyscallError("mmap", err)
	}
	// snapshots are always decoded front to back
	err = unix.Madvise(b, unix.MADV_SEQUENTIAL)
	if err != nil && err != unix.ENOSYS {
		unix.Munmap(b)
		return nil, nil, os.NewSyscallError("madvise", err)
	}
	return b, func() { unix.Munmap(b) }, nil
}
