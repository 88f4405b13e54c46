//go:build !unix

package fsutil

import (
	"io"
	"os"
)

func mapFile(f *os.File, size int) ([]byte, func(), error) {
	b := make([]byte, size)
	_, err := io.ReadFull(f, b)
	if err != nil {
		return nil, nil, err
	}
	return b, func() {}, nil
}
