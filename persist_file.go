package revdb

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/andreyvit/revdb/fsutil"
	"github.com/cespare/xxhash/v2"
)

// Msgpack snapshots start with a magic string and an xxhash64 checksum of
// the payload. JSON snapshots are plain JSON so that they stay editable.
var snapshotMagic = []byte("REVDB\x00M1")

const snapshotHeaderSize = 16

// filePersister rewrites the whole database into a single snapshot file.
type filePersister struct {
	path     string
	enc      encodingMethod
	logger   *slog.Logger
	lastSize int64
}

func newFilePersister(path string, enc encodingMethod, logger *slog.Logger) *filePersister {
	return &filePersister{path: path, enc: enc, logger: logger}
}

func (p *filePersister) load() (*state, error) {
	st, err := p.loadFile(p.path)
	if err == nil {
		return st, nil
	}
	primaryErr := err
	if errors.Is(err, fs.ErrNotExist) {
		primaryErr = nil
	}

	// A crash in the middle of a save can leave only the backup behind.
	bak := fsutil.BackupPath(p.path)
	st, err = p.loadFile(bak)
	if err == nil {
		p.logger.Warn("revdb: loaded backup snapshot", "path", p.path, "err", primaryErr)
		return st, nil
	}
	if primaryErr != nil {
		return nil, primaryErr
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return nil, err
}

func (p *filePersister) loadFile(path string) (*state, error) {
	data, release, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defer release()
	p.lastSize = int64(len(data))

	payload, err := p.unframe(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, detachDataError(err))
	}
	img := new(image)
	err = p.enc.DecodeValue(payload, img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, detachDataError(err))
	}
	st, err := stateFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return st, nil
}

func (p *filePersister) save(st *state, d *dirtySet) error {
	enc := p.enc
	if enc == JSON && st.Config.Pretty {
		enc = PrettyJSON
	}

	var buf []byte
	if enc == MsgPack {
		buf = make([]byte, snapshotHeaderSize, 4096)
	}
	buf, err := enc.EncodeValue(buf, st.image())
	if err != nil {
		return err
	}
	if enc == MsgPack {
		copy(buf, snapshotMagic)
		var bb bytesBuilder
		bb.AppendFixedUint64(xxhash.Sum64(buf[snapshotHeaderSize:]))
		copy(buf[len(snapshotMagic):], bb.Buf)
	} else {
		buf = append(buf, '\n')
	}

	err = fsutil.WriteFileAtomic(p.path, buf, 0o666)
	if err != nil {
		return err
	}
	p.lastSize = int64(len(buf))
	return nil
}

func (p *filePersister) unframe(data []byte) ([]byte, error) {
	if p.enc != MsgPack {
		return data, nil
	}
	d := makeByteDecoder(data)
	magic, err := d.Raw(len(snapshotMagic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, snapshotMagic) {
		return nil, dataErrf(data, 0, nil, "not a revdb snapshot")
	}
	sum, err := d.FixedUint64()
	if err != nil {
		return nil, err
	}
	if actual := xxhash.Sum64(d.Buf); actual != sum {
		return nil, dataErrf(data, d.Off(), nil, "snapshot checksum mismatch: %016x != %016x", actual, sum)
	}
	return d.Buf, nil
}

func (p *filePersister) size() int64 {
	return p.lastSize
}

func (p *filePersister) close() error {
	return nil
}

// detachDataError copies the data referenced by a DataError, which might
// point into a mapping that is about to be released.
func detachDataError(err error) error {
	var de *DataError
	if errors.As(err, &de) {
		de.Data = bytes.Clone(de.Data)
	}
	return err
}
