package revdb

import (
	"fmt"
)

// Bucket layout of the store persister.
const (
	bucketMeta    = "meta"
	bucketDocs    = "docs"
	bucketChanges = "changes"
	bucketViews   = "views"
	bucketIndexes = "indexes"

	keyConfig   = "config"
	keySequence = "sequence"

	indexKeySep = "\x00"
)

// storePersister writes the database into key-value buckets, touching only
// what changed since the previous save.
type storePersister struct {
	st       storage
	lastSize int64
}

func newStorePersister(st storage) *storePersister {
	return &storePersister{st: st}
}

func (p *storePersister) load() (*state, error) {
	tx, err := p.st.BeginTx(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	p.lastSize = tx.Size()

	meta := tx.Bucket(bucketMeta)
	if meta == nil {
		return nil, nil
	}

	img := &image{
		Data:  make(map[string]*docRecord),
		Views: make(map[string]*viewState),
	}
	if raw := meta.Get([]byte(keyConfig)); raw != nil {
		err = defaultValueEncoding.DecodeValue(raw, &img.Config)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keyConfig, err)
		}
	}
	if raw := meta.Get([]byte(keySequence)); raw != nil {
		d := makeByteDecoder(raw)
		img.Sequence, err = d.FixedUint64()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keySequence, err)
		}
	}

	err = forEachIn(tx, bucketDocs, func(k, v []byte) error {
		rec := new(docRecord)
		if err := defaultValueEncoding.DecodeValue(v, rec); err != nil {
			return fmt.Errorf("doc %s: %w", k, err)
		}
		img.Data[string(k)] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachIn(tx, bucketChanges, func(k, v []byte) error {
		d := makeByteDecoder(k)
		seq, err := d.FixedUint64()
		if err != nil {
			return err
		}
		if seq != uint64(len(img.SequenceIndex)) {
			return dataErrf(k, 0, nil, "change log gap: found %d, expected %d", seq, len(img.SequenceIndex))
		}
		var ref changeRef
		if err := defaultValueEncoding.DecodeValue(v, &ref); err != nil {
			return fmt.Errorf("change %d: %w", seq, err)
		}
		img.SequenceIndex = append(img.SequenceIndex, ref)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachIn(tx, bucketViews, func(k, v []byte) error {
		vs := new(viewState)
		if err := defaultValueEncoding.DecodeValue(v, vs); err != nil {
			return fmt.Errorf("view %s: %w", k, err)
		}
		img.Views[string(k)] = vs
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = forEachIn(tx, bucketIndexes, func(k, v []byte) error {
		idx := new(viewIndex)
		if err := defaultValueEncoding.DecodeValue(v, idx); err != nil {
			return fmt.Errorf("index %q: %w", k, err)
		}
		img.Indexes = append(img.Indexes, idx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stateFromImage(img)
}

func (p *storePersister) save(st *state, d *dirtySet) error {
	tx, err := p.st.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var w bucketWriter

	meta, err := tx.CreateBucket(bucketMeta)
	if err != nil {
		return err
	}
	w.putValue(meta, []byte(keyConfig), &st.Config)
	w.put(meta, []byte(keySequence), seqKey(st.Sequence))

	docs, err := openBucket(tx, bucketDocs, d.full)
	if err != nil {
		return err
	}
	if d.full {
		for id, rec := range st.Data {
			w.putValue(docs, []byte(id), rec)
		}
	} else {
		for id := range d.docs {
			if rec := st.Data[id]; rec != nil {
				w.putValue(docs, []byte(id), rec)
			} else {
				w.del(docs, []byte(id))
			}
		}
	}

	changes, err := openBucket(tx, bucketChanges, d.full)
	if err != nil {
		return err
	}
	from := d.savedSeq
	if d.full || from > st.Sequence {
		from = 0
	}
	for seq := from; seq < st.Sequence; seq++ {
		w.putValue(changes, seqKey(seq), &st.SequenceIndex[seq])
	}

	if d.full || d.views {
		views, err := openBucket(tx, bucketViews, true)
		if err != nil {
			return err
		}
		for name, vs := range st.Views {
			w.putValue(views, []byte(name), vs)
		}
	}

	rewriteIndexes := d.full || d.resetIndexes
	indexes, err := openBucket(tx, bucketIndexes, rewriteIndexes)
	if err != nil {
		return err
	}
	if rewriteIndexes {
		for k, idx := range st.indexes {
			w.putValue(indexes, k.storageKey(), idx)
		}
	} else {
		for k := range d.indexes {
			if idx := st.indexes[k]; idx != nil {
				w.putValue(indexes, k.storageKey(), idx)
			} else {
				w.del(indexes, k.storageKey())
			}
		}
	}

	if w.err != nil {
		return w.err
	}
	p.lastSize = tx.Size()
	return tx.Commit()
}

func (p *storePersister) size() int64 {
	return p.lastSize
}

func (p *storePersister) close() error {
	return p.st.Close()
}

// openBucket creates the bucket, emptying it first if recreate is set.
func openBucket(tx storageTx, name string, recreate bool) (storageBucket, error) {
	if recreate {
		err := tx.DeleteBucket(name)
		if err != nil && err != ErrBucketNotFound {
			return nil, err
		}
	}
	return tx.CreateBucket(name)
}

func forEachIn(tx storageTx, name string, f func(k, v []byte) error) error {
	b := tx.Bucket(name)
	if b == nil {
		return nil
	}
	return b.ForEach(f)
}

func (k indexKey) storageKey() []byte {
	return []byte(k.View + indexKeySep + k.Filter)
}

// bucketWriter remembers the first failure of a series of writes.
type bucketWriter struct {
	err error
}

func (w *bucketWriter) put(b storageBucket, k, v []byte) {
	if w.err == nil {
		w.err = b.Put(k, v)
	}
}

func (w *bucketWriter) putValue(b storageBucket, k []byte, obj any) {
	if w.err != nil {
		return
	}
	v, err := defaultValueEncoding.EncodeValue(nil, obj)
	if err != nil {
		w.err = fmt.Errorf("%s: %w", k, err)
		return
	}
	w.err = b.Put(k, v)
}

func (w *bucketWriter) del(b storageBucket, k []byte) {
	if w.err == nil {
		w.err = b.Delete(k)
	}
}
