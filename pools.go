package revdb

import (
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// collate.Collator keeps internal buffers and isn't safe for concurrent use.
type keyCollator struct {
	c *collate.Collator
}

var collatorPool = &sync.Pool{
	New: func() any {
		return &keyCollator{collate.New(language.Und)}
	},
}

var indexRowsPool = &sync.Pool{
	New: func() any {
		rows := make([]indexRow, 0, 256)
		return &rows
	},
}

func acquireIndexRows() *[]indexRow {
	return indexRowsPool.Get().(*[]indexRow)
}

func releaseIndexRows(buf *[]indexRow) {
	clear(*buf)
	*buf = (*buf)[:0]
	indexRowsPool.Put(buf)
}
