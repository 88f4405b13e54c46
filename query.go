package revdb

import "fmt"

// QueryOptions selects view rows. With neither Key nor Keys set, all rows
// are returned. A non-nil Keys, even an empty one, runs one sub-query per key
// and concatenates the results.
type QueryOptions struct {
	// Key selects rows whose key equals Key, or, when both are arrays,
	// starts with it.
	Key  any
	Keys []any

	// Reduce collapses the selected rows using the view's reducer. In
	// multi-key mode, per-key results are combined by a re-reduce.
	Reduce bool

	// Offset skips leading rows, then Limit caps the result; 0 means no limit.
	Offset int
	Limit  int
}

type Row struct {
	ID    string `json:"id,omitempty"`
	Key   any    `json:"key"`
	Value any    `json:"value"`
}

type QueryResult struct {
	Rows      []Row  `json:"rows"`
	TotalRows int    `json:"total_rows"`
	UpdateSeq uint64 `json:"update_seq"`
}

// Query brings the view's index up to date and reads rows from it.
func (db *DB) Query(view string, opt QueryOptions) (*QueryResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	defer db.check_locked()

	res, err := db.query_locked(view, opt)
	if err != nil {
		return nil, err
	}
	// indexes are a cache, so a failed save shouldn't fail the query
	if err := db.autosave_locked(); err != nil {
		db.logger.Warn("revdb: failed to persist indexes", "view", view, "err", err)
	}
	return res, nil
}

func (db *DB) query_locked(view string, opt QueryOptions) (*QueryResult, error) {
	db.QueryCount.Add(1)
	db.metrics.queries.Inc()

	v, err := db.lookupView_locked(view, opt.Reduce)
	if err != nil {
		return nil, err
	}
	res := &QueryResult{UpdateSeq: db.st.Sequence}

	if opt.Keys != nil {
		for _, key := range opt.Keys {
			f, err := exactKey(key)
			if err != nil {
				return nil, &ViewError{View: view, Reason: ReasonInvalidKey, Err: fmt.Errorf("%w: %w", ErrQueryParse, err)}
			}
			rows, total, err := db.queryFilter_locked(v, f, opt.Reduce)
			if err != nil {
				return nil, err
			}
			res.Rows = append(res.Rows, rows...)
			res.TotalRows += total
		}
		if opt.Reduce {
			values := make([]any, len(res.Rows))
			for i, row := range res.Rows {
				values[i] = row.Value
			}
			r, err := reduceValues(v, nil, values, true)
			if err != nil {
				return nil, err
			}
			res.Rows = []Row{{Value: r}}
			res.TotalRows = 1
		}
	} else {
		var f keyFilter
		if opt.Key != nil {
			f, err = exactKey(opt.Key)
			if err != nil {
				return nil, &ViewError{View: view, Reason: ReasonInvalidKey, Err: fmt.Errorf("%w: %w", ErrQueryParse, err)}
			}
		}
		res.Rows, res.TotalRows, err = db.queryFilter_locked(v, f, opt.Reduce)
		if err != nil {
			return nil, err
		}
	}

	res.Rows = paginate(res.Rows, opt.Offset, opt.Limit)
	if res.Rows == nil {
		res.Rows = []Row{}
	}
	if db.verbose {
		db.logger.Debug("db: QUERY", "view", view, "key", opt.Key, "keys", len(opt.Keys), "reduce", opt.Reduce, "rows", len(res.Rows), "total", res.TotalRows)
	}
	return res, nil
}

// queryFilter_locked answers a single-filter query.
func (db *DB) queryFilter_locked(v *View, f keyFilter, reduce bool) ([]Row, int, error) {
	idx, err := db.updateIndex_locked(v, f)
	if err != nil {
		return nil, 0, err
	}
	if reduce {
		values := make([]any, len(idx.Rows))
		for i, row := range idx.Rows {
			values[i] = row.Value
		}
		r, err := reduceValues(v, nil, values, false)
		if err != nil {
			return nil, 0, err
		}
		return []Row{{Value: r}}, 1, nil
	}

	rows := make([]Row, len(idx.Rows))
	for i, row := range idx.Rows {
		rows[i] = Row{ID: row.ID, Key: cloneValue(row.Key), Value: cloneValue(row.Value)}
	}
	return rows, len(rows), nil
}

func reduceValues(v *View, key any, values []any, rereduce bool) (result any, err error) {
	defer func() {
		if err != nil {
			err = &ViewError{View: v.Name, Reason: ReasonReduceFailed, Err: fmt.Errorf("%w: %w", ErrViewFunc, err)}
		}
	}()
	defer catchPanic(&err)
	for i, val := range values {
		values[i] = cloneValue(val)
	}
	return normalizeValue(v.Reduce.Reduce(key, values, rereduce))
}

// paginate applies offset, then limit. Negative values count as 0.
func paginate(rows []Row, offset, limit int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
