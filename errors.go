package revdb

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflict means the caller's expected revision is not the current head.
	ErrConflict = errors.New("conflict")

	// ErrNotFound means an unknown document, revision or view.
	ErrNotFound = errors.New("not_found")

	// ErrQueryParse means the query can't be run against the view, e.g. reduce
	// was requested on a map-only view.
	ErrQueryParse = errors.New("query_parse_error")

	ErrClosed = errors.New("database closed")
)

// Reasons attached to DocError and ViewError.
const (
	ReasonMissing          = "missing"
	ReasonDeleted          = "deleted"
	ReasonMissingNamedView = "missing_named_view"
	ReasonNoReduce         = "no_reduce"
	ReasonDocUpdate        = "document update conflict"
	ReasonInvalidKey       = "invalid_key"
	ReasonMapFailed        = "map_failed"
	ReasonReduceFailed     = "reduce_failed"
)

// ErrViewFunc wraps failures of user-supplied map and reduce functions.
var ErrViewFunc = errors.New("view function failed")

// DocError is returned by document operations for routine optimistic
// concurrency outcomes: conflicts and missing or deleted documents.
type DocError struct {
	ID     string
	Rev    string
	Reason string
	Err    error
}

func docErrf(id, rev string, err error, reason string) error {
	return &DocError{ID: id, Rev: rev, Reason: reason, Err: err}
}

func (e *DocError) Unwrap() error {
	return e.Err
}

func (e *DocError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.ID)
	if e.Rev != "" {
		buf.WriteByte('@')
		buf.WriteString(e.Rev)
	}
	buf.WriteString(": ")
	buf.WriteString(e.Err.Error())
	if e.Reason != "" {
		buf.WriteString(" (")
		buf.WriteString(e.Reason)
		buf.WriteByte(')')
	}
	return buf.String()
}

type ViewError struct {
	View   string
	Reason string
	Err    error
}

func viewErrf(view string, err error, reason string) error {
	return &ViewError{View: view, Reason: reason, Err: err}
}

func (e *ViewError) Unwrap() error {
	return e.Err
}

func (e *ViewError) Error() string {
	return fmt.Sprintf("view %s: %v (%s)", e.View, e.Err, e.Reason)
}

// SaveError reports a failed persist. The in-memory state is not rolled back,
// so the operation that triggered the save still took effect.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

func (e *SaveError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("revdb: save failed: %v", e.Err)
	}
	return fmt.Sprintf("revdb: saving %s: %v", e.Path, e.Err)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Reason returns the reason of a DocError or ViewError, or "".
func Reason(err error) string {
	var de *DocError
	if errors.As(err, &de) {
		return de.Reason
	}
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Reason
	}
	return ""
}

// DataError describes undecodable persisted data.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x", e.Msg, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s: (%d) %x", e.Msg, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s: %v: (%d) %x...%x", e.Msg, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s: (%d) %x...%x", e.Msg, n, p, s)
		}
	}
}

func errUnsupportedValue(v any) error {
	return fmt.Errorf("revdb: unsupported document value of type %T: %v", v, v)
}
