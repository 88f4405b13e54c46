package revdb

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Doc is a JSON-like document: a tree of nil, bool, float64, string, []any and
// map[string]any values. Reserved fields start with an underscore.
type Doc map[string]any

const (
	FieldID      = "_id"
	FieldRev     = "_rev"
	FieldDeleted = "_deleted"
)

func (d Doc) ID() string {
	s, _ := d[FieldID].(string)
	return s
}

func (d Doc) Rev() string {
	s, _ := d[FieldRev].(string)
	return s
}

func (d Doc) IsDeleted() bool {
	v, _ := d[FieldDeleted].(bool)
	return v
}

// Clone returns a deep copy of the document.
func (d Doc) Clone() Doc {
	if d == nil {
		return nil
	}
	return Doc(cloneValue(map[string]any(d)).(map[string]any))
}

// DocRef identifies a single revision of a document.
type DocRef struct {
	ID  string `json:"id"`
	Rev string `json:"rev"`
}

func (r DocRef) String() string {
	return r.ID + "@" + r.Rev
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, e := range v {
			m[k] = cloneValue(e)
		}
		return m
	case Doc:
		return cloneValue(map[string]any(v))
	case []any:
		a := make([]any, len(v))
		for i, e := range v {
			a[i] = cloneValue(e)
		}
		return a
	default:
		return v
	}
}

// normalizeValue converts an arbitrary Go value into the document value model
// and returns a fresh copy that shares nothing with the input. Integers become
// float64, slices become []any, string-keyed maps become map[string]any.
// Values of other types are passed through encoding/json.
func normalizeValue(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return v, nil
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return finite(f)
	case Doc:
		return normalizeMap(v)
	case map[string]any:
		return normalizeMap(v)
	case []any:
		a := make([]any, len(v))
		for i, e := range v {
			n, err := normalizeValue(e)
			if err != nil {
				return nil, err
			}
			a[i] = n
		}
		return a, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break // []byte marshals to base64 like in JSON
		}
		a := make([]any, rv.Len())
		for i := range a {
			n, err := normalizeValue(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			a[i] = n
		}
		return a, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return nil, nil
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			n, err := normalizeValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = n
		}
		return m, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalizeValue(rv.Elem().Interface())
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cannot represent %T as a document value: %w", v, err)
	}
	var out any
	err = json.Unmarshal(raw, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// finite rejects NaN and infinities, which have no JSON representation.
func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return f, nil
}

func normalizeMap(v map[string]any) (map[string]any, error) {
	m := make(map[string]any, len(v))
	for k, e := range v {
		n, err := normalizeValue(e)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		m[k] = n
	}
	return m, nil
}

func normalizeDoc(d Doc) (Doc, error) {
	m, err := normalizeMap(d)
	if err != nil {
		return nil, err
	}
	return Doc(m), nil
}
