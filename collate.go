package revdb

import (
	"math"
	"slices"
	"strings"
)

// Collation order of view keys, same as CouchDB:
// null < false < true < numbers < strings < arrays < objects.
type valueClass int

const (
	classNull valueClass = iota
	classFalse
	classTrue
	classNumber
	classString
	classArray
	classObject
)

func classify(v any) valueClass {
	switch v := v.(type) {
	case nil:
		return classNull
	case bool:
		if v {
			return classTrue
		}
		return classFalse
	case string:
		return classString
	case []any:
		return classArray
	case map[string]any, Doc:
		return classObject
	}
	if _, ok := toFloat(v); ok {
		return classNumber
	}
	panic(errUnsupportedValue(v))
}

// CompareKeys orders two document values. Strings are compared using the
// Unicode Collation Algorithm with a byte-wise tie-break, so only identical
// strings compare equal.
func CompareKeys(a, b any) int {
	ca, cb := classify(a), classify(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}
	switch ca {
	case classNull, classFalse, classTrue:
		return 0
	case classNumber:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		return compareFloats(fa, fb)
	case classString:
		return compareStrings(a.(string), b.(string))
	case classArray:
		aa, ba := a.([]any), b.([]any)
		n := min(len(aa), len(ba))
		for i := 0; i < n; i++ {
			if c := CompareKeys(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return compareInts(len(aa), len(ba))
	case classObject:
		return compareObjects(asMap(a), asMap(b))
	default:
		panic("unreachable")
	}
}

// KeysEqual reports whether two document values are identical.
func KeysEqual(a, b any) bool {
	return CompareKeys(a, b) == 0
}

// keyMatches implements view key filtering: an exact match, or, when both
// the filter and the key are arrays, a component-wise strict prefix.
func keyMatches(filter, key any) bool {
	fa, fok := filter.([]any)
	ka, kok := key.([]any)
	if fok && kok && len(fa) < len(ka) {
		for i, f := range fa {
			if CompareKeys(f, ka[i]) != 0 {
				return false
			}
		}
		return true
	}
	return KeysEqual(filter, key)
}

func compareStrings(a, b string) int {
	if a == b {
		return 0
	}
	coll := collatorPool.Get().(*keyCollator)
	c := coll.c.CompareString(a, b)
	collatorPool.Put(coll)
	if c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Objects compare by their sorted keys and values pairwise, then by size.
func compareObjects(a, b map[string]any) int {
	ak := sortedKeys(a)
	bk := sortedKeys(b)
	n := min(len(ak), len(bk))
	for i := 0; i < n; i++ {
		if c := compareStrings(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := CompareKeys(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return compareInts(len(ak), len(bk))
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareStrings)
	return keys
}

func asMap(v any) map[string]any {
	if d, ok := v.(Doc); ok {
		return map[string]any(d)
	}
	return v.(map[string]any)
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	}
	// NaN sorts before every other number
	an, bn := math.IsNaN(a), math.IsNaN(b)
	if an && bn {
		return 0
	} else if an {
		return -1
	}
	return 1
}

func compareInts(a, b int) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}
