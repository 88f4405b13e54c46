package revdb

// Count reduces to the number of mapped rows.
var Count Reducer = ReduceFunc(func(key any, values []any, rereduce bool) any {
	if !rereduce {
		return float64(len(values))
	}
	var n float64
	for _, v := range values {
		f, _ := toFloat(v)
		n += f
	}
	return n
})

// Sum adds up numeric values. Arrays of numbers are summed element-wise, with
// shorter arrays padded by zeros. Other values count as 0.
var Sum Reducer = ReduceFunc(func(key any, values []any, rereduce bool) any {
	var total float64
	var vec []any
	for _, v := range values {
		if arr, ok := v.([]any); ok {
			vec = sumVectors(vec, arr)
			continue
		}
		f, _ := toFloat(v)
		total += f
	}
	if vec != nil {
		if total != 0 {
			vec = sumVectors(vec, []any{total})
		}
		return vec
	}
	return total
})

func sumVectors(acc, arr []any) []any {
	for i, v := range arr {
		f, _ := toFloat(v)
		if i < len(acc) {
			cur, _ := toFloat(acc[i])
			acc[i] = cur + f
		} else {
			acc = append(acc, f)
		}
	}
	return acc
}

// AllDocsName is the name AllDocs is registered under.
const AllDocsName = "_all_docs"

// AllDocs lists live documents keyed by id, with {"rev": rev} values.
var AllDocs = View{
	Name:    AllDocsName,
	Version: "1",
	Map: MapFunc(func(doc Doc) []Emission {
		return Emit(doc.ID(), map[string]any{"rev": doc.Rev()})
	}),
	Reduce: Count,
}
