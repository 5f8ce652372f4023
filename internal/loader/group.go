package loader

// GroupByKey partitions rows by the key returned from keyOf and returns one
// slice per key, in key order. Keys without rows get an empty, non-nil slice.
// Rows keep their relative order. keyOf reports false for rows without a key.
func GroupByKey[K comparable, V any](keys []K, rows []V, keyOf func(V) (K, bool)) [][]V {
	groups := make(map[K][]V, len(keys))
	for _, row := range rows {
		k, ok := keyOf(row)
		if !ok {
			continue
		}
		groups[k] = append(groups[k], row)
	}
	out := make([][]V, len(keys))
	for i, k := range keys {
		if g, ok := groups[k]; ok {
			out[i] = g
			continue
		}
		out[i] = []V{}
	}
	return out
}

// IndexByKey aligns rows with keys for to-one lookups. Missing keys resolve
// to nil.
func IndexByKey[K comparable, V any](keys []K, rows []V, keyOf func(V) K) []*V {
	index := make(map[K]*V, len(rows))
	for i := range rows {
		k := keyOf(rows[i])
		if _, ok := index[k]; !ok {
			index[k] = &rows[i]
		}
	}
	out := make([]*V, len(keys))
	for i, k := range keys {
		out[i] = index[k]
	}
	return out
}
