package routing

// SampleEvenly は items から添字が等間隔になるよう最大 n 件を選ぶ
// len(items) <= n の場合はすべてを返す。先頭と末尾は常に含まれる
func SampleEvenly[T any](items []T, n int) []T {
	if n <= 0 || len(items) == 0 {
		return []T{}
	}
	if len(items) <= n {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	if n == 1 {
		return []T{items[0]}
	}

	out := make([]T, 0, n)
	last := len(items) - 1
	prev := -1
	for i := 0; i < n; i++ {
		idx := (i*last + (n-1)/2) / (n - 1)
		if idx <= prev {
			idx = prev + 1
		}
		out = append(out, items[idx])
		prev = idx
	}
	return out
}
