package dataprep

// DropDuplicates removes exact duplicate rows, keeping the first occurrence
// and the original order.
func DropDuplicates[T comparable](rows []T) []T {
	seen := make(map[T]struct{}, len(rows))
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row]; !ok {
			seen[row] = struct{}{}
			out = append(out, row)
		}
	}
	return out
}
