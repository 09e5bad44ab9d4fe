package interfaces

// ChunkSlice 按 size 切分切片，size<=0 时整体返回
func ChunkSlice[T any](slice []T, size int) [][]T {
	if len(slice) == 0 {
		return nil
	}
	if size <= 0 || len(slice) <= size {
		return [][]T{slice}
	}
	res := make([][]T, 0, (len(slice)+size-1)/size)
	for start := 0; start < len(slice); start += size {
		end := start + size
		if end > len(slice) {
			end = len(slice)
		}
		res = append(res, slice[start:end])
	}
	return res
}
