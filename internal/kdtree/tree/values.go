package tree

type values[T any] struct {
	data []T
}

func (v *values[T]) put(value T) int32 {
	idx := len(v.data)
	v.data = append(v.data, value)
	return int32(idx)
}

func (v *values[T]) value(index int32) T {
	var zero T
	if index < 0 || int(index) >= len(v.data) {
		return zero
	}
	return v.data[index]
}

func (v *values[T]) len() int { return len(v.data) }
