package tree

// distSq returns the squared Euclidean distance between a and b.
func distSq(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		if d != 0 {
			sum += d * d
		}
	}
	return sum
}
