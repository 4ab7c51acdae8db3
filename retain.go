package tarpit

// retainUnordered filters s in place, keeping the elements for which keep
// returns true and returning the shortened slice. Removal swaps the last
// element into the vacated position rather than shifting, making each
// removal O(1) at the cost of element order; every retained element is
// still visited exactly once. Vacated positions in the backing array are
// zeroed so removed elements do not linger.
func retainUnordered[T any](s []T, keep func(T) bool) []T {
	var zero T
	for i := 0; i < len(s); {
		if keep(s[i]) {
			i++
			continue
		}
		last := len(s) - 1
		s[i] = s[last]
		s[last] = zero
		s = s[:last]
	}
	return s
}
