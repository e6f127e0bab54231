package format

// CeilDiv returns ceil(n / d). d must be non-zero.
func CeilDiv(n, d uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n-1)/d + 1
}
