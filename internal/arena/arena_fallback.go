//go:build !unix

package arena

// mapRegion falls back to the Go heap where anonymous mappings are not
// available. Lock is ignored.
func mapRegion(size int, _ Options) (*Region, error) {
	return &Region{data: make([]byte, size)}, nil
}
