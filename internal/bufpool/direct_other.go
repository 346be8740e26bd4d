//go:build !unix

package bufpool

import "fmt"

// allocateDirect has no page-aligned mapping available on this platform;
// DirectAllowed classes fall back to a plain heap allocation by the
// caller instead.
func allocateDirect(size int) ([]byte, error) {
	return nil, fmt.Errorf("bufpool: direct allocation not supported on this platform")
}

func freeDirect(buf []byte) error {
	return fmt.Errorf("bufpool: direct allocation not supported on this platform")
}
