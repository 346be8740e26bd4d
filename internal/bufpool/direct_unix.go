//go:build unix

package bufpool

import "golang.org/x/sys/unix"

// allocateDirect reserves a page-aligned anonymous mapping of size bytes,
// used when Config.DirectAllowed requests kernel-friendly, pinnable
// storage for a size class (e.g. for O_DIRECT-style I/O). It is not
// pooled through sync.Pool's GC-driven reclamation; callers release it
// with freeDirect.
func allocateDirect(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

// freeDirect unmaps a buffer obtained from allocateDirect.
func freeDirect(buf []byte) error {
	return unix.Munmap(buf)
}
