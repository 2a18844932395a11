package shm

import (
	"path/filepath"
	"strings"
)

// DefaultDir is where Linux exposes POSIX shared memory objects.
const DefaultDir = "/dev/shm"

// Segment is one opened, not yet mapped, backing object of a Region.
// Implementations are used by a single Region handle; the Region serializes
// calls from its own goroutines.
type Segment interface {
	// Size reports the current size of the backing object in bytes.
	Size() (int64, error)

	// Truncate sets the size of the backing object. Only the creator calls it.
	Truncate(size int64) error

	// Map maps the first size bytes read/write and shared.
	Map(size int) ([]byte, error)

	// Lock blocks until this handle holds the segment lock exclusively.
	Lock() error

	// Unlock releases the segment lock.
	Unlock() error

	// Close unmaps memory returned by Map and releases the handle.
	// It must not remove the backing object.
	Close() error
}

// Namespace resolves segment names to backing objects.
type Namespace interface {
	// Open opens the named segment, creating it exclusively when absent.
	// created reports whether this call created it.
	Open(name string) (seg Segment, created bool, err error)

	// Remove deletes the name. Existing mappings stay valid.
	Remove(name string) error
}

// DirNamespace stores segments as files in a directory, the way shm_open
// stores them under /dev/shm. Any directory on a shared filesystem works,
// which keeps tests away from the real /dev/shm.
type DirNamespace struct {
	Dir string
}

// Path returns the file backing name.
func (n DirNamespace) Path(name string) string {
	dir := n.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, strings.TrimPrefix(name, "/"))
}
