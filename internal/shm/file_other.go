//go:build !linux

package shm

import "fmt"

// Open is unavailable off Linux: the daemons only run where /dev/shm and
// flock share one kernel. MemoryNamespace still works everywhere.
func (n DirNamespace) Open(name string) (Segment, bool, error) {
	return nil, false, fmt.Errorf("open %s: %w", n.Path(name), ErrUnsupported)
}

// Remove is unavailable off Linux.
func (n DirNamespace) Remove(name string) error {
	return fmt.Errorf("remove %s: %w", n.Path(name), ErrUnsupported)
}
