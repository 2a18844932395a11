//go:build linux

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const segmentMode = 0o666

// Open implements create-or-attach on a file in n.Dir.
//
// The exclusive create closes the window between "does not exist" and
// "create": if a second process creates the file first, O_EXCL fails with
// EEXIST and this call falls back to opening the winner's segment.
func (n DirNamespace) Open(name string) (Segment, bool, error) {
	path := n.Path(name)

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err == nil {
		return &fileSegment{fd: fd, path: path}, false, nil
	}
	if !errors.Is(err, unix.ENOENT) {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}

	fd, err = unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, segmentMode)
	if err == nil {
		return &fileSegment{fd: fd, path: path}, true, nil
	}
	if !errors.Is(err, unix.EEXIST) {
		return nil, false, fmt.Errorf("create %s: %w", path, err)
	}

	// Lost the create race.
	fd, err = unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, false, fmt.Errorf("open existing %s: %w", path, err)
	}
	return &fileSegment{fd: fd, path: path}, false, nil
}

// Remove unlinks the segment file.
func (n DirNamespace) Remove(name string) error {
	path := n.Path(name)
	if err := unix.Unlink(path); err != nil {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}

// fileSegment is a segment file plus the descriptor the flock lives on.
// The descriptor stays open for the life of the handle.
type fileSegment struct {
	path string
	mem  []byte
	fd   int
}

func (s *fileSegment) Size() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(s.fd, &st); err != nil {
		return 0, fmt.Errorf("fstat %s: %w", s.path, err)
	}
	return st.Size, nil
}

func (s *fileSegment) Truncate(size int64) error {
	if err := unix.Ftruncate(s.fd, size); err != nil {
		return fmt.Errorf("ftruncate %s: %w", s.path, err)
	}
	return nil
}

func (s *fileSegment) Map(size int) ([]byte, error) {
	mem, err := unix.Mmap(s.fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", s.path, err)
	}
	s.mem = mem
	return mem, nil
}

func (s *fileSegment) Lock() error {
	for {
		err := unix.Flock(s.fd, unix.LOCK_EX)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("flock %s: %w", s.path, err)
		}
	}
}

func (s *fileSegment) Unlock() error {
	if err := unix.Flock(s.fd, unix.LOCK_UN); err != nil {
		return fmt.Errorf("funlock %s: %w", s.path, err)
	}
	return nil
}

func (s *fileSegment) Close() error {
	var errs []error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil {
			errs = append(errs, fmt.Errorf("munmap %s: %w", s.path, err))
		}
		s.mem = nil
	}
	if s.fd >= 0 {
		// Closing the descriptor also drops any flock it still holds.
		if err := unix.Close(s.fd); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.path, err))
		}
		s.fd = -1
	}
	return errors.Join(errs...)
}
