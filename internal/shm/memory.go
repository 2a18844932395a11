package shm

import (
	"fmt"
	"sync"
)

// MemoryNamespace keeps segments in process memory. Handles opened on the
// same name share one buffer and one lock, so it behaves like DirNamespace
// for goroutines of a single process. It backs tests and dry runs; it gives
// no cross-process visibility.
type MemoryNamespace struct {
	mu      sync.RWMutex          // Protects objects
	objects map[string]*memObject // Segments by name
}

type memObject struct {
	lock sync.Mutex   // The segment lock shared by every handle
	mu   sync.RWMutex // Protects buf
	buf  []byte
}

// NewMemoryNamespace creates an empty in-memory namespace.
func NewMemoryNamespace() *MemoryNamespace {
	return &MemoryNamespace{
		objects: make(map[string]*memObject),
	}
}

// Open returns a handle on name, creating an empty object when absent.
func (m *MemoryNamespace) Open(name string) (Segment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	obj, exists := m.objects[name]
	if !exists {
		obj = &memObject{}
		m.objects[name] = obj
	}
	return &memSegment{name: name, obj: obj}, !exists, nil
}

// Remove forgets name. Handles already open keep their buffer.
func (m *MemoryNamespace) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[name]; !exists {
		return fmt.Errorf("remove %s: no such segment", name)
	}
	delete(m.objects, name)
	return nil
}

// Names lists the segments currently in the namespace.
func (m *MemoryNamespace) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	return names
}

type memSegment struct {
	name   string
	obj    *memObject
	closed bool
}

func (s *memSegment) Size() (int64, error) {
	s.obj.mu.RLock()
	defer s.obj.mu.RUnlock()
	return int64(len(s.obj.buf)), nil
}

func (s *memSegment) Truncate(size int64) error {
	if size < 0 {
		return fmt.Errorf("truncate %s: negative size %d", s.name, size)
	}
	s.obj.mu.Lock()
	defer s.obj.mu.Unlock()

	buf := make([]byte, size)
	copy(buf, s.obj.buf)
	s.obj.buf = buf
	return nil
}

func (s *memSegment) Map(size int) ([]byte, error) {
	s.obj.mu.RLock()
	defer s.obj.mu.RUnlock()

	if size > len(s.obj.buf) {
		return nil, fmt.Errorf("map %s: %d bytes requested, object has %d", s.name, size, len(s.obj.buf))
	}
	return s.obj.buf[:size:size], nil
}

func (s *memSegment) Lock() error {
	s.obj.lock.Lock()
	return nil
}

func (s *memSegment) Unlock() error {
	s.obj.lock.Unlock()
	return nil
}

func (s *memSegment) Close() error {
	s.closed = true
	return nil
}
