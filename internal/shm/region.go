package shm

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/rs/zerolog"

	"github.com/dreamware/ptpstandby/internal/metrics"
)

// ReadySentinel marks a segment whose creator finished initialization.
const ReadySentinel uint32 = 0x12345678

// NoDomain is the domain id of a segment nobody has written yet.
const NoDomain = -1

// MaxDomain is the largest domain id the segment header can hold.
const MaxDomain = math.MaxInt32

var (
	// ErrResource is returned when a segment cannot be opened, sized or mapped.
	ErrResource = errors.New("shm: segment unavailable")

	// ErrLock is returned when the segment lock cannot be acquired or released.
	ErrLock = errors.New("shm: segment lock failed")

	// ErrTimeout is returned when the creator never published readiness.
	ErrTimeout = errors.New("shm: timed out waiting for segment initialization")

	// ErrNoData is returned by Read before the first Update or when the
	// stored domain id is not the expected one.
	ErrNoData = errors.New("shm: no matching data")

	// ErrClosed is returned by operations on a closed Region.
	ErrClosed = errors.New("shm: region closed")

	// ErrInvalidDomain is returned by Update for a domain id outside
	// [0, MaxDomain].
	ErrInvalidDomain = errors.New("shm: invalid domain id")

	// ErrUnsupported is returned where the OS namespace is unavailable.
	ErrUnsupported = errors.New("shm: not supported on this platform")
)

type header struct {
	ready       uint32
	initialized uint32
	domainID    int32
	_           uint32
}

type layout[T any] struct {
	hdr     header
	payload T
}

// Snapshot is an unfiltered copy of a segment taken under its lock.
type Snapshot[T any] struct {
	Payload     T
	DomainID    int
	Initialized bool
}

// Region is one process's handle on a named shared segment carrying a T.
// A Region is safe for concurrent use by multiple goroutines.
type Region[T any] struct {
	seg     Segment
	mem     []byte
	view    *layout[T]
	log     zerolog.Logger
	name    string
	mu      sync.Mutex // Serializes this handle's goroutines
	created bool
	closed  bool
}

// Open creates the named segment, or attaches to it if it already exists.
//
// When this call creates the segment, defaults (if non-nil) runs on the
// zeroed payload before readiness is published. When it attaches, it waits
// for readiness for at most the configured timeout and fails with ErrTimeout
// afterwards. Callers must not loop on Open indefinitely.
func Open[T any](name string, defaults func(*T), opts ...Option) (*Region[T], error) {
	o := buildOptions(opts)

	if err := checkPayload(reflect.TypeFor[T]()); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResource, name, err)
	}
	size := int(unsafe.Sizeof(layout[T]{}))

	seg, created, err := o.namespace.Open(name)
	if err != nil {
		metrics.RecordRegionError(name, "open")
		return nil, fmt.Errorf("%w: %s: %w", ErrResource, name, err)
	}

	r := &Region[T]{
		seg:     seg,
		name:    name,
		created: created,
		log:     o.logger.With().Str("region", name).Logger(),
	}

	start := time.Now()
	if created {
		err = r.initialize(size, defaults)
	} else {
		err = r.attach(size, o)
	}
	if err != nil {
		if cerr := seg.Close(); cerr != nil {
			r.log.Debug().Err(cerr).Msg("close after failed open")
		}
		return nil, err
	}
	metrics.ObserveAttach(name, created, time.Since(start))
	return r, nil
}

// initialize runs in the creating process only. The readiness store is the
// last write; the atomic store orders every earlier write before it.
func (r *Region[T]) initialize(size int, defaults func(*T)) error {
	if err := r.seg.Truncate(int64(size)); err != nil {
		metrics.RecordRegionError(r.name, "truncate")
		return fmt.Errorf("%w: %s: %w", ErrResource, r.name, err)
	}
	mem, err := r.seg.Map(size)
	if err != nil {
		metrics.RecordRegionError(r.name, "map")
		return fmt.Errorf("%w: %s: %w", ErrResource, r.name, err)
	}
	clear(mem)

	view := (*layout[T])(unsafe.Pointer(&mem[0]))
	view.hdr.initialized = 0
	view.hdr.domainID = NoDomain
	if defaults != nil {
		defaults(&view.payload)
	}
	// The flock needs no in-segment state; nothing to initialize for the lock.
	atomic.StoreUint32(&view.hdr.ready, ReadySentinel)

	r.mem = mem
	r.view = view
	r.log.Debug().Msg("shared region initialized by creator process")
	return nil
}

// attach waits for the creator. The segment may still be empty when we
// open it, so the poll first waits for the full size, maps, then waits for
// the sentinel. Both share one budget of timeout/pollInterval polls.
func (r *Region[T]) attach(size int, o options) error {
	maxPolls := int(o.timeout / o.pollInterval)
	polls := 0

	for {
		if r.view == nil {
			cur, err := r.seg.Size()
			if err != nil {
				metrics.RecordRegionError(r.name, "stat")
				return fmt.Errorf("%w: %s: %w", ErrResource, r.name, err)
			}
			if cur >= int64(size) {
				mem, err := r.seg.Map(size)
				if err != nil {
					metrics.RecordRegionError(r.name, "map")
					return fmt.Errorf("%w: %s: %w", ErrResource, r.name, err)
				}
				r.mem = mem
				r.view = (*layout[T])(unsafe.Pointer(&mem[0]))
			}
		}
		if r.view != nil && atomic.LoadUint32(&r.view.hdr.ready) == ReadySentinel {
			break
		}
		if polls >= maxPolls {
			r.mem, r.view = nil, nil
			metrics.RecordRegionError(r.name, "timeout")
			r.log.Error().Dur("timeout", o.timeout).Msg("timeout waiting for shared region initialization")
			return fmt.Errorf("%w: %s after %s", ErrTimeout, r.name, o.timeout)
		}
		o.sleep(o.pollInterval)
		polls++
	}

	r.log.Debug().
		Int64("waited_ms", (time.Duration(polls) * o.pollInterval).Milliseconds()).
		Msg("shared region opened by secondary process")
	return nil
}

// Name returns the segment name the Region was opened with.
func (r *Region[T]) Name() string {
	return r.name
}

// Created reports whether this handle created the segment.
func (r *Region[T]) Created() bool {
	return r.created
}

// CheckDomain fails with ErrInvalidDomain unless id fits the header.
func CheckDomain(id int) error {
	if id < 0 || id > MaxDomain {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidDomain, id, MaxDomain)
	}
	return nil
}

// Update writes the payload through fn and stamps domainID under the lock.
// If the lock cannot be acquired or domainID is invalid nothing is written.
func (r *Region[T]) Update(domainID int, fn func(*T)) error {
	if err := CheckDomain(domainID); err != nil {
		return fmt.Errorf("%s: %w", r.name, err)
	}
	return r.withLock(func(v *layout[T]) error {
		if fn != nil {
			fn(&v.payload)
		}
		v.hdr.domainID = int32(domainID)
		v.hdr.initialized = 1
		return nil
	})
}

// UpdatePayload mutates the payload under the lock without touching the
// domain id or the initialized flag. It serves payload sub-fields that carry
// their own writer id.
func (r *Region[T]) UpdatePayload(fn func(*T)) error {
	return r.withLock(func(v *layout[T]) error {
		fn(&v.payload)
		return nil
	})
}

// Read copies the payload out under the lock. It fails with ErrNoData when
// nothing was written yet or the last writer was not expectedDomainID. No
// writer can hold an id outside [0, MaxDomain], so such ids never match.
func (r *Region[T]) Read(expectedDomainID int) (T, error) {
	var out T
	err := r.withLock(func(v *layout[T]) error {
		if CheckDomain(expectedDomainID) != nil {
			return fmt.Errorf("%w: %s cannot hold domain %d", ErrNoData, r.name, expectedDomainID)
		}
		if v.hdr.initialized == 0 {
			return fmt.Errorf("%w: %s never written", ErrNoData, r.name)
		}
		if int(v.hdr.domainID) != expectedDomainID {
			return fmt.Errorf("%w: %s written by domain %d, want %d",
				ErrNoData, r.name, v.hdr.domainID, expectedDomainID)
		}
		out = v.payload
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Snapshot copies header and payload under the lock without filtering.
func (r *Region[T]) Snapshot() (Snapshot[T], error) {
	var snap Snapshot[T]
	err := r.withLock(func(v *layout[T]) error {
		snap = Snapshot[T]{
			Payload:     v.payload,
			DomainID:    int(v.hdr.domainID),
			Initialized: v.hdr.initialized != 0,
		}
		return nil
	})
	return snap, err
}

// withLock runs fn holding both locks. The segment lock is released on
// every path out of fn; a release failure is reported unless fn already
// failed.
func (r *Region[T]) withLock(fn func(*layout[T]) error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("%w: %s", ErrClosed, r.name)
	}

	start := time.Now()
	if err := r.seg.Lock(); err != nil {
		metrics.RecordRegionError(r.name, "lock")
		r.log.Error().Err(err).Msg("failed to acquire shared region lock")
		return fmt.Errorf("%w: acquire %s: %w", ErrLock, r.name, err)
	}
	metrics.ObserveLockWait(r.name, time.Since(start))

	defer func() {
		if uerr := r.seg.Unlock(); uerr != nil {
			metrics.RecordRegionError(r.name, "unlock")
			r.log.Error().Err(uerr).Msg("failed to release shared region lock")
			if err == nil {
				err = fmt.Errorf("%w: release %s: %w", ErrLock, r.name, uerr)
			}
		}
	}()

	return fn(r.view)
}

// Close unmaps the segment and releases the local handle. The named
// segment itself stays in its namespace. Close is idempotent.
func (r *Region[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.view, r.mem = nil, nil
	if err := r.seg.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrResource, r.name, err)
	}
	return nil
}

// Remove deletes a segment name from the namespace selected by opts.
// Processes that have it mapped keep their mapping. The protocol never
// calls this; it is an operator action.
func Remove(name string, opts ...Option) error {
	o := buildOptions(opts)
	if err := o.namespace.Remove(name); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrResource, name, err)
	}
	return nil
}
