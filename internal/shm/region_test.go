package shm

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Value int32
	Flag  bool
}

// faultyNamespace wraps a MemoryNamespace and lets a test fail individual
// segment operations.
type faultyNamespace struct {
	*MemoryNamespace
	lockErr   error
	unlockErr error
	mapErr    error
}

func (n *faultyNamespace) Open(name string) (Segment, bool, error) {
	seg, created, err := n.MemoryNamespace.Open(name)
	if err != nil {
		return nil, false, err
	}
	return &faultySegment{Segment: seg, ns: n}, created, nil
}

type faultySegment struct {
	Segment
	ns *faultyNamespace
}

func (s *faultySegment) Map(size int) ([]byte, error) {
	if s.ns.mapErr != nil {
		return nil, s.ns.mapErr
	}
	return s.Segment.Map(size)
}

func (s *faultySegment) Lock() error {
	if s.ns.lockErr != nil {
		return s.ns.lockErr
	}
	return s.Segment.Lock()
}

func (s *faultySegment) Unlock() error {
	err := s.Segment.Unlock()
	if s.ns.unlockErr != nil {
		return s.ns.unlockErr
	}
	return err
}

// virtualClock records sleeps instead of sleeping.
type virtualClock struct {
	mu      sync.Mutex
	elapsed time.Duration
	sleeps  int
}

func (c *virtualClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed += d
	c.sleeps++
}

func openTest(t *testing.T, ns Namespace, name string, defaults func(*testPayload), opts ...Option) *Region[testPayload] {
	t.Helper()
	opts = append([]Option{WithNamespace(ns)}, opts...)
	r, err := Open[testPayload](name, defaults, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRegionCreateAndAttach(t *testing.T) {
	ns := NewMemoryNamespace()

	t.Run("first open creates", func(t *testing.T) {
		r := openTest(t, ns, "/create", nil)
		assert.True(t, r.Created())
		assert.Equal(t, "/create", r.Name())

		snap, err := r.Snapshot()
		require.NoError(t, err)
		assert.False(t, snap.Initialized)
		assert.Equal(t, NoDomain, snap.DomainID)
	})

	t.Run("second open attaches without waiting", func(t *testing.T) {
		clock := &virtualClock{}
		first := openTest(t, ns, "/attach", nil)
		second := openTest(t, ns, "/attach", nil, WithSleep(clock.Sleep))

		assert.True(t, first.Created())
		assert.False(t, second.Created())
		assert.Zero(t, clock.sleeps)

		require.NoError(t, first.Update(3, func(p *testPayload) { p.Value = 42 }))
		got, err := second.Read(3)
		require.NoError(t, err)
		assert.Equal(t, int32(42), got.Value)
	})

	t.Run("defaults applied by creator only", func(t *testing.T) {
		calls := 0
		defaults := func(p *testPayload) {
			calls++
			p.Value = -7
		}
		openTest(t, ns, "/defaults", defaults)
		attacher := openTest(t, ns, "/defaults", defaults)

		assert.Equal(t, 1, calls)
		snap, err := attacher.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, int32(-7), snap.Payload.Value)
		assert.False(t, snap.Initialized, "defaults do not count as a write")
	})
}

func TestRegionRead(t *testing.T) {
	ns := NewMemoryNamespace()
	r := openTest(t, ns, "/read", nil)

	t.Run("before any update", func(t *testing.T) {
		for _, domain := range []int{0, 1, NoDomain} {
			_, err := r.Read(domain)
			assert.ErrorIs(t, err, ErrNoData, "domain %d", domain)
		}
	})

	require.NoError(t, r.Update(1, func(p *testPayload) {
		p.Value = 5
		p.Flag = true
	}))

	t.Run("matching domain", func(t *testing.T) {
		got, err := r.Read(1)
		require.NoError(t, err)
		assert.Equal(t, testPayload{Value: 5, Flag: true}, got)
	})

	t.Run("other domain", func(t *testing.T) {
		got, err := r.Read(0)
		assert.ErrorIs(t, err, ErrNoData)
		assert.Zero(t, got)
	})

	t.Run("last writer wins", func(t *testing.T) {
		require.NoError(t, r.Update(0, func(p *testPayload) { p.Value = 9 }))
		_, err := r.Read(1)
		assert.ErrorIs(t, err, ErrNoData)
		got, err := r.Read(0)
		require.NoError(t, err)
		assert.Equal(t, int32(9), got.Value)
		assert.True(t, got.Flag, "fields fn leaves alone keep their value")
	})
}

func TestRegionDomainRange(t *testing.T) {
	r := openTest(t, NewMemoryNamespace(), "/range", nil)
	require.NoError(t, r.Update(0, func(p *testPayload) { p.Value = 1 }))

	for _, domain := range []int{NoDomain, MaxDomain + 1, 1 << 32} {
		err := r.Update(domain, func(p *testPayload) { p.Value = 42 })
		assert.ErrorIs(t, err, ErrInvalidDomain, "domain %d", domain)
	}

	got, err := r.Read(0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), got.Value, "rejected updates write nothing")

	for _, domain := range []int{NoDomain, 1 << 32} {
		_, err := r.Read(domain)
		assert.ErrorIs(t, err, ErrNoData, "domain %d", domain)
	}

	require.NoError(t, r.Update(MaxDomain, func(p *testPayload) { p.Value = 7 }))
	got, err = r.Read(MaxDomain)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got.Value)
	_, err = r.Read(0)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRegionUpdatePayload(t *testing.T) {
	r := openTest(t, NewMemoryNamespace(), "/payload", nil)

	require.NoError(t, r.UpdatePayload(func(p *testPayload) { p.Value = 1 }))
	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.Initialized)
	assert.Equal(t, NoDomain, snap.DomainID)
	assert.Equal(t, int32(1), snap.Payload.Value)

	_, err = r.Read(NoDomain)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestRegionLockFailures(t *testing.T) {
	t.Run("acquire failure writes nothing", func(t *testing.T) {
		ns := &faultyNamespace{MemoryNamespace: NewMemoryNamespace()}
		r := openTest(t, ns, "/lock", nil)
		require.NoError(t, r.Update(2, func(p *testPayload) { p.Value = 1 }))

		ns.lockErr = errors.New("EDEADLK")
		err := r.Update(2, func(p *testPayload) { p.Value = 2 })
		assert.ErrorIs(t, err, ErrLock)
		_, err = r.Read(2)
		assert.ErrorIs(t, err, ErrLock)

		ns.lockErr = nil
		got, err := r.Read(2)
		require.NoError(t, err)
		assert.Equal(t, int32(1), got.Value)
	})

	t.Run("release failure is reported", func(t *testing.T) {
		ns := &faultyNamespace{MemoryNamespace: NewMemoryNamespace()}
		r := openTest(t, ns, "/unlock", nil)

		ns.unlockErr = errors.New("EPERM")
		err := r.Update(1, func(p *testPayload) { p.Value = 3 })
		assert.ErrorIs(t, err, ErrLock)

		ns.unlockErr = nil
		got, err := r.Read(1)
		require.NoError(t, err)
		assert.Equal(t, int32(3), got.Value, "write completed before the release failed")
	})

	t.Run("read failure wins over release failure", func(t *testing.T) {
		ns := &faultyNamespace{MemoryNamespace: NewMemoryNamespace()}
		r := openTest(t, ns, "/both", nil)

		ns.unlockErr = errors.New("EPERM")
		_, err := r.Read(0)
		assert.ErrorIs(t, err, ErrNoData)
		assert.NotErrorIs(t, err, ErrLock)
	})
}

func TestRegionOpenFailures(t *testing.T) {
	t.Run("map failure", func(t *testing.T) {
		ns := &faultyNamespace{MemoryNamespace: NewMemoryNamespace(), mapErr: errors.New("ENOMEM")}
		_, err := Open[testPayload]("/map", nil, WithNamespace(ns))
		assert.ErrorIs(t, err, ErrResource)
	})

	t.Run("pointer payload rejected", func(t *testing.T) {
		type bad struct {
			Name string
		}
		_, err := Open[bad]("/bad", nil, WithNamespace(NewMemoryNamespace()))
		assert.ErrorIs(t, err, ErrResource)

		_, err = Open[struct{}]("/empty", nil, WithNamespace(NewMemoryNamespace()))
		assert.ErrorIs(t, err, ErrResource)
	})

	t.Run("nested arrays accepted", func(t *testing.T) {
		type nested struct {
			Samples [4]struct {
				Offset int64
				Ok     bool
			}
		}
		_, err := Open[nested]("/nested", nil, WithNamespace(NewMemoryNamespace()))
		assert.NoError(t, err)
	})
}

// TestRegionAttachTimeout opens a segment that exists but never becomes
// ready. The attacher must give up after exactly timeout/poll sleeps.
func TestRegionAttachTimeout(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, seg Segment)
	}{
		{"object never sized", func(*testing.T, Segment) {}},
		{"sized but sentinel missing", func(t *testing.T, seg Segment) { require.NoError(t, seg.Truncate(64)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := NewMemoryNamespace()
			seg, created, err := ns.Open("/stuck")
			require.NoError(t, err)
			require.True(t, created)
			tt.setup(t, seg)

			clock := &virtualClock{}
			_, err = Open[testPayload]("/stuck", nil, WithNamespace(ns), WithSleep(clock.Sleep))
			assert.ErrorIs(t, err, ErrTimeout)
			assert.Equal(t, DefaultTimeout, clock.elapsed)
			assert.Equal(t, 5000, clock.sleeps)
		})
	}
}

func TestRegionAttachWaitsForCreator(t *testing.T) {
	ns := NewMemoryNamespace()
	seg, _, err := ns.Open("/late")
	require.NoError(t, err)

	// The creator finishes after the attacher has polled a few times.
	polls := 0
	sleep := func(time.Duration) {
		polls++
		if polls == 3 {
			require.NoError(t, seg.Truncate(64))
			mem, err := seg.Map(4)
			require.NoError(t, err)
			copy(mem, []byte{0x78, 0x56, 0x34, 0x12})
		}
	}

	r, err := Open[testPayload]("/late", nil, WithNamespace(ns), WithSleep(sleep))
	require.NoError(t, err)
	defer r.Close()
	assert.False(t, r.Created())
	assert.Equal(t, 3, polls)
}

func TestRegionClose(t *testing.T) {
	ns := NewMemoryNamespace()
	r, err := Open[testPayload]("/close", nil, WithNamespace(ns))
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.Update(0, nil), ErrClosed)
	_, err = r.Read(0)
	assert.ErrorIs(t, err, ErrClosed)

	assert.Contains(t, ns.Names(), "/close", "closing a handle keeps the segment")
	require.NoError(t, Remove("/close", WithNamespace(ns)))
	assert.NotContains(t, ns.Names(), "/close")
	assert.ErrorIs(t, Remove("/close", WithNamespace(ns)), ErrResource)
}

func TestRegionConcurrentUpdates(t *testing.T) {
	ns := NewMemoryNamespace()
	a := openTest(t, ns, "/counter", nil)
	b := openTest(t, ns, "/counter", nil)

	const perWriter = 200
	var wg sync.WaitGroup
	for _, r := range []*Region[testPayload]{a, b, a, b} {
		wg.Add(1)
		go func(r *Region[testPayload]) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, r.Update(0, func(p *testPayload) { p.Value++ }))
			}
		}(r)
	}
	wg.Wait()

	got, err := a.Read(0)
	require.NoError(t, err)
	assert.Equal(t, int32(4*perWriter), got.Value)
}
