//go:build linux

package shm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirNamespacePath(t *testing.T) {
	assert.Equal(t, "/dev/shm/ptp_servo_state", DirNamespace{}.Path("/ptp_servo_state"))
	assert.Equal(t, "/tmp/x/seg", DirNamespace{Dir: "/tmp/x"}.Path("seg"))
}

func TestFileRegionCreateAttach(t *testing.T) {
	dir := t.TempDir()

	creator, err := Open[testPayload]("/ptp_test", nil, WithDir(dir))
	require.NoError(t, err)
	defer creator.Close()
	assert.True(t, creator.Created())

	info, err := os.Stat(filepath.Join(dir, "ptp_test"))
	require.NoError(t, err)
	assert.Equal(t, int64(24), info.Size())

	attacher, err := Open[testPayload]("/ptp_test", nil, WithDir(dir))
	require.NoError(t, err)
	defer attacher.Close()
	assert.False(t, attacher.Created())

	require.NoError(t, creator.Update(7, func(p *testPayload) { p.Value = 1234 }))
	got, err := attacher.Read(7)
	require.NoError(t, err)
	assert.Equal(t, int32(1234), got.Value)

	_, err = attacher.Read(8)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFileRegionSurvivesClose(t *testing.T) {
	dir := t.TempDir()

	first, err := Open[testPayload]("/persist", nil, WithDir(dir))
	require.NoError(t, err)
	require.NoError(t, first.Update(2, func(p *testPayload) { p.Flag = true }))
	require.NoError(t, first.Close())

	// Every process has detached; the segment and its contents remain.
	second, err := Open[testPayload]("/persist", nil, WithDir(dir))
	require.NoError(t, err)
	defer second.Close()
	assert.False(t, second.Created())

	got, err := second.Read(2)
	require.NoError(t, err)
	assert.True(t, got.Flag)

	require.NoError(t, Remove("/persist", WithDir(dir)))
	_, err = os.Stat(filepath.Join(dir, "persist"))
	assert.True(t, os.IsNotExist(err))
}

// TestFileRegionLockExcludes holds the lock through one handle and checks a
// second handle blocks until it is released. Separate descriptors hold
// separate flocks even inside one process.
func TestFileRegionLockExcludes(t *testing.T) {
	dir := t.TempDir()
	a, err := Open[testPayload]("/excl", nil, WithDir(dir))
	require.NoError(t, err)
	defer a.Close()
	b, err := Open[testPayload]("/excl", nil, WithDir(dir))
	require.NoError(t, err)
	defer b.Close()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- a.Update(0, func(p *testPayload) {
			close(held)
			<-release
			p.Value = 1
		})
	}()
	<-held

	read := make(chan testPayload, 1)
	go func() {
		got, err := b.Read(0)
		assert.NoError(t, err)
		read <- got
	}()

	select {
	case <-read:
		t.Fatal("read completed while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	select {
	case got := <-read:
		assert.Equal(t, int32(1), got.Value)
	case <-time.After(5 * time.Second):
		t.Fatal("read never completed after the lock was released")
	}
}

func TestFileRegionEmptySegmentTimesOut(t *testing.T) {
	dir := t.TempDir()
	// A creator that died between create and ftruncate.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dead"), nil, 0o600))

	clock := &virtualClock{}
	_, err := Open[testPayload]("/dead", nil,
		WithDir(dir),
		WithSleep(clock.Sleep),
		WithTimeout(100*time.Millisecond),
	)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 100, clock.sleeps)
}

func TestFileRegionOpenFailure(t *testing.T) {
	_, err := Open[testPayload]("/nope", nil, WithDir(filepath.Join(t.TempDir(), "missing")))
	assert.ErrorIs(t, err, ErrResource)
}
