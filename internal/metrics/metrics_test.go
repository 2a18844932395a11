package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordServoSample(t *testing.T) {
	RecordServoSample("metrics-test", "locked", 2)
	RecordServoSample("metrics-test", "locked", 2)
	RecordServoSample("metrics-test", "locked_stable", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(servoSamples.WithLabelValues("metrics-test", "locked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(servoState.WithLabelValues("metrics-test")))
}

func TestPeerMetrics(t *testing.T) {
	SetPeerAvailable(42, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(peerAvailable.WithLabelValues("42")))
	SetPeerAvailable(42, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(peerAvailable.WithLabelValues("42")))

	before := testutil.ToFloat64(peerCheckFailures.WithLabelValues("42"))
	RecordPeerCheckFailure(42)
	assert.Equal(t, before+1, testutil.ToFloat64(peerCheckFailures.WithLabelValues("42")))
}

func TestRegionMetrics(t *testing.T) {
	RecordRegionError("/metrics_test", "lock")
	assert.Equal(t, 1.0, testutil.ToFloat64(regionErrors.WithLabelValues("/metrics_test", "lock")))

	ObserveLockWait("/metrics_test", time.Microsecond)
	ObserveAttach("/metrics_test", true, time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(regionLockWait, "ptpstandby_shm_lock_wait_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(regionAttach, "ptpstandby_shm_open_duration_seconds"))
}

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}
