// Package metrics holds the Prometheus collectors shared by the servo
// dispatcher, the shared-region protocol and the standby monitor.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	servoSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ptpstandby",
			Subsystem: "servo",
			Name:      "samples_total",
			Help:      "Offset samples fed to a servo, by observed state.",
		},
		[]string{"servo", "state"},
	)
	servoState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ptpstandby",
			Subsystem: "servo",
			Name:      "state",
			Help:      "Observed servo state (0 unlocked, 1 jump, 2 locked, 3 locked stable).",
		},
		[]string{"servo"},
	)
	regionLockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ptpstandby",
			Subsystem: "shm",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring a shared region lock.",
			Buckets:   []float64{1e-6, 1e-5, 1e-4, 1e-3, 1e-2, 1e-1},
		},
		[]string{"region"},
	)
	regionAttach = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ptpstandby",
			Subsystem: "shm",
			Name:      "open_duration_seconds",
			Help:      "Time to create or attach to a shared region.",
			Buckets:   []float64{1e-4, 1e-3, 1e-2, 1e-1, 1, 5},
		},
		[]string{"region", "created"},
	)
	regionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ptpstandby",
			Subsystem: "shm",
			Name:      "errors_total",
			Help:      "Shared region failures by kind.",
		},
		[]string{"region", "kind"},
	)
	peerAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "ptpstandby",
			Subsystem: "standby",
			Name:      "peer_available",
			Help:      "1 while the peer domain publishes readable state.",
		},
		[]string{"domain"},
	)
	peerCheckFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ptpstandby",
			Subsystem: "standby",
			Name:      "peer_check_failures_total",
			Help:      "Failed reads of the peer domain's state.",
		},
		[]string{"domain"},
	)
)

// Register adds every collector to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			servoSamples, servoState,
			regionLockWait, regionAttach, regionErrors,
			peerAvailable, peerCheckFailures,
		)
	})
}

// RecordServoSample counts a sample and sets the servo state gauge.
func RecordServoSample(servo, state string, stateValue int) {
	Register()
	servoSamples.WithLabelValues(servo, state).Inc()
	servoState.WithLabelValues(servo).Set(float64(stateValue))
}

// ObserveLockWait records how long a region lock took to acquire.
func ObserveLockWait(region string, d time.Duration) {
	Register()
	regionLockWait.WithLabelValues(region).Observe(d.Seconds())
}

// ObserveAttach records how long create or attach took for region.
func ObserveAttach(region string, created bool, d time.Duration) {
	Register()
	regionAttach.WithLabelValues(region, strconv.FormatBool(created)).Observe(d.Seconds())
}

// RecordRegionError counts a region failure of the given kind.
func RecordRegionError(region, kind string) {
	Register()
	regionErrors.WithLabelValues(region, kind).Inc()
}

// SetPeerAvailable sets the peer availability gauge for domain.
func SetPeerAvailable(domain int, available bool) {
	Register()
	v := 0.0
	if available {
		v = 1
	}
	peerAvailable.WithLabelValues(strconv.Itoa(domain)).Set(v)
}

// RecordPeerCheckFailure counts a failed read of domain's state.
func RecordPeerCheckFailure(domain int) {
	Register()
	peerCheckFailures.WithLabelValues(strconv.Itoa(domain)).Inc()
}
