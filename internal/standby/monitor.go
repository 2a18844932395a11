package standby

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dreamware/ptpstandby/internal/metrics"
	"github.com/dreamware/ptpstandby/internal/servo"
	"github.com/dreamware/ptpstandby/internal/shm"
)

// Peer availability as seen by the Monitor.
const (
	StatusUnknown     = "unknown"
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
)

// DefaultHistoryLimit bounds the number of state transitions kept.
const DefaultHistoryLimit = 64

// StateReader reads a domain's published servo state.
// *channel.ServoState implements it.
type StateReader interface {
	Read(domainID int) (servo.State, error)
}

// RestartReader reads a domain's master-restart flag.
// *channel.MasterRestart implements it.
type RestartReader interface {
	Read(domainID int) (bool, error)
}

// PeerHealth tracks what the Monitor knows about the peer domain. State is
// Unlocked until StateKnown; LastHealthy is the last successful state read.
// Thread-safe: Protected by Monitor's mutex when accessed.
type PeerHealth struct {
	LastCheck        time.Time   `json:"last_check"`
	LastHealthy      time.Time   `json:"last_healthy"`
	Status           string      `json:"status"`
	LastError        string      `json:"last_error,omitempty"`
	Domain           int         `json:"domain"`
	State            servo.State `json:"state"`
	StateKnown       bool        `json:"state_known"`
	MasterRestart    bool        `json:"master_restart"`
	ConsecutiveFails int         `json:"consecutive_fails"`
}

// Transition is one observed change of the peer's servo state.
type Transition struct {
	At   time.Time   `json:"at"`
	From servo.State `json:"from"`
	To   servo.State `json:"to"`
}

// Monitor periodically reads the peer domain's shared channels and decides
// whether the peer is available. A peer is unavailable after maxFailures
// consecutive failed reads of its servo state; one good read recovers it.
//
// The Monitor never re-opens a channel. A detached or timed-out channel
// shows up as failed reads.
//
// mu protects health, history and the callbacks; history holds Transition
// values, oldest first.
// Thread-safe: All methods are safe for concurrent access.
type Monitor struct {
	states        StateReader
	restarts      RestartReader
	onUnavailable func(domain int)
	onRecovered   func(domain int)
	onStateChange func(domain int, from, to servo.State)
	now           func() time.Time
	history       *queue.Queue
	ctx           context.Context
	cancel        context.CancelFunc
	log           zerolog.Logger
	health        PeerHealth
	interval      time.Duration
	mu            sync.RWMutex
	wg            sync.WaitGroup
	maxFailures   int
	historyLimit  int
}

// NewMonitor creates a monitor for peerDomain that reads states every
// interval. The peer is marked unavailable after 3 consecutive failures.
//
// Example:
//
//	monitor := standby.NewMonitor(0, time.Second, channels.ServoState)
//	monitor.SetRestartReader(channels.MasterRestart)
//	go monitor.Start(ctx)
func NewMonitor(peerDomain int, interval time.Duration, states StateReader) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		states:       states,
		interval:     interval,
		maxFailures:  3,
		historyLimit: DefaultHistoryLimit,
		history:      queue.New(),
		now:          time.Now,
		log:          log.Logger.With().Int("peer_domain", peerDomain).Logger(),
		health: PeerHealth{
			Domain: peerDomain,
			Status: StatusUnknown,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetRestartReader makes every check also read the peer's master-restart
// flag. A missing flag is not a failure: the peer may never have written one.
func (m *Monitor) SetRestartReader(r RestartReader) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts = r
}

// SetOnUnavailable sets the callback invoked once when the peer becomes
// unavailable. This is where a standby takes over.
func (m *Monitor) SetOnUnavailable(callback func(domain int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUnavailable = callback
}

// SetOnRecovered sets the callback invoked when an unavailable peer is
// readable again.
func (m *Monitor) SetOnRecovered(callback func(domain int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRecovered = callback
}

// SetOnStateChange sets the callback invoked when the peer's published
// state changes, including the first state read.
func (m *Monitor) SetOnStateChange(callback func(domain int, from, to servo.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = callback
}

// SetMaxFailures sets the consecutive failures that make the peer
// unavailable. Values below 1 are treated as 1.
func (m *Monitor) SetMaxFailures(n int) {
	if n < 1 {
		n = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxFailures = n
}

// SetHistoryLimit bounds the transition history. Values below 1 disable it.
func (m *Monitor) SetHistoryLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyLimit = n
	m.trimHistory()
}

// SetLogger replaces the monitor's logger. Call it before Start.
func (m *Monitor) SetLogger(logger zerolog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = logger.With().Int("peer_domain", m.health.Domain).Logger()
}

// Start checks the peer immediately and then every interval. It blocks
// until ctx or the monitor is canceled.
//
// Example:
//
//	go monitor.Start(ctx)
//	defer monitor.Stop()
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Info().Dur("interval", m.interval).Msg("peer monitor started")

	m.Check()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-ctx.Done():
			m.log.Info().Msg("peer monitor stopping due to context cancellation")
			return
		case <-m.ctx.Done():
			m.log.Info().Msg("peer monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the monitoring loop and waits for it to return.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
	m.log.Info().Msg("peer monitor stopped")
}

// Check performs one check of the peer. Start calls it on every tick; it
// is exported for callers that drive the monitor themselves.
//
// Implementation:
//  1. Read the peer's servo state, then its master-restart flag
//  2. Update the health record under the lock
//  3. Queue callbacks for availability and state changes
//  4. Run the callbacks after the lock is released
func (m *Monitor) Check() {
	m.mu.RLock()
	domain := m.health.Domain
	restarts := m.restarts
	m.mu.RUnlock()

	state, stateErr := m.states.Read(domain)

	var restart bool
	var restartErr error
	if stateErr == nil && restarts != nil {
		restart, restartErr = restarts.Read(domain)
	}

	var pending []func()

	m.mu.Lock()
	h := &m.health
	h.LastCheck = m.now()

	if stateErr != nil {
		h.ConsecutiveFails++
		h.LastError = stateErr.Error()
		metrics.RecordPeerCheckFailure(domain)

		level := zerolog.WarnLevel
		if errors.Is(stateErr, shm.ErrNoData) {
			level = zerolog.DebugLevel
		}
		m.log.WithLevel(level).Err(stateErr).
			Int("attempt", h.ConsecutiveFails).
			Int("max_failures", m.maxFailures).
			Msg("peer state check failed")

		if h.ConsecutiveFails >= m.maxFailures && h.Status != StatusUnavailable {
			h.Status = StatusUnavailable
			metrics.SetPeerAvailable(domain, false)
			m.log.Warn().Int("failures", h.ConsecutiveFails).Msg("peer marked unavailable")
			if cb := m.onUnavailable; cb != nil {
				pending = append(pending, func() { cb(domain) })
			}
		}
	} else {
		if h.Status == StatusUnavailable {
			m.log.Info().Msg("peer recovered and is available again")
			if cb := m.onRecovered; cb != nil {
				pending = append(pending, func() { cb(domain) })
			}
		}
		h.Status = StatusAvailable
		h.ConsecutiveFails = 0
		h.LastError = ""
		h.LastHealthy = h.LastCheck
		metrics.SetPeerAvailable(domain, true)

		if !h.StateKnown || h.State != state {
			from := h.State
			m.recordTransition(from, state, h.LastCheck)
			m.log.Info().Stringer("from", from).Stringer("to", state).Msg("peer servo state changed")
			if cb := m.onStateChange; cb != nil {
				pending = append(pending, func() { cb(domain, from, state) })
			}
		}
		h.State = state
		h.StateKnown = true

		switch {
		case restartErr == nil:
			if restarts != nil {
				if restart && !h.MasterRestart {
					m.log.Warn().Msg("peer reports master restart")
				}
				h.MasterRestart = restart
			}
		case errors.Is(restartErr, shm.ErrNoData):
			h.MasterRestart = false
		default:
			m.log.Warn().Err(restartErr).Msg("peer master-restart read failed")
		}
	}
	m.mu.Unlock()

	for _, cb := range pending {
		cb()
	}
}

// recordTransition appends to the bounded history. Caller holds m.mu.
func (m *Monitor) recordTransition(from, to servo.State, at time.Time) {
	if m.historyLimit < 1 {
		return
	}
	m.history.Add(Transition{At: at, From: from, To: to})
	m.trimHistory()
}

func (m *Monitor) trimHistory() {
	for m.history.Length() > 0 && m.history.Length() > m.historyLimit {
		m.history.Remove()
	}
}

// PeerHealth returns a copy of the peer's health record.
func (m *Monitor) PeerHealth() PeerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health
}

// IsAvailable reports whether the last check of the peer succeeded within
// the failure budget.
func (m *Monitor) IsAvailable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health.Status == StatusAvailable
}

// IsStable reports whether the peer is available and publishes
// LockedStable.
func (m *Monitor) IsStable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.health.Status == StatusAvailable && m.health.StateKnown && m.health.State == servo.LockedStable
}

// History returns the recorded transitions, oldest first.
func (m *Monitor) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Transition, 0, m.history.Length())
	for i := 0; i < m.history.Length(); i++ {
		out = append(out, m.history.Get(i).(Transition))
	}
	return out
}
