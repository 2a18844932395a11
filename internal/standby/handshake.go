package standby

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dreamware/ptpstandby/internal/servo"
)

// SyncWriter writes the sync-received handshake.
// *channel.SlaveStability implements it.
type SyncWriter interface {
	UpdateSync(received bool, domainID int) error
}

// SyncAck raises the sync-received handshake for its domain while the peer
// publishes LockedStable and lowers it when the peer leaves that state.
// Install OnStateChange on a Monitor.
type SyncAck struct {
	w      SyncWriter
	log    zerolog.Logger
	domain int
}

// NewSyncAck returns a SyncAck that writes the handshake as domainID.
//
// Example:
//
//	ack := standby.NewSyncAck(channels.SlaveStability, 1)
//	monitor.SetOnStateChange(ack.OnStateChange)
func NewSyncAck(w SyncWriter, domainID int) *SyncAck {
	return &SyncAck{
		w:      w,
		domain: domainID,
		log:    log.Logger.With().Int("domain", domainID).Logger(),
	}
}

// OnStateChange matches Monitor.SetOnStateChange.
func (a *SyncAck) OnStateChange(peer int, from, to servo.State) {
	received := to == servo.LockedStable
	if received == (from == servo.LockedStable) {
		return
	}
	if err := a.w.UpdateSync(received, a.domain); err != nil {
		a.log.Error().Err(err).Int("peer_domain", peer).Msg("failed to write sync handshake")
		return
	}
	a.log.Info().Bool("received", received).Int("peer_domain", peer).Msg("sync handshake written")
}

// OnUnavailable lowers the handshake. It matches Monitor.SetOnUnavailable.
func (a *SyncAck) OnUnavailable(peer int) {
	if err := a.w.UpdateSync(false, a.domain); err != nil {
		a.log.Error().Err(err).Int("peer_domain", peer).Msg("failed to clear sync handshake")
	}
}
