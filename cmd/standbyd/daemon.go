package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dreamware/ptpstandby/internal/channel"
	"github.com/dreamware/ptpstandby/internal/config"
	"github.com/dreamware/ptpstandby/internal/shm"
	"github.com/dreamware/ptpstandby/internal/standby"
	"github.com/dreamware/ptpstandby/internal/status"
)

type daemon struct {
	cfg      *config.Config
	channels *channel.Set
	monitor  *standby.Monitor
	log      zerolog.Logger
}

// newDaemon opens the channels and wires the peer monitor for cfg's role.
// A standby acknowledges sync while the peer is stable; both roles log
// when the peer becomes unavailable.
func newDaemon(cfg *config.Config, opts ...shm.Option) (*daemon, error) {
	channels, err := channel.OpenAll(opts...)
	if err != nil {
		return nil, err
	}

	sb := cfg.Standby
	d := &daemon{
		cfg:      cfg,
		channels: channels,
		log: log.Logger.With().
			Str("role", sb.Role).
			Int("domain", sb.Domain).
			Logger(),
	}

	d.monitor = standby.NewMonitor(sb.PeerDomain, sb.PollInterval, channels.ServoState)
	d.monitor.SetRestartReader(channels.MasterRestart)
	d.monitor.SetMaxFailures(sb.MaxFailures)

	var ack *standby.SyncAck
	if sb.Role == config.RoleStandby {
		ack = standby.NewSyncAck(channels.SlaveStability, sb.Domain)
		d.monitor.SetOnStateChange(ack.OnStateChange)
	}
	d.monitor.SetOnUnavailable(func(peer int) {
		d.log.Warn().Int("peer_domain", peer).Msg("peer unavailable")
		if ack != nil {
			ack.OnUnavailable(peer)
		}
	})
	d.monitor.SetOnRecovered(func(peer int) {
		d.log.Info().Int("peer_domain", peer).Msg("peer recovered")
	})

	d.log.Info().
		Int("peer_domain", sb.PeerDomain).
		Bool("created_servo_state", channels.ServoState.Created()).
		Msg("shared channels open")
	return d, nil
}

func (d *daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/status", d.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (d *daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_ = status.WriteJSON(w, http.StatusOK, status.Health{
		Status: "ok",
		Peer:   d.monitor.PeerHealth().Status,
	})
}

func (d *daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_ = status.WriteJSON(w, http.StatusOK, d.report())
}

func (d *daemon) report() status.Report {
	return status.Report{
		Role:       d.cfg.Standby.Role,
		Domain:     d.cfg.Standby.Domain,
		PeerDomain: d.cfg.Standby.PeerDomain,
		Peer:       d.monitor.PeerHealth(),
		PeerStable: d.monitor.IsStable(),
		History:    d.monitor.History(),
		Channels:   status.Channels(d.channels),
	}
}

func (d *daemon) Close() error {
	return d.channels.Close()
}
