// Package status defines the JSON documents a standby daemon serves and the
// helpers its operators use to fetch them.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dreamware/ptpstandby/internal/channel"
	"github.com/dreamware/ptpstandby/internal/standby"
)

// Report is served at /status.
type Report struct {
	Role       string               `json:"role"`
	Peer       standby.PeerHealth   `json:"peer"`
	Channels   []ChannelReport      `json:"channels"`
	History    []standby.Transition `json:"history"`
	Domain     int                  `json:"domain"`
	PeerDomain int                  `json:"peer_domain"`
	PeerStable bool                 `json:"peer_stable"`
}

// ChannelReport is an unfiltered view of one channel segment.
type ChannelReport struct {
	Value       any    `json:"value,omitempty"`
	Name        string `json:"name"`
	Error       string `json:"error,omitempty"`
	DomainID    int    `json:"domain_id"`
	Initialized bool   `json:"initialized"`
}

// Health is served at /health.
type Health struct {
	Status string `json:"status"`
	Peer   string `json:"peer"`
}

// Channels snapshots every channel in set. A failed snapshot is reported in
// its entry rather than failing the whole report.
func Channels(set *channel.Set) []ChannelReport {
	reports := make([]ChannelReport, 0, len(channel.Names))

	if snap, err := set.ServoState.Snapshot(); err != nil {
		reports = append(reports, ChannelReport{Name: channel.ServoStateName, Error: err.Error()})
	} else {
		reports = append(reports, ChannelReport{
			Name:        channel.ServoStateName,
			Initialized: snap.Initialized,
			DomainID:    snap.DomainID,
			Value:       map[string]any{"state": snap.Payload.State.String()},
		})
	}

	if snap, err := set.MasterRestart.Snapshot(); err != nil {
		reports = append(reports, ChannelReport{Name: channel.MasterRestartName, Error: err.Error()})
	} else {
		reports = append(reports, ChannelReport{
			Name:        channel.MasterRestartName,
			Initialized: snap.Initialized,
			DomainID:    snap.DomainID,
			Value:       map[string]any{"detected": snap.Payload.Detected},
		})
	}

	if snap, err := set.SlaveStability.Snapshot(); err != nil {
		reports = append(reports, ChannelReport{Name: channel.SlaveStabilityName, Error: err.Error()})
	} else {
		reports = append(reports, ChannelReport{
			Name:        channel.SlaveStabilityName,
			Initialized: snap.Initialized,
			DomainID:    snap.DomainID,
			Value: map[string]any{
				"stable":         snap.Payload.Stable,
				"sync_received":  snap.Payload.SyncReceived,
				"sync_domain_id": snap.Payload.SyncDomainID,
			},
		})
	}
	return reports
}

var daemonClient = &http.Client{Timeout: 5 * time.Second}

// ReportURL turns a daemon address such as "localhost:9470" or
// "http://host:9470/" into the URL of its /status document.
func ReportURL(addr string) string {
	u := strings.TrimSpace(addr)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/") + "/status"
}

// FetchReport asks the standbyd listening on addr for its Report.
//
// Parameters:
//   - ctx: bounds the request in addition to the client timeout
//   - addr: daemon address, with or without scheme
//
// A non-2xx answer fails with the status code and the start of the body.
func FetchReport(ctx context.Context, addr string) (Report, error) {
	var report Report
	url := ReportURL(addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return report, fmt.Errorf("status: build request for %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := daemonClient.Do(req)
	if err != nil {
		return report, fmt.Errorf("status: query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return report, fmt.Errorf("status: %s answered %d: %s",
			url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return report, fmt.Errorf("status: decode report from %s: %w", url, err)
	}
	return report, nil
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(v)
}
