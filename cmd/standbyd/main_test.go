package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ptpstandby/internal/channel"
	"github.com/dreamware/ptpstandby/internal/config"
	"github.com/dreamware/ptpstandby/internal/servo"
	"github.com/dreamware/ptpstandby/internal/shm"
	"github.com/dreamware/ptpstandby/internal/standby"
	"github.com/dreamware/ptpstandby/internal/status"
)

// newTestDaemon returns a standby daemon for domain 1 watching domain 0 and
// a channel set standing in for the primary process.
func newTestDaemon(t *testing.T, role string) (*daemon, *channel.Set) {
	t.Helper()
	ns := shm.NewMemoryNamespace()

	primary, err := channel.OpenAll(shm.WithNamespace(ns))
	require.NoError(t, err)
	t.Cleanup(func() { _ = primary.Close() })

	cfg := config.Default()
	cfg.Standby.Role = role
	cfg.Standby.MaxFailures = 1
	d, err := newDaemon(cfg, shm.WithNamespace(ns))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, primary
}

func TestHandleHealth(t *testing.T) {
	d, _ := newTestDaemon(t, config.RoleStandby)

	t.Run("GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		d.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		var got status.Health
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "ok", got.Status)
		assert.Equal(t, standby.StatusUnknown, got.Peer)
	})

	t.Run("POST", func(t *testing.T) {
		rec := httptest.NewRecorder()
		d.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleStatus(t *testing.T) {
	d, primary := newTestDaemon(t, config.RoleStandby)

	require.NoError(t, primary.ServoState.Update(servo.LockedStable, 0))
	d.monitor.Check()

	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got status.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, config.RoleStandby, got.Role)
	assert.Equal(t, 1, got.Domain)
	assert.Equal(t, 0, got.PeerDomain)
	assert.True(t, got.PeerStable)
	assert.Equal(t, servo.LockedStable, got.Peer.State)
	require.Len(t, got.History, 1)
	require.Len(t, got.Channels, 3)
	assert.Equal(t, channel.ServoStateName, got.Channels[0].Name)
}

// TestStandbyAcknowledgesSync drives the peer through stable and back and
// checks the handshake the primary would read.
func TestStandbyAcknowledgesSync(t *testing.T) {
	d, primary := newTestDaemon(t, config.RoleStandby)

	require.NoError(t, primary.ServoState.Update(servo.LockedStable, 0))
	d.monitor.Check()

	sync, err := primary.SlaveStability.ReadSync()
	require.NoError(t, err)
	assert.Equal(t, channel.SyncState{Received: true, DomainID: 1}, sync)

	// Domain 1 takes over the servo state record: the peer is unreadable.
	require.NoError(t, primary.ServoState.Update(servo.Locked, 1))
	d.monitor.Check()
	assert.False(t, d.monitor.IsAvailable())

	sync, err = primary.SlaveStability.ReadSync()
	require.NoError(t, err)
	assert.False(t, sync.Received)
}

func TestPrimaryDoesNotAcknowledge(t *testing.T) {
	d, primary := newTestDaemon(t, config.RolePrimary)

	require.NoError(t, primary.ServoState.Update(servo.LockedStable, 0))
	d.monitor.Check()
	assert.True(t, d.monitor.IsStable())

	sync, err := primary.SlaveStability.ReadSync()
	require.NoError(t, err)
	assert.Equal(t, shm.NoDomain, sync.DomainID)
}

func TestMetricsEndpoint(t *testing.T) {
	d, _ := newTestDaemon(t, config.RoleStandby)
	d.monitor.Check()

	rec := httptest.NewRecorder()
	d.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ptpstandby_standby_peer_check_failures_total")
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	path := filepath.Join(t.TempDir(), "standby.toml")
	require.NoError(t, os.WriteFile(path, []byte("[standby]\npoll_interval = \"250ms\"\n"), 0o600))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Standby.PollInterval)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestGetenv(t *testing.T) {
	t.Setenv(envListen, "")
	assert.Equal(t, ":9470", getenv(envListen, ":9470"))
	t.Setenv(envListen, "127.0.0.1:1")
	assert.Equal(t, "127.0.0.1:1", getenv(envListen, ":9470"))
}
