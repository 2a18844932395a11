package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/ptpstandby/internal/channel"
	"github.com/dreamware/ptpstandby/internal/servo"
	"github.com/dreamware/ptpstandby/internal/shm"
	"github.com/dreamware/ptpstandby/internal/standby"
)

func TestReportURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{"localhost:9470", "http://localhost:9470/status"},
		{" localhost:9470/ ", "http://localhost:9470/status"},
		{"http://10.0.0.1:9470", "http://10.0.0.1:9470/status"},
		{"https://standby.example:443/", "https://standby.example:443/status"},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, ReportURL(tt.addr))
		})
	}
}

func TestFetchReport(t *testing.T) {
	t.Run("decodes report", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/status", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			_ = WriteJSON(w, http.StatusOK, Report{
				Role:       "standby",
				Domain:     1,
				PeerDomain: 0,
				Peer:       standby.PeerHealth{Domain: 0, Status: standby.StatusAvailable, State: servo.LockedStable, StateKnown: true},
				PeerStable: true,
			})
		}))
		defer server.Close()

		got, err := FetchReport(context.Background(), strings.TrimPrefix(server.URL, "http://"))
		require.NoError(t, err)
		assert.Equal(t, "standby", got.Role)
		assert.Equal(t, 1, got.Domain)
		assert.Equal(t, servo.LockedStable, got.Peer.State)
		assert.True(t, got.PeerStable)
	})

	t.Run("error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := FetchReport(context.Background(), server.URL)
		assert.ErrorContains(t, err, "answered 503: down")
	})

	t.Run("bad body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		_, err := FetchReport(context.Background(), server.URL)
		assert.ErrorContains(t, err, "status: decode report")
	})

	t.Run("canceled context", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := FetchReport(ctx, server.URL)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestChannels(t *testing.T) {
	ns := shm.NewMemoryNamespace()
	set, err := channel.OpenAll(shm.WithNamespace(ns))
	require.NoError(t, err)
	defer set.Close()

	require.NoError(t, set.ServoState.Update(servo.Jump, 0))
	require.NoError(t, set.SlaveStability.UpdateSync(true, 1))

	reports := Channels(set)
	require.Len(t, reports, 3)

	assert.Equal(t, channel.ServoStateName, reports[0].Name)
	assert.True(t, reports[0].Initialized)
	assert.Equal(t, 0, reports[0].DomainID)
	assert.Equal(t, map[string]any{"state": "jump"}, reports[0].Value)

	assert.Equal(t, channel.MasterRestartName, reports[1].Name)
	assert.False(t, reports[1].Initialized)
	assert.Equal(t, shm.NoDomain, reports[1].DomainID)

	assert.Equal(t, channel.SlaveStabilityName, reports[2].Name)
	assert.False(t, reports[2].Initialized)
	assert.Equal(t, true, reports[2].Value.(map[string]any)["sync_received"])

	require.NoError(t, set.Close())
	for _, r := range Channels(set) {
		assert.Contains(t, r.Error, "closed")
	}
}
