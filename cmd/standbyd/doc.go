// Command standbyd watches the peer of a hot-standby PTP pair through the
// shared channels and reports what it sees.
//
// standbyd opens the three channels for its configured domain, runs a
// standby.Monitor on the peer domain and serves /health, /status and
// /metrics. In the standby role it also answers the sync-received handshake
// through standby.SyncAck.
//
// standbyd does not publish its own domain's servo state. Servo samples come
// from the process that owns the clock: that process builds its servo with
// servo.NewFromConfig, wraps it in standby.NewPublisher over the
// /ptp_servo_state channel (plus SetStabilityWriter for
// /ptp_slave_servo_stable) and calls Publisher.Sample for every offset. A
// primary standbyd therefore only monitors its peer; the publishing side
// lives next to the clock.
//
// Environment:
//
//	PTPSTANDBY_CONFIG   TOML configuration file, defaults used when unset
//	PTPSTANDBY_LISTEN   overrides standby.listen
package main
