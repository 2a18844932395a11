// Package standby connects servos to the shared channels for a hot-standby
// pair of PTP instances.
//
// The primary side wraps its servo in a Publisher, which writes the observed
// servo state (and optionally slave stability) for its domain whenever it
// changes. The standby side runs a Monitor on the primary's domain: it polls
// the servo state and master-restart channels, counts consecutive failed
// reads, and fires callbacks when the peer becomes unavailable, recovers or
// changes state. SyncAck turns the peer's state changes into the
// sync-received handshake.
//
// Architecture:
//
//	primary process                          standby process
//	+-----------+    +---------------+       +---------+
//	| Publisher | -> | /ptp_servo_   | <---- | Monitor | -> callbacks
//	+-----------+    | state         |       +---------+
//	                 +---------------+            |
//	                 | /ptp_slave_   | <---- SyncAck
//	                 | servo_stable  |
//	                 +---------------+
package standby
