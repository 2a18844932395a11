// Package shm implements the shared-region protocol that lets independent
// ptpstandby processes publish and consume small fixed-size records through a
// named, memory-mapped segment guarded by a cross-process lock.
//
// # Overview
//
// Each domain daemon serves one time-synchronization domain. Hot-standby
// fail-over needs every daemon to see the lock state of its peers, and the
// daemons start in no particular order. A Region is the primitive that makes
// this safe: whichever process opens a name first creates and initializes the
// segment, every later process attaches to it and waits until the creator has
// published the readiness sentinel.
//
// # Segment Layout
//
//	┌──────────────────────────────────────────┐
//	│ offset 0   ready        uint32           │  0x12345678 once usable
//	│ offset 4   initialized  uint32           │  1 after the first Update
//	│ offset 8   domainID     int32            │  -1 until written
//	│ offset 12  reserved     uint32           │
//	├──────────────────────────────────────────┤
//	│ offset 16  payload      T (fixed size)   │
//	└──────────────────────────────────────────┘
//
// The payload type must be a fixed-size struct without pointers, strings,
// slices, maps, channels, funcs or interfaces. Open rejects anything else.
//
// # Create-or-Attach
//
//  1. Open the existing segment read/write.
//  2. If it does not exist, create it exclusively. If another process wins
//     that race, open the segment it created.
//  3. Creator: size, map, zero, apply payload defaults, set domainID to -1,
//     then store the readiness sentinel as the very last write.
//  4. Attacher: poll every PollInterval (1ms) until the segment has its full
//     size and the sentinel is visible, for at most Timeout (5s). A timeout
//     unmaps and fails with ErrTimeout. There is no automatic retry.
//
// # Locking
//
// Update and Read hold two locks: a sync.Mutex for goroutines sharing one
// Region handle, and the segment lock for other handles and other processes.
// On Linux the segment lock is an exclusive flock(2) on the segment's file
// descriptor, which the kernel drops if the holder dies. Critical sections
// copy one fixed-size struct and nothing else.
//
// # Lifetime
//
// Close unmaps the segment and closes the local descriptor. It never removes
// the name from the namespace: a restarted daemon attaches to the surviving
// segment and recovers the last published peer state. Remove exists for
// operators and is never called by the protocol.
//
// # Errors
//
// Every failure wraps one of ErrResource, ErrLock, ErrTimeout, ErrNoData,
// ErrClosed or ErrUnsupported; use errors.Is to classify.
package shm
