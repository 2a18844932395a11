// Package servo dispatches clock offset samples to a pluggable control loop
// ("variant") and derives the servo state other domains observe.
//
// # Variants
//
// Concrete control loops (PI, linear regression, NTP SHM, null filter,
// reference clock socket) live outside this package. Each registers a
// Constructor for its Type, normally from an init function:
//
//	func init() {
//	    servo.Register(servo.PI, newPIServo)
//	}
//
// A variant implements Variant (Sample, SyncInterval, Reset, Destroy) and may
// add RateRatioer, Leaper and PolicyAware. The dispatcher detects the optional
// ones with type assertions and falls back to 1.0 and a no-op.
//
// # Stability
//
// A variant reports a RawState: unlocked, jump or locked. The dispatcher turns
// it into a State with a hysteresis countdown:
//
//	raw        countdown                          observed
//	unlocked   reset to NumOffsetValues           Unlocked
//	jump       reset to NumOffsetValues           Jump
//	locked     |offset| < threshold: decrement    LockedStable at 0, else Locked
//	           otherwise: reset
//
// The countdown only runs when the offset threshold is positive. LockedStable
// cannot come from a variant: RawState has no such value.
//
// # Ownership
//
// A Servo is owned by one control loop goroutine. It does no locking.
package servo
