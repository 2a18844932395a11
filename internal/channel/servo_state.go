package channel

import (
	"fmt"

	"github.com/dreamware/ptpstandby/internal/servo"
	"github.com/dreamware/ptpstandby/internal/shm"
)

// ServoStateName is the segment carrying servo lock states.
const ServoStateName = "/ptp_servo_state"

// ServoStatePayload is the record stored in ServoStateName.
type ServoStatePayload struct {
	State servo.State
}

// ServoState is a handle on the servo state channel.
type ServoState struct {
	region *shm.Region[ServoStatePayload]
}

// OpenServoState creates or attaches to the servo state channel.
func OpenServoState(opts ...shm.Option) (*ServoState, error) {
	region, err := shm.Open[ServoStatePayload](ServoStateName, nil, opts...)
	if err != nil {
		return nil, err
	}
	return &ServoState{region: region}, nil
}

// Update publishes state as written by domainID.
func (c *ServoState) Update(state servo.State, domainID int) error {
	if !state.Valid() {
		return fmt.Errorf("publish servo state: invalid state %d", int(state))
	}
	return c.region.Update(domainID, func(p *ServoStatePayload) {
		p.State = state
	})
}

// Read returns the state last written by domainID.
func (c *ServoState) Read(domainID int) (servo.State, error) {
	p, err := c.region.Read(domainID)
	if err != nil {
		return servo.Unlocked, err
	}
	return p.State, nil
}

// Snapshot returns the raw record regardless of writer.
func (c *ServoState) Snapshot() (shm.Snapshot[ServoStatePayload], error) {
	return c.region.Snapshot()
}

// Created reports whether this handle created the segment.
func (c *ServoState) Created() bool { return c.region.Created() }

// Close detaches from the channel. The segment stays.
func (c *ServoState) Close() error {
	return c.region.Close()
}
