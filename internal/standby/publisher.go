package standby

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dreamware/ptpstandby/internal/servo"
)

// StateWriter publishes a domain's servo state.
// *channel.ServoState implements it.
type StateWriter interface {
	Update(state servo.State, domainID int) error
}

// StabilityWriter publishes whether a domain's slave servo is stable.
// *channel.SlaveStability implements it.
type StabilityWriter interface {
	Update(stable bool, domainID int) error
}

// Publisher feeds samples to a servo and publishes the observed state for
// its domain whenever it changes. A Publisher belongs to the servo's
// control loop and, like the servo, does no locking.
type Publisher struct {
	servo     *servo.Servo
	states    StateWriter
	stability StabilityWriter
	log       zerolog.Logger
	domain    int
	last      servo.State
	published bool
}

// NewPublisher publishes s's state to states as domainID.
func NewPublisher(s *servo.Servo, states StateWriter, domainID int) *Publisher {
	return &Publisher{
		servo:  s,
		states: states,
		domain: domainID,
		log:    log.Logger.With().Str("servo", s.Name()).Int("domain", domainID).Logger(),
	}
}

// SetStabilityWriter also publishes "stable" (state is LockedStable)
// alongside every state change.
func (p *Publisher) SetStabilityWriter(w StabilityWriter) {
	p.stability = w
}

// Sample runs one servo sample and publishes the resulting state if it
// differs from the last one published. The adjustment and state are valid
// even when publishing fails; the next sample retries the publish.
func (p *Publisher) Sample(offset int64, localTS uint64, weight float64) (float64, servo.State, error) {
	adj, state := p.servo.Sample(offset, localTS, weight)
	if p.published && state == p.last {
		return adj, state, nil
	}
	if err := p.Publish(state); err != nil {
		return adj, state, err
	}
	return adj, state, nil
}

// Publish writes state unconditionally.
func (p *Publisher) Publish(state servo.State) error {
	if err := p.states.Update(state, p.domain); err != nil {
		p.published = false
		p.log.Error().Err(err).Stringer("state", state).Msg("failed to publish servo state")
		return fmt.Errorf("publish servo state %s: %w", state, err)
	}
	if p.stability != nil {
		if err := p.stability.Update(state == servo.LockedStable, p.domain); err != nil {
			p.published = false
			p.log.Error().Err(err).Msg("failed to publish slave stability")
			return fmt.Errorf("publish slave stability: %w", err)
		}
	}

	if p.published {
		p.log.Debug().Stringer("from", p.last).Stringer("to", state).Msg("servo state published")
	} else {
		p.log.Debug().Stringer("state", state).Msg("servo state published")
	}
	p.last = state
	p.published = true
	return nil
}

// Reset resets the servo and publishes the resulting Unlocked state.
func (p *Publisher) Reset() error {
	p.servo.Reset()
	return p.Publish(servo.Unlocked)
}

// Servo returns the wrapped servo.
func (p *Publisher) Servo() *servo.Servo {
	return p.servo
}

// Last returns the last state published and whether anything was.
func (p *Publisher) Last() (servo.State, bool) {
	return p.last, p.published
}
