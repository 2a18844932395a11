package servo

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dreamware/ptpstandby/internal/config"
	"github.com/dreamware/ptpstandby/internal/metrics"
)

const nsPerSec = 1e9

var (
	// ErrUnknownType is returned for a type with no registered constructor.
	ErrUnknownType = errors.New("servo: unknown servo type")

	// ErrConstruction is returned when a variant constructor fails.
	ErrConstruction = errors.New("servo: variant construction failed")
)

// Servo dispatches samples to a variant and derives the observed state.
//
// A Servo belongs to one control loop. It does no locking: concurrent calls
// on the same Servo must be serialized by the caller.
type Servo struct {
	variant            Variant
	log                zerolog.Logger
	name               string
	stepThreshold      float64
	firstStepThreshold float64
	typ                Type
	maxFrequency       int
	offsetThreshold    int
	numOffsetValues    int
	currOffsetValues   int
	firstUpdate        bool
}

// Option configures New.
type Option func(*options)

type options struct {
	registry *Registry
	logger   zerolog.Logger
	name     string
}

// WithRegistry selects constructors from r instead of DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger sets the servo's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithName labels the servo in logs and metrics, e.g. "domain0".
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// New constructs the variant registered for typ and applies the uniform
// policy from cfg.Servo:
//
//   - step thresholds are converted from seconds to nanoseconds, values
//     not above zero disable them;
//   - max frequency is maxPPB, lowered to cfg.Servo.MaxFrequency when that
//     is set and smaller;
//   - offset threshold and count are taken verbatim.
//
// fadj is the clock's current adjustment in ppb and swTS tells the variant
// that samples come from software time stamping.
func New(cfg *config.Config, typ Type, fadj float64, maxPPB int, swTS bool, opts ...Option) (*Servo, error) {
	o := options{registry: DefaultRegistry, logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.name == "" {
		o.name = typ.String()
	}
	if cfg == nil {
		cfg = config.Default()
	}

	ctor, ok := o.registry.Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	variant, err := ctor(Params{
		Config:               cfg,
		FrequencyAdjustment:  fadj,
		MaxPPB:               maxPPB,
		SoftwareTimestamping: swTS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConstruction, typ, err)
	}
	if variant == nil {
		return nil, fmt.Errorf("%w: %s: constructor returned no variant", ErrConstruction, typ)
	}

	s := &Servo{
		variant: variant,
		typ:     typ,
		name:    o.name,
		log:     o.logger.With().Str("servo", o.name).Logger(),
	}

	if cfg.Servo.StepThreshold > 0 {
		s.stepThreshold = cfg.Servo.StepThreshold * nsPerSec
	}
	if cfg.Servo.FirstStepThreshold > 0 {
		s.firstStepThreshold = cfg.Servo.FirstStepThreshold * nsPerSec
	}

	s.maxFrequency = maxPPB
	if ceiling := cfg.Servo.MaxFrequency; ceiling > 0 && s.maxFrequency > ceiling {
		s.maxFrequency = ceiling
	}

	s.firstUpdate = true
	s.offsetThreshold = cfg.Servo.OffsetThreshold
	s.numOffsetValues = cfg.Servo.NumOffsetValues
	s.currOffsetValues = s.numOffsetValues

	if pa, ok := variant.(PolicyAware); ok {
		pa.UsePolicy(s)
	}

	s.log.Debug().
		Int("max_frequency", s.maxFrequency).
		Float64("step_threshold_ns", s.stepThreshold).
		Float64("first_step_threshold_ns", s.firstStepThreshold).
		Int("offset_threshold_ns", s.offsetThreshold).
		Int("num_offset_values", s.numOffsetValues).
		Msg("servo created")
	return s, nil
}

// NewFromConfig is New with the variant named by cfg.Servo.ClockServo.
func NewFromConfig(cfg *config.Config, fadj float64, maxPPB int, swTS bool, opts ...Option) (*Servo, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	typ, err := ParseType(cfg.Servo.ClockServo)
	if err != nil {
		return nil, err
	}
	return New(cfg, typ, fadj, maxPPB, swTS, opts...)
}

// Sample feeds one sample to the variant and returns its adjustment in ppb,
// unchanged, with the observed state. Applying the adjustment to a clock is
// the caller's job.
func (s *Servo) Sample(offset int64, localTS uint64, weight float64) (float64, State) {
	adj, raw := s.variant.Sample(offset, localTS, weight)
	state := s.observe(raw, offset)
	metrics.RecordServoSample(s.name, state.String(), int(state))
	return adj, state
}

// observe maps a raw state to the observed state and runs the stability
// countdown. Any raw state other than Locked restarts the countdown.
func (s *Servo) observe(raw RawState, offset int64) State {
	switch raw.State() {
	case Jump:
		s.currOffsetValues = s.numOffsetValues
		s.firstUpdate = false
		return Jump
	case Locked:
		s.firstUpdate = false
		if s.checkOffsetThreshold(offset) {
			return LockedStable
		}
		return Locked
	default:
		s.currOffsetValues = s.numOffsetValues
		return Unlocked
	}
}

// checkOffsetThreshold counts down while offsets stay inside the threshold
// and reports whether the countdown has reached zero.
func (s *Servo) checkOffsetThreshold(offset int64) bool {
	if s.offsetThreshold <= 0 {
		return false
	}
	if absOffset(offset) < uint64(s.offsetThreshold) {
		if s.currOffsetValues > 0 {
			s.currOffsetValues--
		}
	} else {
		s.currOffsetValues = s.numOffsetValues
	}
	return s.currOffsetValues == 0
}

func absOffset(offset int64) uint64 {
	if offset < 0 {
		return uint64(-(offset + 1)) + 1
	}
	return uint64(offset)
}

// SyncInterval forwards the master's sync interval in seconds.
func (s *Servo) SyncInterval(seconds float64) {
	s.variant.SyncInterval(seconds)
}

// Reset forwards to the variant. The stability countdown is left alone; the
// variant's next sample reports Unlocked, which restarts it.
func (s *Servo) Reset() {
	s.variant.Reset()
}

// RateRatio returns the variant's master/local frequency ratio, or 1.0 when
// the variant cannot estimate it.
func (s *Servo) RateRatio() float64 {
	if rr, ok := s.variant.(RateRatioer); ok {
		return rr.RateRatio()
	}
	return 1.0
}

// Leap forwards a leap second notice: +1 insert, -1 delete, 0 passed.
// Variants without leap handling ignore it.
func (s *Servo) Leap(direction int) {
	if l, ok := s.variant.(Leaper); ok {
		l.Leap(direction)
	}
}

// Close destroys the variant. The Servo must not be used afterwards.
func (s *Servo) Close() {
	s.variant.Destroy()
}

// OffsetThreshold returns the configured stability threshold in nanoseconds.
func (s *Servo) OffsetThreshold() int { return s.offsetThreshold }

// MaxFrequency returns the clamped adjustment limit in ppb.
func (s *Servo) MaxFrequency() int { return s.maxFrequency }

// StepThreshold returns the step threshold in nanoseconds, 0 when disabled.
func (s *Servo) StepThreshold() float64 { return s.stepThreshold }

// FirstStepThreshold returns the first step threshold in nanoseconds.
func (s *Servo) FirstStepThreshold() float64 { return s.firstStepThreshold }

// FirstUpdate is true until the first Jump or Locked sample.
func (s *Servo) FirstUpdate() bool { return s.firstUpdate }

// NumOffsetValues returns how many consecutive in-threshold Locked samples
// make the servo LockedStable.
func (s *Servo) NumOffsetValues() int { return s.numOffsetValues }

// CurrOffsetValues returns the remaining countdown. It reads 0 while the
// servo is LockedStable.
func (s *Servo) CurrOffsetValues() int { return s.currOffsetValues }

// Type returns the variant type the servo was built with.
func (s *Servo) Type() Type { return s.typ }

// Name returns the label used in logs and metrics, the type name unless
// WithName overrode it.
func (s *Servo) Name() string { return s.name }
