package servo

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/ptpstandby/internal/config"
)

// Variant is a concrete control loop. Every variant must implement the four
// mandatory operations; RateRatioer, Leaper and PolicyAware are optional.
type Variant interface {
	// Sample consumes one offset sample and returns the frequency
	// adjustment in ppb and the variant's raw state.
	Sample(offset int64, localTS uint64, weight float64) (float64, RawState)

	// SyncInterval reports the master's sync interval in seconds. Variants
	// that do not use it treat the call as a no-op.
	SyncInterval(seconds float64)

	// Reset drops all sample history; the next sample must not depend on
	// anything seen before the reset.
	Reset()

	// Destroy releases the variant's private state.
	Destroy()
}

// RateRatioer is implemented by variants that estimate the ratio between
// the master's frequency and the local clock's.
type RateRatioer interface {
	RateRatio() float64
}

// Leaper is implemented by variants that handle leap second notices.
type Leaper interface {
	Leap(direction int)
}

// Policy is the dispatcher policy a variant may consult while sampling.
type Policy interface {
	MaxFrequency() int
	StepThreshold() float64
	FirstStepThreshold() float64
	FirstUpdate() bool
}

// PolicyAware is implemented by variants that want the dispatcher policy.
// UsePolicy is called once, after the policy has been applied.
type PolicyAware interface {
	UsePolicy(p Policy)
}

// Params is what a variant constructor receives.
type Params struct {
	Config               *config.Config
	FrequencyAdjustment  float64 // Current clock adjustment in ppb
	MaxPPB               int     // Absolute adjustment limit of the clock
	SoftwareTimestamping bool    // Samples come from software time stamps
}

// Constructor builds a variant.
type Constructor func(p Params) (Variant, error)

// Registry maps variant types to constructors.
// Thread-safe: All methods are safe for concurrent access.
type Registry struct {
	mu    sync.RWMutex
	ctors map[Type]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ctors: make(map[Type]Constructor),
	}
}

// Register installs the constructor for t. A type can be registered once.
func (r *Registry) Register(t Type, c Constructor) error {
	if _, ok := typeNames[t]; !ok {
		return fmt.Errorf("register %s: %w", t, ErrUnknownType)
	}
	if c == nil {
		return fmt.Errorf("register %s: nil constructor", t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[t]; exists {
		return fmt.Errorf("register %s: already registered", t)
	}
	r.ctors[t] = c
	return nil
}

// Lookup returns the constructor for t.
func (r *Registry) Lookup(t Type) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.ctors[t]
	return c, ok
}

// Types lists the registered types in ascending order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.ctors))
	for t := range r.ctors {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// DefaultRegistry is used by New unless WithRegistry says otherwise.
// Variant packages register themselves here from init.
var DefaultRegistry = NewRegistry()

// Register installs c in DefaultRegistry.
func Register(t Type, c Constructor) error {
	return DefaultRegistry.Register(t, c)
}
