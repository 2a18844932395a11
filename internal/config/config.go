// Package config loads the ptpstandby TOML configuration: the servo policy
// keys consumed by the dispatcher and the standby daemon settings.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	RolePrimary = "primary"
	RoleStandby = "standby"

	// maxDomain matches the width of the shared segment domain id.
	maxDomain = math.MaxInt32
)

// Config is the whole configuration file.
type Config struct {
	// Variant holds free-form per-variant tables, e.g. [variant.pi].
	// Variant constructors read their own keys from here.
	Variant map[string]map[string]any
	Servo   Servo
	Standby Standby
}

// Servo holds the keys the dispatcher applies after constructing a variant.
type Servo struct {
	ClockServo         string  // Variant type name, e.g. "pi"
	StepThreshold      float64 // Seconds, 0 disables
	FirstStepThreshold float64 // Seconds, 0 disables
	MaxFrequency       int     // Ceiling in ppb, 0 leaves the clock limit
	OffsetThreshold    int     // Nanoseconds, 0 disables stability tracking
	NumOffsetValues    int     // In-threshold samples required for stability
}

// Standby holds the daemon settings.
type Standby struct {
	Role          string
	ShmDir        string
	Listen        string
	Domain        int
	PeerDomain    int
	MaxFailures   int
	PollInterval  time.Duration
	AttachTimeout time.Duration
}

type fileConfig struct {
	Variant map[string]map[string]any `toml:"variant"`
	Servo   fileServo                 `toml:"servo"`
	Standby fileStandby               `toml:"standby"`
}

type fileServo struct {
	ClockServo         string  `toml:"clock_servo"`
	StepThreshold      float64 `toml:"step_threshold"`
	FirstStepThreshold float64 `toml:"first_step_threshold"`
	MaxFrequency       int     `toml:"max_frequency"`
	OffsetThreshold    int     `toml:"servo_offset_threshold"`
	NumOffsetValues    int     `toml:"servo_num_offset_values"`
}

type fileStandby struct {
	Role          string `toml:"role"`
	ShmDir        string `toml:"shm_dir"`
	Listen        string `toml:"listen"`
	PollInterval  string `toml:"poll_interval"`
	AttachTimeout string `toml:"attach_timeout"`
	Domain        int    `toml:"domain"`
	PeerDomain    int    `toml:"peer_domain"`
	MaxFailures   int    `toml:"max_failures"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Variant: map[string]map[string]any{},
		Servo: Servo{
			ClockServo:         "pi",
			StepThreshold:      0.0,
			FirstStepThreshold: 0.00002,
			MaxFrequency:       900000000,
			OffsetThreshold:    0,
			NumOffsetValues:    10,
		},
		Standby: Standby{
			Role:          RoleStandby,
			ShmDir:        "/dev/shm",
			Listen:        ":9470",
			Domain:        1,
			PeerDomain:    0,
			MaxFailures:   3,
			PollInterval:  time.Second,
			AttachTimeout: 5 * time.Second,
		},
	}
}

// Load reads path over Default. Keys missing from the file keep their
// default value.
func Load(path string) (*Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			if len(k) > 0 && k[0] == "variant" {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			return nil, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	cfg := Default()
	if err := apply(cfg, raw, meta); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func apply(cfg *Config, raw fileConfig, meta toml.MetaData) error {
	if meta.IsDefined("servo", "clock_servo") {
		cfg.Servo.ClockServo = strings.TrimSpace(raw.Servo.ClockServo)
	}
	if meta.IsDefined("servo", "step_threshold") {
		cfg.Servo.StepThreshold = raw.Servo.StepThreshold
	}
	if meta.IsDefined("servo", "first_step_threshold") {
		cfg.Servo.FirstStepThreshold = raw.Servo.FirstStepThreshold
	}
	if meta.IsDefined("servo", "max_frequency") {
		cfg.Servo.MaxFrequency = raw.Servo.MaxFrequency
	}
	if meta.IsDefined("servo", "servo_offset_threshold") {
		cfg.Servo.OffsetThreshold = raw.Servo.OffsetThreshold
	}
	if meta.IsDefined("servo", "servo_num_offset_values") {
		cfg.Servo.NumOffsetValues = raw.Servo.NumOffsetValues
	}

	if meta.IsDefined("standby", "role") {
		cfg.Standby.Role = strings.ToLower(strings.TrimSpace(raw.Standby.Role))
	}
	if meta.IsDefined("standby", "shm_dir") {
		cfg.Standby.ShmDir = strings.TrimSpace(raw.Standby.ShmDir)
	}
	if meta.IsDefined("standby", "listen") {
		cfg.Standby.Listen = strings.TrimSpace(raw.Standby.Listen)
	}
	if meta.IsDefined("standby", "domain") {
		cfg.Standby.Domain = raw.Standby.Domain
	}
	if meta.IsDefined("standby", "peer_domain") {
		cfg.Standby.PeerDomain = raw.Standby.PeerDomain
	}
	if meta.IsDefined("standby", "max_failures") {
		cfg.Standby.MaxFailures = raw.Standby.MaxFailures
	}
	if meta.IsDefined("standby", "poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Standby.PollInterval))
		if err != nil {
			return fmt.Errorf("parse poll_interval: %w", err)
		}
		cfg.Standby.PollInterval = d
	}
	if meta.IsDefined("standby", "attach_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Standby.AttachTimeout))
		if err != nil {
			return fmt.Errorf("parse attach_timeout: %w", err)
		}
		cfg.Standby.AttachTimeout = d
	}

	for name, table := range raw.Variant {
		cfg.Variant[name] = table
	}
	return nil
}

// Validate checks ranges the rest of the system relies on.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Servo.ClockServo) == "" {
		errs = append(errs, errors.New("servo.clock_servo is required"))
	}
	if cfg.Servo.MaxFrequency < 0 {
		errs = append(errs, fmt.Errorf("servo.max_frequency must not be negative, got %d", cfg.Servo.MaxFrequency))
	}
	if cfg.Servo.OffsetThreshold < 0 {
		errs = append(errs, fmt.Errorf("servo.servo_offset_threshold must not be negative, got %d", cfg.Servo.OffsetThreshold))
	}
	if cfg.Servo.NumOffsetValues < 0 {
		errs = append(errs, fmt.Errorf("servo.servo_num_offset_values must not be negative, got %d", cfg.Servo.NumOffsetValues))
	}

	switch cfg.Standby.Role {
	case RolePrimary, RoleStandby:
	default:
		errs = append(errs, fmt.Errorf("standby.role must be %q or %q, got %q", RolePrimary, RoleStandby, cfg.Standby.Role))
	}
	if cfg.Standby.Domain < 0 || cfg.Standby.Domain > maxDomain {
		errs = append(errs, fmt.Errorf("standby.domain must be in [0, %d], got %d", maxDomain, cfg.Standby.Domain))
	}
	if cfg.Standby.PeerDomain < 0 || cfg.Standby.PeerDomain > maxDomain {
		errs = append(errs, fmt.Errorf("standby.peer_domain must be in [0, %d], got %d", maxDomain, cfg.Standby.PeerDomain))
	}
	if cfg.Standby.Domain == cfg.Standby.PeerDomain {
		errs = append(errs, fmt.Errorf("standby.domain and standby.peer_domain must differ, both are %d", cfg.Standby.Domain))
	}
	if cfg.Standby.MaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("standby.max_failures must be positive, got %d", cfg.Standby.MaxFailures))
	}
	if cfg.Standby.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("standby.poll_interval must be positive, got %s", cfg.Standby.PollInterval))
	}
	if cfg.Standby.AttachTimeout < 0 {
		errs = append(errs, fmt.Errorf("standby.attach_timeout must not be negative, got %s", cfg.Standby.AttachTimeout))
	}
	if strings.TrimSpace(cfg.Standby.ShmDir) == "" {
		errs = append(errs, errors.New("standby.shm_dir is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config invalid: %w", errors.Join(errs...))
	}
	return nil
}

// VariantFloat returns a float key of a variant table, or def when absent.
// TOML integers are accepted.
func (c *Config) VariantFloat(variant, key string, def float64) float64 {
	table, ok := c.Variant[variant]
	if !ok {
		return def
	}
	switch v := table[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return def
	}
}

// VariantInt returns an integer key of a variant table, or def when absent.
func (c *Config) VariantInt(variant, key string, def int) int {
	table, ok := c.Variant[variant]
	if !ok {
		return def
	}
	if v, ok := table[key].(int64); ok {
		return int(v)
	}
	return def
}

// VariantString returns a string key of a variant table, or def when absent.
func (c *Config) VariantString(variant, key, def string) string {
	table, ok := c.Variant[variant]
	if !ok {
		return def
	}
	if v, ok := table[key].(string); ok {
		return v
	}
	return def
}
