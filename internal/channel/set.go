package channel

import (
	"errors"

	"github.com/dreamware/ptpstandby/internal/shm"
)

// Names lists every channel segment.
var Names = []string{ServoStateName, MasterRestartName, SlaveStabilityName}

// Set holds one handle on each channel.
type Set struct {
	ServoState     *ServoState
	MasterRestart  *MasterRestart
	SlaveStability *SlaveStability
}

// OpenAll opens the three channels with the same options. On failure the
// channels already opened are closed again.
func OpenAll(opts ...shm.Option) (*Set, error) {
	s := &Set{}
	var err error

	if s.ServoState, err = OpenServoState(opts...); err != nil {
		return nil, err
	}
	if s.MasterRestart, err = OpenMasterRestart(opts...); err != nil {
		_ = s.Close()
		return nil, err
	}
	if s.SlaveStability, err = OpenSlaveStability(opts...); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close detaches from every open channel.
func (s *Set) Close() error {
	var errs []error
	if s.ServoState != nil {
		errs = append(errs, s.ServoState.Close())
	}
	if s.MasterRestart != nil {
		errs = append(errs, s.MasterRestart.Close())
	}
	if s.SlaveStability != nil {
		errs = append(errs, s.SlaveStability.Close())
	}
	return errors.Join(errs...)
}
