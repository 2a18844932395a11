package channel

import "github.com/dreamware/ptpstandby/internal/shm"

// MasterRestartName is the segment carrying the master-restart flag.
const MasterRestartName = "/ptp_master_restart"

// MasterRestartPayload is the record stored in MasterRestartName.
type MasterRestartPayload struct {
	Detected bool
}

// MasterRestart is a handle on the master-restart channel.
type MasterRestart struct {
	region *shm.Region[MasterRestartPayload]
}

// OpenMasterRestart creates or attaches to MasterRestartName. A creating process
// initializes the record with zero payload (Detected false).
//
// Parameters:
//   - opts: shm options such as shm.WithDir, shm.WithTimeout or
//     shm.WithNamespace
//
// Attach timeouts are returned wrapped in shm.ErrTimeout and never retried.
func OpenMasterRestart(opts ...shm.Option) (*MasterRestart, error) {
	region, err := shm.Open[MasterRestartPayload](MasterRestartName, nil, opts...)
	if err != nil {
		return nil, err
	}
	return &MasterRestart{region: region}, nil
}

// Update records whether domainID detected a master restart.
func (c *MasterRestart) Update(detected bool, domainID int) error {
	return c.region.Update(domainID, func(p *MasterRestartPayload) {
		p.Detected = detected
	})
}

// Read returns the flag last written by domainID.
func (c *MasterRestart) Read(domainID int) (bool, error) {
	p, err := c.region.Read(domainID)
	if err != nil {
		return false, err
	}
	return p.Detected, nil
}

// Snapshot returns the record without filtering on the writer.
func (c *MasterRestart) Snapshot() (shm.Snapshot[MasterRestartPayload], error) {
	return c.region.Snapshot()
}

// Created reports whether this handle created the segment.
func (c *MasterRestart) Created() bool { return c.region.Created() }

// Close unmaps the segment. The segment itself stays in the namespace.
func (c *MasterRestart) Close() error {
	return c.region.Close()
}
