package channel

import (
	"fmt"

	"github.com/dreamware/ptpstandby/internal/shm"
)

// SlaveStabilityName is the segment carrying slave stability and the sync
// handshake.
const SlaveStabilityName = "/ptp_slave_servo_stable"

// SlaveStabilityPayload is the record stored in SlaveStabilityName.
//
// Stable belongs to the segment's domain id like every other channel. The
// sync fields carry their own writer id: the standby acknowledges sync
// without taking over the record's domain.
type SlaveStabilityPayload struct {
	Stable       bool
	SyncReceived bool
	SyncDomainID int32
}

// SyncState is the sync handshake as last written.
type SyncState struct {
	Received bool
	DomainID int // shm.NoDomain until the first UpdateSync
}

// SlaveStability is a handle on the slave stability channel.
type SlaveStability struct {
	region *shm.Region[SlaveStabilityPayload]
}

// OpenSlaveStability creates or attaches to SlaveStabilityName. A creating process
// initializes the record with stability false and the sync writer set to shm.NoDomain.
//
// Parameters:
//   - opts: shm options such as shm.WithDir, shm.WithTimeout or
//     shm.WithNamespace
//
// Attach timeouts are returned wrapped in shm.ErrTimeout and never retried.
func OpenSlaveStability(opts ...shm.Option) (*SlaveStability, error) {
	region, err := shm.Open[SlaveStabilityPayload](SlaveStabilityName, func(p *SlaveStabilityPayload) {
		p.SyncDomainID = shm.NoDomain
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &SlaveStability{region: region}, nil
}

// Update records whether domainID's slave servo is stable.
func (c *SlaveStability) Update(stable bool, domainID int) error {
	return c.region.Update(domainID, func(p *SlaveStabilityPayload) {
		p.Stable = stable
	})
}

// Read returns the stability last written by domainID.
func (c *SlaveStability) Read(domainID int) (bool, error) {
	p, err := c.region.Read(domainID)
	if err != nil {
		return false, err
	}
	return p.Stable, nil
}

// UpdateSync records the sync handshake. It leaves the record's domain id
// and stability untouched. domainID must pass shm.CheckDomain.
func (c *SlaveStability) UpdateSync(received bool, domainID int) error {
	if err := shm.CheckDomain(domainID); err != nil {
		return fmt.Errorf("%s: %w", SlaveStabilityName, err)
	}
	return c.region.UpdatePayload(func(p *SlaveStabilityPayload) {
		p.SyncReceived = received
		p.SyncDomainID = int32(domainID)
	})
}

// ReadSync returns the handshake without filtering on the writer and
// without requiring a prior Update; the caller inspects DomainID.
func (c *SlaveStability) ReadSync() (SyncState, error) {
	snap, err := c.region.Snapshot()
	if err != nil {
		return SyncState{DomainID: shm.NoDomain}, err
	}
	return SyncState{
		Received: snap.Payload.SyncReceived,
		DomainID: int(snap.Payload.SyncDomainID),
	}, nil
}

// Snapshot returns the record without filtering on the writer.
func (c *SlaveStability) Snapshot() (shm.Snapshot[SlaveStabilityPayload], error) {
	return c.region.Snapshot()
}

// Created reports whether this handle created the segment.
func (c *SlaveStability) Created() bool { return c.region.Created() }

// Close unmaps the segment. The segment itself stays in the namespace.
func (c *SlaveStability) Close() error {
	return c.region.Close()
}
