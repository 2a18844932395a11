// Package channel names the three shared regions hot-standby PTP instances
// use to talk to each other and gives each a typed API.
//
//	/ptp_servo_state         lock state of the writing domain's servo
//	/ptp_master_restart      whether the writing domain saw its master restart
//	/ptp_slave_servo_stable  whether the writing domain's slave servo is stable,
//	                         plus a sync-received handshake field
//
// Every channel is last-writer-wins. A Read names the domain it expects to
// have written; a record from any other domain reads as shm.ErrNoData.
package channel
