// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import "fmt"

// Arbitrate runs one arbitration round and returns its outcome; the bus
// is ours if the returned State is Owned.
//
// Only a failed read of CONTROL at the start of the round is returned,
// unless the device is strict. Other failures are counted as ignored
// and read conservatively: an unreadable STATUS means the other master
// holds the lock and an unreadable grant means it wasn't given.
func (d *Device) Arbitrate() (State, error) {
	ctl, err := d.readControl()
	if err != nil {
		d.update(func(s *Stats) { s.BusErrors++ })
		return Idle, err
	}
	sts, err := d.readStatus()
	if failed, err := d.mask(err); err != nil {
		return Idle, err
	} else if failed {
		sts |= OtherLock
	}
	d.update(func(s *Stats) {
		s.Rounds++
		s.Control = ctl
		s.Status = sts
	})
	if d.loglevel&LogDebug != 0 {
		d.print(LogDebug, fmt.Sprintf("control 0x%02x status 0x%02x",
			uint8(ctl), uint8(sts)))
	}

	var state State
	switch {
	case BusIsIdle(ctl, sts):
		// Bus is off. Request ownership or turn it on unless the
		// other master requested ownership.
		ctl = ctl.Request()
		if _, err = d.mask(d.writeControl(ctl)); err != nil {
			return Idle, err
		}
		ctl, err = d.readControl()
		failed, err := d.mask(err)
		if err != nil {
			return Idle, err
		}
		if !failed && ctl.LockGranted() {
			// Other master did not request ownership, or its
			// arbitration timeout expired. Take the bus.
			_, err = d.mask(d.writeControl(ctl.Connect()))
			if err != nil {
				return Idle, err
			}
			d.setDelay(DelayShort)
			state = Acquired
		} else {
			// Other master requested ownership. Wait extra long to
			// give it time to acquire the bus.
			d.setDelay(DelayExtraLong)
			state = Requesting
		}
	case ctl.LockGranted():
		// Bus is on and we own it; acquisition is done.
		if _, err = d.mask(d.writeControl(ctl.Connect())); err != nil {
			return Idle, err
		}
		d.setDelay(DelayShort)
		state = Granted
	case sts.PeerHoldsLock():
		// Other master owns the bus. Record our request so
		// ownership passes once it releases or its time expires.
		d.setDelay(DelayLong)
		if _, err = d.mask(d.writeControl(ctl | LockRequest)); err != nil {
			return Idle, err
		}
		state = PeerOwns
	default:
		state = Contended
	}
	d.update(func(s *Stats) { s.State = state })
	return state, nil
}

// mask reports whether the transaction failed and returns its error
// only if the device is strict; otherwise the error is counted, logged
// at debug level and dropped.
func (d *Device) mask(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if d.strict {
		d.update(func(s *Stats) { s.BusErrors++ })
		return true, err
	}
	d.update(func(s *Stats) { s.Ignored++ })
	d.print(LogDebug, "ignored: ", err)
	return true, nil
}
