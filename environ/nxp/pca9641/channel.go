// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import "sync"

// Select acquires bus ownership, retrying arbitration rounds with the
// backoff chosen by each round until the bus is ours, a round fails with
// a *BusError, or GiveUpWindow elapses with ErrTimeout.
//
// The force deadline is advisory. Forced takeover is done by the chip's
// own arbitration timer; passing the deadline is only counted as overdue.
func (d *Device) Select() error {
	t0 := d.clk.Now()
	timeout := t0.Add(GiveUpWindow) // give up after this time
	d.forceDeadline = t0.Add(ForceWindow)
	d.update(func(s *Stats) {
		s.Selects++
		s.ForceDeadline = d.forceDeadline
	})
	d.print(LogDebug, "select")
	overdue := false
	for {
		state, err := d.Arbitrate()
		if err != nil {
			return err
		}
		if state.Owned() {
			latency := d.clk.Now().Sub(t0)
			d.update(func(s *Stats) {
				s.Acquired++
				s.Latency = latency
			})
			return nil
		}
		d.SelectDelay().Wait(d.clk)
		now := d.clk.Now()
		if !overdue && !now.Before(d.forceDeadline) {
			overdue = true
			d.update(func(s *Stats) { s.Overdue++ })
			d.print(LogDebug, "past force deadline, ", state)
		}
		if !now.Before(timeout) {
			break
		}
	}
	d.update(func(s *Stats) {
		s.Timeouts++
		s.State = TimedOut
	})
	d.print(LogWarning, ErrTimeout)
	return ErrTimeout
}

// Release drops ownership, also resetting any housekeeping bits. It
// isn't retried and is safe without ownership.
func (d *Device) Release() error {
	err := d.writeControl(0)
	d.update(func(s *Stats) {
		s.Releases++
		s.State = Idle
		if err != nil {
			s.BusErrors++
		}
	})
	if err != nil {
		d.print(LogErr, "release: ", err)
	}
	return err
}

// SelectChannel is the multiplexer select hook; the selector has only
// channel 0.
func (d *Device) SelectChannel(ch uint32) error {
	if ch != 0 {
		return ErrChannel
	}
	return d.Select()
}

// ReleaseChannel is the multiplexer release hook. Transport errors are
// logged by Release, not returned.
func (d *Device) ReleaseChannel(ch uint32) error {
	if ch != 0 {
		return ErrChannel
	}
	d.Release()
	return nil
}

// Downstream returns a Transport for devices behind the selector. Each
// transaction holds lk across select, transfer, and release.
func (d *Device) Downstream(tr Transport, lk sync.Locker) Transport {
	return &downstream{d, tr, lk}
}

type downstream struct {
	d  *Device
	tr Transport
	lk sync.Locker
}

func (ds *downstream) do(f func() error) error {
	ds.lk.Lock()
	defer ds.lk.Unlock()
	if err := ds.d.SelectChannel(0); err != nil {
		return err
	}
	defer ds.d.ReleaseChannel(0)
	return f()
}

func (ds *downstream) ReadByteData(addr, reg uint8) (v uint8, err error) {
	err = ds.do(func() (err error) {
		v, err = ds.tr.ReadByteData(addr, reg)
		return
	})
	return
}

func (ds *downstream) WriteByteData(addr, reg, val uint8) error {
	return ds.do(func() error {
		return ds.tr.WriteByteData(addr, reg, val)
	})
}
