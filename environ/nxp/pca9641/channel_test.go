// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import (
	"errors"
	"testing"
	"time"
)

func TestSelectIdle(t *testing.T) {
	clk := newFakeClock()
	r := &regfile{grant: true}
	d := New(r, testConfig(clk))
	if err := d.Select(); err != nil {
		t.Fatal(err)
	}
	if !r.ctl.Has(BusConnect | LockRequest | LockGrant) {
		t.Errorf("control %v", r.ctl)
	}
	if len(clk.sleeps)+len(clk.delays) != 0 {
		t.Errorf("waited: %v %v", clk.sleeps, clk.delays)
	}
	st := d.Stats()
	if st.Selects != 1 || st.Acquired != 1 || st.State != Acquired {
		t.Errorf("%+v", st)
	}
	if want := clk.now.Add(ForceWindow); !st.ForceDeadline.Equal(want) {
		t.Errorf("force deadline %v != %v", st.ForceDeadline, want)
	}
}

func TestSelectAfterPeerRelease(t *testing.T) {
	clk := newFakeClock()
	writes := 0
	r := &regfile{
		sts:   OtherLock,
		grant: true,
		onWrite: func(r *regfile) {
			// the other master lets go after our third request
			if writes++; writes == 3 {
				r.sts &^= OtherLock
			}
		},
	}
	d := New(r, testConfig(clk))
	if err := d.Select(); err != nil {
		t.Fatal(err)
	}
	if len(clk.sleeps) != 3 {
		t.Errorf("sleeps %v", clk.sleeps)
	}
	for _, w := range clk.sleeps {
		if w != SelectDelayLong {
			t.Errorf("slept %v", w)
		}
	}
	st := d.Stats()
	if st.Acquired != 1 || st.Rounds != 4 || st.Latency != 3*SelectDelayLong {
		t.Errorf("%+v", st)
	}
}

func TestSelectTimeout(t *testing.T) {
	clk := newFakeClock()
	t0 := clk.now
	r := &regfile{sts: OtherLock}
	d := New(r, testConfig(clk))
	err := d.Select()
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("%v isn't a timeout", err)
	}
	if IsBusError(err) {
		t.Errorf("%v is a bus error", err)
	}
	elapsed := clk.now.Sub(t0)
	if elapsed < GiveUpWindow || elapsed > GiveUpWindow+2*SelectDelayLong {
		t.Errorf("gave up after %v", elapsed)
	}
	st := d.Stats()
	if st.Timeouts != 1 || st.State != TimedOut || st.Overdue != 1 {
		t.Errorf("%+v", st)
	}
	if n := len(clk.sleeps); n != int(GiveUpWindow/SelectDelayLong) {
		t.Errorf("%d rounds", n)
	}
	for _, w := range r.writes {
		if !w.Has(LockRequest) || w.Has(BusConnect) {
			t.Fatalf("wrote %v", w)
		}
	}
}

func TestSelectLostRaceBacksOffExtraLong(t *testing.T) {
	clk := newFakeClock()
	r := &regfile{}
	d := New(r, testConfig(clk))
	if err := d.Select(); !errors.Is(err, ErrTimeout) {
		t.Fatal(err)
	}
	for _, w := range clk.sleeps {
		if w != 2*SelectDelayLong {
			t.Fatalf("slept %v", w)
		}
	}
	if got := d.SelectDelay(); got != DelayExtraLong {
		t.Errorf("delay %v", got)
	}
}

func TestSelectBusError(t *testing.T) {
	clk := newFakeClock()
	r := &regfile{rdErr: map[uint8]error{RegControl: errNak}}
	d := New(r, testConfig(clk))
	err := d.Select()
	if !IsBusError(err) || errors.Is(err, ErrTimeout) {
		t.Fatalf("%v", err)
	}
	if len(clk.sleeps)+len(clk.delays) != 0 {
		t.Errorf("retried after bus error")
	}
}

func TestRelease(t *testing.T) {
	r := &regfile{ctl: 0x67}
	d := New(r, testConfig(newFakeClock()))
	for i := 0; i < 2; i++ {
		if err := d.Release(); err != nil {
			t.Fatal(err)
		}
		if r.ctl != 0 {
			t.Errorf("control %v", r.ctl)
		}
	}
	if st := d.Stats(); st.Releases != 2 || st.State != Idle {
		t.Errorf("%+v", st)
	}
	r.wrErr = errNak
	if err := d.Release(); !IsBusError(err) {
		t.Errorf("%v", err)
	}
	if err := d.ReleaseChannel(0); err != nil {
		t.Errorf("release channel: %v", err)
	}
}

func TestChannels(t *testing.T) {
	r := &regfile{grant: true}
	d := New(r, testConfig(newFakeClock()))
	if err := d.SelectChannel(1); !errors.Is(err, ErrChannel) {
		t.Error(err)
	}
	if err := d.ReleaseChannel(1); !errors.Is(err, ErrChannel) {
		t.Error(err)
	}
	if err := d.SelectChannel(0); err != nil {
		t.Error(err)
	}
	if err := d.ReleaseChannel(0); err != nil {
		t.Error(err)
	}
	if r.ctl != 0 {
		t.Errorf("control %v", r.ctl)
	}
}

type behind struct {
	sel *regfile
	lk  *countingLocker
	log []string
}

func (b *behind) ReadByteData(addr, reg uint8) (uint8, error) {
	if !b.lk.locked || !b.sel.ctl.Has(BusConnect) {
		b.log = append(b.log, "unprotected read")
	}
	b.log = append(b.log, "read")
	return 0x5a, nil
}

func (b *behind) WriteByteData(addr, reg, val uint8) error {
	if !b.lk.locked || !b.sel.ctl.Has(BusConnect) {
		b.log = append(b.log, "unprotected write")
	}
	b.log = append(b.log, "write")
	return nil
}

func TestDownstream(t *testing.T) {
	r := &regfile{grant: true}
	lk := new(countingLocker)
	b := &behind{sel: r, lk: lk}
	d := New(r, testConfig(newFakeClock()))
	ds := d.Downstream(b, lk)
	v, err := ds.ReadByteData(0x50, 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x5a {
		t.Errorf("read 0x%02x", v)
	}
	if err = ds.WriteByteData(0x50, 0, 1); err != nil {
		t.Fatal(err)
	}
	if len(b.log) != 2 || b.log[0] != "read" || b.log[1] != "write" {
		t.Errorf("%v", b.log)
	}
	if lk.locked || lk.nlocks != 2 {
		t.Errorf("%v", lk.history)
	}
	if r.ctl != 0 {
		t.Errorf("not released, control %v", r.ctl)
	}
	if st := d.Stats(); st.Selects != 2 || st.Releases != 2 {
		t.Errorf("%+v", st)
	}
}

func TestDownstreamTimeout(t *testing.T) {
	r := &regfile{sts: OtherLock}
	lk := new(countingLocker)
	b := &behind{sel: r, lk: lk}
	d := New(r, testConfig(newFakeClock()))
	_, err := d.Downstream(b, lk).ReadByteData(0x50, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatal(err)
	}
	if len(b.log) != 0 {
		t.Errorf("transferred without ownership: %v", b.log)
	}
	if lk.locked {
		t.Error("left locked")
	}
}

func TestSystemClockDelay(t *testing.T) {
	t0 := time.Now()
	SystemClock.Delay(SelectDelayShort)
	if time.Since(t0) < SelectDelayShort {
		t.Error("short delay")
	}
}
