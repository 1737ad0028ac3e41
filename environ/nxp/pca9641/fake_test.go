// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var errNak = errors.New("nak")

// xfer is one expected transaction of a script.
type xfer struct {
	write bool
	reg   uint8
	val   uint8
	err   error
}

func rd(reg, val uint8) xfer    { return xfer{false, reg, val, nil} }
func wr(reg, val uint8) xfer    { return xfer{true, reg, val, nil} }
func rdErr(reg uint8) xfer      { return xfer{false, reg, 0, errNak} }
func wrErr(reg, val uint8) xfer { return xfer{true, reg, val, errNak} }

// script is a Transport that fails the test on any transaction other
// than the next expected one.
type script struct {
	t     *testing.T
	xfers []xfer
}

func (s *script) next(write bool, reg uint8) xfer {
	s.t.Helper()
	op := "read"
	if write {
		op = "write"
	}
	if len(s.xfers) == 0 {
		s.t.Fatalf("unexpected %s reg 0x%02x", op, reg)
	}
	x := s.xfers[0]
	s.xfers = s.xfers[1:]
	if x.write != write || x.reg != reg {
		s.t.Fatalf("%s reg 0x%02x, expected %v", op, reg, x)
	}
	return x
}

func (s *script) ReadByteData(addr, reg uint8) (uint8, error) {
	s.t.Helper()
	x := s.next(false, reg)
	return x.val, x.err
}

func (s *script) WriteByteData(addr, reg, val uint8) error {
	s.t.Helper()
	x := s.next(true, reg)
	if x.val != val {
		s.t.Fatalf("write reg 0x%02x = 0x%02x, expected 0x%02x",
			reg, val, x.val)
	}
	return x.err
}

func (s *script) done() {
	s.t.Helper()
	if len(s.xfers) > 0 {
		s.t.Errorf("%d transactions left: %v", len(s.xfers), s.xfers)
	}
}

func (x xfer) String() string {
	op := "r"
	if x.write {
		op = "w"
	}
	return fmt.Sprintf("%s %02x %02x", op, x.reg, x.val)
}

// regfile is a Transport with CONTROL and STATUS content; CONTROL
// writes are kept and, if grant is set, a lock request is granted.
type regfile struct {
	ctl    Control
	sts    Status
	id     uint8
	grant  bool
	writes []Control
	rdErr  map[uint8]error
	wrErr  error

	// called after each CONTROL write
	onWrite func(*regfile)
}

func (r *regfile) ReadByteData(addr, reg uint8) (uint8, error) {
	if err := r.rdErr[reg]; err != nil {
		return 0, err
	}
	switch reg {
	case RegID:
		return r.id, nil
	case RegControl:
		return uint8(r.ctl), nil
	case RegStatus:
		return uint8(r.sts), nil
	}
	return 0, errNak
}

func (r *regfile) WriteByteData(addr, reg, val uint8) error {
	if r.wrErr != nil {
		return r.wrErr
	}
	if reg != RegControl {
		return errNak
	}
	ctl := Control(val)
	r.writes = append(r.writes, ctl)
	r.ctl = ctl &^ LockGrant
	if r.grant && ctl.Has(LockRequest) && !r.sts.PeerHoldsLock() {
		r.ctl |= LockGrant
	}
	if r.onWrite != nil {
		r.onWrite(r)
	}
	return nil
}

type fakeClock struct {
	now    time.Time
	delays []time.Duration
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Delay(d time.Duration) {
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

type countingLocker struct {
	locked  bool
	nlocks  int
	history []string
}

func (l *countingLocker) Lock() {
	if l.locked {
		panic("recursive lock")
	}
	l.locked = true
	l.nlocks++
	l.history = append(l.history, "lock")
}

func (l *countingLocker) Unlock() {
	if !l.locked {
		panic("unlock of unlocked")
	}
	l.locked = false
	l.history = append(l.history, "unlock")
}

func testConfig(clk Clock) Config {
	return Config{
		Bus:      0,
		Addr:     0x70,
		Variant:  PCA9641,
		LogLevel: LogErr,
		Clock:    clk,
	}
}
