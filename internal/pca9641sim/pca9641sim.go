// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pca9641sim models a PCA9641 shared by two masters.
//
// Each master reaches the chip through its own Port. The chip grants the
// lock to exactly one requesting master; a request from the other master
// stays pending until the owner drops its request or, if Reserve is set,
// the owner's reservation expires.
//
// Slaves added to the downstream bus only answer a master that owns the
// lock and has connected the bus.
package pca9641sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinasystems/pca9641/environ/nxp/pca9641"
)

var ErrNak = errors.New("nak")

const none = -1

type Chip struct {
	// Nil is time.Now.
	Now func() time.Time

	// If non-zero, an owner loses the grant this long after it was
	// given if the other master is requesting.
	Reserve time.Duration

	// If set and non-nil, the transaction fails with the returned error.
	Fail func(master int, write bool, reg uint8) error

	ID   uint8
	Addr uint8

	mutex     sync.Mutex
	ctl       [2]pca9641.Control
	owner     int
	grantedAt time.Time
	grants    [2]uint64
	trace     []string
	slaves    map[uint8]*[256]byte
}

func New() *Chip {
	return &Chip{
		ID:     pca9641.IDMagic,
		Addr:   0x70,
		owner:  none,
		slaves: make(map[uint8]*[256]byte),
	}
}

// Slave adds, if necessary, and returns the register file of the
// downstream device at addr.
func (c *Chip) Slave(addr uint8) *[256]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	regs, found := c.slaves[addr]
	if !found {
		regs = new([256]byte)
		c.slaves[addr] = regs
	}
	return regs
}

// Port is one master's connection; it is a pca9641.Transport.
type Port struct {
	c *Chip
	m int
}

func (c *Chip) Port(master int) *Port {
	if master != 0 && master != 1 {
		panic(fmt.Sprint("master ", master, ": out of range"))
	}
	return &Port{c, master}
}

// Owner returns the master holding the grant or -1.
func (c *Chip) Owner() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.expire()
	return c.owner
}

// Grants counts how many times master was given the lock.
func (c *Chip) Grants(master int) uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.grants[master]
}

// Control returns the master's CONTROL as it would read it.
func (c *Chip) Control(master int) pca9641.Control {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.expire()
	return c.control(master)
}

// Trace returns and clears the transaction log, one entry per
// transaction, e.g. "0 r 01 03" or "1 w 01 61".
func (c *Chip) Trace() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	t := c.trace
	c.trace = nil
	return t
}

func (p *Port) String() string { return fmt.Sprint("master ", p.m) }

func (p *Port) ReadByteData(addr, reg uint8) (uint8, error) {
	c := p.c
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if addr != c.Addr {
		regs, err := c.downstream(p.m, addr)
		if err != nil {
			return 0, err
		}
		return regs[reg], nil
	}
	if err := c.fail(p.m, false, reg); err != nil {
		return 0, err
	}
	c.expire()
	var v uint8
	switch reg {
	case pca9641.RegID:
		v = c.ID
	case pca9641.RegControl:
		v = uint8(c.control(p.m))
	case pca9641.RegStatus:
		if other := 1 - p.m; c.owner == other {
			v = uint8(pca9641.OtherLock)
		}
	default:
		return 0, fmt.Errorf("reg 0x%02x: %w", reg, ErrNak)
	}
	c.trace = append(c.trace, fmt.Sprintf("%d r %02x %02x", p.m, reg, v))
	return v, nil
}

func (p *Port) WriteByteData(addr, reg, val uint8) error {
	c := p.c
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if addr != c.Addr {
		regs, err := c.downstream(p.m, addr)
		if err != nil {
			return err
		}
		regs[reg] = val
		return nil
	}
	if err := c.fail(p.m, true, reg); err != nil {
		return err
	}
	if reg != pca9641.RegControl {
		return fmt.Errorf("reg 0x%02x: %w", reg, ErrNak)
	}
	c.trace = append(c.trace, fmt.Sprintf("%d w %02x %02x", p.m, reg, val))
	c.expire()
	ctl := pca9641.Control(val) &^ pca9641.LockGrant
	c.ctl[p.m] = ctl
	other := 1 - p.m
	if ctl.Has(pca9641.LockRequest) {
		if c.owner == none {
			c.grant(p.m)
		}
	} else if c.owner == p.m {
		c.owner = none
		c.ctl[p.m] &^= pca9641.BusConnect
		if c.ctl[other].Has(pca9641.LockRequest) {
			c.grant(other)
		}
	}
	return nil
}

func (c *Chip) downstream(m int, addr uint8) (*[256]byte, error) {
	c.expire()
	if c.owner != m || !c.ctl[m].Has(pca9641.BusConnect) {
		return nil, fmt.Errorf("0x%02x: not connected: %w", addr, ErrNak)
	}
	regs, found := c.slaves[addr]
	if !found {
		return nil, fmt.Errorf("0x%02x: %w", addr, ErrNak)
	}
	return regs, nil
}

func (c *Chip) control(m int) pca9641.Control {
	ctl := c.ctl[m]
	if c.owner == m {
		ctl |= pca9641.LockGrant
	} else {
		ctl &^= pca9641.BusConnect
	}
	return ctl
}

func (c *Chip) grant(m int) {
	c.owner = m
	c.grantedAt = c.now()
	c.grants[m]++
}

func (c *Chip) expire() {
	if c.Reserve == 0 || c.owner == none {
		return
	}
	other := 1 - c.owner
	if !c.ctl[other].Has(pca9641.LockRequest) {
		return
	}
	if c.now().Sub(c.grantedAt) >= c.Reserve {
		c.ctl[c.owner] &^= pca9641.BusConnect
		c.grant(other)
	}
}

func (c *Chip) fail(m int, write bool, reg uint8) error {
	if c.Fail == nil {
		return nil
	}
	return c.Fail(m, write, reg)
}

func (c *Chip) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
