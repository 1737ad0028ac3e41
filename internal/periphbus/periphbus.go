// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package periphbus provides byte data access through a periph.io I2C
// bus. It's an alternative to /dev/i2c-N for hosts where periph has a
// native driver.
package periphbus

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Bus is also the segment lock of the bus it wraps.
type Bus struct {
	sync.Mutex
	bus   i2c.Bus
	close func() error
}

func New(b i2c.Bus) *Bus {
	return &Bus{bus: b}
}

// Open initializes the host drivers and opens the named bus; an empty
// name is the first one found.
func Open(name string) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	bc, err := i2creg.Open(name)
	if err != nil {
		return nil, err
	}
	b := New(bc)
	b.close = bc.Close
	return b, nil
}

func (b *Bus) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func (b *Bus) String() string { return b.bus.String() }

func (b *Bus) ReadByteData(addr, reg uint8) (uint8, error) {
	var buf [1]byte
	d := i2c.Dev{Addr: uint16(addr), Bus: b.bus}
	if err := d.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	return buf[0], nil
}

func (b *Bus) WriteByteData(addr, reg, val uint8) error {
	d := i2c.Dev{Addr: uint16(addr), Bus: b.bus}
	if err := d.Tx([]byte{reg, val}, nil); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
