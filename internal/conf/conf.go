// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package conf parses the master selector parameters common to the
// command and daemon and opens the selected transport.
package conf

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/platinasystems/flags"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/pca9641/environ/nxp/pca9641"
	"github.com/platinasystems/pca9641/internal/i2cbus"
	"github.com/platinasystems/pca9641/internal/periphbus"
	"github.com/platinasystems/pca9641/internal/pca9641sim"
)

const (
	SMBus  = "smbus"
	Periph = "periph"
	Sim    = "sim"
)

const DefaultAddr = 0x70

var Parms = []interface{}{
	"-bus",
	"-addr",
	"-variant",
	"-transport",
	"-periph-bus",
	"-loglevel",
}

var Flags = []interface{}{"-strict"}

// Usage describes Parms and Flags.
const Usage = `
	-bus N		i2c adapter index (0)
	-addr A		selector address (0x70)
	-variant V	pca9541 or pca9641 (pca9641)
	-transport T	smbus, periph or sim (smbus)
	-periph-bus NAME	periph bus name, empty is the first one
	-loglevel L	OR of 1 err, 2 warning, 4 info, 8 debug (7)
	-strict		fail arbitration rounds on any bus error
`

type Selector struct {
	pca9641.Config
	Transport string
	PeriphBus string
}

// New parses selector parameters from args and returns the rest.
func New(args []string) (*Selector, []string, error) {
	parm, args := parms.New(args, Parms...)
	flag, args := flags.New(args, Flags...)
	s := &Selector{
		Config: pca9641.Config{
			Addr:    DefaultAddr,
			Variant: pca9641.PCA9641,
			Strict:  flag.ByName["-strict"],
		},
		Transport: SMBus,
		PeriphBus: parm.ByName["-periph-bus"],
	}
	if v := parm.ByName["-bus"]; len(v) > 0 {
		u, err := strconv.ParseUint(v, 0, 16)
		if err != nil {
			return nil, args, fmt.Errorf("-bus: %w", err)
		}
		s.Bus = int(u)
	}
	if v := parm.ByName["-addr"]; len(v) > 0 {
		u, err := strconv.ParseUint(v, 0, 7)
		if err != nil {
			return nil, args, fmt.Errorf("-addr: %w", err)
		}
		s.Addr = uint8(u)
	}
	if v := parm.ByName["-variant"]; len(v) > 0 {
		variant, err := pca9641.ParseVariant(v)
		if err != nil {
			return nil, args, fmt.Errorf("-variant: %w", err)
		}
		s.Variant = variant
	}
	if v := parm.ByName["-loglevel"]; len(v) > 0 {
		u, err := strconv.ParseUint(v, 0, 8)
		if err != nil {
			return nil, args, fmt.Errorf("-loglevel: %w", err)
		}
		s.LogLevel = pca9641.LogLevel(u)
	}
	if v := parm.ByName["-transport"]; len(v) > 0 {
		switch v {
		case SMBus, Periph, Sim:
			s.Transport = v
		default:
			return nil, args, fmt.Errorf("-transport: %q: unknown", v)
		}
	}
	return s, args, nil
}

func (s *Selector) Key() pca9641.Key { return pca9641.Key{Bus: s.Bus, Addr: s.Addr} }

// Bus is an opened transport with its segment lock. Attach with the
// Transport field so that its byte data check is found.
type Bus struct {
	pca9641.Transport
	Lock  sync.Locker
	close func() error
}

func (b *Bus) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open returns the transport of the selector. A sim transport connects
// to the chip's first port; nil is a new chip.
func (s *Selector) Open(chip *pca9641sim.Chip) (*Bus, error) {
	switch s.Transport {
	case Periph:
		pb, err := periphbus.Open(s.PeriphBus)
		if err != nil {
			return nil, err
		}
		return &Bus{pb, pb, pb.Close}, nil
	case Sim:
		if chip == nil {
			chip = pca9641sim.New()
			chip.Addr = s.Addr
		}
		return &Bus{Transport: chip.Port(0), Lock: new(sync.Mutex)}, nil
	}
	return &Bus{
		Transport: i2cbus.Bus{Index: s.Bus},
		Lock:      i2cbus.Lock(s.Bus),
	}, nil
}
