// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pca9641 drives the NXP PCA9541/PCA9641 I2C bus master selector.
//
// The selector connects two I2C masters, normally on two different hosts,
// to a single slave bus. Before each transaction a master must acquire bus
// ownership and afterward release it, so the device is modeled as a single
// channel multiplexer with Select and Release hooks.
//
// Arbitration is a two step process. A master can only connect the slave
// bus if it owns it; otherwise it has to request ownership first.
//
//	Bus    Ownership    Other master    Action
//	state  requested    requested
//	-----------------------------------------------------------------
//	off    -            yes             wait for arbitration timeout or
//	                                    for other master to drop request
//	off    no           no              take ownership
//	off    yes          no              turn on bus
//	on     yes          -               done
//	on     no           -               wait for arbitration timeout or
//	                                    for other master to release bus
//
// The main contention point occurs if the slave bus is off and both masters
// request ownership at the same time. The chip grants exactly one of them,
// the other keeps its request asserted and backs off.
package pca9641

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platinasystems/log"
)

type Variant uint8

const (
	PCA9541 Variant = iota + 1
	PCA9641
)

func (v Variant) String() string {
	switch v {
	case PCA9541:
		return "pca9541"
	case PCA9641:
		return "pca9641"
	}
	return fmt.Sprint("variant(", uint8(v), ")")
}

// ParseVariant accepts device table ("pca9641") and device tree
// ("nxp,pca9641") names.
func ParseVariant(s string) (Variant, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "nxp,") {
	case "pca9541":
		return PCA9541, nil
	case "pca9641":
		return PCA9641, nil
	}
	return 0, fmt.Errorf("%s: %w", s, ErrUnsupported)
}

// LogLevel selects which messages are logged.
type LogLevel uint8

const (
	LogErr LogLevel = 1 << iota
	LogWarning
	LogInfo
	LogDebug

	DefaultLogLevel = LogErr | LogWarning | LogInfo
)

func (lvl LogLevel) priority() string {
	switch {
	case lvl&LogErr != 0:
		return "err"
	case lvl&LogWarning != 0:
		return "warn"
	case lvl&LogInfo != 0:
		return "info"
	}
	return "debug"
}

// State is the outcome of the last arbitration round or select.
type State uint8

const (
	Idle       State = iota // released, or never selected
	Requesting              // requested, other master won the race
	Granted                 // grant already held, bus reconnected
	PeerOwns                // other master holds the lock
	Contended               // bus on without a grant on either side
	Acquired                // requested and granted
	TimedOut
)

var stateNames = [...]string{
	Idle:       "idle",
	Requesting: "requesting",
	Granted:    "granted",
	PeerOwns:   "peer-owns",
	Contended:  "contended",
	Acquired:   "acquired",
	TimedOut:   "timed-out",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprint("state(", uint8(s), ")")
}

// Owned is true for both ways a round ends with this master on the bus.
func (s State) Owned() bool { return s == Acquired || s == Granted }

// Stats is a snapshot of a device's arbitration history.
type Stats struct {
	Bus     int
	Addr    uint8
	Variant Variant

	State   State
	Delay   Delay
	Control Control
	Status  Status

	Selects   uint64
	Acquired  uint64
	Timeouts  uint64
	BusErrors uint64
	Ignored   uint64
	Rounds    uint64
	Releases  uint64
	Overdue   uint64

	Latency       time.Duration
	ForceDeadline time.Time
}

type Config struct {
	Bus     int
	Addr    uint8
	Variant Variant

	// Strict returns every failed transaction of an arbitration round
	// instead of only the first CONTROL read.
	Strict bool

	// Zero is DefaultLogLevel.
	LogLevel LogLevel

	// Nil is SystemClock.
	Clock Clock
}

// Device is a handle on one master selector.
type Device struct {
	bus      int
	addr     uint8
	variant  Variant
	strict   bool
	loglevel LogLevel

	tr  Transport
	clk Clock

	// force bus ownership after this time
	forceDeadline time.Time

	mutex sync.Mutex
	stats Stats
	reg   *Registry
}

// New returns a device handle without touching the hardware.
func New(tr Transport, cfg Config) *Device {
	d := &Device{
		bus:      cfg.Bus,
		addr:     cfg.Addr,
		variant:  cfg.Variant,
		strict:   cfg.Strict,
		loglevel: cfg.LogLevel,
		tr:       tr,
		clk:      cfg.Clock,
	}
	if d.loglevel == 0 {
		d.loglevel = DefaultLogLevel
	}
	if d.clk == nil {
		d.clk = SystemClock
	}
	d.stats.Bus = d.bus
	d.stats.Addr = d.addr
	d.stats.Variant = d.variant
	return d
}

// Attach verifies the device and quiesces the bus. The segment lock is
// held while releasing since these accesses are otherwise unprotected.
func Attach(tr Transport, lk sync.Locker, cfg Config) (*Device, error) {
	d := New(tr, cfg)
	switch d.variant {
	case PCA9541, PCA9641:
	default:
		return nil, fmt.Errorf("%s: %w", d.variant, ErrUnsupported)
	}
	if chk, ok := tr.(ByteDataChecker); ok {
		if err := chk.CheckByteData(); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", d, ErrNoDevice, err)
		}
	}
	lk.Lock()
	err := d.probe()
	if err == nil {
		err = d.Release()
	}
	lk.Unlock()
	if err != nil {
		d.print(LogErr, "failed to register master selector: ", err)
		return nil, err
	}
	d.print(LogInfo, "registered master selector for I2C ", d.variant)
	return d, nil
}

func (d *Device) probe() error {
	if d.variant != PCA9641 {
		return nil
	}
	id, err := d.readReg(RegID)
	if err != nil {
		return err
	}
	if id != IDMagic {
		return fmt.Errorf("%s: id 0x%02x: %w", d, id, ErrNoDevice)
	}
	return nil
}

// Detach releases the bus and drops the handle from its registry.
func (d *Device) Detach() error {
	err := d.Release()
	if r := d.registry(); r != nil {
		r.Remove(d.Key())
	}
	return err
}

func (d *Device) registry() *Registry {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.reg
}

func (d *Device) setRegistry(r *Registry) {
	d.mutex.Lock()
	d.reg = r
	d.mutex.Unlock()
}

func (d *Device) Key() Key         { return Key{d.bus, d.addr} }
func (d *Device) Variant() Variant { return d.variant }

func (d *Device) String() string {
	return fmt.Sprintf("%s %d.%02x", d.variant, d.bus, d.addr)
}

// Stats returns a snapshot.
func (d *Device) Stats() Stats {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stats
}

func (d *Device) State() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stats.State
}

// SelectDelay is the backoff tier chosen by the last round.
func (d *Device) SelectDelay() Delay {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stats.Delay
}

func (d *Device) update(f func(*Stats)) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	f(&d.stats)
}

func (d *Device) setDelay(delay Delay) {
	d.update(func(s *Stats) { s.Delay = delay })
}

func (d *Device) print(lvl LogLevel, args ...interface{}) {
	if d.loglevel&lvl == 0 {
		return
	}
	log.Print(append([]interface{}{"daemon", lvl.priority(), d, ": "},
		args...)...)
}
