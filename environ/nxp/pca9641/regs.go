// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import "strings"

// Register offsets
const (
	RegID      uint8 = 0x00
	RegControl uint8 = 0x01
	RegStatus  uint8 = 0x02
	RegTime    uint8 = 0x03
)

// IDMagic is the PCA9641 device ID register content.
const IDMagic uint8 = 0x38

// Control is the CONTROL register. LockGrant is set by the chip.
type Control uint8

const (
	LockRequest Control = 1 << iota
	LockGrant
	BusConnect
	BusInit
	SMBusSwReset
	IdleTimerDisable
	SMBusDisable
	Priority
)

// Status is the STATUS register; all bits are read-only.
type Status uint8

const (
	OtherLock Status = 1 << iota
	BusInitFail
	BusHung
	MboxEmpty
	MboxFull
	TestInt
	SCLIO
	SDAIO
)

var controlNames = [...]string{
	"lock_req",
	"lock_grant",
	"bus_connect",
	"bus_init",
	"smbus_swrst",
	"idle_timer_dis",
	"smbus_dis",
	"priority",
}

var statusNames = [...]string{
	"other_lock",
	"bus_init_fail",
	"bus_hung",
	"mbox_empty",
	"mbox_full",
	"test_int",
	"scl_io",
	"sda_io",
}

func (c Control) Has(bits Control) bool { return c&bits == bits }
func (c Control) LockGranted() bool     { return c.Has(LockGrant) }

// Request returns c asserting LockRequest along with the housekeeping
// bits that accompany every request.
func (c Control) Request() Control {
	return c | LockRequest | IdleTimerDisable | SMBusDisable
}

// Connect returns c asserting BusConnect while keeping the request.
func (c Control) Connect() Control { return c | BusConnect | LockRequest }

func (c Control) String() string { return bitNames(uint8(c), controlNames[:]) }

func (s Status) Has(bits Status) bool { return s&bits == bits }
func (s Status) PeerHoldsLock() bool  { return s.Has(OtherLock) }
func (s Status) String() string       { return bitNames(uint8(s), statusNames[:]) }

// BusIsIdle is true if neither this nor the other master holds the lock.
func BusIsIdle(c Control, s Status) bool {
	return !c.LockGranted() && !s.PeerHoldsLock()
}

func bitNames(v uint8, names []string) string {
	if v == 0 {
		return "0"
	}
	var l []string
	for i, name := range names {
		if v&(1<<uint(i)) != 0 {
			l = append(l, name)
		}
	}
	return strings.Join(l, "|")
}
