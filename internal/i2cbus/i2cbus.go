// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package i2cbus provides SMBus byte data access through /dev/i2c-N.
package i2cbus

import (
	"fmt"
	"sync"

	"github.com/platinasystems/i2c"
)

const byteData = i2c.SMBUS_Read_Byte_Data | i2c.SMBUS_Write_Byte_Data

var segments struct {
	sync.Mutex
	m map[int]*sync.Mutex
}

// Lock returns the segment lock of the given adapter. Every user of the
// segment in this process must hold it across a select, transfer, and
// release sequence.
func Lock(index int) sync.Locker {
	segments.Lock()
	defer segments.Unlock()
	if segments.m == nil {
		segments.m = make(map[int]*sync.Mutex)
	}
	lk, found := segments.m[index]
	if !found {
		lk = new(sync.Mutex)
		segments.m[index] = lk
	}
	return lk
}

// Bus is the adapter /dev/i2c-Index.
type Bus struct {
	Index int
}

func (b Bus) String() string { return fmt.Sprint("i2c-", b.Index) }

func (b Bus) ReadByteData(addr, reg uint8) (uint8, error) {
	var data i2c.SMBusData
	err := i2c.Do(b.Index, int(addr), func(bus *i2c.Bus) error {
		return bus.Do(i2c.Read, reg, i2c.ByteData, &data)
	})
	return data[0], err
}

func (b Bus) WriteByteData(addr, reg, val uint8) error {
	var data i2c.SMBusData
	data[0] = val
	return i2c.Do(b.Index, int(addr), func(bus *i2c.Bus) error {
		return bus.Do(i2c.Write, reg, i2c.ByteData, &data)
	})
}

// CheckByteData verifies that the adapter supports byte data reads and
// writes.
func (b Bus) CheckByteData() error {
	var bus i2c.Bus
	if err := bus.Open(b.Index); err != nil {
		return err
	}
	defer bus.Close()
	features, err := bus.GetFeatures()
	if err != nil {
		return err
	}
	if features&byteData != byteData {
		return fmt.Errorf("%s: no byte data support, features 0x%08x",
			b, uint32(features))
	}
	return nil
}
