// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

// Transport performs single SMBus byte-data transactions on the bus the
// selector sits on. Implementations must NOT take the segment lock; the
// caller either already holds it or deliberately runs without it.
type Transport interface {
	ReadByteData(addr, reg uint8) (uint8, error)
	WriteByteData(addr, reg, val uint8) error
}

// ByteDataChecker is implemented by transports that can verify the
// adapter supports byte-data transactions before attach.
type ByteDataChecker interface {
	CheckByteData() error
}

func (d *Device) readReg(reg uint8) (uint8, error) {
	v, err := d.tr.ReadByteData(d.addr, reg)
	if err != nil {
		return 0, &BusError{"read", d.bus, d.addr, reg, err}
	}
	return v, nil
}

func (d *Device) writeReg(reg, val uint8) error {
	if err := d.tr.WriteByteData(d.addr, reg, val); err != nil {
		return &BusError{"write", d.bus, d.addr, reg, err}
	}
	return nil
}

func (d *Device) readControl() (Control, error) {
	v, err := d.readReg(RegControl)
	return Control(v), err
}

func (d *Device) readStatus() (Status, error) {
	v, err := d.readReg(RegStatus)
	return Status(v), err
}

func (d *Device) writeControl(c Control) error {
	return d.writeReg(RegControl, uint8(c))
}
