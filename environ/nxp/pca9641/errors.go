// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout     = errors.New("arbiter acquisition failure (timeout)")
	ErrUnsupported = errors.New("unsupported master selector")
	ErrNoDevice    = errors.New("no master selector")
	ErrChannel     = errors.New("no such channel")
	ErrNotAttached = errors.New("not attached")
)

// BusError is a failed register transaction. It aborts the arbitration
// round it occurred in; it is never retried at the transaction level.
type BusError struct {
	Op   string
	Bus  int
	Addr uint8
	Reg  uint8
	Err  error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("pca9641 %d.%02x: %s reg 0x%02x: %v",
		e.Bus, e.Addr, e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// IsBusError reports whether err is, or wraps, a *BusError.
func IsBusError(err error) bool {
	var be *BusError
	return errors.As(err, &be)
}
