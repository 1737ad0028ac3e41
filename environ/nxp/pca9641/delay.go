// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pca9641

import "time"

// Arbitration windows measured from Select entry.
const (
	ForceWindow  = 125 * time.Millisecond // until forcing bus ownership
	GiveUpWindow = 250 * time.Millisecond // until acquisition failure
)

// Retry delays
const (
	SelectDelayShort = 50 * time.Microsecond
	SelectDelayLong  = 1000 * time.Microsecond
)

// Delay is the backoff tier chosen by the last arbitration round.
type Delay uint8

const (
	DelayShort Delay = iota
	DelayLong
	DelayExtraLong
)

func (d Delay) Duration() time.Duration {
	switch d {
	case DelayLong:
		return SelectDelayLong
	case DelayExtraLong:
		return 2 * SelectDelayLong
	}
	return SelectDelayShort
}

func (d Delay) String() string {
	switch d {
	case DelayShort:
		return "short"
	case DelayLong:
		return "long"
	case DelayExtraLong:
		return "extra-long"
	}
	return "invalid"
}

// Wait spends the tier's duration on clk. The short tier busy waits
// since it's expected to resolve within the same scheduling quantum;
// the others yield the processor.
func (d Delay) Wait(clk Clock) {
	if d == DelayShort {
		clk.Delay(d.Duration())
	} else {
		clk.Sleep(d.Duration())
	}
}

// Clock provides "now" along with busy and yielding waits.
type Clock interface {
	Now() time.Time
	Delay(time.Duration)
	Sleep(time.Duration)
}

// SystemClock is the default Clock.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Delay(d time.Duration) {
	for t0 := time.Now(); time.Since(t0) < d; {
	}
}

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }
