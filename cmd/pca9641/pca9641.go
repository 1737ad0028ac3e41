// Copyright © 2015-2022 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pca9641 is the master selector command. It attaches the
// selector named by its options for each run so a select persists until
// a release or the next run.
package pca9641

import (
	"context"
	"fmt"
	"net/rpc"
	"strconv"

	"github.com/platinasystems/atsock"
	"github.com/platinasystems/parms"
	"github.com/platinasystems/pca9641/cmd/pca9641d"
	"github.com/platinasystems/pca9641/goes"
	"github.com/platinasystems/pca9641/internal/conf"
	"github.com/platinasystems/pca9641/internal/pca9641sim"

	selector "github.com/platinasystems/pca9641/environ/nxp/pca9641"
)

type Command struct {
	// Chip of "-transport sim"; nil is a new one each run.
	Sim *pca9641sim.Chip

	// Dial connects to the daemon; nil is atsock.NewRpcClient.
	Dial func(name string) (*rpc.Client, error)
}

type op func(ctx context.Context, d *selector.Device, bus *conf.Bus,
	args []string) error

func (c *Command) Main(ctx context.Context, args ...string) error {
	sel, args, err := conf.New(args)
	if err != nil {
		return err
	}
	m := goes.Selection{
		"probe": c.with(sel, "\nVerify and quiesce the selector.", 0,
			probe),
		"select": c.with(sel, "\nAcquire the downstream bus.", 0,
			acquire),
		"release": c.with(sel, "\nRelease the downstream bus.", 0,
			release),
		"read": c.with(sel, "DEVICE REGISTER\n"+
			"Read a downstream register.", 2, read),
		"write": c.with(sel, "DEVICE REGISTER VALUE\n"+
			"Write a downstream register.", 3, write),
		"status": func(ctx context.Context, args ...string) error {
			return c.status(ctx, sel, args...)
		},
	}
	ctx = goes.WithUsage(ctx, func() {
		goes.Usage(ctx, "[SELECTOR OPTION]... COMMAND [ARG]...\n",
			m, "\nSELECTOR OPTIONS", conf.Usage)
	})
	return m.Select(ctx, args...)
}

func (c *Command) with(sel *conf.Selector, usage string, nargs int,
	f op) goes.Func {
	return func(ctx context.Context, args ...string) error {
		switch goes.Preemption(ctx) {
		case "":
		case "help":
			goes.Usage(ctx, usage)
			fallthrough
		default:
			return nil
		}
		if len(args) != nargs {
			return goes.ErrorfWith(ctx, "%v: want %d arguments",
				args, nargs)
		}
		bus, err := sel.Open(c.Sim)
		if err != nil {
			return err
		}
		defer bus.Close()
		d, err := selector.Attach(bus.Transport, bus.Lock, sel.Config)
		if err != nil {
			return err
		}
		return f(ctx, d, bus, args)
	}
}

func probe(ctx context.Context, d *selector.Device, _ *conf.Bus,
	_ []string) error {
	goes.OutputOf(ctx).Println(d)
	return nil
}

func acquire(ctx context.Context, d *selector.Device, bus *conf.Bus,
	_ []string) error {
	bus.Lock.Lock()
	err := d.Select()
	bus.Lock.Unlock()
	if err != nil {
		return err
	}
	goes.OutputOf(ctx).Print(d, ": ", d.State(), "\n")
	return nil
}

func release(ctx context.Context, d *selector.Device, bus *conf.Bus,
	_ []string) error {
	bus.Lock.Lock()
	err := d.Release()
	bus.Lock.Unlock()
	if err != nil {
		return err
	}
	goes.OutputOf(ctx).Print(d, ": ", d.State(), "\n")
	return nil
}

func read(ctx context.Context, d *selector.Device, bus *conf.Bus,
	args []string) error {
	dev, reg, err := parseDevReg(args)
	if err != nil {
		return err
	}
	v, err := d.Downstream(bus.Transport, bus.Lock).ReadByteData(dev, reg)
	if err != nil {
		return err
	}
	goes.OutputOf(ctx).Printf("0x%02x\n", v)
	return nil
}

func write(ctx context.Context, d *selector.Device, bus *conf.Bus,
	args []string) error {
	dev, reg, err := parseDevReg(args)
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(args[2], 0, 8)
	if err != nil {
		return fmt.Errorf("VALUE: %w", err)
	}
	return d.Downstream(bus.Transport, bus.Lock).WriteByteData(dev, reg,
		uint8(v))
}

func parseDevReg(args []string) (dev, reg uint8, err error) {
	u, err := strconv.ParseUint(args[0], 0, 7)
	if err != nil {
		return 0, 0, fmt.Errorf("DEVICE: %w", err)
	}
	dev = uint8(u)
	if u, err = strconv.ParseUint(args[1], 0, 8); err != nil {
		return 0, 0, fmt.Errorf("REGISTER: %w", err)
	}
	reg = uint8(u)
	return
}

// status prints the daemon's statistics of the selector.
func (c *Command) status(ctx context.Context, sel *conf.Selector,
	args ...string) error {
	switch goes.Preemption(ctx) {
	case "":
	case "help":
		goes.Usage(ctx, "[-name NAME]\nPrint daemon statistics.")
		fallthrough
	default:
		return nil
	}
	parm, args := parms.New(args, "-name")
	if len(args) > 0 {
		return goes.ErrorfWith(ctx, "%v: unexpected", args)
	}
	name := parm.ByName["-name"]
	if len(name) == 0 {
		name = pca9641d.Name
	}
	dial := c.Dial
	if dial == nil {
		dial = atsock.NewRpcClient
	}
	cl, err := dial(name)
	if err != nil {
		return err
	}
	defer cl.Close()
	var st selector.Stats
	if err = cl.Call("Info.Status", sel.Key().String(), &st); err != nil {
		return err
	}
	o := goes.OutputOf(ctx)
	for _, f := range pca9641d.Fields(st) {
		o.Print(f.Name, ": ", f.Value, "\n")
	}
	return nil
}
